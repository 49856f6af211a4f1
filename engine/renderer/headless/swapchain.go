package headless

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/spaghettifunk/lumen/engine/containers"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"golang.org/x/sync/semaphore"
)

type Options struct {
	// ManualRetire leaves presented frames in flight until RetireOldest is called.
	ManualRetire bool
	// RetireDelay is how long a presented frame stays in flight otherwise.
	RetireDelay time.Duration
}

type frame struct {
	number uint64
}

/**
 * @brief Swapchain backend without a window. Presented frames stay in
 * flight until they are retired, either after RetireDelay or by hand.
 */
type Swapchain struct {
	options Options
	params  renderer.DeviceCreationParameters
	device  *Device

	mu          sync.Mutex
	inFlight    *containers.RingQueue[*frame]
	frames      *semaphore.Weighted
	frameNumber uint64
	inFrame     bool

	backBuffers []*Texture
	current     uint32
	vsync       bool
}

func NewSwapchain(options Options) *Swapchain {
	return &Swapchain{options: options}
}

func (s *Swapchain) GraphicsAPI() renderer.BackendType {
	return renderer.BackendHeadless
}

func (s *Swapchain) CreateDeviceAndSwapChain(params renderer.DeviceCreationParameters) error {
	if s.device != nil {
		return fmt.Errorf("headless device already created")
	}
	if params.SwapChainBufferCount == 0 {
		return fmt.Errorf("%w: swapchain needs at least one back buffer", core.ErrInvalidHandle)
	}
	if params.MaxFramesInFlight == 0 {
		params.MaxFramesInFlight = 1
	}
	if params.SwapChainSampleCount == 0 {
		params.SwapChainSampleCount = 1
	}
	s.params = params
	s.vsync = params.VSyncEnabled
	s.device = NewDevice()
	s.inFlight = containers.NewRingQueue[*frame](int(params.MaxFramesInFlight))
	s.frames = semaphore.NewWeighted(int64(params.MaxFramesInFlight))

	s.device.mu.Lock()
	s.device.retireFrames = s.retireUpTo
	s.device.mu.Unlock()

	if params.EnableDebugRuntime && params.MessageCallback != nil {
		if err := params.MessageCallback(metadata.MessageSeverityInfo, "headless device created with validation"); err != nil {
			return err
		}
	}
	return s.createBackBuffers(params.BackBufferWidth, params.BackBufferHeight)
}

func (s *Swapchain) createBackBuffers(width, height uint32) error {
	s.backBuffers = s.backBuffers[:0]
	if width == 0 || height == 0 {
		return nil
	}
	for i := uint32(0); i < s.params.SwapChainBufferCount; i++ {
		t, err := s.device.CreateTexture(metadata.TextureDesc{
			Width:            width,
			Height:           height,
			MipLevels:        1,
			SampleCount:      s.params.SwapChainSampleCount,
			SampleQuality:    s.params.SwapChainSampleQuality,
			Format:           s.params.SwapChainFormat,
			Dimension:        metadata.TextureDimension2D,
			IsRenderTarget:   true,
			InitialState:     metadata.ResourceStatePresent,
			KeepInitialState: true,
			DebugName:        fmt.Sprintf("Back buffer %d", i),
		})
		if err != nil {
			return err
		}
		s.backBuffers = append(s.backBuffers, t.(*Texture))
	}
	s.current = 0
	return nil
}

func (s *Swapchain) DestroyDeviceAndSwapChain() {
	if s.device == nil {
		return
	}
	s.retireUpTo(^uint64(0))
	for _, bb := range s.backBuffers {
		bb.Release()
	}
	s.backBuffers = nil
	s.device.RunGarbageCollection()
	s.mu.Lock()
	s.device = nil
	s.mu.Unlock()
}

// ResizeSwapChain fails while a framebuffer still references an old back buffer.
func (s *Swapchain) ResizeSwapChain(width, height uint32, vsync bool) error {
	if s.device == nil {
		return core.ErrNotInitialized
	}
	for _, bb := range s.backBuffers {
		if s.device.isAttached(bb) {
			return fmt.Errorf("%w: %q is still attached to a framebuffer", core.ErrResourceState, bb.desc.DebugName)
		}
	}
	for _, bb := range s.backBuffers {
		bb.Release()
	}
	s.device.RunGarbageCollection()
	s.vsync = vsync
	return s.createBackBuffers(width, height)
}

func (s *Swapchain) BeginFrame(ctx context.Context) error {
	if s.device == nil {
		return core.ErrNotInitialized
	}
	if err := s.frames.Acquire(ctx, 1); err != nil {
		return err
	}
	s.mu.Lock()
	s.frameNumber++
	number := s.frameNumber
	s.inFrame = true
	if n := uint32(len(s.backBuffers)); n > 0 {
		s.current = uint32((number - 1) % uint64(n))
	}
	s.mu.Unlock()

	s.device.mu.Lock()
	s.device.currentFrame = number
	s.device.mu.Unlock()
	return nil
}

func (s *Swapchain) Present(vsync bool) error {
	if s.device == nil {
		return core.ErrNotInitialized
	}
	s.mu.Lock()
	if !s.inFrame {
		s.mu.Unlock()
		return fmt.Errorf("present called outside of a frame")
	}
	s.inFrame = false
	f := &frame{number: s.frameNumber}
	err := s.inFlight.Enqueue(f)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.device.mu.Lock()
	s.device.currentFrame = 0
	s.device.mu.Unlock()

	if !s.options.ManualRetire {
		time.AfterFunc(s.options.RetireDelay, func() { s.retireUpTo(f.number) })
	}
	return nil
}

// RetireOldest completes the oldest frame in flight. It returns false when none is.
func (s *Swapchain) RetireOldest() bool {
	s.mu.Lock()
	f, err := s.inFlight.Peek()
	s.mu.Unlock()
	if err != nil {
		return false
	}
	s.retireUpTo(f.number)
	return true
}

func (s *Swapchain) retireUpTo(number uint64) {
	s.mu.Lock()
	if s.inFlight == nil {
		s.mu.Unlock()
		return
	}
	device := s.device
	var retired []uint64
	for !s.inFlight.IsEmpty() {
		f, _ := s.inFlight.Peek()
		if f.number > number {
			break
		}
		s.inFlight.Dequeue()
		retired = append(retired, f.number)
	}
	s.mu.Unlock()

	for _, n := range retired {
		device.completeFrame(n)
		s.frames.Release(1)
	}
}

// OutstandingFrames is the number of presented frames not yet retired.
func (s *Swapchain) OutstandingFrames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight == nil {
		return 0
	}
	return s.inFlight.Len()
}

func (s *Swapchain) HeadlessDevice() *Device {
	return s.device
}

func (s *Swapchain) GetDevice() renderer.Device {
	if s.device == nil {
		return nil
	}
	return s.device
}

func (s *Swapchain) GetBackBuffer(index uint32) renderer.Texture {
	if index >= uint32(len(s.backBuffers)) {
		return nil
	}
	return s.backBuffers[index]
}

func (s *Swapchain) GetBackBufferCount() uint32 {
	return uint32(len(s.backBuffers))
}

func (s *Swapchain) GetCurrentBackBufferIndex() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *Swapchain) GetRendererString() string {
	return "Lumen headless"
}

// IsVsyncEnabled is the vsync mode the swapchain was last created with.
func (s *Swapchain) IsVsyncEnabled() bool {
	return s.vsync
}

var (
	_ renderer.SwapchainBackend = (*Swapchain)(nil)
	_ renderer.Device           = (*Device)(nil)
	_ renderer.CommandList      = (*CommandList)(nil)
)
