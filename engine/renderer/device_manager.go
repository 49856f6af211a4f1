package renderer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

/**
 * @brief Parameters used to create the device and its swapchain.
 */
type DeviceCreationParameters struct {
	BackBufferWidth        uint32
	BackBufferHeight       uint32
	SwapChainBufferCount   uint32
	SwapChainFormat        metadata.Format
	SwapChainSampleCount   uint32
	SwapChainSampleQuality uint32
	/** @brief Frames the CPU may queue before BeginFrame blocks. */
	MaxFramesInFlight  uint32
	VSyncEnabled       bool
	StartFullscreen    bool
	EnableDebugRuntime bool
	WindowTitle        string
	MessageCallback    MessageCallback
}

func DefaultDeviceCreationParameters() DeviceCreationParameters {
	return DeviceCreationParameters{
		BackBufferWidth:      1280,
		BackBufferHeight:     720,
		SwapChainBufferCount: 3,
		SwapChainFormat:      metadata.FormatSRGBA8UNorm,
		SwapChainSampleCount: 1,
		MaxFramesInFlight:    2,
		MessageCallback:      DefaultMessageCallback,
	}
}

/**
 * @brief The platform specific half of the device manager. Each backend
 * owns its device, swapchain and the frame synchronisation primitives.
 */
type SwapchainBackend interface {
	GraphicsAPI() BackendType
	CreateDeviceAndSwapChain(params DeviceCreationParameters) error
	DestroyDeviceAndSwapChain()
	ResizeSwapChain(width, height uint32, vsync bool) error
	// BeginFrame blocks until fewer than MaxFramesInFlight frames are
	// outstanding and a back buffer has been acquired.
	BeginFrame(ctx context.Context) error
	Present(vsync bool) error
	GetDevice() Device
	GetBackBuffer(index uint32) Texture
	GetBackBufferCount() uint32
	GetCurrentBackBufferIndex() uint32
	GetRendererString() string
}

/**
 * @brief Render passes that own size dependent resources register with
 * the device manager and get called around back buffer recreation.
 */
type RenderPass interface {
	BackBufferResizing()
	BackBufferResized(width, height, sampleCount uint32) error
}

type DeviceManager struct {
	backend        SwapchainBackend
	events         *core.EventSystem
	params         DeviceCreationParameters
	requestedVSync bool
	windowVisible  bool
	framebuffers   []Framebuffer
	renderPasses   []RenderPass
	frameIndex     uint32
	metrics        *core.Metrics
	lastFrameStart time.Time
}

// NewDeviceManager wraps backend. events may be nil.
func NewDeviceManager(backend SwapchainBackend, events *core.EventSystem) *DeviceManager {
	return &DeviceManager{
		backend: backend,
		events:  events,
		metrics: core.NewMetrics(),
	}
}

func (dm *DeviceManager) CreateWindowDeviceAndSwapChain(ctx context.Context, params DeviceCreationParameters) error {
	if params.MessageCallback == nil {
		params.MessageCallback = DefaultMessageCallback
	}
	if params.MaxFramesInFlight == 0 {
		params.MaxFramesInFlight = 1
	}
	dm.params = params
	dm.requestedVSync = params.VSyncEnabled

	if err := dm.backend.CreateDeviceAndSwapChain(params); err != nil {
		return fmt.Errorf("couldn't initialise device and/or swapchain: %w", err)
	}

	// reset the back buffer size state to enforce a resize event
	dm.params.BackBufferWidth = 0
	dm.params.BackBufferHeight = 0

	return dm.UpdateWindowSize(ctx, params.BackBufferWidth, params.BackBufferHeight)
}

/**
 * @brief Applies a new window size. A zero size means the window is
 * minimised and nothing is recreated. A pending vsync change is applied
 * here as well.
 */
func (dm *DeviceManager) UpdateWindowSize(ctx context.Context, width, height uint32) error {
	if width == 0 || height == 0 {
		// window is minimized
		dm.windowVisible = false
		return nil
	}

	dm.windowVisible = true

	if dm.params.BackBufferWidth != width ||
		dm.params.BackBufferHeight != height ||
		(dm.params.VSyncEnabled != dm.requestedVSync && dm.backend.GraphicsAPI().ResizeOnVSyncChange()) {
		// window is not minimized, and the size has changed
		if err := dm.BackBufferResizing(ctx); err != nil {
			return err
		}

		dm.params.BackBufferWidth = width
		dm.params.BackBufferHeight = height
		dm.params.VSyncEnabled = dm.requestedVSync

		if err := dm.backend.ResizeSwapChain(width, height, dm.requestedVSync); err != nil {
			return fmt.Errorf("failed to resize swapchain to %dx%d: %w", width, height, err)
		}
		if err := dm.BackBufferResized(); err != nil {
			return err
		}
	}

	dm.params.VSyncEnabled = dm.requestedVSync
	return nil
}

// BackBufferResizing releases the back buffer framebuffers and waits until the device no longer uses them.
func (dm *DeviceManager) BackBufferResizing(ctx context.Context) error {
	for _, fb := range dm.framebuffers {
		fb.Release()
	}
	dm.framebuffers = nil

	for _, rp := range dm.renderPasses {
		rp.BackBufferResizing()
	}
	if dm.events != nil {
		dm.events.Fire(core.EventContext{Type: core.EVENT_CODE_BACKBUFFER_RESIZING})
	}

	device := dm.backend.GetDevice()
	if device == nil {
		return nil
	}
	if err := device.WaitForIdle(ctx); err != nil {
		return err
	}
	device.RunGarbageCollection()
	return nil
}

// BackBufferResized creates one framebuffer per back buffer.
func (dm *DeviceManager) BackBufferResized() error {
	device := dm.backend.GetDevice()
	count := dm.backend.GetBackBufferCount()
	dm.framebuffers = make([]Framebuffer, 0, count)
	for index := uint32(0); index < count; index++ {
		desc := FramebufferDesc{}
		desc.AddColorAttachment(dm.backend.GetBackBuffer(index))
		fb, err := device.CreateFramebuffer(desc)
		if err != nil {
			return fmt.Errorf("failed to create framebuffer for back buffer %d: %w", index, err)
		}
		dm.framebuffers = append(dm.framebuffers, fb)
	}

	for _, rp := range dm.renderPasses {
		if err := rp.BackBufferResized(dm.params.BackBufferWidth, dm.params.BackBufferHeight, dm.params.SwapChainSampleCount); err != nil {
			return err
		}
	}
	if dm.events != nil {
		dm.events.Fire(core.EventContext{
			Type: core.EVENT_CODE_BACKBUFFER_RESIZED,
			Data: &core.SystemEvent{WindowWidth: dm.params.BackBufferWidth, WindowHeight: dm.params.BackBufferHeight},
		})
	}
	return nil
}

// BeginFrame is the only blocking call of the frame loop.
func (dm *DeviceManager) BeginFrame(ctx context.Context) error {
	now := time.Now()
	if !dm.lastFrameStart.IsZero() {
		dm.metrics.Update(now.Sub(dm.lastFrameStart).Seconds())
	}
	dm.lastFrameStart = now

	err := dm.backend.BeginFrame(ctx)
	if !errors.Is(err, core.ErrSwapchainBooting) {
		return err
	}
	// the surface went out of date, rebuild at the current size and try once more
	core.LogWarn("Swapchain out of date, recreating.")
	if err := dm.BackBufferResizing(ctx); err != nil {
		return err
	}
	if err := dm.backend.ResizeSwapChain(dm.params.BackBufferWidth, dm.params.BackBufferHeight, dm.params.VSyncEnabled); err != nil {
		return fmt.Errorf("failed to recreate swapchain: %w", err)
	}
	if err := dm.BackBufferResized(); err != nil {
		return err
	}
	return dm.backend.BeginFrame(ctx)
}

func (dm *DeviceManager) Present() error {
	if err := dm.backend.Present(dm.params.VSyncEnabled); err != nil {
		return err
	}
	dm.frameIndex++
	return nil
}

// SetVsyncEnabled records the request. It takes effect on the next UpdateWindowSize.
func (dm *DeviceManager) SetVsyncEnabled(enabled bool) {
	dm.requestedVSync = enabled
}

func (dm *DeviceManager) IsVsyncEnabled() bool {
	return dm.params.VSyncEnabled
}

func (dm *DeviceManager) AddRenderPass(rp RenderPass) {
	dm.renderPasses = append(dm.renderPasses, rp)
}

func (dm *DeviceManager) RemoveRenderPass(rp RenderPass) {
	for i := range dm.renderPasses {
		if dm.renderPasses[i] == rp {
			dm.renderPasses = append(dm.renderPasses[:i], dm.renderPasses[i+1:]...)
			return
		}
	}
}

func (dm *DeviceManager) GetDevice() Device {
	return dm.backend.GetDevice()
}

func (dm *DeviceManager) GetGraphicsAPI() BackendType {
	return dm.backend.GraphicsAPI()
}

func (dm *DeviceManager) GetDeviceParams() DeviceCreationParameters {
	return dm.params
}

func (dm *DeviceManager) GetWindowDimensions() (uint32, uint32) {
	return dm.params.BackBufferWidth, dm.params.BackBufferHeight
}

func (dm *DeviceManager) IsWindowVisible() bool {
	return dm.windowVisible
}

func (dm *DeviceManager) GetFrameIndex() uint32 {
	return dm.frameIndex
}

func (dm *DeviceManager) GetBackBufferCount() uint32 {
	return dm.backend.GetBackBufferCount()
}

func (dm *DeviceManager) GetCurrentBackBufferIndex() uint32 {
	return dm.backend.GetCurrentBackBufferIndex()
}

func (dm *DeviceManager) GetCurrentBackBuffer() Texture {
	return dm.backend.GetBackBuffer(dm.backend.GetCurrentBackBufferIndex())
}

// GetFramebuffer returns nil when index is out of range.
func (dm *DeviceManager) GetFramebuffer(index uint32) Framebuffer {
	if index < uint32(len(dm.framebuffers)) {
		return dm.framebuffers[index]
	}
	return nil
}

func (dm *DeviceManager) GetCurrentFramebuffer() Framebuffer {
	return dm.GetFramebuffer(dm.GetCurrentBackBufferIndex())
}

func (dm *DeviceManager) GetAverageFrameTimeSeconds() float64 {
	return dm.metrics.AverageFrameTimeSeconds()
}

func (dm *DeviceManager) GetRendererString() string {
	return dm.backend.GetRendererString()
}

func (dm *DeviceManager) Shutdown() {
	for _, fb := range dm.framebuffers {
		fb.Release()
	}
	dm.framebuffers = nil
	dm.renderPasses = nil
	dm.backend.DestroyDeviceAndSwapChain()
}

// PrintFramebufferInfo logs the properties of a framebuffer.
func PrintFramebufferInfo(name string, info metadata.FramebufferInfo) {
	colour := metadata.FormatUnknown
	if len(info.ColorFormats) > 0 {
		colour = info.ColorFormats[0]
	}
	core.LogInfo("Framebuffer: %s\n"+
		"  * Size:           %dx%d\n"+
		"  * Sample count:   %d\n"+
		"  * Sample quality: %d\n"+
		"  * Colour format:  %s\n"+
		"  * Depth format:   %s",
		name, info.Width, info.Height, info.SampleCount, info.SampleQuality, colour, info.DepthFormat)
}
