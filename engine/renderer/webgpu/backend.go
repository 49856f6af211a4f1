package webgpu

import (
	"context"
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/spaghettifunk/lumen/engine/containers"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

/**
 * @brief renderer.SwapchainBackend on a wgpu surface.
 *
 * The surface hands out a new texture every frame, so the backend keeps a
 * single back buffer whose wgpu objects are replaced by BeginFrame and
 * dropped by Present. Frames are throttled on the id of the last
 * submission made before each Present.
 */
type WebGPUBackend struct {
	window *glfw.Window
	params renderer.DeviceCreationParameters

	instance    *wgpu.Instance
	surface     *wgpu.Surface
	adapter     *wgpu.Adapter
	adapterName string
	device      *Device

	format         wgpu.TextureFormat
	alphaMode      wgpu.CompositeAlphaMode
	presentModes   []wgpu.PresentMode
	width, height  uint32
	vsync          bool
	backBuffer     *Texture
	framesInFlight *containers.RingQueue[uint64]
}

func New(window *glfw.Window) *WebGPUBackend {
	return &WebGPUBackend{window: window}
}

func (wb *WebGPUBackend) GraphicsAPI() renderer.BackendType {
	return renderer.BackendWebGPU
}

func (wb *WebGPUBackend) CreateDeviceAndSwapChain(params renderer.DeviceCreationParameters) error {
	if wb.device != nil {
		return fmt.Errorf("webgpu device already created")
	}
	if params.MaxFramesInFlight == 0 {
		params.MaxFramesInFlight = 1
	}
	wb.params = params
	wb.vsync = params.VSyncEnabled

	wb.instance = wgpu.CreateInstance(nil)
	core.LogDebug("Creating WebGPU surface...")
	wb.surface = wb.instance.CreateSurface(wgpuglfw.GetSurfaceDescriptor(wb.window))

	adapter, err := wb.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		CompatibleSurface: wb.surface,
		PowerPreference:   wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		return fmt.Errorf("no WebGPU adapter for this surface: %w", err)
	}
	wb.adapter = adapter
	wb.adapterName = adapter.GetInfo().Name
	core.LogInfo("WebGPU adapter: %s", wb.adapterName)

	device, err := adapter.RequestDevice(&wgpu.DeviceDescriptor{Label: "Lumen Device"})
	if err != nil {
		return fmt.Errorf("failed to create WebGPU device: %w", err)
	}
	wb.device = newDevice(device, params.MessageCallback)
	wb.framesInFlight = containers.NewRingQueue[uint64](int(params.MaxFramesInFlight))

	caps := wb.surface.GetCapabilities(adapter)
	if wb.format, err = chooseSurfaceFormat(caps.Formats, params.SwapChainFormat); err != nil {
		return err
	}
	if len(caps.AlphaModes) == 0 {
		return fmt.Errorf("surface reports no alpha modes")
	}
	wb.alphaMode = caps.AlphaModes[0]
	wb.presentModes = caps.PresentModes

	if err := wb.configure(params.BackBufferWidth, params.BackBufferHeight); err != nil {
		return err
	}
	core.LogInfo("WebGPU renderer initialized successfully.")
	return nil
}

// configure (re)configures the surface and replaces the back buffer with one of the new size.
func (wb *WebGPUBackend) configure(width, height uint32) error {
	if width == 0 || height == 0 {
		return fmt.Errorf("%w: surface size %dx%d", core.ErrSwapchainBooting, width, height)
	}
	wb.surface.Configure(wb.adapter, wb.device.device, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      wb.format,
		Width:       width,
		Height:      height,
		PresentMode: choosePresentMode(wb.presentModes, wb.vsync),
		AlphaMode:   wb.alphaMode,
	})
	wb.width, wb.height = width, height

	if wb.backBuffer != nil {
		wb.backBuffer.Release()
	}
	wb.backBuffer = wb.device.newBackBuffer(metadata.TextureDesc{
		Width:            width,
		Height:           height,
		MipLevels:        1,
		SampleCount:      1,
		Format:           formatFromWebGPU(wb.format),
		Dimension:        metadata.TextureDimension2D,
		IsRenderTarget:   true,
		InitialState:     metadata.ResourceStatePresent,
		KeepInitialState: true,
		DebugName:        "Back buffer",
	})
	return nil
}

func (wb *WebGPUBackend) DestroyDeviceAndSwapChain() {
	if wb.device == nil {
		return
	}
	if wb.backBuffer != nil {
		wb.backBuffer.Release()
		wb.backBuffer = nil
	}
	wb.device.destroy()
	wb.device = nil
	if wb.surface != nil {
		wb.surface.Release()
		wb.surface = nil
	}
	if wb.adapter != nil {
		wb.adapter.Release()
		wb.adapter = nil
	}
	if wb.instance != nil {
		wb.instance.Release()
		wb.instance = nil
	}
	core.LogInfo("WebGPU renderer shut down.")
}

// ResizeSwapChain expects the back buffer framebuffers to be released.
func (wb *WebGPUBackend) ResizeSwapChain(width, height uint32, vsync bool) error {
	if wb.device == nil {
		return core.ErrNotInitialized
	}
	if err := wb.device.WaitForIdle(context.Background()); err != nil {
		return err
	}
	wb.vsync = vsync
	if err := wb.configure(width, height); err != nil {
		return err
	}
	wb.device.RunGarbageCollection()
	return nil
}

func (wb *WebGPUBackend) BeginFrame(ctx context.Context) error {
	if wb.device == nil {
		return core.ErrNotInitialized
	}
	for wb.framesInFlight.Len() >= int(wb.params.MaxFramesInFlight) {
		oldest, err := wb.framesInFlight.Dequeue()
		if err != nil {
			return err
		}
		if err := wb.device.WaitForSubmission(ctx, oldest); err != nil {
			return err
		}
	}

	texture, err := wb.surface.GetCurrentTexture()
	if err != nil {
		// lost or outdated, the device manager resizes and retries
		return fmt.Errorf("%w: %s", core.ErrSwapchainBooting, err)
	}
	view, err := texture.CreateView(nil)
	if err != nil {
		texture.Release()
		return fmt.Errorf("failed to create back buffer view: %w", err)
	}
	wb.device.mu.Lock()
	wb.backBuffer.texture = texture
	wb.backBuffer.view = view
	wb.device.mu.Unlock()
	return nil
}

func (wb *WebGPUBackend) Present(_ bool) error {
	if wb.device == nil {
		return core.ErrNotInitialized
	}
	if wb.backBuffer.view == nil {
		return fmt.Errorf("%w: present without a frame", core.ErrResourceState)
	}
	wb.surface.Present()

	wb.device.mu.Lock()
	wb.backBuffer.view.Release()
	wb.backBuffer.texture.Release()
	wb.backBuffer.view = nil
	wb.backBuffer.texture = nil
	last := wb.device.lastSubmission
	wb.device.mu.Unlock()

	// vsync changes arrive through ResizeSwapChain
	return wb.framesInFlight.Enqueue(last)
}

func (wb *WebGPUBackend) GetDevice() renderer.Device {
	if wb.device == nil {
		return nil
	}
	return wb.device
}

func (wb *WebGPUBackend) GetBackBuffer(index uint32) renderer.Texture {
	if index != 0 || wb.backBuffer == nil {
		return nil
	}
	return wb.backBuffer
}

func (wb *WebGPUBackend) GetBackBufferCount() uint32 {
	if wb.backBuffer == nil {
		return 0
	}
	return 1
}

func (wb *WebGPUBackend) GetCurrentBackBufferIndex() uint32 {
	return 0
}

func (wb *WebGPUBackend) GetRendererString() string {
	if wb.adapterName == "" {
		return "Lumen WebGPU"
	}
	return fmt.Sprintf("Lumen WebGPU (%s)", wb.adapterName)
}

var (
	_ renderer.SwapchainBackend = (*WebGPUBackend)(nil)
	_ renderer.Device           = (*Device)(nil)
	_ renderer.CommandList      = (*CommandList)(nil)
)
