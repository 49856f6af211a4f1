package vulkan

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/containers"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// the validation layer reports through a plain function, this is where it finds the callback
var reportContext atomic.Pointer[VulkanContext]

/**
 * @brief renderer.SwapchainBackend on top of a GLFW window.
 *
 * Every frame acquires a back buffer with one of MaxFramesInFlight+1
 * semaphores, which the next queue submission waits on. Present submits
 * an empty batch that signals the back buffer's present semaphore, its
 * submission id is what BeginFrame throttles on.
 */
type VulkanBackend struct {
	window  *glfw.Window
	params  renderer.DeviceCreationParameters
	context *VulkanContext
	device  *Device

	swapchain   *VulkanSwapchain
	backBuffers []*Texture
	current     uint32
	vsync       bool
	outOfDate   bool

	acquireSemaphores []vk.Semaphore
	presentSemaphores []vk.Semaphore
	frameCount        uint64
	framesInFlight    *containers.RingQueue[uint64]
}

func New(window *glfw.Window) *VulkanBackend {
	return &VulkanBackend{window: window}
}

func (vb *VulkanBackend) GraphicsAPI() renderer.BackendType {
	return renderer.BackendVulkan
}

func (vb *VulkanBackend) CreateDeviceAndSwapChain(params renderer.DeviceCreationParameters) error {
	if vb.device != nil {
		return fmt.Errorf("vulkan device already created")
	}
	if params.MaxFramesInFlight == 0 {
		params.MaxFramesInFlight = 1
	}
	vb.params = params
	vb.vsync = params.VSyncEnabled

	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		return fmt.Errorf("GetInstanceProcAddress is nil")
	}
	vk.SetGetInstanceProcAddr(procAddr)
	if err := vk.Init(); err != nil {
		return fmt.Errorf("failed to initialize vk: %w", err)
	}

	vb.context = &VulkanContext{
		Allocator: nil,
		messages:  params.MessageCallback,
		locks:     NewVulkanLockPool(),
	}
	if err := vb.createInstance(params); err != nil {
		return err
	}

	core.LogDebug("Creating Vulkan surface...")
	surface, err := vb.window.CreateWindowSurface(vb.context.Instance, nil)
	if err != nil {
		return fmt.Errorf("vulkan surface creation failed: %w", err)
	}
	vb.context.Surface = vk.SurfaceFromPointer(surface)
	core.LogDebug("Vulkan surface created.")

	if err := DeviceCreate(vb.context); err != nil {
		return fmt.Errorf("failed to create device: %w", err)
	}
	vb.device = newDevice(vb.context)
	vb.framesInFlight = containers.NewRingQueue[uint64](int(params.MaxFramesInFlight))

	vb.acquireSemaphores = make([]vk.Semaphore, params.MaxFramesInFlight+1)
	for i := range vb.acquireSemaphores {
		if vb.acquireSemaphores[i], err = vb.createSemaphore(); err != nil {
			return err
		}
	}
	if err := vb.createSwapchain(params.BackBufferWidth, params.BackBufferHeight); err != nil {
		return err
	}
	core.LogInfo("Vulkan renderer initialized successfully.")
	return nil
}

func (vb *VulkanBackend) createInstance(params renderer.DeviceCreationParameters) error {
	appInfo := &vk.ApplicationInfo{
		SType: vk.StructureTypeApplicationInfo,
		// negative viewport heights are core since 1.1
		ApiVersion:         uint32(vk.MakeVersion(1, 1, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(params.WindowTitle),
		PEngineName:        VulkanSafeString("Lumen Engine"),
	}
	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	// Obtain a list of required extensions
	extensions := vb.window.GetRequiredInstanceExtensions()
	if runtime.GOOS == "darwin" {
		extensions = append(extensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		createInfo.Flags |= 1
	}

	var layers []string
	if params.EnableDebugRuntime {
		extensions = append(extensions, vk.ExtDebugReportExtensionName)
		layers = []string{"VK_LAYER_KHRONOS_validation"}
		if err := checkValidationLayers(layers); err != nil {
			return err
		}
	}
	core.LogDebug("Required extensions: %v", extensions)

	createInfo.EnabledExtensionCount = uint32(len(extensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(extensions)
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(layers)

	if err := check("vkCreateInstance", vk.CreateInstance(&createInfo, vb.context.Allocator, &vb.context.Instance)); err != nil {
		return err
	}
	if err := vk.InitInstance(vb.context.Instance); err != nil {
		return err
	}
	core.LogInfo("Vulkan Instance created.")

	if params.EnableDebugRuntime {
		reportContext.Store(vb.context)
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType: vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags: vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit |
				vk.DebugReportPerformanceWarningBit | vk.DebugReportInformationBit),
			PfnCallback: dbgCallbackFunc,
		}
		var dbg vk.DebugReportCallback
		if err := check("vkCreateDebugReportCallbackEXT", vk.CreateDebugReportCallback(vb.context.Instance, &debugCreateInfo, nil, &dbg)); err != nil {
			return err
		}
		vb.context.debugMessenger = dbg
		core.LogDebug("Vulkan debugger created.")
	}
	return nil
}

func checkValidationLayers(required []string) error {
	core.LogInfo("Validation layers enabled. Enumerating...")
	var count uint32
	if err := check("vkEnumerateInstanceLayerProperties", vk.EnumerateInstanceLayerProperties(&count, nil)); err != nil {
		return err
	}
	available := make([]vk.LayerProperties, count)
	if err := check("vkEnumerateInstanceLayerProperties", vk.EnumerateInstanceLayerProperties(&count, available)); err != nil {
		return err
	}
	names := make(map[string]bool, count)
	for i := range available {
		available[i].Deref()
		names[cString(available[i].LayerName[:])] = true
	}
	for _, layer := range required {
		if !names[layer] {
			return fmt.Errorf("required validation layer is missing: %s", layer)
		}
	}
	core.LogInfo("All required validation layers are present.")
	return nil
}

func (vb *VulkanBackend) createSemaphore() (vk.Semaphore, error) {
	createInfo := vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}
	var sem vk.Semaphore
	if err := check("vkCreateSemaphore", vk.CreateSemaphore(vb.context.logicalDevice(), &createInfo, vb.context.Allocator, &sem)); err != nil {
		return vk.NullSemaphore, err
	}
	return sem, nil
}

func (vb *VulkanBackend) destroySemaphores(list []vk.Semaphore) {
	for _, sem := range list {
		if sem != vk.NullSemaphore {
			vk.DestroySemaphore(vb.context.logicalDevice(), sem, vb.context.Allocator)
		}
	}
}

// createSwapchain replaces the current swapchain, if any, and wraps its images as back buffers.
func (vb *VulkanBackend) createSwapchain(width, height uint32) error {
	var old vk.Swapchain
	if vb.swapchain != nil {
		old = vb.swapchain.Handle
	}
	sc, err := SwapchainCreate(vb.context, VulkanSwapchainConfig{
		Width:        width,
		Height:       height,
		Format:       vb.params.SwapChainFormat,
		BufferCount:  vb.params.SwapChainBufferCount,
		VSync:        vb.vsync,
		OldSwapchain: old,
	})
	if vb.swapchain != nil {
		vb.swapchain.Destroy(vb.context)
		vb.swapchain = nil
	}
	if err != nil {
		return err
	}
	vb.swapchain = sc

	format := formatFromVulkan(sc.ImageFormat.Format)
	vb.backBuffers = vb.backBuffers[:0]
	for i, image := range sc.Images {
		t, err := vb.device.wrapBackBuffer(image, metadata.TextureDesc{
			Width:            sc.Extent.Width,
			Height:           sc.Extent.Height,
			MipLevels:        1,
			SampleCount:      1,
			Format:           format,
			Dimension:        metadata.TextureDimension2D,
			IsRenderTarget:   true,
			InitialState:     metadata.ResourceStatePresent,
			KeepInitialState: true,
			DebugName:        fmt.Sprintf("Back buffer %d", i),
		})
		if err != nil {
			return err
		}
		vb.backBuffers = append(vb.backBuffers, t)
	}

	vb.destroySemaphores(vb.presentSemaphores)
	vb.presentSemaphores = make([]vk.Semaphore, len(sc.Images))
	for i := range vb.presentSemaphores {
		if vb.presentSemaphores[i], err = vb.createSemaphore(); err != nil {
			return err
		}
	}
	vb.current = 0
	vb.outOfDate = false
	return nil
}

func (vb *VulkanBackend) releaseBackBuffers() {
	for _, bb := range vb.backBuffers {
		bb.Release()
	}
	vb.backBuffers = nil
}

func (vb *VulkanBackend) DestroyDeviceAndSwapChain() {
	if vb.device == nil {
		return
	}
	vb.releaseBackBuffers()
	vb.device.destroy()

	vb.destroySemaphores(vb.presentSemaphores)
	vb.destroySemaphores(vb.acquireSemaphores)
	vb.presentSemaphores = nil
	vb.acquireSemaphores = nil
	if vb.swapchain != nil {
		vb.swapchain.Destroy(vb.context)
		vb.swapchain = nil
	}
	DeviceDestroy(vb.context)
	vb.device = nil

	if vb.context.Surface != vk.NullSurface {
		vk.DestroySurface(vb.context.Instance, vb.context.Surface, vb.context.Allocator)
		vb.context.Surface = vk.NullSurface
	}
	if vb.context.debugMessenger != vk.NullDebugReportCallback {
		vk.DestroyDebugReportCallback(vb.context.Instance, vb.context.debugMessenger, nil)
		vb.context.debugMessenger = vk.NullDebugReportCallback
	}
	reportContext.CompareAndSwap(vb.context, nil)
	vk.DestroyInstance(vb.context.Instance, vb.context.Allocator)
	core.LogInfo("Vulkan renderer shut down.")
}

// ResizeSwapChain expects the device to be idle and the back buffer framebuffers released.
func (vb *VulkanBackend) ResizeSwapChain(width, height uint32, vsync bool) error {
	if vb.device == nil {
		return core.ErrNotInitialized
	}
	if err := vb.device.WaitForIdle(context.Background()); err != nil {
		return err
	}
	vb.releaseBackBuffers()
	vb.device.RunGarbageCollection()
	vb.vsync = vsync
	return vb.createSwapchain(width, height)
}

func (vb *VulkanBackend) BeginFrame(ctx context.Context) error {
	if vb.device == nil {
		return core.ErrNotInitialized
	}
	if vb.outOfDate {
		return core.ErrSwapchainBooting
	}
	for vb.framesInFlight.Len() >= int(vb.params.MaxFramesInFlight) {
		oldest, err := vb.framesInFlight.Dequeue()
		if err != nil {
			return err
		}
		if err := vb.device.WaitForSubmission(ctx, oldest); err != nil {
			return err
		}
	}

	sem := vb.acquireSemaphores[vb.frameCount%uint64(len(vb.acquireSemaphores))]
	index, err := vb.swapchain.AcquireNextImage(vb.context, sem)
	if err != nil {
		if errors.Is(err, core.ErrSwapchainBooting) {
			vb.outOfDate = true
		}
		return err
	}
	vb.frameCount++
	vb.current = index
	vb.device.addWaitSemaphore(sem, vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit))
	return nil
}

func (vb *VulkanBackend) Present(vsync bool) error {
	if vb.device == nil {
		return core.ErrNotInitialized
	}
	sem := vb.presentSemaphores[vb.current]
	id, err := vb.device.signalSemaphore(sem)
	if err != nil {
		return err
	}
	if err := vb.framesInFlight.Enqueue(id); err != nil {
		return err
	}
	if err := vb.swapchain.Present(vb.context, sem, vb.current); err != nil {
		if !errors.Is(err, core.ErrSwapchainBooting) {
			return err
		}
		// recreated when the next frame begins
		vb.outOfDate = true
	}
	return nil
}

func (vb *VulkanBackend) GetDevice() renderer.Device {
	if vb.device == nil {
		return nil
	}
	return vb.device
}

func (vb *VulkanBackend) GetBackBuffer(index uint32) renderer.Texture {
	if index >= uint32(len(vb.backBuffers)) {
		return nil
	}
	return vb.backBuffers[index]
}

func (vb *VulkanBackend) GetBackBufferCount() uint32 {
	return uint32(len(vb.backBuffers))
}

func (vb *VulkanBackend) GetCurrentBackBufferIndex() uint32 {
	return vb.current
}

func (vb *VulkanBackend) GetRendererString() string {
	if vb.context == nil || vb.context.Device == nil {
		return "Lumen Vulkan"
	}
	return fmt.Sprintf("Lumen Vulkan (%s)", vb.context.Device.Name)
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	severity := metadata.MessageSeverityInfo
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		severity = metadata.MessageSeverityError
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit|vk.DebugReportPerformanceWarningBit) != 0:
		severity = metadata.MessageSeverityWarning
	}
	msg := fmt.Sprintf("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)

	vc := reportContext.Load()
	if vc == nil || vc.messages == nil {
		core.LogInfo("%s", msg)
		return vk.Bool32(vk.False)
	}
	if err := vc.messages(severity, msg); err != nil {
		core.LogError("%s", err)
	}
	return vk.Bool32(vk.False)
}

var (
	_ renderer.SwapchainBackend = (*VulkanBackend)(nil)
	_ renderer.Device           = (*Device)(nil)
	_ renderer.CommandList      = (*CommandList)(nil)
)
