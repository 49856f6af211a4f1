package vulkan

import (
	"fmt"
	"math"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

type VulkanSwapchain struct {
	ImageFormat vk.SurfaceFormat
	Handle      vk.Swapchain
	Extent      vk.Extent2D
	PresentMode vk.PresentMode
	Images      []vk.Image
}

type VulkanSwapchainConfig struct {
	Width       uint32
	Height      uint32
	Format      metadata.Format
	BufferCount uint32
	VSync       bool
	// handed to the driver so in-flight presents of the old swapchain can finish
	OldSwapchain vk.Swapchain
}

func chooseSurfaceFormat(formats []vk.SurfaceFormat, wanted metadata.Format) (vk.SurfaceFormat, error) {
	if len(formats) == 0 {
		return vk.SurfaceFormat{}, fmt.Errorf("surface reports no formats")
	}
	target := convertFormat(wanted)
	for _, format := range formats {
		if format.Format == target && format.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			return format, nil
		}
	}
	// BGRA is what most surfaces offer
	srgb := metadata.GetFormatInfo(wanted).IsSRGB
	for _, format := range formats {
		if srgb && format.Format == vk.FormatB8g8r8a8Srgb || !srgb && format.Format == vk.FormatB8g8r8a8Unorm {
			return format, nil
		}
	}
	return formats[0], nil
}

// choosePresentMode uses FIFO with vsync, otherwise the first of mailbox and immediate the surface offers.
func choosePresentMode(modes []vk.PresentMode, vsync bool) vk.PresentMode {
	if vsync {
		return vk.PresentModeFifo
	}
	for _, wanted := range []vk.PresentMode{vk.PresentModeMailbox, vk.PresentModeImmediate} {
		for _, mode := range modes {
			if mode == wanted {
				return mode
			}
		}
	}
	return vk.PresentModeFifo
}

func chooseExtent(capabilities vk.SurfaceCapabilities, width, height uint32) vk.Extent2D {
	if capabilities.CurrentExtent.Width != math.MaxUint32 {
		return capabilities.CurrentExtent
	}
	// Clamp to the value allowed by the GPU.
	minExtent := capabilities.MinImageExtent
	maxExtent := capabilities.MaxImageExtent
	return vk.Extent2D{
		Width:  min(max(width, minExtent.Width), maxExtent.Width),
		Height: min(max(height, minExtent.Height), maxExtent.Height),
	}
}

func chooseImageCount(capabilities vk.SurfaceCapabilities, wanted uint32) uint32 {
	count := max(wanted, capabilities.MinImageCount)
	if capabilities.MaxImageCount > 0 && count > capabilities.MaxImageCount {
		count = capabilities.MaxImageCount
	}
	return count
}

func SwapchainCreate(vc *VulkanContext, config VulkanSwapchainConfig) (*VulkanSwapchain, error) {
	support, err := DeviceQuerySwapchainSupport(vc.Device.PhysicalDevice, vc.Surface)
	if err != nil {
		return nil, err
	}
	vc.Device.SwapchainSupport = support

	swapchain := &VulkanSwapchain{}
	if swapchain.ImageFormat, err = chooseSurfaceFormat(support.Formats, config.Format); err != nil {
		return nil, err
	}
	swapchain.PresentMode = choosePresentMode(support.PresentModes, config.VSync)
	swapchain.Extent = chooseExtent(support.Capabilities, config.Width, config.Height)

	swapchainCreateInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          vc.Surface,
		MinImageCount:    chooseImageCount(support.Capabilities, config.BufferCount),
		ImageFormat:      swapchain.ImageFormat.Format,
		ImageColorSpace:  swapchain.ImageFormat.ColorSpace,
		ImageExtent:      swapchain.Extent,
		ImageArrayLayers: 1,
		// clears go through vkCmdClearColorImage
		ImageUsage:     vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferDstBit),
		PreTransform:   support.Capabilities.CurrentTransform,
		CompositeAlpha: vk.CompositeAlphaOpaqueBit,
		PresentMode:    swapchain.PresentMode,
		Clipped:        vk.True,
		OldSwapchain:   config.OldSwapchain,
	}

	// Setup the queue family indices
	if vc.Device.GraphicsQueueIndex != vc.Device.PresentQueueIndex {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeConcurrent
		swapchainCreateInfo.QueueFamilyIndexCount = 2
		swapchainCreateInfo.PQueueFamilyIndices = []uint32{vc.Device.GraphicsQueueIndex, vc.Device.PresentQueueIndex}
	} else {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeExclusive
	}

	var handle vk.Swapchain
	if err := check("vkCreateSwapchainKHR", vk.CreateSwapchain(vc.logicalDevice(), &swapchainCreateInfo, vc.Allocator, &handle)); err != nil {
		return nil, err
	}
	swapchain.Handle = handle

	var imageCount uint32
	if err := check("vkGetSwapchainImagesKHR", vk.GetSwapchainImages(vc.logicalDevice(), handle, &imageCount, nil)); err != nil {
		swapchain.Destroy(vc)
		return nil, err
	}
	swapchain.Images = make([]vk.Image, imageCount)
	if err := check("vkGetSwapchainImagesKHR", vk.GetSwapchainImages(vc.logicalDevice(), handle, &imageCount, swapchain.Images)); err != nil {
		swapchain.Destroy(vc)
		return nil, err
	}

	core.LogInfo("Swapchain created: %dx%d, %d images, present mode %d.",
		swapchain.Extent.Width, swapchain.Extent.Height, imageCount, swapchain.PresentMode)
	return swapchain, nil
}

// AcquireNextImage returns ErrSwapchainBooting when the swapchain has to be recreated.
func (vs *VulkanSwapchain) AcquireNextImage(vc *VulkanContext, semaphore vk.Semaphore) (uint32, error) {
	var index uint32
	switch res := vk.AcquireNextImage(vc.logicalDevice(), vs.Handle, math.MaxUint64, semaphore, vk.NullFence, &index); res {
	case vk.Success, vk.Suboptimal:
		return index, nil
	case vk.ErrorOutOfDate:
		return 0, core.ErrSwapchainBooting
	default:
		return 0, fmt.Errorf("failed to acquire swapchain image: %s", VulkanResultString(res))
	}
}

// Present queues image index for presentation once wait is signaled.
func (vs *VulkanSwapchain) Present(vc *VulkanContext, wait vk.Semaphore, index uint32) error {
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{wait},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{vs.Handle},
		PImageIndices:      []uint32{index},
	}
	var res vk.Result
	_ = vc.locks.SafeCall(QueueManagement, func() error {
		res = vk.QueuePresent(vc.Device.PresentQueue, &presentInfo)
		return nil
	})
	switch res {
	case vk.Success:
		return nil
	case vk.Suboptimal, vk.ErrorOutOfDate:
		return core.ErrSwapchainBooting
	default:
		return fmt.Errorf("failed to present swapchain image: %s", VulkanResultString(res))
	}
}

// Destroy only destroys the swapchain, its images are owned by it.
func (vs *VulkanSwapchain) Destroy(vc *VulkanContext) {
	if vs.Handle != nil {
		vk.DestroySwapchain(vc.logicalDevice(), vs.Handle, vc.Allocator)
		vs.Handle = nil
	}
	vs.Images = nil
}
