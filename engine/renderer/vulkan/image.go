package vulkan

import (
	vk "github.com/goki/vulkan"
)

type VulkanImage struct {
	Handle vk.Image
	Memory vk.DeviceMemory
	View   vk.ImageView
	Width  uint32
	Height uint32
	Format vk.Format
	// swapchain images are owned by the swapchain, only the view is ours
	external bool
}

type VulkanImageConfig struct {
	Width       uint32
	Height      uint32
	MipLevels   uint32
	Format      vk.Format
	Samples     vk.SampleCountFlagBits
	Usage       vk.ImageUsageFlags
	AspectFlags vk.ImageAspectFlags
}

func ImageCreate(vc *VulkanContext, config VulkanImageConfig) (*VulkanImage, error) {
	image := &VulkanImage{Width: config.Width, Height: config.Height, Format: config.Format}

	imageCreateInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Extent: vk.Extent3D{
			Width:  config.Width,
			Height: config.Height,
			Depth:  1,
		},
		MipLevels:     max(config.MipLevels, 1),
		ArrayLayers:   1,
		Format:        config.Format,
		Tiling:        vk.ImageTilingOptimal,
		InitialLayout: vk.ImageLayoutUndefined,
		Usage:         config.Usage,
		Samples:       config.Samples,
		SharingMode:   vk.SharingModeExclusive,
	}

	var handle vk.Image
	if err := check("vkCreateImage", vk.CreateImage(vc.logicalDevice(), &imageCreateInfo, vc.Allocator, &handle)); err != nil {
		return nil, err
	}
	image.Handle = handle

	var memoryRequirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(vc.logicalDevice(), handle, &memoryRequirements)
	memoryRequirements.Deref()

	memoryType, err := vc.FindMemoryIndex(memoryRequirements.MemoryTypeBits, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		image.Destroy(vc)
		return nil, err
	}
	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memoryRequirements.Size,
		MemoryTypeIndex: memoryType,
	}
	var memory vk.DeviceMemory
	if err := check("vkAllocateMemory", vk.AllocateMemory(vc.logicalDevice(), &allocateInfo, vc.Allocator, &memory)); err != nil {
		image.Destroy(vc)
		return nil, err
	}
	image.Memory = memory

	if err := check("vkBindImageMemory", vk.BindImageMemory(vc.logicalDevice(), handle, memory, 0)); err != nil {
		image.Destroy(vc)
		return nil, err
	}

	if err := image.createView(vc, config.AspectFlags); err != nil {
		image.Destroy(vc)
		return nil, err
	}
	return image, nil
}

// ImageWrap creates a view for an image owned by someone else, e.g. a swapchain image.
func ImageWrap(vc *VulkanContext, handle vk.Image, format vk.Format, width, height uint32) (*VulkanImage, error) {
	image := &VulkanImage{Handle: handle, Width: width, Height: height, Format: format, external: true}
	if err := image.createView(vc, vk.ImageAspectFlags(vk.ImageAspectColorBit)); err != nil {
		return nil, err
	}
	return image, nil
}

func (vi *VulkanImage) createView(vc *VulkanContext, aspectFlags vk.ImageAspectFlags) error {
	viewCreateInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    vi.Handle,
		ViewType: vk.ImageViewType2d,
		Format:   vi.Format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     aspectFlags,
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}
	var view vk.ImageView
	if err := check("vkCreateImageView", vk.CreateImageView(vc.logicalDevice(), &viewCreateInfo, vc.Allocator, &view)); err != nil {
		return err
	}
	vi.View = view
	return nil
}

func (vi *VulkanImage) Destroy(vc *VulkanContext) {
	device := vc.logicalDevice()
	if vi.View != nil {
		vk.DestroyImageView(device, vi.View, vc.Allocator)
		vi.View = nil
	}
	if vi.external {
		vi.Handle = nil
		return
	}
	if vi.Memory != nil {
		vk.FreeMemory(device, vi.Memory, vc.Allocator)
		vi.Memory = nil
	}
	if vi.Handle != nil {
		vk.DestroyImage(device, vi.Handle, vc.Allocator)
		vi.Handle = nil
	}
}
