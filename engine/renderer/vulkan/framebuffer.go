package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/renderer"
)

func FramebufferCreate(vc *VulkanContext, renderPass vk.RenderPass, desc renderer.FramebufferDesc, width, height uint32) (vk.Framebuffer, error) {
	views := make([]vk.ImageView, 0, len(desc.ColorAttachments)+1)
	for _, t := range desc.ColorAttachments {
		views = append(views, t.(*Texture).image.View)
	}
	if desc.DepthAttachment != nil {
		views = append(views, desc.DepthAttachment.(*Texture).image.View)
	}

	createInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      renderPass,
		AttachmentCount: uint32(len(views)),
		PAttachments:    views,
		Width:           width,
		Height:          height,
		Layers:          1,
	}

	var handle vk.Framebuffer
	if err := check("vkCreateFramebuffer", vk.CreateFramebuffer(vc.logicalDevice(), &createInfo, vc.Allocator, &handle)); err != nil {
		return nil, err
	}
	return handle, nil
}

func FramebufferDestroy(vc *VulkanContext, handle vk.Framebuffer) {
	if handle != nil {
		vk.DestroyFramebuffer(vc.logicalDevice(), handle, vc.Allocator)
	}
}
