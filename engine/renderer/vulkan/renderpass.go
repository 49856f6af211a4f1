package vulkan

import (
	"fmt"
	"strings"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

/**
 * @brief Render passes load and store every attachment. Clears are
 * explicit commands, and layouts outside the pass are owned by the state
 * tracker, so a pass only depends on formats and sample count and can be
 * shared by every framebuffer and pipeline with the same info.
 */
type VulkanRenderPassCache struct {
	passes map[string]vk.RenderPass
}

func renderPassKey(info metadata.FramebufferInfo) string {
	var sb strings.Builder
	for _, f := range info.ColorFormats {
		fmt.Fprintf(&sb, "c%d;", f)
	}
	fmt.Fprintf(&sb, "d%d;s%d", info.DepthFormat, max(info.SampleCount, 1))
	return sb.String()
}

func (rc *VulkanRenderPassCache) Get(vc *VulkanContext, info metadata.FramebufferInfo) (vk.RenderPass, error) {
	if rc.passes == nil {
		rc.passes = make(map[string]vk.RenderPass)
	}
	key := renderPassKey(info)
	if rp, ok := rc.passes[key]; ok {
		return rp, nil
	}
	rp, err := RenderpassCreate(vc, info)
	if err != nil {
		return nil, err
	}
	rc.passes[key] = rp
	return rp, nil
}

func (rc *VulkanRenderPassCache) Destroy(vc *VulkanContext) {
	for key, rp := range rc.passes {
		vk.DestroyRenderPass(vc.logicalDevice(), rp, vc.Allocator)
		delete(rc.passes, key)
	}
}

func RenderpassCreate(vc *VulkanContext, info metadata.FramebufferInfo) (vk.RenderPass, error) {
	samples := sampleCountBits(info.SampleCount)
	attachments := make([]vk.AttachmentDescription, 0, len(info.ColorFormats)+1)
	colorReferences := make([]vk.AttachmentReference, 0, len(info.ColorFormats))

	for _, f := range info.ColorFormats {
		colorReferences = append(colorReferences, vk.AttachmentReference{
			Attachment: uint32(len(attachments)),
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		})
		attachments = append(attachments, vk.AttachmentDescription{
			Format:         convertFormat(f),
			Samples:        samples,
			LoadOp:         vk.AttachmentLoadOpLoad,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutColorAttachmentOptimal,
			FinalLayout:    vk.ImageLayoutColorAttachmentOptimal,
		})
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: uint32(len(colorReferences)),
		PColorAttachments:    colorReferences,
	}

	if info.DepthFormat != metadata.FormatUnknown {
		depthReference := vk.AttachmentReference{
			Attachment: uint32(len(attachments)),
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
		stencilLoad := vk.AttachmentLoadOpDontCare
		stencilStore := vk.AttachmentStoreOpDontCare
		if metadata.GetFormatInfo(info.DepthFormat).HasStencil {
			stencilLoad = vk.AttachmentLoadOpLoad
			stencilStore = vk.AttachmentStoreOpStore
		}
		attachments = append(attachments, vk.AttachmentDescription{
			Format:         convertFormat(info.DepthFormat),
			Samples:        samples,
			LoadOp:         vk.AttachmentLoadOpLoad,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  stencilLoad,
			StencilStoreOp: stencilStore,
			InitialLayout:  vk.ImageLayoutDepthStencilAttachmentOptimal,
			FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
		})
		subpass.PDepthStencilAttachment = &depthReference
	}

	createInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
	}

	var renderPass vk.RenderPass
	if err := check("vkCreateRenderPass", vk.CreateRenderPass(vc.logicalDevice(), &createInfo, vc.Allocator, &renderPass)); err != nil {
		return nil, err
	}
	return renderPass, nil
}

func RenderpassBegin(commandBuffer *VulkanCommandBuffer, fb *Framebuffer) {
	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  fb.renderPass,
		Framebuffer: fb.handle,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: vk.Extent2D{Width: fb.info.Width, Height: fb.info.Height},
		},
	}
	vk.CmdBeginRenderPass(commandBuffer.Handle, &beginInfo, vk.SubpassContentsInline)
	commandBuffer.State = COMMAND_BUFFER_STATE_IN_RENDER_PASS
}

func RenderpassEnd(commandBuffer *VulkanCommandBuffer) {
	vk.CmdEndRenderPass(commandBuffer.Handle)
	commandBuffer.State = COMMAND_BUFFER_STATE_RECORDING
}
