package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

/**
 * @brief Bookkeeping shared by every object the device hands out. The
 * Vulkan handles are destroyed by garbage collection once the last
 * submission that used the object has completed.
 */
type base struct {
	device   *Device
	self     renderer.Resource
	lastUse  uint64
	released bool
	destroy  func(vc *VulkanContext)
}

func (b *base) init(d *Device, self renderer.Resource, destroy func(vc *VulkanContext)) {
	b.device = d
	b.self = self
	b.destroy = destroy
	d.track(b)
}

func (b *base) Release() {
	b.device.deferRelease(b)
}

func (b *base) getBase() *base {
	return b
}

type baseHolder interface {
	getBase() *base
}

// volatileVersion is pending until the list that wrote it is executed.
const volatileVersionPending = ^uint64(0)

type Buffer struct {
	base
	desc   metadata.BufferDesc
	buffer *VulkanBuffer

	// volatile buffers: MaxVersions slots of stride bytes in one mapped buffer
	stride   uint64
	current  int
	versions []uint64
}

func (b *Buffer) Desc() metadata.BufferDesc {
	return b.desc
}

// dynamicOffset is the offset of the version a draw recorded now reads.
func (b *Buffer) dynamicOffset() uint32 {
	return uint32(uint64(b.current) * b.stride)
}

type Texture struct {
	base
	desc  metadata.TextureDesc
	image *VulkanImage
	// set until the first barrier moves the image out of VK_IMAGE_LAYOUT_UNDEFINED
	layoutPending bool
}

func (t *Texture) Desc() metadata.TextureDesc {
	return t.desc
}

type Sampler struct {
	base
	desc   metadata.SamplerDesc
	handle vk.Sampler
}

func (s *Sampler) Desc() metadata.SamplerDesc {
	return s.desc
}

type Shader struct {
	base
	desc   metadata.ShaderDesc
	module vk.ShaderModule
}

func (s *Shader) Desc() metadata.ShaderDesc {
	return s.desc
}

type InputLayout struct {
	base
	attributes []metadata.VertexAttributeDesc
	bindings   []vk.VertexInputBindingDescription
	locations  []vk.VertexInputAttributeDescription
}

func (l *InputLayout) Attributes() []metadata.VertexAttributeDesc {
	return l.attributes
}

type BindingLayout struct {
	base
	desc   metadata.BindingLayoutDesc
	handle vk.DescriptorSetLayout
}

func (l *BindingLayout) Desc() metadata.BindingLayoutDesc {
	return l.desc
}

type BindingSet struct {
	base
	desc   renderer.BindingSetDesc
	layout *BindingLayout
	handle vk.DescriptorSet
	pool   vk.DescriptorPool
	// volatile buffers in binding number order, matching the dynamic offsets
	volatiles []*Buffer
}

func (s *BindingSet) Desc() renderer.BindingSetDesc {
	return s.desc
}

func (s *BindingSet) Layout() renderer.BindingLayout {
	return s.layout
}

type Framebuffer struct {
	base
	desc       renderer.FramebufferDesc
	info       metadata.FramebufferInfo
	renderPass vk.RenderPass
	handle     vk.Framebuffer
}

func (f *Framebuffer) Desc() renderer.FramebufferDesc {
	return f.desc
}

func (f *Framebuffer) Info() metadata.FramebufferInfo {
	return f.info
}

type GraphicsPipeline struct {
	base
	desc   renderer.GraphicsPipelineDesc
	fbInfo metadata.FramebufferInfo
	*VulkanPipeline
	// descriptor set number of each binding layout, in desc order
	setNumbers []uint32
}

func (p *GraphicsPipeline) Desc() renderer.GraphicsPipelineDesc {
	return p.desc
}

func (p *GraphicsPipeline) FramebufferInfo() metadata.FramebufferInfo {
	return p.fbInfo
}
