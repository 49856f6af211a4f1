package webgpu

import (
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

/**
 * @brief Bookkeeping shared by every object the device hands out. The
 * wgpu objects are released by garbage collection once the last
 * submission that used the object has completed.
 */
type base struct {
	device   *Device
	self     renderer.Resource
	lastUse  uint64
	released bool
	destroy  func()
}

func (b *base) init(d *Device, self renderer.Resource, destroy func()) {
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

// volatileVersionPending marks a slot claimed by a list that was not executed yet.
const volatileVersionPending = ^uint64(0)

type Buffer struct {
	base
	desc   metadata.BufferDesc
	buffer *wgpu.Buffer

	// volatile buffers: MaxVersions slots of stride bytes, bound with a dynamic offset
	stride   uint64
	current  int
	versions []uint64
	// contents of the latest version, partial writes start from it
	shadow []byte
}

func (b *Buffer) Desc() metadata.BufferDesc {
	return b.desc
}

func (b *Buffer) dynamicOffset() uint32 {
	return uint32(uint64(b.current) * b.stride)
}

type Texture struct {
	base
	desc    metadata.TextureDesc
	texture *wgpu.Texture
	view    *wgpu.TextureView
	// the surface owns the texture of a back buffer, it changes every frame
	isBackBuffer bool
}

func (t *Texture) Desc() metadata.TextureDesc {
	return t.desc
}

type Sampler struct {
	base
	desc    metadata.SamplerDesc
	sampler *wgpu.Sampler
}

func (s *Sampler) Desc() metadata.SamplerDesc {
	return s.desc
}

type Shader struct {
	base
	desc   metadata.ShaderDesc
	module *wgpu.ShaderModule
}

func (s *Shader) Desc() metadata.ShaderDesc {
	return s.desc
}

type InputLayout struct {
	base
	attributes []metadata.VertexAttributeDesc
	buffers    []wgpu.VertexBufferLayout
}

func (l *InputLayout) Attributes() []metadata.VertexAttributeDesc {
	return l.attributes
}

type BindingLayout struct {
	base
	desc   metadata.BindingLayoutDesc
	handle *wgpu.BindGroupLayout
}

func (l *BindingLayout) Desc() metadata.BindingLayoutDesc {
	return l.desc
}

type BindingSet struct {
	base
	desc   renderer.BindingSetDesc
	layout *BindingLayout
	handle *wgpu.BindGroup
	// in binding number order, matching the dynamic offsets
	volatiles []*Buffer
}

func (s *BindingSet) Desc() renderer.BindingSetDesc {
	return s.desc
}

func (s *BindingSet) Layout() renderer.BindingLayout {
	return s.layout
}

// Framebuffer only remembers its attachments, WebGPU takes them when a render pass begins.
type Framebuffer struct {
	base
	desc  renderer.FramebufferDesc
	info  metadata.FramebufferInfo
	color []*Texture
	depth *Texture
}

func (f *Framebuffer) Desc() renderer.FramebufferDesc {
	return f.desc
}

func (f *Framebuffer) Info() metadata.FramebufferInfo {
	return f.info
}

type GraphicsPipeline struct {
	base
	desc     renderer.GraphicsPipelineDesc
	fbInfo   metadata.FramebufferInfo
	layout   *wgpu.PipelineLayout
	pipeline *wgpu.RenderPipeline
	// bind group index of each binding layout, in desc order
	groups []uint32
}

func (p *GraphicsPipeline) Desc() renderer.GraphicsPipelineDesc {
	return p.desc
}

func (p *GraphicsPipeline) FramebufferInfo() metadata.FramebufferInfo {
	return p.fbInfo
}
