package headless

import (
	"github.com/google/uuid"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

type base struct {
	ID        uuid.UUID
	device    *Device
	self      renderer.Resource
	lastUse   uint64
	released  bool
	destroyed bool
}

func (b *base) init(d *Device, self renderer.Resource) {
	b.ID = uuid.New()
	b.device = d
	b.self = self
	d.track(b)
}

func (b *base) Release() {
	b.device.deferRelease(b)
}

// IsDestroyed reports whether garbage collection has freed the object.
func (b *base) IsDestroyed() bool {
	b.device.mu.Lock()
	defer b.device.mu.Unlock()
	return b.destroyed
}

type bufferVersion struct {
	data       []byte
	submission uint64
}

type Buffer struct {
	base
	desc metadata.BufferDesc
	data []byte
	// volatile buffers keep every version a pending submission may still read
	versions []bufferVersion
}

func (b *Buffer) Desc() metadata.BufferDesc {
	return b.desc
}

// Data returns the buffer contents. For volatile buffers it is the latest version.
func (b *Buffer) Data() []byte {
	b.device.mu.Lock()
	defer b.device.mu.Unlock()
	if b.desc.IsVolatile {
		if len(b.versions) == 0 {
			return nil
		}
		return b.versions[len(b.versions)-1].data
	}
	return b.data
}

// LiveVersions is the number of volatile versions not yet retired.
func (b *Buffer) LiveVersions() int {
	b.device.mu.Lock()
	defer b.device.mu.Unlock()
	return len(b.versions)
}

type Texture struct {
	base
	desc       metadata.TextureDesc
	data       []byte
	clearColor metadata.Color
	clearDepth float32
}

func (t *Texture) Desc() metadata.TextureDesc {
	return t.desc
}

// Data returns the tightly packed contents of mip 0.
func (t *Texture) Data() []byte {
	t.device.mu.Lock()
	defer t.device.mu.Unlock()
	return t.data
}

func (t *Texture) ClearColor() metadata.Color {
	t.device.mu.Lock()
	defer t.device.mu.Unlock()
	return t.clearColor
}

func (t *Texture) ClearDepth() float32 {
	t.device.mu.Lock()
	defer t.device.mu.Unlock()
	return t.clearDepth
}

type Sampler struct {
	base
	desc metadata.SamplerDesc
}

func (s *Sampler) Desc() metadata.SamplerDesc {
	return s.desc
}

type Shader struct {
	base
	desc   metadata.ShaderDesc
	binary []byte
}

func (s *Shader) Desc() metadata.ShaderDesc {
	return s.desc
}

type InputLayout struct {
	base
	attributes []metadata.VertexAttributeDesc
}

func (l *InputLayout) Attributes() []metadata.VertexAttributeDesc {
	return l.attributes
}

type BindingLayout struct {
	base
	desc metadata.BindingLayoutDesc
}

func (l *BindingLayout) Desc() metadata.BindingLayoutDesc {
	return l.desc
}

type BindingSet struct {
	base
	desc   renderer.BindingSetDesc
	layout renderer.BindingLayout
}

func (s *BindingSet) Desc() renderer.BindingSetDesc {
	return s.desc
}

func (s *BindingSet) Layout() renderer.BindingLayout {
	return s.layout
}

type Framebuffer struct {
	base
	desc renderer.FramebufferDesc
	info metadata.FramebufferInfo
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
}

func (p *GraphicsPipeline) Desc() renderer.GraphicsPipelineDesc {
	return p.desc
}

func (p *GraphicsPipeline) FramebufferInfo() metadata.FramebufferInfo {
	return p.fbInfo
}
