package renderer

import (
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

/**
 * @brief One concrete resource bound at a layout slot.
 */
type BindingSetItem struct {
	Slot    uint32
	Type    metadata.BindingType
	Buffer  Buffer
	Texture Texture
	Sampler Sampler
}

func BindingSetItemConstantBuffer(slot uint32, buffer Buffer) BindingSetItem {
	t := metadata.BindingTypeConstantBuffer
	if buffer != nil && buffer.Desc().IsVolatile {
		t = metadata.BindingTypeVolatileConstantBuffer
	}
	return BindingSetItem{Slot: slot, Type: t, Buffer: buffer}
}

func BindingSetItemTextureSRV(slot uint32, texture Texture) BindingSetItem {
	return BindingSetItem{Slot: slot, Type: metadata.BindingTypeTextureSRV, Texture: texture}
}

func BindingSetItemSampler(slot uint32, sampler Sampler) BindingSetItem {
	return BindingSetItem{Slot: slot, Type: metadata.BindingTypeSampler, Sampler: sampler}
}

type BindingSetDesc struct {
	Bindings []BindingSetItem
}

func (d *BindingSetDesc) AddItem(item BindingSetItem) *BindingSetDesc {
	d.Bindings = append(d.Bindings, item)
	return d
}

type FramebufferDesc struct {
	ColorAttachments []Texture
	DepthAttachment  Texture
}

func (d *FramebufferDesc) AddColorAttachment(texture Texture) *FramebufferDesc {
	d.ColorAttachments = append(d.ColorAttachments, texture)
	return d
}

func (d *FramebufferDesc) SetDepthAttachment(texture Texture) *FramebufferDesc {
	d.DepthAttachment = texture
	return d
}

// FramebufferInfoFromDesc derives formats, samples and size from the attachments.
func FramebufferInfoFromDesc(d FramebufferDesc) metadata.FramebufferInfo {
	info := metadata.FramebufferInfo{SampleCount: 1}
	var first *metadata.TextureDesc
	for _, t := range d.ColorAttachments {
		td := t.Desc()
		info.ColorFormats = append(info.ColorFormats, td.Format)
		if first == nil {
			first = &td
		}
	}
	if d.DepthAttachment != nil {
		td := d.DepthAttachment.Desc()
		info.DepthFormat = td.Format
		if first == nil {
			first = &td
		}
	}
	if first != nil {
		info.Width = first.Width
		info.Height = first.Height
		info.SampleCount = max(first.SampleCount, 1)
		info.SampleQuality = first.SampleQuality
	}
	return info
}

type GraphicsPipelineDesc struct {
	PrimType       metadata.PrimitiveType
	InputLayout    InputLayout
	VS             Shader
	PS             Shader
	RenderState    metadata.RenderState
	BindingLayouts []BindingLayout
	DebugName      string
}

type VertexBufferBinding struct {
	Buffer Buffer
	Slot   uint32
	Offset uint64
}

type IndexBufferBinding struct {
	Buffer Buffer
	Format metadata.Format
	Offset uint32
}

/**
 * @brief Everything a draw needs besides its arguments.
 */
type GraphicsState struct {
	Pipeline      GraphicsPipeline
	Framebuffer   Framebuffer
	Viewport      metadata.ViewportState
	Bindings      []BindingSet
	VertexBuffers []VertexBufferBinding
	IndexBuffer   IndexBufferBinding
}

func (s *GraphicsState) AddBindingSet(set BindingSet) *GraphicsState {
	s.Bindings = append(s.Bindings, set)
	return s
}

func (s *GraphicsState) AddVertexBuffer(binding VertexBufferBinding) *GraphicsState {
	s.VertexBuffers = append(s.VertexBuffers, binding)
	return s
}
