package webgpu

import (
	"fmt"
	"sort"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

var textureFormats = map[metadata.Format]wgpu.TextureFormat{
	metadata.FormatR8UNorm:     wgpu.TextureFormatR8Unorm,
	metadata.FormatRG8UNorm:    wgpu.TextureFormatRG8Unorm,
	metadata.FormatRGBA8UNorm:  wgpu.TextureFormatRGBA8Unorm,
	metadata.FormatSRGBA8UNorm: wgpu.TextureFormatRGBA8UnormSrgb,
	metadata.FormatBGRA8UNorm:  wgpu.TextureFormatBGRA8Unorm,
	metadata.FormatSBGRA8UNorm: wgpu.TextureFormatBGRA8UnormSrgb,
	metadata.FormatR16UInt:     wgpu.TextureFormatR16Uint,
	metadata.FormatR32UInt:     wgpu.TextureFormatR32Uint,
	metadata.FormatRG32Float:   wgpu.TextureFormatRG32Float,
	metadata.FormatRGBA32Float: wgpu.TextureFormatRGBA32Float,
	metadata.FormatD24S8:       wgpu.TextureFormatDepth24PlusStencil8,
	metadata.FormatD32:         wgpu.TextureFormatDepth32Float,
}

func convertFormat(f metadata.Format) wgpu.TextureFormat {
	if tf, ok := textureFormats[f]; ok {
		return tf
	}
	return wgpu.TextureFormatUndefined
}

func formatFromWebGPU(tf wgpu.TextureFormat) metadata.Format {
	for f, candidate := range textureFormats {
		if candidate == tf {
			return f
		}
	}
	return metadata.FormatUnknown
}

func convertVertexFormat(f metadata.Format) (wgpu.VertexFormat, error) {
	switch f {
	case metadata.FormatRG32Float:
		return wgpu.VertexFormatFloat32x2, nil
	case metadata.FormatRGB32Float:
		return wgpu.VertexFormatFloat32x3, nil
	case metadata.FormatRGBA32Float:
		return wgpu.VertexFormatFloat32x4, nil
	case metadata.FormatR32UInt:
		return wgpu.VertexFormatUint32, nil
	}
	return wgpu.VertexFormatUndefined, fmt.Errorf("format %s cannot be used as a vertex attribute", f)
}

func convertIndexFormat(f metadata.Format) (wgpu.IndexFormat, error) {
	switch f {
	case metadata.FormatR16UInt:
		return wgpu.IndexFormatUint16, nil
	case metadata.FormatR32UInt:
		return wgpu.IndexFormatUint32, nil
	}
	return wgpu.IndexFormatUndefined, fmt.Errorf("format %s cannot be used for indices", f)
}

func convertCompareFunc(c metadata.ComparisonFunc) wgpu.CompareFunction {
	switch c {
	case metadata.ComparisonFuncNever:
		return wgpu.CompareFunctionNever
	case metadata.ComparisonFuncLess:
		return wgpu.CompareFunctionLess
	case metadata.ComparisonFuncEqual:
		return wgpu.CompareFunctionEqual
	case metadata.ComparisonFuncLessOrEqual:
		return wgpu.CompareFunctionLessEqual
	case metadata.ComparisonFuncGreater:
		return wgpu.CompareFunctionGreater
	case metadata.ComparisonFuncNotEqual:
		return wgpu.CompareFunctionNotEqual
	case metadata.ComparisonFuncGreaterOrEqual:
		return wgpu.CompareFunctionGreaterEqual
	}
	return wgpu.CompareFunctionAlways
}

func convertCullMode(c metadata.RasterCullMode) wgpu.CullMode {
	switch c {
	case metadata.RasterCullModeBack:
		return wgpu.CullModeBack
	case metadata.RasterCullModeFront:
		return wgpu.CullModeFront
	}
	return wgpu.CullModeNone
}

func convertTopology(p metadata.PrimitiveType) wgpu.PrimitiveTopology {
	switch p {
	case metadata.PrimitiveTypeTriangleStrip:
		return wgpu.PrimitiveTopologyTriangleStrip
	case metadata.PrimitiveTypeLineList:
		return wgpu.PrimitiveTopologyLineList
	case metadata.PrimitiveTypePointList:
		return wgpu.PrimitiveTopologyPointList
	}
	return wgpu.PrimitiveTopologyTriangleList
}

func convertAddressMode(r metadata.TextureRepeat) wgpu.AddressMode {
	switch r {
	case metadata.TextureRepeatMirroredRepeat:
		return wgpu.AddressModeMirrorRepeat
	case metadata.TextureRepeatClampToEdge, metadata.TextureRepeatClampToBorder:
		// WebGPU has no border colour
		return wgpu.AddressModeClampToEdge
	}
	return wgpu.AddressModeRepeat
}

func convertFilter(f metadata.TextureFilter) wgpu.FilterMode {
	if f == metadata.TextureFilterModeLinear {
		return wgpu.FilterModeLinear
	}
	return wgpu.FilterModeNearest
}

func convertMipFilter(f metadata.TextureFilter) wgpu.MipmapFilterMode {
	if f == metadata.TextureFilterModeLinear {
		return wgpu.MipmapFilterModeLinear
	}
	return wgpu.MipmapFilterModeNearest
}

// samplerDescriptor turns anisotropy off unless every filter is linear, which WebGPU requires.
func samplerDescriptor(desc metadata.SamplerDesc) wgpu.SamplerDescriptor {
	anisotropy := uint16(1)
	allLinear := desc.FilterMinify == metadata.TextureFilterModeLinear &&
		desc.FilterMagnify == metadata.TextureFilterModeLinear &&
		desc.FilterMip == metadata.TextureFilterModeLinear
	if allLinear && desc.MaxAnisotropy > 1 {
		anisotropy = uint16(min(desc.MaxAnisotropy, 16))
	}
	return wgpu.SamplerDescriptor{
		Label:         desc.DebugName,
		AddressModeU:  convertAddressMode(desc.RepeatU),
		AddressModeV:  convertAddressMode(desc.RepeatV),
		AddressModeW:  convertAddressMode(desc.RepeatW),
		MagFilter:     convertFilter(desc.FilterMagnify),
		MinFilter:     convertFilter(desc.FilterMinify),
		MipmapFilter:  convertMipFilter(desc.FilterMip),
		LodMinClamp:   0,
		LodMaxClamp:   32,
		MaxAnisotropy: anisotropy,
	}
}

func convertVisibility(s metadata.ShaderType) wgpu.ShaderStage {
	var stages wgpu.ShaderStage
	if s&metadata.ShaderTypeVertex != 0 {
		stages |= wgpu.ShaderStageVertex
	}
	if s&metadata.ShaderTypePixel != 0 {
		stages |= wgpu.ShaderStageFragment
	}
	return stages
}

func bindingNumber(item metadata.BindingLayoutItem) uint32 {
	switch item.Type {
	case metadata.BindingTypeTextureSRV:
		return TEXTURE_SRV_BINDING_OFFSET + item.Slot
	case metadata.BindingTypeSampler:
		return SAMPLER_BINDING_OFFSET + item.Slot
	}
	return CONSTANT_BUFFER_BINDING_OFFSET + item.Slot
}

/**
 * @brief Builds the bind group layout entries of a binding layout, sorted
 * by binding number. Dynamic offsets are passed in that order, so the
 * volatile constant buffers of a set follow it as well.
 */
func bindGroupLayoutEntries(desc metadata.BindingLayoutDesc) []wgpu.BindGroupLayoutEntry {
	visibility := convertVisibility(desc.Visibility)
	entries := make([]wgpu.BindGroupLayoutEntry, 0, len(desc.Bindings))
	for _, item := range desc.Bindings {
		entry := wgpu.BindGroupLayoutEntry{
			Binding:    bindingNumber(item),
			Visibility: visibility,
		}
		switch item.Type {
		case metadata.BindingTypeConstantBuffer:
			entry.Buffer = wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeUniform}
		case metadata.BindingTypeVolatileConstantBuffer:
			entry.Buffer = wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeUniform, HasDynamicOffset: true}
		case metadata.BindingTypeTextureSRV:
			entry.Texture = wgpu.TextureBindingLayout{
				SampleType:    wgpu.TextureSampleTypeFloat,
				ViewDimension: wgpu.TextureViewDimension2D,
			}
		case metadata.BindingTypeSampler:
			entry.Sampler = wgpu.SamplerBindingLayout{Type: wgpu.SamplerBindingTypeFiltering}
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Binding < entries[j].Binding })
	return entries
}

// vertexBufferLayouts groups attributes by vertex buffer slot. Shader locations follow attribute order.
func vertexBufferLayouts(attributes []metadata.VertexAttributeDesc) ([]wgpu.VertexBufferLayout, error) {
	maxSlot := -1
	for _, a := range attributes {
		maxSlot = max(maxSlot, int(a.BufferIndex))
	}
	layouts := make([]wgpu.VertexBufferLayout, maxSlot+1)
	for location, a := range attributes {
		format, err := convertVertexFormat(a.Format)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", a.Name, err)
		}
		l := &layouts[a.BufferIndex]
		if len(l.Attributes) > 0 && l.ArrayStride != uint64(a.ElementStride) {
			return nil, fmt.Errorf("attribute %s disagrees on the stride of buffer %d", a.Name, a.BufferIndex)
		}
		l.ArrayStride = uint64(a.ElementStride)
		l.StepMode = wgpu.VertexStepModeVertex
		l.Attributes = append(l.Attributes, wgpu.VertexAttribute{
			Format:         format,
			Offset:         uint64(a.Offset),
			ShaderLocation: uint32(location),
		})
	}
	return layouts, nil
}

func alignUp(value, alignment uint64) uint64 {
	return (value + alignment - 1) / alignment * alignment
}

/**
 * @brief Repacks rows of rowPitch bytes into the row alignment the copy
 * engine needs. Returns the packed data and its row pitch.
 */
func packRows(data []byte, rowPitch, tightPitch, height uint32) ([]byte, uint32) {
	aligned := uint32(alignUp(uint64(tightPitch), uint64(WEBGPU_COPY_ROW_ALIGNMENT)))
	out := make([]byte, uint64(aligned)*uint64(height))
	for y := uint32(0); y < height; y++ {
		src := data[uint64(y)*uint64(rowPitch):]
		copy(out[uint64(y)*uint64(aligned):], src[:tightPitch])
	}
	return out, aligned
}

// padCopy pads data to the queue write alignment.
func padCopy(data []byte) []byte {
	size := alignUp(uint64(len(data)), WEBGPU_COPY_SIZE_ALIGNMENT)
	if size == uint64(len(data)) {
		return data
	}
	out := make([]byte, size)
	copy(out, data)
	return out
}

func chooseSurfaceFormat(formats []wgpu.TextureFormat, wanted metadata.Format) (wgpu.TextureFormat, error) {
	if len(formats) == 0 {
		return wgpu.TextureFormatUndefined, fmt.Errorf("surface reports no formats")
	}
	target := convertFormat(wanted)
	for _, f := range formats {
		if f == target {
			return f, nil
		}
	}
	fallback := wgpu.TextureFormatBGRA8Unorm
	if metadata.GetFormatInfo(wanted).IsSRGB {
		fallback = wgpu.TextureFormatBGRA8UnormSrgb
	}
	for _, f := range formats {
		if f == fallback {
			return f, nil
		}
	}
	return formats[0], nil
}

// choosePresentMode mirrors the Vulkan swapchain: FIFO with vsync, else mailbox, then immediate.
func choosePresentMode(modes []wgpu.PresentMode, vsync bool) wgpu.PresentMode {
	if vsync {
		return wgpu.PresentModeFifo
	}
	for _, wanted := range []wgpu.PresentMode{wgpu.PresentModeMailbox, wgpu.PresentModeImmediate} {
		for _, mode := range modes {
			if mode == wanted {
				return mode
			}
		}
	}
	return wgpu.PresentModeFifo
}
