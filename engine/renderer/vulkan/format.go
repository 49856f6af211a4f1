package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

var formatMapping = map[metadata.Format]vk.Format{
	metadata.FormatR8UNorm:     vk.FormatR8Unorm,
	metadata.FormatRG8UNorm:    vk.FormatR8g8Unorm,
	metadata.FormatRGBA8UNorm:  vk.FormatR8g8b8a8Unorm,
	metadata.FormatSRGBA8UNorm: vk.FormatR8g8b8a8Srgb,
	metadata.FormatBGRA8UNorm:  vk.FormatB8g8r8a8Unorm,
	metadata.FormatSBGRA8UNorm: vk.FormatB8g8r8a8Srgb,
	metadata.FormatR16UInt:     vk.FormatR16Uint,
	metadata.FormatR32UInt:     vk.FormatR32Uint,
	metadata.FormatRG32Float:   vk.FormatR32g32Sfloat,
	metadata.FormatRGB32Float:  vk.FormatR32g32b32Sfloat,
	metadata.FormatRGBA32Float: vk.FormatR32g32b32a32Sfloat,
	metadata.FormatD24S8:       vk.FormatD24UnormS8Uint,
	metadata.FormatD32:         vk.FormatD32Sfloat,
}

func convertFormat(f metadata.Format) vk.Format {
	if vf, ok := formatMapping[f]; ok {
		return vf
	}
	return vk.FormatUndefined
}

// formatFromVulkan maps a surface format back, FormatUnknown when it has no equivalent.
func formatFromVulkan(vf vk.Format) metadata.Format {
	for f, v := range formatMapping {
		if v == vf {
			return f
		}
	}
	return metadata.FormatUnknown
}

func convertIndexType(f metadata.Format) vk.IndexType {
	if f == metadata.FormatR16UInt {
		return vk.IndexTypeUint16
	}
	return vk.IndexTypeUint32
}

func aspectMask(f metadata.Format) vk.ImageAspectFlags {
	info := metadata.GetFormatInfo(f)
	if !info.HasDepth {
		return vk.ImageAspectFlags(vk.ImageAspectColorBit)
	}
	mask := vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	if info.HasStencil {
		mask |= vk.ImageAspectFlags(vk.ImageAspectStencilBit)
	}
	return mask
}

func sampleCountBits(count uint32) vk.SampleCountFlagBits {
	switch count {
	case 2:
		return vk.SampleCount2Bit
	case 4:
		return vk.SampleCount4Bit
	case 8:
		return vk.SampleCount8Bit
	}
	return vk.SampleCount1Bit
}

/**
 * @brief How a resource state translates into a pipeline barrier.
 */
type stateMapping struct {
	state  metadata.ResourceState
	stage  vk.PipelineStageFlagBits
	access vk.AccessFlagBits
	layout vk.ImageLayout
}

var stateMappings = []stateMapping{
	{metadata.ResourceStateCommon, vk.PipelineStageTopOfPipeBit, 0, vk.ImageLayoutGeneral},
	{metadata.ResourceStateConstantBuffer, vk.PipelineStageVertexShaderBit | vk.PipelineStageFragmentShaderBit, vk.AccessUniformReadBit, vk.ImageLayoutUndefined},
	{metadata.ResourceStateVertexBuffer, vk.PipelineStageVertexInputBit, vk.AccessVertexAttributeReadBit, vk.ImageLayoutUndefined},
	{metadata.ResourceStateIndexBuffer, vk.PipelineStageVertexInputBit, vk.AccessIndexReadBit, vk.ImageLayoutUndefined},
	{metadata.ResourceStateShaderResource, vk.PipelineStageVertexShaderBit | vk.PipelineStageFragmentShaderBit, vk.AccessShaderReadBit, vk.ImageLayoutShaderReadOnlyOptimal},
	{metadata.ResourceStateRenderTarget, vk.PipelineStageColorAttachmentOutputBit, vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit, vk.ImageLayoutColorAttachmentOptimal},
	{metadata.ResourceStateDepthWrite, vk.PipelineStageEarlyFragmentTestsBit | vk.PipelineStageLateFragmentTestsBit, vk.AccessDepthStencilAttachmentReadBit | vk.AccessDepthStencilAttachmentWriteBit, vk.ImageLayoutDepthStencilAttachmentOptimal},
	{metadata.ResourceStateDepthRead, vk.PipelineStageEarlyFragmentTestsBit | vk.PipelineStageLateFragmentTestsBit, vk.AccessDepthStencilAttachmentReadBit, vk.ImageLayoutDepthStencilReadOnlyOptimal},
	{metadata.ResourceStateCopyDest, vk.PipelineStageTransferBit, vk.AccessTransferWriteBit, vk.ImageLayoutTransferDstOptimal},
	{metadata.ResourceStateCopySource, vk.PipelineStageTransferBit, vk.AccessTransferReadBit, vk.ImageLayoutTransferSrcOptimal},
	{metadata.ResourceStatePresent, vk.PipelineStageBottomOfPipeBit, 0, vk.ImageLayoutPresentSrc},
}

/**
 * @brief Combines the stage and access masks of every bit in state. The
 * layout is the one of the last image-relevant bit, which is enough as
 * textures only ever sit in a single state.
 */
func convertResourceState(state metadata.ResourceState) (vk.PipelineStageFlags, vk.AccessFlags, vk.ImageLayout) {
	var stages vk.PipelineStageFlags
	var access vk.AccessFlags
	layout := vk.ImageLayoutUndefined
	for _, m := range stateMappings {
		if state&m.state == 0 {
			continue
		}
		stages |= vk.PipelineStageFlags(m.stage)
		access |= vk.AccessFlags(m.access)
		if m.layout != vk.ImageLayoutUndefined {
			layout = m.layout
		}
	}
	if stages == 0 {
		stages = vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
	}
	return stages, access, layout
}

func convertFilter(f metadata.TextureFilter) vk.Filter {
	if f == metadata.TextureFilterModeNearest {
		return vk.FilterNearest
	}
	return vk.FilterLinear
}

func convertMipmapMode(f metadata.TextureFilter) vk.SamplerMipmapMode {
	if f == metadata.TextureFilterModeNearest {
		return vk.SamplerMipmapModeNearest
	}
	return vk.SamplerMipmapModeLinear
}

func convertAddressMode(r metadata.TextureRepeat) vk.SamplerAddressMode {
	switch r {
	case metadata.TextureRepeatMirroredRepeat:
		return vk.SamplerAddressModeMirroredRepeat
	case metadata.TextureRepeatClampToEdge:
		return vk.SamplerAddressModeClampToEdge
	case metadata.TextureRepeatClampToBorder:
		return vk.SamplerAddressModeClampToBorder
	}
	return vk.SamplerAddressModeRepeat
}

func convertCompareOp(f metadata.ComparisonFunc) vk.CompareOp {
	switch f {
	case metadata.ComparisonFuncNever:
		return vk.CompareOpNever
	case metadata.ComparisonFuncLess:
		return vk.CompareOpLess
	case metadata.ComparisonFuncEqual:
		return vk.CompareOpEqual
	case metadata.ComparisonFuncLessOrEqual:
		return vk.CompareOpLessOrEqual
	case metadata.ComparisonFuncGreater:
		return vk.CompareOpGreater
	case metadata.ComparisonFuncNotEqual:
		return vk.CompareOpNotEqual
	case metadata.ComparisonFuncGreaterOrEqual:
		return vk.CompareOpGreaterOrEqual
	}
	return vk.CompareOpAlways
}

func convertCullMode(m metadata.RasterCullMode) vk.CullModeFlags {
	switch m {
	case metadata.RasterCullModeNone:
		return vk.CullModeFlags(vk.CullModeNone)
	case metadata.RasterCullModeFront:
		return vk.CullModeFlags(vk.CullModeFrontBit)
	}
	return vk.CullModeFlags(vk.CullModeBackBit)
}

func convertTopology(p metadata.PrimitiveType) vk.PrimitiveTopology {
	switch p {
	case metadata.PrimitiveTypeTriangleStrip:
		return vk.PrimitiveTopologyTriangleStrip
	case metadata.PrimitiveTypeLineList:
		return vk.PrimitiveTopologyLineList
	case metadata.PrimitiveTypePointList:
		return vk.PrimitiveTopologyPointList
	}
	return vk.PrimitiveTopologyTriangleList
}

func convertShaderStages(s metadata.ShaderType) vk.ShaderStageFlags {
	var flags vk.ShaderStageFlags
	if s&metadata.ShaderTypeVertex != 0 {
		flags |= vk.ShaderStageFlags(vk.ShaderStageVertexBit)
	}
	if s&metadata.ShaderTypePixel != 0 {
		flags |= vk.ShaderStageFlags(vk.ShaderStageFragmentBit)
	}
	return flags
}

func convertDescriptorType(t metadata.BindingType) vk.DescriptorType {
	switch t {
	case metadata.BindingTypeConstantBuffer:
		return vk.DescriptorTypeUniformBuffer
	case metadata.BindingTypeVolatileConstantBuffer:
		return vk.DescriptorTypeUniformBufferDynamic
	case metadata.BindingTypeTextureSRV:
		return vk.DescriptorTypeSampledImage
	case metadata.BindingTypeSampler:
		return vk.DescriptorTypeSampler
	}
	return vk.DescriptorTypeMaxEnum
}

/**
 * @brief Binding numbers are shared by all descriptor types inside a set,
 * so every binding type gets its own range the way HLSL registers map to
 * SPIR-V with -fvk-{b,t,s}-shift.
 */
const (
	CONSTANT_BUFFER_BINDING_OFFSET uint32 = 0
	TEXTURE_SRV_BINDING_OFFSET     uint32 = 128
	SAMPLER_BINDING_OFFSET         uint32 = 256
)

func bindingNumber(item metadata.BindingLayoutItem) uint32 {
	switch item.Type {
	case metadata.BindingTypeTextureSRV:
		return TEXTURE_SRV_BINDING_OFFSET + item.Slot
	case metadata.BindingTypeSampler:
		return SAMPLER_BINDING_OFFSET + item.Slot
	}
	return CONSTANT_BUFFER_BINDING_OFFSET + item.Slot
}
