package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

/**
 * @brief Holds a Vulkan pipeline and its layout.
 */
type VulkanPipeline struct {
	/** @brief The internal pipeline handle. */
	Handle vk.Pipeline
	/** @brief The pipeline layout. */
	PipelineLayout vk.PipelineLayout
}

type VulkanPipelineConfig struct {
	/** @brief The render pass the pipeline is used with, or a compatible one. */
	RenderPass vk.RenderPass
	/** @brief Vertex buffer bindings, one per buffer index. */
	Bindings []vk.VertexInputBindingDescription
	/** @brief An array of attributes. */
	Attributes []vk.VertexInputAttributeDescription
	/** @brief Descriptor set layouts, indexed by set number. */
	DescriptorSetLayouts []vk.DescriptorSetLayout
	/** @brief The vertex and fragment stages. */
	Stages      []vk.PipelineShaderStageCreateInfo
	PrimType    metadata.PrimitiveType
	RenderState metadata.RenderState
	SampleCount uint32
	/** @brief Number of colour attachments of the render pass. */
	ColorAttachmentCount int
	DebugName            string
}

func NewGraphicsPipeline(vc *VulkanContext, config *VulkanPipelineConfig) (*VulkanPipeline, error) {
	outPipeline := &VulkanPipeline{}

	// viewport and scissor are dynamic, only the counts are baked in
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}

	raster := config.RenderState.Raster
	rasterizerCreateInfo := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             vk.PolygonModeFill,
		LineWidth:               1.0,
		CullMode:                convertCullMode(raster.CullMode),
		FrontFace:               vk.FrontFaceClockwise,
		DepthBiasEnable:         vk.False,
	}
	if raster.FillMode == metadata.RasterFillModeWireframe {
		rasterizerCreateInfo.PolygonMode = vk.PolygonModeLine
	}
	if raster.FrontCounterClockwise {
		rasterizerCreateInfo.FrontFace = vk.FrontFaceCounterClockwise
	}

	multisamplingCreateInfo := vk.PipelineMultisampleStateCreateInfo{
		SType:                 vk.StructureTypePipelineMultisampleStateCreateInfo,
		SampleShadingEnable:   vk.False,
		RasterizationSamples:  sampleCountBits(config.SampleCount),
		MinSampleShading:      1.0,
		AlphaToCoverageEnable: vk.False,
		AlphaToOneEnable:      vk.False,
	}

	ds := config.RenderState.DepthStencil
	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:             vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:   vk.False,
		DepthWriteEnable:  vk.False,
		DepthCompareOp:    convertCompareOp(ds.DepthFunc),
		StencilTestEnable: vk.False,
	}
	if ds.DepthTestEnable {
		depthStencil.DepthTestEnable = vk.True
	}
	if ds.DepthWriteEnable {
		depthStencil.DepthWriteEnable = vk.True
	}

	colorBlendAttachmentState := vk.PipelineColorBlendAttachmentState{
		BlendEnable:         vk.False,
		SrcColorBlendFactor: vk.BlendFactorSrcAlpha,
		DstColorBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
		ColorBlendOp:        vk.BlendOpAdd,
		SrcAlphaBlendFactor: vk.BlendFactorSrcAlpha,
		DstAlphaBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
		AlphaBlendOp:        vk.BlendOpAdd,
		ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit) | vk.ColorComponentFlags(vk.ColorComponentGBit) |
			vk.ColorComponentFlags(vk.ColorComponentBBit) | vk.ColorComponentFlags(vk.ColorComponentABit),
	}
	if config.RenderState.Blend.BlendEnable {
		colorBlendAttachmentState.BlendEnable = vk.True
	}
	blendAttachments := make([]vk.PipelineColorBlendAttachmentState, config.ColorAttachmentCount)
	for i := range blendAttachments {
		blendAttachments[i] = colorBlendAttachmentState
	}

	colorBlendStateCreateInfo := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: uint32(len(blendAttachments)),
		PAttachments:    blendAttachments,
	}

	dynamicStates := []vk.DynamicState{
		vk.DynamicStateViewport,
		vk.DynamicStateScissor,
	}
	dynamicStateCreateInfo := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	vertexInputInfo := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   uint32(len(config.Bindings)),
		PVertexBindingDescriptions:      config.Bindings,
		VertexAttributeDescriptionCount: uint32(len(config.Attributes)),
		PVertexAttributeDescriptions:    config.Attributes,
	}

	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               convertTopology(config.PrimType),
		PrimitiveRestartEnable: vk.False,
	}

	pipelineLayoutCreateInfo := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(config.DescriptorSetLayouts)),
		PSetLayouts:    config.DescriptorSetLayouts,
	}

	var pipelineLayout vk.PipelineLayout
	if err := check("vkCreatePipelineLayout", vk.CreatePipelineLayout(vc.logicalDevice(), &pipelineLayoutCreateInfo, vc.Allocator, &pipelineLayout)); err != nil {
		return nil, err
	}
	outPipeline.PipelineLayout = pipelineLayout

	pipelineCreateInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(config.Stages)),
		PStages:             config.Stages,
		PVertexInputState:   &vertexInputInfo,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizerCreateInfo,
		PMultisampleState:   &multisamplingCreateInfo,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlendStateCreateInfo,
		PDynamicState:       &dynamicStateCreateInfo,
		Layout:              outPipeline.PipelineLayout,
		RenderPass:          config.RenderPass,
		Subpass:             0,
		BasePipelineHandle:  vk.NullPipeline,
		BasePipelineIndex:   -1,
	}

	pipelines := make([]vk.Pipeline, 1)
	if err := check("vkCreateGraphicsPipelines", vk.CreateGraphicsPipelines(
		vc.logicalDevice(),
		vk.NullPipelineCache,
		1,
		[]vk.GraphicsPipelineCreateInfo{pipelineCreateInfo},
		vc.Allocator,
		pipelines)); err != nil {
		outPipeline.Destroy(vc)
		return nil, fmt.Errorf("pipeline %q: %w", config.DebugName, err)
	}
	if pipelines[0] == vk.NullPipeline {
		outPipeline.Destroy(vc)
		return nil, fmt.Errorf("vulkan pipeline handle for %q is nil", config.DebugName)
	}
	outPipeline.Handle = pipelines[0]

	core.LogDebug("Graphics pipeline '%s' created.", config.DebugName)
	return outPipeline, nil
}

func (pipeline *VulkanPipeline) Destroy(vc *VulkanContext) {
	if pipeline.Handle != vk.NullPipeline {
		vk.DestroyPipeline(vc.logicalDevice(), pipeline.Handle, vc.Allocator)
		pipeline.Handle = vk.NullPipeline
	}
	if pipeline.PipelineLayout != nil {
		vk.DestroyPipelineLayout(vc.logicalDevice(), pipeline.PipelineLayout, vc.Allocator)
		pipeline.PipelineLayout = nil
	}
}

func (pipeline *VulkanPipeline) Bind(commandBuffer *VulkanCommandBuffer) {
	vk.CmdBindPipeline(commandBuffer.Handle, vk.PipelineBindPointGraphics, pipeline.Handle)
}
