package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/assets/loaders"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// NewShaderModule creates a module from a SPIR-V blob.
func NewShaderModule(vc *VulkanContext, name string, binary []byte) (vk.ShaderModule, error) {
	code, err := loaders.BytesToBytecode(binary)
	if err != nil {
		return nil, fmt.Errorf("shader %q is not valid SPIR-V: %w", name, err)
	}
	if len(code) == 0 || code[0] != 0x07230203 {
		return nil, fmt.Errorf("shader %q is missing the SPIR-V magic number", name)
	}

	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code) * 4),
		PCode:    code,
	}
	var module vk.ShaderModule
	if err := check("vkCreateShaderModule", vk.CreateShaderModule(vc.logicalDevice(), &createInfo, vc.Allocator, &module)); err != nil {
		return nil, fmt.Errorf("shader %q: %w", name, err)
	}
	return module, nil
}

func shaderStageBit(t metadata.ShaderType) vk.ShaderStageFlagBits {
	if t == metadata.ShaderTypePixel {
		return vk.ShaderStageFragmentBit
	}
	return vk.ShaderStageVertexBit
}

func shaderStageCreateInfo(s *Shader) vk.PipelineShaderStageCreateInfo {
	return vk.PipelineShaderStageCreateInfo{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  shaderStageBit(s.desc.ShaderType),
		Module: s.module,
		PName:  VulkanSafeString(s.desc.EntryName),
	}
}
