package vulkan

import (
	"fmt"
	"sort"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

/**
 * @brief Hands out descriptor sets for binding sets. A new pool is added
 * whenever the existing ones run dry.
 */
type VulkanDescriptorAllocator struct {
	pools []vk.DescriptorPool
}

func (da *VulkanDescriptorAllocator) addPool(vc *VulkanContext) (vk.DescriptorPool, error) {
	types := []vk.DescriptorType{
		vk.DescriptorTypeUniformBuffer,
		vk.DescriptorTypeUniformBufferDynamic,
		vk.DescriptorTypeSampledImage,
		vk.DescriptorTypeSampler,
	}
	poolSizes := make([]vk.DescriptorPoolSize, len(types))
	for i, t := range types {
		poolSizes[i] = vk.DescriptorPoolSize{Type: t, DescriptorCount: VULKAN_MAX_DESCRIPTORS_PER_TYPE}
	}
	createInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		Flags:         vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit),
		MaxSets:       VULKAN_MAX_DESCRIPTOR_SETS,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}
	var pool vk.DescriptorPool
	if err := check("vkCreateDescriptorPool", vk.CreateDescriptorPool(vc.logicalDevice(), &createInfo, vc.Allocator, &pool)); err != nil {
		return nil, err
	}
	da.pools = append(da.pools, pool)
	return pool, nil
}

func (da *VulkanDescriptorAllocator) Allocate(vc *VulkanContext, layout vk.DescriptorSetLayout) (vk.DescriptorSet, vk.DescriptorPool, error) {
	try := func(pool vk.DescriptorPool) (vk.DescriptorSet, vk.Result) {
		allocateInfo := vk.DescriptorSetAllocateInfo{
			SType:              vk.StructureTypeDescriptorSetAllocateInfo,
			DescriptorPool:     pool,
			DescriptorSetCount: 1,
			PSetLayouts:        []vk.DescriptorSetLayout{layout},
		}
		var set vk.DescriptorSet
		res := vk.AllocateDescriptorSets(vc.logicalDevice(), &allocateInfo, &set)
		return set, res
	}
	for _, pool := range da.pools {
		set, res := try(pool)
		if res == vk.Success {
			return set, pool, nil
		}
		if res != vk.ErrorOutOfPoolMemory && res != vk.ErrorFragmentedPool {
			return nil, nil, fmt.Errorf("vkAllocateDescriptorSets failed with %s", VulkanResultString(res))
		}
	}
	pool, err := da.addPool(vc)
	if err != nil {
		return nil, nil, err
	}
	set, res := try(pool)
	if err := check("vkAllocateDescriptorSets", res); err != nil {
		return nil, nil, err
	}
	return set, pool, nil
}

func (da *VulkanDescriptorAllocator) Free(vc *VulkanContext, pool vk.DescriptorPool, set vk.DescriptorSet) {
	if set == nil {
		return
	}
	vk.FreeDescriptorSets(vc.logicalDevice(), pool, 1, &set)
}

func (da *VulkanDescriptorAllocator) Destroy(vc *VulkanContext) {
	for _, pool := range da.pools {
		vk.DestroyDescriptorPool(vc.logicalDevice(), pool, vc.Allocator)
	}
	da.pools = nil
}

func createDescriptorSetLayout(vc *VulkanContext, desc metadata.BindingLayoutDesc) (vk.DescriptorSetLayout, error) {
	stages := convertShaderStages(desc.Visibility)
	if stages == 0 {
		stages = vk.ShaderStageFlags(vk.ShaderStageVertexBit | vk.ShaderStageFragmentBit)
	}
	bindings := make([]vk.DescriptorSetLayoutBinding, 0, len(desc.Bindings))
	for _, item := range desc.Bindings {
		bindings = append(bindings, vk.DescriptorSetLayoutBinding{
			Binding:         bindingNumber(item),
			DescriptorType:  convertDescriptorType(item.Type),
			DescriptorCount: 1,
			StageFlags:      stages,
		})
	}
	createInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}
	var layout vk.DescriptorSetLayout
	if err := check("vkCreateDescriptorSetLayout", vk.CreateDescriptorSetLayout(vc.logicalDevice(), &createInfo, vc.Allocator, &layout)); err != nil {
		return nil, err
	}
	return layout, nil
}

/**
 * @brief Writes every item of the binding set into its descriptor set.
 * Volatile buffers are bound with the range of one version and get their
 * offset at bind time.
 */
func writeDescriptorSet(vc *VulkanContext, set vk.DescriptorSet, desc renderer.BindingSetDesc) []*Buffer {
	writes := make([]vk.WriteDescriptorSet, 0, len(desc.Bindings))
	type volatileBinding struct {
		number uint32
		buffer *Buffer
	}
	var volatiles []volatileBinding

	for _, item := range desc.Bindings {
		number := bindingNumber(metadata.BindingLayoutItem{Slot: item.Slot, Type: item.Type})
		write := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set,
			DstBinding:      number,
			DescriptorCount: 1,
			DescriptorType:  convertDescriptorType(item.Type),
		}
		switch item.Type {
		case metadata.BindingTypeConstantBuffer, metadata.BindingTypeVolatileConstantBuffer:
			b := item.Buffer.(*Buffer)
			write.PBufferInfo = []vk.DescriptorBufferInfo{{
				Buffer: b.buffer.Handle,
				Offset: 0,
				Range:  vk.DeviceSize(b.desc.ByteSize),
			}}
			if b.desc.IsVolatile {
				volatiles = append(volatiles, volatileBinding{number: number, buffer: b})
			}
		case metadata.BindingTypeTextureSRV:
			t := item.Texture.(*Texture)
			write.PImageInfo = []vk.DescriptorImageInfo{{
				ImageView:   t.image.View,
				ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
			}}
		case metadata.BindingTypeSampler:
			s := item.Sampler.(*Sampler)
			write.PImageInfo = []vk.DescriptorImageInfo{{
				Sampler: s.handle,
			}}
		}
		writes = append(writes, write)
	}
	vk.UpdateDescriptorSets(vc.logicalDevice(), uint32(len(writes)), writes, 0, nil)

	// dynamic offsets are consumed in binding number order
	sort.Slice(volatiles, func(i, j int) bool { return volatiles[i].number < volatiles[j].number })
	out := make([]*Buffer, len(volatiles))
	for i, v := range volatiles {
		out[i] = v.buffer
	}
	return out
}
