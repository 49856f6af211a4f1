package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
)

/**
 * @brief A VkBuffer with its own memory allocation. Host visible buffers
 * stay mapped for their whole lifetime.
 */
type VulkanBuffer struct {
	Handle vk.Buffer
	Memory vk.DeviceMemory
	Size   uint64
	mapped unsafe.Pointer
}

func BufferCreate(vc *VulkanContext, size uint64, usage vk.BufferUsageFlags, properties vk.MemoryPropertyFlags) (*VulkanBuffer, error) {
	buffer := &VulkanBuffer{Size: size}

	bufferCreateInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}
	var handle vk.Buffer
	if err := check("vkCreateBuffer", vk.CreateBuffer(vc.logicalDevice(), &bufferCreateInfo, vc.Allocator, &handle)); err != nil {
		return nil, err
	}
	buffer.Handle = handle

	var memoryRequirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(vc.logicalDevice(), handle, &memoryRequirements)
	memoryRequirements.Deref()

	memoryType, err := vc.FindMemoryIndex(memoryRequirements.MemoryTypeBits, properties)
	if err != nil {
		buffer.Destroy(vc)
		return nil, err
	}
	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memoryRequirements.Size,
		MemoryTypeIndex: memoryType,
	}
	var memory vk.DeviceMemory
	if err := check("vkAllocateMemory", vk.AllocateMemory(vc.logicalDevice(), &allocateInfo, vc.Allocator, &memory)); err != nil {
		buffer.Destroy(vc)
		return nil, err
	}
	buffer.Memory = memory

	if err := check("vkBindBufferMemory", vk.BindBufferMemory(vc.logicalDevice(), handle, memory, 0)); err != nil {
		buffer.Destroy(vc)
		return nil, err
	}

	if properties&vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit) != 0 {
		var data unsafe.Pointer
		if err := check("vkMapMemory", vk.MapMemory(vc.logicalDevice(), memory, 0, vk.DeviceSize(size), 0, &data)); err != nil {
			buffer.Destroy(vc)
			return nil, err
		}
		buffer.mapped = data
	}
	return buffer, nil
}

// Write copies data into a mapped buffer. Host visible memory is requested coherent, no flush is needed.
func (vb *VulkanBuffer) Write(offset uint64, data []byte) error {
	if vb.mapped == nil {
		return fmt.Errorf("buffer is not host visible")
	}
	if offset+uint64(len(data)) > vb.Size {
		return fmt.Errorf("writing %d bytes at %d overflows a %d byte buffer", len(data), offset, vb.Size)
	}
	dst := unsafe.Slice((*byte)(vb.mapped), vb.Size)
	copy(dst[offset:], data)
	return nil
}

// Bytes exposes the mapped memory of a host visible buffer, nil otherwise.
func (vb *VulkanBuffer) Bytes() []byte {
	if vb.mapped == nil {
		return nil
	}
	return unsafe.Slice((*byte)(vb.mapped), vb.Size)
}

func (vb *VulkanBuffer) Destroy(vc *VulkanContext) {
	device := vc.logicalDevice()
	if vb.mapped != nil {
		vk.UnmapMemory(device, vb.Memory)
		vb.mapped = nil
	}
	if vb.Memory != nil {
		vk.FreeMemory(device, vb.Memory, vc.Allocator)
		vb.Memory = nil
	}
	if vb.Handle != nil {
		vk.DestroyBuffer(device, vb.Handle, vc.Allocator)
		vb.Handle = nil
	}
}
