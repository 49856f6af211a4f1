package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/renderer"
)

/**
 * @brief Instance level Vulkan state shared by the device, the swapchain
 * and every object created from them.
 */
type VulkanContext struct {
	Instance  vk.Instance
	Allocator *vk.AllocationCallbacks
	Surface   vk.Surface

	debugMessenger vk.DebugReportCallback
	messages       renderer.MessageCallback

	Device *VulkanDevice

	// serialises queue submission and presentation
	locks *VulkanLockPool
}

func (vc *VulkanContext) FindMemoryIndex(typeFilter uint32, propertyFlags vk.MemoryPropertyFlags) (uint32, error) {
	memoryProperties := vc.Device.Memory
	for i := uint32(0); i < memoryProperties.MemoryTypeCount; i++ {
		memoryType := memoryProperties.MemoryTypes[i]
		memoryType.Deref()
		// Check each memory type to see if its bit is set to 1.
		if typeFilter&(1<<i) != 0 && memoryType.PropertyFlags&propertyFlags == propertyFlags {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unable to find a memory type for filter %#x with properties %#x", typeFilter, propertyFlags)
}

func (vc *VulkanContext) logicalDevice() vk.Device {
	return vc.Device.LogicalDevice
}
