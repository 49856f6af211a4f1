package vulkan

import (
	"context"
	"fmt"

	vk "github.com/goki/vulkan"
)

type VulkanFence struct {
	Handle     vk.Fence
	IsSignaled bool
}

func NewFence(vc *VulkanContext, createSignaled bool) (*VulkanFence, error) {
	fence := &VulkanFence{IsSignaled: createSignaled}

	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if createSignaled {
		fenceCreateInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}

	var handle vk.Fence
	if err := check("vkCreateFence", vk.CreateFence(vc.logicalDevice(), &fenceCreateInfo, vc.Allocator, &handle)); err != nil {
		return nil, err
	}
	fence.Handle = handle
	return fence, nil
}

func (vf *VulkanFence) Destroy(vc *VulkanContext) {
	if vf.Handle != vk.NullFence {
		vk.DestroyFence(vc.logicalDevice(), vf.Handle, vc.Allocator)
		vf.Handle = vk.NullFence
	}
	vf.IsSignaled = false
}

// Status polls the fence without blocking.
func (vf *VulkanFence) Status(vc *VulkanContext) (bool, error) {
	if vf.IsSignaled {
		return true, nil
	}
	switch res := vk.GetFenceStatus(vc.logicalDevice(), vf.Handle); res {
	case vk.Success:
		vf.IsSignaled = true
		return true, nil
	case vk.NotReady:
		return false, nil
	default:
		return false, fmt.Errorf("vkGetFenceStatus failed with %s", VulkanResultString(res))
	}
}

/**
 * @brief Blocks until the fence is signaled. The wait is sliced so that
 * ctx can abort it.
 */
func (vf *VulkanFence) Wait(ctx context.Context, vc *VulkanContext) error {
	for !vf.IsSignaled {
		if err := ctx.Err(); err != nil {
			return err
		}
		switch res := vk.WaitForFences(vc.logicalDevice(), 1, []vk.Fence{vf.Handle}, vk.True, VULKAN_FENCE_WAIT_SLICE_NS); res {
		case vk.Success:
			vf.IsSignaled = true
		case vk.Timeout:
			continue
		case vk.ErrorDeviceLost:
			return fmt.Errorf("vk_fence_wait - VK_ERROR_DEVICE_LOST")
		default:
			return fmt.Errorf("vk_fence_wait - %s", VulkanResultString(res))
		}
	}
	return nil
}

func (vf *VulkanFence) Reset(vc *VulkanContext) error {
	if !vf.IsSignaled {
		return nil
	}
	if err := check("vkResetFences", vk.ResetFences(vc.logicalDevice(), 1, []vk.Fence{vf.Handle})); err != nil {
		return err
	}
	vf.IsSignaled = false
	return nil
}
