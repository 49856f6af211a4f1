package vulkan

import (
	vk "github.com/goki/vulkan"
)

/**
 * @brief A host visible staging buffer a command list sub-allocates its
 * uploads from. Chunks go back to the device pool once the submission
 * that read them has completed.
 */
type stagingChunk struct {
	buffer *VulkanBuffer
	used   uint64
}

type stagingAllocation struct {
	chunk  *stagingChunk
	offset uint64
}

/**
 * @brief Per command list upload state. Chunks are taken from the device
 * on demand and handed to the submission on execute.
 */
type uploadManager struct {
	device *Device
	chunks []*stagingChunk
}

// stage copies data into staging memory aligned to alignment.
func (um *uploadManager) stage(data []byte, alignment uint64) (stagingAllocation, error) {
	size := uint64(len(data))
	if n := len(um.chunks); n > 0 {
		chunk := um.chunks[n-1]
		offset := alignUp(chunk.used, alignment)
		if offset+size <= chunk.buffer.Size {
			chunk.used = offset + size
			return stagingAllocation{chunk: chunk, offset: offset}, chunk.buffer.Write(offset, data)
		}
	}
	chunk, err := um.device.acquireChunk(size)
	if err != nil {
		return stagingAllocation{}, err
	}
	um.chunks = append(um.chunks, chunk)
	chunk.used = size
	return stagingAllocation{chunk: chunk, offset: 0}, chunk.buffer.Write(0, data)
}

// detach hands the chunks used so far to the caller.
func (um *uploadManager) detach() []*stagingChunk {
	chunks := um.chunks
	um.chunks = nil
	return chunks
}

func newStagingChunk(vc *VulkanContext, size uint64) (*stagingChunk, error) {
	buffer, err := BufferCreate(vc, size,
		vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit))
	if err != nil {
		return nil, err
	}
	return &stagingChunk{buffer: buffer}, nil
}
