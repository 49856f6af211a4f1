package vulkan

import (
	"math"
	"testing"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mappedBuffer(size uint64) *VulkanBuffer {
	backing := make([]byte, size)
	return &VulkanBuffer{Size: size, mapped: unsafe.Pointer(&backing[0])}
}

func volatileBuffer(size uint64, versions uint32) *Buffer {
	return &Buffer{
		desc: metadata.BufferDesc{
			ByteSize:    size,
			Role:        metadata.BufferRoleConstant,
			IsVolatile:  true,
			MaxVersions: versions,
			DebugName:   "constants",
		},
		buffer:   mappedBuffer(VULKAN_CONSTANT_BUFFER_ALIGNMENT * uint64(versions)),
		stride:   VULKAN_CONSTANT_BUFFER_ALIGNMENT,
		current:  -1,
		versions: make([]uint64, versions),
	}
}

func TestBindingNumbersDoNotOverlap(t *testing.T) {
	cb := bindingNumber(metadata.BindingLayoutItem{Type: metadata.BindingTypeVolatileConstantBuffer, Slot: 1})
	srv := bindingNumber(metadata.BindingLayoutItem{Type: metadata.BindingTypeTextureSRV, Slot: 1})
	sampler := bindingNumber(metadata.BindingLayoutItem{Type: metadata.BindingTypeSampler, Slot: 1})

	assert.Equal(t, uint32(1), cb)
	assert.Equal(t, uint32(129), srv)
	assert.Equal(t, uint32(257), sampler)
}

func TestFormatsMapBothWays(t *testing.T) {
	for f, vf := range formatMapping {
		assert.Equal(t, f, formatFromVulkan(vf), "format %s", f)
	}
	assert.Equal(t, vk.FormatUndefined, convertFormat(metadata.FormatUnknown))
	assert.Equal(t, metadata.FormatUnknown, formatFromVulkan(vk.FormatR4g4UnormPack8))
}

func TestResourceStatesTranslateToLayouts(t *testing.T) {
	_, _, layout := convertResourceState(metadata.ResourceStateRenderTarget)
	assert.Equal(t, vk.ImageLayoutColorAttachmentOptimal, layout)

	_, _, layout = convertResourceState(metadata.ResourceStatePresent)
	assert.Equal(t, vk.ImageLayoutPresentSrc, layout)

	stages, access, layout := convertResourceState(metadata.ResourceStateUnknown)
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit), stages)
	assert.Zero(t, access)
	assert.Equal(t, vk.ImageLayoutUndefined, layout)
}

func TestPresentModeFollowsVSync(t *testing.T) {
	modes := []vk.PresentMode{vk.PresentModeImmediate, vk.PresentModeFifo, vk.PresentModeMailbox}
	assert.Equal(t, vk.PresentModeFifo, choosePresentMode(modes, true))
	assert.Equal(t, vk.PresentModeMailbox, choosePresentMode(modes, false))
	assert.Equal(t, vk.PresentModeImmediate, choosePresentMode([]vk.PresentMode{vk.PresentModeFifo, vk.PresentModeImmediate}, false))
	assert.Equal(t, vk.PresentModeFifo, choosePresentMode([]vk.PresentMode{vk.PresentModeFifo}, false))
}

func TestSwapchainExtentIsClamped(t *testing.T) {
	caps := vk.SurfaceCapabilities{
		CurrentExtent:  vk.Extent2D{Width: math.MaxUint32, Height: math.MaxUint32},
		MinImageExtent: vk.Extent2D{Width: 16, Height: 16},
		MaxImageExtent: vk.Extent2D{Width: 1920, Height: 1080},
		MinImageCount:  2,
		MaxImageCount:  3,
	}
	assert.Equal(t, vk.Extent2D{Width: 1920, Height: 16}, chooseExtent(caps, 4000, 4))

	caps.CurrentExtent = vk.Extent2D{Width: 800, Height: 600}
	assert.Equal(t, vk.Extent2D{Width: 800, Height: 600}, chooseExtent(caps, 1280, 720))

	assert.Equal(t, uint32(3), chooseImageCount(caps, 4))
	assert.Equal(t, uint32(2), chooseImageCount(caps, 1))
}

func TestSurfaceFormatPrefersRequestedSRGB(t *testing.T) {
	formats := []vk.SurfaceFormat{
		{Format: vk.FormatB8g8r8a8Unorm, ColorSpace: vk.ColorSpaceSrgbNonlinear},
		{Format: vk.FormatB8g8r8a8Srgb, ColorSpace: vk.ColorSpaceSrgbNonlinear},
	}
	// no RGBA on this surface, the BGRA variant with the same encoding wins
	got, err := chooseSurfaceFormat(formats, metadata.FormatSRGBA8UNorm)
	require.NoError(t, err)
	assert.Equal(t, vk.FormatB8g8r8a8Srgb, got.Format)

	got, err = chooseSurfaceFormat(formats, metadata.FormatBGRA8UNorm)
	require.NoError(t, err)
	assert.Equal(t, vk.FormatB8g8r8a8Unorm, got.Format)

	_, err = chooseSurfaceFormat(nil, metadata.FormatSRGBA8UNorm)
	assert.Error(t, err)
}

func TestRenderPassKeyDependsOnFormats(t *testing.T) {
	a := metadata.FramebufferInfo{ColorFormats: []metadata.Format{metadata.FormatSRGBA8UNorm}, DepthFormat: metadata.FormatD32}
	b := metadata.FramebufferInfo{ColorFormats: []metadata.Format{metadata.FormatSRGBA8UNorm}, DepthFormat: metadata.FormatD32, Width: 64, Height: 64}
	c := metadata.FramebufferInfo{ColorFormats: []metadata.Format{metadata.FormatRGBA8UNorm}}

	assert.Equal(t, renderPassKey(a), renderPassKey(b))
	assert.NotEqual(t, renderPassKey(a), renderPassKey(c))
}

func TestVolatileWritesUseFreeVersions(t *testing.T) {
	d := &Device{}
	cl := &CommandList{device: d}
	b := volatileBuffer(8, 2)

	require.NoError(t, cl.writeVolatile(b, []byte{1, 2, 3, 4, 5, 6, 7, 8}, 0))
	assert.Equal(t, 0, b.current)
	assert.Equal(t, uint32(0), b.dynamicOffset())

	// a partial write starts from the previous version
	require.NoError(t, cl.writeVolatile(b, []byte{9, 9}, 2))
	assert.Equal(t, 1, b.current)
	assert.Equal(t, uint32(VULKAN_CONSTANT_BUFFER_ALIGNMENT), b.dynamicOffset())
	memory := b.buffer.Bytes()
	assert.Equal(t, []byte{1, 2, 9, 9, 5, 6, 7, 8}, memory[VULKAN_CONSTANT_BUFFER_ALIGNMENT:VULKAN_CONSTANT_BUFFER_ALIGNMENT+8])

	err := cl.writeVolatile(b, []byte{0}, 0)
	assert.ErrorIs(t, err, core.ErrCapacityExceeded)

	// once the submission reading version 0 completes it can be reused
	b.versions[0] = 1
	d.completed = 1
	require.NoError(t, cl.writeVolatile(b, []byte{7}, 0))
	assert.Equal(t, 0, b.current)
	assert.Equal(t, []byte{7, 2, 9, 9, 5, 6, 7, 8}, memory[:8])
}

func TestDiscardedRecordingFreesVersions(t *testing.T) {
	d := &Device{}
	cl := &CommandList{device: d, uploads: uploadManager{device: d}}
	b := volatileBuffer(4, 1)

	require.NoError(t, cl.writeVolatile(b, []byte{1, 2, 3, 4}, 0))
	assert.Equal(t, volatileVersionPending, b.versions[0])

	cl.discard()
	assert.Empty(t, cl.claims)
	assert.Equal(t, uint64(0), b.versions[0])
	require.NoError(t, cl.writeVolatile(b, []byte{5}, 0))
}

func TestStagingReusesChunks(t *testing.T) {
	chunk := &stagingChunk{buffer: mappedBuffer(VULKAN_UPLOAD_CHUNK_SIZE)}
	d := &Device{freeChunks: []*stagingChunk{chunk}}
	um := uploadManager{device: d}

	first, err := um.stage([]byte{1, 2, 3}, 4)
	require.NoError(t, err)
	second, err := um.stage([]byte{4, 5, 6, 7}, 4)
	require.NoError(t, err)

	assert.Same(t, chunk, first.chunk)
	assert.Same(t, chunk, second.chunk)
	assert.Equal(t, uint64(0), first.offset)
	assert.Equal(t, uint64(4), second.offset)
	assert.Equal(t, []byte{4, 5, 6, 7}, chunk.buffer.Bytes()[4:8])

	chunks := um.detach()
	assert.Len(t, chunks, 1)
	assert.Empty(t, um.chunks)

	d.recycleChunks(chunks)
	assert.Len(t, d.freeChunks, 1)
	assert.Zero(t, d.freeChunks[0].used)
}

func TestCStringStopsAtNull(t *testing.T) {
	assert.Equal(t, "VK_LAYER", cString([]byte{'V', 'K', '_', 'L', 'A', 'Y', 'E', 'R', 0, 'x'}))
	assert.Equal(t, "abc\x00", VulkanSafeString("abc"))
	assert.Equal(t, "abc\x00", VulkanSafeString("abc\x00"))
	assert.Equal(t, uint64(512), alignUp(300, 256))
}
