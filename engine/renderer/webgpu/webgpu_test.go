package webgpu

import (
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func volatileBuffer(size uint64, versions uint32) *Buffer {
	return &Buffer{
		desc:     metadata.NewVolatileConstantBufferDesc(size, "constants", versions),
		stride:   WEBGPU_CONSTANT_BUFFER_ALIGNMENT,
		current:  -1,
		versions: make([]uint64, versions),
		shadow:   make([]byte, alignUp(size, WEBGPU_COPY_SIZE_ALIGNMENT)),
	}
}

func TestFormatsMapBothWays(t *testing.T) {
	for f, tf := range textureFormats {
		assert.Equal(t, f, formatFromWebGPU(tf), "format %s", f)
	}
	assert.Equal(t, wgpu.TextureFormatUndefined, convertFormat(metadata.FormatRGB32Float))
	assert.Equal(t, metadata.FormatUnknown, formatFromWebGPU(wgpu.TextureFormatRGBA16Float))

	_, err := convertIndexFormat(metadata.FormatRGBA8UNorm)
	assert.Error(t, err)
	idx, err := convertIndexFormat(metadata.FormatR16UInt)
	require.NoError(t, err)
	assert.Equal(t, wgpu.IndexFormatUint16, idx)
}

func TestBindingNumbersMatchVulkan(t *testing.T) {
	assert.Equal(t, uint32(2), bindingNumber(metadata.BindingLayoutItem{Type: metadata.BindingTypeConstantBuffer, Slot: 2}))
	assert.Equal(t, uint32(128), bindingNumber(metadata.BindingLayoutItem{Type: metadata.BindingTypeTextureSRV, Slot: 0}))
	assert.Equal(t, uint32(257), bindingNumber(metadata.BindingLayoutItem{Type: metadata.BindingTypeSampler, Slot: 1}))
}

func TestBindGroupLayoutEntriesAreSorted(t *testing.T) {
	entries := bindGroupLayoutEntries(metadata.BindingLayoutDesc{
		Visibility: metadata.ShaderTypePixel,
		Bindings: []metadata.BindingLayoutItem{
			{Type: metadata.BindingTypeSampler, Slot: 0},
			{Type: metadata.BindingTypeTextureSRV, Slot: 0},
			{Type: metadata.BindingTypeVolatileConstantBuffer, Slot: 0},
		},
	})
	require.Len(t, entries, 3)
	assert.Equal(t, []uint32{0, 128, 256}, []uint32{entries[0].Binding, entries[1].Binding, entries[2].Binding})
	assert.True(t, entries[0].Buffer.HasDynamicOffset)
	assert.Equal(t, wgpu.TextureSampleTypeFloat, entries[1].Texture.SampleType)
	assert.Equal(t, wgpu.SamplerBindingTypeFiltering, entries[2].Sampler.Type)
	for _, e := range entries {
		assert.Equal(t, wgpu.ShaderStageFragment, e.Visibility)
	}
}

func TestVertexLayoutsFollowAttributeOrder(t *testing.T) {
	layouts, err := vertexBufferLayouts(metadata.DrawVertexAttributes())
	require.NoError(t, err)
	require.Len(t, layouts, 1)
	assert.Equal(t, uint64(metadata.DRAW_VERTEX_STRIDE), layouts[0].ArrayStride)
	require.Len(t, layouts[0].Attributes, 4)
	for i, a := range layouts[0].Attributes {
		assert.Equal(t, uint32(i), a.ShaderLocation)
	}
	assert.Equal(t, wgpu.VertexFormatFloat32x2, layouts[0].Attributes[2].Format)

	bad := metadata.DrawVertexAttributes()
	bad[1].ElementStride = 12
	_, err = vertexBufferLayouts(bad)
	assert.Error(t, err)
}

func TestSamplerAnisotropyNeedsLinearFilters(t *testing.T) {
	desc := metadata.SamplerDesc{
		FilterMinify:  metadata.TextureFilterModeLinear,
		FilterMagnify: metadata.TextureFilterModeLinear,
		FilterMip:     metadata.TextureFilterModeLinear,
		RepeatU:       metadata.TextureRepeatClampToBorder,
		MaxAnisotropy: 64,
	}
	assert.Equal(t, uint16(16), samplerDescriptor(desc).MaxAnisotropy)
	assert.Equal(t, wgpu.AddressModeClampToEdge, samplerDescriptor(desc).AddressModeU)

	desc.FilterMip = metadata.TextureFilterModeNearest
	assert.Equal(t, uint16(1), samplerDescriptor(desc).MaxAnisotropy)
}

func TestRowsArePackedToCopyAlignment(t *testing.T) {
	// two rows of four RGBA8 texels with 4 bytes of padding each
	data := make([]byte, 40)
	for i := range data {
		data[i] = byte(i)
	}
	packed, pitch := packRows(data, 20, 16, 2)
	assert.Equal(t, WEBGPU_COPY_ROW_ALIGNMENT, pitch)
	require.Len(t, packed, 512)
	assert.Equal(t, data[:16], packed[:16])
	assert.Equal(t, data[20:36], packed[256:272])
	assert.Zero(t, packed[16])
}

func TestCopiesArePadded(t *testing.T) {
	assert.Len(t, padCopy([]byte{1, 2, 3, 4, 5, 6}), 8)
	exact := []byte{1, 2, 3, 4}
	assert.Equal(t, exact, padCopy(exact))
	assert.Equal(t, uint64(256), alignUp(200, WEBGPU_CONSTANT_BUFFER_ALIGNMENT))
}

func TestSurfaceFormatFallsBackToBGRA(t *testing.T) {
	formats := []wgpu.TextureFormat{wgpu.TextureFormatBGRA8Unorm, wgpu.TextureFormatBGRA8UnormSrgb}
	got, err := chooseSurfaceFormat(formats, metadata.FormatSRGBA8UNorm)
	require.NoError(t, err)
	assert.Equal(t, wgpu.TextureFormatBGRA8UnormSrgb, got)

	got, err = chooseSurfaceFormat(formats, metadata.FormatBGRA8UNorm)
	require.NoError(t, err)
	assert.Equal(t, wgpu.TextureFormatBGRA8Unorm, got)

	_, err = chooseSurfaceFormat(nil, metadata.FormatSRGBA8UNorm)
	assert.Error(t, err)
}

func TestPresentModeFollowsVSync(t *testing.T) {
	modes := []wgpu.PresentMode{wgpu.PresentModeImmediate, wgpu.PresentModeFifo, wgpu.PresentModeMailbox}
	assert.Equal(t, wgpu.PresentModeFifo, choosePresentMode(modes, true))
	assert.Equal(t, wgpu.PresentModeMailbox, choosePresentMode(modes, false))
	assert.Equal(t, wgpu.PresentModeFifo, choosePresentMode([]wgpu.PresentMode{wgpu.PresentModeFifo}, false))
}

func TestScissorIsClampedToAttachments(t *testing.T) {
	x, y, w, h := clampScissor(metadata.Rect{MinX: -10, MaxX: 900, MinY: 20, MaxY: 40}, 800, 600)
	assert.Equal(t, [4]uint32{0, 20, 800, 20}, [4]uint32{x, y, w, h})

	_, _, w, h = clampScissor(metadata.Rect{MinX: 50, MaxX: 10, MinY: 0, MaxY: 0}, 800, 600)
	assert.Zero(t, w)
	assert.Zero(t, h)
}

func TestPipelineStateFollowsFramebuffer(t *testing.T) {
	info := metadata.FramebufferInfo{ColorFormats: []metadata.Format{metadata.FormatSRGBA8UNorm}}
	assert.Nil(t, depthStencilState(info, metadata.DepthStencilState{DepthTestEnable: true}))

	info.DepthFormat = metadata.FormatD32
	ds := depthStencilState(info, metadata.DepthStencilState{DepthTestEnable: false, DepthWriteEnable: true})
	require.NotNil(t, ds)
	assert.Equal(t, wgpu.CompareFunctionAlways, ds.DepthCompare)
	assert.False(t, ds.DepthWriteEnabled)

	targets := colorTargets(info, metadata.BlendState{BlendEnable: true})
	require.Len(t, targets, 1)
	assert.Equal(t, wgpu.TextureFormatRGBA8UnormSrgb, targets[0].Format)
	assert.NotNil(t, targets[0].Blend)
}

func TestTextureUsageFollowsRole(t *testing.T) {
	usage := textureUsage(metadata.TextureDesc{IsShaderResource: true})
	assert.NotZero(t, usage&wgpu.TextureUsageTextureBinding)
	assert.Zero(t, usage&wgpu.TextureUsageRenderAttachment)

	usage = textureUsage(metadata.TextureDesc{IsRenderTarget: true})
	assert.NotZero(t, usage&wgpu.TextureUsageRenderAttachment)
	assert.NotZero(t, usage&wgpu.TextureUsageCopyDst)
}

func TestVolatileWritesUseFreeVersions(t *testing.T) {
	d := &Device{}
	cl := &CommandList{device: d}
	b := volatileBuffer(8, 2)

	slot, err := cl.nextVersion(b, []byte{1, 2, 3, 4, 5, 6, 7, 8}, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, slot)
	assert.Equal(t, uint32(0), b.dynamicOffset())

	// a partial write starts from the previous version
	slot, err = cl.nextVersion(b, []byte{9, 9}, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, slot)
	assert.Equal(t, uint32(WEBGPU_CONSTANT_BUFFER_ALIGNMENT), b.dynamicOffset())
	assert.Equal(t, []byte{1, 2, 9, 9, 5, 6, 7, 8}, b.shadow)

	_, err = cl.nextVersion(b, []byte{0}, 0)
	assert.ErrorIs(t, err, core.ErrCapacityExceeded)

	// once the submission reading version 0 completes it can be reused
	b.versions[0] = 1
	d.completed = 1
	slot, err = cl.nextVersion(b, []byte{7}, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, slot)
	assert.Equal(t, []byte{7, 2, 9, 9, 5, 6, 7, 8}, b.shadow)

	offsets, err := volatileOffsets(&BindingSet{volatiles: []*Buffer{b}})
	require.NoError(t, err)
	assert.Equal(t, []uint32{0}, offsets)
}

func TestDiscardedRecordingFreesVersions(t *testing.T) {
	d := &Device{}
	cl := &CommandList{device: d}
	b := volatileBuffer(4, 1)

	_, err := cl.nextVersion(b, []byte{1, 2, 3, 4}, 0)
	require.NoError(t, err)
	assert.Equal(t, volatileVersionPending, b.versions[0])

	cl.discard()
	assert.Empty(t, cl.claims)
	assert.Equal(t, uint64(0), b.versions[0])
	_, err = cl.nextVersion(b, []byte{5}, 0)
	require.NoError(t, err)
}

func TestUnwrittenVolatileCannotBeBound(t *testing.T) {
	_, err := volatileOffsets(&BindingSet{volatiles: []*Buffer{volatileBuffer(16, 2)}})
	assert.ErrorIs(t, err, core.ErrResourceState)
	assert.True(t, equalOffsets([]uint32{1, 2}, []uint32{1, 2}))
	assert.False(t, equalOffsets([]uint32{1}, []uint32{1, 2}))
}
