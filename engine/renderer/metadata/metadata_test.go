package metadata

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
)

func TestDrawVertexLayout(t *testing.T) {
	assert.Equal(t, uint32(48), DRAW_VERTEX_STRIDE)
	attrs := DrawVertexAttributes()
	offsets := []uint32{0, 12, 24, 32}
	names := []string{"POSITION", "NORMAL", "TEXCOORD", "COLOR"}
	for i, a := range attrs {
		assert.Equal(t, offsets[i], a.Offset, a.Name)
		assert.Equal(t, names[i], a.Name)
		assert.Equal(t, DRAW_VERTEX_STRIDE, a.ElementStride)
	}
}

func TestScreenQuadLayout(t *testing.T) {
	assert.Equal(t, uint32(16), SCREEN_QUAD_VERTEX_STRIDE)
	attrs := ScreenQuadAttributes()
	assert.Equal(t, uint32(0), attrs[0].Offset)
	assert.Equal(t, uint32(8), attrs[1].Offset)
	assert.Len(t, ScreenQuadIndices, 6)
}

func TestConstantSizesAre16ByteMultiples(t *testing.T) {
	assert.Zero(t, PER_FRAME_CONSTANTS_SIZE%16)
	assert.Zero(t, PER_ENTITY_CONSTANTS_SIZE%16)
	assert.Equal(t, uint64(64), PER_ENTITY_CONSTANTS_SIZE)
}

func TestFormatForChannelCount(t *testing.T) {
	assert.Equal(t, FormatR8UNorm, FormatForChannelCount(1))
	assert.Equal(t, FormatRG8UNorm, FormatForChannelCount(2))
	assert.Equal(t, FormatRGBA8UNorm, FormatForChannelCount(3))
	assert.Equal(t, FormatRGBA8UNorm, FormatForChannelCount(4))
}

func TestResourceStateString(t *testing.T) {
	assert.Equal(t, "CopyDest", ResourceStateCopyDest.String())
	assert.Equal(t, "VertexBuffer|IndexBuffer", (ResourceStateVertexBuffer | ResourceStateIndexBuffer).String())
	assert.True(t, ResourceStateCommon.IsUploadState())
	assert.False(t, ResourceStateShaderResource.IsUploadState())
}

func TestMessageSeverityString(t *testing.T) {
	assert.Equal(t, "[INFO]", MessageSeverityInfo.String())
	assert.Equal(t, "[### FATAL ERROR ###]", MessageSeverityFatal.String())
}

func TestAsBytes(t *testing.T) {
	idx := []uint32{1, 2}
	b := AsBytes(idx)
	assert.Len(t, b, 8)
	assert.Equal(t, unsafe.Pointer(&idx[0]), unsafe.Pointer(&b[0]))
	assert.Nil(t, AsBytes([]uint32{}))
}

func TestTextureDescRowPitch(t *testing.T) {
	d := TextureDesc{Width: 16, Height: 16, Format: FormatRGBA8UNorm}
	assert.Equal(t, uint32(64), d.RowPitch())
	assert.Equal(t, uint64(1024), d.ByteSize())
}
