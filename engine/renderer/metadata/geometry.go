package metadata

import (
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
)

/**
 * @brief Interleaved scene vertex. Field order and sizes form the
 * vertex shader input contract, 48 bytes with no padding.
 */
type DrawVertex struct {
	Position mgl32.Vec3
	Normal   mgl32.Vec3
	TexCoord mgl32.Vec2
	Colour   mgl32.Vec4
}

const DRAW_VERTEX_STRIDE = uint32(unsafe.Sizeof(DrawVertex{}))

// DrawVertexAttributes describes DrawVertex for the scene input layout.
func DrawVertexAttributes() []VertexAttributeDesc {
	return []VertexAttributeDesc{
		{Name: "POSITION", Format: FormatRGB32Float, Offset: uint32(unsafe.Offsetof(DrawVertex{}.Position)), ElementStride: DRAW_VERTEX_STRIDE},
		{Name: "NORMAL", Format: FormatRGB32Float, Offset: uint32(unsafe.Offsetof(DrawVertex{}.Normal)), ElementStride: DRAW_VERTEX_STRIDE},
		{Name: "TEXCOORD", Format: FormatRG32Float, Offset: uint32(unsafe.Offsetof(DrawVertex{}.TexCoord)), ElementStride: DRAW_VERTEX_STRIDE},
		{Name: "COLOR", Format: FormatRGBA32Float, Offset: uint32(unsafe.Offsetof(DrawVertex{}.Colour)), ElementStride: DRAW_VERTEX_STRIDE},
	}
}

/** @brief Vertex of the fullscreen quad used to blit framebuffers. */
type ScreenQuadVertex struct {
	Position mgl32.Vec2
	TexCoord mgl32.Vec2
}

const SCREEN_QUAD_VERTEX_STRIDE = uint32(unsafe.Sizeof(ScreenQuadVertex{}))

func ScreenQuadAttributes() []VertexAttributeDesc {
	return []VertexAttributeDesc{
		{Name: "POSITION", Format: FormatRG32Float, Offset: uint32(unsafe.Offsetof(ScreenQuadVertex{}.Position)), ElementStride: SCREEN_QUAD_VERTEX_STRIDE},
		{Name: "TEXCOORD", Format: FormatRG32Float, Offset: uint32(unsafe.Offsetof(ScreenQuadVertex{}.TexCoord)), ElementStride: SCREEN_QUAD_VERTEX_STRIDE},
	}
}

var ScreenQuadVertices = []ScreenQuadVertex{
	{Position: mgl32.Vec2{-1, -1}, TexCoord: mgl32.Vec2{0, 1}},
	{Position: mgl32.Vec2{1, -1}, TexCoord: mgl32.Vec2{1, 1}},
	{Position: mgl32.Vec2{1, 1}, TexCoord: mgl32.Vec2{1, 0}},
	{Position: mgl32.Vec2{-1, 1}, TexCoord: mgl32.Vec2{0, 0}},
}

var ScreenQuadIndices = []uint32{
	0, 1, 2,
	2, 3, 0,
}

// The pentagon stands in for the scene when no model could be loaded.
var PentagonVertices = []DrawVertex{
	{Position: mgl32.Vec3{0, 0.5, 0}, Normal: mgl32.Vec3{0, 0, 1}, TexCoord: mgl32.Vec2{0, 0.5}, Colour: mgl32.Vec4{1, 0, 0, 1}},
	{Position: mgl32.Vec3{0.5, 0.2, 0}, Normal: mgl32.Vec3{0, 0, 1}, TexCoord: mgl32.Vec2{0.5, 0.2}, Colour: mgl32.Vec4{0, 1, 0, 1}},
	{Position: mgl32.Vec3{0.3, -0.4, 0}, Normal: mgl32.Vec3{0, 0, 1}, TexCoord: mgl32.Vec2{0.3, -0.4}, Colour: mgl32.Vec4{0, 0, 1, 1}},
	{Position: mgl32.Vec3{-0.3, -0.4, 0}, Normal: mgl32.Vec3{0, 0, 1}, TexCoord: mgl32.Vec2{-0.3, -0.4}, Colour: mgl32.Vec4{1, 0, 1, 1}},
	{Position: mgl32.Vec3{-0.5, 0.2, 0}, Normal: mgl32.Vec3{0, 0, 1}, TexCoord: mgl32.Vec2{-0.5, 0.2}, Colour: mgl32.Vec4{1, 0.6, 0, 1}},
}

var PentagonIndices = []uint32{
	0, 1, 2,
	0, 2, 3,
	0, 3, 4,
}

// AsBytes reinterprets a slice of plain values as its raw memory.
func AsBytes[T any](data []T) []byte {
	if len(data) == 0 {
		return nil
	}
	var zero T
	return unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), len(data)*int(unsafe.Sizeof(zero)))
}

// ValueBytes reinterprets a single plain value as its raw memory.
func ValueBytes[T any](v *T) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(v)), int(unsafe.Sizeof(*v)))
}
