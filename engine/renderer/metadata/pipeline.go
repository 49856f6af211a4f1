package metadata

type PrimitiveType int

const (
	PrimitiveTypeTriangleList PrimitiveType = iota
	PrimitiveTypeTriangleStrip
	PrimitiveTypeLineList
	PrimitiveTypePointList
)

type ComparisonFunc int

const (
	ComparisonFuncNever ComparisonFunc = iota
	ComparisonFuncLess
	ComparisonFuncEqual
	ComparisonFuncLessOrEqual
	ComparisonFuncGreater
	ComparisonFuncNotEqual
	ComparisonFuncGreaterOrEqual
	ComparisonFuncAlways
)

type RasterCullMode int

const (
	RasterCullModeBack RasterCullMode = iota
	RasterCullModeFront
	RasterCullModeNone
)

type RasterFillMode int

const (
	RasterFillModeSolid RasterFillMode = iota
	RasterFillModeWireframe
)

type DepthStencilState struct {
	DepthTestEnable  bool
	DepthWriteEnable bool
	DepthFunc        ComparisonFunc
	StencilEnable    bool
}

type RasterState struct {
	FillMode              RasterFillMode
	CullMode              RasterCullMode
	FrontCounterClockwise bool
}

type BlendState struct {
	BlendEnable bool
}

/**
 * @brief Fixed function state baked into a graphics pipeline.
 */
type RenderState struct {
	Blend        BlendState
	DepthStencil DepthStencilState
	Raster       RasterState
}

/**
 * @brief Describes one vertex attribute as read by the vertex shader.
 */
type VertexAttributeDesc struct {
	/** @brief Semantic name, e.g. POSITION. */
	Name   string
	Format Format
	/** @brief Index of the vertex buffer binding this attribute reads from. */
	BufferIndex uint32
	/** @brief Byte offset inside one element. */
	Offset uint32
	/** @brief Byte size of one element of the buffer. */
	ElementStride uint32
}

type Color struct {
	R, G, B, A float32
}

type Viewport struct {
	MinX, MaxX float32
	MinY, MaxY float32
	MinZ, MaxZ float32
}

func NewViewport(width, height float32) Viewport {
	return Viewport{MaxX: width, MaxY: height, MaxZ: 1}
}

func (v Viewport) Width() float32 {
	return v.MaxX - v.MinX
}

func (v Viewport) Height() float32 {
	return v.MaxY - v.MinY
}

type Rect struct {
	MinX, MaxX int32
	MinY, MaxY int32
}

/**
 * @brief Viewports and scissor rectangles, one pair per render target.
 */
type ViewportState struct {
	Viewports    []Viewport
	ScissorRects []Rect
}

// AddViewportAndScissorRect adds the viewport and a scissor rect covering it.
func (s *ViewportState) AddViewportAndScissorRect(v Viewport) *ViewportState {
	s.Viewports = append(s.Viewports, v)
	s.ScissorRects = append(s.ScissorRects, Rect{
		MinX: int32(v.MinX), MaxX: int32(v.MaxX),
		MinY: int32(v.MinY), MaxY: int32(v.MaxY),
	})
	return s
}

/**
 * @brief Arguments of a draw call. For indexed draws VertexCount is the index count.
 */
type DrawArguments struct {
	VertexCount         uint32
	InstanceCount       uint32
	StartIndexLocation  uint32
	StartVertexLocation uint32
}

func NewDrawArguments(vertexCount uint32) DrawArguments {
	return DrawArguments{VertexCount: vertexCount, InstanceCount: 1}
}
