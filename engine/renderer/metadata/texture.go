package metadata

const (
	/** @brief The default texture name. */
	DEFAULT_TEXTURE_NAME string = "default"
	/** @brief Width and height of the procedural fallback texture. */
	CHECKERBOARD_DIMENSION uint32 = 16
	/** @brief Registry slot of the fallback texture. */
	DEFAULT_TEXTURE_INDEX int = 0
	/** @brief Returned by lookups that could not resolve a material. */
	INVALID_TEXTURE_INDEX int = -1
)

/**
 * @brief Represents various types of textures.
 */
type TextureDimension int

const (
	/** @brief A standard two-dimensional texture. */
	TextureDimension2D TextureDimension = iota
	/** @brief A two-dimensional multisampled texture. */
	TextureDimension2DMS
)

/**
 * @brief Describes a GPU texture.
 */
type TextureDesc struct {
	Width     uint32
	Height    uint32
	MipLevels uint32
	/** @brief Number of samples, 1 for non multisampled textures. */
	SampleCount   uint32
	SampleQuality uint32
	Format        Format
	Dimension     TextureDimension
	/** @brief The texture can be bound as a colour or depth attachment. */
	IsRenderTarget bool
	/** @brief The texture can be sampled from shaders. */
	IsShaderResource bool
	InitialState     ResourceState
	KeepInitialState bool
	/** @brief Optimised clear value for render targets. */
	ClearValue    Color
	UseClearValue bool
	DebugName     string
}

// RowPitch is the byte size of one row of a tightly packed texture.
func (d TextureDesc) RowPitch() uint32 {
	return d.Width * GetFormatInfo(d.Format).BytesPerBlock
}

// ByteSize is the size of mip 0 when tightly packed.
func (d TextureDesc) ByteSize() uint64 {
	return uint64(d.RowPitch()) * uint64(d.Height)
}

/** @brief Represents supported texture filtering modes. */
type TextureFilter int

const (
	/** @brief Nearest-neighbor filtering. */
	TextureFilterModeNearest TextureFilter = 0x0
	/** @brief Linear (i.e. bilinear) filtering.*/
	TextureFilterModeLinear TextureFilter = 0x1
)

type TextureRepeat int

const (
	TextureRepeatRepeat         TextureRepeat = 0x1
	TextureRepeatMirroredRepeat TextureRepeat = 0x2
	TextureRepeatClampToEdge    TextureRepeat = 0x3
	TextureRepeatClampToBorder  TextureRepeat = 0x4
)

/**
 * @brief Describes a sampler.
 */
type SamplerDesc struct {
	/** @brief Texture filtering mode for minification. */
	FilterMinify TextureFilter
	/** @brief Texture filtering mode for magnification. */
	FilterMagnify TextureFilter
	/** @brief Filtering between mip levels. */
	FilterMip TextureFilter
	/** @brief The repeat mode on the U axis (or X, or S) */
	RepeatU TextureRepeat
	/** @brief The repeat mode on the V axis (or Y, or T) */
	RepeatV TextureRepeat
	/** @brief The repeat mode on the W axis (or Z, or U) */
	RepeatW TextureRepeat
	/** @brief 1 disables anisotropic filtering. */
	MaxAnisotropy float32
	DebugName     string
}

// NewLinearWrapSamplerDesc filters linearly on every axis and wraps.
func NewLinearWrapSamplerDesc(maxAnisotropy float32) SamplerDesc {
	return SamplerDesc{
		FilterMinify:  TextureFilterModeLinear,
		FilterMagnify: TextureFilterModeLinear,
		FilterMip:     TextureFilterModeLinear,
		RepeatU:       TextureRepeatRepeat,
		RepeatV:       TextureRepeatRepeat,
		RepeatW:       TextureRepeatRepeat,
		MaxAnisotropy: maxAnisotropy,
	}
}
