package metadata

type Format int

const (
	FormatUnknown Format = iota
	FormatR8UNorm
	FormatRG8UNorm
	FormatRGBA8UNorm
	FormatSRGBA8UNorm
	FormatBGRA8UNorm
	FormatSBGRA8UNorm
	FormatR16UInt
	FormatR32UInt
	FormatRG32Float
	FormatRGB32Float
	FormatRGBA32Float
	FormatD24S8
	FormatD32
)

/** @brief Static properties of a pixel or vertex element format. */
type FormatInfo struct {
	Format        Format
	Name          string
	BytesPerBlock uint32
	HasRed        bool
	HasDepth      bool
	HasStencil    bool
	IsSRGB        bool
}

var formatInfos = [...]FormatInfo{
	{Format: FormatUnknown, Name: "UNKNOWN", BytesPerBlock: 0},
	{Format: FormatR8UNorm, Name: "R8_UNORM", BytesPerBlock: 1, HasRed: true},
	{Format: FormatRG8UNorm, Name: "RG8_UNORM", BytesPerBlock: 2, HasRed: true},
	{Format: FormatRGBA8UNorm, Name: "RGBA8_UNORM", BytesPerBlock: 4, HasRed: true},
	{Format: FormatSRGBA8UNorm, Name: "SRGBA8_UNORM", BytesPerBlock: 4, HasRed: true, IsSRGB: true},
	{Format: FormatBGRA8UNorm, Name: "BGRA8_UNORM", BytesPerBlock: 4, HasRed: true},
	{Format: FormatSBGRA8UNorm, Name: "SBGRA8_UNORM", BytesPerBlock: 4, HasRed: true, IsSRGB: true},
	{Format: FormatR16UInt, Name: "R16_UINT", BytesPerBlock: 2, HasRed: true},
	{Format: FormatR32UInt, Name: "R32_UINT", BytesPerBlock: 4, HasRed: true},
	{Format: FormatRG32Float, Name: "RG32_FLOAT", BytesPerBlock: 8, HasRed: true},
	{Format: FormatRGB32Float, Name: "RGB32_FLOAT", BytesPerBlock: 12, HasRed: true},
	{Format: FormatRGBA32Float, Name: "RGBA32_FLOAT", BytesPerBlock: 16, HasRed: true},
	{Format: FormatD24S8, Name: "D24S8", BytesPerBlock: 4, HasDepth: true, HasStencil: true},
	{Format: FormatD32, Name: "D32", BytesPerBlock: 4, HasDepth: true},
}

func GetFormatInfo(f Format) FormatInfo {
	if f < 0 || int(f) >= len(formatInfos) {
		return formatInfos[FormatUnknown]
	}
	return formatInfos[f]
}

func (f Format) String() string {
	return GetFormatInfo(f).Name
}

// FormatForChannelCount picks the texture format for decoded image data.
// There is no three channel format, RGB sources are expanded to four channels.
func FormatForChannelCount(channels uint8) Format {
	switch channels {
	case 1:
		return FormatR8UNorm
	case 2:
		return FormatRG8UNorm
	default:
		return FormatRGBA8UNorm
	}
}
