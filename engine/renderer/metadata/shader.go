package metadata

/** @brief Shader stages. Values are bit flags so visibility can combine stages. */
type ShaderType uint16

const (
	ShaderTypeNone   ShaderType = 0x0000
	ShaderTypeVertex ShaderType = 0x0001
	ShaderTypePixel  ShaderType = 0x0010
	ShaderTypeAll    ShaderType = 0x3FFF
)

func (s ShaderType) String() string {
	switch s {
	case ShaderTypeVertex:
		return "vertex"
	case ShaderTypePixel:
		return "pixel"
	case ShaderTypeAll:
		return "all"
	}
	return "none"
}

const (
	VERTEX_SHADER_ENTRY_POINT string = "main_vs"
	PIXEL_SHADER_ENTRY_POINT  string = "main_ps"
)

/**
 * @brief Describes a shader object created from a precompiled binary.
 */
type ShaderDesc struct {
	ShaderType ShaderType
	/** @brief Name of the entry function inside the binary. */
	EntryName string
	DebugName string
}
