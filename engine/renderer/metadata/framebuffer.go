package metadata

/**
 * @brief The formats, sample layout and size of a framebuffer.
 * Pipelines are created against this and are compatible with any
 * framebuffer sharing the same info.
 */
type FramebufferInfo struct {
	ColorFormats  []Format
	DepthFormat   Format
	SampleCount   uint32
	SampleQuality uint32
	Width         uint32
	Height        uint32
}

// IsCompatible ignores size.
func (i FramebufferInfo) IsCompatible(other FramebufferInfo) bool {
	if len(i.ColorFormats) != len(other.ColorFormats) {
		return false
	}
	for k := range i.ColorFormats {
		if i.ColorFormats[k] != other.ColorFormats[k] {
			return false
		}
	}
	return i.DepthFormat == other.DepthFormat &&
		i.SampleCount == other.SampleCount &&
		i.SampleQuality == other.SampleQuality
}
