package metadata

import (
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
)

/**
 * @brief Per-frame constant buffer contents. Padded to a 16 byte multiple.
 */
type PerFrameConstants struct {
	View       mgl32.Mat4
	Projection mgl32.Mat4
	Time       float32
	_          [3]float32
}

const PER_FRAME_CONSTANTS_SIZE = uint64(unsafe.Sizeof(PerFrameConstants{}))

/**
 * @brief Per-entity constant buffer contents.
 */
type PerEntityConstants struct {
	Transform mgl32.Mat4
}

const PER_ENTITY_CONSTANTS_SIZE = uint64(unsafe.Sizeof(PerEntityConstants{}))

type MessageSeverity int

const (
	MessageSeverityInfo MessageSeverity = iota
	MessageSeverityWarning
	MessageSeverityError
	MessageSeverityFatal
)

func (s MessageSeverity) String() string {
	switch s {
	case MessageSeverityInfo:
		return "[INFO]"
	case MessageSeverityWarning:
		return "[WARNING]"
	case MessageSeverityError:
		return "[ERROR]"
	case MessageSeverityFatal:
		return "[### FATAL ERROR ###]"
	}
	return "[unknown]"
}
