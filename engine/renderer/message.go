package renderer

import (
	"fmt"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// MessageCallback receives diagnostics from a backend.
type MessageCallback func(severity metadata.MessageSeverity, msg string) error

// DefaultMessageCallback logs messages and turns fatal ones into core.ErrFatalDevice.
func DefaultMessageCallback(severity metadata.MessageSeverity, msg string) error {
	line := fmt.Sprintf("%s %s", severity, msg)
	switch severity {
	case metadata.MessageSeverityInfo:
		core.LogInfo("%s", line)
	case metadata.MessageSeverityWarning:
		core.LogWarn("%s", line)
	case metadata.MessageSeverityError:
		core.LogError("%s", line)
	case metadata.MessageSeverityFatal:
		core.LogError("%s", line)
		core.LogError("Fatal error encountered, look above ^")
		return fmt.Errorf("%w: %s", core.ErrFatalDevice, msg)
	}
	return nil
}
