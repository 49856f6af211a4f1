package platform

import (
	"testing"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/stretchr/testify/assert"
)

func TestKeysTranslate(t *testing.T) {
	assert.Equal(t, core.KEY_ESCAPE, TranslateKey(glfw.KeyEscape))
	assert.Equal(t, core.KEY_W, TranslateKey(glfw.KeyW))
	assert.Equal(t, core.KEY_UNKNOWN, TranslateKey(glfw.KeyF12))
}

func TestWindowlessPlatformNeverCloses(t *testing.T) {
	p := New(core.NewEventSystem(), nil)
	assert.NoError(t, p.Startup("test", 0, 0, 64, 64, false))
	assert.True(t, p.PumpMessages())
	w, h := p.FramebufferSize()
	assert.Zero(t, w)
	assert.Zero(t, h)
	assert.GreaterOrEqual(t, p.GetAbsoluteTime(), 0.0)
	assert.NoError(t, p.Shutdown())
}
