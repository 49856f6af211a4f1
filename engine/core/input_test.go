package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInputFiresOnlyOnChange(t *testing.T) {
	es := NewEventSystem()
	var pressed, released []KeyCode
	es.Register(EVENT_CODE_KEY_PRESSED, func(ctx EventContext) {
		pressed = append(pressed, ctx.Data.(*KeyEvent).KeyCode)
	})
	es.Register(EVENT_CODE_KEY_RELEASED, func(ctx EventContext) {
		released = append(released, ctx.Data.(*KeyEvent).KeyCode)
	})
	in := NewInput(es)

	in.ProcessKey(KEY_W, true)
	in.ProcessKey(KEY_W, true)
	in.ProcessKey(KEY_UNKNOWN, true)
	require.Equal(t, []KeyCode{KEY_W}, pressed)
	assert.True(t, in.IsKeyDown(KEY_W))
	assert.False(t, in.WasKeyDown(KEY_W))

	in.Update()
	assert.True(t, in.WasKeyDown(KEY_W))
	in.ProcessKey(KEY_W, false)
	assert.Equal(t, []KeyCode{KEY_W}, released)
	assert.True(t, in.IsKeyUp(KEY_W))
	assert.False(t, in.IsKeyDown(KEYS_MAX_KEYS+1))
}

func TestInputRecordsEveryNamedKey(t *testing.T) {
	in := NewInput(nil)
	keys := []KeyCode{KEY_ENTER, KEY_ESCAPE, KEY_SPACE, KEY_LEFT, KEY_UP, KEY_RIGHT, KEY_DOWN,
		KEY_A, KEY_D, KEY_E, KEY_Q, KEY_R, KEY_S, KEY_V, KEY_W}
	for _, key := range keys {
		require.Less(t, key, KEYS_MAX_KEYS)
		in.ProcessKey(key, true)
		assert.True(t, in.IsKeyDown(key), "key 0x%x", uint16(key))
	}
}
