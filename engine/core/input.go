package core

import "sync"

// Key code definitions, laid out like the virtual key codes of the platform layer.
type KeyCode uint16

const (
	KEY_UNKNOWN KeyCode = 0x00
	KEY_ENTER   KeyCode = 0x0D
	KEY_ESCAPE  KeyCode = 0x1B
	KEY_SPACE   KeyCode = 0x20
	KEY_LEFT    KeyCode = 0x25
	KEY_UP      KeyCode = 0x26
	KEY_RIGHT   KeyCode = 0x27
	KEY_DOWN    KeyCode = 0x28
	KEY_A       KeyCode = 0x41
	KEY_D       KeyCode = 0x44
	KEY_E       KeyCode = 0x45
	KEY_Q       KeyCode = 0x51
	KEY_R       KeyCode = 0x52
	KEY_S       KeyCode = 0x53
	KEY_V       KeyCode = 0x56
	KEY_W       KeyCode = 0x57
	KEYS_MAX_KEYS KeyCode = 0x100
)

// Keyboard state structure
type KeyboardState struct {
	Keys [KEYS_MAX_KEYS]bool
}

/**
 * @brief Keyboard state of the current and the previous frame. Key
 * changes are fired as EVENT_CODE_KEY_PRESSED/RELEASED on the event
 * system it was created with.
 */
type Input struct {
	mu       sync.Mutex
	events   *EventSystem
	current  KeyboardState
	previous KeyboardState
}

// NewInput fires key events on events, which may be nil.
func NewInput(events *EventSystem) *Input {
	return &Input{events: events}
}

// Update copies the current state to the previous one. Call once per frame.
func (in *Input) Update() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.previous = in.current
}

func (in *Input) IsKeyDown(key KeyCode) bool {
	if key >= KEYS_MAX_KEYS {
		return false
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.current.Keys[key]
}

func (in *Input) IsKeyUp(key KeyCode) bool {
	return !in.IsKeyDown(key)
}

func (in *Input) WasKeyDown(key KeyCode) bool {
	if key >= KEYS_MAX_KEYS {
		return false
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.previous.Keys[key]
}

// ProcessKey records a key change. Events are only fired when the state actually changed.
func (in *Input) ProcessKey(key KeyCode, pressed bool) {
	if key == KEY_UNKNOWN || key >= KEYS_MAX_KEYS {
		return
	}
	in.mu.Lock()
	changed := in.current.Keys[key] != pressed
	in.current.Keys[key] = pressed
	in.mu.Unlock()

	if !changed || in.events == nil {
		return
	}
	code := EVENT_CODE_KEY_RELEASED
	if pressed {
		code = EVENT_CODE_KEY_PRESSED
	}
	in.events.Fire(EventContext{Type: code, Data: &KeyEvent{KeyCode: key}})
}
