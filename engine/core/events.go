package core

import "sync"

// System internal event codes. Application should use codes beyond 255.
type SystemEventCode int

const (
	// Shuts the application down on the next frame.
	EVENT_CODE_APPLICATION_QUIT SystemEventCode = 0x01

	// Keyboard key pressed.
	/* Context usage:
	 * ke := context.Data.(*core.KeyEvent)
	 */
	EVENT_CODE_KEY_PRESSED SystemEventCode = 0x02

	// Keyboard key released.
	/* Context usage:
	 * ke := context.Data.(*core.KeyEvent)
	 */
	EVENT_CODE_KEY_RELEASED SystemEventCode = 0x03

	// Resized/resolution changed from the OS.
	/* Context usage:
	 * se := context.Data.(*core.SystemEvent)
	 */
	EVENT_CODE_RESIZED SystemEventCode = 0x08

	// Back buffers are about to be released.
	EVENT_CODE_BACKBUFFER_RESIZING SystemEventCode = 0x09

	// Back buffers were recreated with a new size.
	/* Context usage:
	 * se := context.Data.(*core.SystemEvent)
	 */
	EVENT_CODE_BACKBUFFER_RESIZED SystemEventCode = 0x0A

	// A watched asset changed on disk.
	/* Context usage:
	 * path := context.Data.(string)
	 */
	EVENT_CODE_ASSET_CHANGED SystemEventCode = 0x0B

	MAX_EVENT_CODE SystemEventCode = 0xFF
)

type SystemEvent struct {
	WindowWidth  uint32
	WindowHeight uint32
}

type KeyEvent struct {
	KeyCode KeyCode
}

type EventContext struct {
	Type SystemEventCode
	Data interface{}
}

type FnOnEvent func(context EventContext)

type registeredEvent struct {
	id       uint32
	callback FnOnEvent
}

// EventSystem dispatches events synchronously, in registration order, on the
// goroutine that fires them.
type EventSystem struct {
	mu         sync.RWMutex
	nextID     uint32
	registered map[SystemEventCode][]registeredEvent
}

func NewEventSystem() *EventSystem {
	return &EventSystem{
		registered: make(map[SystemEventCode][]registeredEvent),
	}
}

/**
 * Register to listen for when events are sent with the provided code.
 * @param code The event code to listen for.
 * @param onEvent The callback to be invoked when the event code is fired.
 * @returns an identifier to be passed to Unregister.
 */
func (es *EventSystem) Register(code SystemEventCode, onEvent FnOnEvent) uint32 {
	es.mu.Lock()
	defer es.mu.Unlock()
	es.nextID++
	es.registered[code] = append(es.registered[code], registeredEvent{id: es.nextID, callback: onEvent})
	return es.nextID
}

// Unregister returns false if no registration matches.
func (es *EventSystem) Unregister(code SystemEventCode, id uint32) bool {
	es.mu.Lock()
	defer es.mu.Unlock()
	events := es.registered[code]
	for i := range events {
		if events[i].id == id {
			es.registered[code] = append(events[:i], events[i+1:]...)
			return true
		}
	}
	return false
}

/**
 * Fires an event to every listener of the given code.
 * @returns true if at least one listener was invoked.
 */
func (es *EventSystem) Fire(context EventContext) bool {
	es.mu.RLock()
	events := make([]registeredEvent, len(es.registered[context.Type]))
	copy(events, es.registered[context.Type])
	es.mu.RUnlock()

	for _, e := range events {
		e.callback(context)
	}
	return len(events) > 0
}

func (es *EventSystem) Shutdown() {
	es.mu.Lock()
	defer es.mu.Unlock()
	es.registered = make(map[SystemEventCode][]registeredEvent)
}
