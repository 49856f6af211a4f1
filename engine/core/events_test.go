package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventSystemFiresInRegistrationOrder(t *testing.T) {
	es := NewEventSystem()
	var order []int
	es.Register(EVENT_CODE_RESIZED, func(EventContext) { order = append(order, 1) })
	id := es.Register(EVENT_CODE_RESIZED, func(EventContext) { order = append(order, 2) })
	es.Register(EVENT_CODE_RESIZED, func(EventContext) { order = append(order, 3) })

	assert.True(t, es.Fire(EventContext{Type: EVENT_CODE_RESIZED}))
	assert.Equal(t, []int{1, 2, 3}, order)

	assert.True(t, es.Unregister(EVENT_CODE_RESIZED, id))
	assert.False(t, es.Unregister(EVENT_CODE_RESIZED, id))

	order = nil
	es.Fire(EventContext{Type: EVENT_CODE_RESIZED})
	assert.Equal(t, []int{1, 3}, order)
}

func TestEventSystemPassesData(t *testing.T) {
	es := NewEventSystem()
	var got *SystemEvent
	es.Register(EVENT_CODE_BACKBUFFER_RESIZED, func(ctx EventContext) {
		got = ctx.Data.(*SystemEvent)
	})
	assert.False(t, es.Fire(EventContext{Type: EVENT_CODE_APPLICATION_QUIT}))
	es.Fire(EventContext{Type: EVENT_CODE_BACKBUFFER_RESIZED, Data: &SystemEvent{WindowWidth: 800, WindowHeight: 600}})
	assert.Equal(t, uint32(800), got.WindowWidth)
	assert.Equal(t, uint32(600), got.WindowHeight)
}
