package agentloop

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitterDeliversEvents(t *testing.T) {
	emitter := NewEventEmitter("run-1", 4)
	emitter.Emit(EventRunStart, map[string]any{"prompt": "hi"})
	emitter.Close()

	var events []RunEvent
	for event := range emitter.Events() {
		events = append(events, event)
	}
	require.Len(t, events, 1)
	assert.Equal(t, EventRunStart, events[0].Kind)
	assert.Equal(t, "run-1", events[0].RunID)
	assert.Equal(t, "hi", events[0].Data["prompt"])
	assert.False(t, events[0].Timestamp.IsZero())
}

func TestEmitterDropsWhenFull(t *testing.T) {
	emitter := NewEventEmitter("run-1", 1)
	emitter.Emit(EventRunStart, nil)
	emitter.Emit(EventRunEnd, nil) // buffer full, must not block
	emitter.Close()

	count := 0
	for range emitter.Events() {
		count++
	}
	assert.Equal(t, 1, count)
}

func TestEmitterEmitAfterClose(t *testing.T) {
	emitter := NewEventEmitter("run-1", 1)
	emitter.Close()
	emitter.Close() // idempotent
	emitter.Emit(EventRunStart, nil)

	count := 0
	for range emitter.Events() {
		count++
	}
	assert.Equal(t, 0, count)
}
