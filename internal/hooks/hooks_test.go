package hooks

import (
	"context"
	"errors"
	"testing"

	"github.com/soyeahso/querydesk/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testManager() *Manager {
	return NewManager(logging.New(nil, "silent"))
}

func TestManager_On_And_Emit(t *testing.T) {
	m := testManager()

	var called bool
	m.On(EventSessionStart, "test", func(_ context.Context, p Payload) error {
		called = true
		assert.Equal(t, EventSessionStart, p.Event)
		return nil
	})

	m.Emit(context.Background(), EventSessionStart, nil)
	assert.True(t, called)
}

func TestManager_Emit_MultipleHandlers(t *testing.T) {
	m := testManager()

	var order []string
	m.On(EventMessageAppended, "first", func(_ context.Context, _ Payload) error {
		order = append(order, "first")
		return nil
	})
	m.On(EventMessageAppended, "second", func(_ context.Context, _ Payload) error {
		order = append(order, "second")
		return nil
	})

	m.Emit(context.Background(), EventMessageAppended, nil)
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestManager_Emit_WithData(t *testing.T) {
	m := testManager()

	var gotData map[string]any
	m.On(EventMessageAppended, "test", func(_ context.Context, p Payload) error {
		gotData = p.Data
		return nil
	})

	m.Emit(context.Background(), EventMessageAppended, map[string]any{
		"messageId": "m-1",
		"role":      "user",
	})

	assert.Equal(t, "m-1", gotData["messageId"])
	assert.Equal(t, "user", gotData["role"])
}

func TestManager_Emit_HandlerError(t *testing.T) {
	m := testManager()

	var secondCalled bool
	m.On(EventSessionStart, "failing", func(_ context.Context, _ Payload) error {
		return errors.New("handler broke")
	})
	m.On(EventSessionStart, "second", func(_ context.Context, _ Payload) error {
		secondCalled = true
		return nil
	})

	// Should not panic; second handler should still run
	m.Emit(context.Background(), EventSessionStart, nil)
	assert.True(t, secondCalled)
}

func TestManager_Emit_NoHandlers(t *testing.T) {
	m := testManager()
	// Should not panic
	m.Emit(context.Background(), EventSessionEnd, nil)
}

func TestManager_Off(t *testing.T) {
	m := testManager()

	var callCount int
	m.On(EventSessionStart, "removable", func(_ context.Context, _ Payload) error {
		callCount++
		return nil
	})

	m.Emit(context.Background(), EventSessionStart, nil)
	assert.Equal(t, 1, callCount)

	m.Off(EventSessionStart, "removable")
	m.Emit(context.Background(), EventSessionStart, nil)
	assert.Equal(t, 1, callCount) // should not have been called again
}

func TestManager_Off_KeepsOthers(t *testing.T) {
	m := testManager()

	var keepCalled int
	m.On(EventSessionStart, "remove-me", func(_ context.Context, _ Payload) error { return nil })
	m.On(EventSessionStart, "keep-me", func(_ context.Context, _ Payload) error {
		keepCalled++
		return nil
	})

	m.Off(EventSessionStart, "remove-me")
	m.Emit(context.Background(), EventSessionStart, nil)
	assert.Equal(t, 1, keepCalled)
}

func TestManager_Count(t *testing.T) {
	m := testManager()

	assert.Equal(t, 0, m.Count(EventSessionStart))

	m.On(EventSessionStart, "h1", func(_ context.Context, _ Payload) error { return nil })
	assert.Equal(t, 1, m.Count(EventSessionStart))

	m.On(EventSessionStart, "h2", func(_ context.Context, _ Payload) error { return nil })
	assert.Equal(t, 2, m.Count(EventSessionStart))
}

func TestManager_Events(t *testing.T) {
	m := testManager()

	m.On(EventSessionStart, "h1", func(_ context.Context, _ Payload) error { return nil })
	m.On(EventMessageAppended, "h2", func(_ context.Context, _ Payload) error { return nil })

	events := m.Events()
	assert.Len(t, events, 2)
	assert.Contains(t, events, EventSessionStart)
	assert.Contains(t, events, EventMessageAppended)
}

func TestAllEvents_NotEmpty(t *testing.T) {
	require.NotEmpty(t, AllEvents)
	assert.Contains(t, AllEvents, EventSessionStart)
	assert.Contains(t, AllEvents, EventMessageAppended)
}

func TestManager_SubscribeAll(t *testing.T) {
	m := testManager()

	var seen []string
	m.Subscribe("renderer", func(_ context.Context, p Payload) error {
		seen = append(seen, p.Event)
		return nil
	})
	for _, ev := range AllEvents {
		assert.Equal(t, 1, m.Count(ev), ev)
	}

	m.Emit(context.Background(), EventLogReset, nil)
	m.Emit(context.Background(), EventThreadBound, nil)
	assert.Equal(t, []string{EventLogReset, EventThreadBound}, seen)

	m.Unsubscribe("renderer")
	m.Emit(context.Background(), EventLogReset, nil)
	assert.Len(t, seen, 2)
	assert.Empty(t, m.Events())
}

func TestManager_SubscribeSelected(t *testing.T) {
	m := testManager()
	m.On(EventStatusChanged, "other", func(_ context.Context, _ Payload) error { return nil })

	m.Subscribe("progress", func(_ context.Context, _ Payload) error { return nil }, EventStatusChanged)
	assert.Equal(t, 2, m.Count(EventStatusChanged))
	assert.Equal(t, 0, m.Count(EventMessageAppended))

	m.Unsubscribe("progress")
	assert.Equal(t, 1, m.Count(EventStatusChanged))
}
