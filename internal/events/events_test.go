// File: internal/events/events_test.go
package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/goelayush89/robin-ai-sub000/api/schemas"
)

func newTestBus(t *testing.T) *Bus {
	t.Helper()
	bus := NewBus(zap.NewNop(), 8)
	t.Cleanup(bus.Close)
	return bus
}

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestBusPublishEnrichesEvents(t *testing.T) {
	bus := newTestBus(t)
	ch, unsubscribe := bus.Subscribe(EventStatusChanged)
	defer unsubscribe()

	bus.Publish(Event{Type: EventStatusChanged, Status: schemas.StatusRunning})

	ev := receive(t, ch)
	assert.Equal(t, EventStatusChanged, ev.Type)
	assert.Equal(t, schemas.StatusRunning, ev.Status)
	assert.NotEmpty(t, ev.ID, "publish must assign an event id")
	assert.False(t, ev.Timestamp.IsZero(), "publish must stamp the event")
}

func TestBusTypeFiltering(t *testing.T) {
	bus := newTestBus(t)
	ch, unsubscribe := bus.Subscribe(EventActionCompleted)
	defer unsubscribe()

	bus.Publish(Event{Type: EventIterationStarted, Iteration: 1})
	bus.Publish(Event{Type: EventActionCompleted})

	ev := receive(t, ch)
	assert.Equal(t, EventActionCompleted, ev.Type, "filtered subscriber must only see its types")
}

func TestBusSubscribeAllTypes(t *testing.T) {
	bus := newTestBus(t)
	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	bus.Publish(Event{Type: EventModeSwitched, Mode: schemas.ModeBrowser})
	ev := receive(t, ch)
	assert.Equal(t, EventModeSwitched, ev.Type)
}

func TestBusPublishNeverBlocks(t *testing.T) {
	bus := NewBus(zap.NewNop(), 1)
	defer bus.Close()

	_, unsubscribe := bus.Subscribe(EventError)
	defer unsubscribe()

	// Nobody is draining the channel; the second publish must drop, not hang.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Publish(Event{Type: EventError, Error: "boom"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
}

func TestBusUnsubscribeIsIdempotent(t *testing.T) {
	bus := newTestBus(t)
	ch, unsubscribe := bus.Subscribe(EventStatusChanged)

	unsubscribe()
	require.NotPanics(t, unsubscribe)

	_, open := <-ch
	assert.False(t, open, "unsubscribe must close the channel")
}

func TestBusCloseIsIdempotentAndSwallowsPublishes(t *testing.T) {
	bus := NewBus(zap.NewNop(), 4)
	ch, _ := bus.Subscribe(EventStatusChanged)

	bus.Close()
	require.NotPanics(t, bus.Close)
	require.NotPanics(t, func() {
		bus.Publish(Event{Type: EventStatusChanged})
	})

	_, open := <-ch
	assert.False(t, open, "close must close subscriber channels")
}
