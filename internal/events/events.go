// Package events is the observability surface of the orchestration engine.
// Agents publish a typed event at every documented point of the loop; hosts
// subscribe to forward them to UIs or logs. Publishing must never block or
// fail the loop, even with no listener attached.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/goelayush89/robin-ai-sub000/api/schemas"
)

// EventType tags the union below.
type EventType string

const (
	EventStatusChanged        EventType = "status-changed"
	EventIterationStarted     EventType = "iteration-started"
	EventIterationCompleted   EventType = "iteration-completed"
	EventScreenshotCaptured   EventType = "screenshot-captured"
	EventAnalysisCompleted    EventType = "analysis-completed"
	EventActionStarted        EventType = "action-started"
	EventActionCompleted      EventType = "action-completed"
	EventModeSwitched         EventType = "mode-switched"
	EventUserInputRequested   EventType = "user-input-requested"
	EventMaxIterationsReached EventType = "max-iterations-reached"
	EventError                EventType = "error"
)

// Event is a tagged union: Type selects which payload fields are meaningful.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	AgentID   string    `json:"agent_id,omitempty"`
	SessionID string    `json:"session_id,omitempty"`

	Status       schemas.AgentStatus    `json:"status,omitempty"`        // status-changed
	Iteration    int                    `json:"iteration,omitempty"`     // iteration-*
	Screenshot   *schemas.Screenshot    `json:"screenshot,omitempty"`    // screenshot-captured
	Response     *schemas.ModelResponse `json:"response,omitempty"`      // analysis-completed
	Action       *schemas.Action        `json:"action,omitempty"`        // action-*
	Result       *schemas.ActionResult  `json:"result,omitempty"`        // action-completed
	Mode         schemas.Mode           `json:"mode,omitempty"`          // mode-switched
	PreviousMode schemas.Mode           `json:"previous_mode,omitempty"` // mode-switched
	Error        string                 `json:"error,omitempty"`         // error
}

// Bus fans events out to subscribers. Delivery is best effort: a subscriber
// whose buffer is full loses the event rather than stalling the agent loop.
type Bus struct {
	logger      *zap.Logger
	bufferSize  int
	mu          sync.RWMutex
	subscribers map[EventType][]chan Event
	closed      bool
}

// NewBus initializes an event bus with the given per-subscriber buffer.
func NewBus(logger *zap.Logger, bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Bus{
		logger:      logger.Named("events"),
		bufferSize:  bufferSize,
		subscribers: make(map[EventType][]chan Event),
	}
}

// Publish enriches and delivers an event. It never blocks: slow subscribers
// drop events, and a closed bus swallows them.
func (b *Bus) Publish(ev Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subscribers[ev.Type] {
		select {
		case ch <- ev:
		default:
			b.logger.Debug("Dropping event for slow subscriber", zap.String("type", string(ev.Type)))
		}
	}
}

// Subscribe returns a channel receiving the given event types (all types if
// none are named) and an unsubscribe func that also closes the channel.
func (b *Bus) Subscribe(types ...EventType) (<-chan Event, func()) {
	if len(types) == 0 {
		types = []EventType{
			EventStatusChanged, EventIterationStarted, EventIterationCompleted,
			EventScreenshotCaptured, EventAnalysisCompleted, EventActionStarted,
			EventActionCompleted, EventModeSwitched, EventUserInputRequested,
			EventMaxIterationsReached, EventError,
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.bufferSize)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	for _, t := range types {
		b.subscribers[t] = append(b.subscribers[t], ch)
	}

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if b.closed {
				return
			}
			for _, t := range types {
				subs := b.subscribers[t]
				for i, sub := range subs {
					if sub == ch {
						b.subscribers[t] = append(subs[:i], subs[i+1:]...)
						break
					}
				}
			}
			close(ch)
		})
	}
	return ch, unsubscribe
}

// Close shuts the bus down and closes every subscriber channel. Idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true

	unique := make(map[chan Event]struct{})
	for _, subs := range b.subscribers {
		for _, ch := range subs {
			unique[ch] = struct{}{}
		}
	}
	for ch := range unique {
		close(ch)
	}
	b.subscribers = make(map[EventType][]chan Event)
}
