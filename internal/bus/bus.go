// Package bus implements the gateway's event fan-out: every state change,
// execution outcome and heartbeat is published once and delivered to every
// subscriber, each with its own bounded inbox.
package bus

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
)

// Kind enumerates the closed set of event kinds on the wire.
type Kind string

const (
	KindInitialStatus      Kind = "initial_status"
	KindStatusUpdate       Kind = "status_update"
	KindServerEvent        Kind = "server_event"
	KindToolExecution      Kind = "tool_execution"
	KindResourceAccess     Kind = "resource_access"
	KindServerReconnection Kind = "server_reconnection"
	KindMetricsUpdate      Kind = "metrics_update"
	KindHeartbeat          Kind = "heartbeat"

	// KindOverflow marks a gap in one subscriber's stream after its inbox
	// overflowed. It is injected per subscriber, never published globally.
	KindOverflow Kind = "overflow"
)

const (
	// inboxCapacity bounds each subscriber's pending events.
	inboxCapacity = 256

	// heartbeatInterval keeps idle SSE connections warm and detectable.
	heartbeatInterval = 15 * time.Second
)

// Event is one structured event on the bus.
type Event struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// NewEvent builds a standalone event without publishing it, for frames that
// belong to a single subscriber's stream (e.g. an SSE initial snapshot).
func NewEvent(kind Kind, data any) Event {
	return Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// subscriber is one bounded inbox. The queue front is the oldest pending
// event; a pump goroutine moves events onto the subscriber's channel so a
// slow reader never blocks publishers.
type subscriber struct {
	id string

	mu         sync.Mutex
	queue      []Event
	overflowed bool

	wake chan struct{}
	done chan struct{}
	out  chan Event
}

// enqueue applies the overflow rule: a full inbox replaces its oldest pending
// event with a single gap marker, after which older events keep falling off
// behind the marker until the reader catches up.
func (s *subscriber) enqueue(event Event) {
	s.mu.Lock()

	if len(s.queue) < inboxCapacity {
		s.queue = append(s.queue, event)
	} else if !s.overflowed {
		s.overflowed = true
		s.queue[0] = NewEvent(KindOverflow, nil)
		dropSecond(s.queue)
		s.queue[len(s.queue)-1] = event
	} else {
		// Marker already pinned at the front; drop the oldest real event.
		if s.queue[0].Kind == KindOverflow {
			dropSecond(s.queue)
		} else {
			copy(s.queue, s.queue[1:])
		}
		s.queue[len(s.queue)-1] = event
	}
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// dropSecond removes queue[1] in place, shifting everything behind it forward
// and leaving the last slot free for the incoming event.
func dropSecond(queue []Event) {
	copy(queue[1:], queue[2:])
}

// pump delivers queued events to the subscriber channel until done.
func (s *subscriber) pump() {
	defer close(s.out)

	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.queue = nil
			s.mu.Unlock()
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			}
		}
		event := s.queue[0]
		s.queue = s.queue[1:]
		if event.Kind == KindOverflow {
			// The gap has been observed; a later overflow gets a new marker.
			s.overflowed = false
		}
		s.mu.Unlock()

		select {
		case s.out <- event:
		case <-s.done:
			return
		}
	}
}

// Bus fans events out to all subscribers. Publishing never blocks: a full
// inbox follows the overflow rule for that subscriber only, leaving other
// subscribers untouched.
type Bus struct {
	mu     sync.Mutex
	logger hclog.Logger
	subs   map[string]*subscriber
	closed bool
}

// New creates an event bus.
func New(logger hclog.Logger) *Bus {
	return &Bus{
		logger: logger.Named("bus"),
		subs:   make(map[string]*subscriber),
	}
}

// Subscription is one subscriber's view of the bus.
type Subscription struct {
	// ID identifies the subscriber.
	ID string

	// Events delivers this subscriber's events in publish order. Closed when
	// the subscription or the bus closes.
	Events <-chan Event

	bus *Bus
}

// Close detaches the subscription from the bus.
func (s *Subscription) Close() {
	s.bus.unsubscribe(s.ID)
}

// Subscribe attaches a new subscriber with an empty inbox.
func (b *Bus) Subscribe() *Subscription {
	sub := &subscriber{
		id:   uuid.NewString(),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
		out:  make(chan Event),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(sub.out)
		return &Subscription{ID: sub.id, Events: sub.out, bus: b}
	}
	b.subs[sub.id] = sub
	total := len(b.subs)
	b.mu.Unlock()

	go sub.pump()
	b.logger.Debug("subscriber attached", "id", sub.id, "total", total)

	return &Subscription{ID: sub.id, Events: sub.out, bus: b}
}

func (b *Bus) unsubscribe(id string) {
	b.mu.Lock()
	sub, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
	}
	total := len(b.subs)
	b.mu.Unlock()

	if !ok {
		return
	}
	close(sub.done)
	b.logger.Debug("subscriber detached", "id", id, "total", total)
}

// Publish records an event and delivers it to every subscriber.
func (b *Bus) Publish(kind Kind, data any) {
	event := NewEvent(kind, data)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	subs := make([]*subscriber, 0, len(b.subs))
	for _, sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		sub.enqueue(event)
	}
}

// Run emits heartbeats until the context is canceled, then closes the bus.
func (b *Bus) Run(ctx context.Context) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.Close()
			return
		case <-ticker.C:
			b.Publish(KindHeartbeat, nil)
		}
	}
}

// Close detaches all subscribers and rejects further publishes. Idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = make(map[string]*subscriber)
	b.mu.Unlock()

	for _, sub := range subs {
		close(sub.done)
	}
}
