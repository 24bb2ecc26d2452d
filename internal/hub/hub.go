// Package hub fans processed samples out to live feed subscribers.
//
// Publish never blocks on a slow or disconnected subscriber: each delivery
// is attempted independently and backpressure on one subscriber is isolated
// to that subscriber. Within a subscriber, samples arrive in publish order.
package hub

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/oszuidwest/zwfm-noisewatch/internal/types"
)

const (
	// subscriberBuffer is the number of samples buffered per subscriber.
	subscriberBuffer = 32
	// maxConsecutiveDrops is how many deliveries in a row a subscriber may
	// miss before it is considered stalled and evicted from the set.
	maxConsecutiveDrops = 50
)

// Subscriber is a handle to one registered feed consumer.
type Subscriber struct {
	id    uuid.UUID
	ch    chan types.Sample
	drops int // consecutive missed deliveries, guarded by the hub mutex
}

// ID returns the subscriber's unique identifier.
func (s *Subscriber) ID() uuid.UUID {
	return s.id
}

// Samples returns the subscriber's delivery channel. It is closed when the
// subscriber is unsubscribed or evicted.
func (s *Subscriber) Samples() <-chan types.Sample {
	return s.ch
}

// Hub distributes each published sample to all registered subscribers.
// It is safe for concurrent use.
type Hub struct {
	mu          sync.Mutex
	subscribers map[uuid.UUID]*Subscriber
}

// New returns an empty Hub.
func New() *Hub {
	return &Hub{
		subscribers: make(map[uuid.UUID]*Subscriber),
	}
}

// Subscribe registers a new feed consumer. The consumer receives only
// samples published after registration; there is no replay.
func (h *Hub) Subscribe() *Subscriber {
	sub := &Subscriber{
		id: uuid.New(),
		ch: make(chan types.Sample, subscriberBuffer),
	}

	h.mu.Lock()
	h.subscribers[sub.id] = sub
	h.mu.Unlock()

	return sub
}

// Unsubscribe removes a subscriber and closes its channel. Safe to call for
// an already removed subscriber.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(sub)
}

func (h *Hub) removeLocked(sub *Subscriber) {
	if _, ok := h.subscribers[sub.id]; !ok {
		return
	}
	delete(h.subscribers, sub.id)
	close(sub.ch)
}

// Publish delivers one sample to every current subscriber. It returns once
// handoff is complete; it never waits for consumption. A sample that does
// not fit a subscriber's buffer is dropped for that subscriber only, and a
// subscriber that misses too many deliveries in a row is evicted.
func (h *Hub) Publish(sample types.Sample) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sub := range h.subscribers {
		select {
		case sub.ch <- sample:
			sub.drops = 0
		default:
			sub.drops++
			if sub.drops >= maxConsecutiveDrops {
				slog.Warn("evicting stalled feed subscriber", "id", sub.id)
				h.removeLocked(sub)
			}
		}
	}
}

// Count returns the number of registered subscribers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Close unsubscribes every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subscribers {
		h.removeLocked(sub)
	}
}
