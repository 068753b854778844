package feed

import (
	"sync"
)

// Topics published by the tour and tracking services.
const (
	TopicTours     = "tours"
	TopicStops     = "stops"
	TopicPositions = "positions"
)

// Event is one row-level change notification.
type Event struct {
	Table  string         `json:"table"`
	Action string         `json:"action"` // created, updated, deleted
	ID     string         `json:"id,omitempty"`
	TourID string         `json:"tourId,omitempty"`
	Data   map[string]any `json:"data,omitempty"`
}

// Feed is the change-notification channel between services and live views.
type Feed interface {
	Subscribe(topic string) chan Event
	Unsubscribe(topic string, ch chan Event)
	Publish(topic string, evt Event)
}

// Broker is the in-process Feed used when no REDIS_URL is configured.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{} // topic -> set of channels
}

func NewBroker() *Broker {
	return &Broker{subs: map[string]map[chan Event]struct{}{}}
}

func (b *Broker) Subscribe(topic string) chan Event {
	ch := make(chan Event, 8)
	b.mu.Lock()
	if b.subs[topic] == nil {
		b.subs[topic] = map[chan Event]struct{}{}
	}
	b.subs[topic][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(topic string, ch chan Event) {
	b.mu.Lock()
	if m := b.subs[topic]; m != nil {
		if _, ok := m[ch]; ok {
			delete(m, ch)
			close(ch)
		}
		if len(m) == 0 {
			delete(b.subs, topic)
		}
	}
	b.mu.Unlock()
}

// Publish delivers evt to every subscriber without blocking; slow consumers
// drop events rather than stall the publisher.
func (b *Broker) Publish(topic string, evt Event) {
	b.mu.Lock()
	for ch := range b.subs[topic] {
		select {
		case ch <- evt:
		default:
		}
	}
	b.mu.Unlock()
}
