package feed

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestBrokerFanout(t *testing.T) {
	b := NewBroker()
	a := b.Subscribe(TopicStops)
	c := b.Subscribe(TopicStops)
	other := b.Subscribe(TopicTours)

	b.Publish(TopicStops, Event{Table: "stops", Action: "created", ID: "s1"})

	for _, ch := range []chan Event{a, c} {
		select {
		case evt := <-ch:
			if evt.ID != "s1" {
				t.Fatalf("event = %+v", evt)
			}
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
	select {
	case evt := <-other:
		t.Fatalf("cross-topic delivery: %+v", evt)
	default:
	}
}

func TestBrokerUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe(TopicTours)
	b.Unsubscribe(TopicTours, ch)
	if _, ok := <-ch; ok {
		t.Fatal("channel still open after unsubscribe")
	}
	// Double unsubscribe must not panic on the closed channel.
	b.Unsubscribe(TopicTours, ch)
}

func TestBrokerPublishDoesNotBlockOnSlowConsumer(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe(TopicPositions)
	for i := 0; i < cap(ch)+5; i++ {
		b.Publish(TopicPositions, Event{Table: "positions", Action: "created"})
	}
	// Reaching here means the publisher dropped instead of stalling.
	b.Unsubscribe(TopicPositions, ch)
}

func TestLiveViewDeliversEventsAndPollTicks(t *testing.T) {
	b := NewBroker()
	var events, polls atomic.Int64
	v := NewLiveView(b, TopicStops, 20*time.Millisecond, func(evt Event) {
		if evt.Action == "poll" {
			polls.Add(1)
			return
		}
		events.Add(1)
	})
	defer v.Close()

	b.Publish(TopicStops, Event{Table: "stops", Action: "updated"})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if events.Load() >= 1 && polls.Load() >= 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("events=%d polls=%d", events.Load(), polls.Load())
}

func TestLiveViewCloseIsIdempotent(t *testing.T) {
	b := NewBroker()
	v := NewLiveView(b, TopicTours, 0, func(Event) {})
	v.Close()
	v.Close()
}
