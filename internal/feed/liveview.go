package feed

import (
	"sync"
	"time"
)

// LiveView invokes onChange whenever a topic event arrives, and additionally
// on a fixed interval as a fallback for when the notification channel is
// unavailable or lossy. Callers see one refresh signal regardless of whether
// push or poll produced it.
type LiveView struct {
	feed     Feed
	topic    string
	ch       chan Event
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewLiveView subscribes to topic and starts the refresh loop. interval <= 0
// disables the poll fallback.
func NewLiveView(f Feed, topic string, interval time.Duration, onChange func(Event)) *LiveView {
	v := &LiveView{
		feed:  f,
		topic: topic,
		ch:    f.Subscribe(topic),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go func() {
		defer close(v.done)
		var tick <-chan time.Time
		if interval > 0 {
			t := time.NewTicker(interval)
			defer t.Stop()
			tick = t.C
		}
		for {
			select {
			case <-v.stop:
				return
			case evt, ok := <-v.ch:
				if !ok {
					return
				}
				onChange(evt)
			case <-tick:
				onChange(Event{Table: v.topic, Action: "poll"})
			}
		}
	}()
	return v
}

// Close unsubscribes and stops the loop. Safe to call more than once.
func (v *LiveView) Close() {
	v.stopOnce.Do(func() {
		close(v.stop)
		v.feed.Unsubscribe(v.topic, v.ch)
	})
	<-v.done
}
