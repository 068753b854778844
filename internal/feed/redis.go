package feed

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisFeed implements Feed over Redis Pub/Sub so change notifications reach
// every API instance, not just the one that performed the write.
type RedisFeed struct {
	rdb *redis.Client

	mu   sync.Mutex
	subs map[chan Event]*redis.PubSub
}

func NewRedisFeed(url string) (*RedisFeed, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisFeed{rdb: redis.NewClient(opt), subs: map[chan Event]*redis.PubSub{}}, nil
}

func (f *RedisFeed) Subscribe(topic string) chan Event {
	ch := make(chan Event, 16)
	ctx := context.Background()
	ps := f.rdb.Subscribe(ctx, f.chanName(topic))
	// initial receive confirms the subscription is established
	_, _ = ps.Receive(ctx)
	f.mu.Lock()
	f.subs[ch] = ps
	f.mu.Unlock()
	go func() {
		defer close(ch)
		for msg := range ps.Channel() {
			var evt Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err == nil {
				select {
				case ch <- evt:
				default:
				}
			}
		}
	}()
	return ch
}

func (f *RedisFeed) Unsubscribe(topic string, ch chan Event) {
	f.mu.Lock()
	ps := f.subs[ch]
	delete(f.subs, ch)
	f.mu.Unlock()
	if ps != nil {
		// closing the PubSub ends ps.Channel(), which closes ch
		_ = ps.Close()
	}
}

func (f *RedisFeed) Publish(topic string, evt Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	data, _ := json.Marshal(evt)
	_ = f.rdb.Publish(ctx, f.chanName(topic), data).Err()
}

func (f *RedisFeed) chanName(topic string) string { return "feed:" + topic }
