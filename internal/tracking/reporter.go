package tracking

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/BigPharmacist/wild-kaeee-sub002/internal/feed"
	"github.com/BigPharmacist/wild-kaeee-sub002/internal/metrics"
	"github.com/BigPharmacist/wild-kaeee-sub002/internal/model"
	"github.com/BigPharmacist/wild-kaeee-sub002/internal/store"
)

// PositionSource yields courier position samples, typically a device GPS
// bridge. Watch streams samples until ctx ends; Current is a one-shot read
// used as a poll backstop when the stream goes quiet.
type PositionSource interface {
	Watch(ctx context.Context) (<-chan model.DriverPosition, error)
	Current(ctx context.Context) (*model.DriverPosition, error)
}

// Reporter persists samples from a PositionSource and fans them out on the
// positions feed. It combines a continuous watch with a periodic poll so a
// stalled stream still produces a sample per interval. Start and Stop are
// idempotent; source errors are recorded, not fatal.
type Reporter struct {
	store    store.Store
	feed     feed.Feed
	source   PositionSource
	interval time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	lastErr error
	lastAt  time.Time
}

func NewReporter(st store.Store, f feed.Feed, src PositionSource, interval time.Duration) *Reporter {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Reporter{store: st, feed: f, source: src, interval: interval}
}

// Start launches the reporting loop. Calling Start on a running reporter is a no-op.
func (r *Reporter) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.run(ctx, r.done)
}

// Stop halts the loop and waits for it to exit. Stopping a stopped reporter
// is a no-op.
func (r *Reporter) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel = nil
	r.done = nil
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the loop is live.
func (r *Reporter) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancel != nil
}

// LastError returns the most recent source or store error, if any.
func (r *Reporter) LastError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

func (r *Reporter) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	var stream <-chan model.DriverPosition
	openStream := func() {
		ch, err := r.source.Watch(ctx)
		if err != nil {
			r.setErr(err)
			return
		}
		stream = ch
	}
	openStream()

	for {
		select {
		case <-ctx.Done():
			return
		case pos, ok := <-stream:
			if !ok {
				// Stream ended; the next tick both polls and reopens it.
				stream = nil
				continue
			}
			r.record(ctx, pos, "watch")
		case <-ticker.C:
			if stream == nil {
				openStream()
			}
			pos, err := r.source.Current(ctx)
			if err != nil {
				r.setErr(err)
				continue
			}
			if pos != nil {
				r.record(ctx, *pos, "poll")
			}
		}
	}
}

func (r *Reporter) record(ctx context.Context, pos model.DriverPosition, origin string) {
	r.mu.Lock()
	stale := !pos.RecordedAt.After(r.lastAt)
	if !stale {
		r.lastAt = pos.RecordedAt
	}
	r.mu.Unlock()
	// The poll backstop re-reads the same fix the watch already delivered;
	// only genuinely newer samples are appended.
	if stale {
		return
	}
	saved, err := r.store.AppendPosition(ctx, pos)
	if err != nil {
		r.setErr(err)
		return
	}
	r.mu.Lock()
	r.lastErr = nil
	r.mu.Unlock()
	metrics.PositionSamples.WithLabelValues(origin).Inc()
	r.feed.Publish(feed.TopicPositions, feed.Event{Table: "positions", Action: "created", ID: saved.ID, TourID: saved.TourID})
}

func (r *Reporter) setErr(err error) {
	if err == context.Canceled {
		return
	}
	r.mu.Lock()
	r.lastErr = err
	r.mu.Unlock()
	log.Printf("tracking: reporter: %v", err)
}
