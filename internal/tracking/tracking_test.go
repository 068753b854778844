package tracking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/BigPharmacist/wild-kaeee-sub002/internal/feed"
	"github.com/BigPharmacist/wild-kaeee-sub002/internal/model"
	"github.com/BigPharmacist/wild-kaeee-sub002/internal/store"
)

// fakeSource serves canned samples: Watch streams from a channel, Current
// returns whatever was set last.
type fakeSource struct {
	mu      sync.Mutex
	stream  chan model.DriverPosition
	current *model.DriverPosition
}

func newFakeSource() *fakeSource {
	return &fakeSource{stream: make(chan model.DriverPosition, 8)}
}

func (f *fakeSource) Watch(ctx context.Context) (<-chan model.DriverPosition, error) {
	return f.stream, nil
}

func (f *fakeSource) Current(ctx context.Context) (*model.DriverPosition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current, nil
}

func (f *fakeSource) setCurrent(p model.DriverPosition) {
	f.mu.Lock()
	f.current = &p
	f.mu.Unlock()
}

func sample(courier string, at time.Time) model.DriverPosition {
	return model.DriverPosition{CourierID: courier, Lat: 52.5, Lng: 13.4, RecordedAt: at}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestReporterRecordsWatchSamples(t *testing.T) {
	mem := store.NewMemory()
	src := newFakeSource()
	r := NewReporter(mem, feed.NewBroker(), src, time.Minute)
	r.Start()
	defer r.Stop()

	base := time.Now().UTC()
	src.stream <- sample("c1", base)
	src.stream <- sample("c1", base.Add(time.Second))

	waitFor(t, func() bool {
		ps, _ := mem.LatestPositions(context.Background())
		return len(ps) == 1 && ps[0].RecordedAt.Equal(base.Add(time.Second))
	})
}

func TestReporterDropsStaleSamples(t *testing.T) {
	mem := store.NewMemory()
	src := newFakeSource()
	r := NewReporter(mem, feed.NewBroker(), src, time.Minute)
	r.Start()
	defer r.Stop()

	base := time.Now().UTC()
	src.stream <- sample("c1", base)
	src.stream <- sample("c1", base) // same fix again
	src.stream <- sample("c1", base.Add(-time.Second))

	waitFor(t, func() bool {
		p, err := mem.LatestPositionFor(context.Background(), "c1")
		return err == nil && p.RecordedAt.Equal(base)
	})
	// Give the loop a beat, then confirm only one sample landed.
	time.Sleep(50 * time.Millisecond)
	ps, _ := mem.LatestPositions(context.Background())
	if len(ps) != 1 {
		t.Fatalf("positions = %d", len(ps))
	}
}

func TestReporterPollBackstop(t *testing.T) {
	mem := store.NewMemory()
	src := newFakeSource()
	src.setCurrent(sample("c2", time.Now().UTC()))
	r := NewReporter(mem, feed.NewBroker(), src, 20*time.Millisecond)
	r.Start()
	defer r.Stop()

	waitFor(t, func() bool {
		_, err := mem.LatestPositionFor(context.Background(), "c2")
		return err == nil
	})
}

func TestReporterStartStopIdempotent(t *testing.T) {
	mem := store.NewMemory()
	r := NewReporter(mem, feed.NewBroker(), newFakeSource(), time.Minute)
	r.Start()
	r.Start()
	if !r.Running() {
		t.Fatal("not running after Start")
	}
	r.Stop()
	r.Stop()
	if r.Running() {
		t.Fatal("still running after Stop")
	}
	r.Start()
	if !r.Running() {
		t.Fatal("restart failed")
	}
	r.Stop()
}

func TestAggregatorTracksNewestByRecordedAt(t *testing.T) {
	mem := store.NewMemory()
	b := feed.NewBroker()
	ctx := context.Background()
	base := time.Now().UTC()

	// Newest by RecordedAt arrives first; the later append is older.
	if _, err := mem.AppendPosition(ctx, sample("c1", base.Add(time.Minute))); err != nil {
		t.Fatal(err)
	}
	if _, err := mem.AppendPosition(ctx, sample("c1", base)); err != nil {
		t.Fatal(err)
	}

	agg := NewAggregator(mem, b, time.Minute)
	defer agg.Close()

	got := agg.Latest()
	if len(got) != 1 || !got[0].RecordedAt.Equal(base.Add(time.Minute)) {
		t.Fatalf("latest = %+v", got)
	}

	// A feed event refreshes the cache without waiting for the timer.
	if _, err := mem.AppendPosition(ctx, sample("c2", base.Add(2*time.Minute))); err != nil {
		t.Fatal(err)
	}
	b.Publish(feed.TopicPositions, feed.Event{Table: "positions", Action: "created"})
	waitFor(t, func() bool { return len(agg.Latest()) == 2 })
}

func TestAggregatorCurrentPosition(t *testing.T) {
	mem := store.NewMemory()
	agg := NewAggregator(mem, feed.NewBroker(), time.Minute)
	defer agg.Close()

	if _, err := agg.CurrentPosition(context.Background(), "ghost"); err != store.ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
