package tracking

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/BigPharmacist/wild-kaeee-sub002/internal/feed"
	"github.com/BigPharmacist/wild-kaeee-sub002/internal/model"
	"github.com/BigPharmacist/wild-kaeee-sub002/internal/store"
)

// Aggregator maintains the latest position per courier for live map views.
// It refreshes on every positions feed event and additionally on a timer, so
// a dropped event at worst delays the view by one interval.
type Aggregator struct {
	store store.Store
	view  *feed.LiveView

	mu     sync.RWMutex
	latest map[string]model.DriverPosition
}

func NewAggregator(st store.Store, f feed.Feed, refresh time.Duration) *Aggregator {
	a := &Aggregator{store: st, latest: map[string]model.DriverPosition{}}
	a.view = feed.NewLiveView(f, feed.TopicPositions, refresh, func(feed.Event) {
		a.refresh()
	})
	a.refresh()
	return a
}

func (a *Aggregator) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	positions, err := a.store.LatestPositions(ctx)
	if err != nil {
		log.Printf("tracking: refresh positions: %v", err)
		return
	}
	next := make(map[string]model.DriverPosition, len(positions))
	for _, p := range positions {
		next[p.CourierID] = p
	}
	a.mu.Lock()
	a.latest = next
	a.mu.Unlock()
}

// Latest returns the cached newest sample per courier, keyed by sample time,
// not arrival order.
func (a *Aggregator) Latest() []model.DriverPosition {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]model.DriverPosition, 0, len(a.latest))
	for _, p := range a.latest {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CourierID < out[j].CourierID })
	return out
}

// CurrentPosition reads one courier's newest sample straight from the store,
// bypassing the cache.
func (a *Aggregator) CurrentPosition(ctx context.Context, courierID string) (model.DriverPosition, error) {
	return a.store.LatestPositionFor(ctx, courierID)
}

func (a *Aggregator) Close() {
	a.view.Close()
}
