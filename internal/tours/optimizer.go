package tours

import (
	"context"
	"log"
	"sort"
	"time"

	"github.com/BigPharmacist/wild-kaeee-sub002/internal/geo"
	"github.com/BigPharmacist/wild-kaeee-sub002/internal/metrics"
	"github.com/BigPharmacist/wild-kaeee-sub002/internal/model"
)

// OptimizeResult reports what a route optimization did. Unchanged means the
// tour had no geocoded pending stops, so the order was left alone.
type OptimizeResult struct {
	Source    string   `json:"source"` // "service" or "heuristic"
	Unchanged bool     `json:"unchanged"`
	Order     []string `json:"order"`
	Tour      model.Tour `json:"tour"`
}

// OptimizeRoute recomputes the visiting order for a tour's pending stops.
// Stops already in a terminal status keep their position at the front of the
// order; only pending stops are resequenced. The external routing service is
// tried first; any failure there falls back to a local nearest-neighbor pass
// with 2-opt improvement, so optimization degrades rather than breaking.
func (s *Service) OptimizeRoute(ctx context.Context, tourID string) (*OptimizeResult, error) {
	unlock := s.locks.lock(tourID)
	defer unlock()

	t, err := s.store.GetTour(ctx, tourID)
	if err != nil {
		return nil, err
	}
	stops, err := s.store.ListStops(ctx, tourID)
	if err != nil {
		return nil, err
	}

	var frozen, pending []model.Stop
	for _, st := range stops {
		if st.Status == model.StopPending {
			pending = append(pending, st)
		} else {
			frozen = append(frozen, st)
		}
	}
	if len(pending) < 2 {
		return nil, validationf("tour has %d pending stops, need at least 2 to optimize", len(pending))
	}

	// Opportunistic backfill for stops added before geocoding was available.
	for i := range pending {
		if pending[i].Location == nil && pending[i].Street != "" {
			if loc := s.resolve(ctx, pending[i].Street, pending[i].PostalCode, pending[i].City); loc != nil {
				pending[i].Location = loc
				if updated, uerr := s.store.UpdateStop(ctx, pending[i]); uerr == nil {
					pending[i] = updated
				}
			}
		}
	}

	var geocoded, ungeocoded []model.Stop
	for _, st := range pending {
		if st.Location != nil {
			geocoded = append(geocoded, st)
		} else {
			ungeocoded = append(ungeocoded, st)
		}
	}
	if len(geocoded) == 0 {
		metrics.Optimizations.WithLabelValues("unchanged").Inc()
		order := make([]string, 0, len(stops))
		for _, st := range stops {
			order = append(order, st.ID)
		}
		return &OptimizeResult{Source: "none", Unchanged: true, Order: order, Tour: t}, nil
	}

	source := "heuristic"
	var optimized []string
	var result *geo.RouteResult
	if s.router != nil && s.router.Configured() {
		routeStops := make([]geo.RouteStop, 0, len(geocoded))
		for _, st := range geocoded {
			routeStops = append(routeStops, geo.RouteStop{ID: st.ID, Location: *st.Location})
		}
		res, rerr := s.router.Optimize(ctx, s.origin, routeStops)
		if rerr != nil {
			log.Printf("tours: route service for tour %s: %v", tourID, rerr)
		} else {
			source = "service"
			optimized = res.Order
			result = res
		}
	}
	if optimized == nil {
		optimized = heuristicOrder(s.origin, geocoded)
	}

	order := make([]string, 0, len(stops))
	for _, st := range frozen {
		order = append(order, st.ID)
	}
	order = append(order, optimized...)
	for _, st := range ungeocoded {
		order = append(order, st.ID)
	}
	if err := s.store.ReorderStops(ctx, tourID, order); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	t.OptimizedAt = &now
	if result != nil {
		t.PathEncoding = result.PathEncoding
		t.DistanceKm = &result.DistanceKm
		dur := result.DurationMinutes
		t.DurationMinutes = &dur
	} else {
		dist := heuristicDistanceKm(s.origin, geocoded, optimized)
		t.PathEncoding = ""
		t.DistanceKm = &dist
		t.DurationMinutes = nil
	}
	t, err = s.store.UpdateTour(ctx, t)
	if err != nil {
		return nil, err
	}
	metrics.Optimizations.WithLabelValues(source).Inc()
	s.publishTour("updated", t)
	return &OptimizeResult{Source: source, Order: order, Tour: t}, nil
}

// heuristicOrder runs a deterministic nearest-neighbor pass over geocoded
// stops, starting from the origin when one is configured and from the first
// stop otherwise. Distance ties break on stop ID so repeated runs agree.
func heuristicOrder(origin *model.LatLng, stops []model.Stop) []string {
	nodes := make([]model.LatLng, len(stops))
	for i, st := range stops {
		nodes[i] = *st.Location
	}

	remaining := make([]int, len(stops))
	for i := range remaining {
		remaining[i] = i
	}
	sort.Slice(remaining, func(a, b int) bool { return stops[remaining[a]].ID < stops[remaining[b]].ID })

	var order []int
	var cur model.LatLng
	if origin != nil {
		cur = *origin
	} else {
		first := remaining[0]
		cur = nodes[first]
		order = append(order, first)
		remaining = remaining[1:]
	}
	for len(remaining) > 0 {
		bestIdx := 0
		bestDist := geo.HaversineKm(cur, nodes[remaining[0]])
		for i := 1; i < len(remaining); i++ {
			d := geo.HaversineKm(cur, nodes[remaining[i]])
			if d < bestDist {
				bestDist = d
				bestIdx = i
			}
		}
		next := remaining[bestIdx]
		order = append(order, next)
		cur = nodes[next]
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	order = geo.ImproveOrder2Opt(nodes, order, 3)

	out := make([]string, len(order))
	for i, idx := range order {
		out[i] = stops[idx].ID
	}
	return out
}

func heuristicDistanceKm(origin *model.LatLng, stops []model.Stop, order []string) float64 {
	byID := make(map[string]model.LatLng, len(stops))
	for _, st := range stops {
		byID[st.ID] = *st.Location
	}
	total := 0.0
	var cur *model.LatLng
	if origin != nil {
		cur = origin
	}
	for _, id := range order {
		loc, ok := byID[id]
		if !ok {
			continue
		}
		if cur != nil {
			total += geo.HaversineKm(*cur, loc)
		}
		cur = &loc
	}
	if origin != nil && cur != nil {
		total += geo.HaversineKm(*cur, *origin)
	}
	return total
}
