package tours

import (
	"context"
	"errors"
	"testing"

	"github.com/BigPharmacist/wild-kaeee-sub002/internal/feed"
	"github.com/BigPharmacist/wild-kaeee-sub002/internal/geo"
	"github.com/BigPharmacist/wild-kaeee-sub002/internal/model"
	"github.com/BigPharmacist/wild-kaeee-sub002/internal/store"
)

// fakeRouter returns a canned result, or an error to force the fallback.
type fakeRouter struct {
	res *geo.RouteResult
	err error
}

func (f fakeRouter) Configured() bool { return true }

func (f fakeRouter) Optimize(_ context.Context, _ *model.LatLng, stops []geo.RouteStop) (*geo.RouteResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.res != nil {
		return f.res, nil
	}
	// Default: reverse the submitted order.
	order := make([]string, len(stops))
	for i, s := range stops {
		order[len(stops)-1-i] = s.ID
	}
	return &geo.RouteResult{Order: order, PathEncoding: "encoded", DistanceKm: 12.5, DurationMinutes: 42}, nil
}

func TestOptimizeNeedsTwoPendingStops(t *testing.T) {
	svc, _ := newTestService(fakeGeo{})
	ctx := context.Background()
	tour := createTour(t, svc)
	if _, err := svc.OptimizeRoute(ctx, tour.ID); !IsValidation(err) {
		t.Fatalf("empty tour: err = %v, want validation error", err)
	}
	if _, err := svc.addStop(ctx, tour.ID, model.StopInput{CustomerName: "A"}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.OptimizeRoute(ctx, tour.ID); !IsValidation(err) {
		t.Fatalf("single stop: err = %v, want validation error", err)
	}
}

func TestOptimizeHeuristicKeepsFrozenPrefix(t *testing.T) {
	gc := fakeGeo{coords: map[string]model.LatLng{
		"Far 9":  {Lat: 0, Lng: 0.09},
		"Near 1": {Lat: 0, Lng: 0.01},
		"Mid 5":  {Lat: 0, Lng: 0.05},
	}}
	svc, _ := newTestService(gc)
	ctx := context.Background()
	tour := createTour(t, svc)

	done, _ := svc.addStop(ctx, tour.ID, model.StopInput{CustomerName: "Done", Street: "Far 9"})
	far, _ := svc.addStop(ctx, tour.ID, model.StopInput{CustomerName: "Far", Street: "Far 9"})
	near, _ := svc.addStop(ctx, tour.ID, model.StopInput{CustomerName: "Near", Street: "Near 1"})
	mid, _ := svc.addStop(ctx, tour.ID, model.StopInput{CustomerName: "Mid", Street: "Mid 5"})
	if _, err := svc.CompleteStop(ctx, done.ID, nil); err != nil {
		t.Fatal(err)
	}

	res, err := svc.OptimizeRoute(ctx, tour.ID)
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if res.Source != "heuristic" || res.Unchanged {
		t.Fatalf("result = %+v", res)
	}
	want := []string{done.ID, near.ID, mid.ID, far.ID}
	stops, _ := svc.ListStops(ctx, tour.ID)
	for i, w := range want {
		if stops[i].ID != w {
			t.Fatalf("pos %d = %s, want %s (order %v)", i, stops[i].ID, w, res.Order)
		}
		if stops[i].SortOrder != i {
			t.Fatalf("pos %d sort = %d", i, stops[i].SortOrder)
		}
	}
	if res.Tour.OptimizedAt == nil || res.Tour.DistanceKm == nil {
		t.Fatalf("tour aggregates not set: %+v", res.Tour)
	}
	if res.Tour.DurationMinutes != nil {
		t.Fatal("heuristic result should not claim a duration")
	}
}

func TestOptimizeRouterResultPersisted(t *testing.T) {
	gc := fakeGeo{coords: map[string]model.LatLng{
		"A 1": {Lat: 0, Lng: 0.01},
		"B 2": {Lat: 0, Lng: 0.02},
	}}
	mem := store.NewMemory()
	svc := NewService(mem, gc, fakeRouter{}, feed.NewBroker(), nil)
	ctx := context.Background()
	tour := createTour(t, svc)
	a, _ := svc.addStop(ctx, tour.ID, model.StopInput{CustomerName: "A", Street: "A 1"})
	b, _ := svc.addStop(ctx, tour.ID, model.StopInput{CustomerName: "B", Street: "B 2"})

	res, err := svc.OptimizeRoute(ctx, tour.ID)
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if res.Source != "service" {
		t.Fatalf("source = %s", res.Source)
	}
	stops, _ := svc.ListStops(ctx, tour.ID)
	if stops[0].ID != b.ID || stops[1].ID != a.ID {
		t.Fatalf("order not persisted: %s %s", stops[0].ID, stops[1].ID)
	}
	got, _ := svc.GetTour(ctx, tour.ID)
	if got.PathEncoding != "encoded" || got.DistanceKm == nil || *got.DistanceKm != 12.5 {
		t.Fatalf("tour aggregates: %+v", got)
	}
	if got.DurationMinutes == nil || *got.DurationMinutes != 42 {
		t.Fatalf("duration: %v", got.DurationMinutes)
	}
}

func TestOptimizeFallsBackWhenRouterFails(t *testing.T) {
	gc := fakeGeo{coords: map[string]model.LatLng{
		"A 1": {Lat: 0, Lng: 0.01},
		"B 2": {Lat: 0, Lng: 0.02},
	}}
	mem := store.NewMemory()
	svc := NewService(mem, gc, fakeRouter{err: errors.New("upstream down")}, feed.NewBroker(), &model.LatLng{})
	ctx := context.Background()
	tour := createTour(t, svc)
	svcAdd(t, svc, tour.ID, "A", "A 1")
	svcAdd(t, svc, tour.ID, "B", "B 2")

	res, err := svc.OptimizeRoute(ctx, tour.ID)
	if err != nil {
		t.Fatalf("optimize should fall back, got %v", err)
	}
	if res.Source != "heuristic" {
		t.Fatalf("source = %s", res.Source)
	}
}

func TestOptimizeAppendsUngeocodedStops(t *testing.T) {
	gc := fakeGeo{coords: map[string]model.LatLng{
		"A 1": {Lat: 0, Lng: 0.01},
		"B 2": {Lat: 0, Lng: 0.02},
	}}
	svc, _ := newTestService(gc)
	ctx := context.Background()
	tour := createTour(t, svc)
	svcAdd(t, svc, tour.ID, "NoAddr", "Unknown 7")
	a := svcAdd(t, svc, tour.ID, "A", "A 1")
	b := svcAdd(t, svc, tour.ID, "B", "B 2")

	res, err := svc.OptimizeRoute(ctx, tour.ID)
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	last := res.Order[len(res.Order)-1]
	if last == a.ID || last == b.ID {
		t.Fatalf("ungeocoded stop not appended last: %v", res.Order)
	}
}

func TestOptimizeUnchangedWithoutCoordinates(t *testing.T) {
	svc, _ := newTestService(fakeGeo{})
	ctx := context.Background()
	tour := createTour(t, svc)
	svcAdd(t, svc, tour.ID, "A", "")
	svcAdd(t, svc, tour.ID, "B", "")

	res, err := svc.OptimizeRoute(ctx, tour.ID)
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if !res.Unchanged {
		t.Fatalf("result = %+v, want unchanged", res)
	}
	got, _ := svc.GetTour(ctx, tour.ID)
	if got.OptimizedAt != nil {
		t.Fatal("unchanged run must not stamp optimizedAt")
	}
}

func svcAdd(t *testing.T, svc *Service, tourID, name, street string) model.Stop {
	t.Helper()
	st, err := svc.addStop(context.Background(), tourID, model.StopInput{CustomerName: name, Street: street})
	if err != nil {
		t.Fatalf("add %s: %v", name, err)
	}
	return st
}
