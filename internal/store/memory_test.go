package store

import (
	"context"
	"testing"
	"time"

	"github.com/BigPharmacist/wild-kaeee-sub002/internal/model"
)

func seedTour(t *testing.T, m *Memory) model.Tour {
	t.Helper()
	tour, err := m.CreateTour(context.Background(), model.Tour{PharmacyID: "ph1", Name: "Tour", Date: "2026-08-29"})
	if err != nil {
		t.Fatal(err)
	}
	return tour
}

func seedStop(t *testing.T, m *Memory, tourID string, sort int) model.Stop {
	t.Helper()
	s, err := m.CreateStop(context.Background(), model.Stop{TourID: tourID, Name: "S", SortOrder: sort})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestMemoryListStopsOrdered(t *testing.T) {
	m := NewMemory()
	tour := seedTour(t, m)
	c := seedStop(t, m, tour.ID, 2)
	a := seedStop(t, m, tour.ID, 0)
	b := seedStop(t, m, tour.ID, 1)

	stops, err := m.ListStops(context.Background(), tour.ID)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{a.ID, b.ID, c.ID}
	for i, w := range want {
		if stops[i].ID != w {
			t.Fatalf("pos %d = %s, want %s", i, stops[i].ID, w)
		}
	}
}

func TestMemoryReorderStops(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	tour := seedTour(t, m)
	a := seedStop(t, m, tour.ID, 0)
	b := seedStop(t, m, tour.ID, 1)
	c := seedStop(t, m, tour.ID, 2)

	if err := m.ReorderStops(ctx, tour.ID, []string{a.ID, b.ID}); err == nil {
		t.Fatal("short order accepted")
	}
	if err := m.ReorderStops(ctx, tour.ID, []string{a.ID, b.ID, "ghost"}); err == nil {
		t.Fatal("foreign id accepted")
	}
	if err := m.ReorderStops(ctx, tour.ID, []string{c.ID, a.ID, b.ID}); err != nil {
		t.Fatalf("reorder: %v", err)
	}
	stops, _ := m.ListStops(ctx, tour.ID)
	for i, want := range []string{c.ID, a.ID, b.ID} {
		if stops[i].ID != want || stops[i].SortOrder != i {
			t.Fatalf("pos %d: %s/%d", i, stops[i].ID, stops[i].SortOrder)
		}
	}
}

func TestMemoryUpdateStopPinsTour(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	t1 := seedTour(t, m)
	t2 := seedTour(t, m)
	s := seedStop(t, m, t1.ID, 0)

	s.TourID = t2.ID
	got, err := m.UpdateStop(ctx, s)
	if err != nil {
		t.Fatal(err)
	}
	if got.TourID != t1.ID {
		t.Fatalf("stop moved tours: %s", got.TourID)
	}
}

func TestMemoryDeleteTourCascades(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	tour := seedTour(t, m)
	s := seedStop(t, m, tour.ID, 0)
	ev, err := m.CreateEvidence(ctx, model.Evidence{StopID: s.ID, Kind: model.EvidencePhoto, URL: "/files/x"})
	if err != nil {
		t.Fatal(err)
	}

	if err := m.DeleteTour(ctx, tour.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := m.GetStop(ctx, s.ID); err != ErrNotFound {
		t.Fatalf("stop survived tour delete: %v", err)
	}
	if err := m.DeleteEvidence(ctx, ev.ID); err != ErrNotFound {
		t.Fatalf("evidence survived cascade: %v", err)
	}
}

func TestMemoryCustomerLookups(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	if _, err := m.CreateCustomer(ctx, model.Customer{PharmacyID: "ph1", Name: "Erika Engel", Street: "Eichenallee 8"}); err != nil {
		t.Fatal(err)
	}

	if _, err := m.FindCustomerExact(ctx, "ph1", "Erika Engel", "Eichenallee 8"); err != nil {
		t.Fatalf("exact: %v", err)
	}
	if _, err := m.FindCustomerExact(ctx, "ph1", "erika engel", "Eichenallee 8"); err != ErrNotFound {
		t.Fatalf("exact must be case-sensitive: %v", err)
	}
	if _, err := m.FindCustomerFold(ctx, "ph1", "ERIKA ENGEL"); err != nil {
		t.Fatalf("fold: %v", err)
	}
	if _, err := m.FindCustomerFold(ctx, "ph2", "Erika Engel"); err != ErrNotFound {
		t.Fatalf("fold crossed pharmacies: %v", err)
	}
}

func TestMemoryLatestPositionsByRecordedAt(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	base := time.Now().UTC()

	// Insertion order is newest first; RecordedAt must win.
	if _, err := m.AppendPosition(ctx, model.DriverPosition{CourierID: "c1", RecordedAt: base.Add(time.Minute)}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.AppendPosition(ctx, model.DriverPosition{CourierID: "c1", RecordedAt: base}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.AppendPosition(ctx, model.DriverPosition{CourierID: "c2", RecordedAt: base}); err != nil {
		t.Fatal(err)
	}

	ps, err := m.LatestPositions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(ps) != 2 {
		t.Fatalf("couriers = %d", len(ps))
	}
	if ps[0].CourierID != "c1" || !ps[0].RecordedAt.Equal(base.Add(time.Minute)) {
		t.Fatalf("latest c1 = %+v", ps[0])
	}

	one, err := m.LatestPositionFor(ctx, "c1")
	if err != nil || !one.RecordedAt.Equal(base.Add(time.Minute)) {
		t.Fatalf("latest for c1 = %+v, %v", one, err)
	}
}

func TestMemoryListToursFilters(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	if _, err := m.CreateTour(ctx, model.Tour{PharmacyID: "ph1", Date: "2026-08-29", Status: model.TourActive}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.CreateTour(ctx, model.Tour{PharmacyID: "ph1", Date: "2026-08-30"}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.CreateTour(ctx, model.Tour{PharmacyID: "ph2", Date: "2026-08-29"}); err != nil {
		t.Fatal(err)
	}

	got, _ := m.ListTours(ctx, "ph1", "", "", 0)
	if len(got) != 2 {
		t.Fatalf("ph1 tours = %d", len(got))
	}
	got, _ = m.ListTours(ctx, "ph1", model.TourActive, "", 0)
	if len(got) != 1 {
		t.Fatalf("active ph1 tours = %d", len(got))
	}
	got, _ = m.ListTours(ctx, "", "", "2026-08-29", 0)
	if len(got) != 2 {
		t.Fatalf("date tours = %d", len(got))
	}
}
