package tours

import (
	"context"
	"strings"
	"testing"

	"github.com/BigPharmacist/wild-kaeee-sub002/internal/model"
)

func TestImportCompletesCleanBatch(t *testing.T) {
	svc, _ := newTestService(fakeGeo{})
	ctx := context.Background()
	tour := createTour(t, svc)

	st, err := svc.StartImport(ctx, tour.ID, model.ImportBatch{Candidates: []model.ImportCandidate{
		{CustomerName: "Anna Adler", Street: "Ahornweg 1", PostalCode: "10115", City: "Berlin"},
		{CustomerName: "Bernd Busch", Street: "Birkenweg 2", PostalCode: "10117", City: "Berlin", Items: 3, CashAmount: 19.99},
	}})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if st.State != ImportDone || st.Imported != 2 || st.Index != 2 {
		t.Fatalf("status = %+v", st)
	}
	stops, _ := svc.ListStops(ctx, tour.ID)
	if len(stops) != 2 {
		t.Fatalf("stops = %d", len(stops))
	}
	if stops[1].PackageCount != 3 || stops[1].CashAmount != 19.99 {
		t.Fatalf("candidate fields lost: %+v", stops[1])
	}
}

func TestImportPausesOnIncompleteAddress(t *testing.T) {
	svc, _ := newTestService(fakeGeo{})
	ctx := context.Background()
	tour := createTour(t, svc)

	st, err := svc.StartImport(ctx, tour.ID, model.ImportBatch{Candidates: []model.ImportCandidate{
		{CustomerName: "Anna Adler", Street: "Ahornweg 1", PostalCode: "10115", City: "Berlin"},
		{CustomerName: "Bernd Busch", Street: "Birkenweg 2", PostalCode: "101", City: "Berlin"},
		{CustomerName: "Clara Cramer", Street: "Cranachstr. 3", PostalCode: "10119", City: "Berlin"},
	}})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if st.State != ImportPaused || st.Index != 1 || st.Imported != 1 {
		t.Fatalf("status = %+v", st)
	}
	if st.Candidate == nil || st.Candidate.CustomerName != "Bernd Busch" {
		t.Fatalf("paused candidate = %+v", st.Candidate)
	}

	// The corrected candidate replaces the paused one; the run then finishes.
	st, err = svc.ResumeImport(ctx, tour.ID, &model.ImportCandidate{
		CustomerName: "Bernd Busch", Street: "Birkenweg 2", PostalCode: "10117", City: "Berlin",
	})
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if st.State != ImportDone || st.Imported != 3 {
		t.Fatalf("status after resume = %+v", st)
	}
	stops, _ := svc.ListStops(ctx, tour.ID)
	if len(stops) != 3 {
		t.Fatalf("stops = %d", len(stops))
	}
	if stops[1].PostalCode != "10117" {
		t.Fatalf("correction not applied: %+v", stops[1])
	}
}

func TestImportResumeWithoutCorrectionImportsAsIs(t *testing.T) {
	svc, _ := newTestService(fakeGeo{})
	ctx := context.Background()
	tour := createTour(t, svc)

	st, _ := svc.StartImport(ctx, tour.ID, model.ImportBatch{Candidates: []model.ImportCandidate{
		{CustomerName: "Bernd Busch", City: "Berlin"},
	}})
	if st.State != ImportPaused {
		t.Fatalf("status = %+v", st)
	}
	st, err := svc.ResumeImport(ctx, tour.ID, nil)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if st.State != ImportDone || st.Imported != 1 {
		t.Fatalf("status = %+v", st)
	}
	stops, _ := svc.ListStops(ctx, tour.ID)
	if len(stops) != 1 || stops[0].Street != "" {
		t.Fatalf("stops = %+v", stops)
	}
}

func TestImportCancelRetainsImportedStops(t *testing.T) {
	svc, _ := newTestService(fakeGeo{})
	ctx := context.Background()
	tour := createTour(t, svc)

	st, _ := svc.StartImport(ctx, tour.ID, model.ImportBatch{Candidates: []model.ImportCandidate{
		{CustomerName: "Anna Adler", Street: "Ahornweg 1", PostalCode: "10115", City: "Berlin"},
		{CustomerName: "Bernd Busch"},
	}})
	if st.State != ImportPaused {
		t.Fatalf("status = %+v", st)
	}
	st, err := svc.CancelImport(tour.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if st.State != ImportCancelled || st.Imported != 1 {
		t.Fatalf("status = %+v", st)
	}
	stops, _ := svc.ListStops(ctx, tour.ID)
	if len(stops) != 1 {
		t.Fatalf("imported stops dropped on cancel: %d", len(stops))
	}
	if _, err := svc.ResumeImport(ctx, tour.ID, nil); !IsValidation(err) {
		t.Fatalf("resume cancelled: err = %v", err)
	}
	// A cancelled run does not block a fresh one.
	if _, err := svc.StartImport(ctx, tour.ID, model.ImportBatch{}); err != nil {
		t.Fatalf("restart after cancel: %v", err)
	}
}

func TestImportRejectsConcurrentRun(t *testing.T) {
	svc, _ := newTestService(fakeGeo{})
	ctx := context.Background()
	tour := createTour(t, svc)

	if _, err := svc.StartImport(ctx, tour.ID, model.ImportBatch{Candidates: []model.ImportCandidate{
		{CustomerName: "Bernd Busch"},
	}}); err != nil {
		t.Fatal(err)
	}
	_, err := svc.StartImport(ctx, tour.ID, model.ImportBatch{})
	if !IsValidation(err) || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("second import: err = %v", err)
	}
}

func TestImportMergesKnownCustomer(t *testing.T) {
	svc, mem := newTestService(fakeGeo{})
	ctx := context.Background()
	if _, err := mem.CreateCustomer(ctx, model.Customer{
		PharmacyID: "ph1", Name: "Erika Engel", Street: "Eichenallee 8", PostalCode: "10243", City: "Berlin",
	}); err != nil {
		t.Fatal(err)
	}
	tour := createTour(t, svc)

	// OCR got the name in the wrong case and lost the address.
	st, err := svc.StartImport(ctx, tour.ID, model.ImportBatch{Candidates: []model.ImportCandidate{
		{CustomerName: "ERIKA ENGEL"},
	}})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if st.State != ImportDone || st.Imported != 1 {
		t.Fatalf("status = %+v", st)
	}
	stops, _ := svc.ListStops(ctx, tour.ID)
	if stops[0].Street != "Eichenallee 8" || stops[0].PostalCode != "10243" {
		t.Fatalf("customer fields not merged: %+v", stops[0])
	}
}

func TestImportAppliesDetectedTourMetadata(t *testing.T) {
	svc, _ := newTestService(fakeGeo{})
	ctx := context.Background()
	tour := createTour(t, svc)

	st, err := svc.StartImport(ctx, tour.ID, model.ImportBatch{
		DetectedDate: "2026-09-02",
		DetectedName: "Botendienst Mittwoch",
	})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if st.State != ImportDone || st.Total != 0 {
		t.Fatalf("status = %+v", st)
	}
	got, _ := svc.GetTour(ctx, tour.ID)
	if got.Date != "2026-09-02" || got.Name != "Botendienst Mittwoch" {
		t.Fatalf("metadata not applied: %+v", got)
	}
}
