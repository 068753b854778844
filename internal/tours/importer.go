package tours

import (
	"context"
	"log"
	"regexp"
	"sync"

	"github.com/BigPharmacist/wild-kaeee-sub002/internal/metrics"
	"github.com/BigPharmacist/wild-kaeee-sub002/internal/model"
	"github.com/BigPharmacist/wild-kaeee-sub002/internal/store"
)

// Import pipeline states.
const (
	ImportProcessing = "processing"
	ImportPaused     = "pausedForCorrection"
	ImportDone       = "done"
	ImportCancelled  = "cancelled"
)

var postalRe = regexp.MustCompile(`^\d{5}$`)

// ImportStatus is a snapshot of one batch run. While paused it carries the
// offending candidate and the partial customer match the operator can correct
// against.
type ImportStatus struct {
	State     string                 `json:"state"`
	Index     int                    `json:"index"`
	Total     int                    `json:"total"`
	Imported  int                    `json:"imported"`
	Candidate *model.ImportCandidate `json:"candidate,omitempty"`
	Match     *model.Customer        `json:"match,omitempty"`
}

// Import is one sequential run over an OCR candidate batch. Candidates are
// imported strictly in order; an incomplete address pauses the run until an
// operator resumes or cancels it. Imported stops survive a cancel.
type Import struct {
	mu         sync.Mutex
	svc        *Service
	tourID     string
	pharmacyID string
	batch      model.ImportBatch
	idx        int
	imported   int
	state      string
	candidate  *model.ImportCandidate
	match      *model.Customer
}

// StartImport begins importing a candidate batch into a tour. Detected tour
// metadata from the source document is applied first, before any stop lands.
// Only one run may be live per tour at a time.
func (s *Service) StartImport(ctx context.Context, tourID string, batch model.ImportBatch) (*ImportStatus, error) {
	t, err := s.store.GetTour(ctx, tourID)
	if err != nil {
		return nil, err
	}
	if t.Status == model.TourCompleted || t.Status == model.TourCancelled {
		return nil, validationf("cannot import into a %s tour", t.Status)
	}

	s.importMu.Lock()
	if prev := s.imports[tourID]; prev != nil {
		if st := prev.Status(); st.State == ImportProcessing || st.State == ImportPaused {
			s.importMu.Unlock()
			return nil, validationf("an import is already running for tour %s", tourID)
		}
	}
	imp := &Import{svc: s, tourID: tourID, pharmacyID: t.PharmacyID, batch: batch, state: ImportProcessing}
	s.imports[tourID] = imp
	s.importMu.Unlock()

	if batch.DetectedDate != "" || batch.DetectedName != "" {
		patch := model.TourPatch{Date: batch.DetectedDate, Name: batch.DetectedName}
		if _, err := s.UpdateTour(ctx, tourID, patch); err != nil {
			log.Printf("tours: apply detected metadata to tour %s: %v", tourID, err)
		}
	}

	st := imp.run(ctx)
	return st, nil
}

// ImportStatus returns the latest batch run for a tour, finished or not.
func (s *Service) ImportStatus(tourID string) (*ImportStatus, error) {
	s.importMu.Lock()
	imp := s.imports[tourID]
	s.importMu.Unlock()
	if imp == nil {
		return nil, store.ErrNotFound
	}
	st := imp.Status()
	return &st, nil
}

// ResumeImport continues a paused run. With a corrected candidate the
// correction is imported in place of the paused one; with nil the paused
// candidate is imported as-is, incomplete address and all.
func (s *Service) ResumeImport(ctx context.Context, tourID string, corrected *model.ImportCandidate) (*ImportStatus, error) {
	s.importMu.Lock()
	imp := s.imports[tourID]
	s.importMu.Unlock()
	if imp == nil {
		return nil, store.ErrNotFound
	}
	return imp.Resume(ctx, corrected)
}

// CancelImport abandons a running or paused run. Stops already imported stay.
func (s *Service) CancelImport(tourID string) (*ImportStatus, error) {
	s.importMu.Lock()
	imp := s.imports[tourID]
	s.importMu.Unlock()
	if imp == nil {
		return nil, store.ErrNotFound
	}
	return imp.Cancel()
}

func (i *Import) Status() ImportStatus {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.snapshotLocked()
}

func (i *Import) snapshotLocked() ImportStatus {
	return ImportStatus{
		State:     i.state,
		Index:     i.idx,
		Total:     len(i.batch.Candidates),
		Imported:  i.imported,
		Candidate: i.candidate,
		Match:     i.match,
	}
}

// run walks candidates in order until the batch is done or a candidate fails
// the completeness test. It runs in the caller's goroutine; the batch sizes
// involved (a day's delivery sheet) do not warrant more.
func (i *Import) run(ctx context.Context) *ImportStatus {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.runLocked(ctx)
}

func (i *Import) runLocked(ctx context.Context) *ImportStatus {
	for i.state == ImportProcessing && i.idx < len(i.batch.Candidates) {
		cand := i.batch.Candidates[i.idx]
		match := i.lookupMatch(ctx, cand.CustomerName)
		merged := mergeCandidate(cand, match)
		if !addressComplete(merged) {
			i.state = ImportPaused
			i.candidate = &cand
			i.match = match
			st := i.snapshotLocked()
			return &st
		}
		i.importCandidate(ctx, merged, match, "auto")
		i.idx++
	}
	if i.state == ImportProcessing {
		i.state = ImportDone
		i.candidate = nil
		i.match = nil
		i.svc.reoptimizeAfterImport(ctx, i.tourID, i.imported)
	}
	st := i.snapshotLocked()
	return &st
}

func (i *Import) Resume(ctx context.Context, corrected *model.ImportCandidate) (*ImportStatus, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state != ImportPaused {
		return nil, validationf("import is %s, not paused", i.state)
	}
	cand := i.batch.Candidates[i.idx]
	outcome := "skipped"
	if corrected != nil {
		cand = *corrected
		outcome = "corrected"
	}
	match := i.lookupMatch(ctx, cand.CustomerName)
	i.importCandidate(ctx, mergeCandidate(cand, match), match, outcome)
	i.idx++
	i.state = ImportProcessing
	i.candidate = nil
	i.match = nil
	return i.runLocked(ctx), nil
}

func (i *Import) Cancel() (*ImportStatus, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state == ImportDone || i.state == ImportCancelled {
		return nil, validationf("import is already %s", i.state)
	}
	i.state = ImportCancelled
	i.candidate = nil
	i.match = nil
	st := i.snapshotLocked()
	return &st, nil
}

// lookupMatch finds a known customer by case-insensitive name. OCR mangles
// case routinely, so the exact-match path used for manual adds is too strict here.
func (i *Import) lookupMatch(ctx context.Context, name string) *model.Customer {
	if name == "" {
		return nil
	}
	c, err := i.svc.store.FindCustomerFold(ctx, i.pharmacyID, name)
	if err != nil {
		if err != store.ErrNotFound {
			log.Printf("tours: import customer lookup %q: %v", name, err)
		}
		return nil
	}
	return &c
}

// mergeCandidate fills gaps in an OCR candidate from a matched customer
// record. Candidate fields win where present.
func mergeCandidate(c model.ImportCandidate, match *model.Customer) model.ImportCandidate {
	if match == nil {
		return c
	}
	if c.Street == "" {
		c.Street = match.Street
	}
	if c.PostalCode == "" {
		c.PostalCode = match.PostalCode
	}
	if c.City == "" {
		c.City = match.City
	}
	if c.Phone == "" {
		c.Phone = match.Phone
	}
	return c
}

func addressComplete(c model.ImportCandidate) bool {
	return c.Street != "" && c.City != "" && postalRe.MatchString(c.PostalCode)
}

func (i *Import) importCandidate(ctx context.Context, cand model.ImportCandidate, match *model.Customer, outcome string) {
	// Use the matched customer's canonical name so the stop links back to the
	// existing record instead of minting an OCR-cased duplicate.
	if match != nil {
		cand.CustomerName = match.Name
	}
	_, err := i.svc.addStop(ctx, i.tourID, model.StopInput{
		CustomerName: cand.CustomerName,
		Street:       cand.Street,
		PostalCode:   cand.PostalCode,
		City:         cand.City,
		Phone:        cand.Phone,
		PackageCount: cand.Items,
		CashAmount:   cand.CashAmount,
		Notes:        cand.Notes,
	})
	if err != nil {
		log.Printf("tours: import stop %q into tour %s: %v", cand.CustomerName, i.tourID, err)
		return
	}
	i.imported++
	metrics.StopsImported.WithLabelValues(outcome).Inc()
}

// reoptimizeAfterImport runs one route optimization for the whole batch
// instead of one per stop. Failures are logged; the import still counts as done.
func (s *Service) reoptimizeAfterImport(ctx context.Context, tourID string, imported int) {
	if imported == 0 {
		return
	}
	if _, err := s.OptimizeRoute(ctx, tourID); err != nil && !IsValidation(err) {
		log.Printf("tours: reoptimize after import into tour %s: %v", tourID, err)
	}
}
