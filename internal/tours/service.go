package tours

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/BigPharmacist/wild-kaeee-sub002/internal/feed"
	"github.com/BigPharmacist/wild-kaeee-sub002/internal/geo"
	"github.com/BigPharmacist/wild-kaeee-sub002/internal/metrics"
	"github.com/BigPharmacist/wild-kaeee-sub002/internal/model"
	"github.com/BigPharmacist/wild-kaeee-sub002/internal/store"
)

// ValidationError marks an operation rejected before any write. Callers map
// it to a 4xx response rather than a server failure.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	_, ok := err.(*ValidationError)
	return ok
}

// Service owns the tour/stop lifecycle, stop sequencing, route optimization
// and the import pipeline. It is constructed with its dependencies and holds
// no global state.
type Service struct {
	store    store.Store
	geocoder geo.Geocoder
	router   geo.Router
	feed     feed.Feed
	origin   *model.LatLng // pharmacy origin/return address, if known

	locks keyedMutex

	importMu sync.Mutex
	imports  map[string]*Import // tourID -> latest batch run
}

func NewService(st store.Store, gc geo.Geocoder, rt geo.Router, f feed.Feed, origin *model.LatLng) *Service {
	return &Service{
		store:    st,
		geocoder: gc,
		router:   rt,
		feed:     f,
		origin:   origin,
		imports:  map[string]*Import{},
	}
}

// keyedMutex serializes operations per tour so a reorder cannot race a
// concurrent append while tours stay independently schedulable.
type keyedMutex struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func (k *keyedMutex) lock(id string) func() {
	k.mu.Lock()
	if k.m == nil {
		k.m = map[string]*sync.Mutex{}
	}
	l := k.m[id]
	if l == nil {
		l = &sync.Mutex{}
		k.m[id] = l
	}
	k.mu.Unlock()
	l.Lock()
	return l.Unlock
}

func (s *Service) CreateTour(ctx context.Context, in model.TourInput) (model.Tour, error) {
	if in.PharmacyID == "" {
		return model.Tour{}, validationf("pharmacyId required")
	}
	if in.Date == "" {
		return model.Tour{}, validationf("date required")
	}
	if in.Name == "" {
		in.Name = "Botendienst " + in.Date
	}
	t, err := s.store.CreateTour(ctx, model.Tour{
		PharmacyID: in.PharmacyID,
		Name:       in.Name,
		Date:       in.Date,
		CourierID:  in.CourierID,
		Status:     model.TourDraft,
		CreatedBy:  in.CreatedBy,
	})
	if err != nil {
		return model.Tour{}, err
	}
	s.publishTour("created", t)
	return t, nil
}

func (s *Service) GetTour(ctx context.Context, id string) (model.Tour, error) {
	return s.store.GetTour(ctx, id)
}

func (s *Service) ListTours(ctx context.Context, pharmacyID, status, date string, limit int) ([]model.Tour, error) {
	return s.store.ListTours(ctx, pharmacyID, status, date, limit)
}

func (s *Service) UpdateTour(ctx context.Context, id string, patch model.TourPatch) (model.Tour, error) {
	t, err := s.store.GetTour(ctx, id)
	if err != nil {
		return model.Tour{}, err
	}
	if patch.Name != "" {
		t.Name = patch.Name
	}
	if patch.Date != "" {
		t.Date = patch.Date
	}
	if patch.CourierID != "" {
		t.CourierID = patch.CourierID
	}
	t, err = s.store.UpdateTour(ctx, t)
	if err != nil {
		return model.Tour{}, err
	}
	s.publishTour("updated", t)
	return t, nil
}

func (s *Service) DeleteTour(ctx context.Context, id string) error {
	if err := s.store.DeleteTour(ctx, id); err != nil {
		return err
	}
	s.feed.Publish(feed.TopicTours, feed.Event{Table: "tours", Action: "deleted", ID: id})
	return nil
}

// StartTour moves draft -> active and stamps started_at exactly once.
func (s *Service) StartTour(ctx context.Context, id string) (model.Tour, error) {
	return s.transitionTour(ctx, id, model.TourActive)
}

// CompleteTour moves active -> completed and stamps completed_at exactly once.
func (s *Service) CompleteTour(ctx context.Context, id string) (model.Tour, error) {
	return s.transitionTour(ctx, id, model.TourCompleted)
}

// CancelTour moves draft|active -> cancelled.
func (s *Service) CancelTour(ctx context.Context, id string) (model.Tour, error) {
	return s.transitionTour(ctx, id, model.TourCancelled)
}

func (s *Service) transitionTour(ctx context.Context, id, to string) (model.Tour, error) {
	t, err := s.store.GetTour(ctx, id)
	if err != nil {
		return model.Tour{}, err
	}
	if !tourTransitionAllowed(t.Status, to) {
		return model.Tour{}, validationf("tour status %s cannot become %s", t.Status, to)
	}
	now := time.Now().UTC()
	t.Status = to
	switch to {
	case model.TourActive:
		t.StartedAt = &now
	case model.TourCompleted:
		t.CompletedAt = &now
	case model.TourCancelled:
		t.CompletedAt = &now
	}
	t, err = s.store.UpdateTour(ctx, t)
	if err != nil {
		return model.Tour{}, err
	}
	s.publishTour("updated", t)
	return t, nil
}

func tourTransitionAllowed(from, to string) bool {
	switch from {
	case model.TourDraft:
		return to == model.TourActive || to == model.TourCancelled
	case model.TourActive:
		return to == model.TourCompleted || to == model.TourCancelled
	}
	return false
}

// AddStop appends a stop at the end of the tour's order and, when the tour has
// enough material, re-optimizes the route. The import pipeline uses addStop
// directly to defer optimization to the end of the batch.
func (s *Service) AddStop(ctx context.Context, tourID string, in model.StopInput) (model.Stop, error) {
	st, err := s.addStop(ctx, tourID, in)
	if err != nil {
		return model.Stop{}, err
	}
	// Best effort: a freshly appended stop should slot into the route. A
	// rejected optimization (e.g. only one pending stop) is not an error here.
	if _, err := s.OptimizeRoute(ctx, tourID); err != nil && !IsValidation(err) {
		log.Printf("tours: reoptimize after add stop %s: %v", st.ID, err)
	}
	return s.store.GetStop(ctx, st.ID)
}

func (s *Service) addStop(ctx context.Context, tourID string, in model.StopInput) (model.Stop, error) {
	if in.CustomerName == "" {
		return model.Stop{}, validationf("customerName required")
	}
	unlock := s.locks.lock(tourID)
	defer unlock()

	t, err := s.store.GetTour(ctx, tourID)
	if err != nil {
		return model.Stop{}, err
	}
	if t.Status == model.TourCompleted || t.Status == model.TourCancelled {
		return model.Stop{}, validationf("cannot add stops to a %s tour", t.Status)
	}

	cust, loc := s.resolveCustomer(ctx, t.PharmacyID, in)

	stops, err := s.store.ListStops(ctx, tourID)
	if err != nil {
		return model.Stop{}, err
	}
	next := 0
	for _, st := range stops {
		if st.SortOrder >= next {
			next = st.SortOrder + 1
		}
	}

	pkg := in.PackageCount
	if pkg <= 0 {
		pkg = 1
	}
	stop := model.Stop{
		TourID:       tourID,
		Name:         in.CustomerName,
		Street:       in.Street,
		PostalCode:   in.PostalCode,
		City:         in.City,
		Phone:        in.Phone,
		Location:     loc,
		PackageCount: pkg,
		CashAmount:   in.CashAmount,
		Priority:     in.Priority,
		Notes:        in.Notes,
		SortOrder:    next,
		Status:       model.StopPending,
		AddedBy:      in.AddedBy,
	}
	if cust != nil {
		stop.CustomerID = cust.ID
		if stop.Street == "" {
			stop.Street = cust.Street
		}
		if stop.PostalCode == "" {
			stop.PostalCode = cust.PostalCode
		}
		if stop.City == "" {
			stop.City = cust.City
		}
		if stop.Phone == "" {
			stop.Phone = cust.Phone
		}
	}
	stop, err = s.store.CreateStop(ctx, stop)
	if err != nil {
		return model.Stop{}, err
	}
	s.publishStop("created", stop)
	return stop, nil
}

// resolveCustomer finds or creates the customer for an explicit stop add
// (exact name+street match) and returns coordinates for the stop. Geocoding
// failures are logged and never block the add; customer coordinates are
// backfilled lazily but a resolved address is never overwritten.
func (s *Service) resolveCustomer(ctx context.Context, pharmacyID string, in model.StopInput) (*model.Customer, *model.LatLng) {
	cust, err := s.store.FindCustomerExact(ctx, pharmacyID, in.CustomerName, in.Street)
	switch {
	case err == nil:
		if cust.Location == nil {
			if loc := s.resolve(ctx, cust.Street, cust.PostalCode, cust.City); loc != nil {
				cust.Location = loc
				if updated, uerr := s.store.UpdateCustomer(ctx, cust); uerr == nil {
					cust = updated
				}
			}
		}
		return &cust, cust.Location
	case err == store.ErrNotFound:
		loc := s.resolve(ctx, in.Street, in.PostalCode, in.City)
		created, cerr := s.store.CreateCustomer(ctx, model.Customer{
			PharmacyID: pharmacyID,
			Name:       in.CustomerName,
			Street:     in.Street,
			PostalCode: in.PostalCode,
			City:       in.City,
			Phone:      in.Phone,
			Location:   loc,
		})
		if cerr != nil {
			log.Printf("tours: create customer %q: %v", in.CustomerName, cerr)
			return nil, loc
		}
		return &created, loc
	default:
		log.Printf("tours: lookup customer %q: %v", in.CustomerName, err)
		return nil, s.resolve(ctx, in.Street, in.PostalCode, in.City)
	}
}

// resolve wraps the geocoder: unconfigured or failing lookups yield nil.
func (s *Service) resolve(ctx context.Context, street, postal, city string) *model.LatLng {
	if s.geocoder == nil || street == "" {
		return nil
	}
	loc, err := s.geocoder.Resolve(ctx, street, postal, city)
	if err != nil {
		metrics.GeocodeLookups.WithLabelValues("error").Inc()
		log.Printf("tours: geocode %q: %v", street, err)
		return nil
	}
	if loc == nil {
		metrics.GeocodeLookups.WithLabelValues("miss").Inc()
		return nil
	}
	metrics.GeocodeLookups.WithLabelValues("hit").Inc()
	return loc
}

func (s *Service) GetStop(ctx context.Context, id string) (model.Stop, error) {
	return s.store.GetStop(ctx, id)
}

func (s *Service) ListStops(ctx context.Context, tourID string) ([]model.Stop, error) {
	return s.store.ListStops(ctx, tourID)
}

func (s *Service) UpdateStop(ctx context.Context, id string, patch model.StopPatch) (model.Stop, error) {
	st, err := s.store.GetStop(ctx, id)
	if err != nil {
		return model.Stop{}, err
	}
	if patch.Name != nil {
		st.Name = *patch.Name
	}
	if patch.Street != nil {
		st.Street = *patch.Street
	}
	if patch.PostalCode != nil {
		st.PostalCode = *patch.PostalCode
	}
	if patch.City != nil {
		st.City = *patch.City
	}
	if patch.Phone != nil {
		st.Phone = *patch.Phone
	}
	if patch.PackageCount != nil {
		st.PackageCount = *patch.PackageCount
	}
	if patch.CashAmount != nil {
		st.CashAmount = *patch.CashAmount
	}
	if patch.Priority != nil {
		st.Priority = *patch.Priority
	}
	if patch.Notes != nil {
		st.Notes = *patch.Notes
	}
	if patch.Location != nil {
		st.Location = patch.Location
	}
	st, err = s.store.UpdateStop(ctx, st)
	if err != nil {
		return model.Stop{}, err
	}
	s.publishStop("updated", st)
	return st, nil
}

func (s *Service) DeleteStop(ctx context.Context, id string) error {
	st, err := s.store.GetStop(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteStop(ctx, id); err != nil {
		return err
	}
	s.feed.Publish(feed.TopicStops, feed.Event{Table: "stops", Action: "deleted", ID: id, TourID: st.TourID})
	return nil
}

// CompleteStop marks a stop completed, stamping the completion time once.
// Calling it again on a completed stop is a no-op, so retries from flaky
// courier connections cannot double-stamp.
func (s *Service) CompleteStop(ctx context.Context, id string, pos *model.LatLng) (model.Stop, error) {
	st, err := s.store.GetStop(ctx, id)
	if err != nil {
		return model.Stop{}, err
	}
	if st.Status == model.StopCompleted {
		return st, nil
	}
	if st.Status != model.StopPending {
		return model.Stop{}, validationf("stop status %s cannot become completed", st.Status)
	}
	now := time.Now().UTC()
	st.Status = model.StopCompleted
	st.CompletedAt = &now
	if pos != nil {
		st.CompletedLocation = pos
	}
	st, err = s.store.UpdateStop(ctx, st)
	if err != nil {
		return model.Stop{}, err
	}
	s.publishStop("updated", st)
	return st, nil
}

func (s *Service) SkipStop(ctx context.Context, id, reason string) (model.Stop, error) {
	st, err := s.store.GetStop(ctx, id)
	if err != nil {
		return model.Stop{}, err
	}
	if st.Status != model.StopPending {
		return model.Stop{}, validationf("stop status %s cannot become skipped", st.Status)
	}
	st.Status = model.StopSkipped
	st.SkipReason = reason
	st, err = s.store.UpdateStop(ctx, st)
	if err != nil {
		return model.Stop{}, err
	}
	s.publishStop("updated", st)
	return st, nil
}

func (s *Service) RescheduleStop(ctx context.Context, id, date, reason string) (model.Stop, error) {
	if date == "" {
		return model.Stop{}, validationf("reschedule date required")
	}
	if reason == "" {
		return model.Stop{}, validationf("reschedule reason required")
	}
	st, err := s.store.GetStop(ctx, id)
	if err != nil {
		return model.Stop{}, err
	}
	if st.Status != model.StopPending {
		return model.Stop{}, validationf("stop status %s cannot become rescheduled", st.Status)
	}
	st.Status = model.StopRescheduled
	st.RescheduleDate = date
	st.RescheduleReason = reason
	st, err = s.store.UpdateStop(ctx, st)
	if err != nil {
		return model.Stop{}, err
	}
	s.publishStop("updated", st)
	return st, nil
}

// MarkCashCollected records collected cash on a stop. It never touches the
// stop's status: a completed, skipped, or rescheduled stop can be cash-marked
// independently.
func (s *Service) MarkCashCollected(ctx context.Context, id string, amount *float64, notes string) (model.Stop, error) {
	st, err := s.store.GetStop(ctx, id)
	if err != nil {
		return model.Stop{}, err
	}
	st.CashCollected = true
	st.CashCollectedAmount = amount
	if notes != "" {
		st.CashNotes = notes
	}
	st, err = s.store.UpdateStop(ctx, st)
	if err != nil {
		return model.Stop{}, err
	}
	s.publishStop("updated", st)
	return st, nil
}

// ReorderStops persists a caller-supplied total order. The order must be a
// permutation of the tour's stops. Orders that move frozen stops are accepted
// unchecked; dispatchers drag what they drag.
func (s *Service) ReorderStops(ctx context.Context, tourID string, orderedIDs []string) ([]model.Stop, error) {
	unlock := s.locks.lock(tourID)
	defer unlock()

	stops, err := s.store.ListStops(ctx, tourID)
	if err != nil {
		return nil, err
	}
	if len(orderedIDs) != len(stops) {
		return nil, validationf("order lists %d stops, tour has %d", len(orderedIDs), len(stops))
	}
	known := make(map[string]bool, len(stops))
	for _, st := range stops {
		known[st.ID] = true
	}
	seen := make(map[string]bool, len(orderedIDs))
	for _, id := range orderedIDs {
		if !known[id] {
			return nil, validationf("stop %s does not belong to tour %s", id, tourID)
		}
		if seen[id] {
			return nil, validationf("stop %s listed twice", id)
		}
		seen[id] = true
	}
	if err := s.store.ReorderStops(ctx, tourID, orderedIDs); err != nil {
		return nil, err
	}
	s.feed.Publish(feed.TopicStops, feed.Event{Table: "stops", Action: "updated", TourID: tourID})
	return s.store.ListStops(ctx, tourID)
}

// AttachEvidence links a completion photo or signature to a stop.
func (s *Service) AttachEvidence(ctx context.Context, stopID, kind, url, caption, signer string, loc *model.LatLng) (model.Evidence, error) {
	if kind != model.EvidencePhoto && kind != model.EvidenceSignature {
		return model.Evidence{}, validationf("evidence kind must be photo or signature")
	}
	if url == "" {
		return model.Evidence{}, validationf("evidence url required")
	}
	e, err := s.store.CreateEvidence(ctx, model.Evidence{
		StopID:     stopID,
		Kind:       kind,
		URL:        url,
		Caption:    caption,
		SignerName: signer,
		Location:   loc,
	})
	if err != nil {
		return model.Evidence{}, err
	}
	s.feed.Publish(feed.TopicStops, feed.Event{Table: "evidence", Action: "created", ID: e.ID})
	return e, nil
}

func (s *Service) ListEvidence(ctx context.Context, stopID string) ([]model.Evidence, error) {
	return s.store.ListEvidence(ctx, stopID)
}

func (s *Service) DeleteEvidence(ctx context.Context, id string) error {
	return s.store.DeleteEvidence(ctx, id)
}

func (s *Service) publishTour(action string, t model.Tour) {
	s.feed.Publish(feed.TopicTours, feed.Event{Table: "tours", Action: action, ID: t.ID, Data: map[string]any{
		"status": t.Status, "stopCount": t.StopCount,
	}})
}

func (s *Service) publishStop(action string, st model.Stop) {
	s.feed.Publish(feed.TopicStops, feed.Event{Table: "stops", Action: action, ID: st.ID, TourID: st.TourID, Data: map[string]any{
		"status": st.Status, "sortOrder": st.SortOrder,
	}})
}
