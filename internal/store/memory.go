package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BigPharmacist/wild-kaeee-sub002/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
// It is also the store the unit tests run against.
type Memory struct {
	mu        sync.Mutex
	tours     map[string]model.Tour
	stops     map[string]model.Stop
	stopsByTour map[string][]string // tourID -> stop ids, maintained in sort order
	customers map[string]model.Customer
	positions []model.DriverPosition
	evidence  map[string]model.Evidence
	evByStop  map[string][]string
}

func NewMemory() *Memory {
	return &Memory{
		tours:       map[string]model.Tour{},
		stops:       map[string]model.Stop{},
		stopsByTour: map[string][]string{},
		customers:   map[string]model.Customer{},
		evidence:    map[string]model.Evidence{},
		evByStop:    map[string][]string{},
	}
}

func (m *Memory) CreateTour(ctx context.Context, t model.Tour) (model.Tour, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.Status == "" {
		t.Status = model.TourDraft
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	m.tours[t.ID] = t
	return t, nil
}

func (m *Memory) GetTour(ctx context.Context, id string) (model.Tour, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tours[id]
	if !ok {
		return model.Tour{}, ErrNotFound
	}
	t.StopCount = len(m.stopsByTour[id])
	return t, nil
}

func (m *Memory) ListTours(ctx context.Context, pharmacyID, status, date string, limit int) ([]model.Tour, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	out := []model.Tour{}
	for _, t := range m.tours {
		if pharmacyID != "" && t.PharmacyID != pharmacyID {
			continue
		}
		if status != "" && t.Status != status {
			continue
		}
		if date != "" && t.Date != date {
			continue
		}
		t.StopCount = len(m.stopsByTour[t.ID])
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date > out[j].Date
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) UpdateTour(ctx context.Context, t model.Tour) (model.Tour, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.tours[t.ID]
	if !ok {
		return model.Tour{}, ErrNotFound
	}
	t.CreatedAt = old.CreatedAt
	t.UpdatedAt = time.Now().UTC()
	m.tours[t.ID] = t
	t.StopCount = len(m.stopsByTour[t.ID])
	return t, nil
}

func (m *Memory) DeleteTour(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tours[id]; !ok {
		return ErrNotFound
	}
	for _, sid := range m.stopsByTour[id] {
		m.deleteStopLocked(sid)
	}
	delete(m.stopsByTour, id)
	delete(m.tours, id)
	return nil
}

func (m *Memory) CreateStop(ctx context.Context, s model.Stop) (model.Stop, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tours[s.TourID]; !ok {
		return model.Stop{}, ErrNotFound
	}
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.Status == "" {
		s.Status = model.StopPending
	}
	now := time.Now().UTC()
	s.CreatedAt = now
	s.UpdatedAt = now
	m.stops[s.ID] = s
	m.stopsByTour[s.TourID] = append(m.stopsByTour[s.TourID], s.ID)
	m.sortTourLocked(s.TourID)
	return s, nil
}

func (m *Memory) GetStop(ctx context.Context, id string) (model.Stop, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stops[id]
	if !ok {
		return model.Stop{}, ErrNotFound
	}
	return s, nil
}

func (m *Memory) ListStops(ctx context.Context, tourID string) ([]model.Stop, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.stopsByTour[tourID]
	out := make([]model.Stop, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.stops[id])
	}
	return out, nil
}

func (m *Memory) UpdateStop(ctx context.Context, s model.Stop) (model.Stop, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.stops[s.ID]
	if !ok {
		return model.Stop{}, ErrNotFound
	}
	// A stop never moves between tours.
	s.TourID = old.TourID
	s.CreatedAt = old.CreatedAt
	s.UpdatedAt = time.Now().UTC()
	m.stops[s.ID] = s
	m.sortTourLocked(s.TourID)
	return s, nil
}

func (m *Memory) DeleteStop(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stops[id]
	if !ok {
		return ErrNotFound
	}
	m.deleteStopLocked(id)
	ids := m.stopsByTour[s.TourID]
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	m.stopsByTour[s.TourID] = out
	return nil
}

func (m *Memory) ReorderStops(ctx context.Context, tourID string, orderedIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing := m.stopsByTour[tourID]
	if len(orderedIDs) != len(existing) {
		return ErrNotFound
	}
	for _, id := range orderedIDs {
		s, ok := m.stops[id]
		if !ok || s.TourID != tourID {
			return ErrNotFound
		}
	}
	now := time.Now().UTC()
	for i, id := range orderedIDs {
		s := m.stops[id]
		s.SortOrder = i
		s.UpdatedAt = now
		m.stops[id] = s
	}
	m.stopsByTour[tourID] = append([]string(nil), orderedIDs...)
	return nil
}

func (m *Memory) CreateCustomer(ctx context.Context, c model.Customer) (model.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	m.customers[c.ID] = c
	return c, nil
}

func (m *Memory) GetCustomer(ctx context.Context, id string) (model.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.customers[id]
	if !ok {
		return model.Customer{}, ErrNotFound
	}
	return c, nil
}

func (m *Memory) ListCustomers(ctx context.Context, pharmacyID string, limit int) ([]model.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 200
	}
	out := []model.Customer{}
	for _, c := range m.customers {
		if pharmacyID != "" && c.PharmacyID != pharmacyID {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) UpdateCustomer(ctx context.Context, c model.Customer) (model.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.customers[c.ID]
	if !ok {
		return model.Customer{}, ErrNotFound
	}
	c.CreatedAt = old.CreatedAt
	c.UpdatedAt = time.Now().UTC()
	m.customers[c.ID] = c
	return c, nil
}

func (m *Memory) FindCustomerExact(ctx context.Context, pharmacyID, name, street string) (model.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.customers {
		if c.PharmacyID == pharmacyID && c.Name == name && c.Street == street {
			return c, nil
		}
	}
	return model.Customer{}, ErrNotFound
}

func (m *Memory) FindCustomerFold(ctx context.Context, pharmacyID, name string) (model.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.customers {
		if c.PharmacyID == pharmacyID && strings.EqualFold(c.Name, name) {
			return c, nil
		}
	}
	return model.Customer{}, ErrNotFound
}

func (m *Memory) AppendPosition(ctx context.Context, p model.DriverPosition) (model.DriverPosition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.RecordedAt.IsZero() {
		p.RecordedAt = time.Now().UTC()
	}
	m.positions = append(m.positions, p)
	return p, nil
}

func (m *Memory) LatestPositions(ctx context.Context) ([]model.DriverPosition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	latest := map[string]model.DriverPosition{}
	for _, p := range m.positions {
		cur, ok := latest[p.CourierID]
		if !ok || p.RecordedAt.After(cur.RecordedAt) {
			latest[p.CourierID] = p
		}
	}
	out := make([]model.DriverPosition, 0, len(latest))
	for _, p := range latest {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CourierID < out[j].CourierID })
	return out, nil
}

func (m *Memory) LatestPositionFor(ctx context.Context, courierID string) (model.DriverPosition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best model.DriverPosition
	found := false
	for _, p := range m.positions {
		if p.CourierID != courierID {
			continue
		}
		if !found || p.RecordedAt.After(best.RecordedAt) {
			best = p
			found = true
		}
	}
	if !found {
		return model.DriverPosition{}, ErrNotFound
	}
	return best, nil
}

func (m *Memory) CreateEvidence(ctx context.Context, e model.Evidence) (model.Evidence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.stops[e.StopID]; !ok {
		return model.Evidence{}, ErrNotFound
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	e.CreatedAt = time.Now().UTC()
	m.evidence[e.ID] = e
	m.evByStop[e.StopID] = append(m.evByStop[e.StopID], e.ID)
	return e, nil
}

func (m *Memory) ListEvidence(ctx context.Context, stopID string) ([]model.Evidence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.evByStop[stopID]
	out := make([]model.Evidence, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.evidence[id])
	}
	return out, nil
}

func (m *Memory) DeleteEvidence(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.evidence[id]
	if !ok {
		return ErrNotFound
	}
	delete(m.evidence, id)
	ids := m.evByStop[e.StopID]
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	m.evByStop[e.StopID] = out
	return nil
}

// deleteStopLocked removes a stop and its evidence. Caller holds the lock and
// maintains stopsByTour.
func (m *Memory) deleteStopLocked(id string) {
	for _, eid := range m.evByStop[id] {
		delete(m.evidence, eid)
	}
	delete(m.evByStop, id)
	delete(m.stops, id)
}

// sortTourLocked keeps the per-tour id list aligned with SortOrder.
func (m *Memory) sortTourLocked(tourID string) {
	ids := m.stopsByTour[tourID]
	sort.SliceStable(ids, func(i, j int) bool {
		return m.stops[ids[i]].SortOrder < m.stops[ids[j]].SortOrder
	})
	m.stopsByTour[tourID] = ids
}
