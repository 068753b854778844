package store

import (
	"context"
	"errors"

	"github.com/BigPharmacist/wild-kaeee-sub002/internal/model"
)

// Store is the persistence gateway used by the tour, import, and tracking
// services. Implementations must assign IDs and created/updated timestamps
// on create, and must never expose a partially rewritten stop order.
type Store interface {
	// Tours
	CreateTour(ctx context.Context, t model.Tour) (model.Tour, error)
	GetTour(ctx context.Context, id string) (model.Tour, error)
	ListTours(ctx context.Context, pharmacyID, status, date string, limit int) ([]model.Tour, error)
	UpdateTour(ctx context.Context, t model.Tour) (model.Tour, error)
	DeleteTour(ctx context.Context, id string) error

	// Stops (ListStops returns stops ordered by sort order)
	CreateStop(ctx context.Context, s model.Stop) (model.Stop, error)
	GetStop(ctx context.Context, id string) (model.Stop, error)
	ListStops(ctx context.Context, tourID string) ([]model.Stop, error)
	UpdateStop(ctx context.Context, s model.Stop) (model.Stop, error)
	DeleteStop(ctx context.Context, id string) error
	// ReorderStops rewrites every stop's sort order to match orderedIDs in one
	// logical operation. orderedIDs must be a permutation of the tour's stops.
	ReorderStops(ctx context.Context, tourID string, orderedIDs []string) error

	// Customers
	CreateCustomer(ctx context.Context, c model.Customer) (model.Customer, error)
	GetCustomer(ctx context.Context, id string) (model.Customer, error)
	ListCustomers(ctx context.Context, pharmacyID string, limit int) ([]model.Customer, error)
	UpdateCustomer(ctx context.Context, c model.Customer) (model.Customer, error)
	// FindCustomerExact matches name and street exactly (explicit stop creation).
	FindCustomerExact(ctx context.Context, pharmacyID, name, street string) (model.Customer, error)
	// FindCustomerFold matches the name case-insensitively (batch import tolerance).
	FindCustomerFold(ctx context.Context, pharmacyID, name string) (model.Customer, error)

	// Driver positions (append-only)
	AppendPosition(ctx context.Context, p model.DriverPosition) (model.DriverPosition, error)
	// LatestPositions returns the most recent sample per courier, selected by
	// RecordedAt, not insertion order.
	LatestPositions(ctx context.Context) ([]model.DriverPosition, error)
	LatestPositionFor(ctx context.Context, courierID string) (model.DriverPosition, error)

	// Evidence
	CreateEvidence(ctx context.Context, e model.Evidence) (model.Evidence, error)
	ListEvidence(ctx context.Context, stopID string) ([]model.Evidence, error)
	DeleteEvidence(ctx context.Context, id string) error
}

var ErrNotFound = errors.New("not found")
