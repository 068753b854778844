package model

import "time"

// Tour statuses. Transitions are monotonic: draft -> active -> completed,
// with draft|active -> cancelled as a side exit. Nothing leaves a terminal state.
const (
	TourDraft     = "draft"
	TourActive    = "active"
	TourCompleted = "completed"
	TourCancelled = "cancelled"
)

// Stop statuses. pending is the only non-terminal state.
const (
	StopPending     = "pending"
	StopCompleted   = "completed"
	StopSkipped     = "skipped"
	StopRescheduled = "rescheduled"
)

// Evidence kinds.
const (
	EvidencePhoto     = "photo"
	EvidenceSignature = "signature"
)

// LatLng is a WGS84 coordinate pair.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Tour is one planned delivery run for one pharmacy on one date.
type Tour struct {
	ID              string     `json:"id"`
	PharmacyID      string     `json:"pharmacyId"`
	Name            string     `json:"name"`
	Date            string     `json:"date"` // YYYY-MM-DD
	CourierID       string     `json:"courierId,omitempty"`
	Status          string     `json:"status"`
	StartedAt       *time.Time `json:"startedAt,omitempty"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
	PathEncoding    string     `json:"pathEncoding,omitempty"`
	DistanceKm      *float64   `json:"distanceKm,omitempty"`
	DurationMinutes *int       `json:"durationMinutes,omitempty"`
	OptimizedAt     *time.Time `json:"optimizedAt,omitempty"`
	SourceDocPath   string     `json:"sourceDocPath,omitempty"`
	CreatedBy       string     `json:"createdBy,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
	StopCount       int        `json:"stopCount"`
}

// Stop is one delivery within a Tour. Name/address are a denormalized snapshot
// so the stop survives later customer edits. SortOrder is the visiting order
// and is unique within a tour.
type Stop struct {
	ID                  string     `json:"id"`
	TourID              string     `json:"tourId"`
	CustomerID          string     `json:"customerId,omitempty"`
	Name                string     `json:"name"`
	Street              string     `json:"street"`
	PostalCode          string     `json:"postalCode"`
	City                string     `json:"city"`
	Phone               string     `json:"phone,omitempty"`
	Location            *LatLng    `json:"location,omitempty"`
	PackageCount        int        `json:"packageCount"`
	CashAmount          float64    `json:"cashAmount,omitempty"`
	CashCollected       bool       `json:"cashCollected"`
	CashCollectedAmount *float64   `json:"cashCollectedAmount,omitempty"`
	CashNotes           string     `json:"cashNotes,omitempty"`
	Priority            int        `json:"priority"`
	Notes               string     `json:"notes,omitempty"`
	SortOrder           int        `json:"sortOrder"`
	Status              string     `json:"status"`
	RescheduleDate      string     `json:"rescheduleDate,omitempty"`
	RescheduleReason    string     `json:"rescheduleReason,omitempty"`
	SkipReason          string     `json:"skipReason,omitempty"`
	CompletedAt         *time.Time `json:"completedAt,omitempty"`
	CompletedLocation   *LatLng    `json:"completedLocation,omitempty"`
	AddedBy             string     `json:"addedBy,omitempty"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

// Terminal reports whether the stop is frozen for reordering purposes.
func (s *Stop) Terminal() bool {
	return s.Status == StopCompleted || s.Status == StopSkipped
}

// Customer is a reusable delivery address keyed by name+street within a
// pharmacy. DeliveryNotes are long-lived, distinct from a stop's one-time notes.
type Customer struct {
	ID            string    `json:"id"`
	PharmacyID    string    `json:"pharmacyId"`
	Name          string    `json:"name"`
	Street        string    `json:"street"`
	PostalCode    string    `json:"postalCode"`
	City          string    `json:"city"`
	Phone         string    `json:"phone,omitempty"`
	DeliveryNotes string    `json:"deliveryNotes,omitempty"`
	Location      *LatLng   `json:"location,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// DriverPosition is an immutable, append-only sample. Current position is
// derived as the most recent sample per courier by RecordedAt.
type DriverPosition struct {
	ID         string    `json:"id"`
	CourierID  string    `json:"courierId"`
	TourID     string    `json:"tourId,omitempty"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	AccuracyM  float64   `json:"accuracyM,omitempty"`
	Heading    *float64  `json:"heading,omitempty"`
	SpeedKmh   *float64  `json:"speedKmh,omitempty"`
	RecordedAt time.Time `json:"recordedAt"`
}

// Evidence is a photo or signature proving stop completion. Immutable once
// created, except for deletion.
type Evidence struct {
	ID         string    `json:"id"`
	StopID     string    `json:"stopId"`
	Kind       string    `json:"kind"`
	URL        string    `json:"url"`
	Caption    string    `json:"caption,omitempty"`
	SignerName string    `json:"signerName,omitempty"`
	Location   *LatLng   `json:"location,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ImportCandidate is one OCR-derived stop candidate. The parser upstream is
// opaque to this service; fields may be incomplete.
type ImportCandidate struct {
	CustomerName string  `json:"customerName"`
	Street       string  `json:"street"`
	PostalCode   string  `json:"postalCode"`
	City         string  `json:"city"`
	Phone        string  `json:"phone,omitempty"`
	Items        int     `json:"items,omitempty"`
	CashAmount   float64 `json:"cashAmount,omitempty"`
	Notes        string  `json:"notes,omitempty"`
}

// ImportBatch is an ordered candidate list plus optional tour metadata
// detected in the source document.
type ImportBatch struct {
	Candidates   []ImportCandidate `json:"candidates"`
	DetectedDate string            `json:"detectedDate,omitempty"`
	DetectedName string            `json:"detectedName,omitempty"`
}
