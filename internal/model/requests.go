package model

// TourInput carries the dispatcher-supplied fields for creating a tour.
type TourInput struct {
	PharmacyID string `json:"pharmacyId"`
	Name       string `json:"name"`
	Date       string `json:"date"`
	CourierID  string `json:"courierId,omitempty"`
	CreatedBy  string `json:"createdBy,omitempty"`
}

// TourPatch updates mutable tour fields. Empty fields are left untouched;
// status changes go through the dedicated lifecycle operations instead.
type TourPatch struct {
	Name      string `json:"name,omitempty"`
	Date      string `json:"date,omitempty"`
	CourierID string `json:"courierId,omitempty"`
}

// StopInput carries the fields for adding a stop to a tour.
type StopInput struct {
	CustomerName string  `json:"customerName"`
	Street       string  `json:"street"`
	PostalCode   string  `json:"postalCode"`
	City         string  `json:"city"`
	Phone        string  `json:"phone,omitempty"`
	PackageCount int     `json:"packageCount,omitempty"`
	CashAmount   float64 `json:"cashAmount,omitempty"`
	Priority     int     `json:"priority,omitempty"`
	Notes        string  `json:"notes,omitempty"`
	AddedBy      string  `json:"addedBy,omitempty"`
}

// StopPatch updates mutable stop fields.
type StopPatch struct {
	Name         *string  `json:"name,omitempty"`
	Street       *string  `json:"street,omitempty"`
	PostalCode   *string  `json:"postalCode,omitempty"`
	City         *string  `json:"city,omitempty"`
	Phone        *string  `json:"phone,omitempty"`
	PackageCount *int     `json:"packageCount,omitempty"`
	CashAmount   *float64 `json:"cashAmount,omitempty"`
	Priority     *int     `json:"priority,omitempty"`
	Notes        *string  `json:"notes,omitempty"`
	Location     *LatLng  `json:"location,omitempty"`
}
