package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/BigPharmacist/wild-kaeee-sub002/internal/model"
)

// CustomersHandler handles POST/GET /v1/customers
func (s *Server) CustomersHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var c model.Customer
		if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if c.PharmacyID == "" || c.Name == "" {
			writeProblem(w, http.StatusUnprocessableEntity, "Validation failed", "pharmacyId and name required", r.URL.Path)
			return
		}
		created, err := s.Store.CreateCustomer(r.Context(), c)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	case http.MethodGet:
		q := r.URL.Query()
		limit := 100
		if v := q.Get("limit"); v != "" {
			fmt.Sscanf(v, "%d", &limit)
		}
		items, err := s.Store.ListCustomers(r.Context(), q.Get("pharmacyId"), limit)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// CustomerByIDHandler handles GET/PATCH /v1/customers/{id}
func (s *Server) CustomerByIDHandler(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/customers/")
	if id == "" || strings.Contains(id, "/") {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	switch r.Method {
	case http.MethodGet:
		c, err := s.Store.GetCustomer(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, c)
	case http.MethodPatch:
		c, err := s.Store.GetCustomer(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		var patch struct {
			Name          *string       `json:"name,omitempty"`
			Street        *string       `json:"street,omitempty"`
			PostalCode    *string       `json:"postalCode,omitempty"`
			City          *string       `json:"city,omitempty"`
			Phone         *string       `json:"phone,omitempty"`
			DeliveryNotes *string       `json:"deliveryNotes,omitempty"`
			Location      *model.LatLng `json:"location,omitempty"`
		}
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		addressChanged := false
		if patch.Name != nil {
			c.Name = *patch.Name
		}
		if patch.Street != nil {
			c.Street = *patch.Street
			addressChanged = true
		}
		if patch.PostalCode != nil {
			c.PostalCode = *patch.PostalCode
			addressChanged = true
		}
		if patch.City != nil {
			c.City = *patch.City
			addressChanged = true
		}
		if patch.Phone != nil {
			c.Phone = *patch.Phone
		}
		if patch.DeliveryNotes != nil {
			c.DeliveryNotes = *patch.DeliveryNotes
		}
		if patch.Location != nil {
			c.Location = patch.Location
		} else if addressChanged {
			// Stale coordinates are worse than none; the next stop add re-resolves.
			c.Location = nil
		}
		updated, err := s.Store.UpdateCustomer(r.Context(), c)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}
