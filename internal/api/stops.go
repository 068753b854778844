package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/BigPharmacist/wild-kaeee-sub002/internal/geo"
	"github.com/BigPharmacist/wild-kaeee-sub002/internal/model"
)

// StopByIDHandler handles /v1/stops/{id} and its subresources.
func (s *Server) StopByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/stops/")
	if rest == r.URL.Path || rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	parts := strings.Split(rest, "/")
	id := parts[0]

	if len(parts) == 1 {
		s.stopResource(w, r, id)
		return
	}
	switch parts[1] {
	case "complete":
		s.stopComplete(w, r, id)
	case "skip":
		s.stopSkip(w, r, id)
	case "reschedule":
		s.stopReschedule(w, r, id)
	case "cash":
		s.stopCash(w, r, id)
	case "evidence":
		s.stopEvidence(w, r, id, parts[1:])
	case "navigation":
		s.stopNavigation(w, r, id)
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
	}
}

func (s *Server) stopResource(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		st, err := s.Tours.GetStop(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	case http.MethodPatch:
		var patch model.StopPatch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		st, err := s.Tours.UpdateStop(r.Context(), id, patch)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	case http.MethodDelete:
		if err := s.Tours.DeleteStop(r.Context(), id); err != nil {
			writeServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) stopComplete(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Location *model.LatLng `json:"location,omitempty"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
	}
	st, err := s.Tours.CompleteStop(r.Context(), id, req.Location)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) stopSkip(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Reason string `json:"reason,omitempty"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
	}
	st, err := s.Tours.SkipStop(r.Context(), id, req.Reason)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) stopReschedule(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Date   string `json:"date"`
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	st, err := s.Tours.RescheduleStop(r.Context(), id, req.Date, req.Reason)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) stopCash(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Amount *float64 `json:"amount,omitempty"`
		Notes  string   `json:"notes,omitempty"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
	}
	st, err := s.Tours.MarkCashCollected(r.Context(), id, req.Amount, req.Notes)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) stopEvidence(w http.ResponseWriter, r *http.Request, id string, parts []string) {
	if len(parts) == 2 {
		if r.Method != http.MethodDelete {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if err := s.Tours.DeleteEvidence(r.Context(), parts[1]); err != nil {
			writeServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}
	switch r.Method {
	case http.MethodPost:
		s.stopEvidenceUpload(w, r, id)
	case http.MethodGet:
		items, err := s.Tours.ListEvidence(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) stopEvidenceJSON(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		Kind       string        `json:"kind"`
		URL        string        `json:"url"`
		Caption    string        `json:"caption,omitempty"`
		SignerName string        `json:"signerName,omitempty"`
		Location   *model.LatLng `json:"location,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	ev, err := s.Tours.AttachEvidence(r.Context(), id, req.Kind, req.URL, req.Caption, req.SignerName, req.Location)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

// stopNavigation returns a turn-by-turn link for the courier's phone.
func (s *Server) stopNavigation(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	st, err := s.Tours.GetStop(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if st.Location == nil {
		writeProblem(w, http.StatusUnprocessableEntity, "No coordinates", "stop has no resolved location", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": geo.NavigationURL(*st.Location)})
}
