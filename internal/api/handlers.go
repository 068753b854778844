package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/BigPharmacist/wild-kaeee-sub002/internal/model"
	"github.com/BigPharmacist/wild-kaeee-sub002/internal/store"
	"github.com/BigPharmacist/wild-kaeee-sub002/internal/tours"
)

// writeServiceError maps domain errors onto problem responses.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case err == store.ErrNotFound:
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
	case tours.IsValidation(err):
		writeProblem(w, http.StatusUnprocessableEntity, "Validation failed", err.Error(), r.URL.Path)
	default:
		writeProblem(w, http.StatusInternalServerError, "Internal error", err.Error(), r.URL.Path)
	}
}

// ToursHandler handles POST/GET /v1/tours
func (s *Server) ToursHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var in model.TourInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		t, err := s.Tours.CreateTour(r.Context(), in)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, t)
	case http.MethodGet:
		q := r.URL.Query()
		limit := 100
		if v := q.Get("limit"); v != "" {
			fmt.Sscanf(v, "%d", &limit)
		}
		items, err := s.Tours.ListTours(r.Context(), q.Get("pharmacyId"), q.Get("status"), q.Get("date"), limit)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// TourByIDHandler handles /v1/tours/{id} and its subresources.
func (s *Server) TourByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/tours/")
	if rest == r.URL.Path || rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	parts := strings.Split(rest, "/")
	id := parts[0]

	if len(parts) == 1 {
		s.tourResource(w, r, id)
		return
	}
	switch parts[1] {
	case "start", "complete", "cancel":
		s.tourTransition(w, r, id, parts[1])
	case "optimize":
		s.tourOptimize(w, r, id)
	case "reorder":
		s.tourReorder(w, r, id)
	case "stops":
		s.tourStops(w, r, id)
	case "import":
		s.tourImport(w, r, id, parts[1:])
	case "source-doc":
		s.tourSourceDoc(w, r, id)
	case "events":
		if len(parts) == 3 && parts[2] == "stream" {
			s.tourEventStream(w, r, id)
			return
		}
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
	}
}

func (s *Server) tourResource(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		t, err := s.Tours.GetTour(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	case http.MethodPatch:
		var patch model.TourPatch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		t, err := s.Tours.UpdateTour(r.Context(), id, patch)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	case http.MethodDelete:
		if err := s.Tours.DeleteTour(r.Context(), id); err != nil {
			writeServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) tourTransition(w http.ResponseWriter, r *http.Request, id, action string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var (
		t   model.Tour
		err error
	)
	switch action {
	case "start":
		t, err = s.Tours.StartTour(r.Context(), id)
	case "complete":
		t, err = s.Tours.CompleteTour(r.Context(), id)
	case "cancel":
		t, err = s.Tours.CancelTour(r.Context(), id)
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) tourOptimize(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	res, err := s.Tours.OptimizeRoute(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) tourReorder(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Order []string `json:"order"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	stops, err := s.Tours.ReorderStops(r.Context(), id, req.Order)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": stops})
}

func (s *Server) tourStops(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodPost:
		var in model.StopInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		st, err := s.Tours.AddStop(r.Context(), id, in)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, st)
	case http.MethodGet:
		stops, err := s.Tours.ListStops(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": stops})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// tourImport handles POST/GET /v1/tours/{id}/import plus /resume and /cancel.
func (s *Server) tourImport(w http.ResponseWriter, r *http.Request, id string, parts []string) {
	if len(parts) == 1 {
		switch r.Method {
		case http.MethodPost:
			var batch model.ImportBatch
			if strings.HasPrefix(r.Header.Get("Content-Type"), "text/csv") {
				parsed, err := tours.ParseCSVBatch(r.Body)
				if err != nil {
					writeProblem(w, http.StatusBadRequest, "Invalid CSV", err.Error(), r.URL.Path)
					return
				}
				batch = parsed
			} else if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
				writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
				return
			}
			st, err := s.Tours.StartImport(r.Context(), id, batch)
			if err != nil {
				writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusAccepted, st)
		case http.MethodGet:
			st, err := s.Tours.ImportStatus(id)
			if err != nil {
				writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, st)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	switch parts[1] {
	case "resume":
		var req struct {
			Candidate *model.ImportCandidate `json:"candidate,omitempty"`
		}
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
				return
			}
		}
		st, err := s.Tours.ResumeImport(r.Context(), id, req.Candidate)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	case "cancel":
		st, err := s.Tours.CancelImport(id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
	}
}
