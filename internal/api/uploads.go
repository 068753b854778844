package api

import (
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/BigPharmacist/wild-kaeee-sub002/internal/model"
)

const maxUploadBytes = 20 << 20

// tourSourceDoc handles POST /v1/tours/{id}/source-doc: the scanned delivery
// sheet the import batch was parsed from, kept for audit.
func (s *Server) tourSourceDoc(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	t, err := s.Tours.GetTour(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Missing file", err.Error(), r.URL.Path)
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if ext == "" {
		ext = ".pdf"
	}
	path := "tours/" + id + "/source" + ext
	url, err := s.Objects.Upload(r.Context(), path, file, header.Header.Get("Content-Type"))
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Upload failed", err.Error(), r.URL.Path)
		return
	}
	t.SourceDocPath = url
	t, err = s.Store.UpdateTour(r.Context(), t)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"url": url, "sourceDocPath": t.SourceDocPath})
}

// stopEvidenceUpload handles POST /v1/stops/{id}/evidence with a multipart
// body: the file plus kind/caption/signerName fields. JSON bodies with an
// already-hosted URL are accepted too.
func (s *Server) stopEvidenceUpload(w http.ResponseWriter, r *http.Request, stopID string) {
	ct := r.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "multipart/form-data") {
		s.stopEvidenceJSON(w, r, stopID)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Missing file", err.Error(), r.URL.Path)
		return
	}
	defer file.Close()

	kind := r.FormValue("kind")
	if kind == "" {
		kind = model.EvidencePhoto
	}
	ext := strings.ToLower(filepath.Ext(header.Filename))
	if ext == "" {
		ext = ".jpg"
	}
	name := kind + "-" + time.Now().UTC().Format("20060102T150405") + ext
	url, err := s.Objects.Upload(r.Context(), "stops/"+stopID+"/"+name, file, header.Header.Get("Content-Type"))
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Upload failed", err.Error(), r.URL.Path)
		return
	}
	ev, err := s.Tours.AttachEvidence(r.Context(), stopID, kind, url, r.FormValue("caption"), r.FormValue("signerName"), nil)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}
