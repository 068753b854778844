package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/BigPharmacist/wild-kaeee-sub002/internal/feed"
)

// tourEventStream serves GET /v1/tours/{id}/events/stream as SSE. Dispatch
// boards keep one connection open per visible tour; heartbeats keep proxies
// from closing it.
func (s *Server) tourEventStream(w http.ResponseWriter, r *http.Request, tourID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, err := s.Tours.GetTour(r.Context(), tourID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	tourCh := s.Feed.Subscribe(feed.TopicTours)
	stopCh := s.Feed.Subscribe(feed.TopicStops)
	defer s.Feed.Unsubscribe(feed.TopicTours, tourCh)
	defer s.Feed.Unsubscribe(feed.TopicStops, stopCh)

	heartbeat := func() {
		fmt.Fprintf(w, "event: heartbeat\n")
		fmt.Fprintf(w, "data: {\"tourId\":\"%s\",\"ts\":\"%s\"}\n\n", tourID, time.Now().UTC().Format(time.RFC3339))
		flusher.Flush()
	}
	emit := func(evt feed.Event) {
		b, _ := json.Marshal(evt)
		fmt.Fprintf(w, "event: %s.%s\n", evt.Table, evt.Action)
		fmt.Fprintf(w, "data: %s\n\n", string(b))
		flusher.Flush()
	}
	heartbeat()

	notify := r.Context().Done()
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-notify:
			return
		case evt, ok := <-tourCh:
			if !ok {
				return
			}
			if evt.ID == tourID {
				emit(evt)
			}
		case evt, ok := <-stopCh:
			if !ok {
				return
			}
			if evt.TourID == tourID {
				emit(evt)
			}
		case <-ticker.C:
			heartbeat()
		}
	}
}
