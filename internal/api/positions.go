package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/BigPharmacist/wild-kaeee-sub002/internal/feed"
	"github.com/BigPharmacist/wild-kaeee-sub002/internal/metrics"
	"github.com/BigPharmacist/wild-kaeee-sub002/internal/model"
	"github.com/BigPharmacist/wild-kaeee-sub002/internal/tours"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

var errCourierRequired = &tours.ValidationError{Msg: "courierId required"}

// PositionsHandler handles POST /v1/positions (append a sample) and
// GET /v1/positions (latest sample per courier).
func (s *Server) PositionsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var pos model.DriverPosition
		if err := json.NewDecoder(r.Body).Decode(&pos); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		saved, err := s.appendPosition(r, pos)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, saved)
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"items": s.Tracker.Latest()})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) appendPosition(r *http.Request, pos model.DriverPosition) (model.DriverPosition, error) {
	if pos.CourierID == "" {
		return model.DriverPosition{}, errCourierRequired
	}
	if pos.RecordedAt.IsZero() {
		pos.RecordedAt = time.Now().UTC()
	}
	saved, err := s.Store.AppendPosition(r.Context(), pos)
	if err != nil {
		return model.DriverPosition{}, err
	}
	metrics.PositionSamples.WithLabelValues("api").Inc()
	s.Feed.Publish(feed.TopicPositions, feed.Event{Table: "positions", Action: "created", ID: saved.ID, TourID: saved.TourID})
	return saved, nil
}

// PositionByCourierHandler handles GET /v1/positions/{courierId}.
func (s *Server) PositionByCourierHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	courierID := strings.TrimPrefix(r.URL.Path, "/v1/positions/")
	if courierID == "" || strings.Contains(courierID, "/") {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if courierID == "latest" {
		writeJSON(w, http.StatusOK, map[string]any{"items": s.Tracker.Latest()})
		return
	}
	pos, err := s.Tracker.CurrentPosition(r.Context(), courierID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

// PositionsWSHandler handles /v1/positions/ws. Couriers push samples as JSON
// messages; every connected client receives the refreshed latest-per-courier
// set whenever the positions feed moves.
func (s *Server) PositionsWSHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	ch := s.Feed.Subscribe(feed.TopicPositions)
	defer s.Feed.Unsubscribe(feed.TopicPositions, ch)

	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(20 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case _, ok := <-ch:
				if !ok {
					return
				}
				if err := conn.WriteJSON(map[string]any{"type": "positions", "items": s.Tracker.Latest()}); err != nil {
					return
				}
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					return
				}
			}
		}
	}()

	for {
		var pos model.DriverPosition
		if err := conn.ReadJSON(&pos); err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		if pos.CourierID == "" {
			continue
		}
		if _, err := s.appendPosition(r, pos); err != nil {
			_ = conn.WriteJSON(map[string]string{"type": "error", "message": err.Error()})
		}
	}
	<-done
}

// ReporterHandler handles GET/POST /v1/tracking/reporter: status plus
// start/stop of the background position reporter, when one is wired.
func (s *Server) ReporterHandler(w http.ResponseWriter, r *http.Request) {
	if s.Reporter == nil {
		writeProblem(w, http.StatusNotFound, "Not Found", "no position source configured", r.URL.Path)
		return
	}
	switch r.Method {
	case http.MethodGet:
		status := map[string]any{"running": s.Reporter.Running()}
		if err := s.Reporter.LastError(); err != nil {
			status["lastError"] = err.Error()
		}
		writeJSON(w, http.StatusOK, status)
	case http.MethodPost:
		var req struct {
			Action string `json:"action"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		switch req.Action {
		case "start":
			s.Reporter.Start()
		case "stop":
			s.Reporter.Stop()
		default:
			writeProblem(w, http.StatusBadRequest, "Invalid action", "action must be start or stop", r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"running": s.Reporter.Running()})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}
