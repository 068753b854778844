package api

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BigPharmacist/wild-kaeee-sub002/internal/feed"
	"github.com/BigPharmacist/wild-kaeee-sub002/internal/metrics"
	"github.com/BigPharmacist/wild-kaeee-sub002/internal/objstore"
	"github.com/BigPharmacist/wild-kaeee-sub002/internal/store"
	"github.com/BigPharmacist/wild-kaeee-sub002/internal/tours"
	"github.com/BigPharmacist/wild-kaeee-sub002/internal/tracking"
)

// Server bundles the HTTP handlers with their dependencies. Wiring (store,
// feed, geocoder selection) happens in main; the server takes finished parts.
type Server struct {
	Store    store.Store
	Feed     feed.Feed
	Tours    *tours.Service
	Tracker  *tracking.Aggregator
	Reporter *tracking.Reporter
	Objects  objstore.ObjectStore
	FilesDir string
}

// Routes builds the full route table.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/tours", s.ToursHandler)
	mux.HandleFunc("/v1/tours/", s.TourByIDHandler)
	mux.HandleFunc("/v1/stops/", s.StopByIDHandler)
	mux.HandleFunc("/v1/customers", s.CustomersHandler)
	mux.HandleFunc("/v1/customers/", s.CustomerByIDHandler)
	mux.HandleFunc("/v1/positions", s.PositionsHandler)
	mux.HandleFunc("/v1/positions/ws", s.PositionsWSHandler)
	mux.HandleFunc("/v1/positions/", s.PositionByCourierHandler)
	mux.HandleFunc("/v1/tracking/reporter", s.ReporterHandler)

	mux.HandleFunc("/healthz", s.HealthHandler)
	mux.HandleFunc("/readyz", s.ReadyHandler)
	mux.HandleFunc("/debug", s.DebugJSON)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	if s.FilesDir != "" {
		mux.Handle("/files/", http.StripPrefix("/files/", http.FileServer(http.Dir(s.FilesDir))))
	}

	return metricsMiddleware(mux)
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	type pinger interface{ Ping(ctx context.Context) error }
	if p, ok := s.Store.(pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			writeProblem(w, http.StatusServiceUnavailable, "Not ready", err.Error(), r.URL.Path)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// metricsMiddleware records request counts and latency on the package registry.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		status := strconv.Itoa(rec.status)
		metrics.HTTPRequests.WithLabelValues(r.Method, routeLabel(r.URL.Path), status).Inc()
		metrics.HTTPDuration.WithLabelValues(r.Method, routeLabel(r.URL.Path), status).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack keeps WebSocket upgrades working behind the middleware.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return hj.Hijack()
}

// routeLabel collapses resource IDs out of the path so metric cardinality
// stays bounded.
func routeLabel(path string) string {
	switch {
	case path == "/v1/tours" || path == "/v1/customers" || path == "/v1/positions":
		return path
	}
	for _, prefix := range []string{"/v1/tours/", "/v1/stops/", "/v1/customers/", "/v1/positions/", "/files/"} {
		if len(path) > len(prefix) && path[:len(prefix)] == prefix {
			return prefix + ":id"
		}
	}
	return path
}
