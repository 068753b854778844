package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the API
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// StopsImported counts stops created by the import pipeline, by outcome
	// (auto, corrected, skipped).
	StopsImported = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "stops_imported_total", Help: "Stops imported by outcome."},
		[]string{"outcome"},
	)
	// Optimizations counts route optimizations by source (service, heuristic, unchanged)
	Optimizations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "route_optimizations_total", Help: "Route optimizations by source."},
		[]string{"source"},
	)
	// PositionSamples counts appended driver position samples by origin (watch, poll, api)
	PositionSamples = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "driver_position_samples_total", Help: "Appended driver position samples by origin."},
		[]string{"origin"},
	)
	// GeocodeLookups counts geocode resolutions by result (hit, miss, error)
	GeocodeLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "geocode_lookups_total", Help: "Geocode lookups by result."},
		[]string{"result"},
	)
)

// RegisterDefault registers collectors to the package registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(StopsImported)
		Registry.MustRegister(Optimizations)
		Registry.MustRegister(PositionSamples)
		Registry.MustRegister(GeocodeLookups)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
