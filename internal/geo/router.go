package geo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/BigPharmacist/wild-kaeee-sub002/internal/model"
)

// RouteStop is one candidate stop handed to the routing optimizer.
type RouteStop struct {
	ID       string       `json:"id"`
	Location model.LatLng `json:"location"`
}

// RouteResult is the optimizer's answer: a visiting order over the submitted
// stop IDs plus aggregate metrics and an encoded path for map display.
type RouteResult struct {
	Order           []string `json:"order"`
	PathEncoding    string   `json:"pathEncoding"`
	DistanceKm      float64  `json:"distanceKm"`
	DurationMinutes int      `json:"durationMinutes"`
}

// Router submits an ordered stop set plus an optional origin/return point to
// an external routing optimizer.
type Router interface {
	Optimize(ctx context.Context, origin *model.LatLng, stops []RouteStop) (*RouteResult, error)
	Configured() bool
}

// HTTPRouter calls an ORS-style /optimization endpoint.
type HTTPRouter struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
}

func NewHTTPRouter(baseURL, apiKey string) *HTTPRouter {
	if baseURL == "" {
		baseURL = "https://api.openrouteservice.org"
	}
	return &HTTPRouter{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 20 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(2), 2),
	}
}

func (r *HTTPRouter) Configured() bool { return r.apiKey != "" }

type optimizationRequest struct {
	Jobs     []optimizationJob     `json:"jobs"`
	Vehicles []optimizationVehicle `json:"vehicles"`
	Options  map[string]any        `json:"options,omitempty"`
}

type optimizationJob struct {
	ID       int       `json:"id"`
	Location []float64 `json:"location"` // lon, lat
}

type optimizationVehicle struct {
	ID      int        `json:"id"`
	Profile string     `json:"profile"`
	Start   []float64  `json:"start,omitempty"`
	End     []float64  `json:"end,omitempty"`
}

type optimizationResponse struct {
	Summary struct {
		Distance float64 `json:"distance"` // meters
		Duration float64 `json:"duration"` // seconds
	} `json:"summary"`
	Routes []struct {
		Geometry string `json:"geometry"`
		Steps    []struct {
			Type string `json:"type"`
			Job  int    `json:"job"`
		} `json:"steps"`
	} `json:"routes"`
}

func (r *HTTPRouter) Optimize(ctx context.Context, origin *model.LatLng, stops []RouteStop) (*RouteResult, error) {
	if !r.Configured() {
		return nil, ErrUnconfigured
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	// The optimization API wants integer job ids; map them back afterwards.
	jobs := make([]optimizationJob, 0, len(stops))
	byJob := make(map[int]string, len(stops))
	for i, s := range stops {
		jobs = append(jobs, optimizationJob{ID: i + 1, Location: []float64{s.Location.Lng, s.Location.Lat}})
		byJob[i+1] = s.ID
	}
	veh := optimizationVehicle{ID: 1, Profile: "driving-car"}
	if origin != nil {
		veh.Start = []float64{origin.Lng, origin.Lat}
		veh.End = []float64{origin.Lng, origin.Lat}
	}
	body, err := json.Marshal(optimizationRequest{
		Jobs:     jobs,
		Vehicles: []optimizationVehicle{veh},
		Options:  map[string]any{"g": true},
	})
	if err != nil {
		return nil, err
	}

	makeReq := func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/optimization", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", r.apiKey)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		return req, nil
	}
	resp, err := doWithRetry(ctx, r.client, makeReq)
	if err != nil {
		return nil, fmt.Errorf("route optimization: %w", err)
	}
	defer resp.Body.Close()

	var decoded optimizationResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode optimization response: %w", err)
	}
	if len(decoded.Routes) == 0 {
		return nil, fmt.Errorf("route optimization: empty result")
	}
	rt := decoded.Routes[0]
	order := make([]string, 0, len(stops))
	for _, step := range rt.Steps {
		if step.Type != "job" {
			continue
		}
		if id, ok := byJob[step.Job]; ok {
			order = append(order, id)
		}
	}
	if len(order) != len(stops) {
		return nil, fmt.Errorf("route optimization: order covers %d of %d stops", len(order), len(stops))
	}
	return &RouteResult{
		Order:           order,
		PathEncoding:    rt.Geometry,
		DistanceKm:      decoded.Summary.Distance / 1000.0,
		DurationMinutes: int(decoded.Summary.Duration / 60.0),
	}, nil
}
