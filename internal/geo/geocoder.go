package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/BigPharmacist/wild-kaeee-sub002/internal/model"
)

// ErrUnconfigured marks a client constructed without credentials. Callers
// degrade to fallback behavior instead of failing.
var ErrUnconfigured = errors.New("geo: service not configured")

// Geocoder resolves street addresses to coordinates. A not-found address is
// (nil, nil), not an error.
type Geocoder interface {
	Resolve(ctx context.Context, street, postalCode, city string) (*model.LatLng, error)
}

// HTTPGeocoder calls an OpenRouteService-compatible /geocode/search endpoint.
type HTTPGeocoder struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPGeocoder returns a geocoder for the given endpoint. An empty apiKey
// yields a client whose Resolve always answers (nil, nil).
func NewHTTPGeocoder(baseURL, apiKey string) *HTTPGeocoder {
	if baseURL == "" {
		baseURL = "https://api.openrouteservice.org"
	}
	return &HTTPGeocoder{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 10 * time.Second},
		// free-tier friendly: ~5 calls/sec with small bursts
		limiter: rate.NewLimiter(rate.Limit(5), 5),
	}
}

type geocodeResponse struct {
	Features []struct {
		Geometry struct {
			Coordinates []float64 `json:"coordinates"` // lon, lat
		} `json:"geometry"`
	} `json:"features"`
}

func (g *HTTPGeocoder) Resolve(ctx context.Context, street, postalCode, city string) (*model.LatLng, error) {
	if g.apiKey == "" {
		return nil, nil
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	text := strings.TrimSpace(strings.Join([]string{street, postalCode, city}, " "))
	makeReq := func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/geocode/search", nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", g.apiKey)
		req.Header.Set("Accept", "application/json")
		q := req.URL.Query()
		q.Set("text", text)
		q.Set("boundary.country", "DE")
		q.Set("size", "1")
		req.URL.RawQuery = q.Encode()
		return req, nil
	}
	resp, err := doWithRetry(ctx, g.client, makeReq)
	if err != nil {
		return nil, fmt.Errorf("geocode %q: %w", text, err)
	}
	defer resp.Body.Close()
	var decoded geocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode geocode response: %w", err)
	}
	if len(decoded.Features) == 0 {
		return nil, nil
	}
	coords := decoded.Features[0].Geometry.Coordinates
	if len(coords) != 2 {
		return nil, fmt.Errorf("invalid coordinate format for %q", text)
	}
	return &model.LatLng{Lat: coords[1], Lng: coords[0]}, nil
}

type httpStatusError struct {
	Code int
	Body string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Code, e.Body)
}

// doWithRetry retries transient failures (network errors, 429/5xx) with
// exponential backoff while respecting context cancellation.
func doWithRetry(ctx context.Context, client *http.Client, makeReq func() (*http.Request, error)) (*http.Response, error) {
	const maxAttempts = 4
	backoff := 200 * time.Millisecond

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		req, err := makeReq()
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err == nil && resp.StatusCode < 400 {
			return resp, nil
		}
		if err == nil {
			b, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			err = &httpStatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
		}
		lastErr = err

		retry := false
		var he *httpStatusError
		if errors.As(err, &he) {
			switch he.Code {
			case 429, 500, 502, 503, 504:
				retry = true
			}
		}
		var netErr net.Error
		if !retry && errors.As(err, &netErr) {
			retry = true
		}
		if !retry || attempt == maxAttempts {
			return nil, lastErr
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
	}
	return nil, lastErr
}
