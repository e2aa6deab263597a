package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kelvins/geocoder"

	"github.com/kjstillabower/route-weather-service/internal/models"
	"github.com/kjstillabower/route-weather-service/internal/observability"
)

const (
	providerPositionstack = "positionstack"
	providerGoogle        = "google"

	// DefaultPositionstackURL is the public forward-geocoding host.
	DefaultPositionstackURL = "http://api.positionstack.com"
)

// Geocoder resolves a free-form place name to coordinates. Any failure,
// including a non-success response or an empty result, wraps ErrLocationNotFound.
type Geocoder interface {
	Geocode(ctx context.Context, place string) (models.Coordinates, error)
}

// PositionstackClient calls the positionstack forward-geocoding endpoint.
type PositionstackClient struct {
	apiKey  string
	client  *resty.Client
	breaker Breaker
}

// NewPositionstackClient creates a client. breaker may be nil.
func NewPositionstackClient(apiKey, baseURL string, timeout time.Duration, breaker Breaker) (*PositionstackClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("%w: positionstack access key is required", ErrInvalidAPIKey)
	}
	if baseURL == "" {
		baseURL = DefaultPositionstackURL
	}
	rc := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Accept", "application/json").
		SetTimeout(timeout)
	return &PositionstackClient{apiKey: apiKey, client: rc, breaker: breaker}, nil
}

type positionstackResponse struct {
	Data []struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Label     string  `json:"label"`
	} `json:"data"`
}

// Geocode requests a single best match for place.
func (c *PositionstackClient) Geocode(ctx context.Context, place string) (models.Coordinates, error) {
	if strings.TrimSpace(place) == "" {
		return models.Coordinates{}, fmt.Errorf("%w: empty place name", ErrInvalidInput)
	}
	var coords models.Coordinates
	fn := func() error {
		var err error
		coords, err = c.geocode(ctx, place)
		return err
	}
	var err error
	if c.breaker != nil {
		err = c.breaker.Call(ctx, fn)
	} else {
		err = fn()
	}
	if err != nil {
		return models.Coordinates{}, fmt.Errorf("geocode %q: %w", place, err)
	}
	return coords, nil
}

func (c *PositionstackClient) geocode(ctx context.Context, place string) (models.Coordinates, error) {
	start := time.Now()
	req := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"access_key": c.apiKey,
			"query":      place,
			"limit":      "1",
		})
	if corrID := observability.CorrelationID(ctx); corrID != "" {
		req.SetHeader("X-Correlation-ID", corrID)
	}

	resp, err := req.Get("/v1/forward")
	if err != nil {
		observability.UpstreamCallsTotal.WithLabelValues(providerPositionstack, "error").Inc()
		observability.UpstreamDuration.WithLabelValues(providerPositionstack, "error").Observe(time.Since(start).Seconds())
		return models.Coordinates{}, fmt.Errorf("%w: %w: %w", ErrLocationNotFound, ErrUpstreamFailure, err)
	}

	status := statusLabel(resp.StatusCode())
	observability.UpstreamCallsTotal.WithLabelValues(providerPositionstack, status).Inc()
	observability.UpstreamDuration.WithLabelValues(providerPositionstack, status).Observe(time.Since(start).Seconds())

	if !resp.IsSuccess() {
		return models.Coordinates{}, fmt.Errorf("%w: %w", ErrLocationNotFound, statusError(resp.StatusCode()))
	}

	var body positionstackResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return models.Coordinates{}, fmt.Errorf("%w: parse response: %w", ErrLocationNotFound, err)
	}
	if len(body.Data) == 0 {
		return models.Coordinates{}, fmt.Errorf("%w: no results", ErrLocationNotFound)
	}
	return models.Coordinates{Latitude: body.Data[0].Latitude, Longitude: body.Data[0].Longitude}, nil
}

// statusError maps a non-2xx status to the taxonomy used by the weather client.
func statusError(code int) error {
	switch {
	case code == 401 || code == 403:
		return fmt.Errorf("%w: HTTP %d", ErrInvalidAPIKey, code)
	case code == 429:
		return ErrRateLimited
	case code == 404 || code == 422:
		return fmt.Errorf("HTTP %d", code)
	default:
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, code)
	}
}

// googleAPIKeyMu guards the geocoder package's global key. It is held only
// while the key is assigned, never across a lookup.
var googleAPIKeyMu sync.Mutex

// GoogleGeocoder resolves places through the Google Geocoding API.
type GoogleGeocoder struct {
	breaker Breaker
	lookup  func(geocoder.Address) (geocoder.Location, error)
}

// NewGoogleGeocoder creates a geocoder using apiKey. breaker may be nil.
func NewGoogleGeocoder(apiKey string, breaker Breaker) (*GoogleGeocoder, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("%w: google geocoding key is required", ErrInvalidAPIKey)
	}
	googleAPIKeyMu.Lock()
	geocoder.ApiKey = apiKey
	googleAPIKeyMu.Unlock()
	return &GoogleGeocoder{breaker: breaker, lookup: geocoder.Geocoding}, nil
}

// Geocode looks up place as a city. The library call has no context support,
// so a canceled ctx returns early and leaves the call to finish in the
// background. An abandoned lookup holds no lock and is bounded only by the
// library's HTTP client; later calls are not blocked by it.
func (g *GoogleGeocoder) Geocode(ctx context.Context, place string) (models.Coordinates, error) {
	if strings.TrimSpace(place) == "" {
		return models.Coordinates{}, fmt.Errorf("%w: empty place name", ErrInvalidInput)
	}
	var coords models.Coordinates
	fn := func() error {
		var err error
		coords, err = g.geocode(ctx, place)
		return err
	}
	var err error
	if g.breaker != nil {
		err = g.breaker.Call(ctx, fn)
	} else {
		err = fn()
	}
	if err != nil {
		return models.Coordinates{}, fmt.Errorf("geocode %q: %w", place, err)
	}
	return coords, nil
}

type googleResult struct {
	loc geocoder.Location
	err error
}

func (g *GoogleGeocoder) geocode(ctx context.Context, place string) (models.Coordinates, error) {
	start := time.Now()
	done := make(chan googleResult, 1)
	go func() {
		loc, err := g.lookup(geocoder.Address{City: place})
		done <- googleResult{loc: loc, err: err}
	}()

	select {
	case <-ctx.Done():
		observability.UpstreamCallsTotal.WithLabelValues(providerGoogle, "error").Inc()
		return models.Coordinates{}, fmt.Errorf("%w: %w: %w", ErrLocationNotFound, ErrUpstreamFailure, ctx.Err())
	case res := <-done:
		status := "success"
		if res.err != nil {
			status = "error"
		}
		observability.UpstreamCallsTotal.WithLabelValues(providerGoogle, status).Inc()
		observability.UpstreamDuration.WithLabelValues(providerGoogle, status).Observe(time.Since(start).Seconds())
		if res.err != nil {
			return models.Coordinates{}, fmt.Errorf("%w: %w", ErrLocationNotFound, res.err)
		}
		if res.loc.Latitude == 0 && res.loc.Longitude == 0 {
			return models.Coordinates{}, fmt.Errorf("%w: no results", ErrLocationNotFound)
		}
		return models.Coordinates{Latitude: res.loc.Latitude, Longitude: res.loc.Longitude}, nil
	}
}
