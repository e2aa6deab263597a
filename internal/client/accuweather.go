package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kjstillabower/route-weather-service/internal/models"
	"github.com/kjstillabower/route-weather-service/internal/observability"
)

const (
	providerAccuWeather = "accuweather"

	// DefaultAccuWeatherURL is the public data service host.
	DefaultAccuWeatherURL = "http://dataservice.accuweather.com"

	// MaxForecastDays is the longest daily forecast the provider offers on the free tier.
	MaxForecastDays = 5
)

// WeatherProvider fetches raw provider documents. Caching lives in the service layer.
type WeatherProvider interface {
	LocationKey(ctx context.Context, coords models.Coordinates) (models.LocationKey, error)
	DailyForecast(ctx context.Context, key models.LocationKey, days int) (models.ForecastBundle, error)
	CurrentConditions(ctx context.Context, key models.LocationKey) (models.CurrentConditions, error)
}

// AccuWeatherOptions tunes request parameters sent with every call.
type AccuWeatherOptions struct {
	Language string // e.g. "ru", "en-us"; empty omits the parameter
	Metric   bool
	Details  bool
}

// AccuWeatherClient calls the AccuWeather location, daily forecast and current
// conditions endpoints. There are no retries; a failure is returned as is.
type AccuWeatherClient struct {
	apiKey  string
	baseURL string
	timeout time.Duration
	opts    AccuWeatherOptions
	client  *http.Client
	breaker Breaker
}

// NewAccuWeatherClient validates the key and base URL. breaker may be nil.
func NewAccuWeatherClient(apiKey, baseURL string, timeout time.Duration, opts AccuWeatherOptions, breaker Breaker) (*AccuWeatherClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if baseURL == "" {
		baseURL = DefaultAccuWeatherURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	return &AccuWeatherClient{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		opts:    opts,
		breaker: breaker,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

type locationResponse struct {
	Key           string `json:"Key"`
	LocalizedName string `json:"LocalizedName"`
}

// LocationKey resolves coordinates to the provider's location key.
func (c *AccuWeatherClient) LocationKey(ctx context.Context, coords models.Coordinates) (models.LocationKey, error) {
	params := url.Values{}
	params.Set("q", coords.Key())
	c.setLanguage(params)

	var resp locationResponse
	if err := c.call(ctx, "/locations/v1/cities/geoposition/search", params, &resp); err != nil {
		return "", fmt.Errorf("location key for %s: %w", coords.Key(), err)
	}
	if resp.Key == "" {
		return "", fmt.Errorf("location key for %s: %w: Key", coords.Key(), ErrMissingField)
	}
	return models.LocationKey(resp.Key), nil
}

// DailyForecast fetches the 1-day endpoint for days == 1 and the 5-day endpoint
// otherwise, returning at most days records.
func (c *AccuWeatherClient) DailyForecast(ctx context.Context, key models.LocationKey, days int) (models.ForecastBundle, error) {
	if days < 1 || days > MaxForecastDays {
		return models.ForecastBundle{}, fmt.Errorf("%w: days must be between 1 and %d, got %d", ErrInvalidInput, MaxForecastDays, days)
	}
	if key == "" {
		return models.ForecastBundle{}, fmt.Errorf("%w: empty location key", ErrInvalidInput)
	}

	params := url.Values{}
	params.Set("metric", strconv.FormatBool(c.opts.Metric))
	params.Set("details", strconv.FormatBool(c.opts.Details))
	c.setLanguage(params)

	var bundle models.ForecastBundle
	if err := c.call(ctx, "/forecasts/v1/daily/"+forecastEndpoint(days)+"/"+url.PathEscape(string(key)), params, &bundle); err != nil {
		return models.ForecastBundle{}, fmt.Errorf("forecast for %s: %w", key, err)
	}
	if err := bundle.Validate(); err != nil {
		return models.ForecastBundle{}, fmt.Errorf("forecast for %s: %w: %v", key, ErrMissingField, err)
	}
	return bundle.Truncate(days), nil
}

func forecastEndpoint(days int) string {
	if days == 1 {
		return "1day"
	}
	return "5day"
}

// CurrentConditions fetches current conditions and returns the first observation.
func (c *AccuWeatherClient) CurrentConditions(ctx context.Context, key models.LocationKey) (models.CurrentConditions, error) {
	if key == "" {
		return models.CurrentConditions{}, fmt.Errorf("%w: empty location key", ErrInvalidInput)
	}
	params := url.Values{}
	params.Set("details", strconv.FormatBool(c.opts.Details))
	c.setLanguage(params)

	var resp []models.CurrentConditions
	if err := c.call(ctx, "/currentconditions/v1/"+url.PathEscape(string(key)), params, &resp); err != nil {
		return models.CurrentConditions{}, fmt.Errorf("current conditions for %s: %w", key, err)
	}
	if len(resp) == 0 {
		return models.CurrentConditions{}, fmt.Errorf("current conditions for %s: %w: empty result", key, ErrMissingField)
	}
	if err := resp[0].Validate(); err != nil {
		return models.CurrentConditions{}, fmt.Errorf("current conditions for %s: %w: %v", key, ErrMissingField, err)
	}
	return resp[0], nil
}

func (c *AccuWeatherClient) setLanguage(params url.Values) {
	if c.opts.Language != "" {
		params.Set("language", c.opts.Language)
	}
}

// call runs one request through the breaker when configured.
func (c *AccuWeatherClient) call(ctx context.Context, path string, params url.Values, out interface{}) error {
	if c.breaker == nil {
		return c.callAPI(ctx, path, params, out)
	}
	return c.breaker.Call(ctx, func() error {
		return c.callAPI(ctx, path, params, out)
	})
}

func (c *AccuWeatherClient) callAPI(ctx context.Context, path string, params url.Values, out interface{}) error {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, path, params)
	if err != nil {
		observability.UpstreamCallsTotal.WithLabelValues(providerAccuWeather, "error").Inc()
		return fmt.Errorf("build request: %w", err)
	}

	if corrID := observability.CorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.UpstreamCallsTotal.WithLabelValues(providerAccuWeather, "error").Inc()
		observability.UpstreamDuration.WithLabelValues(providerAccuWeather, "error").Observe(duration)

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return fmt.Errorf("%w: request timeout: %w", ErrUpstreamFailure, err)
		}
		return fmt.Errorf("%w: http request failed: %w", ErrUpstreamFailure, err)
	}
	defer resp.Body.Close()

	duration := time.Since(start).Seconds()
	status := statusLabel(resp.StatusCode)
	observability.UpstreamCallsTotal.WithLabelValues(providerAccuWeather, status).Inc()
	observability.UpstreamDuration.WithLabelValues(providerAccuWeather, status).Observe(duration)

	if err := handleErrorResponse(resp); err != nil {
		return err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response body: %w", ErrUpstreamFailure, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: parse response: %w", ErrUpstreamFailure, err)
	}
	return nil
}

func (c *AccuWeatherClient) buildRequest(ctx context.Context, path string, params url.Values) (*http.Request, error) {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	params.Set("apikey", c.apiKey)
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func handleErrorResponse(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d", ErrInvalidAPIKey, resp.StatusCode)
	case http.StatusNotFound:
		return fmt.Errorf("%w", ErrLocationNotFound)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w", ErrRateLimited)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}
	return nil
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == http.StatusTooManyRequests {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
