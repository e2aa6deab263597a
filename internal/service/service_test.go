package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/route-weather-service/internal/cache"
	"github.com/kjstillabower/route-weather-service/internal/client"
	"github.com/kjstillabower/route-weather-service/internal/models"
	"github.com/kjstillabower/route-weather-service/internal/observability"
)

type mockGeocoder struct {
	mu     sync.Mutex
	coords models.Coordinates
	err    error
	calls  []string
}

func (m *mockGeocoder) Geocode(ctx context.Context, place string) (models.Coordinates, error) {
	m.mu.Lock()
	m.calls = append(m.calls, place)
	m.mu.Unlock()
	return m.coords, m.err
}

type mockProvider struct {
	mu            sync.Mutex
	key           models.LocationKey
	keyErr        error
	bundle        models.ForecastBundle
	forecastErr   error
	current       models.CurrentConditions
	keyCalls      int
	forecastCalls []int
	currentCalls  int
}

func (m *mockProvider) LocationKey(ctx context.Context, coords models.Coordinates) (models.LocationKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keyCalls++
	return m.key, m.keyErr
}

func (m *mockProvider) DailyForecast(ctx context.Context, key models.LocationKey, days int) (models.ForecastBundle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forecastCalls = append(m.forecastCalls, days)
	return m.bundle, m.forecastErr
}

func (m *mockProvider) CurrentConditions(ctx context.Context, key models.LocationKey) (models.CurrentConditions, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentCalls++
	return m.current, nil
}

// failingCache fails every operation, standing in for an unreachable backend.
type failingCache struct{ err error }

func (f failingCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return nil, false, f.err
}
func (f failingCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return f.err
}
func (f failingCache) Delete(ctx context.Context, key string) error { return f.err }
func (f failingCache) Flush(ctx context.Context) error             { return f.err }

func bundleOf(n int) models.ForecastBundle {
	b := models.ForecastBundle{}
	for i := 0; i < n; i++ {
		b.DailyForecasts = append(b.DailyForecasts, models.DailyForecast{
			Temperature: models.TemperatureRange{
				Minimum: &models.Measurement{Value: float64(i), Unit: "C"},
				Maximum: &models.Measurement{Value: float64(i + 10), Unit: "C"},
			},
		})
	}
	return b
}

func TestNormalizePlace(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{" Moscow ", "moscow"},
		{"moscow", "moscow"},
		{"SaInT PeTeRsBuRg", "saint petersburg"},
		{"  Nizhny Novgorod  ", "nizhny novgorod"},
	}
	for _, tc := range tests {
		if got := normalizePlace(tc.in); got != tc.want {
			t.Errorf("normalizePlace(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

// TestGeocodingService_Resolve_CachesByNormalizedName verifies that names
// differing only in case and surrounding whitespace share one cache entry.
func TestGeocodingService_Resolve_CachesByNormalizedName(t *testing.T) {
	geo := &mockGeocoder{coords: models.Coordinates{Latitude: 55.75, Longitude: 37.61}}
	c := cache.NewInMemoryCache()
	svc := NewGeocodingService(geo, c, time.Hour)
	ctx := context.Background()

	for _, name := range []string{"Moscow", " moscow", "MOSCOW "} {
		got, err := svc.Resolve(ctx, name)
		if err != nil {
			t.Fatalf("Resolve(%q) error = %v", name, err)
		}
		if got != geo.coords {
			t.Errorf("Resolve(%q) = %+v, want %+v", name, got, geo.coords)
		}
	}
	if len(geo.calls) != 1 {
		t.Errorf("geocoder calls = %d, want 1", len(geo.calls))
	}
	if geo.calls[0] != "Moscow" {
		t.Errorf("geocoder received %q, want the raw name", geo.calls[0])
	}
	if _, ok, _ := c.Get(ctx, "coordinates:moscow"); !ok {
		t.Error("expected entry under coordinates:moscow")
	}
}

func TestGeocodingService_Resolve_NotFoundIsNotCached(t *testing.T) {
	geo := &mockGeocoder{err: client.ErrLocationNotFound}
	c := cache.NewInMemoryCache()
	svc := NewGeocodingService(geo, c, time.Hour)

	_, err := svc.Resolve(context.Background(), "Atlantis")
	if !errors.Is(err, client.ErrLocationNotFound) {
		t.Fatalf("Resolve() error = %v, want ErrLocationNotFound", err)
	}
	if c.Len() != 0 {
		t.Error("failed lookups must not be cached")
	}
}

func TestGeocodingService_Resolve_EmptyName(t *testing.T) {
	svc := NewGeocodingService(&mockGeocoder{}, cache.NewInMemoryCache(), 0)
	if _, err := svc.Resolve(context.Background(), "   "); !errors.Is(err, client.ErrInvalidInput) {
		t.Errorf("Resolve() error = %v, want ErrInvalidInput", err)
	}
}

// TestGeocodingService_Resolve_CacheErrorsAreNonFatal verifies that read and
// write failures fall through to the provider and are logged.
func TestGeocodingService_Resolve_CacheErrorsAreNonFatal(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	ctx := observability.WithLogger(context.Background(), zap.New(core))
	geo := &mockGeocoder{coords: models.Coordinates{Latitude: 1, Longitude: 2}}
	svc := NewGeocodingService(geo, failingCache{err: errors.New("connection reset")}, time.Hour)

	got, err := svc.Resolve(ctx, "Kazan")
	if err != nil {
		t.Fatalf("Resolve() error = %v, want nil", err)
	}
	if got != geo.coords {
		t.Errorf("Resolve() = %+v", got)
	}
	if logs.FilterMessage("cache get failed, treating as miss").Len() != 1 {
		t.Error("expected cache get warning")
	}
	if logs.FilterMessage("cache set failed").Len() != 1 {
		t.Error("expected cache set warning")
	}
}

func TestWeatherService_Forecast_CacheMissThenHit(t *testing.T) {
	p := &mockProvider{key: "294021", bundle: bundleOf(5)}
	c := cache.NewInMemoryCache()
	svc := NewWeatherService(p, c, time.Hour)
	ctx := context.Background()
	coords := models.Coordinates{Latitude: 55.75, Longitude: 37.61}

	for i := 0; i < 2; i++ {
		got, err := svc.Forecast(ctx, coords, 3)
		if err != nil {
			t.Fatalf("Forecast() error = %v", err)
		}
		if len(got.DailyForecasts) != 3 {
			t.Errorf("len(DailyForecasts) = %d, want 3", len(got.DailyForecasts))
		}
	}
	if len(p.forecastCalls) != 1 || p.forecastCalls[0] != 3 {
		t.Errorf("forecast calls = %v, want [3]", p.forecastCalls)
	}
	if p.keyCalls != 1 {
		t.Errorf("location key calls = %d, want 1", p.keyCalls)
	}
	for _, key := range []string{"forecast:55.75,37.61,3", "location_key:55.75,37.61"} {
		if _, ok, _ := c.Get(ctx, key); !ok {
			t.Errorf("expected cache entry %s", key)
		}
	}
}

// TestWeatherService_Forecast_DaysAreSeparateEntries verifies 1-day and 5-day
// requests for the same point are cached independently but share the location key.
func TestWeatherService_Forecast_DaysAreSeparateEntries(t *testing.T) {
	p := &mockProvider{key: "1", bundle: bundleOf(5)}
	svc := NewWeatherService(p, cache.NewInMemoryCache(), time.Hour)
	ctx := context.Background()
	coords := models.Coordinates{Latitude: 1, Longitude: 2}

	if _, err := svc.Forecast(ctx, coords, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Forecast(ctx, coords, 5); err != nil {
		t.Fatal(err)
	}
	if len(p.forecastCalls) != 2 {
		t.Errorf("forecast calls = %v, want 2", p.forecastCalls)
	}
	if p.keyCalls != 1 {
		t.Errorf("location key calls = %d, want 1", p.keyCalls)
	}
}

func TestWeatherService_Forecast_InvalidDays(t *testing.T) {
	p := &mockProvider{key: "1", bundle: bundleOf(5)}
	svc := NewWeatherService(p, cache.NewInMemoryCache(), time.Hour)
	for _, days := range []int{0, 6} {
		if _, err := svc.Forecast(context.Background(), models.Coordinates{}, days); !errors.Is(err, client.ErrInvalidInput) {
			t.Errorf("Forecast(days=%d) error = %v, want ErrInvalidInput", days, err)
		}
	}
	if p.keyCalls != 0 || len(p.forecastCalls) != 0 {
		t.Error("invalid days must not reach the provider")
	}
}

func TestWeatherService_Forecast_LocationKeyFailure(t *testing.T) {
	p := &mockProvider{keyErr: client.ErrUpstreamFailure}
	c := cache.NewInMemoryCache()
	svc := NewWeatherService(p, c, time.Hour)

	_, err := svc.Forecast(context.Background(), models.Coordinates{Latitude: 1, Longitude: 1}, 1)
	if !errors.Is(err, client.ErrUpstreamFailure) {
		t.Errorf("Forecast() error = %v, want ErrUpstreamFailure", err)
	}
	if len(p.forecastCalls) != 0 {
		t.Error("forecast must not be requested without a location key")
	}
	if c.Len() != 0 {
		t.Error("nothing should be cached on failure")
	}
}

func TestWeatherService_CurrentConditions(t *testing.T) {
	p := &mockProvider{current: models.CurrentConditions{WeatherText: "Sunny", Temperature: models.UnitedMeasure{Metric: &models.Measurement{Value: 21, Unit: "C"}}}}
	c := cache.NewInMemoryCache()
	svc := NewWeatherService(p, c, time.Hour)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		got, err := svc.CurrentConditions(ctx, "294021")
		if err != nil {
			t.Fatalf("CurrentConditions() error = %v", err)
		}
		if got.WeatherText != "Sunny" || got.Temperature.Metric.Value != 21 {
			t.Errorf("CurrentConditions() = %+v", got)
		}
	}
	if p.currentCalls != 1 {
		t.Errorf("provider calls = %d, want 1", p.currentCalls)
	}
	if _, ok, _ := c.Get(ctx, "current_conditions:294021"); !ok {
		t.Error("expected cache entry current_conditions:294021")
	}
	if _, err := svc.CurrentConditions(ctx, ""); !errors.Is(err, client.ErrInvalidInput) {
		t.Errorf("CurrentConditions(\"\") error = %v, want ErrInvalidInput", err)
	}
}

// TestWeatherService_CorruptEntryRefetches verifies an undecodable cache entry
// is treated as a miss and overwritten.
func TestWeatherService_CorruptEntryRefetches(t *testing.T) {
	p := &mockProvider{key: "42"}
	c := cache.NewInMemoryCache()
	ctx := context.Background()
	_ = c.Set(ctx, "location_key:1,2", []byte("{garbage"), time.Hour)

	svc := NewWeatherService(p, c, time.Hour)
	got, err := svc.LocationKey(ctx, models.Coordinates{Latitude: 1, Longitude: 2})
	if err != nil || got != "42" {
		t.Fatalf("LocationKey() = %q, %v", got, err)
	}
	raw, _, _ := c.Get(ctx, "location_key:1,2")
	if string(raw) != `"42"` {
		t.Errorf("cache entry = %s, want rewritten value", raw)
	}
}

func TestWeatherService_TTLExpiryRefetches(t *testing.T) {
	p := &mockProvider{key: "7"}
	c := cache.NewInMemoryCache()
	svc := NewWeatherService(p, c, 20*time.Millisecond)
	ctx := context.Background()
	coords := models.Coordinates{Latitude: 3, Longitude: 4}

	_, _ = svc.LocationKey(ctx, coords)
	time.Sleep(30 * time.Millisecond)
	_, _ = svc.LocationKey(ctx, coords)
	if p.keyCalls != 2 {
		t.Errorf("provider calls = %d, want 2 after expiry", p.keyCalls)
	}
}

func TestFlushCache(t *testing.T) {
	c := cache.NewInMemoryCache()
	ctx := context.Background()
	_ = c.Set(ctx, "coordinates:moscow", []byte("{}"), time.Hour)

	if err := FlushCache(ctx, c); err != nil {
		t.Fatalf("FlushCache() error = %v", err)
	}
	if c.Len() != 0 {
		t.Error("cache not empty after flush")
	}

	err := FlushCache(ctx, failingCache{err: errors.New("connection refused")})
	if err == nil || !strings.Contains(err.Error(), "flush cache") {
		t.Errorf("FlushCache() error = %v, want wrapped flush error", err)
	}
}

func TestCategorizeCacheError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "unknown"},
		{context.DeadlineExceeded, "timeout"},
		{errors.New("i/o timeout"), "timeout"},
		{errors.New("connection refused"), "connection"},
		{errors.New("cache: decode k: bad"), "decode"},
		{errors.New("boom"), "unknown"},
	}
	for _, tt := range tests {
		if got := categorizeCacheError(tt.err); got != tt.want {
			t.Errorf("categorizeCacheError(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
