//go:build integration
// +build integration

package testhelpers

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/kjstillabower/route-weather-service/internal/cache"
	"github.com/kjstillabower/route-weather-service/internal/client"
	"github.com/kjstillabower/route-weather-service/internal/service"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	AccuWeatherKey   string
	AccuWeatherURL   string
	PositionstackKey string
	PositionstackURL string
	CacheBackend     string // "in_memory" or "memcached"
	MemcachedAddr    string
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips the test unless both provider keys are set.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	t.Helper()
	cfg := IntegrationTestConfig{
		AccuWeatherKey:   os.Getenv("ACCUWEATHER_API_KEY"),
		AccuWeatherURL:   os.Getenv("ACCUWEATHER_API_URL"),
		PositionstackKey: os.Getenv("POSITIONSTACK_API_KEY"),
		PositionstackURL: os.Getenv("POSITIONSTACK_API_URL"),
		CacheBackend:     os.Getenv("INTEGRATION_CACHE_BACKEND"),
		MemcachedAddr:    os.Getenv("MEMCACHED_ADDRS"),
	}
	if cfg.AccuWeatherKey == "" || cfg.PositionstackKey == "" {
		t.Skip("ACCUWEATHER_API_KEY or POSITIONSTACK_API_KEY not set, skipping integration test")
	}
	if cfg.MemcachedAddr == "" {
		cfg.MemcachedAddr = "localhost:11211"
	}
	return cfg
}

// Services bundles the live services used by integration tests.
type Services struct {
	Geocoding *service.GeocodingService
	Weather   *service.WeatherService
	Cache     cache.Cache
}

// SetupIntegrationServices builds live provider clients over the configured
// cache backend. Falls back to the in-memory cache when memcached is unreachable.
func SetupIntegrationServices(t *testing.T, cfg IntegrationTestConfig) (Services, func()) {
	t.Helper()
	geocoder, err := client.NewPositionstackClient(cfg.PositionstackKey, cfg.PositionstackURL, 5*time.Second, nil)
	if err != nil {
		t.Fatalf("NewPositionstackClient() error = %v", err)
	}
	provider, err := client.NewAccuWeatherClient(cfg.AccuWeatherKey, cfg.AccuWeatherURL, 5*time.Second,
		client.AccuWeatherOptions{Language: "ru", Metric: true, Details: true}, nil)
	if err != nil {
		t.Fatalf("NewAccuWeatherClient() error = %v", err)
	}

	var c cache.Cache = cache.NewInMemoryCache()
	cleanup := func() {}
	if cfg.CacheBackend == "memcached" {
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddr, 500*time.Millisecond, 2)
		if err == nil && mc.Ping() == nil {
			c = mc
			cleanup = func() { _ = mc.Close() }
			t.Logf("Using Memcached cache at %s", cfg.MemcachedAddr)
		} else {
			t.Logf("Memcached not available, using in-memory cache")
		}
	}

	return Services{
		Geocoding: service.NewGeocodingService(geocoder, c, time.Hour),
		Weather:   service.NewWeatherService(provider, c, time.Hour),
		Cache:     c,
	}, cleanup
}

// ClearCache flushes every entry so tests start cold.
func ClearCache(ctx context.Context, c cache.Cache) error {
	return c.Flush(ctx)
}
