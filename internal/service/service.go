package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/route-weather-service/internal/cache"
	"github.com/kjstillabower/route-weather-service/internal/client"
	"github.com/kjstillabower/route-weather-service/internal/models"
	"github.com/kjstillabower/route-weather-service/internal/observability"
)

// DefaultTTL is the lifetime of every cached provider result.
const DefaultTTL = 24 * time.Hour

// Cache entry kinds, used as key prefixes and metric labels.
const (
	kindCoordinates       = "coordinates"
	kindLocationKey       = "location_key"
	kindForecast          = "forecast"
	kindCurrentConditions = "current_conditions"
)

// cacheAside reads key from c and returns the cached value on hit. On a miss,
// or when the read fails, it calls fetch and stores the result. A failed write
// is logged and does not fail the call.
func cacheAside[T any](ctx context.Context, c cache.Cache, ttl time.Duration, st *stampedeTracker, kind, key string, fetch func(context.Context) (T, error)) (T, error) {
	start := time.Now()
	logger := observability.LoggerFrom(ctx, nil)

	cached, ok, err := cache.GetJSON[T](ctx, c, key)
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get", categorizeCacheError(err)).Inc()
		logger.Warn("cache get failed, treating as miss", zap.String("key", key), zap.Error(err))
	} else if ok {
		observability.CacheHitsTotal.WithLabelValues(kind).Inc()
		logger.Debug("cache hit", zap.String("key", key), zap.Duration("duration", time.Since(start)))
		return cached, nil
	}
	observability.CacheMissesTotal.WithLabelValues(kind).Inc()

	if st.Begin(key) > 1 {
		observability.CacheStampedeDetectedTotal.WithLabelValues(kind).Inc()
	}
	defer st.Done(key)

	logger.Debug("cache miss, fetching upstream", zap.String("key", key))
	value, err := fetch(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	if setErr := cache.SetJSON(ctx, c, key, value, ttl); setErr != nil {
		observability.CacheErrorsTotal.WithLabelValues("set", categorizeCacheError(setErr)).Inc()
		logger.Warn("cache set failed", zap.String("key", key), zap.Error(setErr))
	}
	logger.Debug("upstream result cached", zap.String("key", key), zap.Duration("duration", time.Since(start)))
	return value, nil
}

// categorizeCacheError returns a stable label for cache error metrics (timeout, connection, decode, unknown).
func categorizeCacheError(err error) string {
	if err == nil {
		return "unknown"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "timeout"):
		return "timeout"
	case strings.Contains(errStr, "connection") || strings.Contains(errStr, "network"):
		return "connection"
	case strings.Contains(errStr, "decode"):
		return "decode"
	}
	return "unknown"
}

// normalizePlace trims and lower-cases a place name for use in cache keys.
// The provider still receives the name as the user typed it.
func normalizePlace(place string) string {
	return strings.ToLower(strings.TrimSpace(place))
}

// GeocodingService resolves place names through a Geocoder with a cache in front.
type GeocodingService struct {
	geocoder client.Geocoder
	cache    cache.Cache
	ttl      time.Duration
	stampede *stampedeTracker
}

// NewGeocodingService wires a geocoder and cache. A non-positive ttl uses DefaultTTL.
func NewGeocodingService(geocoder client.Geocoder, c cache.Cache, ttl time.Duration) *GeocodingService {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &GeocodingService{geocoder: geocoder, cache: c, ttl: ttl, stampede: newStampedeTracker()}
}

// Resolve returns coordinates for place. Failures wrap client.ErrLocationNotFound
// or client.ErrInvalidInput.
func (s *GeocodingService) Resolve(ctx context.Context, place string) (models.Coordinates, error) {
	norm := normalizePlace(place)
	if norm == "" {
		return models.Coordinates{}, fmt.Errorf("%w: empty place name", client.ErrInvalidInput)
	}
	observability.RecordCityQuery(norm)
	raw := strings.TrimSpace(place)
	return cacheAside(ctx, s.cache, s.ttl, s.stampede, kindCoordinates, kindCoordinates+":"+norm,
		func(ctx context.Context) (models.Coordinates, error) {
			return s.geocoder.Geocode(ctx, raw)
		})
}

// WeatherService serves location keys, forecasts and current conditions, each
// cached independently.
type WeatherService struct {
	provider client.WeatherProvider
	cache    cache.Cache
	ttl      time.Duration
	stampede *stampedeTracker
}

// NewWeatherService wires a provider and cache. A non-positive ttl uses DefaultTTL.
func NewWeatherService(provider client.WeatherProvider, c cache.Cache, ttl time.Duration) *WeatherService {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &WeatherService{provider: provider, cache: c, ttl: ttl, stampede: newStampedeTracker()}
}

// LocationKey returns the provider key for coords.
func (s *WeatherService) LocationKey(ctx context.Context, coords models.Coordinates) (models.LocationKey, error) {
	return cacheAside(ctx, s.cache, s.ttl, s.stampede, kindLocationKey, kindLocationKey+":"+coords.Key(),
		func(ctx context.Context) (models.LocationKey, error) {
			return s.provider.LocationKey(ctx, coords)
		})
}

// Forecast returns the first days daily records for coords. days must be 1..5.
func (s *WeatherService) Forecast(ctx context.Context, coords models.Coordinates, days int) (models.ForecastBundle, error) {
	if days < 1 || days > client.MaxForecastDays {
		return models.ForecastBundle{}, fmt.Errorf("%w: days must be between 1 and %d, got %d", client.ErrInvalidInput, client.MaxForecastDays, days)
	}
	key := kindForecast + ":" + coords.Key() + "," + strconv.Itoa(days)
	bundle, err := cacheAside(ctx, s.cache, s.ttl, s.stampede, kindForecast, key,
		func(ctx context.Context) (models.ForecastBundle, error) {
			locKey, err := s.LocationKey(ctx, coords)
			if err != nil {
				return models.ForecastBundle{}, err
			}
			return s.provider.DailyForecast(ctx, locKey, days)
		})
	if err != nil {
		return models.ForecastBundle{}, err
	}
	return bundle.Truncate(days), nil
}

// CurrentConditions returns the latest observation for key.
func (s *WeatherService) CurrentConditions(ctx context.Context, key models.LocationKey) (models.CurrentConditions, error) {
	if key == "" {
		return models.CurrentConditions{}, fmt.Errorf("%w: empty location key", client.ErrInvalidInput)
	}
	return cacheAside(ctx, s.cache, s.ttl, s.stampede, kindCurrentConditions, kindCurrentConditions+":"+string(key),
		func(ctx context.Context) (models.CurrentConditions, error) {
			return s.provider.CurrentConditions(ctx, key)
		})
}

// FlushCache removes every cached entry. Administrative; not exposed to end users.
func FlushCache(ctx context.Context, c cache.Cache) error {
	logger := observability.LoggerFrom(ctx, nil)
	if err := c.Flush(ctx); err != nil {
		observability.CacheErrorsTotal.WithLabelValues("flush", categorizeCacheError(err)).Inc()
		return fmt.Errorf("flush cache: %w", err)
	}
	observability.CacheFlushTotal.Inc()
	logger.Info("cache flushed")
	return nil
}
