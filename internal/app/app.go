// Package app builds the shared service graph used by the web server, the chat
// bot and the admin CLI.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/route-weather-service/internal/cache"
	"github.com/kjstillabower/route-weather-service/internal/circuitbreaker"
	"github.com/kjstillabower/route-weather-service/internal/client"
	"github.com/kjstillabower/route-weather-service/internal/config"
	httphandler "github.com/kjstillabower/route-weather-service/internal/http"
	"github.com/kjstillabower/route-weather-service/internal/observability"
	"github.com/kjstillabower/route-weather-service/internal/route"
	"github.com/kjstillabower/route-weather-service/internal/service"
	"github.com/kjstillabower/route-weather-service/internal/traffic"
)

// Breaker components, used as metric labels and health check names.
const (
	ComponentGeocoding = "geocoding"
	ComponentWeather   = "weather_api"
)

// App holds the wired services.
type App struct {
	Config    *config.Config
	Logger    *zap.Logger
	Cache     cache.Cache
	Geocoding *service.GeocodingService
	Weather   *service.WeatherService
	Planner   *route.Planner
	Traffic   *traffic.Tracker
	Breakers  map[string]*circuitbreaker.CircuitBreaker

	memcached *cache.MemcachedCache
	inMemory  *cache.InMemoryCache
	warmer    *cache.CacheWarmer
}

// cacheSweepInterval is how often the in-memory backend drops expired entries.
const cacheSweepInterval = time.Minute

// New wires the cache backend, provider clients and services from cfg.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		Config:   cfg,
		Logger:   logger,
		Traffic:  traffic.NewTracker(),
		Breakers: map[string]*circuitbreaker.CircuitBreaker{},
	}

	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			return nil, fmt.Errorf("memcached cache: %w", err)
		}
		a.memcached = mc
		a.Cache = mc
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		mem := cache.NewInMemoryCache()
		if err := mem.StartJanitor(cacheSweepInterval); err != nil {
			return nil, fmt.Errorf("in-memory cache: %w", err)
		}
		a.inMemory = mem
		a.Cache = mem
		logger.Info("cache backend: in_memory", zap.Duration("sweep_interval", cacheSweepInterval))
	}

	geocoder, err := a.newGeocoder()
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	provider, err := client.NewAccuWeatherClient(
		cfg.WeatherAPIKey,
		cfg.WeatherAPIURL,
		cfg.WeatherAPITimeout,
		client.AccuWeatherOptions{Language: cfg.WeatherLanguage, Metric: cfg.WeatherMetric, Details: cfg.WeatherDetails},
		a.breaker(ComponentWeather),
	)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("weather client: %w", err)
	}

	a.Geocoding = service.NewGeocodingService(geocoder, a.Cache, cfg.CacheTTL)
	a.Weather = service.NewWeatherService(provider, a.Cache, cfg.CacheTTL)
	a.Planner = route.NewPlanner(a.Geocoding, a.Weather, route.FrontendWeb)

	observability.RegisterWindowGauges(cfg.TrafficWindow, a.Traffic.RequestCount, a.Traffic.DenialCount)
	if len(cfg.TrackedCities) > 0 {
		observability.SetTrackedCities(cfg.TrackedCities)
	}
	return a, nil
}

func (a *App) newGeocoder() (client.Geocoder, error) {
	cfg := a.Config
	switch cfg.GeocodingProvider {
	case config.GeocoderGoogle:
		g, err := client.NewGoogleGeocoder(cfg.GoogleGeocodingAPIKey, a.breaker(ComponentGeocoding))
		if err != nil {
			return nil, fmt.Errorf("google geocoder: %w", err)
		}
		a.Logger.Info("geocoding provider: google")
		return g, nil
	default:
		g, err := client.NewPositionstackClient(cfg.PositionstackAPIKey, cfg.GeocodingURL, cfg.GeocodingTimeout, a.breaker(ComponentGeocoding))
		if err != nil {
			return nil, fmt.Errorf("positionstack client: %w", err)
		}
		a.Logger.Info("geocoding provider: positionstack")
		return g, nil
	}
}

// breaker returns a circuit breaker for component, or nil when breakers are disabled.
func (a *App) breaker(component string) client.Breaker {
	cfg := a.Config
	if !cfg.CircuitBreakerEnabled {
		return nil
	}
	gauge := observability.CircuitBreakerState.WithLabelValues(component)
	logger := a.Logger
	cb := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: cfg.CircuitFailureThreshold,
		SuccessThreshold: cfg.CircuitSuccessThreshold,
		Timeout:          cfg.CircuitTimeout,
		Component:        component,
		IsFailure:        client.IsBreakerFailure,
		OnStateChange: func(from, to circuitbreaker.State) {
			gauge.Set(float64(to))
			logger.Warn("circuit breaker state change",
				zap.String("component", component),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	gauge.Set(float64(circuitbreaker.StateClosed))
	a.Breakers[component] = cb
	logger.Info("circuit breaker enabled",
		zap.String("component", component),
		zap.Int("failure_threshold", cfg.CircuitFailureThreshold),
		zap.Duration("timeout", cfg.CircuitTimeout))
	return cb
}

// Router builds the web handler with health checks over the wired breakers and cache.
func (a *App) Router() http.Handler {
	cfg := a.Config
	health := &httphandler.HealthConfig{
		Window:               cfg.TrafficWindow,
		OverloadThresholdPct: cfg.OverloadThresholdPct,
		RateLimitRPS:         cfg.RateLimitRPS,
		DegradedErrorPct:     cfg.DegradedErrorPct,
		DegradedMinSamples:   cfg.DegradedMinSamples,
		Breakers:             map[string]httphandler.BreakerState{},
	}
	for name, cb := range a.Breakers {
		health.Breakers[name] = cb
	}
	if a.memcached != nil {
		health.CachePing = a.memcached.Ping
	}

	h := httphandler.NewHandler(httphandler.Deps{
		Planner:  a.Planner.WithFrontend(route.FrontendWeb),
		Geocoder: a.Geocoding,
		Weather:  a.Weather,
		Cache:    a.Cache,
		Traffic:  a.Traffic,
		Health:   health,
		Logger:   a.Logger,
		Language: cfg.BotLanguage,
	})

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	if cfg.TestingMode {
		a.Logger.Warn("testing mode enabled; /admin endpoints exposed")
	}
	return httphandler.NewRouter(h, httphandler.RouterOptions{
		Limiter:        limiter,
		RequestTimeout: cfg.RequestTimeout,
		TestingMode:    cfg.TestingMode,
	})
}

// StartWarming runs one warm pass and then schedules periodic passes. It is a
// no-op unless warming is enabled.
func (a *App) StartWarming(ctx context.Context) error {
	cfg := a.Config
	if !cfg.WarmingEnabled {
		return nil
	}
	a.warmer = cache.NewCacheWarmer(a.Planner, a.Logger)
	warmCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := a.warmer.Warm(warmCtx, cfg.WarmingCities, cfg.WarmingDays); err != nil {
		a.Logger.Warn("cache warming failed", zap.Error(err))
	}
	return a.warmer.Start(cfg.WarmingCities, cfg.WarmingDays, cfg.WarmingInterval)
}

// StopWarming cancels scheduled warm passes.
func (a *App) StopWarming() {
	if a.warmer != nil {
		a.warmer.Stop()
	}
}

// Close releases the cache connection or stops the in-memory sweep.
func (a *App) Close() error {
	if a.inMemory != nil {
		return a.inMemory.Close()
	}
	if a.memcached != nil {
		return a.memcached.Close()
	}
	return nil
}
