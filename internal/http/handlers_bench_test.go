package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/route-weather-service/internal/cache"
	"github.com/kjstillabower/route-weather-service/internal/models"
	"github.com/kjstillabower/route-weather-service/internal/route"
	"github.com/kjstillabower/route-weather-service/internal/service"
	"github.com/kjstillabower/route-weather-service/internal/traffic"
)

// benchGeocoder adapts fakeGeocoder to client.Geocoder so the benchmark runs
// through the cached services.
type benchGeocoder struct{ f *fakeGeocoder }

func (g benchGeocoder) Geocode(ctx context.Context, place string) (models.Coordinates, error) {
	return g.f.Resolve(ctx, place)
}

// benchProvider adapts fakeWeather to client.WeatherProvider.
type benchProvider struct{ f *fakeWeather }

func (p benchProvider) LocationKey(ctx context.Context, coords models.Coordinates) (models.LocationKey, error) {
	return p.f.LocationKey(ctx, coords)
}

func (p benchProvider) DailyForecast(ctx context.Context, key models.LocationKey, days int) (models.ForecastBundle, error) {
	return p.f.Forecast(ctx, cityCoords["moscow"], days)
}

func (p benchProvider) CurrentConditions(ctx context.Context, key models.LocationKey) (models.CurrentConditions, error) {
	return p.f.CurrentConditions(ctx, key)
}

// setupBenchmarkRouter wires real cached services over the fakes.
func setupBenchmarkRouter(limiter *rate.Limiter, health *HealthConfig) http.Handler {
	c := cache.NewInMemoryCache()
	geo := service.NewGeocodingService(benchGeocoder{&fakeGeocoder{}}, c, time.Hour)
	weather := service.NewWeatherService(benchProvider{&fakeWeather{}}, c, time.Hour)
	h := NewHandler(Deps{
		Planner:  route.NewPlanner(geo, weather, route.FrontendWeb),
		Geocoder: geo,
		Weather:  weather,
		Cache:    c,
		Traffic:  traffic.NewTracker(),
		Health:   health,
		Logger:   zap.NewNop(),
	})
	return NewRouter(h, RouterOptions{Limiter: limiter, RequestTimeout: 5 * time.Second})
}

func benchRoute(b *testing.B, router http.Handler, newReq func() *http.Request) {
	b.Helper()
	// Prime the cache so iterations measure the cached path.
	router.ServeHTTP(httptest.NewRecorder(), newReq())
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		router.ServeHTTP(httptest.NewRecorder(), newReq())
	}
}

// BenchmarkCheckRouteWeather_CacheHit benchmarks the JSON route endpoint with every entry cached.
func BenchmarkCheckRouteWeather_CacheHit(b *testing.B) {
	router := setupBenchmarkRouter(nil, nil)
	benchRoute(b, router, func() *http.Request {
		return postJSON(`{"start_city":"Moscow","end_city":"Kazan","waypoints":["Tver"],"days":3}`)
	})
}

// BenchmarkSubmitRoute_CacheHit benchmarks form submission and results rendering.
func BenchmarkSubmitRoute_CacheHit(b *testing.B) {
	router := setupBenchmarkRouter(nil, nil)
	benchRoute(b, router, func() *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("start_city=Moscow&end_city=Kazan&days=2"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req
	})
}

// BenchmarkCheckRouteWeather_ValidationError benchmarks the rejection path.
func BenchmarkCheckRouteWeather_ValidationError(b *testing.B) {
	router := setupBenchmarkRouter(nil, nil)
	benchRoute(b, router, func() *http.Request {
		return postJSON(`{"start_city":"M0scow","end_city":"Kazan"}`)
	})
}

// BenchmarkCheckRouteWeather_RateLimited benchmarks rate limiting overhead.
func BenchmarkCheckRouteWeather_RateLimited(b *testing.B) {
	router := setupBenchmarkRouter(rate.NewLimiter(rate.Limit(100), 250), nil)
	benchRoute(b, router, func() *http.Request {
		return postJSON(`{"start_city":"Moscow","end_city":"Kazan"}`)
	})
}

// BenchmarkGetHealth benchmarks the health endpoint with every check enabled.
func BenchmarkGetHealth(b *testing.B) {
	router := setupBenchmarkRouter(nil, &HealthConfig{
		Window:               time.Minute,
		OverloadThresholdPct: 80,
		RateLimitRPS:         100,
		DegradedErrorPct:     5,
		DegradedMinSamples:   10,
		CachePing:            func() error { return nil },
	})
	benchRoute(b, router, func() *http.Request {
		return httptest.NewRequest(http.MethodGet, "/health", nil)
	})
}
