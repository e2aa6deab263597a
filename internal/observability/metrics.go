package observability

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation.
	HTTPRequestsInFlight prometheus.Gauge

	// Upstream calls by provider (positionstack, google, accuweather) and outcome category.
	UpstreamCallsTotal *prometheus.CounterVec

	// Upstream latency. Watch for: p95 > 2s (provider degradation).
	UpstreamDuration *prometheus.HistogramVec

	// Cache hits and misses by entry kind (coordinates, location_key, forecast, current_conditions, session).
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Cache backend errors by operation. Reads that fail are served as misses.
	CacheErrorsTotal *prometheus.CounterVec

	// Concurrent misses on the same key. Nonzero means duplicate upstream fetches happened.
	CacheStampedeDetectedTotal *prometheus.CounterVec

	CacheFlushTotal prometheus.Counter

	CacheWarmingTotal           prometheus.Counter
	CacheWarmingErrorsTotal     prometheus.Counter
	CacheWarmingDurationSeconds prometheus.Histogram

	// Route evaluations by front end (web, bot, cli) and outcome (success, geocoding, forecast, invalid).
	RouteEvaluationsTotal *prometheus.CounterVec

	// Verdicts produced per point.
	VerdictsTotal *prometheus.CounterVec

	// Per-city lookups (allow-list; others go to "other").
	CityQueriesTotal *prometheus.CounterVec

	// Chat updates by kind (command, callback, location, text) and dialogue transitions.
	BotUpdatesTotal          *prometheus.CounterVec
	DialogueTransitionsTotal *prometheus.CounterVec

	// Rate limit denials. Watch for: overload, capacity exceeded.
	RateLimitDeniedTotal prometheus.Counter

	// Circuit breaker state per component: 0 closed, 1 open, 2 half-open.
	CircuitBreakerState *prometheus.GaugeVec

	trackedCitiesMu sync.RWMutex
	trackedCities   map[string]struct{}

	windowGaugesOnce sync.Once
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	UpstreamCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstreamCallsTotal",
			Help: "Total number of geocoding and weather provider calls",
		},
		[]string{"provider", "status"},
	)
	UpstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstreamDurationSeconds",
			Help:    "Provider latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"provider", "status"},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Total number of cache hits",
		},
		[]string{"cacheType"},
	)
	CacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheMissesTotal",
			Help: "Total number of cache misses",
		},
		[]string{"cacheType"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheErrorsTotal",
			Help: "Cache backend errors by operation and category",
		},
		[]string{"operation", "category"},
	)
	CacheStampedeDetectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheStampedeDetectedTotal",
			Help: "Cache misses that overlapped another in-progress miss for the same key",
		},
		[]string{"cacheType"},
	)
	CacheFlushTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheFlushTotal",
			Help: "Administrative full cache flushes",
		},
	)
	CacheWarmingTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingTotal",
			Help: "Cache warming passes started",
		},
	)
	CacheWarmingErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingErrorsTotal",
			Help: "Cache warming passes with at least one failed city",
		},
	)
	CacheWarmingDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cacheWarmingDurationSeconds",
			Help:    "Duration of a cache warming pass",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 30},
		},
	)
	RouteEvaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "routeEvaluationsTotal",
			Help: "Route evaluations by front end and outcome",
		},
		[]string{"frontend", "outcome"},
	)
	VerdictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verdictsTotal",
			Help: "Point verdicts produced",
		},
		[]string{"verdict"},
	)
	CityQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cityQueriesTotal",
			Help: "City lookups (allow-list; others use city=other)",
		},
		[]string{"city"},
	)
	BotUpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "botUpdatesTotal",
			Help: "Chat updates handled by kind",
		},
		[]string{"kind"},
	)
	DialogueTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dialogueTransitionsTotal",
			Help: "Dialogue state transitions",
		},
		[]string{"from", "to"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state: 0 closed, 1 open, 2 half-open",
		},
		[]string{"component"},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		UpstreamCallsTotal, UpstreamDuration,
		CacheHitsTotal, CacheMissesTotal, CacheErrorsTotal, CacheStampedeDetectedTotal, CacheFlushTotal,
		CacheWarmingTotal, CacheWarmingErrorsTotal, CacheWarmingDurationSeconds,
		RouteEvaluationsTotal, VerdictsTotal, CityQueriesTotal,
		BotUpdatesTotal, DialogueTransitionsTotal,
		RateLimitDeniedTotal, CircuitBreakerState,
	)
}

// RegisterWindowGauges exposes sliding-window request and rejection counts.
// requests and rejects are usually traffic.RequestCount and traffic.DenialCount.
func RegisterWindowGauges(window time.Duration, requests, rejects func(time.Duration) int) {
	windowGaugesOnce.Do(func() {
		registry.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "requestsInWindow",
					Help: "Evaluation outcomes in the sliding window; load/capacity planning",
				},
				func() float64 { return float64(requests(window)) },
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rejectsInWindow",
					Help: "429 responses in the sliding window",
				},
				func() float64 { return float64(rejects(window)) },
			),
		)
	})
}

// SetTrackedCities sets the allow-list for city metrics. Other cities increment "other".
func SetTrackedCities(cities []string) {
	trackedCitiesMu.Lock()
	defer trackedCitiesMu.Unlock()
	trackedCities = make(map[string]struct{}, len(cities))
	for _, c := range cities {
		trackedCities[normalizeCityForMetrics(c)] = struct{}{}
	}
}

// RecordCityQuery records a lookup for city.
func RecordCityQuery(city string) {
	CityQueriesTotal.WithLabelValues(MetricCityLabel(city)).Inc()
}

// MetricCityLabel returns the normalized city when tracked, else "other".
func MetricCityLabel(city string) string {
	c := normalizeCityForMetrics(city)
	trackedCitiesMu.RLock()
	_, ok := trackedCities[c]
	trackedCitiesMu.RUnlock()
	if ok {
		return c
	}
	return "other"
}

func normalizeCityForMetrics(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
