package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/route-weather-service/internal/cache"
	"github.com/kjstillabower/route-weather-service/internal/circuitbreaker"
	"github.com/kjstillabower/route-weather-service/internal/client"
	"github.com/kjstillabower/route-weather-service/internal/lifecycle"
	"github.com/kjstillabower/route-weather-service/internal/models"
	"github.com/kjstillabower/route-weather-service/internal/observability"
	"github.com/kjstillabower/route-weather-service/internal/route"
	"github.com/kjstillabower/route-weather-service/internal/service"
	"github.com/kjstillabower/route-weather-service/internal/traffic"
	"github.com/kjstillabower/route-weather-service/internal/validation"
)

// Error codes in JSON error bodies.
const (
	CodeInvalidInput     = "INVALID_INPUT"
	CodeGeocodingFailed  = "GEOCODING_FAILED"
	CodeForecastFailed   = "FORECAST_FAILED"
	CodeRateLimited      = "RATE_LIMITED"
	CodeCacheFlushFailed = "CACHE_FLUSH_FAILED"
)

// RoutePlanner evaluates a route of city names.
type RoutePlanner interface {
	EvaluateCities(ctx context.Context, r route.CityRoute, days, dayIndex int) ([]route.PointVerdict, error)
}

// Resolver geocodes a place name.
type Resolver interface {
	Resolve(ctx context.Context, place string) (models.Coordinates, error)
}

// WeatherLookup is the weather service surface used by the single-city pages.
type WeatherLookup interface {
	LocationKey(ctx context.Context, coords models.Coordinates) (models.LocationKey, error)
	Forecast(ctx context.Context, coords models.Coordinates, days int) (models.ForecastBundle, error)
	CurrentConditions(ctx context.Context, key models.LocationKey) (models.CurrentConditions, error)
}

// BreakerState reports a circuit breaker state for health.
type BreakerState interface {
	State() circuitbreaker.State
}

// HealthConfig holds thresholds for the health handler.
type HealthConfig struct {
	Window               time.Duration
	OverloadThresholdPct int
	RateLimitRPS         int
	DegradedErrorPct     int
	DegradedMinSamples   int
	// Breakers maps a provider name to its breaker. Any open breaker marks the service degraded.
	Breakers map[string]BreakerState
	// CachePing, when set, is called to check cache reachability. Used when backend is memcached.
	CachePing func() error
}

// Deps are the collaborators of Handler.
type Deps struct {
	Planner  RoutePlanner
	Geocoder Resolver
	Weather  WeatherLookup
	Cache    cache.Cache
	Traffic  *traffic.Tracker
	Health   *HealthConfig
	Logger   *zap.Logger
	// Language selects verdict and phrase labels in rendered pages.
	Language string
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	planner  RoutePlanner
	geocoder Resolver
	weather  WeatherLookup
	cache    cache.Cache
	traffic  *traffic.Tracker
	health   *HealthConfig
	logger   *zap.Logger
	lang     string

	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. A nil Traffic gets a private tracker.
func NewHandler(d Deps) *Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Traffic == nil {
		d.Traffic = traffic.NewTracker()
	}
	if d.Language == "" {
		d.Language = "ru"
	}
	return &Handler{
		planner:  d.Planner,
		geocoder: d.Geocoder,
		weather:  d.Weather,
		cache:    d.Cache,
		traffic:  d.Traffic,
		health:   d.Health,
		logger:   d.Logger,
		lang:     d.Language,
	}
}

// recordOutcome feeds the traffic tracker used by health. Invalid input is not
// a service failure and is not recorded.
func (h *Handler) recordOutcome(err error) {
	switch {
	case err == nil:
		h.traffic.RecordSuccess()
	case isInvalidInput(err):
	default:
		h.traffic.RecordFailure()
	}
}

func isInvalidInput(err error) bool {
	return errors.Is(err, validation.ErrInvalid) || errors.Is(err, client.ErrInvalidInput)
}

// apiError is the status, code and user-facing message for a failed operation.
type apiError struct {
	status  int
	code    string
	message string
}

// classify maps an operation error to a response. Input errors are 400; any
// provider failure is 500 and names the failing step and point when known.
func classify(err error) apiError {
	if isInvalidInput(err) {
		return apiError{http.StatusBadRequest, CodeInvalidInput, inputMessage(err)}
	}
	var pe *route.PointError
	if errors.As(err, &pe) {
		if pe.Step == route.StepGeocoding {
			return apiError{http.StatusInternalServerError, CodeGeocodingFailed,
				"Не удалось найти координаты для точки «" + pe.Point.Label() + "»."}
		}
		return apiError{http.StatusInternalServerError, CodeForecastFailed,
			"Не удалось получить данные о погоде для точки «" + pe.Point.Label() + "»."}
	}
	if errors.Is(err, client.ErrLocationNotFound) {
		return apiError{http.StatusInternalServerError, CodeGeocodingFailed, "Не удалось найти координаты для указанного города."}
	}
	return apiError{http.StatusInternalServerError, CodeForecastFailed, "Не удалось получить данные о погоде."}
}

func inputMessage(err error) string {
	var fe *validation.FieldError
	if errors.As(err, &fe) {
		switch fe.Field {
		case "days":
			return "Количество дней должно быть от 1 до 5"
		case "day_index":
			return "Номер дня должен быть меньше количества дней"
		}
	}
	if errors.Is(err, client.ErrInvalidInput) && !errors.Is(err, validation.ErrInvalid) {
		return "Некорректные параметры запроса"
	}
	return validation.MessageRU(err)
}

// writeJSON writes v as JSON with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes {"error":{"code","message","requestId"}}.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationID(r.Context()),
		},
	})
}

// writeOperationError classifies err, logs it and writes the JSON error body.
func writeOperationError(w http.ResponseWriter, r *http.Request, err error) {
	e := classify(err)
	logger := observability.LoggerFrom(r.Context(), nil)
	if e.status >= http.StatusInternalServerError {
		logger.Warn("operation failed",
			zap.String("code", e.code),
			zap.String("category", string(client.CategorizeError(err))),
			zap.Error(err))
	} else {
		logger.Debug("invalid input", zap.Error(err))
	}
	writeError(w, r, e.status, e.code, e.message)
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := make(map[string]string)
	if h.health != nil {
		for name, b := range h.health.Breakers {
			if b.State() == circuitbreaker.StateOpen {
				checks[name] = "unhealthy"
			} else {
				checks[name] = "healthy"
			}
		}
		if h.health.CachePing != nil {
			if h.health.CachePing() == nil {
				checks["cache"] = "healthy"
			} else {
				checks["cache"] = "unhealthy"
			}
		}
	}
	writeJSON(w, result.statusCode, map[string]interface{}{
		"status":    result.status,
		"service":   "route-weather-service",
		"version":   "dev",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > overloaded > degraded (error rate, then open breakers) > healthy.
func (h *Handler) computeHealthStatus() healthResult {
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if h.health == nil {
		return healthResult{"healthy", http.StatusOK, ""}
	}
	window := h.health.Window
	if window <= 0 {
		window = time.Minute
	}
	if h.health.RateLimitRPS > 0 && h.health.OverloadThresholdPct > 0 {
		threshold := float64(h.health.RateLimitRPS) * window.Seconds() * float64(h.health.OverloadThresholdPct) / 100
		if float64(h.traffic.RequestCount(window)) > threshold {
			return healthResult{"overloaded", http.StatusServiceUnavailable, "overload_threshold"}
		}
	}
	if h.health.DegradedErrorPct > 0 && h.traffic.Degraded(window, h.health.DegradedErrorPct, h.health.DegradedMinSamples) {
		return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
	}
	for _, b := range h.health.Breakers {
		if b.State() == circuitbreaker.StateOpen {
			return healthResult{"degraded", http.StatusServiceUnavailable, "circuit_open"}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// FlushCache handles POST /admin/cache/flush. Registered only in testing mode.
func (h *Handler) FlushCache(w http.ResponseWriter, r *http.Request) {
	if err := service.FlushCache(r.Context(), h.cache); err != nil {
		observability.LoggerFrom(r.Context(), h.logger).Error("cache flush failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, CodeCacheFlushFailed, "Unable to flush cache")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":      true,
		"action":  "flush",
		"message": "Cache flushed",
	})
}

// GetAdminStatus handles GET /admin/status: sliding-window counters and the
// health state they produce.
func (h *Handler) GetAdminStatus(w http.ResponseWriter, r *http.Request) {
	window := time.Minute
	if h.health != nil && h.health.Window > 0 {
		window = h.health.Window
	}
	failures, total := h.traffic.FailureRate(window)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total_requests_in_window":  h.traffic.RequestCount(window),
		"denied_requests_in_window": h.traffic.DenialCount(window),
		"errors_in_window":          failures,
		"outcomes_in_window":        total,
		"window_length":             window.String(),
		"in_flight":                 InFlightCount(),
		"state":                     h.computeHealthStatus().status,
	})
}

// PostAdminReset handles POST /admin/reset: clears traffic counters and the
// shutting-down flag.
func (h *Handler) PostAdminReset(w http.ResponseWriter, r *http.Request) {
	h.traffic.Reset()
	lifecycle.SetShuttingDown(false)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":      true,
		"action":  "reset",
		"message": "Traffic counters cleared",
	})
}
