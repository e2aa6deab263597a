package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/route-weather-service/internal/observability"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	// Limiter throttles provider-backed routes. Nil disables rate limiting.
	Limiter        *rate.Limiter
	RequestTimeout time.Duration
	// TestingMode exposes the /admin endpoints.
	TestingMode bool
}

// NewRouter registers every route. /health and /metrics skip the rate limiter
// and timeout; provider-backed pages get both.
func NewRouter(h *Handler, opts RouterOptions) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(h.logger))
	router.Use(MetricsMiddleware)

	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	if opts.TestingMode {
		h.logger.Warn("testing mode enabled; /admin endpoints exposed")
		admin := router.PathPrefix("/admin").Subrouter()
		admin.HandleFunc("/cache/flush", h.FlushCache).Methods(http.MethodPost)
		admin.HandleFunc("/status", h.GetAdminStatus).Methods(http.MethodGet)
		admin.HandleFunc("/reset", h.PostAdminReset).Methods(http.MethodPost)
	}

	web := router.NewRoute().Subrouter()
	web.Use(RateLimitMiddleware(opts.Limiter, h.traffic))
	if opts.RequestTimeout > 0 {
		web.Use(TimeoutMiddleware(opts.RequestTimeout))
	}
	web.HandleFunc("/", h.Index).Methods(http.MethodGet)
	web.HandleFunc("/", h.SubmitRoute).Methods(http.MethodPost)
	web.HandleFunc("/check_route_weather", h.CheckRouteWeather).Methods(http.MethodPost)
	web.HandleFunc("/get_weather", h.GetWeather).Methods(http.MethodGet)
	web.HandleFunc("/dash", h.Dash).Methods(http.MethodGet)

	return router
}
