package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/route-weather-service/internal/observability"
	"github.com/kjstillabower/route-weather-service/internal/traffic"
)

func TestMiddleware_CorrelationIDGenerated(t *testing.T) {
	var seen string
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(zap.NewNop()))
	router.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		seen = observability.CorrelationID(r.Context())
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	got := w.Header().Get("X-Correlation-ID")
	if got == "" {
		t.Fatal("X-Correlation-ID header missing")
	}
	if seen != got {
		t.Errorf("context correlation id = %q, header = %q", seen, got)
	}
}

func TestMiddleware_CorrelationIDPropagated(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(zap.New(core)))
	router.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		observability.LoggerFrom(r.Context(), nil).Info("handled")
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Correlation-ID", "client-provided-id")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Correlation-ID"); got != "client-provided-id" {
		t.Errorf("X-Correlation-ID = %q, want client-provided-id", got)
	}
	entries := logs.FilterMessage("handled").All()
	if len(entries) != 1 || entries[0].ContextMap()["correlation_id"] != "client-provided-id" {
		t.Errorf("request logger not scoped to correlation id: %+v", entries)
	}
}

func TestMiddleware_MetricsRecordsStatus(t *testing.T) {
	router := mux.NewRouter()
	router.Use(MetricsMiddleware)
	router.HandleFunc("/fail", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fail", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	if n := InFlightCount(); n != 0 {
		t.Errorf("InFlightCount() = %d after request, want 0", n)
	}
}

func TestMiddleware_InFlightDuringRequest(t *testing.T) {
	var during int64
	router := mux.NewRouter()
	router.Use(MetricsMiddleware)
	router.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		during = InFlightCount()
	})
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/slow", nil))
	if during < 1 {
		t.Errorf("InFlightCount() during request = %d, want >= 1", during)
	}
}

func TestGetRoute_UsesTemplate(t *testing.T) {
	var got string
	router := mux.NewRouter()
	router.HandleFunc("/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		got = getRoute(r)
	})
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/items/42", nil))
	if got != "/items/{id}" {
		t.Errorf("getRoute() = %q, want /items/{id}", got)
	}

	if got := getRoute(httptest.NewRequest(http.MethodGet, "/unrouted", nil)); got != "other" {
		t.Errorf("getRoute() without route = %q, want other", got)
	}
}

func TestTimeoutMiddleware_CancelsContextAfterTimeout(t *testing.T) {
	router := mux.NewRouter()
	router.Use(TimeoutMiddleware(20 * time.Millisecond))
	router.HandleFunc("/block", func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
		if errors.Is(r.Context().Err(), context.DeadlineExceeded) {
			w.WriteHeader(http.StatusGatewayTimeout)
		}
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/block", nil))
	if w.Code != http.StatusGatewayTimeout {
		t.Errorf("status = %d, want 504 from deadline", w.Code)
	}
}

func TestRateLimitMiddleware_Returns429WhenExceeded(t *testing.T) {
	tracker := traffic.NewTracker()
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(zap.NewNop()))
	router.Use(RateLimitMiddleware(rate.NewLimiter(1, 2), tracker))
	router.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {})

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		if i < 2 {
			if w.Code != http.StatusOK {
				t.Errorf("request %d: status = %d, want 200", i, w.Code)
			}
			continue
		}
		if w.Code != http.StatusTooManyRequests {
			t.Fatalf("request %d: status = %d, want 429", i, w.Code)
		}
		var errResp errorBody
		if err := json.NewDecoder(w.Body).Decode(&errResp); err != nil {
			t.Fatalf("decode 429 response: %v", err)
		}
		if errResp.Error.Code != CodeRateLimited {
			t.Errorf("error.code = %q, want RATE_LIMITED", errResp.Error.Code)
		}
		if errResp.Error.RequestID == "" {
			t.Error("requestId missing from 429 body")
		}
	}
	if n := tracker.DenialCount(time.Minute); n != 1 {
		t.Errorf("DenialCount() = %d, want 1", n)
	}
}

func TestRateLimitMiddleware_NilLimiterPassesThrough(t *testing.T) {
	router := mux.NewRouter()
	router.Use(RateLimitMiddleware(nil, nil))
	router.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 (nil limiter should allow)", w.Code)
	}
}

func TestRouter_HealthAndMetricsBypassRateLimit(t *testing.T) {
	env := newTestEnv(t, nil, nil, false)
	env.router = NewRouter(env.handler, RouterOptions{Limiter: rate.NewLimiter(rate.Limit(0.001), 1)})

	w := env.do(httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("first page request status = %d, want 200", w.Code)
	}
	w = env.do(httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("second page request status = %d, want 429", w.Code)
	}
	for _, path := range []string{"/health", "/metrics"} {
		w = env.do(httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusOK {
			t.Errorf("%s status = %d, want 200", path, w.Code)
		}
	}
}
