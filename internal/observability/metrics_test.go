package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// TestMetrics_Usable verifies that label dimensions match their use in the
// client, service, route, bot and http packages.
func TestMetrics_Usable(t *testing.T) {
	HTTPRequestsTotal.WithLabelValues("GET", "/get_weather", "2xx").Inc()
	HTTPRequestDuration.WithLabelValues("GET", "/get_weather").Observe(0.01)
	UpstreamCallsTotal.WithLabelValues("accuweather", "success").Inc()
	UpstreamDuration.WithLabelValues("positionstack", "not_found").Observe(0.1)
	CacheHitsTotal.WithLabelValues("forecast").Inc()
	CacheMissesTotal.WithLabelValues("coordinates").Inc()
	CacheErrorsTotal.WithLabelValues("get", "timeout").Inc()
	CacheStampedeDetectedTotal.WithLabelValues("forecast").Inc()
	RouteEvaluationsTotal.WithLabelValues("web", "success").Inc()
	VerdictsTotal.WithLabelValues("good").Inc()
	BotUpdatesTotal.WithLabelValues("command").Inc()
	DialogueTransitionsTotal.WithLabelValues("input_start_point", "input_end_point").Inc()
	CircuitBreakerState.WithLabelValues("weather_api").Set(0)
}

func TestMetricCityLabel(t *testing.T) {
	SetTrackedCities([]string{"Moscow", "Kazan"})
	defer SetTrackedCities(nil)

	if got := MetricCityLabel(" moscow "); got != "moscow" {
		t.Errorf("MetricCityLabel() = %q, want moscow", got)
	}
	if got := MetricCityLabel("Tver"); got != "other" {
		t.Errorf("MetricCityLabel() = %q, want other", got)
	}
	RecordCityQuery("Kazan")
}

func TestRegisterWindowGauges(t *testing.T) {
	RegisterWindowGauges(time.Minute, func(time.Duration) int { return 3 }, func(time.Duration) int { return 1 })
	// second call is a no-op rather than a duplicate registration panic
	RegisterWindowGauges(time.Minute, func(time.Duration) int { return 0 }, func(time.Duration) int { return 0 })

	w := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(w.Body.String(), "requestsInWindow 3") {
		t.Error("metrics output should contain requestsInWindow gauge")
	}
}

// TestMetricsHandler_ServesPrometheusFormat verifies the text exposition endpoint.
func TestMetricsHandler_ServesPrometheusFormat(t *testing.T) {
	HTTPRequestsTotal.WithLabelValues("GET", "/health", "2xx").Inc()
	w := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Errorf("MetricsHandler status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "httpRequestsTotal") {
		t.Error("MetricsHandler response should contain metric output")
	}
}
