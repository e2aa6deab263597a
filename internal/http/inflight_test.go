package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
)

func TestInFlightTracker_ConcurrentBalance(t *testing.T) {
	tracker := &InFlightTracker{}
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracker.Increment()
			tracker.Decrement()
		}()
	}
	wg.Wait()
	if got := tracker.Count(); got != 0 {
		t.Errorf("Count() = %d after balanced calls, want 0", got)
	}
}

func TestInFlightTracker_WaitForZero_Canceled(t *testing.T) {
	tracker := &InFlightTracker{}
	tracker.Increment()
	defer tracker.Decrement()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := tracker.WaitForZero(ctx, time.Millisecond); !errors.Is(err, context.Canceled) {
		t.Errorf("WaitForZero() error = %v, want context.Canceled", err)
	}
}

// TestWaitForInFlight_DrainsBlockedRequest holds a request open mid-handler the
// way a slow provider call would during shutdown.
func TestWaitForInFlight_DrainsBlockedRequest(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	router := mux.NewRouter()
	router.Use(MetricsMiddleware)
	router.HandleFunc("/check_route_weather", func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/check_route_weather", nil))
	}()
	<-entered

	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := WaitForInFlight(short, 5*time.Millisecond); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("WaitForInFlight() with open request = %v, want deadline exceeded", err)
	}

	close(release)
	<-done
	drain, cancelDrain := context.WithTimeout(context.Background(), time.Second)
	defer cancelDrain()
	if err := WaitForInFlight(drain, 5*time.Millisecond); err != nil {
		t.Errorf("WaitForInFlight() after release = %v, want nil", err)
	}
}
