package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/kjstillabower/route-weather-service/internal/observability"
)

// CityFetcher resolves a city and its forecast through the caching services,
// leaving the results in the cache. Implemented by the route planner.
type CityFetcher interface {
	PrefetchCity(ctx context.Context, city string, days int) error
}

// CacheWarmer prefetches forecasts for a fixed list of cities.
type CacheWarmer struct {
	fetcher   CityFetcher
	logger    *zap.Logger
	scheduler *gocron.Scheduler
	timeout   time.Duration
}

// NewCacheWarmer creates a CacheWarmer that uses the given fetcher and logger.
func NewCacheWarmer(fetcher CityFetcher, logger *zap.Logger) *CacheWarmer {
	return &CacheWarmer{fetcher: fetcher, logger: logger, timeout: 30 * time.Second}
}

// Warm fetches each city concurrently. Returns an aggregated error if any failed.
func (w *CacheWarmer) Warm(ctx context.Context, cities []string, days int) error {
	start := time.Now()
	observability.CacheWarmingTotal.Inc()
	if w.logger != nil {
		w.logger.Info("warming cache", zap.Int("cities", len(cities)), zap.Int("days", days))
	}
	var wg sync.WaitGroup
	errCh := make(chan error, len(cities))
	for _, city := range cities {
		city := city
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.fetcher.PrefetchCity(ctx, city, days); err != nil {
				errCh <- fmt.Errorf("warm %s: %w", city, err)
			}
		}()
	}
	wg.Wait()
	close(errCh)
	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	duration := time.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	if w.logger != nil {
		w.logger.Info("cache warming complete", zap.Int("cities", len(cities)), zap.Int("errors", len(errs)), zap.Float64("duration_seconds", duration))
	}
	if len(errs) > 0 {
		observability.CacheWarmingErrorsTotal.Inc()
		return fmt.Errorf("cache warming: %w", errors.Join(errs...))
	}
	return nil
}

// Start schedules Warm every interval, running the first pass immediately.
// The job runs on its own context bounded by the warmer timeout.
func (w *CacheWarmer) Start(cities []string, days int, interval time.Duration) error {
	if len(cities) == 0 {
		if w.logger != nil {
			w.logger.Info("cache warming: no cities configured")
		}
		return nil
	}
	if interval <= 0 {
		return fmt.Errorf("cache warming: invalid interval %s", interval)
	}
	s := gocron.NewScheduler(time.UTC)
	_, err := s.Every(interval).Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		defer cancel()
		if err := w.Warm(ctx, cities, days); err != nil && w.logger != nil {
			w.logger.Warn("periodic cache warm failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("cache warming: schedule: %w", err)
	}
	w.scheduler = s
	s.StartAsync()
	return nil
}

// Stop cancels future runs.
func (w *CacheWarmer) Stop() {
	if w.scheduler != nil {
		w.scheduler.Stop()
	}
}
