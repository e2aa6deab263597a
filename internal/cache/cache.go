package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
)

// Cache is a time-boxed key-value store. Values are opaque bytes; use GetJSON
// and SetJSON for typed entries. Set replaces the value and resets its expiry.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Flush(ctx context.Context) error
}

// InMemoryCache implements Cache using a map guarded by a mutex.
// Expired entries are removed on access and by Sweep; StartJanitor runs Sweep
// periodically so keys that are never read again do not accumulate.
type InMemoryCache struct {
	mu      sync.Mutex
	data    map[string]cacheEntry
	now     func() time.Time
	janitor *gocron.Scheduler
}

type cacheEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewInMemoryCache creates a new in-memory cache instance.
func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{
		data: make(map[string]cacheEntry),
		now:  time.Now,
	}
}

// NewInMemoryCacheWithClock creates a cache that reads time from now. Used by tests.
func NewInMemoryCacheWithClock(now func() time.Time) *InMemoryCache {
	c := NewInMemoryCache()
	c.now = now
	return c
}

// Get returns (value, true, nil) on hit and (nil, false, nil) on miss or expiry.
func (c *InMemoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.data[key]
	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(entry.expiresAt) {
		delete(c.data, key)
		return nil, false, nil
	}
	out := make([]byte, len(entry.value))
	copy(out, entry.value)
	return out, true, nil
}

// Set stores value under key until ttl elapses.
func (c *InMemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ttl <= 0 {
		return fmt.Errorf("cache: invalid ttl %s", ttl)
	}
	stored := make([]byte, len(value))
	copy(stored, value)

	c.mu.Lock()
	c.data[key] = cacheEntry{value: stored, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()
	return nil
}

// Delete removes key if present.
func (c *InMemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	delete(c.data, key)
	c.mu.Unlock()
	return nil
}

// Flush removes every entry.
func (c *InMemoryCache) Flush(ctx context.Context) error {
	c.mu.Lock()
	c.data = make(map[string]cacheEntry)
	c.mu.Unlock()
	return nil
}

// Sweep deletes every expired entry and returns how many were removed.
func (c *InMemoryCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	removed := 0
	for key, entry := range c.data {
		if !now.Before(entry.expiresAt) {
			delete(c.data, key)
			removed++
		}
	}
	return removed
}

// StartJanitor schedules Sweep every interval until Close.
func (c *InMemoryCache) StartJanitor(interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("cache: invalid sweep interval %s", interval)
	}
	s := gocron.NewScheduler(time.UTC)
	if _, err := s.Every(interval).WaitForSchedule().Do(func() { c.Sweep() }); err != nil {
		return fmt.Errorf("cache: schedule sweep: %w", err)
	}
	c.mu.Lock()
	if c.janitor != nil {
		c.janitor.Stop()
	}
	c.janitor = s
	c.mu.Unlock()
	s.StartAsync()
	return nil
}

// Close stops the janitor. The cache stays usable.
func (c *InMemoryCache) Close() error {
	c.mu.Lock()
	s := c.janitor
	c.janitor = nil
	c.mu.Unlock()
	if s != nil {
		s.Stop()
	}
	return nil
}

// Len reports the number of stored entries, including ones not yet evicted.
func (c *InMemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

// GetJSON reads key and decodes it into T. A decode failure is returned as an
// error so callers can treat it like any other cache read failure.
func GetJSON[T any](ctx context.Context, c Cache, key string) (T, bool, error) {
	var zero T
	raw, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return zero, false, err
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return zero, false, fmt.Errorf("cache: decode %s: %w", key, err)
	}
	return v, true, nil
}

// SetJSON encodes v and stores it under key.
func SetJSON[T any](ctx context.Context, c Cache, key string, v T, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", key, err)
	}
	return c.Set(ctx, key, raw, ttl)
}
