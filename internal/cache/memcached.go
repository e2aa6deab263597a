package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

const (
	keyPrefix      = "routewx:"
	maxKeyLength   = 250
	maxRelativeExp = 30 * 24 * 60 * 60 // memcached treats larger values as unix timestamps
)

// MemcachedCache implements Cache using memcached.
type MemcachedCache struct {
	client *memcache.Client
}

// NewMemcachedCache creates a MemcachedCache. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and maxIdleConns
// use package defaults if zero.
func NewMemcachedCache(addrs string, timeout time.Duration, maxIdleConns int) (*MemcachedCache, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedCache{client: client}, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

// storageKey maps an application key onto memcached's key alphabet: no spaces
// or control characters, at most 250 bytes.
func storageKey(k string) string {
	escaped := keyPrefix + url.PathEscape(k)
	if len(escaped) <= maxKeyLength {
		return escaped
	}
	sum := sha1.Sum([]byte(k))
	return keyPrefix + "h:" + hex.EncodeToString(sum[:])
}

// Get implements Cache.Get. Returns false, nil on cache miss; false, err on error.
func (c *MemcachedCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if ctx.Err() != nil {
		return nil, false, ctx.Err()
	}
	item, err := c.client.Get(storageKey(key))
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return item.Value, true, nil
}

// Set implements Cache.Set.
func (c *MemcachedCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	expSec := int32(ttl.Seconds())
	if expSec <= 0 || expSec > maxRelativeExp {
		expSec = maxRelativeExp
	}
	return c.client.Set(&memcache.Item{
		Key:        storageKey(key),
		Value:      value,
		Expiration: expSec,
	})
}

// Delete implements Cache.Delete. Deleting a missing key is not an error.
func (c *MemcachedCache) Delete(ctx context.Context, key string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	err := c.client.Delete(storageKey(key))
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil
	}
	return err
}

// Flush invalidates every item on every server.
func (c *MemcachedCache) Flush(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return c.client.FlushAll()
}

// Ping checks if memcached is reachable. Used for health checks.
func (c *MemcachedCache) Ping() error {
	return c.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (c *MemcachedCache) Close() error {
	return c.client.Close()
}
