package dialogue

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/kjstillabower/route-weather-service/internal/cache"
	"github.com/kjstillabower/route-weather-service/internal/observability"
)

// DefaultSessionTTL bounds how long an abandoned session survives.
const DefaultSessionTTL = 30 * time.Minute

const sessionKind = "session"

// Store persists sessions between chat updates.
type Store interface {
	Load(ctx context.Context, userID int64) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, userID int64) error
}

// CacheStore keeps sessions as JSON in a cache.Cache. Every save refreshes the TTL.
type CacheStore struct {
	cache cache.Cache
	ttl   time.Duration
	now   func() time.Time
}

// NewCacheStore creates a store. A non-positive ttl uses DefaultSessionTTL.
func NewCacheStore(c cache.Cache, ttl time.Duration) *CacheStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &CacheStore{cache: c, ttl: ttl, now: time.Now}
}

func sessionKey(userID int64) string {
	return sessionKind + ":" + strconv.FormatInt(userID, 10)
}

// Load returns the stored session, or a new one in StateNone when absent or expired.
func (s *CacheStore) Load(ctx context.Context, userID int64) (*Session, error) {
	sess, ok, err := cache.GetJSON[Session](ctx, s.cache, sessionKey(userID))
	if err != nil {
		return nil, fmt.Errorf("load session %d: %w", userID, err)
	}
	if !ok {
		observability.CacheMissesTotal.WithLabelValues(sessionKind).Inc()
		return NewSession(userID), nil
	}
	observability.CacheHitsTotal.WithLabelValues(sessionKind).Inc()
	sess.UserID = userID
	return &sess, nil
}

// Save writes the session. A session in StateNone is deleted instead.
func (s *CacheStore) Save(ctx context.Context, sess *Session) error {
	if sess.State == StateNone {
		return s.Delete(ctx, sess.UserID)
	}
	sess.UpdatedAt = s.now()
	if err := cache.SetJSON(ctx, s.cache, sessionKey(sess.UserID), sess, s.ttl); err != nil {
		return fmt.Errorf("save session %d: %w", sess.UserID, err)
	}
	return nil
}

// Delete removes the session.
func (s *CacheStore) Delete(ctx context.Context, userID int64) error {
	if err := s.cache.Delete(ctx, sessionKey(userID)); err != nil {
		return fmt.Errorf("delete session %d: %w", userID, err)
	}
	return nil
}
