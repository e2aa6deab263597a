package client

import (
	"context"
	"errors"

	"github.com/kjstillabower/route-weather-service/internal/circuitbreaker"
)

// Failure taxonomy. Components return these wrapped; callers treat any non-nil
// error as a single failed operation and use the sentinels only for logs,
// metrics and user-facing wording.
var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrLocationNotFound = errors.New("location not found")
	ErrUpstreamFailure  = errors.New("upstream failure")
	ErrMissingField     = errors.New("missing field")
	ErrInvalidAPIKey    = errors.New("invalid API key")
	ErrRateLimited      = errors.New("rate limited")
	ErrCircuitOpen      = circuitbreaker.ErrOpen
)

// Breaker is the subset of circuitbreaker.CircuitBreaker the clients depend on.
type Breaker interface {
	Call(ctx context.Context, fn func() error) error
}

// IsBreakerFailure reports whether err indicates provider trouble rather than
// a bad request. Not-found and missing-field responses keep the circuit closed.
func IsBreakerFailure(err error) bool {
	switch {
	case errors.Is(err, ErrUpstreamFailure), errors.Is(err, ErrRateLimited), errors.Is(err, ErrInvalidAPIKey):
		return true
	case errors.Is(err, ErrLocationNotFound), errors.Is(err, ErrInvalidInput), errors.Is(err, ErrMissingField):
		return false
	}
	return true
}
