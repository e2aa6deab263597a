package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
)

// ErrOpen is returned when the breaker rejects a call without running it.
var ErrOpen = errors.New("circuit breaker open")

// State represents the circuit breaker state.
const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// State is the circuit breaker state (Closed, Open, HalfOpen).
type State int

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// Config holds circuit breaker parameters.
type Config struct {
	FailureThreshold int           // consecutive failures that open the circuit
	SuccessThreshold int           // probe calls allowed (and required) in half-open
	Timeout          time.Duration // time spent open before probing
	Component        string
	OnStateChange    func(from, to State)
	// IsFailure decides whether an error counts against the breaker. Nil counts every error.
	IsFailure func(err error) bool
}

// CircuitBreaker protects upstream calls by opening after consecutive failures
// and allowing probe requests in half-open state.
type CircuitBreaker struct {
	cb        *gobreaker.CircuitBreaker
	component string
}

// New creates a new CircuitBreaker with the given config.
func New(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	threshold := uint32(cfg.FailureThreshold)
	settings := gobreaker.Settings{
		Name:        cfg.Component,
		MaxRequests: uint32(cfg.SuccessThreshold),
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= threshold
		},
	}
	if cfg.IsFailure != nil {
		isFailure := cfg.IsFailure
		settings.IsSuccessful = func(err error) bool {
			return err == nil || !isFailure(err)
		}
	}
	if cfg.OnStateChange != nil {
		notify := cfg.OnStateChange
		settings.OnStateChange = func(_ string, from, to gobreaker.State) {
			notify(fromGobreaker(from), fromGobreaker(to))
		}
	}
	return &CircuitBreaker{cb: gobreaker.NewCircuitBreaker(settings), component: cfg.Component}
}

// Call runs fn when the circuit allows it. A rejected call returns an error
// wrapping ErrOpen; otherwise fn's error is returned unchanged.
func (b *CircuitBreaker) Call(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s: %w", b.component, ErrOpen)
	}
	return err
}

// State returns the current state (for metrics and health).
func (b *CircuitBreaker) State() State {
	return fromGobreaker(b.cb.State())
}
