package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var shuttingDown atomic.Bool

// SetShuttingDown sets the shutdown flag. Call when SIGTERM/SIGINT received.
// Health handler returns 503 with status shutting-down while true.
func SetShuttingDown(v bool) {
	shuttingDown.Store(v)
}

// IsShuttingDown returns true if the process is draining and should not receive new traffic.
func IsShuttingDown() bool {
	return shuttingDown.Load()
}

// Step is one named shutdown action.
type Step struct {
	Name string
	Run  func(ctx context.Context) error
}

// Shutdown sets the shutting-down flag and runs steps in order within timeout.
// Every step runs even if an earlier one fails; the errors are joined.
func Shutdown(ctx context.Context, logger *zap.Logger, timeout time.Duration, steps ...Step) error {
	SetShuttingDown(true)
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var errs []error
	for _, s := range steps {
		start := time.Now()
		if err := s.Run(ctx); err != nil {
			logger.Error("shutdown step failed", zap.String("step", s.Name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
			continue
		}
		logger.Info("shutdown step complete", zap.String("step", s.Name), zap.Duration("duration", time.Since(start)))
	}
	return errors.Join(errs...)
}
