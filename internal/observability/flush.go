package observability

import (
	"context"
	"errors"
	"fmt"
	"syscall"

	"go.uber.org/zap"
)

// FlushTelemetry flushes buffered logs before process exit. Prometheus is
// pull-based so metrics need no flush. Call after in-flight work has drained.
func FlushTelemetry(ctx context.Context, logger *zap.Logger) error {
	if logger == nil {
		return nil
	}
	if err := logger.Sync(); err != nil && !isIgnorableSyncError(err) {
		return fmt.Errorf("flush logs: %w", err)
	}
	return nil
}

// Syncing stderr on a terminal or pipe reports EINVAL/ENOTTY; nothing was lost.
func isIgnorableSyncError(err error) bool {
	return errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY)
}
