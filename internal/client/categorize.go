package client

import (
	"context"
	"errors"
	"strings"
)

// ErrorCategory is a stable label for error classification in metrics and logs.
type ErrorCategory string

const (
	ErrorCategoryTimeout          ErrorCategory = "timeout"
	ErrorCategoryNetwork          ErrorCategory = "network"
	ErrorCategoryCircuitOpen      ErrorCategory = "circuit_open"
	ErrorCategoryInvalidAPIKey    ErrorCategory = "invalid_api_key"
	ErrorCategoryRateLimited      ErrorCategory = "rate_limited"
	ErrorCategoryUpstream         ErrorCategory = "upstream"
	ErrorCategoryMissingField     ErrorCategory = "missing_field"
	ErrorCategoryLocationNotFound ErrorCategory = "location_not_found"
	ErrorCategoryInvalidInput     ErrorCategory = "invalid_input"
	ErrorCategoryCache            ErrorCategory = "cache"
	ErrorCategoryUnknown          ErrorCategory = "unknown"
)

// CategorizeError maps an error to a stable ErrorCategory. Provider causes are
// checked before the broader not-found wrapper so geocoding outages are not
// reported as unknown places.
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrorCategoryTimeout
	}
	if errors.Is(err, ErrCircuitOpen) {
		return ErrorCategoryCircuitOpen
	}
	if errors.Is(err, ErrInvalidAPIKey) {
		return ErrorCategoryInvalidAPIKey
	}
	if errors.Is(err, ErrRateLimited) {
		return ErrorCategoryRateLimited
	}

	errStr := err.Error()
	if strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "network") {
		return ErrorCategoryNetwork
	}
	if strings.Contains(errStr, "timeout") {
		return ErrorCategoryTimeout
	}

	switch {
	case errors.Is(err, ErrUpstreamFailure):
		return ErrorCategoryUpstream
	case errors.Is(err, ErrMissingField):
		return ErrorCategoryMissingField
	case errors.Is(err, ErrLocationNotFound):
		return ErrorCategoryLocationNotFound
	case errors.Is(err, ErrInvalidInput):
		return ErrorCategoryInvalidInput
	}

	if strings.Contains(errStr, "cache") {
		return ErrorCategoryCache
	}
	return ErrorCategoryUnknown
}
