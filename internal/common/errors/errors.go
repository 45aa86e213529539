// Package errors provides the degradation taxonomy for the recommendation
// pipeline. No component propagates a raw error to the routing layer; every
// public operation returns a (possibly degraded) result plus diagnostic
// metadata, and INVALID_REQUEST is the only client-visible error.
package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeInvalidRequest        ErrorCode = "INVALID_REQUEST"
	ErrCodeSourceUnavailable     ErrorCode = "SOURCE_UNAVAILABLE"
	ErrCodeAllSourcesFailed      ErrorCode = "ALL_SOURCES_FAILED"
	ErrCodeCacheUnavailable      ErrorCode = "CACHE_UNAVAILABLE"
	ErrCodeCatalogMiss           ErrorCode = "CATALOG_MISS"
	ErrCodeCircuitOpen           ErrorCode = "CIRCUIT_OPEN"
	ErrCodeEventStoreUnavailable ErrorCode = "EVENT_STORE_UNAVAILABLE"
)

// DegradedError is a structured application error. Retryable marks errors
// that a caller may retry; validation errors never are.
type DegradedError struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Retryable bool      `json:"retryable"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *DegradedError) Error() string {
	return fmt.Sprintf("DegradedError[%s]: %s", e.Code, e.Message)
}

// NewInvalidRequestError creates the only error surfaced to clients.
func NewInvalidRequestError(details string) *DegradedError {
	return &DegradedError{
		Code:      ErrCodeInvalidRequest,
		Message:   "Malformed recommendation request",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewSourceUnavailableError marks one candidate source as down. The
// combiner recovers locally and proceeds single-source.
func NewSourceUnavailableError(source string, err error) *DegradedError {
	return &DegradedError{
		Code:      ErrCodeSourceUnavailable,
		Message:   fmt.Sprintf("Candidate source '%s' unavailable", source),
		Details:   errDetails(err),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewAllSourcesFailedError signals that both candidate sources failed and
// the fallback strategy engine must produce the result.
func NewAllSourcesFailedError() *DegradedError {
	return &DegradedError{
		Code:      ErrCodeAllSourcesFailed,
		Message:   "All candidate sources failed",
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewCacheUnavailableError marks the cache backing store as unreachable.
// The cache is bypassed and fresh computation performed; never surfaced
// to the caller.
func NewCacheUnavailableError(err error) *DegradedError {
	return &DegradedError{
		Code:      ErrCodeCacheUnavailable,
		Message:   "Cache backing store unavailable",
		Details:   errDetails(err),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewCatalogMissError marks a product the catalog could not resolve.
func NewCatalogMissError(productID string) *DegradedError {
	return &DegradedError{
		Code:      ErrCodeCatalogMiss,
		Message:   "Product not found in catalog",
		Details:   fmt.Sprintf("productId: %s", productID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewCircuitOpenError is returned by a breaker that fails fast without
// invoking the wrapped call.
func NewCircuitOpenError(name string) *DegradedError {
	return &DegradedError{
		Code:      ErrCodeCircuitOpen,
		Message:   fmt.Sprintf("Circuit breaker '%s' is open", name),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewEventStoreUnavailableError marks the interaction event store as
// unreachable; treated as "no exclusions" by the filter.
func NewEventStoreUnavailableError(err error) *DegradedError {
	return &DegradedError{
		Code:      ErrCodeEventStoreUnavailable,
		Message:   "Interaction event store unavailable",
		Details:   errDetails(err),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// CodeOf extracts the ErrorCode from err, or "" if err is not a
// DegradedError.
func CodeOf(err error) ErrorCode {
	var de *DegradedError
	if stderrors.As(err, &de) {
		return de.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

func errDetails(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
