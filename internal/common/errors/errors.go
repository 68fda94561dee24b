// Package errors provides standardized error handling for the search pipeline.
package errors

import (
	"fmt"
	"net/http"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Local validation errors
	ErrCodeInvalidConstraint ErrorCode = "INVALID_CONSTRAINT"
	ErrCodeInvalidRequest    ErrorCode = "INVALID_REQUEST"

	// Rate-limited external inference service
	ErrCodeRateLimited        ErrorCode = "RATE_LIMITED"
	ErrCodeUpstreamOverloaded ErrorCode = "UPSTREAM_OVERLOADED"

	// Store errors (the only fatal class for a search request)
	ErrCodeStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"

	// Soft failures: never surfaced to the end user, each has a defined
	// degraded behavior (empty results, default constraints, templated answer)
	ErrCodeEmbeddingFailed   ErrorCode = "EMBEDDING_FAILED"
	ErrCodeExtractionFailed  ErrorCode = "EXTRACTION_FAILED"
	ErrCodeCompositionFailed ErrorCode = "COMPOSITION_FAILED"

	ErrCodeHistoryUnavailable ErrorCode = "HISTORY_UNAVAILABLE"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// ==========================
// 2. Error Constructors
// ==========================

// NewInvalidConstraintError creates a non-retryable constraint validation error.
func NewInvalidConstraintError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidConstraint,
		Message:   "Constraint model validation failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidRequestError creates a non-retryable request validation error.
func NewInvalidRequestError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidRequest,
		Message:   "Request payload validation failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewRateLimitedError creates a retryable throttling error.
func NewRateLimitedError(service string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeRateLimited,
		Message:   fmt.Sprintf("Service '%s' is throttling requests", service),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewUpstreamOverloadedError creates a non-retryable exhaustion error,
// produced after the resilient caller has spent its full retry budget.
func NewUpstreamOverloadedError(service string, attempts int) *StandardError {
	return &StandardError{
		Code:      ErrCodeUpstreamOverloaded,
		Message:   fmt.Sprintf("Service '%s' still overloaded after retries", service),
		Details:   fmt.Sprintf("attempts: %d", attempts),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewStoreUnavailableError creates a fatal store error.
func NewStoreUnavailableError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeStoreUnavailable,
		Message:   "Place store query failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewEmbeddingFailedError creates a soft embedding failure.
func NewEmbeddingFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeEmbeddingFailed,
		Message:   "Embedding generation failed",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewExtractionFailedError creates a soft extraction failure.
func NewExtractionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeExtractionFailed,
		Message:   "Constraint extraction failed",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewCompositionFailedError creates a soft composition failure.
func NewCompositionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeCompositionFailed,
		Message:   "Answer composition failed",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewHistoryUnavailableError creates a retryable session history error.
func NewHistoryUnavailableError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeHistoryUnavailable,
		Message:   "Session history store error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. HTTP Integration
// ==========================

// HTTPStatusMapping maps internal error codes to HTTP status codes.
var HTTPStatusMapping = map[ErrorCode]int{
	ErrCodeInvalidConstraint:  http.StatusBadRequest,
	ErrCodeInvalidRequest:     http.StatusBadRequest,
	ErrCodeRateLimited:        http.StatusTooManyRequests,
	ErrCodeUpstreamOverloaded: http.StatusBadGateway,
	ErrCodeStoreUnavailable:   http.StatusServiceUnavailable,
	ErrCodeHistoryUnavailable: http.StatusServiceUnavailable,

	// Soft failures degrade inside the pipeline; if one ever escapes it is a bug,
	// surface as 500.
	ErrCodeEmbeddingFailed:   http.StatusInternalServerError,
	ErrCodeExtractionFailed:  http.StatusInternalServerError,
	ErrCodeCompositionFailed: http.StatusInternalServerError,
}

// HTTPStatus returns the HTTP status for an error code.
func HTTPStatus(code ErrorCode) int {
	if status, exists := HTTPStatusMapping[code]; exists {
		return status
	}
	return http.StatusInternalServerError
}

// ==========================
// 4. Utility Functions
// ==========================

// IsSoftFailure reports whether the code belongs to the degraded-behavior class.
func IsSoftFailure(code ErrorCode) bool {
	switch code {
	case ErrCodeEmbeddingFailed, ErrCodeExtractionFailed, ErrCodeCompositionFailed:
		return true
	default:
		return false
	}
}
