// Package errors provides structured error types for flowforge.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure modes.
var (
	// Webhook ingestion boundary.
	ErrAuthFailure = errors.New("authentication failed")
	ErrValidation  = errors.New("payload validation failed")

	// Provider resolution.
	ErrUnknownCapability    = errors.New("unknown capability")
	ErrUnknownProvider      = errors.New("unknown provider")
	ErrNoProviderConfigured = errors.New("no provider configured")

	// Post-commit workflow trigger.
	ErrDispatchFailed = errors.New("workflow dispatch failed")

	// Provider operations pending a real backend.
	ErrNotImplemented = errors.New("operation not implemented by provider")

	// Transient conditions.
	ErrTimeout     = errors.New("operation timed out")
	ErrRateLimit   = errors.New("rate limit exceeded")
	ErrUnavailable = errors.New("service unavailable")
)

// APIError represents an error from an external API call.
type APIError struct {
	Service    string
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s API error (status %d): %s: %v", e.Service, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("%s API error (status %d): %s", e.Service, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

// NewAPIError creates a new API error.
func NewAPIError(service string, statusCode int, message string) *APIError {
	return &APIError{Service: service, StatusCode: statusCode, Message: message}
}

// ConstructionError reports that a resolved provider could not be built
// from the available configuration.
type ConstructionError struct {
	Capability string
	Provider   string
	Err        error
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("constructing provider %q for capability %q: %v", e.Provider, e.Capability, e.Err)
}

func (e *ConstructionError) Unwrap() error { return e.Err }

// IsRetryable returns true if the error is likely transient and worth retrying.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429, 500, 502, 503, 504:
			return true
		}
	}
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrRateLimit) || errors.Is(err, ErrUnavailable)
}
