package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind is the fixed classification every vendor error is translated
// into, so upstream retry and circuit decisions need no vendor knowledge.
type ErrorKind string

const (
	// KindBadRequest covers malformed payloads and unknown models (4xx
	// other than auth and rate limiting). Client-side; never retried.
	KindBadRequest ErrorKind = "bad_request"

	// KindAuth covers invalid or missing credentials. Operator
	// misconfiguration, not a provider health signal.
	KindAuth ErrorKind = "auth"

	// KindRateLimited covers 429 responses. Retryable with backoff.
	KindRateLimited ErrorKind = "rate_limited"

	// KindTimeout covers deadline expiry on the outbound call.
	KindTimeout ErrorKind = "timeout"

	// KindServer covers 5xx responses.
	KindServer ErrorKind = "server"

	// KindUnavailable covers connection-level failures before any HTTP
	// status is received.
	KindUnavailable ErrorKind = "unavailable"

	// KindCanceled covers caller-initiated cancellation.
	KindCanceled ErrorKind = "canceled"
)

// ProviderError is a vendor error normalized into the common taxonomy.
type ProviderError struct {
	Provider   string
	Kind       ErrorKind
	StatusCode int
	Message    string
	Cause      error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s (status %d): %s", e.Provider, e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Message)
}

// Unwrap implements error unwrapping.
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// Retryable reports whether the same attempt may be retried with backoff.
func (e *ProviderError) Retryable() bool {
	switch e.Kind {
	case KindRateLimited, KindTimeout, KindServer, KindUnavailable:
		return true
	default:
		return false
	}
}

// CountsTowardBreaker reports whether the failure is provider-side and
// should advance the circuit breaker. Client errors (bad request, auth) and
// caller cancellation do not.
func (e *ProviderError) CountsTowardBreaker() bool {
	switch e.Kind {
	case KindRateLimited, KindTimeout, KindServer, KindUnavailable:
		return true
	default:
		return false
	}
}

// NewProviderError creates a provider error.
func NewProviderError(provider string, kind ErrorKind, statusCode int, message string, cause error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Kind:       kind,
		StatusCode: statusCode,
		Message:    message,
		Cause:      cause,
	}
}

// ClassifyStatus maps an HTTP status from a vendor API into the taxonomy.
func ClassifyStatus(provider string, statusCode int, message string) *ProviderError {
	var kind ErrorKind
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		kind = KindAuth
	case statusCode == http.StatusTooManyRequests:
		kind = KindRateLimited
	case statusCode == http.StatusRequestTimeout || statusCode == http.StatusGatewayTimeout:
		kind = KindTimeout
	case statusCode >= 500:
		kind = KindServer
	default:
		kind = KindBadRequest
	}
	return NewProviderError(provider, kind, statusCode, message, nil)
}

// ClassifyTransport maps a transport-level error (no HTTP status available)
// into the taxonomy, distinguishing deadline expiry and cancellation from
// connection failures.
func ClassifyTransport(provider string, err error) *ProviderError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewProviderError(provider, KindTimeout, 0, "request deadline exceeded", err)
	case errors.Is(err, context.Canceled):
		return NewProviderError(provider, KindCanceled, 0, "request canceled", err)
	default:
		return NewProviderError(provider, KindUnavailable, 0, "connection failed", err)
	}
}

// AsProviderError unwraps err into a *ProviderError if possible.
func AsProviderError(err error) (*ProviderError, bool) {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr, true
	}
	return nil, false
}
