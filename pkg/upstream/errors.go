package upstream

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorType represents the category of error that occurred during an upstream call
type ErrorType string

const (
	// ErrorTypeNetwork indicates a network-level error (connection refused, DNS, etc.)
	ErrorTypeNetwork ErrorType = "network"
	// ErrorTypeTimeout indicates the request timed out
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeRateLimit indicates the request was rejected due to rate limiting (HTTP 429)
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeServer indicates a server error (HTTP 5xx)
	ErrorTypeServer ErrorType = "server"
	// ErrorTypeClient indicates a client error (HTTP 4xx except 429)
	ErrorTypeClient ErrorType = "client"
	// ErrorTypeUpstream indicates the upstream answered but reported success=false
	ErrorTypeUpstream ErrorType = "upstream"
	// ErrorTypeValidation indicates the response was received but data validation failed
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeUnknown indicates an error of unknown type
	ErrorTypeUnknown ErrorType = "unknown"
)

// FetchError represents a structured error from an upstream call. Detail is
// the human-readable text the upstream itself sent, if any.
type FetchError struct {
	Type       ErrorType
	StatusCode int
	Message    string
	Detail     string
	Cause      error
}

// Error implements the error interface
func (e *FetchError) Error() string {
	msg := e.Message
	if e.Detail != "" {
		msg = fmt.Sprintf("%s: %s", e.Message, e.Detail)
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s error (status %d): %s", e.Type, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s error: %s", e.Type, msg)
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *FetchError) Unwrap() error {
	return e.Cause
}

// NewNetworkError creates a network error
func NewNetworkError(cause error) *FetchError {
	return &FetchError{
		Type:    ErrorTypeNetwork,
		Message: "network request failed",
		Cause:   cause,
	}
}

// NewTimeoutError creates a timeout error
func NewTimeoutError(cause error) *FetchError {
	return &FetchError{
		Type:    ErrorTypeTimeout,
		Message: "request timed out",
		Cause:   cause,
	}
}

// NewUpstreamError creates an error for an upstream that answered success=false
func NewUpstreamError(detail string) *FetchError {
	return &FetchError{
		Type:    ErrorTypeUpstream,
		Message: "upstream reported failure",
		Detail:  detail,
	}
}

// NewValidationError creates a validation error
func NewValidationError(message string, cause error) *FetchError {
	return &FetchError{
		Type:    ErrorTypeValidation,
		Message: message,
		Cause:   cause,
	}
}

// ClassifyHTTPError classifies an HTTP status code into an appropriate FetchError
func ClassifyHTTPError(statusCode int, detail string) *FetchError {
	var e *FetchError
	switch {
	case statusCode == 429:
		e = &FetchError{Type: ErrorTypeRateLimit, Message: "rate limit exceeded"}
	case statusCode >= 500:
		e = &FetchError{Type: ErrorTypeServer, Message: "server returned an error"}
	case statusCode >= 400:
		e = &FetchError{Type: ErrorTypeClient, Message: fmt.Sprintf("client error: HTTP %d", statusCode)}
	default:
		e = &FetchError{Type: ErrorTypeUnknown, Message: fmt.Sprintf("unexpected status code: %d", statusCode)}
	}
	e.StatusCode = statusCode
	e.Detail = detail
	return e
}

// ClassifyTransportError maps an error returned before any usable response
// into a timeout or network FetchError.
func ClassifyTransportError(err error) *FetchError {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return NewTimeoutError(err)
	}
	return NewNetworkError(err)
}

// TypeOf returns the ErrorType carried by err, or ErrorTypeUnknown.
func TypeOf(err error) ErrorType {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Type
	}
	return ErrorTypeUnknown
}

// DetailOf returns the upstream-provided message carried by err, if any.
func DetailOf(err error) string {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Detail
	}
	return ""
}
