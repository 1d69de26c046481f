// Package skillerrors provides sentinel and custom error types for the skill service.
package skillerrors

import (
	"strconv"
)

// ErrValidation represents a malformed request.
// Use when the request body as a whole cannot be processed (not JSON, missing values/recordId/input).
var ErrValidation = &ValidationError{}

// ValidationError is a sentinel error for request-level validation failures.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a new ValidationError with a custom message.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	if e.Field != "" {
		return "validation failed for field: " + e.Field
	}

	return "validation error"
}

// Is implements the error interface for error comparison.
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)

	return ok
}

// ErrInvalidInput represents a record whose input is present but unusable.
// Reported on that record only; sibling records are still processed.
var ErrInvalidInput = &InvalidInputError{}

// InvalidInputError is a sentinel error for unusable per-record input.
type InvalidInputError struct {
	Field   string
	Message string
}

// NewInvalidInputError creates a new InvalidInputError with a custom message.
func NewInvalidInputError(field, message string) *InvalidInputError {
	return &InvalidInputError{
		Field:   field,
		Message: message,
	}
}

// Error implements the error interface.
func (e *InvalidInputError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	if e.Field != "" {
		return "invalid input for field: " + e.Field
	}

	return "invalid input"
}

// Is implements the error interface for error comparison.
func (e *InvalidInputError) Is(target error) bool {
	_, ok := target.(*InvalidInputError)

	return ok
}

// ErrUpstream is the sentinel for non-success responses from the vision service.
var ErrUpstream = &UpstreamError{}

// UpstreamError carries the status code and body returned by the vision service.
type UpstreamError struct {
	StatusCode int
	Body       string
}

// NewUpstreamError creates an UpstreamError.
func NewUpstreamError(statusCode int, body string) *UpstreamError {
	return &UpstreamError{StatusCode: statusCode, Body: body}
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	if e.StatusCode == 0 {
		return "vision service error"
	}

	msg := "vision service returned " + strconv.Itoa(e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}

	return msg
}

// Is implements the error interface for error comparison.
func (e *UpstreamError) Is(target error) bool {
	_, ok := target.(*UpstreamError)

	return ok
}

// Retryable reports whether the status is in the transient class (429, 5xx except 501).
func (e *UpstreamError) Retryable() bool {
	return e.StatusCode == 429 || (e.StatusCode >= 500 && e.StatusCode != 501)
}

// ErrNetwork is the sentinel for outbound calls that never produced a response.
var ErrNetwork = &NetworkError{}

// NetworkError wraps a transport failure (timeout, DNS, connection reset).
type NetworkError struct {
	Err error
}

// NewNetworkError wraps err as a NetworkError.
func NewNetworkError(err error) *NetworkError {
	return &NetworkError{Err: err}
}

// Error implements the error interface.
func (e *NetworkError) Error() string {
	if e.Err == nil {
		return "vision service unreachable"
	}

	return "vision service unreachable: " + e.Err.Error()
}

// Unwrap returns the underlying transport error.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Is implements the error interface for error comparison.
func (e *NetworkError) Is(target error) bool {
	_, ok := target.(*NetworkError)

	return ok
}
