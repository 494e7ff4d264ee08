// Package errors defines the error kinds returned by the oDesk client.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	// ConfigurationError represents a missing application key, shared
	// secret or an unusable transport setting
	ConfigurationError ErrorType = "configuration_error"
	// AuthorizationFailed represents a failed step of the frob/token handshake
	AuthorizationFailed ErrorType = "authorization_failed"
	// RequestFailed represents a signed API call that did not return a usable body
	RequestFailed ErrorType = "request_failed"
	// TransportError represents a connection-level failure with no HTTP response
	TransportError ErrorType = "transport_error"
)

// maxResponseInError limits how much of a raw response Error() prints.
const maxResponseInError = 256

// AppError represents a structured client error
type AppError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	Step       string    `json:"step,omitempty"`
	Details    string    `json:"details,omitempty"`
	StatusCode int       `json:"status_code,omitempty"`
	Response   string    `json:"response,omitempty"`
	Cause      error     `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	msg := string(e.Type)
	if e.Step != "" {
		msg += " [" + e.Step + "]"
	}
	msg += ": " + e.Message
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if e.Details != "" {
		msg += " (" + e.Details + ")"
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(errorType ErrorType, message string) *AppError {
	return &AppError{
		Type:    errorType,
		Message: message,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errorType ErrorType, message string) *AppError {
	return &AppError{
		Type:    errorType,
		Message: message,
		Cause:   err,
	}
}

// WithDetails adds details to an AppError
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// WithStatusCode adds an HTTP status code to an AppError
func (e *AppError) WithStatusCode(code int) *AppError {
	e.StatusCode = code
	return e
}

// WithStep names the handshake step that failed
func (e *AppError) WithStep(step string) *AppError {
	e.Step = step
	return e
}

// WithResponse keeps the raw response body for diagnostics
func (e *AppError) WithResponse(body []byte) *AppError {
	e.Response = string(body)
	return e
}

// Truncated returns the raw response clipped for log lines.
func (e *AppError) Truncated() string {
	if len(e.Response) <= maxResponseInError {
		return e.Response
	}
	return e.Response[:maxResponseInError] + "..."
}

// IsType reports whether any AppError in err's chain is of errorType
func IsType(err error, errorType ErrorType) bool {
	for err != nil {
		var appErr *AppError
		if !stderrors.As(err, &appErr) {
			return false
		}
		if appErr.Type == errorType {
			return true
		}
		err = appErr.Cause
	}
	return false
}

// As is a convenience wrapper around errors.As for the outermost AppError
func As(err error, target **AppError) bool {
	return stderrors.As(err, target)
}

// StatusCode returns the HTTP status carried by the outermost AppError, or 0
func StatusCode(err error) int {
	var appErr *AppError
	if As(err, &appErr) {
		return appErr.StatusCode
	}
	return 0
}

// Convenience constructors for the client's error kinds

// NewConfigurationError creates a configuration error
func NewConfigurationError(message string) *AppError {
	return New(ConfigurationError, message)
}

// NewAuthorizationFailed creates an authorization error for a handshake step
func NewAuthorizationFailed(step, message string) *AppError {
	return New(AuthorizationFailed, message).WithStep(step)
}

// NewRequestFailed creates a request error carrying the observed status and body
func NewRequestFailed(statusCode int, body []byte) *AppError {
	return New(RequestFailed, "API call failed").WithStatusCode(statusCode).WithResponse(body)
}

// NewTransportError wraps a connection-level failure
func NewTransportError(err error, message string) *AppError {
	return Wrap(err, TransportError, message)
}
