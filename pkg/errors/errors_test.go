package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ConfigurationError, "test message")

	if err.Type != ConfigurationError {
		t.Errorf("Expected type %s, got %s", ConfigurationError, err.Type)
	}

	if err.Message != "test message" {
		t.Errorf("Expected message 'test message', got %s", err.Message)
	}

	expected := "configuration_error: test message"
	if err.Error() != expected {
		t.Errorf("Expected error string '%s', got '%s'", expected, err.Error())
	}
}

func TestWrap(t *testing.T) {
	originalErr := fmt.Errorf("original error")
	wrappedErr := Wrap(originalErr, TransportError, "network failed")

	if wrappedErr.Type != TransportError {
		t.Errorf("Expected type %s, got %s", TransportError, wrappedErr.Type)
	}

	if wrappedErr.Unwrap() != originalErr {
		t.Error("Wrapped error should unwrap to original error")
	}

	if !strings.HasSuffix(wrappedErr.Error(), ": original error") {
		t.Errorf("Expected cause in error string, got '%s'", wrappedErr.Error())
	}
}

func TestErrorFormatting(t *testing.T) {
	err := NewAuthorizationFailed("frob", "can not get frob").
		WithStatusCode(http.StatusForbidden).
		WithDetails("invalid key")

	expected := "authorization_failed [frob]: can not get frob (HTTP 403) (invalid key)"
	if err.Error() != expected {
		t.Errorf("Expected error string '%s', got '%s'", expected, err.Error())
	}
}

func TestIsType(t *testing.T) {
	transportErr := NewTransportError(context.DeadlineExceeded, "request failed")
	requestErr := Wrap(transportErr, RequestFailed, "API call failed")

	tests := []struct {
		name     string
		err      error
		errType  ErrorType
		expected bool
	}{
		{
			name:     "matching type",
			err:      NewConfigurationError("missing key"),
			errType:  ConfigurationError,
			expected: true,
		},
		{
			name:     "different type",
			err:      NewConfigurationError("missing key"),
			errType:  TransportError,
			expected: false,
		},
		{
			name:     "non-app error",
			err:      fmt.Errorf("regular error"),
			errType:  RequestFailed,
			expected: false,
		},
		{
			name:     "wrapped app error",
			err:      fmt.Errorf("wrapper: %w", NewRequestFailed(http.StatusNotFound, nil)),
			errType:  RequestFailed,
			expected: true,
		},
		{
			name:     "inner app error",
			err:      requestErr,
			errType:  TransportError,
			expected: true,
		},
		{
			name:     "nil error",
			err:      nil,
			errType:  RequestFailed,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsType(tt.err, tt.errType)
			if result != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, result)
			}
		})
	}

	if !stderrors.Is(requestErr, context.DeadlineExceeded) {
		t.Error("errors.Is should see through both AppErrors")
	}
}

func TestAs(t *testing.T) {
	appErr := NewRequestFailed(http.StatusNotFound, []byte("not found"))

	var targetErr *AppError
	if !As(fmt.Errorf("wrapped: %w", appErr), &targetErr) {
		t.Error("As should return true for AppError")
	}

	if targetErr != appErr {
		t.Error("As should set target to the original error")
	}

	regularErr := fmt.Errorf("regular error")
	var targetErr2 *AppError
	if As(regularErr, &targetErr2) {
		t.Error("As should return false for non-AppError")
	}
}

func TestNewRequestFailed(t *testing.T) {
	err := NewRequestFailed(http.StatusNotFound, []byte(`{"error":"missing"}`))

	if err.Type != RequestFailed {
		t.Errorf("Expected type %s, got %s", RequestFailed, err.Type)
	}
	if err.StatusCode != http.StatusNotFound {
		t.Errorf("Expected status code 404, got %d", err.StatusCode)
	}
	if err.Response != `{"error":"missing"}` {
		t.Errorf("Expected raw response to be kept, got %s", err.Response)
	}
	if StatusCode(err) != http.StatusNotFound {
		t.Errorf("StatusCode helper returned %d", StatusCode(err))
	}
}

func TestTruncated(t *testing.T) {
	long := strings.Repeat("x", maxResponseInError+10)
	err := NewRequestFailed(http.StatusBadGateway, []byte(long))

	got := err.Truncated()
	if len(got) != maxResponseInError+3 {
		t.Errorf("Expected truncated length %d, got %d", maxResponseInError+3, len(got))
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("Expected ellipsis, got %q", got[len(got)-5:])
	}

	short := NewRequestFailed(http.StatusBadGateway, []byte("short"))
	if short.Truncated() != "short" {
		t.Errorf("Short responses should not be truncated, got %q", short.Truncated())
	}
}

func TestErrorChaining(t *testing.T) {
	originalErr := fmt.Errorf("connection refused")
	appErr := NewTransportError(originalErr, "failed to connect to server")
	finalErr := Wrap(appErr, AuthorizationFailed, "handshake aborted").WithStep("token")

	if finalErr.Unwrap() != appErr {
		t.Error("Should unwrap to immediate parent error")
	}

	if finalErr.Type != AuthorizationFailed {
		t.Errorf("Expected final error type %s, got %s", AuthorizationFailed, finalErr.Type)
	}

	if !stderrors.Is(finalErr, originalErr) {
		t.Error("errors.Is should find the original error")
	}
}
