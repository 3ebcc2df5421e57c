package provider

import (
	"errors"
	"fmt"
	"net/http"
)

// Canonical error codes. Every error leaving this package carries one of
// these; callers branch on the code, never on vendor-specific detail.
const (
	CodeMissingAPIKey    = "MISSING_API_KEY"
	CodeNetworkError     = "NETWORK_ERROR"
	CodeTimeout          = "TIMEOUT_ERROR"
	CodeAPIError         = "API_ERROR"
	CodeRateLimited      = "RATE_LIMITED"
	CodeInvalidAPIKey    = "INVALID_API_KEY"
	CodeQuotaExceeded    = "QUOTA_EXCEEDED"
	CodeJSONParseError   = "JSON_PARSE_ERROR"
	CodeResponseMismatch = "RESPONSE_MISMATCH"
	CodeInvalidResponse  = "INVALID_RESPONSE"
)

// Error is a structured translation-provider error.
type Error struct {
	// Code is the canonical error code.
	Code string
	// Message is the human-readable description, preferring the upstream
	// error payload's own message when one was present.
	Message string
	// HTTPStatus is the upstream status code, when the provider answered.
	HTTPStatus int
	// Err is the underlying error (transport failure, decode failure).
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// AsError extracts a provider Error from an error chain.
func AsError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// StatusFor maps a canonical code to the HTTP status the serving layer
// responds with.
func StatusFor(code string) int {
	switch code {
	case CodeMissingAPIKey, CodeInvalidAPIKey:
		return http.StatusUnauthorized
	case CodeRateLimited, CodeQuotaExceeded:
		return http.StatusTooManyRequests
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
