package controller

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/nimburion/ssebroadcast/pkg/observability/logger"
)

// HTTPError is an error carrying the response it should produce.
type HTTPError struct {
	Status  int
	Code    string
	Message string
	Details map[string]interface{}
	cause   error
}

func (e *HTTPError) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *HTTPError) Unwrap() error { return e.cause }

// WithDetails attaches structured details to the response body.
func (e *HTTPError) WithDetails(details map[string]interface{}) *HTTPError {
	e.Details = details
	return e
}

// ErrorResponse represents the consistent error response format.
type ErrorResponse struct {
	Error     string                 `json:"error"`
	Code      string                 `json:"code,omitempty"`
	Message   string                 `json:"message,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// MapError maps errors to HTTP responses. Errors other than HTTPError
// become an opaque 500.
func MapError(ctx context.Context, err error) (int, ErrorResponse) {
	requestID := logger.RequestIDFromContext(ctx)

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		return http.StatusInternalServerError, ErrorResponse{
			Error:     "internal_server_error",
			Message:   "an unexpected error occurred",
			RequestID: requestID,
		}
	}

	status := httpErr.Status
	if status == 0 {
		status = inferStatusFromCode(httpErr.Code)
	}
	message := httpErr.Message
	if message == "" {
		message = http.StatusText(status)
	}

	return status, ErrorResponse{
		Error:     errorCategory(status, httpErr.Code),
		Code:      httpErr.Code,
		Message:   message,
		RequestID: requestID,
		Details:   httpErr.Details,
	}
}

// NewValidationError creates a 400 error for a malformed request.
func NewValidationError(message string, cause error) *HTTPError {
	return &HTTPError{Status: http.StatusBadRequest, Code: "validation.failed", Message: message, cause: cause}
}

// NewUnsupportedMediaTypeError creates a 415 error.
func NewUnsupportedMediaTypeError(message string) *HTTPError {
	return &HTTPError{Status: http.StatusUnsupportedMediaType, Code: "request.unsupported_media_type", Message: message}
}

// NewUnavailableError creates a 503 error, e.g. for a closed stream.
func NewUnavailableError(message string, cause error) *HTTPError {
	return &HTTPError{Status: http.StatusServiceUnavailable, Code: "stream.unavailable", Message: message, cause: cause}
}

// NewInternalError creates a new internal error with optional cause.
func NewInternalError(message string, cause error) *HTTPError {
	return &HTTPError{Status: http.StatusInternalServerError, Code: "internal.error", Message: message, cause: cause}
}

func errorCategory(status int, code string) string {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(code)), "validation.") {
		return "validation_error"
	}

	switch status {
	case http.StatusBadRequest:
		return "validation_error"
	case http.StatusUnsupportedMediaType:
		return "unsupported_media_type"
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusServiceUnavailable:
		return "unavailable"
	default:
		if status >= 500 {
			return "internal_server_error"
		}
		return "application_error"
	}
}

func inferStatusFromCode(code string) int {
	lowerCode := strings.ToLower(strings.TrimSpace(code))
	switch {
	case strings.HasPrefix(lowerCode, "validation."):
		return http.StatusBadRequest
	case strings.Contains(lowerCode, "unavailable"):
		return http.StatusServiceUnavailable
	case strings.Contains(lowerCode, "internal"):
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}
