// Package controller provides the JSON response envelopes used by the HTTP
// endpoints.
package controller

import (
	"net/http"

	"github.com/nimburion/ssebroadcast/pkg/observability/logger"
	"github.com/nimburion/ssebroadcast/pkg/server/router"
)

// SuccessResponse represents a successful response with data
type SuccessResponse struct {
	Data      interface{} `json:"data"`
	RequestID string      `json:"request_id,omitempty"`
}

// Success sends data wrapped in SuccessResponse with HTTP 200 OK.
func Success(c router.Context, data interface{}) error {
	return respond(c, http.StatusOK, data)
}

// Accepted sends data wrapped in SuccessResponse with HTTP 202 Accepted.
func Accepted(c router.Context, data interface{}) error {
	return respond(c, http.StatusAccepted, data)
}

// Error sends an error response with the appropriate HTTP status code
// It uses MapError to convert application errors to HTTP responses
func Error(c router.Context, err error) error {
	statusCode, errorResponse := MapError(c.Request().Context(), err)
	return c.JSON(statusCode, errorResponse)
}

func respond(c router.Context, status int, data interface{}) error {
	return c.JSON(status, SuccessResponse{
		Data:      data,
		RequestID: logger.RequestIDFromContext(c.Request().Context()),
	})
}
