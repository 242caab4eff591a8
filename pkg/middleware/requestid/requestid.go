// Package requestid assigns a correlation id to every request.
package requestid

import (
	"context"

	"github.com/google/uuid"

	"github.com/nimburion/ssebroadcast/pkg/observability/logger"
	"github.com/nimburion/ssebroadcast/pkg/server/router"
)

// RequestIDHeader is the HTTP header name for request ID.
const RequestIDHeader = "X-Request-ID"

// ContextKey is the router.Context storage key holding the request id.
const ContextKey = "request_id"

// RequestID creates middleware that generates or extracts request IDs.
// The id is echoed in the response header and stored in both the router
// context and the request context, where logger.WithContext picks it up.
func RequestID() router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			requestID := c.Request().Header.Get(RequestIDHeader)
			if requestID == "" {
				requestID = uuid.NewString()
			}

			c.Set(ContextKey, requestID)
			c.Response().Header().Set(RequestIDHeader, requestID)

			ctx := logger.ContextWithRequestID(c.Request().Context(), requestID)
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}

// GetRequestID extracts the request ID from a context.
// Returns empty string if no request ID is found.
func GetRequestID(ctx context.Context) string {
	return logger.RequestIDFromContext(ctx)
}
