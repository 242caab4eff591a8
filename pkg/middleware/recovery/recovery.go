// Package recovery turns handler panics into 500 responses.
package recovery

import (
	"net/http"
	"runtime/debug"

	"github.com/nimburion/ssebroadcast/pkg/middleware/requestid"
	"github.com/nimburion/ssebroadcast/pkg/observability/logger"
	"github.com/nimburion/ssebroadcast/pkg/server/router"
)

// Recovery creates middleware that recovers from panics in HTTP handlers.
// The panic is logged with its stack trace. A JSON 500 is written unless the
// handler already started the response, which is the case for event streams.
func Recovery(log logger.Logger) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				requestID := requestid.GetRequestID(c.Request().Context())
				log.Error("panic recovered",
					"request_id", requestID,
					"panic", r,
					"stack", string(debug.Stack()),
				)

				if c.Response().Written() {
					return
				}
				if err := c.JSON(http.StatusInternalServerError, map[string]interface{}{
					"error":      "internal_server_error",
					"message":    "an unexpected error occurred",
					"request_id": requestID,
				}); err != nil {
					log.Error("failed to send error response", "request_id", requestID, "error", err)
				}
			}()

			return next(c)
		}
	}
}
