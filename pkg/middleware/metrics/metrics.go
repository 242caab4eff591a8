// Package metrics records Prometheus request metrics.
package metrics

import (
	"time"

	"github.com/nimburion/ssebroadcast/pkg/observability/metrics"
	"github.com/nimburion/ssebroadcast/pkg/server/router"
)

// Metrics creates middleware that records duration, count and in-flight
// requests on m.
func Metrics(m *metrics.HTTPMetrics) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			m.IncInFlight()
			defer m.DecInFlight()

			start := time.Now()
			err := next(c)

			m.Record(c.Request().Method, c.Request().URL.Path, c.Response().Status(), time.Since(start))
			return err
		}
	}
}
