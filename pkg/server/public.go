package server

import (
	"github.com/nimburion/ssebroadcast/pkg/config"
	"github.com/nimburion/ssebroadcast/pkg/middleware/logging"
	"github.com/nimburion/ssebroadcast/pkg/middleware/metrics"
	"github.com/nimburion/ssebroadcast/pkg/middleware/recovery"
	"github.com/nimburion/ssebroadcast/pkg/middleware/requestid"
	"github.com/nimburion/ssebroadcast/pkg/middleware/tracing"
	"github.com/nimburion/ssebroadcast/pkg/observability/logger"
	obsmetrics "github.com/nimburion/ssebroadcast/pkg/observability/metrics"
	"github.com/nimburion/ssebroadcast/pkg/server/router"
)

// PublicAPIServer serves the event streams and the publish endpoint.
//
// The middleware stack is applied in this order:
//  1. Request ID
//  2. Logging
//  3. Recovery
//  4. Metrics, when a registry is given
//  5. Tracing
type PublicAPIServer struct {
	*Server
}

// NewPublicAPIServer creates the public server and installs its middleware.
func NewPublicAPIServer(
	cfg config.HTTPConfig,
	obsCfg config.ObservabilityConfig,
	r router.Router,
	log logger.Logger,
	metricsRegistry *obsmetrics.Registry,
) *PublicAPIServer {
	stack := []router.MiddlewareFunc{
		requestid.RequestID(),
		logging.WithConfig(log, logging.Config{
			Enabled:              obsCfg.RequestLogging.Enabled,
			ExcludedPathPrefixes: obsCfg.RequestLogging.ExcludedPathPrefixes,
		}),
		recovery.Recovery(log),
	}
	if metricsRegistry != nil {
		stack = append(stack, metrics.Metrics(metricsRegistry.HTTP()))
	}
	stack = append(stack, tracing.Tracing(tracing.Config{
		TracerName:           "ssebroadcast/http",
		ExcludedPathPrefixes: obsCfg.RequestLogging.ExcludedPathPrefixes,
	}))
	r.Use(stack...)

	return &PublicAPIServer{
		Server: NewServer(Config{
			Port:            cfg.Port,
			ReadTimeout:     cfg.ReadTimeout,
			WriteTimeout:    cfg.WriteTimeout,
			IdleTimeout:     cfg.IdleTimeout,
			ShutdownTimeout: cfg.ShutdownTimeout,
		}, r, log),
	}
}
