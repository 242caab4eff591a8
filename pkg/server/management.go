package server

import (
	"net/http"
	"time"

	"github.com/nimburion/ssebroadcast/pkg/config"
	"github.com/nimburion/ssebroadcast/pkg/health"
	"github.com/nimburion/ssebroadcast/pkg/middleware/logging"
	"github.com/nimburion/ssebroadcast/pkg/middleware/recovery"
	"github.com/nimburion/ssebroadcast/pkg/middleware/requestid"
	"github.com/nimburion/ssebroadcast/pkg/observability/logger"
	"github.com/nimburion/ssebroadcast/pkg/observability/metrics"
	"github.com/nimburion/ssebroadcast/pkg/server/router"
	"github.com/nimburion/ssebroadcast/pkg/version"
)

// ManagementServer serves operational endpoints on a separate port:
//   - /health: liveness, always 200
//   - /ready: runs the health registry, 503 when unhealthy
//   - /metrics: Prometheus exposition
//   - /version: build metadata
type ManagementServer struct {
	*Server
	healthRegistry  *health.Registry
	metricsRegistry *metrics.Registry
	versionInfo     version.Info
}

// NewManagementServer creates the management server and registers its endpoints.
func NewManagementServer(
	cfg config.ManagementConfig,
	r router.Router,
	log logger.Logger,
	healthRegistry *health.Registry,
	metricsRegistry *metrics.Registry,
	info version.Info,
) *ManagementServer {
	r.Use(
		requestid.RequestID(),
		logging.WithConfig(log, logging.Config{
			Enabled:      true,
			PathPolicies: []logging.PathPolicy{{Prefix: "/", Mode: logging.ModeMinimal}},
		}),
		recovery.Recovery(log),
	)

	s := &ManagementServer{
		Server: NewServer(Config{
			Port:         cfg.Port,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  60 * time.Second,
		}, r, log),
		healthRegistry:  healthRegistry,
		metricsRegistry: metricsRegistry,
		versionInfo:     info,
	}

	r.GET("/health", s.handleHealth)
	r.GET("/ready", s.handleReady)
	r.GET("/metrics", router.FromHTTPHandler(metricsRegistry.Handler()))
	r.GET("/version", s.handleVersion)
	return s
}

func (s *ManagementServer) handleHealth(c router.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status": "healthy",
	})
}

func (s *ManagementServer) handleReady(c router.Context) error {
	result := s.healthRegistry.Check(c.Request().Context())
	if !result.IsHealthy() {
		return c.JSON(http.StatusServiceUnavailable, result)
	}
	return c.JSON(http.StatusOK, result)
}

func (s *ManagementServer) handleVersion(c router.Context) error {
	return c.JSON(http.StatusOK, s.versionInfo)
}
