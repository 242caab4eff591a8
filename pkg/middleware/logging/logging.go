// Package logging writes one structured entry per HTTP request.
package logging

import (
	"strings"
	"time"

	"github.com/nimburion/ssebroadcast/pkg/observability/logger"
	"github.com/nimburion/ssebroadcast/pkg/server/router"
)

// Mode defines logging verbosity for matching request paths.
type Mode string

// Logging mode constants
const (
	// ModeOff disables request logging
	ModeOff Mode = "off"
	// ModeMinimal logs only the completion entry
	ModeMinimal Mode = "minimal"
	// ModeFull also logs when the request starts
	ModeFull Mode = "full"
)

// Log field name constants
const (
	FieldRequestID  = "request_id"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatus     = "status"
	FieldDurationMS = "duration_ms"
	FieldRemoteAddr = "remote_addr"
	FieldUserAgent  = "http_user_agent"
	FieldError      = "error"
)

// Config configures request logging middleware behavior.
type Config struct {
	Enabled              bool
	ExcludedPathPrefixes []string
	PathPolicies         []PathPolicy
}

// PathPolicy configures a logging mode for a path prefix.
type PathPolicy struct {
	Prefix string
	Mode   Mode
}

// DefaultConfig returns default request logging behavior.
func DefaultConfig() Config {
	return Config{Enabled: true}
}

// Logging creates middleware with default configuration.
func Logging(log logger.Logger) router.MiddlewareFunc {
	return WithConfig(log, DefaultConfig())
}

// WithConfig creates request logging middleware with custom configuration.
// Event streams run for the lifetime of the connection, so full mode logs a
// start entry that is visible while the stream is still open.
func WithConfig(log logger.Logger, cfg Config) router.MiddlewareFunc {
	cfg = normalize(cfg)

	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			req := c.Request()
			mode := cfg.modeForPath(req.URL.Path)
			if mode == ModeOff {
				return next(c)
			}

			start := time.Now()
			reqLog := log.WithContext(req.Context()).With(
				FieldMethod, req.Method,
				FieldPath, req.URL.Path,
				FieldRemoteAddr, req.RemoteAddr,
			)
			if mode == ModeFull {
				reqLog.Info("request started", FieldUserAgent, req.UserAgent())
			}

			err := next(c)
			fields := []any{
				FieldStatus, c.Response().Status(),
				FieldDurationMS, time.Since(start).Milliseconds(),
			}
			if err != nil {
				reqLog.Error("request failed", append(fields, FieldError, err)...)
				return err
			}
			reqLog.Info("request completed", fields...)
			return nil
		}
	}
}

func normalize(cfg Config) Config {
	policies := make([]PathPolicy, 0, len(cfg.PathPolicies))
	for _, policy := range cfg.PathPolicies {
		if strings.TrimSpace(policy.Prefix) == "" {
			continue
		}
		policies = append(policies, PathPolicy{Prefix: policy.Prefix, Mode: ParseMode(string(policy.Mode))})
	}
	cfg.PathPolicies = policies
	return cfg
}

func (c Config) modeForPath(path string) Mode {
	if !c.Enabled {
		return ModeOff
	}
	for _, prefix := range c.ExcludedPathPrefixes {
		if strings.HasPrefix(path, prefix) {
			return ModeOff
		}
	}

	bestLen := -1
	bestMode := ModeFull
	for _, policy := range c.PathPolicies {
		if strings.HasPrefix(path, policy.Prefix) && len(policy.Prefix) > bestLen {
			bestLen = len(policy.Prefix)
			bestMode = policy.Mode
		}
	}
	return bestMode
}

// ParseMode maps a configuration string to a Mode, defaulting to ModeFull.
func ParseMode(mode string) Mode {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case string(ModeOff):
		return ModeOff
	case string(ModeMinimal):
		return ModeMinimal
	default:
		return ModeFull
	}
}
