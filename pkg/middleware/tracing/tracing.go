// Package tracing starts an OpenTelemetry server span per HTTP request.
package tracing

import (
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/nimburion/ssebroadcast/pkg/middleware/requestid"
	"github.com/nimburion/ssebroadcast/pkg/server/router"
)

// Config holds configuration for the tracing middleware.
type Config struct {
	// TracerName identifies the tracer, default "http-server"
	TracerName string

	// TracerProvider overrides the global provider
	TracerProvider trace.TracerProvider

	// SpanNameFormatter defaults to "HTTP {method} {path}"
	SpanNameFormatter func(router.Context) string

	// ExcludedPathPrefixes disables tracing for matching path prefixes.
	ExcludedPathPrefixes []string
}

// Tracing creates middleware that extracts the incoming trace context and
// wraps the request in a server span. The span context is placed on the
// request so broadcaster spans started by the handler become its children.
func Tracing(cfg Config) router.MiddlewareFunc {
	if cfg.TracerName == "" {
		cfg.TracerName = "http-server"
	}
	if cfg.SpanNameFormatter == nil {
		cfg.SpanNameFormatter = defaultSpanNameFormatter
	}
	provider := cfg.TracerProvider
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	tracer := provider.Tracer(cfg.TracerName)

	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			req := c.Request()
			if cfg.excluded(req.URL.Path) {
				return next(c)
			}

			ctx := otel.GetTextMapPropagator().Extract(req.Context(), propagation.HeaderCarrier(req.Header))
			ctx, span := tracer.Start(ctx, cfg.SpanNameFormatter(c), trace.WithSpanKind(trace.SpanKindServer))
			defer span.End()

			span.SetAttributes(
				attribute.String("http.method", req.Method),
				attribute.String("http.target", req.URL.Path),
				attribute.String("http.user_agent", req.UserAgent()),
			)
			if id := requestid.GetRequestID(req.Context()); id != "" {
				span.SetAttributes(attribute.String("request.id", id))
			}

			c.SetRequest(req.WithContext(ctx))
			err := next(c)

			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return err
			}
			status := c.Response().Status()
			span.SetAttributes(attribute.Int("http.status_code", status))
			if status >= 500 {
				span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", status))
			} else {
				span.SetStatus(codes.Ok, "")
			}
			return nil
		}
	}
}

func (cfg Config) excluded(path string) bool {
	for _, prefix := range cfg.ExcludedPathPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func defaultSpanNameFormatter(c router.Context) string {
	return fmt.Sprintf("HTTP %s %s", c.Request().Method, c.Request().URL.Path)
}
