package tracing

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/nimburion/ssebroadcast/pkg/middleware/requestid"
	"github.com/nimburion/ssebroadcast/pkg/server/router"
	"github.com/nimburion/ssebroadcast/pkg/server/router/gorilla"
)

func setup(t *testing.T, cfg Config, path string, h router.HandlerFunc) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(t.Context()) })
	cfg.TracerProvider = tp

	r := gorilla.NewRouter()
	r.Use(requestid.RequestID(), Tracing(cfg))
	r.GET(path, h)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	return recorder
}

func attr(span sdktrace.ReadOnlySpan, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestTracing_CreatesServerSpan(t *testing.T) {
	var handlerSpan trace.SpanContext
	recorder := setup(t, Config{}, "/events", func(c router.Context) error {
		handlerSpan = trace.SpanContextFromContext(c.Request().Context())
		return c.String(http.StatusOK, "ok")
	})

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name() != "HTTP GET /events" || span.SpanKind() != trace.SpanKindServer {
		t.Fatalf("unexpected span %q kind %v", span.Name(), span.SpanKind())
	}
	if !handlerSpan.IsValid() || handlerSpan.SpanID() != span.SpanContext().SpanID() {
		t.Fatal("expected the span to be on the handler request context")
	}
	if v, ok := attr(span, "http.status_code"); !ok || v.AsInt64() != http.StatusOK {
		t.Fatalf("unexpected status attribute %v", v)
	}
	if _, ok := attr(span, "request.id"); !ok {
		t.Fatal("expected request id attribute")
	}
	if span.Status().Code != codes.Ok {
		t.Fatalf("expected ok status, got %v", span.Status())
	}
}

func TestTracing_RecordsErrors(t *testing.T) {
	recorder := setup(t, Config{}, "/fail", func(c router.Context) error {
		return errors.New("boom")
	})
	spans := recorder.Ended()
	if len(spans) != 1 || spans[0].Status().Code != codes.Error {
		t.Fatalf("expected one error span, got %v", spans)
	}
}

func TestTracing_ExcludedPath(t *testing.T) {
	recorder := setup(t, Config{ExcludedPathPrefixes: []string{"/metrics"}}, "/metrics", func(c router.Context) error {
		return nil
	})
	if n := len(recorder.Ended()); n != 0 {
		t.Fatalf("expected no spans, got %d", n)
	}
}
