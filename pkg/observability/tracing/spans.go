// Package tracing provides OpenTelemetry tracing for the broadcaster.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName is the tracer name used when no tracer is supplied.
const InstrumentationName = "github.com/nimburion/ssebroadcast/pkg/realtime/sse"

// SpanOperation represents a traced operation type.
type SpanOperation string

const (
	// SpanOperationRegister represents accepting a new subscriber
	SpanOperationRegister SpanOperation = "sse.register"
	// SpanOperationPublish represents broadcasting one message
	SpanOperationPublish SpanOperation = "sse.publish"
	// SpanOperationHeartbeat represents a keep-alive broadcast
	SpanOperationHeartbeat SpanOperation = "sse.heartbeat"
)

// StartBroadcastSpan creates a new span for a broadcaster operation.
// The span name is "SSE <operation>" followed by the broadcaster name when set.
func StartBroadcastSpan(ctx context.Context, operation SpanOperation, opts ...BroadcastSpanOption) (context.Context, trace.Span) {
	spanOpts := &broadcastSpanOptions{
		attributes: []attribute.KeyValue{
			attribute.String("sse.operation", string(operation)),
		},
	}
	for _, opt := range opts {
		opt(spanOpts)
	}

	tracer := spanOpts.tracer
	if tracer == nil {
		tracer = otel.Tracer(InstrumentationName)
	}

	spanName := fmt.Sprintf("SSE %s", operation)
	if spanOpts.broadcaster != "" {
		spanName = fmt.Sprintf("SSE %s %s", operation, spanOpts.broadcaster)
	}

	spanKind := trace.SpanKindProducer
	if operation == SpanOperationRegister {
		spanKind = trace.SpanKindServer
	}

	ctx, span := tracer.Start(ctx, spanName, trace.WithSpanKind(spanKind))
	span.SetAttributes(spanOpts.attributes...)
	return ctx, span
}

// BroadcastSpanOption configures a broadcast span.
type BroadcastSpanOption func(*broadcastSpanOptions)

type broadcastSpanOptions struct {
	tracer      trace.Tracer
	broadcaster string
	attributes  []attribute.KeyValue
}

// WithTracer starts the span on tracer instead of the global provider.
func WithTracer(tracer trace.Tracer) BroadcastSpanOption {
	return func(opts *broadcastSpanOptions) {
		opts.tracer = tracer
	}
}

// WithBroadcaster sets the broadcaster name.
func WithBroadcaster(name string) BroadcastSpanOption {
	return func(opts *broadcastSpanOptions) {
		if name == "" {
			return
		}
		opts.broadcaster = name
		opts.attributes = append(opts.attributes, attribute.String("sse.broadcaster", name))
	}
}

// WithEventType sets the SSE event type.
func WithEventType(event string) BroadcastSpanOption {
	return func(opts *broadcastSpanOptions) {
		if event == "" {
			return
		}
		opts.attributes = append(opts.attributes, attribute.String("sse.event", event))
	}
}

// WithFiltered marks sends restricted by a subscriber predicate.
func WithFiltered(filtered bool) BroadcastSpanOption {
	return func(opts *broadcastSpanOptions) {
		opts.attributes = append(opts.attributes, attribute.Bool("sse.filtered", filtered))
	}
}

// WithLastEventID sets the Last-Event-ID a subscriber resumed from.
func WithLastEventID(id string) BroadcastSpanOption {
	return func(opts *broadcastSpanOptions) {
		if id == "" {
			return
		}
		opts.attributes = append(opts.attributes, attribute.String("sse.last_event_id", id))
	}
}

// RecordDelivery annotates span with the outcome of a broadcast.
func RecordDelivery(span trace.Span, messageID string, delivered, removed int) {
	attrs := []attribute.KeyValue{
		attribute.Int("sse.delivered", delivered),
		attribute.Int("sse.removed", removed),
	}
	if messageID != "" {
		attrs = append(attrs, attribute.String("sse.message_id", messageID))
	}
	span.SetAttributes(attrs...)
}

// RecordError records an error in the current span and sets the span status to error.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// RecordSuccess sets the span status to OK.
func RecordSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}
