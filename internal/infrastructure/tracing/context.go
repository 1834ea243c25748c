package tracing

import (
	"context"

	"go.uber.org/zap"
)

// Context keys for the request-local tracer
type contextKey string

const tracerKey contextKey = "tracer"

// NewContext returns a copy of ctx carrying t.
func NewContext(ctx context.Context, t *Tracer) context.Context {
	return context.WithValue(ctx, tracerKey, t)
}

// FromContext retrieves the request's tracer, or nil.
func FromContext(ctx context.Context) *Tracer {
	if ctx == nil {
		return nil
	}
	t, _ := ctx.Value(tracerKey).(*Tracer)
	return t
}

// AddAttribute sets an attribute on the current span of the request's
// tracer. It does nothing when the request is not traced.
func AddAttribute(ctx context.Context, key string, value any) {
	if t := FromContext(ctx); t != nil {
		t.AddAttributeToCurrentSpan(key, value)
	}
}

// CurrentSpanContext returns the context of the request's current span.
func CurrentSpanContext(ctx context.Context) (SpanContext, bool) {
	t := FromContext(ctx)
	if t == nil {
		return SpanContext{}, false
	}
	if span := t.CurrentSpan(); span != nil {
		return span.SpanContext(), true
	}
	return t.SpanContext(), true
}

// GetTraceID returns the trace id of the request as hex, or "".
func GetTraceID(ctx context.Context) string {
	if sc, ok := CurrentSpanContext(ctx); ok {
		return sc.TraceID.String()
	}
	return ""
}

// LogFields returns zap fields correlating a log line with the request's
// trace.
func LogFields(ctx context.Context) []zap.Field {
	sc, ok := CurrentSpanContext(ctx)
	if !ok {
		return nil
	}
	return []zap.Field{
		zap.String("trace_id", sc.TraceID.String()),
		zap.String("span_id", sc.SpanID.String()),
	}
}
