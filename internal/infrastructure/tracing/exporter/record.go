package exporter

import (
	"fmt"
	"time"

	"github.com/GriffinCanCode/reqtrace/internal/infrastructure/tracing"
)

// SpanRecord is the JSON form written by FileExporter, one per line.
type SpanRecord struct {
	TraceID      string              `json:"trace_id"`
	SpanID       string              `json:"span_id"`
	ParentSpanID string              `json:"parent_span_id,omitempty"`
	Name         string              `json:"name"`
	Kind         string              `json:"kind"`
	StartTime    time.Time           `json:"start_time"`
	EndTime      time.Time           `json:"end_time"`
	DurationMS   float64             `json:"duration_ms"`
	Sampled      bool                `json:"sampled"`
	TraceState   string              `json:"trace_state,omitempty"`
	Attributes   map[string]any      `json:"attributes,omitempty"`
	Status       *StatusRecord       `json:"status,omitempty"`
	StackTrace   *tracing.StackTrace `json:"stack_trace,omitempty"`
}

// StatusRecord is the JSON form of tracing.Status.
type StatusRecord struct {
	Code    int    `json:"code"`
	Name    string `json:"name"`
	Message string `json:"message,omitempty"`
}

// NewSpanRecord converts a span for serialization.
func NewSpanRecord(s tracing.SpanData) SpanRecord {
	r := SpanRecord{
		TraceID:    s.SpanContext.TraceID.String(),
		SpanID:     s.SpanContext.SpanID.String(),
		Name:       s.Name,
		Kind:       s.Kind.String(),
		StartTime:  s.StartTime.UTC(),
		EndTime:    s.EndTime.UTC(),
		DurationMS: float64(s.Duration()) / float64(time.Millisecond),
		Sampled:    s.SpanContext.IsSampled(),
		TraceState: string(s.SpanContext.TraceState),
		Attributes: s.Attributes,
		StackTrace: s.StackTrace,
	}
	if s.HasParent() {
		r.ParentSpanID = s.ParentSpanID.String()
	}
	if s.Status != nil {
		r.Status = &StatusRecord{
			Code:    int(s.Status.Code),
			Name:    s.Status.Code.String(),
			Message: s.Status.Message,
		}
	}
	return r
}

// ZipkinSpan is the Zipkin v2 JSON span model.
type ZipkinSpan struct {
	TraceID       string            `json:"traceId"`
	ID            string            `json:"id"`
	ParentID      string            `json:"parentId,omitempty"`
	Name          string            `json:"name"`
	Kind          string            `json:"kind,omitempty"`
	Timestamp     int64             `json:"timestamp"`
	Duration      int64             `json:"duration"`
	LocalEndpoint *ZipkinEndpoint   `json:"localEndpoint,omitempty"`
	Tags          map[string]string `json:"tags,omitempty"`
}

// ZipkinEndpoint identifies the reporting service.
type ZipkinEndpoint struct {
	ServiceName string `json:"serviceName"`
}

// NewZipkinSpan converts a span to the Zipkin model. Zipkin tags are
// strings only, so attribute values are formatted. Status and the top stack
// frame become tags.
func NewZipkinSpan(s tracing.SpanData, serviceName string) ZipkinSpan {
	z := ZipkinSpan{
		TraceID:   s.SpanContext.TraceID.String(),
		ID:        s.SpanContext.SpanID.String(),
		Name:      s.Name,
		Timestamp: s.StartTime.UnixMicro(),
		Duration:  s.Duration().Microseconds(),
		Tags:      make(map[string]string, len(s.Attributes)+2),
	}
	if z.Duration < 1 {
		// Zipkin rejects zero durations.
		z.Duration = 1
	}
	if s.HasParent() {
		z.ParentID = s.ParentSpanID.String()
	}
	switch s.Kind {
	case tracing.SpanKindServer:
		z.Kind = "SERVER"
	case tracing.SpanKindClient:
		z.Kind = "CLIENT"
	}
	if serviceName != "" {
		z.LocalEndpoint = &ZipkinEndpoint{ServiceName: serviceName}
	}
	for k, v := range s.Attributes {
		z.Tags[k] = fmt.Sprint(v)
	}
	if s.Status != nil {
		z.Tags["otel.status_code"] = s.Status.Code.String()
		if s.Status.Message != "" {
			z.Tags["error"] = s.Status.Message
		}
	}
	if s.StackTrace != nil && len(s.StackTrace.Frames) > 0 {
		f := s.StackTrace.Frames[0]
		z.Tags["exception.stacktrace"] = s.StackTrace.String()
		z.Tags["code.function"] = f.Function
	}
	if len(z.Tags) == 0 {
		z.Tags = nil
	}
	return z
}
