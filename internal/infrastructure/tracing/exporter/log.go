package exporter

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"

	"github.com/GriffinCanCode/reqtrace/internal/infrastructure/tracing"
)

// LogExporter writes each span as a structured zap entry. Spans with a non
// OK status are logged at error level.
type LogExporter struct {
	logger *zap.Logger
}

// NewLogExporter creates a log exporter
func NewLogExporter(logger *zap.Logger) *LogExporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogExporter{logger: logger.With(zap.String("component", "span-exporter"))}
}

// Export logs the spans
func (e *LogExporter) Export(spans []tracing.SpanData) {
	for _, s := range spans {
		fields := []zap.Field{
			zap.String("trace_id", s.SpanContext.TraceID.String()),
			zap.String("span_id", s.SpanContext.SpanID.String()),
			zap.String("operation", s.Name),
			zap.String("kind", s.Kind.String()),
			zap.Duration("duration", s.Duration()),
			zap.Any("attributes", s.Attributes),
		}

		if s.HasParent() {
			fields = append(fields, zap.String("parent_id", s.ParentSpanID.String()))
		}

		if s.StatusCode() != codes.OK {
			fields = append(fields,
				zap.String("status_code", s.StatusCode().String()),
				zap.String("status_message", s.Status.Message),
			)
			if s.StackTrace != nil {
				fields = append(fields, zap.Int("stack_frames", len(s.StackTrace.Frames)))
			}
			e.logger.Error("span completed with error", fields...)
		} else {
			e.logger.Info("span completed", fields...)
		}
	}
}

// Shutdown flushes the logger
func (e *LogExporter) Shutdown(context.Context) error {
	// Sync fails on stdout/stderr on some platforms; nothing to do about it.
	_ = e.logger.Sync()
	return nil
}
