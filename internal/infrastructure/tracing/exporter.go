package tracing

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// Exporter receives the ended spans of sampled requests.
//
// Export is called once per finished request, concurrently from many
// requests. It must not block the request path indefinitely and never
// reports failure to the caller: implementations log what they cannot
// deliver. Shutdown flushes buffered spans and releases resources.
type Exporter interface {
	Export(spans []SpanData)
	Shutdown(ctx context.Context) error
}

// PrintExporter writes one text line per span, synchronously.
type PrintExporter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewPrintExporter creates a print exporter writing to w
func NewPrintExporter(w io.Writer) *PrintExporter {
	return &PrintExporter{w: w}
}

// Export writes the spans. Write errors are dropped: there is nowhere
// better to report them than the stream that just failed.
func (e *PrintExporter) Export(spans []SpanData) {
	var sb strings.Builder
	for _, s := range spans {
		FormatSpan(&sb, s)
		sb.WriteByte('\n')
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	_, _ = io.WriteString(e.w, sb.String())
}

// Shutdown is a no-op
func (e *PrintExporter) Shutdown(context.Context) error {
	return nil
}

// FormatSpan renders a span on a single line with attributes sorted by key.
func FormatSpan(sb *strings.Builder, s SpanData) {
	fmt.Fprintf(sb, "[trace:%s span:%s", s.SpanContext.TraceID, s.SpanContext.SpanID)
	if s.HasParent() {
		fmt.Fprintf(sb, " parent:%s", s.ParentSpanID)
	}
	fmt.Fprintf(sb, "] %s kind=%s start=%s duration=%s",
		s.Name, s.Kind, s.StartTime.UTC().Format(time.RFC3339Nano), s.Duration())

	if s.Status != nil {
		fmt.Fprintf(sb, " status=%s", s.Status.Code)
		if s.Status.Message != "" {
			fmt.Fprintf(sb, " message=%q", s.Status.Message)
		}
	}

	keys := make([]string, 0, len(s.Attributes))
	for k := range s.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(sb, " %s=%v", k, s.Attributes[k])
	}

	if s.StackTrace != nil {
		fmt.Fprintf(sb, " stack_frames=%d", len(s.StackTrace.Frames))
	}
}
