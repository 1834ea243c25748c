// Package tracingtest provides exporters and helpers for testing code that
// emits spans.
package tracingtest

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"

	"github.com/GriffinCanCode/reqtrace/internal/infrastructure/tracing"
)

// MockExporter is a testify mock of tracing.Exporter.
type MockExporter struct {
	mock.Mock
}

// Export mocks the Export method.
func (m *MockExporter) Export(spans []tracing.SpanData) {
	m.Called(spans)
}

// Shutdown mocks the Shutdown method.
func (m *MockExporter) Shutdown(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// NewMockExporter creates a mock that accepts any Export and Shutdown call.
func NewMockExporter(t *testing.T) *MockExporter {
	t.Helper()
	m := new(MockExporter)
	m.On("Export", mock.Anything).Return().Maybe()
	m.On("Shutdown", mock.Anything).Return(nil).Maybe()
	return m
}

// Recorder is an in-memory exporter that keeps every Export call.
type Recorder struct {
	mu       sync.Mutex
	calls    [][]tracing.SpanData
	shutdown bool
}

// NewRecorder creates an empty recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Export(spans []tracing.SpanData) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, spans)
}

func (r *Recorder) Shutdown(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shutdown = true
	return nil
}

// Calls returns the number of Export calls
func (r *Recorder) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// Spans returns every exported span in export order
func (r *Recorder) Spans() []tracing.SpanData {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []tracing.SpanData
	for _, c := range r.calls {
		out = append(out, c...)
	}
	return out
}

// IsShutdown reports whether Shutdown was called
func (r *Recorder) IsShutdown() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.shutdown
}

// Reset forgets all recorded calls
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}
