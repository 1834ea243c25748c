package exporter

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/reqtrace/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/reqtrace/internal/infrastructure/tracing"
)

// ErrExporterClosed is returned for operations on a shut down exporter.
var ErrExporterClosed = errors.New("exporter closed")

// FileExporter appends spans to a file as JSON lines. Writes are
// synchronous and serialized.
type FileExporter struct {
	path    string
	logger  *zap.Logger
	metrics *monitoring.Metrics

	mu     sync.Mutex
	file   *os.File
	w      *bufio.Writer
	closed bool
}

// NewFileExporter opens path for appending, creating parent directories.
func NewFileExporter(path string, logger *zap.Logger, metrics *monitoring.Metrics) (*FileExporter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create span file directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open span file: %w", err)
	}
	return &FileExporter{
		path:    path,
		logger:  logger.With(zap.String("component", "file-exporter"), zap.String("path", path)),
		metrics: metrics,
		file:    f,
		w:       bufio.NewWriter(f),
	}, nil
}

// Path returns the file being written
func (e *FileExporter) Path() string {
	return e.path
}

// Export appends one JSON object per span and flushes.
func (e *FileExporter) Export(spans []tracing.SpanData) {
	timer := monitoring.NewTimer(e.metrics, "file")
	err := e.write(spans)
	timer.Stop(len(spans), err)

	if err != nil {
		e.logger.Error("failed to export spans", zap.Int("spans", len(spans)), zap.Error(err))
	}
}

func (e *FileExporter) write(spans []tracing.SpanData) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrExporterClosed
	}

	for _, s := range spans {
		b, err := sonic.Marshal(NewSpanRecord(s))
		if err != nil {
			return fmt.Errorf("marshal span %s: %w", s.SpanContext.SpanID, err)
		}
		if _, err := e.w.Write(b); err != nil {
			return err
		}
		if err := e.w.WriteByte('\n'); err != nil {
			return err
		}
	}
	return e.w.Flush()
}

// Shutdown flushes and closes the file. Later exports are logged and
// dropped.
func (e *FileExporter) Shutdown(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	flushErr := e.w.Flush()
	closeErr := e.file.Close()
	return errors.Join(flushErr, closeErr)
}
