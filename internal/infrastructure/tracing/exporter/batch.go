package exporter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/reqtrace/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/reqtrace/internal/infrastructure/tracing"
)

// Policy decides what happens when the batch queue is full.
type Policy int

const (
	// PolicyDropOldest evicts the oldest queued span to make room.
	PolicyDropOldest Policy = iota
	// PolicyBlockWithTimeout waits up to EnqueueTimeout for room, then drops
	// the incoming span.
	PolicyBlockWithTimeout
)

func (p Policy) String() string {
	switch p {
	case PolicyDropOldest:
		return "drop_oldest"
	case PolicyBlockWithTimeout:
		return "block"
	default:
		return "unknown"
	}
}

// ParsePolicy parses a policy name
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "drop_oldest":
		return PolicyDropOldest, nil
	case "block":
		return PolicyBlockWithTimeout, nil
	default:
		return 0, fmt.Errorf("unknown queue policy %q", s)
	}
}

// Drop reasons reported in metrics
const (
	DropQueueFull = "queue_full"
	DropTimeout   = "timeout"
	DropShutdown  = "shutdown"
)

// BatchConfig configures a BatchExporter
type BatchConfig struct {
	Name           string
	QueueSize      int
	MaxBatchSize   int
	FlushInterval  time.Duration
	Policy         Policy
	EnqueueTimeout time.Duration
}

// DefaultBatchConfig returns the default batching settings
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		Name:           "batch",
		QueueSize:      2048,
		MaxBatchSize:   512,
		FlushInterval:  5 * time.Second,
		Policy:         PolicyDropOldest,
		EnqueueTimeout: 100 * time.Millisecond,
	}
}

type flushRequest struct {
	done chan struct{}
}

// BatchExporter decouples request handling from a slow exporter. Export only
// enqueues; a single worker hands batches to the wrapped exporter. The queue
// is bounded and its overflow behavior is set by Policy.
type BatchExporter struct {
	next    tracing.Exporter
	cfg     BatchConfig
	logger  *zap.Logger
	metrics *monitoring.Metrics

	queue   chan tracing.SpanData
	flushCh chan flushRequest
	done    chan struct{}
	stopped chan struct{}

	// mu guards closed against concurrent sends; Export holds it shared.
	mu     sync.RWMutex
	closed bool
	once   sync.Once
}

// NewBatchExporter wraps next and starts the worker
func NewBatchExporter(next tracing.Exporter, cfg BatchConfig, logger *zap.Logger, metrics *monitoring.Metrics) *BatchExporter {
	def := DefaultBatchConfig()
	if cfg.Name == "" {
		cfg.Name = def.Name
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = def.MaxBatchSize
	}
	if cfg.MaxBatchSize > cfg.QueueSize {
		cfg.MaxBatchSize = cfg.QueueSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.EnqueueTimeout <= 0 {
		cfg.EnqueueTimeout = def.EnqueueTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	b := &BatchExporter{
		next:    next,
		cfg:     cfg,
		logger:  logger.With(zap.String("component", "batch-exporter"), zap.String("exporter", cfg.Name)),
		metrics: metrics,
		queue:   make(chan tracing.SpanData, cfg.QueueSize),
		flushCh: make(chan flushRequest),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go b.run()
	return b
}

// Export enqueues spans. It never blocks longer than EnqueueTimeout.
func (b *BatchExporter) Export(spans []tracing.SpanData) {
	if len(spans) == 0 {
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.metrics.RecordDropped(b.cfg.Name, DropShutdown, len(spans))
		return
	}

	var deadline <-chan time.Time
	if b.cfg.Policy == PolicyBlockWithTimeout {
		timer := time.NewTimer(b.cfg.EnqueueTimeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for i, s := range spans {
		if b.cfg.Policy == PolicyBlockWithTimeout {
			if !b.enqueueBlocking(s, deadline) {
				b.drop(DropTimeout, len(spans)-i)
				break
			}
			continue
		}
		b.enqueueDropOldest(s)
	}
	b.metrics.SetQueueDepth(b.cfg.Name, len(b.queue))
}

func (b *BatchExporter) enqueueBlocking(s tracing.SpanData, deadline <-chan time.Time) bool {
	select {
	case b.queue <- s:
		return true
	case <-deadline:
		return false
	}
}

func (b *BatchExporter) enqueueDropOldest(s tracing.SpanData) {
	for {
		select {
		case b.queue <- s:
			return
		default:
		}
		// Full: evict the head. The worker may have drained it meanwhile, in
		// which case the next send succeeds.
		select {
		case <-b.queue:
			b.drop(DropQueueFull, 1)
		default:
		}
	}
}

func (b *BatchExporter) drop(reason string, n int) {
	b.metrics.RecordDropped(b.cfg.Name, reason, n)
	b.logger.Warn("dropping spans", zap.String("reason", reason), zap.Int("spans", n))
}

// ForceFlush exports everything queued so far and waits for it
func (b *BatchExporter) ForceFlush(ctx context.Context) error {
	req := flushRequest{done: make(chan struct{})}
	select {
	case b.flushCh <- req:
	case <-b.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting spans, drains the queue, and shuts down the
// wrapped exporter. It is safe to call more than once.
func (b *BatchExporter) Shutdown(ctx context.Context) error {
	b.once.Do(func() {
		b.mu.Lock()
		b.closed = true
		b.mu.Unlock()
		close(b.done)
	})

	select {
	case <-b.stopped:
	case <-ctx.Done():
		return ctx.Err()
	}
	return b.next.Shutdown(ctx)
}

func (b *BatchExporter) run() {
	defer close(b.stopped)

	ticker := time.NewTicker(b.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]tracing.SpanData, 0, b.cfg.MaxBatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		b.exportBatch(batch)
		// The exporter may keep the slice.
		batch = make([]tracing.SpanData, 0, b.cfg.MaxBatchSize)
		b.metrics.SetQueueDepth(b.cfg.Name, len(b.queue))
	}
	add := func(s tracing.SpanData) {
		batch = append(batch, s)
		if len(batch) >= b.cfg.MaxBatchSize {
			flush()
		}
	}
	drain := func() {
		for {
			select {
			case s := <-b.queue:
				add(s)
			default:
				flush()
				return
			}
		}
	}

	for {
		select {
		case s := <-b.queue:
			add(s)
		case <-ticker.C:
			flush()
		case req := <-b.flushCh:
			drain()
			close(req.done)
		case <-b.done:
			drain()
			return
		}
	}
}

func (b *BatchExporter) exportBatch(batch []tracing.SpanData) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("exporter panicked", zap.Any("panic", r), zap.Int("spans", len(batch)))
		}
	}()
	b.next.Export(batch)
}
