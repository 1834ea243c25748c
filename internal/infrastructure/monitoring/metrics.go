package monitoring

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the tracing pipeline and the
// HTTP server it instruments. Each Metrics owns its registry, so several can
// coexist in one process.
//
// Every Record method is safe on a nil *Metrics and does nothing.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Pipeline metrics
	SpansStarted   *prometheus.CounterVec
	SpansExported  *prometheus.CounterVec
	SpansDropped   *prometheus.CounterVec
	ExportBatches  *prometheus.CounterVec
	ExportDuration *prometheus.HistogramVec
	QueueDepth     *prometheus.GaugeVec
	BreakerState   *prometheus.GaugeVec

	startTime time.Time

	snapshot MetricsSnapshot
	mu       sync.RWMutex
}

// MetricsSnapshot holds running totals for the JSON status endpoint
type MetricsSnapshot struct {
	TotalRequests  int64   `json:"total_requests"`
	TotalErrors    int64   `json:"total_errors"`
	SpansStarted   int64   `json:"spans_started"`
	SpansSampled   int64   `json:"spans_sampled"`
	SpansExported  int64   `json:"spans_exported"`
	SpansDropped   int64   `json:"spans_dropped"`
	ExportFailures int64   `json:"export_failures"`
	UptimeSeconds  float64 `json:"uptime_seconds"`
}

// NewMetrics creates a metrics collector on a fresh registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reqtrace_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reqtrace_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "route"},
		),

		SpansStarted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reqtrace_spans_started_total",
				Help: "Server spans started, by sampling decision",
			},
			[]string{"sampled"},
		),
		SpansExported: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reqtrace_spans_exported_total",
				Help: "Spans delivered by an exporter",
			},
			[]string{"exporter"},
		),
		SpansDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reqtrace_spans_dropped_total",
				Help: "Spans an exporter gave up on",
			},
			[]string{"exporter", "reason"},
		),
		ExportBatches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reqtrace_export_batches_total",
				Help: "Export attempts, by result",
			},
			[]string{"exporter", "result"},
		),
		ExportDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reqtrace_export_duration_seconds",
				Help:    "Time spent delivering one batch",
				Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
			},
			[]string{"exporter"},
		),
		QueueDepth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "reqtrace_export_queue_depth",
				Help: "Spans waiting in an exporter queue",
			},
			[]string{"exporter"},
		),
		BreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "reqtrace_circuit_breaker_state",
				Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
			},
			[]string{"name"},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "reqtrace_uptime_seconds",
			Help: "Seconds since the process started",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalRequests++
	if status >= 400 {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordSpanStarted counts a server span and its sampling decision
func (m *Metrics) RecordSpanStarted(sampled bool) {
	if m == nil {
		return
	}
	m.SpansStarted.WithLabelValues(strconv.FormatBool(sampled)).Inc()

	m.mu.Lock()
	m.snapshot.SpansStarted++
	if sampled {
		m.snapshot.SpansSampled++
	}
	m.mu.Unlock()
}

// RecordExport records one delivery attempt of n spans
func (m *Metrics) RecordExport(exporter string, n int, duration time.Duration, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.ExportBatches.WithLabelValues(exporter, result).Inc()
	m.ExportDuration.WithLabelValues(exporter).Observe(duration.Seconds())
	if err == nil {
		m.SpansExported.WithLabelValues(exporter).Add(float64(n))
	}

	m.mu.Lock()
	if err == nil {
		m.snapshot.SpansExported += int64(n)
	} else {
		m.snapshot.ExportFailures++
	}
	m.mu.Unlock()
}

// RecordDropped counts spans an exporter discarded
func (m *Metrics) RecordDropped(exporter, reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SpansDropped.WithLabelValues(exporter, reason).Add(float64(n))

	m.mu.Lock()
	m.snapshot.SpansDropped += int64(n)
	m.mu.Unlock()
}

// SetQueueDepth publishes the current queue length of an exporter
func (m *Metrics) SetQueueDepth(exporter string, n int) {
	if m == nil {
		return
	}
	m.QueueDepth.WithLabelValues(exporter).Set(float64(n))
}

// SetBreakerState publishes a circuit breaker state
func (m *Metrics) SetBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.BreakerState.WithLabelValues(name).Set(float64(state))
}

// Snapshot returns the running totals
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.snapshot
	s.UptimeSeconds = time.Since(m.startTime).Seconds()
	return s
}
