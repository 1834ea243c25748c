package exporter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/reqtrace/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/reqtrace/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/reqtrace/internal/infrastructure/tracing"
)

// ZipkinConfig configures the Zipkin collector client
type ZipkinConfig struct {
	Endpoint    string
	ServiceName string
	Timeout     time.Duration
	Gzip        bool
	// RateLimit caps uploads per second. Zero means unlimited.
	RateLimit  float64
	Burst      int
	MaxRetries int
	RetryWait  time.Duration
	UserAgent  string
}

// ErrCollectorStatus wraps non-2xx collector responses.
var ErrCollectorStatus = errors.New("collector rejected spans")

// ZipkinExporter posts spans to a Zipkin v2 collector as a JSON array. Each
// Export call is one upload, guarded by a rate limiter and a circuit
// breaker. Failures are logged and counted, never returned to the request.
type ZipkinExporter struct {
	cfg     ZipkinConfig
	client  *resty.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// NewZipkinExporter creates a Zipkin exporter. Endpoint is required.
func NewZipkinExporter(cfg ZipkinConfig, logger *zap.Logger, metrics *monitoring.Metrics) (*ZipkinExporter, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("zipkin exporter: endpoint is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = 500 * time.Millisecond
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "reqtrace-zipkin/1.0"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	// Only the pooled transport is borrowed; resty owns the retry policy.
	retryClient := retryablehttp.NewClient()

	client := resty.New()
	client.
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(cfg.RetryWait).
		SetRetryMaxWaitTime(cfg.RetryWait*8).
		SetHeader("User-Agent", cfg.UserAgent).
		SetHeader("Content-Type", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})
	client.SetTransport(retryClient.HTTPClient.Transport)

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = max(1, int(cfg.RateLimit))
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	breaker := resilience.New("zipkin", resilience.Settings{
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to resilience.State) {
			metrics.SetBreakerState(name, int(to))
			logger.Warn("collector circuit breaker changed state",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &ZipkinExporter{
		cfg:     cfg,
		client:  client,
		limiter: limiter,
		breaker: breaker,
		logger:  logger.With(zap.String("component", "zipkin-exporter")),
		metrics: metrics,
	}, nil
}

// Breaker exposes the collector circuit breaker
func (e *ZipkinExporter) Breaker() *resilience.Breaker {
	return e.breaker
}

// Export uploads spans in one request
func (e *ZipkinExporter) Export(spans []tracing.SpanData) {
	if len(spans) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.Timeout)
	defer cancel()

	timer := monitoring.NewTimer(e.metrics, "zipkin")
	err := e.upload(ctx, spans)
	d := timer.Stop(len(spans), err)

	if err != nil {
		e.logger.Error("failed to export spans",
			zap.Int("spans", len(spans)),
			zap.Duration("duration", d),
			zap.Error(err),
		)
		return
	}
	e.logger.Debug("exported spans", zap.Int("spans", len(spans)), zap.Duration("duration", d))
}

func (e *ZipkinExporter) upload(ctx context.Context, spans []tracing.SpanData) error {
	body, err := e.encode(spans)
	if err != nil {
		return err
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	return e.breaker.Execute(ctx, func(ctx context.Context) error {
		req := e.client.R().SetContext(ctx).SetBody(body)
		if e.cfg.Gzip {
			req.SetHeader("Content-Encoding", "gzip")
		}

		resp, err := req.Post(e.cfg.Endpoint)
		if err != nil {
			return err
		}
		if !resp.IsSuccess() {
			return fmt.Errorf("%w: HTTP %d", ErrCollectorStatus, resp.StatusCode())
		}
		return nil
	})
}

func (e *ZipkinExporter) encode(spans []tracing.SpanData) ([]byte, error) {
	models := make([]ZipkinSpan, 0, len(spans))
	for _, s := range spans {
		models = append(models, NewZipkinSpan(s, e.cfg.ServiceName))
	}

	payload, err := sonic.Marshal(models)
	if err != nil {
		return nil, fmt.Errorf("encode zipkin spans: %w", err)
	}
	if !e.cfg.Gzip {
		return payload, nil
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(payload); err != nil {
		return nil, fmt.Errorf("compress zipkin spans: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compress zipkin spans: %w", err)
	}
	return buf.Bytes(), nil
}

// Shutdown releases idle connections
func (e *ZipkinExporter) Shutdown(context.Context) error {
	e.client.GetClient().CloseIdleConnections()
	return nil
}
