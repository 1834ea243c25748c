package interceptor

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync/atomic"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/GriffinCanCode/reqtrace/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/reqtrace/internal/infrastructure/tracing"
)

// RequestInfo describes an inbound request to Handle.
type RequestInfo struct {
	Method string
	// URL is the full request URL including scheme and host.
	URL *url.URL
	// Host is the request host, possibly with a port.
	Host string
	// Route is the matched route pattern when the framework knows it.
	Route     string
	UserAgent string
	Header    tracing.TextCarrier

	// Name overrides the default "[METHOD]url" span name.
	Name string
	// Attributes are added to the server span after the standard ones.
	Attributes map[string]any
}

// Response is what the continuation reports back.
type Response struct {
	StatusCode int
	// Status overrides the status derived from StatusCode.
	Status *tracing.Status
}

// Continuation runs the wrapped handler with the traced context.
type Continuation func(ctx context.Context) (Response, error)

// StackTracer is implemented by errors that carry the stack where they were
// created. Such stacks are preferred over the one captured at the boundary.
type StackTracer interface {
	StackTrace() tracing.StackTrace
}

// Interceptor traces inbound requests with the current Settings.
type Interceptor struct {
	settings atomic.Pointer[Settings]
	logger   *zap.Logger
	metrics  *monitoring.Metrics
}

// Option configures an Interceptor.
type Option func(*Interceptor)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(i *Interceptor) {
		if l != nil {
			i.logger = l
		}
	}
}

// WithMetrics sets the metrics sink
func WithMetrics(m *monitoring.Metrics) Option {
	return func(i *Interceptor) {
		i.metrics = m
	}
}

// New creates an interceptor. Nil settings use DefaultSettings.
func New(settings *Settings, opts ...Option) *Interceptor {
	i := &Interceptor{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(i)
	}
	i.logger = i.logger.With(zap.String("component", "interceptor"))
	i.settings.Store(settings.Normalize())
	return i
}

// Settings returns the settings in effect.
func (i *Interceptor) Settings() *Settings {
	return i.settings.Load()
}

// Reconfigure atomically replaces the settings and returns the previous
// ones. Requests already in flight finish with the settings they started
// with, so the caller should delay shutting down the previous exporter.
func (i *Interceptor) Reconfigure(settings *Settings) *Settings {
	return i.settings.Swap(settings.Normalize())
}

// Handle traces one request around next.
//
// Denied requests run next untraced. Otherwise a server span is started
// before next and, whatever next does, ended and exported exactly once
// afterwards. Errors and panics from next are recorded on the span and
// passed through unchanged; failures inside tracing itself are logged and
// never reach the caller.
func (i *Interceptor) Handle(ctx context.Context, req RequestInfo, next Continuation) (resp Response, err error) {
	settings := i.Settings()
	// The decision is taken once and holds for the response side too.
	if settings.Denied(req.URL, req.Host) {
		return next(ctx)
	}

	tracer, span := i.begin(settings, req)
	if tracer == nil {
		return next(ctx)
	}
	ctx = tracing.NewContext(ctx, tracer)

	defer func() {
		if r := recover(); r != nil {
			i.guard(tracer, func() {
				stack := tracing.StackTraceFromPanic()
				_ = span.RecordStatus(codes.Unknown, fmt.Sprint(r))
				_ = span.AttachStackTrace(stack)
				span.SetAttribute(tracing.AttrErrorType, "panic")
			})
			i.end(tracer)
			panic(r)
		}
		i.guard(tracer, func() { i.complete(ctx, span, resp, err) })
		i.end(tracer)
	}()

	return next(ctx)
}

func (i *Interceptor) begin(settings *Settings, req RequestInfo) (tracer *tracing.Tracer, span *tracing.Span) {
	defer func() {
		if r := recover(); r != nil {
			i.logger.Error("tracing failed, serving request untraced", zap.Any("panic", r))
			tracer, span = nil, nil
		}
	}()

	opts := []tracing.Option{
		tracing.WithSampler(settings.Sampler),
		tracing.WithExporter(settings.Exporter),
		tracing.WithPropagator(settings.Propagator),
		tracing.WithLogger(i.logger),
	}
	sc := tracing.NewRootSpanContext()
	if req.Header != nil {
		var remote bool
		if sc, remote = settings.Propagator.Decode(req.Header); remote {
			opts = append(opts, tracing.WithRemoteParent())
		}
	}

	tracer = tracing.New(sc, opts...)
	span = tracer.StartSpan(spanName(req), tracing.SpanKindServer)
	i.metrics.RecordSpanStarted(tracer.Sampled())

	if req.URL != nil {
		span.SetAttribute(tracing.AttrHTTPHost, req.URL.Hostname())
		span.SetAttribute(tracing.AttrHTTPPath, req.URL.Path)
		span.SetAttribute(tracing.AttrHTTPURL, req.URL.String())
	}
	if req.Method != "" {
		span.SetAttribute(tracing.AttrHTTPMethod, req.Method)
	}
	route := req.Route
	if route == "" && req.URL != nil {
		route = req.URL.Path
	}
	if route != "" {
		span.SetAttribute(tracing.AttrHTTPRoute, route)
	}
	if req.UserAgent != "" {
		span.SetAttribute(tracing.AttrHTTPUserAgent, req.UserAgent)
	}
	for k, v := range req.Attributes {
		span.SetAttribute(k, v)
	}
	return tracer, span
}

func (i *Interceptor) complete(ctx context.Context, span *tracing.Span, resp Response, err error) {
	if resp.StatusCode != 0 {
		span.SetAttribute(tracing.AttrHTTPStatusCode, resp.StatusCode)
	}

	switch {
	case isCancellation(ctx, err):
		code := codes.Canceled
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			code = codes.DeadlineExceeded
		}
		span.SetAttribute(tracing.AttrCancelled, true)
		_ = span.RecordStatus(code, cancelMessage(ctx, err))

	case err != nil:
		code, msg := codes.Unknown, err.Error()
		if st, ok := status.FromError(err); ok && st.Code() != codes.OK {
			code, msg = st.Code(), st.Message()
		}
		_ = span.RecordStatus(code, msg)
		_ = span.AttachStackTrace(stackFor(err))
		span.SetAttribute(tracing.AttrErrorType, fmt.Sprintf("%T", err))

	case resp.Status != nil:
		_ = span.RecordStatus(resp.Status.Code, resp.Status.Message)

	case resp.StatusCode != 0:
		st := tracing.StatusFromHTTP(resp.StatusCode)
		_ = span.RecordStatus(st.Code, st.Message)
	}
}

// end closes the server span and exports. It runs exactly once per traced
// request.
func (i *Interceptor) end(tracer *tracing.Tracer) {
	i.guard(tracer, func() {
		tracer.EndSpan()
		tracer.Finish()
	})
}

func (i *Interceptor) guard(tracer *tracing.Tracer, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			i.logger.Error("tracing failed",
				zap.String("trace_id", tracer.SpanContext().TraceID.String()),
				zap.Any("panic", r),
			)
		}
	}()
	fn()
}

func isCancellation(ctx context.Context, err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	// The client went away without the handler noticing.
	return err == nil && ctx.Err() != nil
}

func cancelMessage(ctx context.Context, err error) string {
	if err != nil {
		return err.Error()
	}
	return ctx.Err().Error()
}

func stackFor(err error) tracing.StackTrace {
	var st StackTracer
	if errors.As(err, &st) {
		return st.StackTrace()
	}
	// stackFor <- func literal <- guard <- deferred func in Handle
	return tracing.CaptureStackTrace(3)
}

func spanName(req RequestInfo) string {
	if req.Name != "" {
		return req.Name
	}
	u := ""
	if req.URL != nil {
		u = req.URL.String()
	}
	return "[" + req.Method + "]" + u
}
