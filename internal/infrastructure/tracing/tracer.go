package tracing

import (
	"os"

	"go.uber.org/zap"
)

// Tracer manages the spans of a single request.
//
// A Tracer is created at request entry, used only by the goroutine serving
// that request and discarded after Finish. It holds no locks.
type Tracer struct {
	sc         SpanContext
	sampler    Sampler
	exporter   Exporter
	propagator Propagator
	logger     *zap.Logger
	remote     bool

	decided bool
	sampled bool

	// open spans, innermost last
	stack    []*Span
	ended    []*Span
	finished bool
}

// Option configures a Tracer.
type Option func(*Tracer)

// WithSampler sets the sampler
func WithSampler(s Sampler) Option {
	return func(t *Tracer) {
		if s != nil {
			t.sampler = s
		}
	}
}

// WithExporter sets the exporter
func WithExporter(e Exporter) Option {
	return func(t *Tracer) {
		if e != nil {
			t.exporter = e
		}
	}
}

// WithPropagator sets the propagator used by Inject
func WithPropagator(p Propagator) Option {
	return func(t *Tracer) {
		if p != nil {
			t.propagator = p
		}
	}
}

// WithLogger sets the logger used for export failures
func WithLogger(l *zap.Logger) Option {
	return func(t *Tracer) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithRemoteParent marks sc as decoded from an inbound carrier, so the first
// span is parented to it.
func WithRemoteParent() Option {
	return func(t *Tracer) { t.remote = true }
}

var defaultPrintExporter = NewPrintExporter(os.Stdout)

// New creates a tracer for one request. sc is the inbound context, either
// decoded from headers or freshly generated.
func New(sc SpanContext, opts ...Option) *Tracer {
	t := &Tracer{
		sc:         sc,
		sampler:    NewProbabilitySampler(1),
		exporter:   defaultPrintExporter,
		propagator: TraceContextPropagator{},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SpanContext returns the inbound context the tracer was built with
func (t *Tracer) SpanContext() SpanContext {
	return t.sc
}

// HasRemoteParent reports whether the inbound context came off the wire.
func (t *Tracer) HasRemoteParent() bool {
	return t.remote
}

// Propagator returns the configured propagator
func (t *Tracer) Propagator() Propagator {
	return t.propagator
}

// Sampled resolves and returns the sampling decision. The sampler is
// consulted at most once per tracer.
func (t *Tracer) Sampled() bool {
	if !t.decided {
		t.sampled = t.sampler.ShouldSample(SamplingParameters{
			TraceID:       t.sc.TraceID,
			ParentSampled: t.sc.IsSampled(),
		})
		t.decided = true
	}
	return t.sampled
}

// StartSpan starts a span and makes it current. The first span's parent is
// the inbound span when the context came off the wire; nested spans are
// parented to the span that was current.
func (t *Tracer) StartSpan(name string, kind SpanKind) *Span {
	sampled := t.Sampled()

	var parent SpanID
	if cur := t.CurrentSpan(); cur != nil {
		parent = cur.SpanContext().SpanID
	} else if t.remote {
		parent = t.sc.SpanID
	}

	sc := SpanContext{
		TraceID:      t.sc.TraceID,
		TraceOptions: t.sc.TraceOptions.WithSampled(sampled),
		TraceState:   t.sc.TraceState,
	}
	span := NewSpan(name, kind, sc, parent)
	// A fresh span is always in the created state.
	_ = span.Start()

	t.stack = append(t.stack, span)
	return span
}

// CurrentSpan returns the innermost open span, or nil.
func (t *Tracer) CurrentSpan() *Span {
	if len(t.stack) == 0 {
		return nil
	}
	return t.stack[len(t.stack)-1]
}

// AddAttributeToCurrentSpan sets an attribute on the current span. It does
// nothing when there is no current span.
func (t *Tracer) AddAttributeToCurrentSpan(key string, value any) {
	if span := t.CurrentSpan(); span != nil {
		span.SetAttribute(key, value)
	}
}

// EndSpan ends the current span and makes its parent current.
func (t *Tracer) EndSpan() {
	span := t.CurrentSpan()
	if span == nil {
		return
	}
	span.End()
	t.stack = t.stack[:len(t.stack)-1]
	t.ended = append(t.ended, span)
}

// Finish ends any open spans and, when the trace is sampled, hands every
// ended span to the exporter in a single call. Unsampled spans are
// discarded. Later calls do nothing.
func (t *Tracer) Finish() {
	if t.finished {
		return
	}
	t.finished = true

	for len(t.stack) > 0 {
		t.EndSpan()
	}
	ended := t.ended
	t.ended = nil

	if len(ended) == 0 || !t.Sampled() {
		return
	}

	spans := make([]SpanData, len(ended))
	for i, s := range ended {
		spans[i] = s.Snapshot()
	}
	t.export(spans)
}

func (t *Tracer) export(spans []SpanData) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("exporter panicked",
				zap.String("trace_id", t.sc.TraceID.String()),
				zap.Any("panic", r),
			)
		}
	}()
	t.exporter.Export(spans)
}

// Inject encodes the current span's context, or the inbound context when no
// span is open, for an outbound call.
func (t *Tracer) Inject(carrier TextCarrier) {
	sc := t.sc
	if span := t.CurrentSpan(); span != nil {
		sc = span.SpanContext()
	}
	t.propagator.Encode(sc, carrier)
}
