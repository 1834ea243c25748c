/*
Package tracing is the request tracing pipeline.

# Overview

Every inbound request gets its own Tracer. The tracer is seeded with a
SpanContext decoded from the request headers by a Propagator, asks a Sampler
once whether the trace is recorded, and opens spans that collect attributes,
a status and an optional stack trace. When the request completes, Finish
hands the ended spans to the Exporter in one call, or drops them when the
trace was not sampled.

Tracers and spans are confined to the goroutine serving their request. The
sampler, propagator and exporter are shared by all requests and must be safe
for concurrent use.

# Propagation

Two wire formats are provided:
- TraceContextPropagator: W3C traceparent/tracestate (default)
- CloudTraceContextPropagator: X-Cloud-Trace-Context

Decode never fails. A missing or malformed header yields a fresh root
context with the sampled bit unset.

# Sampling

ProbabilitySampler keeps a trace when its parent was sampled, and otherwise
compares the low 8 bytes of the trace id against the configured fraction, so
every service sampling at the same rate agrees on the same traces.
AlwaysOnSampler and AlwaysOffSampler are fixed decisions.

# Usage

	opts := []tracing.Option{
		tracing.WithSampler(tracing.NewProbabilitySampler(0.25)),
		tracing.WithExporter(exp),
	}
	sc, ok := tracing.TraceContextPropagator{}.Decode(tracing.HeaderCarrier(r.Header))
	if ok {
		opts = append(opts, tracing.WithRemoteParent())
	}
	tracer := tracing.New(sc, opts...)
	defer tracer.Finish()

	tracer.StartSpan("[GET]/items/42", tracing.SpanKindServer)
	defer tracer.EndSpan()
	tracer.AddAttributeToCurrentSpan(tracing.AttrHTTPMethod, "GET")

	ctx = tracing.NewContext(ctx, tracer)
	tracing.AddAttribute(ctx, "cache.hit", true)

Exporters beyond PrintExporter live in the exporter subpackage.
*/
package tracing
