package tracing

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

const (
	TraceparentHeader       = "traceparent"
	TracestateHeader        = "tracestate"
	CloudTraceContextHeader = "X-Cloud-Trace-Context"

	traceparentVersion = "00"
	maxTraceStateLen   = 512
	maxTraceStateItems = 32
)

// TextCarrier is a string key/value store that trace context is read from
// and written to.
type TextCarrier interface {
	Get(key string) string
	Set(key, value string)
}

// HeaderCarrier adapts http.Header. Keys are canonicalized by http.Header.
type HeaderCarrier http.Header

func (h HeaderCarrier) Get(key string) string { return http.Header(h).Get(key) }

func (h HeaderCarrier) Set(key, value string) { http.Header(h).Set(key, value) }

// MapCarrier adapts a plain map. Lookups are case-insensitive.
type MapCarrier map[string]string

func (m MapCarrier) Get(key string) string {
	if v, ok := m[key]; ok {
		return v
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

func (m MapCarrier) Set(key, value string) { m[key] = value }

// Propagator translates SpanContext to and from wire headers.
//
// Decode never fails: a missing or malformed header yields a fresh root
// context and ok=false. ok is true only when the context came off the wire.
// Encode output is always accepted by Decode of the same propagator.
type Propagator interface {
	Decode(carrier TextCarrier) (sc SpanContext, ok bool)
	Encode(sc SpanContext, carrier TextCarrier)
	Fields() []string
}

// EncodeToMap encodes sc into a new map
func EncodeToMap(p Propagator, sc SpanContext) map[string]string {
	m := make(map[string]string, len(p.Fields()))
	p.Encode(sc, MapCarrier(m))
	return m
}

// DecodeFromMap decodes a plain header map, falling back to a fresh root
// context. DecodeFromMap(p, EncodeToMap(p, sc)) == sc for any valid sc.
func DecodeFromMap(p Propagator, headers map[string]string) SpanContext {
	sc, _ := p.Decode(MapCarrier(headers))
	return sc
}

// TraceContextPropagator implements the W3C traceparent/tracestate format:
//
//	traceparent: 00-<32 hex trace id>-<16 hex span id>-<2 hex flags>
type TraceContextPropagator struct{}

// Fields returns the headers this propagator reads and writes
func (TraceContextPropagator) Fields() []string {
	return []string{TraceparentHeader, TracestateHeader}
}

// Decode parses traceparent and tracestate from the carrier
func (p TraceContextPropagator) Decode(carrier TextCarrier) (SpanContext, bool) {
	sc, err := parseTraceparent(carrier.Get(TraceparentHeader))
	if err != nil {
		return NewRootSpanContext(), false
	}
	sc.TraceState = parseTraceState(carrier.Get(TracestateHeader))
	return sc, true
}

// Encode writes the canonical lower-case traceparent, plus tracestate when
// the context carries one.
func (TraceContextPropagator) Encode(sc SpanContext, carrier TextCarrier) {
	carrier.Set(TraceparentHeader, fmt.Sprintf("%s-%s-%s-%02x",
		traceparentVersion, sc.TraceID, sc.SpanID, byte(sc.TraceOptions)))
	if sc.TraceState != "" {
		carrier.Set(TracestateHeader, string(sc.TraceState))
	}
}

func parseTraceparent(header string) (SpanContext, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return SpanContext{}, fmt.Errorf("missing %s", TraceparentHeader)
	}

	parts := strings.Split(strings.ToLower(header), "-")
	if len(parts) < 4 {
		return SpanContext{}, fmt.Errorf("want 4 fields, got %d", len(parts))
	}

	version := parts[0]
	if len(version) != 2 || !isHex(version) || version == "ff" {
		return SpanContext{}, fmt.Errorf("bad version %q", version)
	}
	// Version 00 has exactly four fields; later versions may append more.
	if version == traceparentVersion && len(parts) != 4 {
		return SpanContext{}, fmt.Errorf("version 00 wants 4 fields, got %d", len(parts))
	}

	traceID, err := TraceIDFromHex(parts[1])
	if err != nil {
		return SpanContext{}, err
	}
	spanID, err := SpanIDFromHex(parts[2])
	if err != nil {
		return SpanContext{}, err
	}
	if len(parts[3]) != 2 || !isHex(parts[3]) {
		return SpanContext{}, fmt.Errorf("bad flags %q", parts[3])
	}
	flags, _ := strconv.ParseUint(parts[3], 16, 8)

	return SpanContext{
		TraceID:      traceID,
		SpanID:       spanID,
		TraceOptions: TraceOptions(flags),
	}, nil
}

// parseTraceState keeps the header verbatim when it is within the W3C
// limits and drops it otherwise.
func parseTraceState(header string) TraceState {
	if header == "" || len(header) > maxTraceStateLen {
		return ""
	}
	ts := TraceState(header)
	if n := ts.Members(); n == 0 || n > maxTraceStateItems {
		return ""
	}
	return ts
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// CloudTraceContextPropagator implements the Google Cloud header:
//
//	X-Cloud-Trace-Context: TRACE_ID/SPAN_ID;o=OPTIONS
//
// TRACE_ID is 32 hex chars, SPAN_ID an unsigned decimal and o=1 marks the
// trace sampled. Trace state is not carried.
type CloudTraceContextPropagator struct{}

// Fields returns the header this propagator reads and writes
func (CloudTraceContextPropagator) Fields() []string {
	return []string{CloudTraceContextHeader}
}

// Decode parses X-Cloud-Trace-Context from the carrier
func (CloudTraceContextPropagator) Decode(carrier TextCarrier) (SpanContext, bool) {
	header := strings.TrimSpace(carrier.Get(CloudTraceContextHeader))
	traceHex, rest, ok := strings.Cut(header, "/")
	if !ok {
		return NewRootSpanContext(), false
	}
	traceID, err := TraceIDFromHex(strings.ToLower(traceHex))
	if err != nil {
		return NewRootSpanContext(), false
	}

	spanDec, opts, _ := strings.Cut(rest, ";")
	n, err := strconv.ParseUint(spanDec, 10, 64)
	if err != nil || n == 0 {
		return NewRootSpanContext(), false
	}
	var spanID SpanID
	for i := 7; i >= 0; i-- {
		spanID[i] = byte(n)
		n >>= 8
	}

	sc := SpanContext{TraceID: traceID, SpanID: spanID}
	if opts != "" {
		key, val, _ := strings.Cut(opts, "=")
		if key != "o" {
			return NewRootSpanContext(), false
		}
		o, err := strconv.ParseUint(val, 10, 8)
		if err != nil {
			return NewRootSpanContext(), false
		}
		sc.TraceOptions = sc.TraceOptions.WithSampled(o&1 == 1)
	}
	return sc, true
}

// Encode writes X-Cloud-Trace-Context
func (CloudTraceContextPropagator) Encode(sc SpanContext, carrier TextCarrier) {
	var n uint64
	for _, b := range sc.SpanID {
		n = n<<8 | uint64(b)
	}
	sampled := 0
	if sc.IsSampled() {
		sampled = 1
	}
	carrier.Set(CloudTraceContextHeader, fmt.Sprintf("%s/%d;o=%d", sc.TraceID, n, sampled))
}
