package tracing

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/GriffinCanCode/reqtrace/internal/shared/id"
)

var (
	ErrInvalidTraceID = errors.New("invalid trace id")
	ErrInvalidSpanID  = errors.New("invalid span id")
)

// TraceID is the 128-bit identifier shared by every span of one trace.
type TraceID [16]byte

// SpanID is the 64-bit identifier of a single span.
type SpanID [8]byte

// String returns the lower-case hex form
func (t TraceID) String() string {
	return hex.EncodeToString(t[:])
}

// IsValid reports whether the id is non-zero
func (t TraceID) IsValid() bool {
	return t != TraceID{}
}

// String returns the lower-case hex form
func (s SpanID) String() string {
	return hex.EncodeToString(s[:])
}

// IsValid reports whether the id is non-zero
func (s SpanID) IsValid() bool {
	return s != SpanID{}
}

// TraceIDFromHex parses exactly 32 hex characters. All-zero ids are rejected.
func TraceIDFromHex(s string) (TraceID, error) {
	var t TraceID
	if err := decodeHexID(t[:], s); err != nil {
		return TraceID{}, fmt.Errorf("%w: %v", ErrInvalidTraceID, err)
	}
	if !t.IsValid() {
		return TraceID{}, fmt.Errorf("%w: all zero", ErrInvalidTraceID)
	}
	return t, nil
}

// SpanIDFromHex parses exactly 16 hex characters. All-zero ids are rejected.
func SpanIDFromHex(s string) (SpanID, error) {
	var sid SpanID
	if err := decodeHexID(sid[:], s); err != nil {
		return SpanID{}, fmt.Errorf("%w: %v", ErrInvalidSpanID, err)
	}
	if !sid.IsValid() {
		return SpanID{}, fmt.Errorf("%w: all zero", ErrInvalidSpanID)
	}
	return sid, nil
}

func decodeHexID(dst []byte, s string) error {
	if len(s) != hex.EncodedLen(len(dst)) {
		return fmt.Errorf("want %d hex chars, got %d", hex.EncodedLen(len(dst)), len(s))
	}
	_, err := hex.Decode(dst, []byte(s))
	return err
}

// TraceOptions is the bitfield carried in the flags byte of the wire header.
type TraceOptions byte

// SampledFlag is bit 0 of TraceOptions.
const SampledFlag TraceOptions = 0x01

// IsSampled reports whether the sampled bit is set
func (o TraceOptions) IsSampled() bool {
	return o&SampledFlag == SampledFlag
}

// WithSampled returns a copy with the sampled bit set or cleared
func (o TraceOptions) WithSampled(sampled bool) TraceOptions {
	if sampled {
		return o | SampledFlag
	}
	return o &^ SampledFlag
}

// TraceState is the opaque vendor list that travels next to the trace header.
// It is forwarded exactly as received.
type TraceState string

// Get returns the value of the first member with the given key.
func (ts TraceState) Get(key string) string {
	for _, member := range strings.Split(string(ts), ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(member), "=")
		if ok && k == key {
			return v
		}
	}
	return ""
}

// Members returns the number of non-empty list members.
func (ts TraceState) Members() int {
	n := 0
	for _, member := range strings.Split(string(ts), ",") {
		if strings.TrimSpace(member) != "" {
			n++
		}
	}
	return n
}

// SpanContext identifies a span within a trace. It is a comparable value and
// never mutated after construction; the With* helpers return copies.
type SpanContext struct {
	TraceID      TraceID
	SpanID       SpanID
	TraceOptions TraceOptions
	TraceState   TraceState
}

// NewRootSpanContext mints fresh ids with the sampled bit unset.
func NewRootSpanContext() SpanContext {
	return SpanContext{
		TraceID: TraceID(id.NewTraceID()),
		SpanID:  SpanID(id.NewSpanID()),
	}
}

// IsValid reports whether both ids are non-zero
func (sc SpanContext) IsValid() bool {
	return sc.TraceID.IsValid() && sc.SpanID.IsValid()
}

// IsSampled reports the sampled bit
func (sc SpanContext) IsSampled() bool {
	return sc.TraceOptions.IsSampled()
}

// WithSpanID returns a copy carrying a different span id
func (sc SpanContext) WithSpanID(spanID SpanID) SpanContext {
	sc.SpanID = spanID
	return sc
}

// WithSampled returns a copy with the sampled bit updated
func (sc SpanContext) WithSampled(sampled bool) SpanContext {
	sc.TraceOptions = sc.TraceOptions.WithSampled(sampled)
	return sc
}

// String formats the context for log lines
func (sc SpanContext) String() string {
	return fmt.Sprintf("[trace:%s span:%s sampled:%t]", sc.TraceID, sc.SpanID, sc.IsSampled())
}
