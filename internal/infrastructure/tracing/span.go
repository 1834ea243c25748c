package tracing

import (
	"errors"
	"fmt"
	"math"
	"time"

	"google.golang.org/grpc/codes"

	"github.com/GriffinCanCode/reqtrace/internal/shared/id"
)

// ErrInvalidState is returned when a span operation is called out of order.
var ErrInvalidState = errors.New("span: invalid state")

// SpanKind describes the role of a span in an RPC.
type SpanKind int

const (
	SpanKindUnspecified SpanKind = iota
	SpanKindServer
	SpanKindClient
)

// String returns the string representation of the kind
func (k SpanKind) String() string {
	switch k {
	case SpanKindServer:
		return "SERVER"
	case SpanKindClient:
		return "CLIENT"
	default:
		return "UNSPECIFIED"
	}
}

// SpanState is the lifecycle position of a span.
type SpanState int

const (
	SpanCreated SpanState = iota
	SpanActive
	SpanEnded
)

// String returns the string representation of the state
func (s SpanState) String() string {
	switch s {
	case SpanCreated:
		return "created"
	case SpanActive:
		return "active"
	case SpanEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Span is a timed record of one unit of request processing.
//
// A span belongs to the goroutine handling its request and is not safe for
// concurrent use. Mutators are only honoured while the span is active; once
// End has run the span is frozen and exporters receive a SpanData copy.
type Span struct {
	name       string
	kind       SpanKind
	sc         SpanContext
	parentID   SpanID
	state      SpanState
	startTime  time.Time
	endTime    time.Time
	attributes map[string]any
	status     *Status
	stackTrace *StackTrace
}

// NewSpan creates a span in the created state. The trace id, options and
// trace state come from sc; the span id is allocated by Start.
func NewSpan(name string, kind SpanKind, sc SpanContext, parentID SpanID) *Span {
	return &Span{
		name:       name,
		kind:       kind,
		sc:         sc.WithSpanID(SpanID{}),
		parentID:   parentID,
		attributes: make(map[string]any),
	}
}

// Start allocates the span id and records the start time.
func (s *Span) Start() error {
	if s.state != SpanCreated {
		return fmt.Errorf("%w: start called on %s span", ErrInvalidState, s.state)
	}
	s.sc = s.sc.WithSpanID(SpanID(id.NewSpanID()))
	s.startTime = time.Now()
	s.state = SpanActive
	return nil
}

// End records the end time. Calling it again is a no-op.
func (s *Span) End() {
	if s.state == SpanEnded {
		return
	}
	s.endTime = time.Now()
	if s.state == SpanCreated {
		s.startTime = s.endTime
	}
	s.state = SpanEnded
}

func (s *Span) Name() string             { return s.name }
func (s *Span) Kind() SpanKind           { return s.kind }
func (s *Span) State() SpanState         { return s.state }
func (s *Span) SpanContext() SpanContext { return s.sc }
func (s *Span) ParentSpanID() SpanID     { return s.parentID }
func (s *Span) StartTime() time.Time     { return s.startTime }
func (s *Span) EndTime() time.Time       { return s.endTime }
func (s *Span) Status() *Status          { return s.status }
func (s *Span) StackTrace() *StackTrace  { return s.stackTrace }
func (s *Span) IsRecording() bool        { return s.state == SpanActive }
func (s *Span) Attribute(key string) any { return s.attributes[key] }

// Attributes returns a copy of the attribute map
func (s *Span) Attributes() map[string]any {
	out := make(map[string]any, len(s.attributes))
	for k, v := range s.attributes {
		out[k] = v
	}
	return out
}

// SetName renames the span. Ignored once ended.
func (s *Span) SetName(name string) {
	if s.state != SpanEnded {
		s.name = name
	}
}

// SetKind changes the span kind. Ignored once ended.
func (s *Span) SetKind(kind SpanKind) {
	if s.state != SpanEnded {
		s.kind = kind
	}
}

// SetAttribute stores value under key, replacing any previous value.
// Strings, booleans, integers and floats are kept as-is (integers widened to
// int64, floats to float64); anything else is stored as its string form.
// Ignored unless the span is active.
func (s *Span) SetAttribute(key string, value any) {
	if s.state != SpanActive {
		return
	}
	s.attributes[key] = coerceAttribute(value)
}

// RecordStatus sets the span status.
func (s *Span) RecordStatus(code codes.Code, message string) error {
	if s.state != SpanActive {
		return fmt.Errorf("%w: record status on %s span", ErrInvalidState, s.state)
	}
	s.status = &Status{Code: code, Message: message}
	return nil
}

// AttachStackTrace stores a captured stack on the span.
func (s *Span) AttachStackTrace(st StackTrace) error {
	if s.state != SpanActive {
		return fmt.Errorf("%w: attach stack trace on %s span", ErrInvalidState, s.state)
	}
	s.stackTrace = &st
	return nil
}

// Snapshot copies the span into a SpanData.
func (s *Span) Snapshot() SpanData {
	data := SpanData{
		Name:         s.name,
		Kind:         s.kind,
		SpanContext:  s.sc,
		ParentSpanID: s.parentID,
		StartTime:    s.startTime,
		EndTime:      s.endTime,
		Attributes:   s.Attributes(),
	}
	if s.status != nil {
		st := *s.status
		data.Status = &st
	}
	if s.stackTrace != nil {
		frames := make([]Frame, len(s.stackTrace.Frames))
		copy(frames, s.stackTrace.Frames)
		data.StackTrace = &StackTrace{Frames: frames, DroppedFrames: s.stackTrace.DroppedFrames}
	}
	return data
}

// SpanData is the immutable record handed to exporters.
type SpanData struct {
	Name         string
	Kind         SpanKind
	SpanContext  SpanContext
	ParentSpanID SpanID
	StartTime    time.Time
	EndTime      time.Time
	Attributes   map[string]any
	Status       *Status
	StackTrace   *StackTrace
}

// Duration is EndTime minus StartTime
func (d SpanData) Duration() time.Duration {
	return d.EndTime.Sub(d.StartTime)
}

// HasParent reports whether the span has a parent span id
func (d SpanData) HasParent() bool {
	return d.ParentSpanID.IsValid()
}

// StatusCode returns the recorded code, or OK when none was recorded
func (d SpanData) StatusCode() codes.Code {
	if d.Status == nil {
		return codes.OK
	}
	return d.Status.Code
}

func coerceAttribute(value any) any {
	switch v := value.(type) {
	case string, bool, int64, float64:
		return v
	case int:
		return int64(v)
	case int8:
		return int64(v)
	case int16:
		return int64(v)
	case int32:
		return int64(v)
	case uint:
		return coerceUint(uint64(v))
	case uint8:
		return int64(v)
	case uint16:
		return int64(v)
	case uint32:
		return int64(v)
	case uint64:
		return coerceUint(v)
	case float32:
		return float64(v)
	default:
		// fmt handles nil values and recovers from panicking String methods.
		return fmt.Sprint(v)
	}
}

func coerceUint(v uint64) any {
	if v > math.MaxInt64 {
		return fmt.Sprint(v)
	}
	return int64(v)
}
