package exporter

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"

	"github.com/GriffinCanCode/reqtrace/internal/infrastructure/tracing"
)

var testStart = time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

func testSpan(name string) tracing.SpanData {
	sc := tracing.NewRootSpanContext().WithSampled(true)
	return tracing.SpanData{
		Name:        name,
		Kind:        tracing.SpanKindServer,
		SpanContext: sc,
		StartTime:   testStart,
		EndTime:     testStart.Add(25 * time.Millisecond),
		Attributes: map[string]any{
			tracing.AttrHTTPMethod:     "GET",
			tracing.AttrHTTPStatusCode: int64(200),
		},
	}
}

func testSpans(n int) []tracing.SpanData {
	spans := make([]tracing.SpanData, n)
	for i := range spans {
		spans[i] = testSpan(fmt.Sprintf("span-%d", i))
	}
	return spans
}

func TestNewSpanRecord(t *testing.T) {
	s := testSpan("[GET]http://localhost/items/42")
	s.ParentSpanID = tracing.NewRootSpanContext().SpanID
	s.Status = &tracing.Status{Code: codes.Unknown, Message: "boom"}

	r := NewSpanRecord(s)

	assert.Equal(t, s.SpanContext.TraceID.String(), r.TraceID)
	assert.Equal(t, s.SpanContext.SpanID.String(), r.SpanID)
	assert.Equal(t, s.ParentSpanID.String(), r.ParentSpanID)
	assert.Equal(t, "SERVER", r.Kind)
	assert.InDelta(t, 25.0, r.DurationMS, 0.001)
	assert.True(t, r.Sampled)
	require.NotNil(t, r.Status)
	assert.Equal(t, int(codes.Unknown), r.Status.Code)
	assert.Equal(t, "Unknown", r.Status.Name)
	assert.Equal(t, "boom", r.Status.Message)
}

func TestNewSpanRecordWithoutParent(t *testing.T) {
	r := NewSpanRecord(testSpan("root"))

	assert.Empty(t, r.ParentSpanID)
	assert.Nil(t, r.Status)
}

func TestNewZipkinSpan(t *testing.T) {
	s := testSpan("[GET]http://localhost/")
	s.ParentSpanID = tracing.NewRootSpanContext().SpanID
	s.Status = &tracing.Status{Code: codes.Unknown, Message: "boom"}
	s.StackTrace = &tracing.StackTrace{Frames: []tracing.Frame{{Function: "main.fail", File: "main.go", Line: 3}}}

	z := NewZipkinSpan(s, "demo")

	assert.Equal(t, s.SpanContext.TraceID.String(), z.TraceID)
	assert.Equal(t, s.ParentSpanID.String(), z.ParentID)
	assert.Equal(t, "SERVER", z.Kind)
	assert.Equal(t, testStart.UnixMicro(), z.Timestamp)
	assert.Equal(t, int64(25000), z.Duration)
	require.NotNil(t, z.LocalEndpoint)
	assert.Equal(t, "demo", z.LocalEndpoint.ServiceName)
	assert.Equal(t, "GET", z.Tags[tracing.AttrHTTPMethod])
	assert.Equal(t, "200", z.Tags[tracing.AttrHTTPStatusCode])
	assert.Equal(t, "boom", z.Tags["error"])
	assert.Equal(t, "main.fail", z.Tags["code.function"])
}

func TestNewZipkinSpanMinimumDuration(t *testing.T) {
	s := testSpan("instant")
	s.EndTime = s.StartTime
	s.Attributes = nil
	s.Kind = tracing.SpanKindUnspecified

	z := NewZipkinSpan(s, "")

	assert.Equal(t, int64(1), z.Duration)
	assert.Empty(t, z.Kind)
	assert.Nil(t, z.LocalEndpoint)
	assert.Nil(t, z.Tags)
}
