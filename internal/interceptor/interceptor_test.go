package interceptor

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/grpc/codes"

	"github.com/GriffinCanCode/reqtrace/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/reqtrace/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/reqtrace/internal/infrastructure/tracing/tracingtest"
)

const inboundTraceparent = "00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01"

func newTestInterceptor(settings *Settings) (*Interceptor, *tracingtest.Recorder) {
	rec := tracingtest.NewRecorder()
	if settings == nil {
		settings = &Settings{}
	}
	settings.Exporter = rec
	return New(settings), rec
}

func get(rawURL string, header http.Header) RequestInfo {
	u, _ := url.Parse(rawURL)
	if header == nil {
		header = http.Header{}
	}
	return RequestInfo{
		Method: http.MethodGet,
		URL:    u,
		Host:   u.Host,
		Header: tracing.HeaderCarrier(header),
	}
}

func ok(status int) Continuation {
	return func(context.Context) (Response, error) {
		return Response{StatusCode: status}, nil
	}
}

func TestHandleRecordsServerSpan(t *testing.T) {
	i, rec := newTestInterceptor(nil)

	req := get("http://localhost:8000/items/42?q=1", nil)
	req.Route = "/items/:id"
	req.UserAgent = "test-agent"

	resp, err := i.Handle(context.Background(), req, ok(http.StatusOK))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.Equal(t, 1, rec.Calls(), "exactly one export per request")
	spans := rec.Spans()
	require.Len(t, spans, 1)
	s := spans[0]

	assert.Equal(t, "[GET]http://localhost:8000/items/42?q=1", s.Name)
	assert.Equal(t, tracing.SpanKindServer, s.Kind)
	assert.False(t, s.HasParent())
	assert.Equal(t, "localhost", s.Attributes[tracing.AttrHTTPHost])
	assert.Equal(t, "GET", s.Attributes[tracing.AttrHTTPMethod])
	assert.Equal(t, "/items/42", s.Attributes[tracing.AttrHTTPPath])
	assert.Equal(t, "http://localhost:8000/items/42?q=1", s.Attributes[tracing.AttrHTTPURL])
	assert.Equal(t, "/items/:id", s.Attributes[tracing.AttrHTTPRoute])
	assert.Equal(t, "test-agent", s.Attributes[tracing.AttrHTTPUserAgent])
	assert.Equal(t, int64(200), s.Attributes[tracing.AttrHTTPStatusCode])
	assert.Equal(t, codes.OK, s.StatusCode())
	assert.False(t, s.EndTime.Before(s.StartTime))
}

func TestHandleRouteDefaultsToPath(t *testing.T) {
	i, rec := newTestInterceptor(nil)

	_, err := i.Handle(context.Background(), get("http://localhost/", nil), ok(http.StatusOK))
	require.NoError(t, err)

	assert.Equal(t, "/", rec.Spans()[0].Attributes[tracing.AttrHTTPRoute])
}

func TestHandleContinuesInboundTrace(t *testing.T) {
	i, rec := newTestInterceptor(nil)
	header := http.Header{}
	header.Set("traceparent", inboundTraceparent)
	header.Set("tracestate", "vendor=opaque")

	var seen tracing.SpanContext
	_, err := i.Handle(context.Background(), get("http://localhost/", header), func(ctx context.Context) (Response, error) {
		sc, ok := tracing.CurrentSpanContext(ctx)
		require.True(t, ok)
		seen = sc
		return Response{StatusCode: http.StatusOK}, nil
	})
	require.NoError(t, err)

	s := rec.Spans()[0]
	assert.Equal(t, "0af7651916cd43dd8448eb211c80319c", s.SpanContext.TraceID.String())
	assert.Equal(t, "b7ad6b7169203331", s.ParentSpanID.String())
	assert.NotEqual(t, "b7ad6b7169203331", s.SpanContext.SpanID.String())
	assert.Equal(t, tracing.TraceState("vendor=opaque"), s.SpanContext.TraceState)
	assert.Equal(t, s.SpanContext, seen, "handler sees the server span")
}

func TestHandleMalformedHeaderStartsNewTrace(t *testing.T) {
	i, rec := newTestInterceptor(nil)
	header := http.Header{}
	header.Set("traceparent", "garbage")

	_, err := i.Handle(context.Background(), get("http://localhost/", header), ok(http.StatusOK))
	require.NoError(t, err)

	s := rec.Spans()[0]
	assert.True(t, s.SpanContext.TraceID.IsValid())
	assert.False(t, s.HasParent())
}

func TestHandleUnsampledDiscards(t *testing.T) {
	i, rec := newTestInterceptor(&Settings{Sampler: tracing.AlwaysOffSampler{}})

	called := false
	resp, err := i.Handle(context.Background(), get("http://localhost/", nil), func(ctx context.Context) (Response, error) {
		called = true
		assert.NotNil(t, tracing.FromContext(ctx), "unsampled requests still carry a tracer")
		return Response{StatusCode: http.StatusAccepted}, nil
	})

	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Zero(t, rec.Calls())
}

func TestHandleDenyList(t *testing.T) {
	settings := &Settings{
		BlacklistPaths:     []string{"/health", "internal/**", "/static/*.css"},
		BlacklistHostnames: []string{"localhost", "*.internal.example.com"},
	}

	tests := []struct {
		name   string
		url    string
		denied bool
	}{
		{"exact path", "http://api.example.com/health", true},
		{"path prefix", "http://api.example.com/healthz", true},
		{"doublestar", "http://api.example.com/internal/debug/vars", true},
		{"single star", "http://api.example.com/static/site.css", true},
		{"single star does not cross segments", "http://api.example.com/static/css/site.css", false},
		{"traced path", "http://api.example.com/items/1", false},
		{"host", "http://localhost:8000/items/1", true},
		{"host wildcard", "http://db.internal.example.com/items", true},
		{"wildcard needs a subdomain", "http://internal.example.com/items", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			i, rec := newTestInterceptor(&Settings{
				BlacklistPaths:     settings.BlacklistPaths,
				BlacklistHostnames: settings.BlacklistHostnames,
			})

			var traced bool
			_, err := i.Handle(context.Background(), get(tt.url, nil), func(ctx context.Context) (Response, error) {
				traced = tracing.FromContext(ctx) != nil
				return Response{StatusCode: http.StatusOK}, nil
			})
			require.NoError(t, err)

			assert.Equal(t, !tt.denied, traced)
			if tt.denied {
				assert.Zero(t, rec.Calls())
			} else {
				assert.Equal(t, 1, rec.Calls())
			}
		})
	}
}

func TestHandleDeniedErrorsPassThrough(t *testing.T) {
	i, rec := newTestInterceptor(&Settings{BlacklistPaths: []string{"/health"}})
	boom := errors.New("boom")

	_, err := i.Handle(context.Background(), get("http://localhost/health", nil), func(context.Context) (Response, error) {
		return Response{}, boom
	})

	assert.Same(t, boom, err)
	assert.Zero(t, rec.Calls())
}

func TestHandleRecordsHandlerError(t *testing.T) {
	i, rec := newTestInterceptor(nil)
	boom := errors.New("boom")

	_, err := i.Handle(context.Background(), get("http://localhost/fail", nil), func(context.Context) (Response, error) {
		return Response{}, boom
	})

	assert.Same(t, boom, err, "handler error is returned unchanged")
	require.Equal(t, 1, rec.Calls())
	s := rec.Spans()[0]
	require.NotNil(t, s.Status)
	assert.Equal(t, codes.Unknown, s.Status.Code)
	assert.Equal(t, "boom", s.Status.Message)
	require.NotNil(t, s.StackTrace)
	assert.NotEmpty(t, s.StackTrace.Frames)
	assert.Equal(t, "*errors.errorString", s.Attributes[tracing.AttrErrorType])
}

type stackError struct {
	stack tracing.StackTrace
}

func (e *stackError) Error() string                  { return "with stack" }
func (e *stackError) StackTrace() tracing.StackTrace { return e.stack }

func TestHandlePrefersErrorStack(t *testing.T) {
	i, rec := newTestInterceptor(nil)
	want := tracing.StackTrace{Frames: []tracing.Frame{{Function: "origin.fn", File: "origin.go", Line: 7}}}

	_, err := i.Handle(context.Background(), get("http://localhost/", nil), func(context.Context) (Response, error) {
		return Response{}, &stackError{stack: want}
	})
	require.Error(t, err)

	assert.Equal(t, &want, rec.Spans()[0].StackTrace)
}

func TestHandlePanicIsRecordedAndReraised(t *testing.T) {
	i, rec := newTestInterceptor(nil)

	assert.PanicsWithValue(t, "kaboom", func() {
		_, _ = i.Handle(context.Background(), get("http://localhost/", nil), func(context.Context) (Response, error) {
			panic("kaboom")
		})
	})

	require.Equal(t, 1, rec.Calls())
	s := rec.Spans()[0]
	assert.Equal(t, codes.Unknown, s.Status.Code)
	assert.Equal(t, "kaboom", s.Status.Message)
	assert.Equal(t, "panic", s.Attributes[tracing.AttrErrorType])
	require.NotNil(t, s.StackTrace)
	require.NotEmpty(t, s.StackTrace.Frames)
	assert.Contains(t, s.StackTrace.Frames[0].Function, "TestHandlePanicIsRecordedAndReraised")
}

func TestHandleCancellation(t *testing.T) {
	tests := []struct {
		name string
		ctx  func() (context.Context, context.CancelFunc)
		err  error
		code codes.Code
	}{
		{
			name: "handler reports cancellation",
			ctx:  func() (context.Context, context.CancelFunc) { return context.WithCancel(context.Background()) },
			err:  context.Canceled,
			code: codes.Canceled,
		},
		{
			name: "deadline",
			ctx:  func() (context.Context, context.CancelFunc) { return context.WithTimeout(context.Background(), 0) },
			err:  context.DeadlineExceeded,
			code: codes.DeadlineExceeded,
		},
		{
			name: "client gone while handler succeeded",
			ctx: func() (context.Context, context.CancelFunc) {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx, cancel
			},
			code: codes.Canceled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			i, rec := newTestInterceptor(nil)
			ctx, cancel := tt.ctx()
			defer cancel()

			_, err := i.Handle(ctx, get("http://localhost/slow", nil), func(context.Context) (Response, error) {
				return Response{}, tt.err
			})
			assert.Equal(t, tt.err, err)

			require.Equal(t, 1, rec.Calls())
			s := rec.Spans()[0]
			assert.Equal(t, tt.code, s.Status.Code)
			assert.Equal(t, true, s.Attributes[tracing.AttrCancelled])
			assert.Nil(t, s.StackTrace)
		})
	}
}

func TestHandleStatusFromHTTPCode(t *testing.T) {
	tests := []struct {
		status int
		code   codes.Code
	}{
		{http.StatusOK, codes.OK},
		{http.StatusNotFound, codes.NotFound},
		{http.StatusServiceUnavailable, codes.Unavailable},
		{http.StatusInternalServerError, codes.Internal},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			i, rec := newTestInterceptor(nil)

			_, err := i.Handle(context.Background(), get("http://localhost/", nil), ok(tt.status))
			require.NoError(t, err)

			assert.Equal(t, tt.code, rec.Spans()[0].StatusCode())
		})
	}
}

func TestHandleNestedSpans(t *testing.T) {
	i, rec := newTestInterceptor(nil)

	_, err := i.Handle(context.Background(), get("http://localhost/", nil), func(ctx context.Context) (Response, error) {
		tracer := tracing.FromContext(ctx)
		tracer.StartSpan("db.query", tracing.SpanKindClient)
		tracer.EndSpan()
		// left open on purpose; Finish must close it
		tracer.StartSpan("cache.get", tracing.SpanKindClient)
		return Response{StatusCode: http.StatusOK}, nil
	})
	require.NoError(t, err)

	require.Equal(t, 1, rec.Calls())
	spans := rec.Spans()
	require.Len(t, spans, 3)

	byName := map[string]tracing.SpanData{}
	for _, s := range spans {
		byName[s.Name] = s
	}
	server := byName["[GET]http://localhost/"]
	assert.Equal(t, server.SpanContext.SpanID, byName["db.query"].ParentSpanID)
	assert.Equal(t, server.SpanContext.SpanID, byName["cache.get"].ParentSpanID)
	for _, s := range spans {
		assert.Equal(t, server.SpanContext.TraceID, s.SpanContext.TraceID)
	}
}

func TestHandleSurvivesExporterPanic(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	panicking := new(tracingtest.MockExporter)
	panicking.On("Export", mock.Anything).Panic("collector exploded")

	i := New(&Settings{Exporter: panicking}, WithLogger(zap.New(core)))

	resp, err := i.Handle(context.Background(), get("http://localhost/", nil), ok(http.StatusOK))

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, logs.FilterMessage("exporter panicked").Len())
}

type panickingSampler struct{}

func (panickingSampler) ShouldSample(tracing.SamplingParameters) bool { panic("sampler bug") }
func (panickingSampler) Description() string                          { return "panicking" }

func TestHandleServesUntracedWhenTracingFails(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	rec := tracingtest.NewRecorder()
	i := New(&Settings{Sampler: panickingSampler{}, Exporter: rec}, WithLogger(zap.New(core)))

	called := false
	resp, err := i.Handle(context.Background(), get("http://localhost/", nil), func(context.Context) (Response, error) {
		called = true
		return Response{StatusCode: http.StatusOK}, nil
	})

	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Zero(t, rec.Calls())
	assert.Equal(t, 1, logs.FilterMessage("tracing failed, serving request untraced").Len())
}

func TestHandleCountsStartedSpans(t *testing.T) {
	metrics := monitoring.NewMetrics()
	i := New(&Settings{Exporter: tracingtest.NewRecorder(), Sampler: tracing.AlwaysOffSampler{}}, WithMetrics(metrics))

	for range 3 {
		_, _ = i.Handle(context.Background(), get("http://localhost/", nil), ok(http.StatusOK))
	}

	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.SpansStarted.WithLabelValues("false")))
}

func TestReconfigure(t *testing.T) {
	i, first := newTestInterceptor(nil)
	second := tracingtest.NewRecorder()

	prev := i.Reconfigure(&Settings{Exporter: second, BlacklistPaths: []string{"/skip"}})
	assert.Same(t, first, prev.Exporter)

	_, _ = i.Handle(context.Background(), get("http://localhost/items", nil), ok(http.StatusOK))
	_, _ = i.Handle(context.Background(), get("http://localhost/skip", nil), ok(http.StatusOK))

	assert.Zero(t, first.Calls())
	assert.Equal(t, 1, second.Calls())
}

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()

	require.IsType(t, tracing.ProbabilitySampler{}, s.Sampler)
	assert.Equal(t, 1.0, s.Sampler.(tracing.ProbabilitySampler).Probability())
	assert.IsType(t, &tracing.PrintExporter{}, s.Exporter)
	assert.IsType(t, tracing.TraceContextPropagator{}, s.Propagator)
}

func TestNormalizeCopies(t *testing.T) {
	paths := []string{"/a"}
	s := (&Settings{BlacklistPaths: paths}).Normalize()
	paths[0] = "/changed"

	assert.Equal(t, []string{"/a"}, s.BlacklistPaths)
	assert.True(t, strings.HasPrefix(s.Sampler.Description(), "ProbabilitySampler"))
}
