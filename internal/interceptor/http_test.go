package interceptor

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"

	"github.com/GriffinCanCode/reqtrace/internal/infrastructure/tracing"
)

func TestMiddleware(t *testing.T) {
	i, rec := newTestInterceptor(nil)

	var handlerTracer *tracing.Tracer
	handler := Middleware(i)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerTracer = tracing.FromContext(r.Context())
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("created"))
	}))

	req := httptest.NewRequest(http.MethodPost, "/name?x=1", nil)
	req.Header.Set("traceparent", inboundTraceparent)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "created", w.Body.String())
	require.NotNil(t, handlerTracer)

	require.Equal(t, 1, rec.Calls())
	s := rec.Spans()[0]
	assert.Equal(t, "[POST]http://example.com/name?x=1", s.Name)
	assert.Equal(t, "example.com", s.Attributes[tracing.AttrHTTPHost])
	assert.Equal(t, int64(http.StatusCreated), s.Attributes[tracing.AttrHTTPStatusCode])
	assert.Equal(t, "b7ad6b7169203331", s.ParentSpanID.String())
	assert.Equal(t, codes.OK, s.StatusCode())
}

func TestMiddlewareDefaultStatus(t *testing.T) {
	i, rec := newTestInterceptor(nil)
	handler := Middleware(i)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, int64(http.StatusOK), rec.Spans()[0].Attributes[tracing.AttrHTTPStatusCode])
}

func TestMiddlewarePanicPropagates(t *testing.T) {
	i, rec := newTestInterceptor(nil)
	handler := Middleware(i)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.Panics(t, func() {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
	require.Equal(t, 1, rec.Calls())
	assert.Equal(t, codes.Unknown, rec.Spans()[0].StatusCode())
}

func TestStatusWriter(t *testing.T) {
	w := httptest.NewRecorder()
	sw := NewStatusWriter(w)
	assert.Equal(t, http.StatusOK, sw.Status())

	sw.WriteHeader(http.StatusNotFound)
	sw.WriteHeader(http.StatusInternalServerError)
	sw.Flush()

	assert.Equal(t, http.StatusNotFound, sw.Status(), "first status wins")
	assert.Same(t, w, sw.Unwrap())
	assert.True(t, w.Flushed)

	_, _, err := sw.Hijack()
	assert.Error(t, err)
}

func TestFullURL(t *testing.T) {
	tests := []struct {
		name  string
		setup func(r *http.Request)
		want  string
	}{
		{"plain", func(*http.Request) {}, "http://example.com/items/1"},
		{"tls", func(r *http.Request) { r.TLS = &tls.ConnectionState{} }, "https://example.com/items/1"},
		{"forwarded", func(r *http.Request) { r.Header.Set("X-Forwarded-Proto", "https") }, "https://example.com/items/1"},
		{"bogus forwarded", func(r *http.Request) { r.Header.Set("X-Forwarded-Proto", "gopher") }, "http://example.com/items/1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/items/1", nil)
			tt.setup(r)
			assert.Equal(t, tt.want, FullURL(r).String())
		})
	}
}
