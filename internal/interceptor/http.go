package interceptor

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"

	"github.com/GriffinCanCode/reqtrace/internal/infrastructure/tracing"
)

// RequestFromHTTP describes r for Handle. route may be empty.
func RequestFromHTTP(r *http.Request, route string) RequestInfo {
	return RequestInfo{
		Method:    r.Method,
		URL:       FullURL(r),
		Host:      r.Host,
		Route:     route,
		UserAgent: r.UserAgent(),
		Header:    tracing.HeaderCarrier(r.Header),
	}
}

// FullURL reconstructs the absolute URL of a server request.
func FullURL(r *http.Request) *url.URL {
	u := *r.URL
	if u.Scheme == "" {
		u.Scheme = "http"
		if r.TLS != nil {
			u.Scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
			u.Scheme = proto
		}
	}
	if u.Host == "" {
		u.Host = r.Host
	}
	return &u
}

// Middleware returns net/http middleware that traces every request through
// i.
func Middleware(i *Interceptor) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := NewStatusWriter(w)
			_, _ = i.Handle(r.Context(), RequestFromHTTP(r, ""), func(ctx context.Context) (Response, error) {
				next.ServeHTTP(sw, r.WithContext(ctx))
				return Response{StatusCode: sw.Status()}, nil
			})
		})
	}
}

// StatusWriter records the status code written through it.
type StatusWriter struct {
	http.ResponseWriter
	status  int
	written bool
}

// NewStatusWriter wraps w
func NewStatusWriter(w http.ResponseWriter) *StatusWriter {
	return &StatusWriter{ResponseWriter: w, status: http.StatusOK}
}

// Status returns the code sent, or 200 when nothing was written.
func (w *StatusWriter) Status() int {
	return w.status
}

func (w *StatusWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *StatusWriter) Write(b []byte) (int, error) {
	w.written = true
	return w.ResponseWriter.Write(b)
}

// Flush forwards to the underlying writer when it supports flushing.
func (w *StatusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		w.written = true
		f.Flush()
	}
}

// Hijack forwards to the underlying writer when it supports hijacking.
func (w *StatusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (w *StatusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
