package monitoring

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsIndependentRegistries(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()

	a.RecordSpanStarted(true)

	assert.Equal(t, float64(1), testutil.ToFloat64(a.SpansStarted.WithLabelValues("true")))
	assert.Equal(t, float64(0), testutil.ToFloat64(b.SpansStarted.WithLabelValues("true")))
}

func TestRecordExport(t *testing.T) {
	m := NewMetrics()

	m.RecordExport("zipkin", 5, 10*time.Millisecond, nil)
	m.RecordExport("zipkin", 3, 10*time.Millisecond, errors.New("down"))

	assert.Equal(t, float64(5), testutil.ToFloat64(m.SpansExported.WithLabelValues("zipkin")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ExportBatches.WithLabelValues("zipkin", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ExportBatches.WithLabelValues("zipkin", "failure")))

	snap := m.Snapshot()
	assert.Equal(t, int64(5), snap.SpansExported)
	assert.Equal(t, int64(1), snap.ExportFailures)
}

func TestRecordDropped(t *testing.T) {
	m := NewMetrics()

	m.RecordDropped("batch", "queue_full", 2)
	m.RecordDropped("batch", "queue_full", 0)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.SpansDropped.WithLabelValues("batch", "queue_full")))
	assert.Equal(t, int64(2), m.Snapshot().SpansDropped)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordHTTPRequest("GET", "/", 200, time.Millisecond)
		m.RecordSpanStarted(true)
		m.RecordExport("x", 1, time.Millisecond, nil)
		m.RecordDropped("x", "r", 1)
		m.SetQueueDepth("x", 1)
		m.SetBreakerState("x", 2)
		NewTimer(m, "x").Stop(1, nil)
	})
	assert.Equal(t, MetricsSnapshot{}, m.Snapshot())
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics()

	router := gin.New()
	router.Use(Middleware(m))
	router.GET("/items/:id", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	for _, path := range []string{"/items/1", "/items/2", "/missing"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, float64(2), testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/items/:id", "200")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "unmatched", "404")))

	snap := m.Snapshot()
	assert.Equal(t, int64(3), snap.TotalRequests)
	assert.Equal(t, int64(1), snap.TotalErrors)
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := NewMetrics()
	m.RecordSpanStarted(false)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `reqtrace_spans_started_total{sampled="false"} 1`)
	assert.Contains(t, string(body), "reqtrace_uptime_seconds")
}
