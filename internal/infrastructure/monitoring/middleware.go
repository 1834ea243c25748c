package monitoring

import (
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware for request metrics. The route label
// is the matched route pattern so that ids in paths do not explode label
// cardinality.
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.RecordHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}

// Timer measures one export attempt
type Timer struct {
	start    time.Time
	metrics  *Metrics
	exporter string
}

// NewTimer creates a new timer
func NewTimer(metrics *Metrics, exporter string) *Timer {
	return &Timer{
		start:    time.Now(),
		metrics:  metrics,
		exporter: exporter,
	}
}

// Stop records the attempt of n spans with its outcome
func (t *Timer) Stop(n int, err error) time.Duration {
	d := time.Since(t.start)
	t.metrics.RecordExport(t.exporter, n, d, err)
	return d
}
