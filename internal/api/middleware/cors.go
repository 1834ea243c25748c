package middleware

import (
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/reqtrace/internal/infrastructure/tracing"
)

// CORSConfig defines CORS configuration options.
type CORSConfig struct {
	AllowOrigins     []string
	AllowMethods     []string
	AllowHeaders     []string
	ExposeHeaders    []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// DefaultCORSConfig allows any origin and the headers of every built-in
// propagator, so browser clients can continue a trace into the service.
func DefaultCORSConfig() CORSConfig {
	cfg := CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{
			"Content-Type",
			"Content-Length",
			"Accept",
			"Authorization",
			"Origin",
			RequestIDHeader,
		},
		ExposeHeaders:    []string{RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	return cfg.AllowPropagation(tracing.TraceContextPropagator{}, tracing.CloudTraceContextPropagator{})
}

// AllowPropagation returns a copy of c that also accepts the header fields
// of each propagator.
func (c CORSConfig) AllowPropagation(props ...tracing.Propagator) CORSConfig {
	headers := slices.Clone(c.AllowHeaders)
	for _, p := range props {
		for _, f := range p.Fields() {
			if !slices.Contains(headers, f) {
				headers = append(headers, f)
			}
		}
	}
	c.AllowHeaders = headers
	return c
}

// CORS creates a CORS middleware with the provided configuration.
func CORS(cfg CORSConfig) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:     cfg.AllowOrigins,
		AllowMethods:     cfg.AllowMethods,
		AllowHeaders:     cfg.AllowHeaders,
		ExposeHeaders:    cfg.ExposeHeaders,
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           cfg.MaxAge,
	})
}
