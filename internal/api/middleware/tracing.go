package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/reqtrace/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/reqtrace/internal/interceptor"
)

// Tracing traces every request through i. The span's route attribute is the
// matched gin route pattern, and the last error attached with c.Error is
// recorded on the span.
//
// Install it after gin.Recovery so panics are recorded before Recovery
// turns them into a 500.
func Tracing(i *interceptor.Interceptor) gin.HandlerFunc {
	return func(c *gin.Context) {
		req := interceptor.RequestFromHTTP(c.Request, c.FullPath())

		_, _ = i.Handle(c.Request.Context(), req, func(ctx context.Context) (interceptor.Response, error) {
			c.Request = c.Request.WithContext(ctx)
			c.Next()

			resp := interceptor.Response{StatusCode: c.Writer.Status()}
			if last := c.Errors.Last(); last != nil {
				return resp, last.Err
			}
			return resp, nil
		})
	}
}

// AddAttribute records key=value on the request's current span.
func AddAttribute(c *gin.Context, key string, value any) {
	tracing.AddAttribute(c.Request.Context(), key, value)
}
