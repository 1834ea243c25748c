// Package middleware provides the gin middleware of the reqtrace server.
//
// Middleware stack, outermost first:
//   - Recovery (gin)
//   - Tracing: a SERVER span per request via the interceptor
//   - RequestID: X-Request-ID echo, recorded on the span
//   - AccessLog: zap access log with trace/span ids
//   - CORS: cross-origin access, trace headers allowed
//   - RateLimit: per-IP token bucket
//
// Example Usage:
//
//	router.Use(gin.Recovery())
//	router.Use(middleware.Tracing(ic))
//	router.Use(middleware.RequestID())
//	router.Use(middleware.AccessLog(logger))
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware
