/*
Package monitoring exposes Prometheus metrics for the tracing pipeline.

# Overview

Metrics covers two things: the HTTP requests served by the instrumented
server, and the health of the span pipeline itself (spans started and
sampled, spans exported or dropped per exporter, export latency, queue
depth and circuit breaker state).

Each Metrics instance registers its collectors on a private registry, so
tests and embedded servers can create as many as they like.

# Usage

	metrics := monitoring.NewMetrics()

	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	timer := monitoring.NewTimer(metrics, "zipkin")
	err := send(batch)
	timer.Stop(len(batch), err)
*/
package monitoring
