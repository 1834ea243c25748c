// Package http holds the demo API served by reqtrace: a handful of routes
// that produce ordinary, nested, failing and deny-listed spans.
package http
