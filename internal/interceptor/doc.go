/*
Package interceptor connects request tracing to a host framework.

Handle is the single entry point: it takes a description of the inbound
request and a continuation that produces the response. Framework adapters
are thin wrappers around it:

  - Middleware for net/http
  - UnaryServerInterceptor and StreamServerInterceptor for gRPC
  - middleware.Tracing in internal/api/middleware for gin

For every request that is not deny-listed, Handle decodes the inbound span
context, starts a SERVER span named "[METHOD]url", runs the continuation
with a tracer in its context and, on the way out, records the status, ends
the span and exports. Handler errors and panics are recorded and passed on
untouched.

Settings are resolved from configuration by a Registry and can be swapped
at runtime with Reconfigure.
*/
package interceptor
