// Command reqtrace runs the request tracing demo server and inspects trace
// headers.
//
// Usage:
//
//	# Serve the demo API with default configuration
//	reqtrace serve
//
//	# Serve with a config file, reloading trace settings when it changes
//	reqtrace serve --config reqtrace.yaml
//
//	# Decode a traceparent header
//	reqtrace decode 00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01
//
//	# Show version information
//	reqtrace version
//
// Every config key can be overridden from the environment, e.g.
// REQTRACE_TRACE_SAMPLER=always_on or REQTRACE_SERVER_PORT=9000.
package main

func main() {
	Execute()
}
