/*
Package exporter provides span exporters beyond the tracing package's
PrintExporter.

  - LogExporter writes spans as structured zap entries.
  - FileExporter appends JSON lines to a file.
  - ZipkinExporter uploads to a Zipkin v2 collector with retries, rate
    limiting and a circuit breaker.
  - BatchExporter wraps any of these behind a bounded queue so request
    handling never waits on delivery.

Exporters are shared by all requests and are safe for concurrent use.
Delivery failures are logged and counted in monitoring.Metrics; they are
never reported back to the request that produced the spans.
*/
package exporter
