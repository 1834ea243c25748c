// Package server wires the tracing pipeline into a runnable gin service.
//
// Server Lifecycle:
//  1. Build the logger and metrics from config
//  2. Resolve sampler, exporter and propagator through the registry
//  3. Install middleware (recovery, tracing, request id, access log,
//     metrics, CORS, rate limit) and the demo routes
//  4. Serve HTTP, and gRPC health when a gRPC port is set
//  5. Watch the config file and swap trace settings on change
//  6. On shutdown, drain requests, then flush and close exporters
//
// A reload never mutates the settings in use: a new Settings value is
// swapped in and the replaced exporter is shut down after a grace delay.
//
// Example Usage:
//
//	cfg, _ := config.LoadPath(path)
//	srv, err := server.New(cfg, server.WithConfigPath(path))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = srv.Run(ctx)
package server
