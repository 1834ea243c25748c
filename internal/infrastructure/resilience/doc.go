/*
Package resilience provides the circuit breaker used by remote span
exporters.

# Overview

A tracing backend that is down should cost the service nothing. Exporters
send through a Breaker: after enough consecutive failures it opens and
rejects sends immediately with ErrCircuitOpen, so batches are dropped
instead of piling up behind timeouts. After Timeout it lets a few trial
sends through (half-open) and closes again once they succeed.

# Usage

	breaker := resilience.New("zipkin", resilience.Settings{
		MaxRequests: 2,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("breaker state changed", zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})

	err := breaker.Execute(ctx, func(ctx context.Context) error {
		return send(ctx, batch)
	})

# States

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                       [failure]
	                                           |
	                                           v
	                                         Open

Context cancellation is not counted as a failure: a caller giving up says
nothing about the health of the backend.
*/
package resilience
