/*
Package resilience provides circuit breaker implementation for graceful degradation.

# Overview

This package implements the circuit breaker pattern guarding calls to the
remote layout store, so an unreachable store fails fast instead of stalling
every flush.

# Features

- Three-state circuit breaker (Closed, Open, Half-Open)
- Configurable failure thresholds and timeouts
- Automatic state transitions
- Pluggable success classification (a not-found answer is not an outage)
- Cancelled calls are not counted against the dependency
- State change callbacks for monitoring

# Usage

	// Create a circuit breaker
	breaker := resilience.New("remote-store", resilience.Settings{
		MaxRequests: 3,
		Timeout:     30 * time.Second,
		ReadyToTrip: resilience.ConsecutiveFailures(5),
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("breaker state", zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})

	// Execute request through breaker
	layouts, err := resilience.Call(ctx, breaker, func(ctx context.Context) ([]types.Layout, error) {
		return client.list(ctx, user)
	})

# States

- Closed: Normal operation, requests pass through
- Open: Service unavailable, requests fail immediately
- Half-Open: Testing if service recovered, limited requests allowed

# Pattern

The circuit breaker transitions between states based on success/failure rates:

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                    [failure]
	                                           |
	                                           v
	                                         Open
*/
package resilience
