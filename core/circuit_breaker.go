// Package core provides the shared abstractions (logging, telemetry,
// errors, circuit breaking, Redis access) used by every orchestrator
// package.
//
// CircuitBreaker is a proxy that monitors consecutive failures and
// temporarily blocks requests once a threshold is reached:
//  1. Closed: normal operation, requests pass through
//  2. Open: threshold exceeded, requests fail immediately
//  3. Half-Open: limited requests allowed to test recovery
package core

import (
	"context"
	"time"
)

// CircuitBreaker provides circuit breaker functionality for fault tolerance.
// Implementations should protect against cascading failures by temporarily
// blocking requests when a threshold of failures is reached.
type CircuitBreaker interface {
	// Execute runs the provided function with circuit breaker protection.
	// If the circuit is open, it returns ErrCircuitBreakerOpen immediately.
	// If the circuit is closed or half-open, it executes the function and
	// records the result to update the circuit state.
	Execute(ctx context.Context, fn func() error) error

	// ExecuteWithTimeout runs the function with both circuit breaker protection
	// and a timeout. This is useful for operations that might hang.
	ExecuteWithTimeout(ctx context.Context, timeout time.Duration, fn func() error) error

	// GetState returns the current circuit breaker state as a string.
	// Possible values: "closed", "open", "half-open"
	GetState() string

	// GetMetrics returns current metrics about the circuit breaker.
	// This typically includes success/failure counts, state transitions, etc.
	GetMetrics() map[string]interface{}

	// Reset manually resets the circuit breaker to closed state.
	// This clears all failure counts and metrics.
	Reset()

	// CanExecute returns true if the circuit breaker would allow execution.
	// This is useful for checking state without actually executing.
	CanExecute() bool
}

// CircuitBreakerConfig holds the tunable thresholds for a CircuitBreaker
// implementation. Threshold counts consecutive failures (not an error
// rate over a volume window): ConsecutiveFailures trips the breaker from
// closed to open, SuccessesToClose closes it again from half-open.
type CircuitBreakerConfig struct {
	Enabled             bool
	ConsecutiveFailures int
	SuccessesToClose    int
	OpenTimeout         time.Duration
	HalfOpenRequests    int
}

// CircuitBreakerParams provides parameters for circuit breaker implementations,
// pairing the basic configuration with implementation-specific dependencies
// like Logger and Telemetry.
type CircuitBreakerParams struct {
	// Name identifies the circuit breaker (for logging/metrics)
	Name string

	// Config embeds the basic configuration
	Config CircuitBreakerConfig

	// Optional: Logger for circuit breaker events
	Logger Logger

	// Optional: Telemetry for metrics
	Telemetry Telemetry
}

// DefaultCircuitBreakerParams returns sensible defaults for circuit breaker parameters
func DefaultCircuitBreakerParams(name string) CircuitBreakerParams {
	return CircuitBreakerParams{
		Name: name,
		Config: CircuitBreakerConfig{
			Enabled:             true,
			ConsecutiveFailures: 5,
			SuccessesToClose:    2,
			OpenTimeout:         30 * time.Second,
			HalfOpenRequests:    3,
		},
	}
}
