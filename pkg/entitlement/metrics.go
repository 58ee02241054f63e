package entitlement

import "time"

// Metrics defines the interface for tracking grants and store health.
type Metrics interface {
	// RecordGrant records a grant outcome.
	// outcome: "granted", "already_granted", "no_account" or "error"
	RecordGrant(field MatchField, outcome string)

	// RecordStorageOperation records the duration and status of a storage operation.
	RecordStorageOperation(operation string, duration time.Duration, err error)

	// RecordCircuitBreakerStateChange records a circuit breaker state change.
	RecordCircuitBreakerStateChange(state string)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordGrant(field MatchField, outcome string)                               {}
func (n *NoopMetrics) RecordStorageOperation(operation string, duration time.Duration, err error) {}
func (n *NoopMetrics) RecordCircuitBreakerStateChange(state string)                               {}
