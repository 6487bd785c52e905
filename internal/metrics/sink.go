package metrics

import "time"

// Sink defines the interface for recording metrics.
// All methods are fire-and-forget: implementations MUST NOT block or propagate errors.
// If the metrics backend is unavailable, implementations log warnings and continue.
type Sink interface {
	// Sync engine metrics
	SyncCompleted(outcome string, duration time.Duration)
	UsersSynced(count int)
	ScheduleResolved(resolved bool)
	MappingsInFlightIncr()
	MappingsInFlightDecr()

	// Periodic driver metrics
	FullSyncCompleted(duration time.Duration, mappingsSynced int, err error)
	OverridesSwept(count int64)

	// Leader election metrics
	LeaderStatusChanged(isLeader bool)
	LeaderAcquired()
	LeaderLost(reason string)
}

// Outcome constants for SyncCompleted.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)
