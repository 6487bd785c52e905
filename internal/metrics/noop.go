package metrics

import "time"

// NoopSink is a no-op implementation of Sink.
// Used when metrics are disabled to avoid nil checks.
type NoopSink struct{}

// NewNoopSink returns a no-op metrics sink.
func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (n *NoopSink) SyncCompleted(outcome string, duration time.Duration)              {}
func (n *NoopSink) UsersSynced(count int)                                             {}
func (n *NoopSink) ScheduleResolved(resolved bool)                                    {}
func (n *NoopSink) MappingsInFlightIncr()                                             {}
func (n *NoopSink) MappingsInFlightDecr()                                             {}
func (n *NoopSink) FullSyncCompleted(d time.Duration, mappingsSynced int, err error)  {}
func (n *NoopSink) OverridesSwept(count int64)                                        {}
func (n *NoopSink) LeaderStatusChanged(isLeader bool)                                 {}
func (n *NoopSink) LeaderAcquired()                                                   {}
func (n *NoopSink) LeaderLost(reason string)                                          {}
