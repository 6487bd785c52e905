package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func newTestSink(t *testing.T) (*PrometheusSink, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	sink := NewPrometheusSink(reg)
	return sink, reg
}

func getCounterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name {
			for _, m := range mf.GetMetric() {
				if m.GetCounter() != nil {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func getGaugeValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name {
			for _, m := range mf.GetMetric() {
				if m.GetGauge() != nil {
					return m.GetGauge().GetValue()
				}
			}
		}
	}
	return 0
}

func getCounterVecValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name {
			for _, m := range mf.GetMetric() {
				if matchLabels(m.GetLabel(), labels) {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func matchLabels(pairs []*dto.LabelPair, want map[string]string) bool {
	if len(pairs) != len(want) {
		return false
	}
	for _, p := range pairs {
		if v, ok := want[p.GetName()]; !ok || v != p.GetValue() {
			return false
		}
	}
	return true
}

func TestPrometheusSink_Registration(t *testing.T) {
	// Should not panic or error with a fresh registry.
	reg := prometheus.NewRegistry()
	sink := NewPrometheusSink(reg)
	if sink == nil {
		t.Fatal("NewPrometheusSink returned nil")
	}
}

func TestPrometheusSink_SyncOutcomes(t *testing.T) {
	sink, reg := newTestSink(t)

	sink.SyncCompleted(OutcomeSuccess, 100*time.Millisecond)
	sink.SyncCompleted(OutcomeError, 200*time.Millisecond)
	sink.SyncCompleted(OutcomeSuccess, 50*time.Millisecond)

	successVal := getCounterVecValue(t, reg, "rotationpress_sync_total",
		map[string]string{"outcome": "success"})
	if successVal != 2 {
		t.Errorf("outcome=success = %v, want 2", successVal)
	}

	errorVal := getCounterVecValue(t, reg, "rotationpress_sync_total",
		map[string]string{"outcome": "error"})
	if errorVal != 1 {
		t.Errorf("outcome=error = %v, want 1", errorVal)
	}
}

func TestPrometheusSink_UsersSynced(t *testing.T) {
	sink, reg := newTestSink(t)

	sink.UsersSynced(3)
	sink.UsersSynced(2)

	val := getCounterValue(t, reg, "rotationpress_sync_users_synced_total")
	if val != 5 {
		t.Errorf("users_synced_total = %v, want 5", val)
	}
}

func TestPrometheusSink_ScheduleResolutionLabels(t *testing.T) {
	sink, reg := newTestSink(t)

	sink.ScheduleResolved(true)
	sink.ScheduleResolved(true)
	sink.ScheduleResolved(false)

	resolvedVal := getCounterVecValue(t, reg, "rotationpress_schedule_resolutions_total",
		map[string]string{"resolved": "true"})
	if resolvedVal != 2 {
		t.Errorf("resolved=true = %v, want 2", resolvedVal)
	}

	unresolvedVal := getCounterVecValue(t, reg, "rotationpress_schedule_resolutions_total",
		map[string]string{"resolved": "false"})
	if unresolvedVal != 1 {
		t.Errorf("resolved=false = %v, want 1", unresolvedVal)
	}
}

func TestPrometheusSink_MappingsInFlight(t *testing.T) {
	sink, reg := newTestSink(t)

	sink.MappingsInFlightIncr()
	sink.MappingsInFlightIncr()
	sink.MappingsInFlightDecr()

	val := getGaugeValue(t, reg, "rotationpress_sync_mappings_in_flight")
	if val != 1 {
		t.Errorf("mappings_in_flight = %v, want 1", val)
	}
}

func TestPrometheusSink_FullSyncCompleted_WithError(t *testing.T) {
	sink, reg := newTestSink(t)

	// No error
	sink.FullSyncCompleted(time.Second, 4, nil)
	errCount := getCounterValue(t, reg, "rotationpress_fullsync_errors_total")
	if errCount != 0 {
		t.Errorf("fullsync_errors_total = %v after success, want 0", errCount)
	}

	// With error
	sink.FullSyncCompleted(time.Second, 0, errors.New("db error"))
	errCount = getCounterValue(t, reg, "rotationpress_fullsync_errors_total")
	if errCount != 1 {
		t.Errorf("fullsync_errors_total = %v after error, want 1", errCount)
	}

	total := getCounterValue(t, reg, "rotationpress_fullsync_total")
	if total != 2 {
		t.Errorf("fullsync_total = %v, want 2", total)
	}
	synced := getCounterValue(t, reg, "rotationpress_fullsync_mappings_synced_total")
	if synced != 4 {
		t.Errorf("fullsync_mappings_synced_total = %v, want 4", synced)
	}
}

func TestPrometheusSink_OverridesSwept(t *testing.T) {
	sink, reg := newTestSink(t)

	sink.OverridesSwept(3)
	sink.OverridesSwept(0)
	sink.OverridesSwept(2)

	val := getCounterValue(t, reg, "rotationpress_overrides_swept_total")
	if val != 5 {
		t.Errorf("overrides_swept_total = %v, want 5", val)
	}
}

func TestPrometheusSink_LeaderMetrics(t *testing.T) {
	sink, reg := newTestSink(t)

	sink.LeaderStatusChanged(true)
	sink.LeaderAcquired()

	status := getGaugeValue(t, reg, "rotationpress_leader_status")
	if status != 1 {
		t.Errorf("leader_status = %v, want 1", status)
	}

	sink.LeaderStatusChanged(false)
	sink.LeaderLost("conn_lost")

	status = getGaugeValue(t, reg, "rotationpress_leader_status")
	if status != 0 {
		t.Errorf("leader_status = %v after loss, want 0", status)
	}

	lost := getCounterVecValue(t, reg, "rotationpress_leader_lost_total",
		map[string]string{"reason": "conn_lost"})
	if lost != 1 {
		t.Errorf("leader_lost_total{conn_lost} = %v, want 1", lost)
	}
}

func TestPrometheusSink_DuplicateRegistration_NoPanic(t *testing.T) {
	// Registering metrics twice with the same registry should not panic.
	// The second registration will fail, but should be handled gracefully.
	reg := prometheus.NewRegistry()

	sink1 := NewPrometheusSink(reg)
	if sink1 == nil {
		t.Fatal("first NewPrometheusSink returned nil")
	}

	// Second registration will fail for all metrics, but should not panic.
	sink2 := NewPrometheusSink(reg)
	if sink2 == nil {
		t.Fatal("second NewPrometheusSink returned nil")
	}
}

// Verify PrometheusSink implements Sink interface.
var _ Sink = (*PrometheusSink)(nil)
