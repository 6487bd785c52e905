package metrics

import (
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink implements Sink using Prometheus client library.
// All methods are non-blocking and fire-and-forget.
// Registration errors are logged but never propagated.
type PrometheusSink struct {
	// Sync engine metrics
	syncsTotal       *prometheus.CounterVec
	syncDuration     prometheus.Histogram
	usersSyncedTotal prometheus.Counter
	resolutionsTotal *prometheus.CounterVec
	mappingsInFlight prometheus.Gauge

	// Periodic driver metrics
	fullSyncsTotal      prometheus.Counter
	fullSyncErrorsTotal prometheus.Counter
	fullSyncDuration    prometheus.Histogram
	mappingsSyncedTotal prometheus.Counter
	overridesSweptTotal prometheus.Counter

	// Leader election metrics
	leaderStatus    prometheus.Gauge
	leaderAcquired  prometheus.Counter
	leaderLostTotal *prometheus.CounterVec
}

// NewPrometheusSink creates a new Prometheus metrics sink.
// If registration fails, it logs a warning and returns a functional sink.
// Metrics that fail to register will be replaced with no-op collectors.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{}
	s.initSyncMetrics(reg)
	s.initDriverMetrics(reg)
	s.initLeaderMetrics(reg)
	return s
}

func (s *PrometheusSink) initSyncMetrics(reg prometheus.Registerer) {
	s.syncsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rotationpress_sync_total",
		Help: "Total number of mapping syncs, by outcome.",
	}, []string{"outcome"})

	s.syncDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "rotationpress_sync_duration_seconds",
		Help:    "Duration of each mapping sync in seconds.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
	})

	s.usersSyncedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rotationpress_sync_users_synced_total",
		Help: "Total number of users written to external groups.",
	})

	s.resolutionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rotationpress_schedule_resolutions_total",
		Help: "Total number of per-schedule identity resolutions, by result.",
	}, []string{"resolved"})

	s.mappingsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rotationpress_sync_mappings_in_flight",
		Help: "Number of mapping syncs currently executing.",
	})

	s.register(reg, s.syncsTotal, "rotationpress_sync_total")
	s.register(reg, s.syncDuration, "rotationpress_sync_duration_seconds")
	s.register(reg, s.usersSyncedTotal, "rotationpress_sync_users_synced_total")
	s.register(reg, s.resolutionsTotal, "rotationpress_schedule_resolutions_total")
	s.register(reg, s.mappingsInFlight, "rotationpress_sync_mappings_in_flight")
}

func (s *PrometheusSink) initDriverMetrics(reg prometheus.Registerer) {
	s.fullSyncsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rotationpress_fullsync_total",
		Help: "Total number of full-sync passes across all workspaces.",
	})
	s.fullSyncErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rotationpress_fullsync_errors_total",
		Help: "Total number of full-sync passes that ended in error.",
	})
	s.fullSyncDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "rotationpress_fullsync_duration_seconds",
		Help:    "Duration of each full-sync pass in seconds.",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	})
	s.mappingsSyncedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rotationpress_fullsync_mappings_synced_total",
		Help: "Total number of mappings synced by full-sync passes.",
	})
	s.overridesSweptTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rotationpress_overrides_swept_total",
		Help: "Total number of expired overrides deleted by the sweeper.",
	})

	s.register(reg, s.fullSyncsTotal, "rotationpress_fullsync_total")
	s.register(reg, s.fullSyncErrorsTotal, "rotationpress_fullsync_errors_total")
	s.register(reg, s.fullSyncDuration, "rotationpress_fullsync_duration_seconds")
	s.register(reg, s.mappingsSyncedTotal, "rotationpress_fullsync_mappings_synced_total")
	s.register(reg, s.overridesSweptTotal, "rotationpress_overrides_swept_total")
}

func (s *PrometheusSink) initLeaderMetrics(reg prometheus.Registerer) {
	s.leaderStatus = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rotationpress_leader_status",
		Help: "1 if this instance currently holds leadership, 0 otherwise.",
	})
	s.leaderAcquired = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rotationpress_leader_acquired_total",
		Help: "Total number of times this instance acquired leadership.",
	})
	s.leaderLostTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rotationpress_leader_lost_total",
		Help: "Total number of times this instance lost leadership, by reason.",
	}, []string{"reason"})

	s.register(reg, s.leaderStatus, "rotationpress_leader_status")
	s.register(reg, s.leaderAcquired, "rotationpress_leader_acquired_total")
	s.register(reg, s.leaderLostTotal, "rotationpress_leader_lost_total")
}

// register attempts to register a collector, logging any errors without propagating them.
func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		log.Printf("metrics: failed to register %s: %v", name, err)
	}
}

// Sync engine metrics implementation

func (s *PrometheusSink) SyncCompleted(outcome string, duration time.Duration) {
	s.syncsTotal.WithLabelValues(outcome).Inc()
	s.syncDuration.Observe(duration.Seconds())
}

func (s *PrometheusSink) UsersSynced(count int) {
	s.usersSyncedTotal.Add(float64(count))
}

func (s *PrometheusSink) ScheduleResolved(resolved bool) {
	label := "false"
	if resolved {
		label = "true"
	}
	s.resolutionsTotal.WithLabelValues(label).Inc()
}

func (s *PrometheusSink) MappingsInFlightIncr() {
	s.mappingsInFlight.Inc()
}

func (s *PrometheusSink) MappingsInFlightDecr() {
	s.mappingsInFlight.Dec()
}

// Periodic driver metrics implementation

func (s *PrometheusSink) FullSyncCompleted(duration time.Duration, mappingsSynced int, err error) {
	s.fullSyncsTotal.Inc()
	s.fullSyncDuration.Observe(duration.Seconds())
	s.mappingsSyncedTotal.Add(float64(mappingsSynced))
	if err != nil {
		s.fullSyncErrorsTotal.Inc()
	}
}

func (s *PrometheusSink) OverridesSwept(count int64) {
	s.overridesSweptTotal.Add(float64(count))
}

// Leader election metrics implementation

func (s *PrometheusSink) LeaderStatusChanged(isLeader bool) {
	if isLeader {
		s.leaderStatus.Set(1)
	} else {
		s.leaderStatus.Set(0)
	}
}

func (s *PrometheusSink) LeaderAcquired() {
	s.leaderAcquired.Inc()
}

func (s *PrometheusSink) LeaderLost(reason string) {
	s.leaderLostTotal.WithLabelValues(reason).Inc()
}
