package main

import (
	"log"

	"github.com/tpark252/rotationpress/internal/config"
)

// logConfigWarnings flags configuration combinations that are valid but
// risky in production. Validation has already passed by the time this runs;
// these are advisories, not errors.
func logConfigWarnings(cfg *config.Config) {
	if !cfg.LeaderElectionEnabled {
		log.Println("WARNING [P0]: LEADER_ELECTION_ENABLED=false. Every replica runs its own sync driver; " +
			"with more than one instance the same mappings are synced concurrently and membership writes race. " +
			"Enable leader election when running more than one replica.")
	}

	if !cfg.MetricsEnabled {
		log.Println("WARNING [P1]: METRICS_ENABLED=false. Sync outcomes, resolution failures and leader " +
			"transitions will not be observable. Enable metrics in production.")
	}

	if cfg.CircuitBreakerThreshold == 0 {
		log.Println("WARNING [P1]: CIRCUIT_BREAKER_THRESHOLD=0. Provider lookups hit PagerDuty/OpsGenie " +
			"on every sync even while the upstream is failing.")
	}

	if cfg.RedisAddr == "" {
		log.Println("INFO: REDIS_ADDR not set. Per-mapping sync analytics are disabled; the sync log table " +
			"remains the only history.")
	}
}
