package main

import (
	"bytes"
	"log"
	"strings"
	"testing"

	"github.com/tpark252/rotationpress/internal/config"
)

// captureLogOutput calls logConfigWarnings with the given config and returns
// the captured log output as a string.
func captureLogOutput(cfg *config.Config) string {
	var buf bytes.Buffer
	original := log.Writer()
	log.SetOutput(&buf)
	defer log.SetOutput(original)

	logConfigWarnings(cfg)
	return buf.String()
}

func TestLogConfigWarnings_NoLeaderElection(t *testing.T) {
	cfg := &config.Config{
		LeaderElectionEnabled:   false,
		MetricsEnabled:          true,
		CircuitBreakerThreshold: 5,
		RedisAddr:               "localhost:6379",
	}
	output := captureLogOutput(cfg)

	if !strings.Contains(output, "WARNING [P0]: LEADER_ELECTION_ENABLED=false") {
		t.Error("expected leader election P0 warning, got:", output)
	}
	if strings.Contains(output, "WARNING [P1]: METRICS_ENABLED=false") {
		t.Error("did not expect metrics warning when metrics enabled, got:", output)
	}
	if strings.Contains(output, "CIRCUIT_BREAKER_THRESHOLD=0") {
		t.Error("did not expect breaker warning when threshold set, got:", output)
	}
	if strings.Contains(output, "REDIS_ADDR not set") {
		t.Error("did not expect analytics info when redis configured, got:", output)
	}
}

func TestLogConfigWarnings_MetricsDisabled(t *testing.T) {
	cfg := &config.Config{
		LeaderElectionEnabled:   true,
		MetricsEnabled:          false,
		CircuitBreakerThreshold: 5,
		RedisAddr:               "localhost:6379",
	}
	output := captureLogOutput(cfg)

	if !strings.Contains(output, "WARNING [P1]: METRICS_ENABLED=false") {
		t.Error("expected metrics P1 warning, got:", output)
	}
	if strings.Contains(output, "LEADER_ELECTION_ENABLED=false") {
		t.Error("did not expect leader warning when election enabled, got:", output)
	}
}

func TestLogConfigWarnings_BreakerDisabled(t *testing.T) {
	cfg := &config.Config{
		LeaderElectionEnabled:   true,
		MetricsEnabled:          true,
		CircuitBreakerThreshold: 0,
		RedisAddr:               "localhost:6379",
	}
	output := captureLogOutput(cfg)

	if !strings.Contains(output, "WARNING [P1]: CIRCUIT_BREAKER_THRESHOLD=0") {
		t.Error("expected breaker P1 warning, got:", output)
	}
}

func TestLogConfigWarnings_NoAnalytics(t *testing.T) {
	cfg := &config.Config{
		LeaderElectionEnabled:   true,
		MetricsEnabled:          true,
		CircuitBreakerThreshold: 5,
	}
	output := captureLogOutput(cfg)

	if !strings.Contains(output, "INFO: REDIS_ADDR not set") {
		t.Error("expected analytics INFO, got:", output)
	}
}

func TestLogConfigWarnings_ProductionConfigIsQuiet(t *testing.T) {
	cfg := &config.Config{
		LeaderElectionEnabled:   true,
		MetricsEnabled:          true,
		CircuitBreakerThreshold: 5,
		RedisAddr:               "localhost:6379",
	}
	output := captureLogOutput(cfg)

	if strings.Contains(output, "WARNING") {
		t.Error("expected no warnings for fully configured instance, got:", output)
	}
	if strings.Contains(output, "INFO:") {
		t.Error("expected no info lines for fully configured instance, got:", output)
	}
}
