package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tpark252/rotationpress/internal/circuitbreaker"
	"github.com/tpark252/rotationpress/internal/domain"
	"github.com/tpark252/rotationpress/internal/testutil"
)

func TestRegistry_Lookup(t *testing.T) {
	reg := NewRegistry()
	pd := NewPagerDuty(5 * time.Second)
	reg.Register(domain.ScheduleKindPagerDuty, pd)

	got, err := reg.Lookup(domain.ScheduleKindPagerDuty)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != pd {
		t.Error("expected registered provider back")
	}

	if _, err := reg.Lookup(domain.ScheduleKindOpsGenie); err == nil {
		t.Fatal("expected error for unregistered kind")
	}
}

func TestPagerDuty_CurrentUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/oncalls" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Token token=tok-123" {
			t.Errorf("unexpected auth header %q", got)
		}
		if got := r.URL.Query().Get("schedule_ids[]"); got != "SCHED1" {
			t.Errorf("unexpected schedule filter %q", got)
		}
		w.Write([]byte(`{"oncalls":[{"user":{"id":"PUSER1","summary":"Alice"}}]}`))
	}))
	defer srv.Close()

	pd := NewPagerDuty(5 * time.Second)
	user, err := pd.CurrentUser(testutil.TestContext(t), map[string]string{
		"api_token":   "tok-123",
		"schedule_id": "SCHED1",
		"base_url":    srv.URL,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user != "PUSER1" {
		t.Errorf("expected PUSER1, got %q", user)
	}
}

func TestPagerDuty_NobodyOnCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"oncalls":[]}`))
	}))
	defer srv.Close()

	pd := NewPagerDuty(5 * time.Second)
	user, err := pd.CurrentUser(testutil.TestContext(t), map[string]string{
		"api_token":   "tok",
		"schedule_id": "S",
		"base_url":    srv.URL,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user != "" {
		t.Errorf("expected empty identity, got %q", user)
	}
}

func TestPagerDuty_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	pd := NewPagerDuty(5 * time.Second)
	_, err := pd.CurrentUser(testutil.TestContext(t), map[string]string{
		"api_token":   "tok",
		"schedule_id": "S",
		"base_url":    srv.URL,
	})
	if err == nil {
		t.Fatal("expected error on 500, got nil")
	}
}

func TestPagerDuty_MissingConfig(t *testing.T) {
	pd := NewPagerDuty(5 * time.Second)
	if _, err := pd.CurrentUser(context.Background(), map[string]string{}); err == nil {
		t.Fatal("expected error for missing config")
	}
}

func TestOpsGenie_CurrentUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/schedules/SCHED9/on-calls" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "GenieKey key-9" {
			t.Errorf("unexpected auth header %q", got)
		}
		w.Write([]byte(`{"data":{"onCallRecipients":["bob@example.com"]}}`))
	}))
	defer srv.Close()

	og := NewOpsGenie(5 * time.Second)
	user, err := og.CurrentUser(testutil.TestContext(t), map[string]string{
		"api_key":     "key-9",
		"schedule_id": "SCHED9",
		"base_url":    srv.URL,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user != "bob@example.com" {
		t.Errorf("expected bob@example.com, got %q", user)
	}
}

// stubProvider fails a fixed number of times, then succeeds.
type stubProvider struct {
	failures int
	calls    int
}

func (s *stubProvider) CurrentUser(ctx context.Context, config map[string]string) (string, error) {
	s.calls++
	if s.calls <= s.failures {
		return "", errors.New("remote unavailable")
	}
	return "u-ok", nil
}

func TestWithBreaker_OpensAfterThreshold(t *testing.T) {
	ctx := context.Background()
	stub := &stubProvider{failures: 100}
	cb := circuitbreaker.New(2, time.Minute)
	p := WithBreaker(stub, cb, "pagerduty:test")

	for i := 0; i < 2; i++ {
		if _, err := p.CurrentUser(ctx, nil); err == nil {
			t.Fatal("expected failure from stub")
		}
	}

	// Circuit now open: the stub must not be called again.
	callsBefore := stub.calls
	_, err := p.CurrentUser(ctx, nil)
	if !errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if stub.calls != callsBefore {
		t.Error("expected no provider call while circuit open")
	}
}

func TestWithBreaker_SuccessKeepsCircuitClosed(t *testing.T) {
	ctx := context.Background()
	stub := &stubProvider{failures: 0}
	cb := circuitbreaker.New(2, time.Minute)
	p := WithBreaker(stub, cb, "opsgenie:test")

	for i := 0; i < 5; i++ {
		user, err := p.CurrentUser(ctx, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if user != "u-ok" {
			t.Errorf("expected u-ok, got %q", user)
		}
	}
}
