package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tpark252/rotationpress/internal/syncengine"
	"github.com/tpark252/rotationpress/internal/testutil"
)

type mockWorkspaceStore struct {
	mu         sync.Mutex
	workspaces []string
	listErr    error
}

func (s *mockWorkspaceStore) ListWorkspaceIDs(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.workspaces, nil
}

type mockEngine struct {
	mu      sync.Mutex
	synced  []string
	failFor map[string]bool
	results map[string]int
}

func newMockEngine() *mockEngine {
	return &mockEngine{failFor: make(map[string]bool), results: make(map[string]int)}
}

func (e *mockEngine) SyncAll(ctx context.Context, workspaceID string) ([]syncengine.SyncResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failFor[workspaceID] {
		return nil, errors.New("workspace sync failed")
	}
	e.synced = append(e.synced, workspaceID)
	n := e.results[workspaceID]
	return make([]syncengine.SyncResult, n), nil
}

func (e *mockEngine) syncedWorkspaces() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.synced...)
}

type mockSweeper struct {
	mu      sync.Mutex
	calls   int
	deleted int64
	err     error
}

func (s *mockSweeper) SweepExpired(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return 0, s.err
	}
	return s.deleted, nil
}

// TestRunFullSync_AllWorkspaces verifies every workspace is processed in
// one tick.
func TestRunFullSync_AllWorkspaces(t *testing.T) {
	store := &mockWorkspaceStore{workspaces: []string{"ws1", "ws2", "ws3"}}
	engine := newMockEngine()
	driver := New(DefaultConfig(), store, engine, &mockSweeper{})

	driver.RunFullSync(testutil.TestContext(t))

	if got := engine.syncedWorkspaces(); len(got) != 3 {
		t.Errorf("expected 3 workspaces synced, got %v", got)
	}
}

// TestRunFullSync_WorkspaceFailureIsolated: a failing workspace must not
// prevent subsequent workspaces from syncing in the same tick.
func TestRunFullSync_WorkspaceFailureIsolated(t *testing.T) {
	store := &mockWorkspaceStore{workspaces: []string{"ws1", "ws2", "ws3"}}
	engine := newMockEngine()
	engine.failFor["ws2"] = true
	driver := New(DefaultConfig(), store, engine, &mockSweeper{})

	driver.RunFullSync(testutil.TestContext(t))

	got := engine.syncedWorkspaces()
	if len(got) != 2 || got[0] != "ws1" || got[1] != "ws3" {
		t.Errorf("expected ws1 and ws3 synced despite ws2 failure, got %v", got)
	}
}

func TestRunFullSync_ListFailure(t *testing.T) {
	store := &mockWorkspaceStore{listErr: errors.New("db down")}
	engine := newMockEngine()
	driver := New(DefaultConfig(), store, engine, &mockSweeper{})

	driver.RunFullSync(testutil.TestContext(t))

	if len(engine.syncedWorkspaces()) != 0 {
		t.Error("expected no syncs when workspace listing fails")
	}
}

// TestRunFullSync_Idempotent: two consecutive runs with unchanged state
// process the same workspaces each time.
func TestRunFullSync_Idempotent(t *testing.T) {
	store := &mockWorkspaceStore{workspaces: []string{"ws1"}}
	engine := newMockEngine()
	driver := New(DefaultConfig(), store, engine, &mockSweeper{})
	ctx := testutil.TestContext(t)

	driver.RunFullSync(ctx)
	driver.RunFullSync(ctx)

	if got := engine.syncedWorkspaces(); len(got) != 2 {
		t.Errorf("expected 2 sync passes over ws1, got %v", got)
	}
}

func TestRunSweep_InvokesSweeper(t *testing.T) {
	sweeper := &mockSweeper{deleted: 4}
	driver := New(DefaultConfig(), &mockWorkspaceStore{}, newMockEngine(), sweeper)

	driver.RunSweep(testutil.TestContext(t))

	if sweeper.calls != 1 {
		t.Errorf("expected 1 sweep call, got %d", sweeper.calls)
	}
}

func TestRunSweep_ErrorLoggedNotFatal(t *testing.T) {
	sweeper := &mockSweeper{err: errors.New("db down")}
	driver := New(DefaultConfig(), &mockWorkspaceStore{}, newMockEngine(), sweeper)

	// Must not panic; next tick will retry.
	driver.RunSweep(testutil.TestContext(t))
}

func TestRun_InvalidCadence(t *testing.T) {
	driver := New(Config{SyncSpec: "not a cron spec", SweepSpec: "@every 1h"},
		&mockWorkspaceStore{}, newMockEngine(), &mockSweeper{})

	if err := driver.Run(context.Background()); err == nil {
		t.Fatal("expected error for invalid cadence spec")
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	driver := New(DefaultConfig(), &mockWorkspaceStore{}, newMockEngine(), &mockSweeper{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- driver.Run(ctx) }()

	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("driver did not stop after context cancel")
	}
}

type recordingMetrics struct {
	mu         sync.Mutex
	fullSyncs  int
	lastSynced int
	swept      int64
}

func (m *recordingMetrics) FullSyncCompleted(d time.Duration, mappingsSynced int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fullSyncs++
	m.lastSynced = mappingsSynced
}

func (m *recordingMetrics) OverridesSwept(count int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.swept += count
}

func TestDriver_MetricsRecorded(t *testing.T) {
	store := &mockWorkspaceStore{workspaces: []string{"ws1"}}
	engine := newMockEngine()
	engine.results["ws1"] = 3
	sweeper := &mockSweeper{deleted: 2}
	metrics := &recordingMetrics{}

	driver := New(DefaultConfig(), store, engine, sweeper).WithMetrics(metrics)
	ctx := testutil.TestContext(t)

	driver.RunFullSync(ctx)
	driver.RunSweep(ctx)

	if metrics.fullSyncs != 1 || metrics.lastSynced != 3 {
		t.Errorf("expected 1 full sync with 3 mappings, got %d/%d", metrics.fullSyncs, metrics.lastSynced)
	}
	if metrics.swept != 2 {
		t.Errorf("expected 2 overrides swept, got %d", metrics.swept)
	}
}
