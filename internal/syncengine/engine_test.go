package syncengine

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tpark252/rotationpress/internal/domain"
	"github.com/tpark252/rotationpress/internal/testutil"
)

// mockStore holds mappings, groups and schedules in memory and records
// sync log entries.
type mockStore struct {
	mu        sync.Mutex
	mappings  map[uuid.UUID]domain.ScheduleMapping
	groups    map[uuid.UUID]domain.UserGroup
	schedules map[uuid.UUID]domain.Schedule
	logs      []domain.SyncLogEntry
	logErr    error
}

func newMockStore() *mockStore {
	return &mockStore{
		mappings:  make(map[uuid.UUID]domain.ScheduleMapping),
		groups:    make(map[uuid.UUID]domain.UserGroup),
		schedules: make(map[uuid.UUID]domain.Schedule),
	}
}

func (s *mockStore) GetMapping(ctx context.Context, id uuid.UUID) (domain.ScheduleMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.mappings[id]
	if !ok {
		return domain.ScheduleMapping{}, ErrMappingNotFound
	}
	return m, nil
}

func (s *mockStore) GetUserGroup(ctx context.Context, id uuid.UUID) (domain.UserGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[id]
	if !ok {
		return domain.UserGroup{}, ErrUserGroupNotFound
	}
	return g, nil
}

func (s *mockStore) GetSchedule(ctx context.Context, id uuid.UUID) (domain.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sched, ok := s.schedules[id]
	if !ok {
		return domain.Schedule{}, ErrScheduleNotFound
	}
	return sched, nil
}

func (s *mockStore) ListMappings(ctx context.Context, workspaceID string) ([]domain.ScheduleMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ScheduleMapping
	for _, m := range s.mappings {
		if m.WorkspaceID == workspaceID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *mockStore) InsertSyncLog(ctx context.Context, entry domain.SyncLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.logErr != nil {
		return s.logErr
	}
	s.logs = append(s.logs, entry)
	return nil
}

func (s *mockStore) logEntries() []domain.SyncLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.SyncLogEntry(nil), s.logs...)
}

// staticResolver maps schedule id to a fixed identity.
type staticResolver struct {
	identities map[uuid.UUID]string
}

func (r *staticResolver) CurrentIdentity(ctx context.Context, sched domain.Schedule, now time.Time) (string, bool) {
	id, ok := r.identities[sched.ID]
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// mockSink records membership replaces and can fail for selected groups.
type mockSink struct {
	mu       sync.Mutex
	replaces map[string][][]string
	failFor  map[string]bool
}

func newMockSink() *mockSink {
	return &mockSink{
		replaces: make(map[string][][]string),
		failFor:  make(map[string]bool),
	}
}

func (s *mockSink) ReplaceMembers(ctx context.Context, externalGroupID string, members []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFor[externalGroupID] {
		return errors.New("directory service unavailable")
	}
	s.replaces[externalGroupID] = append(s.replaces[externalGroupID], append([]string(nil), members...))
	return nil
}

func (s *mockSink) lastReplace(groupID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	writes := s.replaces[groupID]
	if len(writes) == 0 {
		return nil
	}
	return writes[len(writes)-1]
}

func (s *mockSink) replaceCount(groupID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.replaces[groupID])
}

// fixture wires a store with one group, n internal schedules resolving to
// the given identities, and one mapping over them.
func fixture(t *testing.T, cr domain.ConflictResolution, identities ...string) (*mockStore, *staticResolver, *mockSink, domain.ScheduleMapping) {
	t.Helper()
	store := newMockStore()
	res := &staticResolver{identities: make(map[uuid.UUID]string)}

	group := domain.UserGroup{
		ID:              uuid.New(),
		ExternalGroupID: "G-oncall",
		Name:            "oncall",
		WorkspaceID:     "ws1",
	}
	store.groups[group.ID] = group

	var scheduleIDs []uuid.UUID
	for _, identity := range identities {
		sched := domain.Schedule{
			ID:          uuid.New(),
			Name:        "sched",
			Kind:        domain.ScheduleKindInternal,
			Frequency:   domain.FrequencyDaily,
			WorkspaceID: "ws1",
		}
		store.schedules[sched.ID] = sched
		res.identities[sched.ID] = identity
		scheduleIDs = append(scheduleIDs, sched.ID)
	}

	mapping := domain.ScheduleMapping{
		ID:                 uuid.New(),
		UserGroupID:        group.ID,
		ScheduleIDs:        scheduleIDs,
		ConflictResolution: cr,
		WorkspaceID:        "ws1",
	}
	store.mappings[mapping.ID] = mapping

	return store, res, newMockSink(), mapping
}

// TestSync_MergeAllDeduplicates: schedules resolving to {A, B, A} yield
// membership {A, B}, size 2.
func TestSync_MergeAllDeduplicates(t *testing.T) {
	store, res, sink, mapping := fixture(t, domain.ConflictMergeAll, "A", "B", "A")
	engine := New(store, res, sink)

	result, err := engine.Sync(testutil.TestContext(t), mapping.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.UsersSynced != 2 {
		t.Errorf("expected 2 users synced, got %d", result.UsersSynced)
	}
	if !reflect.DeepEqual(sink.lastReplace("G-oncall"), []string{"A", "B"}) {
		t.Errorf("expected membership [A B], got %v", sink.lastReplace("G-oncall"))
	}

	logs := store.logEntries()
	if len(logs) != 1 || logs[0].Status != domain.SyncStatusSuccess || logs[0].UsersSynced != 2 {
		t.Errorf("expected one success log with count 2, got %+v", logs)
	}
}

func TestSync_PriorityBasedFirstNonEmptyWins(t *testing.T) {
	store, res, sink, mapping := fixture(t, domain.ConflictPriorityBased, "", "B", "C")
	engine := New(store, res, sink)

	result, err := engine.Sync(testutil.TestContext(t), mapping.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !reflect.DeepEqual(result.Users, []string{"B"}) {
		t.Errorf("expected [B], got %v", result.Users)
	}
}

func TestSync_MappingNotFound(t *testing.T) {
	store, res, sink, _ := fixture(t, domain.ConflictMergeAll, "A")
	engine := New(store, res, sink)

	_, err := engine.Sync(testutil.TestContext(t), uuid.New())
	if !errors.Is(err, ErrMappingNotFound) {
		t.Fatalf("expected ErrMappingNotFound, got %v", err)
	}
}

func TestSync_UserGroupNotFound(t *testing.T) {
	store, res, sink, mapping := fixture(t, domain.ConflictMergeAll, "A")
	mapping.UserGroupID = uuid.New()
	store.mappings[mapping.ID] = mapping
	engine := New(store, res, sink)

	_, err := engine.Sync(testutil.TestContext(t), mapping.ID)
	if !errors.Is(err, ErrUserGroupNotFound) {
		t.Fatalf("expected ErrUserGroupNotFound, got %v", err)
	}
}

func TestSync_SkipsDeletedSchedules(t *testing.T) {
	store, res, sink, mapping := fixture(t, domain.ConflictMergeAll, "A", "B")
	// Simulate a schedule deleted after the mapping was created.
	delete(store.schedules, mapping.ScheduleIDs[0])
	engine := New(store, res, sink)

	result, err := engine.Sync(testutil.TestContext(t), mapping.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(result.Users, []string{"B"}) {
		t.Errorf("expected surviving schedule's identity [B], got %v", result.Users)
	}
}

func TestSync_MembershipWriteFailure(t *testing.T) {
	store, res, sink, mapping := fixture(t, domain.ConflictMergeAll, "A")
	sink.failFor["G-oncall"] = true
	engine := New(store, res, sink)

	_, err := engine.Sync(testutil.TestContext(t), mapping.ID)
	if !errors.Is(err, ErrMembershipWrite) {
		t.Fatalf("expected ErrMembershipWrite, got %v", err)
	}

	logs := store.logEntries()
	if len(logs) != 1 || logs[0].Status != domain.SyncStatusError {
		t.Fatalf("expected one error log entry, got %+v", logs)
	}
	if logs[0].ErrorMessage == "" {
		t.Error("expected error message in log entry")
	}
}

func TestSync_LogWriteFailureDoesNotMaskOutcome(t *testing.T) {
	store, res, sink, mapping := fixture(t, domain.ConflictMergeAll, "A")
	store.logErr = errors.New("sync_logs table unavailable")
	engine := New(store, res, sink)

	result, err := engine.Sync(testutil.TestContext(t), mapping.ID)
	if err != nil {
		t.Fatalf("expected sync success despite log failure, got %v", err)
	}
	if result.UsersSynced != 1 {
		t.Errorf("expected 1 user synced, got %d", result.UsersSynced)
	}
}

// TestSync_Idempotent: two syncs with unchanged state produce the same
// membership both times, and each appends its own log entry.
func TestSync_Idempotent(t *testing.T) {
	store, res, sink, mapping := fixture(t, domain.ConflictMergeAll, "A", "B")
	engine := New(store, res, sink)
	ctx := testutil.TestContext(t)

	first, err := engine.Sync(ctx, mapping.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := engine.Sync(ctx, mapping.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !reflect.DeepEqual(first.Users, second.Users) {
		t.Errorf("expected identical membership, got %v then %v", first.Users, second.Users)
	}
	if sink.replaceCount("G-oncall") != 2 {
		t.Errorf("expected 2 full-replace writes, got %d", sink.replaceCount("G-oncall"))
	}
	if len(store.logEntries()) != 2 {
		t.Errorf("expected 2 log entries (logging not deduplicated), got %d", len(store.logEntries()))
	}
}

// TestSyncAll_PartialFailure: with three mappings and mapping #2's
// external write failing, SyncAll returns two results and an error log
// entry exists for the failed mapping.
func TestSyncAll_PartialFailure(t *testing.T) {
	store := newMockStore()
	res := &staticResolver{identities: make(map[uuid.UUID]string)}
	sink := newMockSink()

	var mappingIDs []uuid.UUID
	for i, groupHandle := range []string{"G-1", "G-2", "G-3"} {
		group := domain.UserGroup{ID: uuid.New(), ExternalGroupID: groupHandle, WorkspaceID: "ws1"}
		store.groups[group.ID] = group

		sched := domain.Schedule{ID: uuid.New(), Kind: domain.ScheduleKindInternal, WorkspaceID: "ws1"}
		store.schedules[sched.ID] = sched
		res.identities[sched.ID] = []string{"A", "B", "C"}[i]

		mapping := domain.ScheduleMapping{
			ID:                 uuid.New(),
			UserGroupID:        group.ID,
			ScheduleIDs:        []uuid.UUID{sched.ID},
			ConflictResolution: domain.ConflictMergeAll,
			WorkspaceID:        "ws1",
		}
		store.mappings[mapping.ID] = mapping
		mappingIDs = append(mappingIDs, mapping.ID)
	}
	sink.failFor["G-2"] = true

	engine := New(store, res, sink)
	results, err := engine.SyncAll(testutil.TestContext(t), "ws1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("expected 2 successful results, got %d", len(results))
	}
	for _, r := range results {
		if r.MappingID == mappingIDs[1] {
			t.Error("failed mapping must not appear in results")
		}
	}

	errorLogs := 0
	for _, entry := range store.logEntries() {
		if entry.Status == domain.SyncStatusError && entry.MappingID == mappingIDs[1] {
			errorLogs++
		}
	}
	if errorLogs != 1 {
		t.Errorf("expected 1 error log for failed mapping, got %d", errorLogs)
	}
}

func TestSyncAll_EmptyWorkspace(t *testing.T) {
	store := newMockStore()
	engine := New(store, &staticResolver{}, newMockSink())

	results, err := engine.SyncAll(testutil.TestContext(t), "ws-empty")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}

// serializingSink fails the test if two replaces for the same group ever
// run concurrently.
type serializingSink struct {
	inFlight int32
	raced    int32
	writes   int32
}

func (s *serializingSink) ReplaceMembers(ctx context.Context, externalGroupID string, members []string) error {
	if atomic.AddInt32(&s.inFlight, 1) > 1 {
		atomic.StoreInt32(&s.raced, 1)
	}
	time.Sleep(time.Millisecond)
	atomic.AddInt32(&s.inFlight, -1)
	atomic.AddInt32(&s.writes, 1)
	return nil
}

// TestSync_SerializedPerMapping: concurrent syncs for the same mapping
// must not interleave their membership writes.
func TestSync_SerializedPerMapping(t *testing.T) {
	store, res, _, mapping := fixture(t, domain.ConflictMergeAll, "A")
	sink := &serializingSink{}
	engine := New(store, res, sink)
	ctx := testutil.TestContext(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := engine.Sync(ctx, mapping.ID); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if atomic.LoadInt32(&sink.raced) != 0 {
		t.Error("detected interleaved membership writes for the same mapping")
	}
	if got := atomic.LoadInt32(&sink.writes); got != 8 {
		t.Errorf("expected 8 writes, got %d", got)
	}
}
