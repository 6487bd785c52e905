// Package syncengine aggregates the resolved identities of a mapping's
// schedules into one target membership list, writes it to the external
// group (full replace) and records the outcome in the sync log.
package syncengine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/tpark252/rotationpress/internal/domain"
)

var (
	ErrMappingNotFound   = errors.New("mapping not found")
	ErrUserGroupNotFound = errors.New("user group not found")
	ErrScheduleNotFound  = errors.New("schedule not found")

	// ErrMembershipWrite marks the one fatal-to-the-attempt failure: the
	// external membership replace did not succeed.
	ErrMembershipWrite = errors.New("membership write failed")
)

// Store is the persistence surface the engine needs. Implementations must
// return the package sentinels for missing records.
type Store interface {
	GetMapping(ctx context.Context, id uuid.UUID) (domain.ScheduleMapping, error)
	GetUserGroup(ctx context.Context, id uuid.UUID) (domain.UserGroup, error)
	GetSchedule(ctx context.Context, id uuid.UUID) (domain.Schedule, error)
	ListMappings(ctx context.Context, workspaceID string) ([]domain.ScheduleMapping, error)
	InsertSyncLog(ctx context.Context, entry domain.SyncLogEntry) error
}

// IdentityResolver computes the current responsible identity for one
// schedule.
type IdentityResolver interface {
	CurrentIdentity(ctx context.Context, sched domain.Schedule, now time.Time) (string, bool)
}

// MembershipSink writes the authoritative membership set to the external
// group. Replace semantics: the new list fully supersedes the old one.
type MembershipSink interface {
	ReplaceMembers(ctx context.Context, externalGroupID string, members []string) error
}

// MetricsSink records sync engine metrics.
// All methods must be non-blocking and fire-and-forget.
type MetricsSink interface {
	SyncCompleted(outcome string, duration time.Duration)
	UsersSynced(count int)
	ScheduleResolved(resolved bool)
	MappingsInFlightIncr()
	MappingsInFlightDecr()
}

// AnalyticsSink records per-mapping sync counters as a best-effort
// side-effect; it never affects sync correctness.
type AnalyticsSink interface {
	RecordSync(ctx context.Context, workspaceID string, mappingID uuid.UUID, success bool)
}

// SyncResult is the outcome of one successful mapping sync.
type SyncResult struct {
	MappingID   uuid.UUID
	UsersSynced int
	Users       []string
}

type Engine struct {
	store      Store
	resolver   IdentityResolver
	membership MembershipSink
	metrics    MetricsSink   // optional, nil = disabled
	analytics  AnalyticsSink // optional, nil = disabled
	locks      *mappingLocks
	clock      func() time.Time
}

func New(store Store, resolver IdentityResolver, membership MembershipSink) *Engine {
	return &Engine{
		store:      store,
		resolver:   resolver,
		membership: membership,
		locks:      newMappingLocks(),
		clock:      time.Now,
	}
}

// WithMetrics attaches a metrics sink to the engine.
func (e *Engine) WithMetrics(sink MetricsSink) *Engine {
	e.metrics = sink
	return e
}

// WithAnalytics attaches an analytics sink to the engine.
func (e *Engine) WithAnalytics(sink AnalyticsSink) *Engine {
	e.analytics = sink
	return e
}

// WithClock replaces the time source. For tests.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	return e
}

// Sync resolves every schedule of the mapping, applies its conflict
// resolution strategy, replaces the group membership and appends a sync
// log entry. The whole attempt runs inside the mapping's exclusive
// section so concurrent syncs for the same mapping never interleave.
func (e *Engine) Sync(ctx context.Context, mappingID uuid.UUID) (SyncResult, error) {
	release := e.locks.acquire(mappingID)
	defer release()

	if e.metrics != nil {
		e.metrics.MappingsInFlightIncr()
		defer e.metrics.MappingsInFlightDecr()
	}

	started := e.clock()
	result, err := e.syncLocked(ctx, mappingID)
	if e.metrics != nil {
		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		e.metrics.SyncCompleted(outcome, e.clock().Sub(started))
		if err == nil {
			e.metrics.UsersSynced(result.UsersSynced)
		}
	}
	return result, err
}

func (e *Engine) syncLocked(ctx context.Context, mappingID uuid.UUID) (SyncResult, error) {
	now := e.clock().UTC()

	mapping, err := e.store.GetMapping(ctx, mappingID)
	if err != nil {
		if errors.Is(err, ErrMappingNotFound) {
			return SyncResult{}, ErrMappingNotFound
		}
		return SyncResult{}, fmt.Errorf("get mapping: %w", err)
	}

	group, err := e.store.GetUserGroup(ctx, mapping.UserGroupID)
	if err != nil {
		if errors.Is(err, ErrUserGroupNotFound) {
			return SyncResult{}, ErrUserGroupNotFound
		}
		return SyncResult{}, fmt.Errorf("get user group: %w", err)
	}

	resolutions := e.resolveSchedules(ctx, mapping, now)
	users := StrategyFor(mapping.ConflictResolution).Combine(resolutions)

	if err := e.membership.ReplaceMembers(ctx, group.ExternalGroupID, users); err != nil {
		writeErr := fmt.Errorf("%w: group=%s: %v", ErrMembershipWrite, group.ExternalGroupID, err)
		e.appendLog(ctx, domain.SyncLogEntry{
			ID:           uuid.New(),
			MappingID:    mapping.ID,
			Status:       domain.SyncStatusError,
			ErrorMessage: writeErr.Error(),
			SyncedAt:     now,
		})
		e.recordAnalytics(ctx, mapping, false)
		return SyncResult{}, writeErr
	}

	e.appendLog(ctx, domain.SyncLogEntry{
		ID:          uuid.New(),
		MappingID:   mapping.ID,
		Status:      domain.SyncStatusSuccess,
		UsersSynced: len(users),
		SyncedAt:    now,
	})
	e.recordAnalytics(ctx, mapping, true)

	log.Printf("syncengine: mapping=%s synced users=%d", mapping.ID, len(users))
	return SyncResult{
		MappingID:   mapping.ID,
		UsersSynced: len(users),
		Users:       users,
	}, nil
}

// resolveSchedules resolves each schedule in the mapping's stored order.
// Schedules that no longer exist or resolve to nobody are skipped, never
// fatal.
func (e *Engine) resolveSchedules(ctx context.Context, mapping domain.ScheduleMapping, now time.Time) []Resolution {
	resolutions := make([]Resolution, 0, len(mapping.ScheduleIDs))
	for _, scheduleID := range mapping.ScheduleIDs {
		sched, err := e.store.GetSchedule(ctx, scheduleID)
		if err != nil {
			if errors.Is(err, ErrScheduleNotFound) {
				log.Printf("syncengine: mapping=%s schedule=%s no longer exists, skipping",
					mapping.ID, scheduleID)
			} else {
				log.Printf("syncengine: mapping=%s schedule=%s load failed, skipping: %v",
					mapping.ID, scheduleID, err)
			}
			continue
		}

		identity, ok := e.resolver.CurrentIdentity(ctx, sched, now)
		if e.metrics != nil {
			e.metrics.ScheduleResolved(ok)
		}
		resolutions = append(resolutions, Resolution{
			ScheduleID: scheduleID,
			Identity:   identity,
			Resolved:   ok,
		})
	}
	return resolutions
}

// appendLog records the sync outcome. A log write failure must not mask
// the sync outcome from the caller, so it is only logged here.
func (e *Engine) appendLog(ctx context.Context, entry domain.SyncLogEntry) {
	if err := e.store.InsertSyncLog(ctx, entry); err != nil {
		log.Printf("syncengine: mapping=%s failed to record sync log: %v", entry.MappingID, err)
	}
}

func (e *Engine) recordAnalytics(ctx context.Context, mapping domain.ScheduleMapping, success bool) {
	if e.analytics == nil {
		return
	}
	e.analytics.RecordSync(ctx, mapping.WorkspaceID, mapping.ID, success)
}

// SyncAll syncs every mapping in the workspace. One mapping's failure is
// logged and excluded from the result; it never prevents subsequent
// mappings from syncing.
func (e *Engine) SyncAll(ctx context.Context, workspaceID string) ([]SyncResult, error) {
	mappings, err := e.store.ListMappings(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list mappings: %w", err)
	}

	results := make([]SyncResult, 0, len(mappings))
	for _, mapping := range mappings {
		result, err := e.Sync(ctx, mapping.ID)
		if err != nil {
			log.Printf("syncengine: workspace=%s mapping=%s sync failed: %v",
				workspaceID, mapping.ID, err)
			continue
		}
		results = append(results, result)
	}
	return results, nil
}
