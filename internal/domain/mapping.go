package domain

import (
	"time"

	"github.com/google/uuid"
)

type ConflictResolution string

const (
	// ConflictMergeAll unions every resolved identity, duplicates collapsed.
	ConflictMergeAll ConflictResolution = "merge_all"
	// ConflictPriorityBased takes the first schedule (in listed order) that
	// resolves to somebody. Intended for primary + fallback setups.
	ConflictPriorityBased ConflictResolution = "priority_based"
	// ConflictRoundRobin is reserved; it currently behaves like merge_all.
	ConflictRoundRobin ConflictResolution = "round_robin"
)

// ScheduleMapping binds a user group to a set of schedules. ScheduleIDs
// order is significant: it is the priority order for priority_based
// resolution.
type ScheduleMapping struct {
	ID          uuid.UUID
	UserGroupID uuid.UUID

	ScheduleIDs []uuid.UUID

	ConflictResolution ConflictResolution

	WorkspaceID string
	CreatedAt   time.Time
}
