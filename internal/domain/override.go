package domain

import (
	"time"

	"github.com/google/uuid"
)

// Override is a time-bounded manual replacement of the computed on-call
// identity for one schedule. An override is active while now < EndAt;
// among overlapping overrides the one with the latest StartAt wins.
type Override struct {
	ID         uuid.UUID
	ScheduleID uuid.UUID

	ReplacementID string

	StartAt time.Time
	EndAt   time.Time // strictly after StartAt

	// DurationValue and DurationUnit are the denormalized source of EndAt,
	// kept for display.
	DurationValue int
	DurationUnit  string

	Timezone  string
	Reason    string
	CreatedBy string

	CreatedAt   time.Time
	WorkspaceID string
}

// ActiveAt reports whether the override covers the given instant.
// The end boundary is exclusive: an override with EndAt == now is expired.
func (o Override) ActiveAt(now time.Time) bool {
	return now.Before(o.EndAt)
}
