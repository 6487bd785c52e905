package domain

import (
	"time"

	"github.com/google/uuid"
)

type ScheduleKind string

const (
	ScheduleKindInternal  ScheduleKind = "internal"
	ScheduleKindPagerDuty ScheduleKind = "pagerduty"
	ScheduleKindOpsGenie  ScheduleKind = "opsgenie"
)

// External reports whether the schedule's on-call identity comes from a
// third-party provider instead of the internal rotation calculation.
func (k ScheduleKind) External() bool {
	return k == ScheduleKindPagerDuty || k == ScheduleKindOpsGenie
}

type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyCustom  Frequency = "custom"
)

// Schedule defines a single on-call rotation or an external provider binding.
type Schedule struct {
	ID uuid.UUID

	Name string
	Kind ScheduleKind

	Frequency Frequency
	// CustomInterval is a compact duration token ("30m", "8h", "3d", "2w").
	// Only meaningful when Frequency is FrequencyCustom.
	CustomInterval string

	// Members is the rotation order. Index arithmetic is modulo len(Members).
	// Empty means nobody is on call, not an error.
	Members []string

	// IntegrationConfig carries provider-specific settings (API tokens,
	// remote schedule ids). Unused for internal schedules.
	IntegrationConfig map[string]string

	Timezone string // IANA zone name, defaults to UTC

	// RotationStart is the local time-of-day ("HH:MM") at which the
	// rotation flips. CreatedAt is the rotation epoch.
	RotationStart string

	CreatedAt time.Time
	UpdatedAt time.Time

	WorkspaceID string
}
