package api

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tpark252/rotationpress/internal/domain"
	"github.com/tpark252/rotationpress/internal/duration"
)

func validateCreateSchedule(req CreateScheduleRequest) error {
	if req.Name == "" {
		return fmt.Errorf("name is required")
	}
	if req.WorkspaceID == "" {
		return fmt.Errorf("workspace_id is required")
	}

	kind := domain.ScheduleKind(req.Kind)
	if req.Kind == "" {
		kind = domain.ScheduleKindInternal
	}
	switch kind {
	case domain.ScheduleKindInternal, domain.ScheduleKindPagerDuty, domain.ScheduleKindOpsGenie:
	default:
		return fmt.Errorf("invalid kind %q", req.Kind)
	}

	if kind == domain.ScheduleKindInternal {
		freq := domain.Frequency(req.Frequency)
		switch freq {
		case domain.FrequencyDaily, domain.FrequencyWeekly, domain.FrequencyMonthly:
		case domain.FrequencyCustom:
			if _, err := duration.Parse(req.CustomInterval); err != nil {
				return fmt.Errorf("invalid custom_interval: %w", err)
			}
		default:
			return fmt.Errorf("invalid frequency %q", req.Frequency)
		}
	}

	tz := req.Timezone
	if tz == "" {
		tz = "UTC"
	}
	if err := validateTimezone(tz); err != nil {
		return fmt.Errorf("invalid timezone: %w", err)
	}

	if req.RotationStart != "" {
		if err := validateClock(req.RotationStart); err != nil {
			return fmt.Errorf("invalid rotation_start: %w", err)
		}
	}

	return nil
}

func validateCreateOverride(req CreateOverrideRequest) error {
	if req.ScheduleID == "" {
		return fmt.Errorf("schedule_id is required")
	}
	if _, err := uuid.Parse(req.ScheduleID); err != nil {
		return fmt.Errorf("invalid schedule_id")
	}
	if req.ReplacementID == "" {
		return fmt.Errorf("replacement_id is required")
	}
	if _, err := duration.Parse(req.Duration); err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	if req.Timezone != "" {
		if err := validateTimezone(req.Timezone); err != nil {
			return fmt.Errorf("invalid timezone: %w", err)
		}
	}
	if req.CreatedBy == "" {
		return fmt.Errorf("created_by is required")
	}
	if req.WorkspaceID == "" {
		return fmt.Errorf("workspace_id is required")
	}
	return nil
}

func validateCreateMapping(req CreateMappingRequest) error {
	if req.GroupName == "" {
		return fmt.Errorf("group_name is required")
	}
	if req.WorkspaceID == "" {
		return fmt.Errorf("workspace_id is required")
	}
	if len(req.ScheduleIDs) == 0 {
		return fmt.Errorf("schedule_ids is required")
	}
	for _, id := range req.ScheduleIDs {
		if _, err := uuid.Parse(id); err != nil {
			return fmt.Errorf("invalid schedule id %q", id)
		}
	}

	if req.ConflictResolution != "" {
		switch domain.ConflictResolution(req.ConflictResolution) {
		case domain.ConflictMergeAll, domain.ConflictPriorityBased, domain.ConflictRoundRobin:
		default:
			return fmt.Errorf("invalid conflict_resolution %q", req.ConflictResolution)
		}
	}
	return nil
}

func validateTimezone(tz string) error {
	_, err := time.LoadLocation(tz)
	return err
}

// validateClock checks a "HH:MM" time-of-day string.
func validateClock(s string) error {
	if len(s) != 5 || s[2] != ':' {
		return fmt.Errorf("must be HH:MM")
	}
	if _, err := time.Parse("15:04", s); err != nil {
		return fmt.Errorf("must be HH:MM")
	}
	return nil
}
