package api

import "time"

type CreateScheduleRequest struct {
	Name        string `json:"name"`
	WorkspaceID string `json:"workspace_id"`

	Kind string `json:"kind,omitempty"` // default "internal"

	Frequency      string `json:"frequency,omitempty"`
	CustomInterval string `json:"custom_interval,omitempty"` // required when frequency is "custom"

	Members []string `json:"members,omitempty"`

	// IntegrationConfig carries provider credentials for external kinds.
	// It is never echoed back in responses.
	IntegrationConfig map[string]string `json:"integration_config,omitempty"`

	Timezone      string `json:"timezone,omitempty"`       // default "UTC"
	RotationStart string `json:"rotation_start,omitempty"` // "HH:MM", default "00:00"
}

type UpdateMembersRequest struct {
	Members []string `json:"members"`
}

type ScheduleResponse struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	WorkspaceID    string   `json:"workspace_id"`
	Kind           string   `json:"kind"`
	Frequency      string   `json:"frequency,omitempty"`
	CustomInterval string   `json:"custom_interval,omitempty"`
	Members        []string `json:"members"`
	Timezone       string   `json:"timezone"`
	RotationStart  string   `json:"rotation_start"`
	CreatedAt      string   `json:"created_at"`
	UpdatedAt      string   `json:"updated_at"`
}

type ListSchedulesResponse struct {
	Schedules []ScheduleResponse `json:"schedules"`
}

// StatusResponse reports who is on call for a schedule right now.
// UserID is empty and OnCall false when nobody is on call.
type StatusResponse struct {
	ScheduleID     string `json:"schedule_id"`
	UserID         string `json:"user_id,omitempty"`
	OnCall         bool   `json:"on_call"`
	OverrideActive bool   `json:"override_active"`
}

type CreateOverrideRequest struct {
	ScheduleID    string `json:"schedule_id"`
	ReplacementID string `json:"replacement_id"`
	Duration      string `json:"duration"` // compact token: "30m", "8h", "3d", "2w"
	Timezone      string `json:"timezone,omitempty"`
	Reason        string `json:"reason,omitempty"`
	CreatedBy     string `json:"created_by"`
	WorkspaceID   string `json:"workspace_id"`
}

type OverrideResponse struct {
	ID            string `json:"id"`
	ScheduleID    string `json:"schedule_id"`
	ReplacementID string `json:"replacement_id"`
	StartAt       string `json:"start_at"`
	EndAt         string `json:"end_at"`
	Reason        string `json:"reason,omitempty"`
	CreatedBy     string `json:"created_by"`
	WorkspaceID   string `json:"workspace_id"`
}

type CreateMappingRequest struct {
	GroupName          string   `json:"group_name"`
	ScheduleIDs        []string `json:"schedule_ids"`
	ConflictResolution string   `json:"conflict_resolution,omitempty"` // default "merge_all"
	WorkspaceID        string   `json:"workspace_id"`
}

type MappingResponse struct {
	ID                 string   `json:"id"`
	UserGroupID        string   `json:"user_group_id"`
	ExternalGroupID    string   `json:"external_group_id"`
	ScheduleIDs        []string `json:"schedule_ids"`
	ConflictResolution string   `json:"conflict_resolution"`
	WorkspaceID        string   `json:"workspace_id"`
	CreatedAt          string   `json:"created_at"`

	// SyncStatus reports the outcome of the sync triggered by creation.
	SyncStatus  string `json:"sync_status,omitempty"`
	UsersSynced int    `json:"users_synced,omitempty"`
}

type SyncResponse struct {
	MappingID   string   `json:"mapping_id"`
	UsersSynced int      `json:"users_synced"`
	Users       []string `json:"users"`
}

type SyncLogResponse struct {
	ID           string `json:"id"`
	MappingID    string `json:"mapping_id"`
	Status       string `json:"status"`
	UsersSynced  int    `json:"users_synced"`
	ErrorMessage string `json:"error_message,omitempty"`
	SyncedAt     string `json:"synced_at"`
}

type ListSyncLogsResponse struct {
	Logs []SyncLogResponse `json:"logs"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
