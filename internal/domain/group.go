package domain

import (
	"time"

	"github.com/google/uuid"
)

// UserGroup is the local record of a group in the external directory
// service. (Name, WorkspaceID) is a de-facto unique key: groups are
// created lazily on first use and reused afterwards.
type UserGroup struct {
	ID uuid.UUID

	// ExternalGroupID is the group's handle in the directory service.
	ExternalGroupID string

	Name        string
	WorkspaceID string

	CreatedAt time.Time
}
