package domain

import (
	"time"

	"github.com/google/uuid"
)

type SyncStatus string

const (
	SyncStatusSuccess SyncStatus = "success"
	SyncStatusError   SyncStatus = "error"
)

// SyncLogEntry records one sync attempt for a mapping. Entries are
// append-only and used for observability, never for correctness.
type SyncLogEntry struct {
	ID        uuid.UUID
	MappingID uuid.UUID

	Status      SyncStatus
	UsersSynced int
	// ErrorMessage is empty for successful syncs.
	ErrorMessage string

	SyncedAt time.Time
}
