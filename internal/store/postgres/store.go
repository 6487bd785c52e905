package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tpark252/rotationpress/internal/domain"
	"github.com/tpark252/rotationpress/internal/membership"
	"github.com/tpark252/rotationpress/internal/override"
	"github.com/tpark252/rotationpress/internal/syncengine"
)

// Store implements the persistence surfaces of the sync engine, the
// override store, the membership directory and the periodic driver using
// PostgreSQL. Ordered sequences (members, schedule_ids) and the
// integration config are stored as JSONB; order is significant and
// preserved.
type Store struct {
	db        *sql.DB
	opTimeout time.Duration
}

// New creates a store. opTimeout bounds every database operation; zero
// means no per-operation timeout beyond the caller's context.
func New(db *sql.DB, opTimeout time.Duration) *Store {
	return &Store{db: db, opTimeout: opTimeout}
}

func (s *Store) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.opTimeout)
}

// CreateSchedule inserts a new schedule.
func (s *Store) CreateSchedule(ctx context.Context, sched domain.Schedule) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	members, err := json.Marshal(sched.Members)
	if err != nil {
		return fmt.Errorf("marshal members: %w", err)
	}
	config, err := json.Marshal(sched.IntegrationConfig)
	if err != nil {
		return fmt.Errorf("marshal integration config: %w", err)
	}

	_, err = s.db.ExecContext(ctx, queryInsertSchedule,
		sched.ID,
		sched.Name,
		string(sched.Kind),
		string(sched.Frequency),
		sched.CustomInterval,
		members,
		config,
		sched.Timezone,
		sched.RotationStart,
		sched.CreatedAt,
		sched.UpdatedAt,
		sched.WorkspaceID,
	)
	return err
}

// GetSchedule returns a schedule by id.
// Returns syncengine.ErrScheduleNotFound when no row matches.
func (s *Store) GetSchedule(ctx context.Context, id uuid.UUID) (domain.Schedule, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	row := s.db.QueryRowContext(ctx, queryGetSchedule, id)
	sched, err := scanSchedule(row)
	if err == sql.ErrNoRows {
		return domain.Schedule{}, syncengine.ErrScheduleNotFound
	}
	return sched, err
}

// ListSchedules returns the workspace's schedules, oldest first.
func (s *Store) ListSchedules(ctx context.Context, workspaceID string) ([]domain.Schedule, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, queryListSchedules, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Schedule
	for rows.Next() {
		sched, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, sched)
	}
	return result, rows.Err()
}

// UpdateScheduleMembers replaces a schedule's rotation order in place.
// Returns syncengine.ErrScheduleNotFound when the schedule does not exist.
func (s *Store) UpdateScheduleMembers(ctx context.Context, id uuid.UUID, members []string, now time.Time) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	data, err := json.Marshal(members)
	if err != nil {
		return fmt.Errorf("marshal members: %w", err)
	}

	result, err := s.db.ExecContext(ctx, queryUpdateScheduleMembers, data, now, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return syncengine.ErrScheduleNotFound
	}
	return nil
}

// InsertOverride inserts a new override record.
func (s *Store) InsertOverride(ctx context.Context, o domain.Override) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, queryInsertOverride,
		o.ID,
		o.ScheduleID,
		o.ReplacementID,
		o.StartAt,
		o.EndAt,
		o.DurationValue,
		o.DurationUnit,
		o.Timezone,
		nullableString(o.Reason),
		o.CreatedBy,
		o.CreatedAt,
		o.WorkspaceID,
	)
	return err
}

// ActiveForSchedule returns the override with end_at > now for the
// schedule, latest start_at first. Returns override.ErrNoActiveOverride
// when no row matches.
func (s *Store) ActiveForSchedule(ctx context.Context, scheduleID uuid.UUID, now time.Time) (domain.Override, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var o domain.Override
	var reason sql.NullString

	err := s.db.QueryRowContext(ctx, queryActiveOverride, scheduleID, now).Scan(
		&o.ID,
		&o.ScheduleID,
		&o.ReplacementID,
		&o.StartAt,
		&o.EndAt,
		&o.DurationValue,
		&o.DurationUnit,
		&o.Timezone,
		&reason,
		&o.CreatedBy,
		&o.CreatedAt,
		&o.WorkspaceID,
	)
	if err == sql.ErrNoRows {
		return domain.Override{}, override.ErrNoActiveOverride
	}
	if err != nil {
		return domain.Override{}, err
	}
	o.Reason = reason.String
	return o, nil
}

// DeleteExpiredOverrides removes overrides whose window has passed and
// returns the number deleted.
func (s *Store) DeleteExpiredOverrides(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	result, err := s.db.ExecContext(ctx, queryDeleteExpiredOverrides, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// InsertUserGroup inserts a group record. The (name, workspace_id) unique
// constraint makes concurrent inserts for the same key fail, which the
// membership directory resolves by re-reading the winner.
func (s *Store) InsertUserGroup(ctx context.Context, g domain.UserGroup) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, queryInsertUserGroup,
		g.ID,
		g.ExternalGroupID,
		g.Name,
		g.WorkspaceID,
		g.CreatedAt,
	)
	return err
}

// GetUserGroup returns a group by id.
// Returns syncengine.ErrUserGroupNotFound when no row matches.
func (s *Store) GetUserGroup(ctx context.Context, id uuid.UUID) (domain.UserGroup, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	row := s.db.QueryRowContext(ctx, queryGetUserGroup, id)
	g, err := scanUserGroup(row)
	if err == sql.ErrNoRows {
		return domain.UserGroup{}, syncengine.ErrUserGroupNotFound
	}
	return g, err
}

// GetUserGroupByName returns the group for (name, workspace).
// Returns membership.ErrGroupNotFound when no row matches.
func (s *Store) GetUserGroupByName(ctx context.Context, name, workspaceID string) (domain.UserGroup, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	row := s.db.QueryRowContext(ctx, queryGetUserGroupByName, name, workspaceID)
	g, err := scanUserGroup(row)
	if err == sql.ErrNoRows {
		return domain.UserGroup{}, membership.ErrGroupNotFound
	}
	return g, err
}

// CreateMapping inserts a new schedule mapping.
func (s *Store) CreateMapping(ctx context.Context, m domain.ScheduleMapping) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	ids, err := json.Marshal(m.ScheduleIDs)
	if err != nil {
		return fmt.Errorf("marshal schedule ids: %w", err)
	}

	_, err = s.db.ExecContext(ctx, queryInsertMapping,
		m.ID,
		m.UserGroupID,
		ids,
		string(m.ConflictResolution),
		m.WorkspaceID,
		m.CreatedAt,
	)
	return err
}

// GetMapping returns a mapping by id.
// Returns syncengine.ErrMappingNotFound when no row matches.
func (s *Store) GetMapping(ctx context.Context, id uuid.UUID) (domain.ScheduleMapping, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	row := s.db.QueryRowContext(ctx, queryGetMapping, id)
	m, err := scanMapping(row)
	if err == sql.ErrNoRows {
		return domain.ScheduleMapping{}, syncengine.ErrMappingNotFound
	}
	return m, err
}

// GetMappingByGroup returns the mapping bound to the group, if any.
// Returns syncengine.ErrMappingNotFound when the group has no mapping.
func (s *Store) GetMappingByGroup(ctx context.Context, userGroupID uuid.UUID) (domain.ScheduleMapping, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	row := s.db.QueryRowContext(ctx, queryGetMappingByGroup, userGroupID)
	m, err := scanMapping(row)
	if err == sql.ErrNoRows {
		return domain.ScheduleMapping{}, syncengine.ErrMappingNotFound
	}
	return m, err
}

// ListMappings returns the workspace's mappings, oldest first.
func (s *Store) ListMappings(ctx context.Context, workspaceID string) ([]domain.ScheduleMapping, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, queryListMappings, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ScheduleMapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

// ListWorkspaceIDs returns the distinct workspace ids that have mappings.
func (s *Store) ListWorkspaceIDs(ctx context.Context) ([]string, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, queryListWorkspaceIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		result = append(result, id)
	}
	return result, rows.Err()
}

// InsertSyncLog appends a sync log entry.
func (s *Store) InsertSyncLog(ctx context.Context, entry domain.SyncLogEntry) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, queryInsertSyncLog,
		entry.ID,
		entry.MappingID,
		string(entry.Status),
		entry.UsersSynced,
		nullableString(entry.ErrorMessage),
		entry.SyncedAt,
	)
	return err
}

// ListSyncLogs returns the mapping's most recent log entries.
func (s *Store) ListSyncLogs(ctx context.Context, mappingID uuid.UUID, limit int) ([]domain.SyncLogEntry, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, queryListSyncLogs, mappingID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.SyncLogEntry
	for rows.Next() {
		var entry domain.SyncLogEntry
		var status string
		var message sql.NullString

		err := rows.Scan(
			&entry.ID,
			&entry.MappingID,
			&status,
			&entry.UsersSynced,
			&message,
			&entry.SyncedAt,
		)
		if err != nil {
			return nil, err
		}
		entry.Status = domain.SyncStatus(status)
		entry.ErrorMessage = message.String
		result = append(result, entry)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row rowScanner) (domain.Schedule, error) {
	var sched domain.Schedule
	var kind, frequency string
	var members, config []byte
	var customInterval sql.NullString

	err := row.Scan(
		&sched.ID,
		&sched.Name,
		&kind,
		&frequency,
		&customInterval,
		&members,
		&config,
		&sched.Timezone,
		&sched.RotationStart,
		&sched.CreatedAt,
		&sched.UpdatedAt,
		&sched.WorkspaceID,
	)
	if err != nil {
		return domain.Schedule{}, err
	}

	sched.Kind = domain.ScheduleKind(kind)
	sched.Frequency = domain.Frequency(frequency)
	sched.CustomInterval = customInterval.String

	if err := json.Unmarshal(members, &sched.Members); err != nil {
		return domain.Schedule{}, fmt.Errorf("unmarshal members: %w", err)
	}
	if err := json.Unmarshal(config, &sched.IntegrationConfig); err != nil {
		return domain.Schedule{}, fmt.Errorf("unmarshal integration config: %w", err)
	}
	return sched, nil
}

func scanUserGroup(row rowScanner) (domain.UserGroup, error) {
	var g domain.UserGroup
	err := row.Scan(
		&g.ID,
		&g.ExternalGroupID,
		&g.Name,
		&g.WorkspaceID,
		&g.CreatedAt,
	)
	return g, err
}

func scanMapping(row rowScanner) (domain.ScheduleMapping, error) {
	var m domain.ScheduleMapping
	var ids []byte
	var cr string

	err := row.Scan(
		&m.ID,
		&m.UserGroupID,
		&ids,
		&cr,
		&m.WorkspaceID,
		&m.CreatedAt,
	)
	if err != nil {
		return domain.ScheduleMapping{}, err
	}

	m.ConflictResolution = domain.ConflictResolution(cr)
	if err := json.Unmarshal(ids, &m.ScheduleIDs); err != nil {
		return domain.ScheduleMapping{}, fmt.Errorf("unmarshal schedule ids: %w", err)
	}
	return m, nil
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// IsDuplicateKeyError checks whether the error is a PostgreSQL unique
// violation (error code 23505).
func IsDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "23505") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key")
}

// Compile-time interface assertions
var (
	_ syncengine.Store           = (*Store)(nil)
	_ override.Repository        = (*Store)(nil)
	_ membership.GroupRepository = (*Store)(nil)
)
