package postgres

const queryInsertSchedule = `
INSERT INTO schedules (id, name, kind, frequency, custom_interval, members, integration_config, timezone, rotation_start, created_at, updated_at, workspace_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
`

const queryGetSchedule = `
SELECT id, name, kind, frequency, custom_interval, members, integration_config, timezone, rotation_start, created_at, updated_at, workspace_id
FROM schedules
WHERE id = $1
`

const queryListSchedules = `
SELECT id, name, kind, frequency, custom_interval, members, integration_config, timezone, rotation_start, created_at, updated_at, workspace_id
FROM schedules
WHERE workspace_id = $1
ORDER BY created_at ASC
`

const queryUpdateScheduleMembers = `
UPDATE schedules
SET members = $1, updated_at = $2
WHERE id = $3
`

const queryInsertOverride = `
INSERT INTO overrides (id, schedule_id, replacement_id, start_at, end_at, duration_value, duration_unit, timezone, reason, created_by, created_at, workspace_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
`

const queryActiveOverride = `
SELECT id, schedule_id, replacement_id, start_at, end_at, duration_value, duration_unit, timezone, reason, created_by, created_at, workspace_id
FROM overrides
WHERE schedule_id = $1
  AND end_at > $2
ORDER BY start_at DESC
LIMIT 1
`

const queryDeleteExpiredOverrides = `
DELETE FROM overrides
WHERE end_at < $1
`

const queryInsertUserGroup = `
INSERT INTO user_groups (id, external_group_id, name, workspace_id, created_at)
VALUES ($1, $2, $3, $4, $5)
`

const queryGetUserGroup = `
SELECT id, external_group_id, name, workspace_id, created_at
FROM user_groups
WHERE id = $1
`

const queryGetUserGroupByName = `
SELECT id, external_group_id, name, workspace_id, created_at
FROM user_groups
WHERE name = $1 AND workspace_id = $2
`

const queryInsertMapping = `
INSERT INTO schedule_mappings (id, user_group_id, schedule_ids, conflict_resolution, workspace_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
`

const queryGetMapping = `
SELECT id, user_group_id, schedule_ids, conflict_resolution, workspace_id, created_at
FROM schedule_mappings
WHERE id = $1
`

const queryGetMappingByGroup = `
SELECT id, user_group_id, schedule_ids, conflict_resolution, workspace_id, created_at
FROM schedule_mappings
WHERE user_group_id = $1
LIMIT 1
`

const queryListMappings = `
SELECT id, user_group_id, schedule_ids, conflict_resolution, workspace_id, created_at
FROM schedule_mappings
WHERE workspace_id = $1
ORDER BY created_at ASC
`

const queryListWorkspaceIDs = `
SELECT DISTINCT workspace_id
FROM schedule_mappings
ORDER BY workspace_id
`

const queryInsertSyncLog = `
INSERT INTO sync_logs (id, mapping_id, status, users_synced, error_message, synced_at)
VALUES ($1, $2, $3, $4, $5, $6)
`

const queryListSyncLogs = `
SELECT id, mapping_id, status, users_synced, error_message, synced_at
FROM sync_logs
WHERE mapping_id = $1
ORDER BY synced_at DESC
LIMIT $2
`
