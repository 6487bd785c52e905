package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tpark252/rotationpress/internal/domain"
	"github.com/tpark252/rotationpress/internal/override"
	"github.com/tpark252/rotationpress/internal/syncengine"
)

// Pagination defaults and limits for sync log listings.
const (
	DefaultLogLimit = 50
	MaxLogLimit     = 500
)

type Store interface {
	CreateSchedule(ctx context.Context, sched domain.Schedule) error
	GetSchedule(ctx context.Context, id uuid.UUID) (domain.Schedule, error)
	ListSchedules(ctx context.Context, workspaceID string) ([]domain.Schedule, error)
	UpdateScheduleMembers(ctx context.Context, id uuid.UUID, members []string, now time.Time) error
	CreateMapping(ctx context.Context, m domain.ScheduleMapping) error
	GetMappingByGroup(ctx context.Context, userGroupID uuid.UUID) (domain.ScheduleMapping, error)
	ListSyncLogs(ctx context.Context, mappingID uuid.UUID, limit int) ([]domain.SyncLogEntry, error)
}

// OverrideStore creates overrides and answers which one is active.
type OverrideStore interface {
	Create(ctx context.Context, p override.CreateParams) (domain.Override, error)
	Active(ctx context.Context, scheduleID uuid.UUID, now time.Time) (domain.Override, bool, error)
}

// IdentityResolver computes the current on-call identity for a schedule.
type IdentityResolver interface {
	CurrentIdentity(ctx context.Context, sched domain.Schedule, now time.Time) (string, bool)
}

// Syncer runs one mapping sync on demand.
type Syncer interface {
	Sync(ctx context.Context, mappingID uuid.UUID) (syncengine.SyncResult, error)
}

// GroupDirectory resolves group names to directory-backed group records.
type GroupDirectory interface {
	EnsureGroup(ctx context.Context, name, workspaceID string) (domain.UserGroup, error)
}

// HealthChecker provides database health status for the /health endpoint.
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

type Handler struct {
	store     Store
	overrides OverrideStore
	resolver  IdentityResolver
	syncer    Syncer
	directory GroupDirectory
	db        HealthChecker
}

func NewHandler(store Store, overrides OverrideStore, resolver IdentityResolver, syncer Syncer, directory GroupDirectory) *Handler {
	return &Handler{
		store:     store,
		overrides: overrides,
		resolver:  resolver,
		syncer:    syncer,
		directory: directory,
	}
}

// WithHealthChecker sets the database health checker for verbose /health responses.
func (h *Handler) WithHealthChecker(db HealthChecker) *Handler {
	h.db = db
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	switch {
	case path == "/health" && r.Method == http.MethodGet:
		h.health(w, r)

	case path == "/schedules" && r.Method == http.MethodPost:
		h.createSchedule(w, r)

	case path == "/schedules" && r.Method == http.MethodGet:
		h.listSchedules(w, r)

	case strings.HasSuffix(path, "/members") && r.Method == http.MethodPut:
		h.updateMembers(w, r)

	case strings.HasSuffix(path, "/status") && r.Method == http.MethodGet:
		h.scheduleStatus(w, r)

	case path == "/overrides" && r.Method == http.MethodPost:
		h.createOverride(w, r)

	case path == "/mappings" && r.Method == http.MethodPost:
		h.createMapping(w, r)

	case strings.HasSuffix(path, "/sync") && r.Method == http.MethodPost:
		h.syncMapping(w, r)

	case strings.HasSuffix(path, "/logs") && r.Method == http.MethodGet:
		h.listSyncLogs(w, r)

	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

// HealthResponse represents the /health endpoint response.
type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	// Check if verbose mode requested via ?verbose=true
	verbose := r.URL.Query().Get("verbose") == "true"

	if !verbose || h.db == nil {
		// Simple health check - just return ok
		writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
		return
	}

	// Verbose health check - check all components
	resp := HealthResponse{
		Status:     "ok",
		Components: make(map[string]string),
	}

	// Check database connectivity with timeout
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		resp.Status = "degraded"
		resp.Components["database"] = "unhealthy: " + err.Error()
	} else {
		resp.Components["database"] = "healthy"
	}

	statusCode := http.StatusOK
	if resp.Status == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, resp)
}

// maxRequestBodySize is the maximum allowed request body size (1MB).
const maxRequestBodySize = 1 << 20

func (h *Handler) createSchedule(w http.ResponseWriter, r *http.Request) {
	var req CreateScheduleRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := validateCreateSchedule(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	kind := domain.ScheduleKind(req.Kind)
	if req.Kind == "" {
		kind = domain.ScheduleKindInternal
	}
	tz := req.Timezone
	if tz == "" {
		tz = "UTC"
	}
	rotationStart := req.RotationStart
	if rotationStart == "" {
		rotationStart = "00:00"
	}

	now := time.Now().UTC()
	sched := domain.Schedule{
		ID:                uuid.New(),
		Name:              req.Name,
		Kind:              kind,
		Frequency:         domain.Frequency(req.Frequency),
		CustomInterval:    req.CustomInterval,
		Members:           req.Members,
		IntegrationConfig: req.IntegrationConfig,
		Timezone:          tz,
		RotationStart:     rotationStart,
		CreatedAt:         now,
		UpdatedAt:         now,
		WorkspaceID:       req.WorkspaceID,
	}

	if err := h.store.CreateSchedule(r.Context(), sched); err != nil {
		log.Printf("api: create schedule error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create schedule")
		return
	}

	writeJSON(w, http.StatusCreated, scheduleToResponse(sched))
}

func (h *Handler) listSchedules(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.URL.Query().Get("workspace_id")
	if workspaceID == "" {
		writeError(w, http.StatusBadRequest, "workspace_id is required")
		return
	}

	schedules, err := h.store.ListSchedules(r.Context(), workspaceID)
	if err != nil {
		log.Printf("api: list schedules error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list schedules")
		return
	}

	resp := ListSchedulesResponse{Schedules: make([]ScheduleResponse, len(schedules))}
	for i, sched := range schedules {
		resp.Schedules[i] = scheduleToResponse(sched)
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) updateMembers(w http.ResponseWriter, r *http.Request) {
	// Path: /schedules/{id}/members
	id, ok := pathID(w, r, "schedules", "members")
	if !ok {
		return
	}

	var req UpdateMembersRequest
	if !decodeBody(w, r, &req) {
		return
	}

	err := h.store.UpdateScheduleMembers(r.Context(), id, req.Members, time.Now().UTC())
	if err != nil {
		if errors.Is(err, syncengine.ErrScheduleNotFound) {
			writeError(w, http.StatusNotFound, "schedule not found")
			return
		}
		log.Printf("api: update members error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to update members")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) scheduleStatus(w http.ResponseWriter, r *http.Request) {
	// Path: /schedules/{id}/status
	id, ok := pathID(w, r, "schedules", "status")
	if !ok {
		return
	}

	sched, err := h.store.GetSchedule(r.Context(), id)
	if err != nil {
		if errors.Is(err, syncengine.ErrScheduleNotFound) {
			writeError(w, http.StatusNotFound, "schedule not found")
			return
		}
		log.Printf("api: get schedule error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load schedule")
		return
	}

	now := time.Now().UTC()
	userID, onCall := h.resolver.CurrentIdentity(r.Context(), sched, now)

	overrideActive := false
	if _, active, err := h.overrides.Active(r.Context(), id, now); err == nil && active {
		overrideActive = true
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		ScheduleID:     id.String(),
		UserID:         userID,
		OnCall:         onCall,
		OverrideActive: overrideActive,
	})
}

func (h *Handler) createOverride(w http.ResponseWriter, r *http.Request) {
	var req CreateOverrideRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := validateCreateOverride(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	scheduleID, _ := uuid.Parse(req.ScheduleID)

	// Reject overrides for unknown schedules up front.
	if _, err := h.store.GetSchedule(r.Context(), scheduleID); err != nil {
		if errors.Is(err, syncengine.ErrScheduleNotFound) {
			writeError(w, http.StatusNotFound, "schedule not found")
			return
		}
		log.Printf("api: get schedule error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load schedule")
		return
	}

	o, err := h.overrides.Create(r.Context(), override.CreateParams{
		ScheduleID:    scheduleID,
		ReplacementID: req.ReplacementID,
		DurationToken: req.Duration,
		Timezone:      req.Timezone,
		Reason:        req.Reason,
		CreatedBy:     req.CreatedBy,
		WorkspaceID:   req.WorkspaceID,
	})
	if err != nil {
		log.Printf("api: create override error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create override")
		return
	}

	writeJSON(w, http.StatusCreated, OverrideResponse{
		ID:            o.ID.String(),
		ScheduleID:    o.ScheduleID.String(),
		ReplacementID: o.ReplacementID,
		StartAt:       formatTime(o.StartAt),
		EndAt:         formatTime(o.EndAt),
		Reason:        o.Reason,
		CreatedBy:     o.CreatedBy,
		WorkspaceID:   o.WorkspaceID,
	})
}

func (h *Handler) createMapping(w http.ResponseWriter, r *http.Request) {
	var req CreateMappingRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := validateCreateMapping(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	group, err := h.directory.EnsureGroup(r.Context(), req.GroupName, req.WorkspaceID)
	if err != nil {
		log.Printf("api: ensure group error: %v", err)
		writeError(w, http.StatusBadGateway, "failed to provision user group")
		return
	}

	// A group is driven by at most one mapping; a second one would fight
	// the first over the member list.
	if existing, err := h.store.GetMappingByGroup(r.Context(), group.ID); err == nil {
		writeError(w, http.StatusConflict, "group already mapped by "+existing.ID.String())
		return
	} else if !errors.Is(err, syncengine.ErrMappingNotFound) {
		log.Printf("api: mapping lookup error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to check existing mappings")
		return
	}

	scheduleIDs := make([]uuid.UUID, len(req.ScheduleIDs))
	for i, raw := range req.ScheduleIDs {
		scheduleIDs[i], _ = uuid.Parse(raw)
	}
	cr := domain.ConflictResolution(req.ConflictResolution)
	if req.ConflictResolution == "" {
		cr = domain.ConflictMergeAll
	}

	mapping := domain.ScheduleMapping{
		ID:                 uuid.New(),
		UserGroupID:        group.ID,
		ScheduleIDs:        scheduleIDs,
		ConflictResolution: cr,
		WorkspaceID:        req.WorkspaceID,
		CreatedAt:          time.Now().UTC(),
	}

	if err := h.store.CreateMapping(r.Context(), mapping); err != nil {
		log.Printf("api: create mapping error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create mapping")
		return
	}

	resp := MappingResponse{
		ID:                 mapping.ID.String(),
		UserGroupID:        group.ID.String(),
		ExternalGroupID:    group.ExternalGroupID,
		ScheduleIDs:        req.ScheduleIDs,
		ConflictResolution: string(cr),
		WorkspaceID:        mapping.WorkspaceID,
		CreatedAt:          formatTime(mapping.CreatedAt),
	}

	// Sync immediately so the group reflects the mapping without waiting
	// for the periodic driver. A failed first sync is recorded in the
	// sync log; the mapping itself stands.
	result, err := h.syncer.Sync(r.Context(), mapping.ID)
	if err != nil {
		log.Printf("api: initial sync for mapping %s failed: %v", mapping.ID, err)
		resp.SyncStatus = string(domain.SyncStatusError)
	} else {
		resp.SyncStatus = string(domain.SyncStatusSuccess)
		resp.UsersSynced = result.UsersSynced
	}

	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) syncMapping(w http.ResponseWriter, r *http.Request) {
	// Path: /mappings/{id}/sync
	id, ok := pathID(w, r, "mappings", "sync")
	if !ok {
		return
	}

	result, err := h.syncer.Sync(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, syncengine.ErrMappingNotFound):
			writeError(w, http.StatusNotFound, "mapping not found")
		case errors.Is(err, syncengine.ErrMembershipWrite):
			writeError(w, http.StatusBadGateway, "membership write failed")
		default:
			log.Printf("api: sync mapping error: %v", err)
			writeError(w, http.StatusInternalServerError, "sync failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, SyncResponse{
		MappingID:   id.String(),
		UsersSynced: result.UsersSynced,
		Users:       result.Users,
	})
}

func (h *Handler) listSyncLogs(w http.ResponseWriter, r *http.Request) {
	// Path: /mappings/{id}/logs
	id, ok := pathID(w, r, "mappings", "logs")
	if !ok {
		return
	}

	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := h.store.ListSyncLogs(r.Context(), id, limit)
	if err != nil {
		log.Printf("api: list sync logs error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list sync logs")
		return
	}

	resp := ListSyncLogsResponse{Logs: make([]SyncLogResponse, len(entries))}
	for i, entry := range entries {
		resp.Logs[i] = SyncLogResponse{
			ID:           entry.ID.String(),
			MappingID:    entry.MappingID.String(),
			Status:       string(entry.Status),
			UsersSynced:  entry.UsersSynced,
			ErrorMessage: entry.ErrorMessage,
			SyncedAt:     formatTime(entry.SyncedAt),
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// decodeBody decodes a size-limited JSON request body into v.
// Writes the error response and returns false on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if err.Error() == "http: request body too large" {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

// pathID extracts the id segment from a /{prefix}/{id}/{suffix} path.
// Writes the error response and returns false on failure.
func pathID(w http.ResponseWriter, r *http.Request, prefix, suffix string) (uuid.UUID, bool) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 3 || parts[0] != prefix || parts[2] != suffix {
		writeError(w, http.StatusNotFound, "not found")
		return uuid.UUID{}, false
	}

	id, err := uuid.Parse(parts[1])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return uuid.UUID{}, false
	}
	return id, true
}

func scheduleToResponse(sched domain.Schedule) ScheduleResponse {
	members := sched.Members
	if members == nil {
		members = []string{}
	}
	return ScheduleResponse{
		ID:             sched.ID.String(),
		Name:           sched.Name,
		WorkspaceID:    sched.WorkspaceID,
		Kind:           string(sched.Kind),
		Frequency:      string(sched.Frequency),
		CustomInterval: sched.CustomInterval,
		Members:        members,
		Timezone:       sched.Timezone,
		RotationStart:  sched.RotationStart,
		CreatedAt:      formatTime(sched.CreatedAt),
		UpdatedAt:      formatTime(sched.UpdatedAt),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: json encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// parseLimit extracts and validates the limit query parameter for log
// listings. Returns DefaultLogLimit if unspecified.
func parseLimit(r *http.Request) (int, error) {
	limitStr := r.URL.Query().Get("limit")
	if limitStr == "" {
		return DefaultLogLimit, nil
	}

	limit, err := strconv.Atoi(limitStr)
	if err != nil {
		return 0, err
	}
	if limit < 0 {
		return 0, strconv.ErrRange
	}
	if limit > MaxLogLimit {
		return 0, &limitExceededError{max: MaxLogLimit}
	}
	if limit == 0 {
		limit = DefaultLogLimit
	}
	return limit, nil
}

type limitExceededError struct {
	max int
}

func (e *limitExceededError) Error() string {
	return "limit exceeds maximum of " + strconv.Itoa(e.max)
}
