// Package override manages time-bounded manual replacements of the
// computed on-call identity. At most one override is active per schedule
// at any instant: among overlapping windows, the latest start time wins.
package override

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tpark252/rotationpress/internal/domain"
	"github.com/tpark252/rotationpress/internal/duration"
)

// Repository is the persistence surface the override store needs.
// Implementations must return ErrNoActiveOverride from ActiveForSchedule
// when no override with end_at > now exists.
type Repository interface {
	InsertOverride(ctx context.Context, o domain.Override) error
	// ActiveForSchedule returns the override for the schedule with
	// end_at > now, tie-broken by latest start_at.
	ActiveForSchedule(ctx context.Context, scheduleID uuid.UUID, now time.Time) (domain.Override, error)
	DeleteExpiredOverrides(ctx context.Context, now time.Time) (int64, error)
}

// ErrNoActiveOverride is returned by repositories when no override covers
// the requested instant.
var ErrNoActiveOverride = errors.New("no active override")

type Store struct {
	repo  Repository
	clock func() time.Time
}

func New(repo Repository) *Store {
	return &Store{repo: repo, clock: time.Now}
}

// WithClock replaces the time source. For tests.
func (s *Store) WithClock(clock func() time.Time) *Store {
	s.clock = clock
	return s
}

// CreateParams are the caller-supplied fields of a new override. EndAt is
// computed from the duration token at creation time.
type CreateParams struct {
	ScheduleID    uuid.UUID
	ReplacementID string
	DurationToken string
	Timezone      string
	Reason        string
	CreatedBy     string
	WorkspaceID   string
}

// Create parses the duration token, computes the override window starting
// now, persists it and returns the full record. Propagates
// duration.ErrInvalidDuration for malformed tokens.
func (s *Store) Create(ctx context.Context, p CreateParams) (domain.Override, error) {
	d, err := duration.Parse(p.DurationToken)
	if err != nil {
		return domain.Override{}, err
	}

	now := s.clock().UTC()
	o := domain.Override{
		ID:            uuid.New(),
		ScheduleID:    p.ScheduleID,
		ReplacementID: p.ReplacementID,
		StartAt:       now,
		EndAt:         now.Add(time.Duration(d.Millis) * time.Millisecond),
		DurationValue: d.Value,
		DurationUnit:  string(d.Unit),
		Timezone:      p.Timezone,
		Reason:        p.Reason,
		CreatedBy:     p.CreatedBy,
		CreatedAt:     now,
		WorkspaceID:   p.WorkspaceID,
	}

	if err := s.repo.InsertOverride(ctx, o); err != nil {
		return domain.Override{}, fmt.Errorf("insert override: %w", err)
	}
	return o, nil
}

// Active returns the single effective override for the schedule at now,
// or false if none. Expiry is re-checked here: an expired override must
// never be treated as active, regardless of sweep cadence.
func (s *Store) Active(ctx context.Context, scheduleID uuid.UUID, now time.Time) (domain.Override, bool, error) {
	o, err := s.repo.ActiveForSchedule(ctx, scheduleID, now)
	if err != nil {
		if errors.Is(err, ErrNoActiveOverride) {
			return domain.Override{}, false, nil
		}
		return domain.Override{}, false, fmt.Errorf("active override: %w", err)
	}
	if !o.ActiveAt(now) {
		return domain.Override{}, false, nil
	}
	return o, true, nil
}

// SweepExpired deletes overrides whose window has fully passed. This is a
// cleanup optimization, not a correctness requirement; it is safe to run
// concurrently with reads because Active re-checks end_at.
func (s *Store) SweepExpired(ctx context.Context) (int64, error) {
	now := s.clock().UTC()
	deleted, err := s.repo.DeleteExpiredOverrides(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("sweep expired overrides: %w", err)
	}
	return deleted, nil
}
