package membership

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/tpark252/rotationpress/internal/domain"
)

// ErrGroupNotFound is returned by repositories when no group record
// matches (name, workspace).
var ErrGroupNotFound = errors.New("user group not found")

// GroupRepository is the persistence surface for local group records.
type GroupRepository interface {
	GetUserGroupByName(ctx context.Context, name, workspaceID string) (domain.UserGroup, error)
	// InsertUserGroup must fail on a duplicate (name, workspace_id) pair so
	// concurrent ensures converge on one record.
	InsertUserGroup(ctx context.Context, g domain.UserGroup) error
}

// GroupCreator creates the group in the external directory service.
type GroupCreator interface {
	CreateGroup(ctx context.Context, name, workspaceID string) (string, error)
}

// Directory provides lookup-or-create semantics over group records:
// (name, workspaceID) is the de-facto unique key, external creation
// happens at most once per key.
type Directory struct {
	repo    GroupRepository
	creator GroupCreator
	clock   func() time.Time
}

func NewDirectory(repo GroupRepository, creator GroupCreator) *Directory {
	return &Directory{repo: repo, creator: creator, clock: time.Now}
}

// WithClock replaces the time source. For tests.
func (d *Directory) WithClock(clock func() time.Time) *Directory {
	d.clock = clock
	return d
}

// EnsureGroup returns the existing group record for (name, workspaceID),
// creating the group in the directory service and persisting the record
// if none exists yet. Idempotent.
func (d *Directory) EnsureGroup(ctx context.Context, name, workspaceID string) (domain.UserGroup, error) {
	existing, err := d.repo.GetUserGroupByName(ctx, name, workspaceID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrGroupNotFound) {
		return domain.UserGroup{}, fmt.Errorf("lookup group %q: %w", name, err)
	}

	externalID, err := d.creator.CreateGroup(ctx, name, workspaceID)
	if err != nil {
		return domain.UserGroup{}, fmt.Errorf("create external group %q: %w", name, err)
	}

	group := domain.UserGroup{
		ID:              uuid.New(),
		ExternalGroupID: externalID,
		Name:            name,
		WorkspaceID:     workspaceID,
		CreatedAt:       d.clock().UTC(),
	}

	if err := d.repo.InsertUserGroup(ctx, group); err != nil {
		// A concurrent ensure may have won the insert race; the unique key
		// guarantees a single record, so re-read it.
		winner, lookupErr := d.repo.GetUserGroupByName(ctx, name, workspaceID)
		if lookupErr == nil {
			log.Printf("membership: group %q already persisted concurrently, reusing", name)
			return winner, nil
		}
		return domain.UserGroup{}, fmt.Errorf("persist group %q: %w", name, err)
	}

	log.Printf("membership: created group %q workspace=%s external=%s", name, workspaceID, externalID)
	return group, nil
}
