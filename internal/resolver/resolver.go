// Package resolver computes the single current responsible identity for a
// schedule: the internal rotation position or an external provider lookup,
// with an active override always taking precedence over either.
package resolver

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/tpark252/rotationpress/internal/domain"
	"github.com/tpark252/rotationpress/internal/provider"
	"github.com/tpark252/rotationpress/internal/rotation"
)

// OverrideSource supplies the single effective override for a schedule.
type OverrideSource interface {
	Active(ctx context.Context, scheduleID uuid.UUID, now time.Time) (domain.Override, bool, error)
}

// ProviderRegistry maps external schedule kinds to provider lookups.
type ProviderRegistry interface {
	Lookup(kind domain.ScheduleKind) (provider.Provider, error)
}

type Resolver struct {
	overrides OverrideSource
	providers ProviderRegistry
}

func New(overrides OverrideSource, providers ProviderRegistry) *Resolver {
	return &Resolver{overrides: overrides, providers: providers}
}

// CurrentIdentity returns the identity responsible for the schedule at now,
// or false when nobody is (empty rotation, provider failure, provider
// reports nobody). Provider and override lookup failures degrade to a
// logged warning; they never abort the caller's sync.
func (r *Resolver) CurrentIdentity(ctx context.Context, sched domain.Schedule, now time.Time) (string, bool) {
	// Override precedence is absolute and kind-independent.
	if o, ok, err := r.overrides.Active(ctx, sched.ID, now); err != nil {
		log.Printf("resolver: schedule=%s override lookup failed: %v", sched.ID, err)
	} else if ok {
		return o.ReplacementID, true
	}

	if sched.Kind.External() {
		return r.resolveExternal(ctx, sched)
	}
	return r.resolveInternal(sched, now)
}

func (r *Resolver) resolveInternal(sched domain.Schedule, now time.Time) (string, bool) {
	if len(sched.Members) == 0 {
		return "", false
	}

	idx, err := rotation.CurrentIndex(sched, now)
	if err != nil {
		log.Printf("resolver: schedule=%s rotation index failed: %v", sched.ID, err)
		return "", false
	}
	return sched.Members[idx], true
}

func (r *Resolver) resolveExternal(ctx context.Context, sched domain.Schedule) (string, bool) {
	p, err := r.providers.Lookup(sched.Kind)
	if err != nil {
		log.Printf("resolver: schedule=%s %v", sched.ID, err)
		return "", false
	}

	user, err := p.CurrentUser(ctx, sched.IntegrationConfig)
	if err != nil {
		log.Printf("resolver: schedule=%s provider lookup failed: %v", sched.ID, err)
		return "", false
	}
	if user == "" {
		return "", false
	}
	return user, true
}
