// Package provider looks up the current on-call identity from third-party
// scheduling services. Lookups may fail transiently (network, auth); the
// caller treats any failure as "nobody resolved" and never lets it abort a
// sync covering other schedules.
package provider

import (
	"context"
	"fmt"

	"github.com/tpark252/rotationpress/internal/circuitbreaker"
	"github.com/tpark252/rotationpress/internal/domain"
)

// Provider resolves the current on-call user for one external schedule.
// Returns ("", nil) when the remote schedule has nobody on call.
type Provider interface {
	CurrentUser(ctx context.Context, config map[string]string) (string, error)
}

// Registry maps schedule kinds to their provider implementation.
type Registry struct {
	providers map[domain.ScheduleKind]Provider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[domain.ScheduleKind]Provider)}
}

func (r *Registry) Register(kind domain.ScheduleKind, p Provider) {
	r.providers[kind] = p
}

// Lookup returns the provider for the kind, or an error for kinds with no
// registered provider.
func (r *Registry) Lookup(kind domain.ScheduleKind) (Provider, error) {
	p, ok := r.providers[kind]
	if !ok {
		return nil, fmt.Errorf("no provider registered for kind %q", kind)
	}
	return p, nil
}

// breakerProvider wraps a Provider with a circuit breaker keyed by endpoint.
// While the circuit is open, lookups fail fast without touching the network.
type breakerProvider struct {
	inner   Provider
	breaker *circuitbreaker.CircuitBreaker
	key     string
}

// WithBreaker wraps p so that repeated failures against the endpoint open
// the circuit and subsequent lookups degrade immediately.
func WithBreaker(p Provider, cb *circuitbreaker.CircuitBreaker, key string) Provider {
	return &breakerProvider{inner: p, breaker: cb, key: key}
}

func (b *breakerProvider) CurrentUser(ctx context.Context, config map[string]string) (string, error) {
	if err := b.breaker.Allow(b.key); err != nil {
		return "", fmt.Errorf("%s: %w", b.key, err)
	}

	user, err := b.inner.CurrentUser(ctx, config)
	if err != nil {
		b.breaker.RecordFailure(b.key)
		return "", err
	}

	b.breaker.RecordSuccess(b.key)
	return user, nil
}
