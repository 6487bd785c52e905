// Package scheduler is the periodic driver: it runs the full membership
// sync across all workspaces on one cadence and sweeps expired overrides
// on another. Both actions are idempotent functions of current time and
// persisted state, so they are equally safe to trigger manually.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tpark252/rotationpress/internal/syncengine"
)

// Store lists the workspaces the full sync iterates over.
type Store interface {
	ListWorkspaceIDs(ctx context.Context) ([]string, error)
}

// SyncEngine runs the per-workspace sync.
type SyncEngine interface {
	SyncAll(ctx context.Context, workspaceID string) ([]syncengine.SyncResult, error)
}

// OverrideSweeper deletes expired overrides.
type OverrideSweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// MetricsSink records driver metrics.
// All methods must be non-blocking and fire-and-forget.
type MetricsSink interface {
	FullSyncCompleted(duration time.Duration, mappingsSynced int, err error)
	OverridesSwept(count int64)
}

// Config holds the driver cadences as cron specs.
type Config struct {
	// SyncSpec is the full-sync cadence. Default: every 10 minutes.
	SyncSpec string
	// SweepSpec is the override sweep cadence. Default: hourly.
	SweepSpec string
}

// DefaultConfig returns the default driver cadences.
func DefaultConfig() Config {
	return Config{
		SyncSpec:  "@every 10m",
		SweepSpec: "@every 1h",
	}
}

type Driver struct {
	config  Config
	store   Store
	engine  SyncEngine
	sweeper OverrideSweeper
	metrics MetricsSink // optional, nil = disabled
	clock   func() time.Time
}

func New(config Config, store Store, engine SyncEngine, sweeper OverrideSweeper) *Driver {
	return &Driver{
		config:  config,
		store:   store,
		engine:  engine,
		sweeper: sweeper,
		clock:   time.Now,
	}
}

// WithMetrics attaches a metrics sink to the driver.
func (d *Driver) WithMetrics(sink MetricsSink) *Driver {
	d.metrics = sink
	return d
}

// Run registers both cadences and blocks until ctx is cancelled. A tick
// that is still running when the next one fires is skipped rather than
// stacked.
func (d *Driver) Run(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))

	if _, err := c.AddFunc(d.config.SyncSpec, func() { d.RunFullSync(ctx) }); err != nil {
		return fmt.Errorf("sync cadence %q: %w", d.config.SyncSpec, err)
	}
	if _, err := c.AddFunc(d.config.SweepSpec, func() { d.RunSweep(ctx) }); err != nil {
		return fmt.Errorf("sweep cadence %q: %w", d.config.SweepSpec, err)
	}

	log.Printf("scheduler: started (sync=%q, sweep=%q)", d.config.SyncSpec, d.config.SweepSpec)
	c.Start()

	<-ctx.Done()

	// Stop returns a context that completes once in-flight jobs finish.
	<-c.Stop().Done()
	log.Println("scheduler: stopped")
	return ctx.Err()
}

// RunFullSync syncs every mapping of every workspace. One workspace's
// failure is logged and never prevents the remaining workspaces from
// being processed in the same tick.
func (d *Driver) RunFullSync(ctx context.Context) {
	started := d.clock()

	workspaces, err := d.store.ListWorkspaceIDs(ctx)
	if err != nil {
		log.Printf("scheduler: list workspaces failed: %v", err)
		if d.metrics != nil {
			d.metrics.FullSyncCompleted(d.clock().Sub(started), 0, err)
		}
		return
	}

	synced := 0
	for _, workspaceID := range workspaces {
		results, err := d.engine.SyncAll(ctx, workspaceID)
		if err != nil {
			log.Printf("scheduler: workspace=%s full sync failed: %v", workspaceID, err)
			continue
		}
		synced += len(results)
	}

	if d.metrics != nil {
		d.metrics.FullSyncCompleted(d.clock().Sub(started), synced, nil)
	}
	log.Printf("scheduler: full sync complete workspaces=%d mappings=%d duration=%s",
		len(workspaces), synced, d.clock().Sub(started).Round(time.Millisecond))
}

// RunSweep deletes overrides whose window has fully passed.
func (d *Driver) RunSweep(ctx context.Context) {
	deleted, err := d.sweeper.SweepExpired(ctx)
	if err != nil {
		log.Printf("scheduler: override sweep failed: %v", err)
		return
	}

	if d.metrics != nil {
		d.metrics.OverridesSwept(deleted)
	}
	if deleted > 0 {
		log.Printf("scheduler: swept %d expired overrides", deleted)
	}
}
