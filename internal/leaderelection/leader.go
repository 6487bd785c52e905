// Package leaderelection elects the single instance that runs the periodic
// sync driver, using a Postgres session-scoped advisory lock.
//
// The lock lives as long as the dedicated connection that took it: there is
// no TTL and no renewal. When the connection dies, Postgres releases the
// lock server-side and another instance wins the next attempt. The local
// heartbeat ping only detects that the connection died so this instance can
// stop driving syncs promptly; it never extends the lock.
//
// Membership writes are idempotent full-replace, so a brief window with two
// leaders during failover produces duplicate writes, not corruption.
package leaderelection

import (
	"context"
	"database/sql"
	"log"
	"time"
)

// Demotion reasons reported to the metrics sink.
const (
	ReasonShutdown = "shutdown"
	ReasonConnLost = "conn_lost"
)

// MetricsSink records leadership transitions.
// All methods must be non-blocking and fire-and-forget.
type MetricsSink interface {
	LeaderStatusChanged(isLeader bool)
	LeaderAcquired()
	LeaderLost(reason string)
}

// Elector campaigns for the advisory lock and runs the leader callbacks
// around each tenure.
type Elector struct {
	db                *sql.DB
	lockKey           int64
	retryInterval     time.Duration // follower: pause between campaigns
	heartbeatInterval time.Duration // leader: dedicated connection ping cadence
	onElected         func(ctx context.Context)
	onDemoted         func()
	metrics           MetricsSink // optional, nil = disabled
}

// New creates an Elector. Every instance sharing a database must campaign
// with the same lockKey.
//
// onElected runs in a new goroutine each time this instance wins the lock;
// its context is cancelled when the tenure ends. It should start the sync
// driver and return quickly.
//
// onDemoted is called synchronously at the end of a tenure and must block
// until leader duties have fully stopped. It must be idempotent.
func New(
	db *sql.DB,
	lockKey int64,
	retryInterval, heartbeatInterval time.Duration,
	onElected func(ctx context.Context),
	onDemoted func(),
) *Elector {
	return &Elector{
		db:                db,
		lockKey:           lockKey,
		retryInterval:     retryInterval,
		heartbeatInterval: heartbeatInterval,
		onElected:         onElected,
		onDemoted:         onDemoted,
	}
}

// WithMetrics attaches a metrics sink to the elector.
func (e *Elector) WithMetrics(sink MetricsSink) *Elector {
	e.metrics = sink
	return e
}

// Run campaigns until ctx is cancelled, sleeping retryInterval between
// attempts. Losing a tenure re-enters the campaign loop, so a demoted
// instance becomes a candidate again.
func (e *Elector) Run(ctx context.Context) {
	log.Printf("leader: campaigning (lock_key=%d, retry=%s, heartbeat=%s)",
		e.lockKey, e.retryInterval, e.heartbeatInterval)

	for ctx.Err() == nil {
		if reason := e.campaign(ctx); reason != "" && ctx.Err() == nil {
			log.Printf("leader: tenure ended (reason=%s), campaigning again in %s", reason, e.retryInterval)
		}

		select {
		case <-ctx.Done():
		case <-time.After(e.retryInterval):
		}
	}
	log.Println("leader: campaign loop stopped")
}

// campaign makes one lock attempt and, on success, holds leadership until
// the tenure ends. Returns the demotion reason, or "" if the lock was not
// acquired.
func (e *Elector) campaign(ctx context.Context) string {
	// The advisory lock is bound to a session, so it must live on its own
	// connection rather than the shared pool.
	conn, err := e.db.Conn(ctx)
	if err != nil {
		log.Printf("leader: dedicated connection unavailable: %v", err)
		return ""
	}
	defer conn.Close()

	var won bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", e.lockKey).Scan(&won); err != nil {
		log.Printf("leader: lock attempt failed: %v", err)
		return ""
	}
	if !won {
		return ""
	}

	log.Printf("leader: elected (lock_key=%d), starting sync driver", e.lockKey)
	if e.metrics != nil {
		e.metrics.LeaderStatusChanged(true)
		e.metrics.LeaderAcquired()
	}

	tenureCtx, endTenure := context.WithCancel(ctx)
	go e.onElected(tenureCtx)

	reason := e.hold(ctx, conn)

	endTenure()
	e.onDemoted()

	if e.metrics != nil {
		e.metrics.LeaderStatusChanged(false)
		e.metrics.LeaderLost(reason)
	}

	// On clean shutdown release the lock explicitly so the next instance
	// does not have to wait for the connection to be reaped.
	if reason == ReasonShutdown {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.ExecContext(releaseCtx, "SELECT pg_advisory_unlock($1)", e.lockKey); err != nil {
			log.Printf("leader: explicit unlock failed (connection close releases it): %v", err)
		}
	}

	log.Printf("leader: demoted (lock_key=%d)", e.lockKey)
	return reason
}

// hold blocks for the duration of a tenure, pinging the dedicated
// connection on the heartbeat cadence. A failed ping means the session
// holding the lock is gone and leadership with it.
func (e *Elector) hold(ctx context.Context, conn *sql.Conn) string {
	ticker := time.NewTicker(e.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ReasonShutdown
		case <-ticker.C:
			if err := conn.PingContext(ctx); err != nil {
				if ctx.Err() != nil {
					return ReasonShutdown
				}
				log.Printf("leader: heartbeat ping failed, assuming lock lost: %v", err)
				return ReasonConnLost
			}
		}
	}
}
