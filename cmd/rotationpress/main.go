package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/tpark252/rotationpress/internal/analytics"
	"github.com/tpark252/rotationpress/internal/api"
	"github.com/tpark252/rotationpress/internal/circuitbreaker"
	"github.com/tpark252/rotationpress/internal/config"
	"github.com/tpark252/rotationpress/internal/domain"
	"github.com/tpark252/rotationpress/internal/leaderelection"
	"github.com/tpark252/rotationpress/internal/membership"
	"github.com/tpark252/rotationpress/internal/metrics"
	"github.com/tpark252/rotationpress/internal/override"
	"github.com/tpark252/rotationpress/internal/provider"
	"github.com/tpark252/rotationpress/internal/resolver"
	"github.com/tpark252/rotationpress/internal/scheduler"
	"github.com/tpark252/rotationpress/internal/store/postgres"
	"github.com/tpark252/rotationpress/internal/syncengine"

	_ "github.com/lib/pq"
)

// Build-time variables set via -ldflags
var (
	version = "dev"
	commit  = "unknown"
)

const (
	exitSuccess       = 0
	exitRuntimeError  = 1
	exitInvalidConfig = 2
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitRuntimeError)
	}

	cmd := os.Args[1]

	switch cmd {
	case "serve":
		os.Exit(runServe())
	case "validate":
		os.Exit(runValidate())
	case "config":
		os.Exit(runConfig())
	case "version":
		os.Exit(runVersion())
	case "--help", "-h", "help":
		printUsage()
		os.Exit(exitSuccess)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(exitRuntimeError)
	}
}

func printUsage() {
	fmt.Println(`rotationpress - on-call rotation to group membership sync

Usage:
  rotationpress <command>

Commands:
  serve      Start the API server and periodic sync driver
  validate   Validate configuration (no connections made)
  config     Print effective configuration as JSON (secrets masked)
  version    Print version information

Environment Variables:
  DATABASE_URL              PostgreSQL connection string (required)
  REDIS_ADDR                Redis address for analytics (optional)
  HTTP_ADDR                 HTTP server address (default: ":8080")
  SYNC_SPEC                 Cron spec for the full sync pass (default: "@every 10m")
  SWEEP_SPEC                Cron spec for the override sweep (default: "@every 1h")

  DB_OP_TIMEOUT             Database operation timeout (default: "5s")
  DB_MAX_OPEN_CONNS         Max open database connections (default: "25")
  DB_MAX_IDLE_CONNS         Max idle database connections (default: "5")
  DB_CONN_MAX_LIFETIME      Max connection lifetime (default: "30m")
  DB_CONN_MAX_IDLE_TIME     Max connection idle time (default: "5m")

  HTTP_SHUTDOWN_TIMEOUT     Graceful HTTP shutdown timeout (default: "10s")

  METRICS_ENABLED           Enable Prometheus metrics (default: "false")
  METRICS_PATH              Metrics endpoint path (default: "/metrics")
  METRICS_PORT              Metrics server port (default: "9090")

  MEMBERSHIP_BASE_URL       Directory service membership is pushed to (required)
  MEMBERSHIP_SECRET         HMAC secret signing membership requests (required)
  MEMBERSHIP_TIMEOUT        Membership request timeout (default: "10s")

  PROVIDER_TIMEOUT          External provider lookup timeout (default: "10s")
  CIRCUIT_BREAKER_THRESHOLD Failures before opening provider circuit, 0 disables (default: "5")
  CIRCUIT_BREAKER_COOLDOWN  Open-circuit cooldown (default: "2m")

  ANALYTICS_RETENTION       Redis sync counter retention (default: "720h")

  LEADER_ELECTION_ENABLED   Gate the sync driver behind a Postgres advisory lock (default: "false")
  LEADER_LOCK_KEY           Advisory lock key shared by all instances (default: "911406")
  LEADER_RETRY_INTERVAL     Lock acquisition retry interval (default: "5s")
  LEADER_HEARTBEAT_INTERVAL Held-lock connection heartbeat (default: "2s")`)
}

func runServe() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitInvalidConfig
	}

	logConfigWarnings(&cfg)

	// Connect to PostgreSQL
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
		return exitRuntimeError
	}
	defer db.Close()

	// Configure connection pool
	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DBConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.DBConnMaxIdleTime)

	log.Printf("rotationpress: db pool configured (max_open=%d, max_idle=%d, max_lifetime=%s, max_idle_time=%s)",
		cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)

	if err := db.Ping(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to database: %v\n", err)
		return exitRuntimeError
	}

	store := postgres.New(db, cfg.DBOpTimeout)
	overrides := override.New(store)

	// Initialize metrics sink (optional)
	var metricsSink *metrics.PrometheusSink
	var metricsServer *http.Server

	if cfg.MetricsEnabled {
		metricsSink = metrics.NewPrometheusSink(prometheus.DefaultRegisterer)
		log.Printf("rotationpress: metrics enabled (port=%s, path=%s)", cfg.MetricsPort, cfg.MetricsPath)

		// Start metrics HTTP server on separate port
		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.MetricsPath, promhttp.Handler())
		metricsServer = &http.Server{
			Addr:    ":" + cfg.MetricsPort,
			Handler: metricsMux,
		}
		go func() {
			log.Printf("rotationpress: metrics server listening on :%s", cfg.MetricsPort)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("rotationpress: metrics server error: %v", err)
			}
		}()
	} else {
		log.Println("rotationpress: METRICS_ENABLED not set; metrics disabled")
	}

	// External on-call providers, optionally behind a shared circuit breaker.
	registry := provider.NewRegistry()
	pd := provider.NewPagerDuty(cfg.ProviderTimeout)
	og := provider.NewOpsGenie(cfg.ProviderTimeout)
	if cfg.CircuitBreakerThreshold > 0 {
		cb := circuitbreaker.New(cfg.CircuitBreakerThreshold, cfg.CircuitBreakerCooldown)
		registry.Register(domain.ScheduleKindPagerDuty, provider.WithBreaker(pd, cb, "pagerduty"))
		registry.Register(domain.ScheduleKindOpsGenie, provider.WithBreaker(og, cb, "opsgenie"))
		log.Printf("rotationpress: provider circuit breaker enabled (threshold=%d, cooldown=%s)",
			cfg.CircuitBreakerThreshold, cfg.CircuitBreakerCooldown)
	} else {
		registry.Register(domain.ScheduleKindPagerDuty, pd)
		registry.Register(domain.ScheduleKindOpsGenie, og)
		log.Println("rotationpress: CIRCUIT_BREAKER_THRESHOLD=0; provider circuit breaker disabled")
	}

	res := resolver.New(overrides, registry)
	memberClient := membership.NewClient(cfg.MembershipBaseURL, cfg.MembershipSecret, cfg.MembershipTimeout)
	directory := membership.NewDirectory(store, memberClient)

	engine := syncengine.New(store, res, memberClient)
	if metricsSink != nil {
		engine = engine.WithMetrics(metricsSink)
	}

	// Wire analytics if Redis is configured
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
		})
		sink := analytics.NewRedisSink(redisClient, cfg.AnalyticsRetention)
		engine = engine.WithAnalytics(sink)
		log.Printf("rotationpress: analytics enabled (redis=%s, retention=%s)", cfg.RedisAddr, cfg.AnalyticsRetention)
	} else {
		log.Println("rotationpress: REDIS_ADDR not set; analytics disabled")
	}

	drv := scheduler.New(
		scheduler.Config{SyncSpec: cfg.SyncSpec, SweepSpec: cfg.SweepSpec},
		store,
		engine,
		overrides,
	)
	if metricsSink != nil {
		drv = drv.WithMetrics(metricsSink)
	}

	// Create API handler with the same store instance
	apiHandler := api.NewHandler(store, overrides, res, engine, directory).WithHealthChecker(db)

	// Start HTTP server with API handler
	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: apiHandler,
	}

	go func() {
		log.Printf("rotationpress: http server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("rotationpress: http server error: %v", err)
		}
	}()

	// Use separate contexts for the driver and elector to enable ordered shutdown.
	var driverWg sync.WaitGroup
	var electorWg sync.WaitGroup
	var cancelDriver, cancelElector context.CancelFunc

	if cfg.LeaderElectionEnabled {
		// The driver only runs while this instance holds the advisory lock.
		// onDemoted blocks until the driver goroutine has fully stopped, so
		// two instances never drive syncs at the same time.
		elector := leaderelection.New(
			db,
			cfg.LeaderLockKey,
			cfg.LeaderRetryInterval,
			cfg.LeaderHeartbeatInterval,
			func(leaderCtx context.Context) {
				driverWg.Add(1)
				go func() {
					defer driverWg.Done()
					if err := drv.Run(leaderCtx); err != nil && !errors.Is(err, context.Canceled) {
						log.Printf("rotationpress: sync driver error: %v", err)
					}
				}()
			},
			func() {
				driverWg.Wait()
			},
		)
		if metricsSink != nil {
			elector = elector.WithMetrics(metricsSink)
		}

		var electorCtx context.Context
		electorCtx, cancelElector = context.WithCancel(context.Background())
		electorWg.Add(1)
		go func() {
			defer electorWg.Done()
			elector.Run(electorCtx)
		}()
		log.Printf("rotationpress: leader election enabled (lock_key=%d)", cfg.LeaderLockKey)
	} else {
		var driverCtx context.Context
		driverCtx, cancelDriver = context.WithCancel(context.Background())
		driverWg.Add(1)
		go func() {
			defer driverWg.Done()
			if err := drv.Run(driverCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("rotationpress: sync driver error: %v", err)
			}
		}()
		log.Println("rotationpress: LEADER_ELECTION_ENABLED not set; running sync driver unconditionally")
	}

	log.Printf("rotationpress: started (sync=%s, sweep=%s, http=%s)", cfg.SyncSpec, cfg.SweepSpec, cfg.HTTPAddr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig

	log.Printf("rotationpress: received signal %v, shutting down", received)

	// Phase 1: Stop the sync driver (or the elector, which stops the driver
	// via demotion before releasing the lock).
	if cancelElector != nil {
		log.Println("rotationpress: stopping leader elector...")
		cancelElector()
		electorWg.Wait()
		log.Println("rotationpress: leader elector stopped")
	}
	if cancelDriver != nil {
		log.Println("rotationpress: stopping sync driver...")
		cancelDriver()
	}
	driverWg.Wait()
	log.Println("rotationpress: sync driver stopped")

	// Phase 2: Stop HTTP server with graceful shutdown
	log.Println("rotationpress: stopping http server...")
	httpShutdownCtx, httpShutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer httpShutdownCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		log.Printf("rotationpress: http server shutdown error: %v", err)
	}
	log.Println("rotationpress: http server stopped")

	// Phase 3: Stop metrics server if running (with same timeout)
	if metricsServer != nil {
		log.Println("rotationpress: stopping metrics server...")
		metricsShutdownCtx, metricsShutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
		defer metricsShutdownCancel()
		if err := metricsServer.Shutdown(metricsShutdownCtx); err != nil {
			log.Printf("rotationpress: metrics server shutdown error: %v", err)
		}
		log.Println("rotationpress: metrics server stopped")
	}

	log.Println("rotationpress: stopped")
	return exitSuccess
}

func runValidate() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitInvalidConfig
	}

	fmt.Println("configuration valid")
	return exitSuccess
}

func runConfig() int {
	cfg := config.Load()

	data, err := cfg.MaskedJSON()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal config: %v\n", err)
		return exitRuntimeError
	}

	fmt.Println(string(data))
	return exitSuccess
}

func runVersion() int {
	fmt.Printf("rotationpress version %s (commit: %s)\n", version, commit)
	return exitSuccess
}
