package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/riskcore-io/riskcore/internal/auditlog"
	"github.com/riskcore-io/riskcore/internal/breaker"
	"github.com/riskcore-io/riskcore/internal/coordinator"
	"github.com/riskcore-io/riskcore/internal/evaluator"
	"github.com/riskcore-io/riskcore/internal/graduation"
	"github.com/riskcore-io/riskcore/internal/httpapi"
	"github.com/riskcore-io/riskcore/internal/memtable"
	"github.com/riskcore-io/riskcore/internal/memtable/snapshotcache"
	"github.com/riskcore-io/riskcore/internal/modulator"
	"github.com/riskcore-io/riskcore/internal/riskconfig"
	"github.com/riskcore-io/riskcore/internal/scheduler"
	"github.com/riskcore-io/riskcore/internal/telemetry"
	"github.com/riskcore-io/riskcore/internal/telemetry/metrics"
	"github.com/riskcore-io/riskcore/internal/vectorstore"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the risk core's HTTP server and background schedulers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file (defaults used if omitted)")
	return cmd
}

func runServe(configPath string) error {
	cfg, err := riskconfig.Load(configPath)
	if err != nil {
		return err
	}
	logger := telemetry.InitLogger(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := wireStore(cfg)
	learner := graduation.NewLearner(cfg.Graduation)
	mem := memtable.New(store, learner, cfg.MemoryConfig())

	if err := mem.Initialize(ctx); err != nil {
		logger.Error().Err(err).Msg("memory manager initialize failed, starting degraded")
	}

	if rdb := wireSnapshotCache(cfg); rdb != nil {
		cache := snapshotcache.New(rdb, 24*time.Hour)
		go runSnapshotCacheSaver(ctx, mem, cache)
	}

	promReg := prometheus.NewRegistry()
	metricsRegistry := metrics.NewRegistry(promReg)

	graduated := evaluator.NewGraduatedEvaluator(cfg.Evaluator.Graduated)
	robustZone := evaluator.NewRobustZoneEvaluator(cfg.Evaluator.RobustZone)
	ruleBased := evaluator.NewRuleBasedEvaluator(cfg.Evaluator.RuleBased)
	mod := modulator.New(cfg.Modulator)
	rings := modulator.NewRegistry(20)
	state := coordinator.NewStateStore()
	audit := wireAuditSink(cfg)

	coord := coordinator.New(mem, store, graduated, robustZone, ruleBased, mod, rings, state, audit, metricsRegistry, logger, cfg)

	var breakerState func() string
	if bc, ok := store.(*breaker.Client); ok {
		breakerState = bc.State
	}

	sched := &scheduler.Scheduler{
		Memory: mem, RobustZone: robustZone, State: state, Audit: audit,
		Metrics: metricsRegistry, Log: logger,
		Cfg: scheduler.Config{ReloadInterval: cfg.Scheduler.ReloadInterval, ZoneEvolutionInterval: cfg.Scheduler.ZoneEvolutionInterval},
	}
	go sched.Run(ctx)

	httpCfg := httpapi.DefaultConfig()
	httpCfg.Host = cfg.HTTP.Host
	httpCfg.Port = cfg.HTTP.Port
	server, err := httpapi.New(coord, promReg, logger, httpCfg, breakerState)
	if err != nil {
		return err
	}

	go func() {
		if err := server.Start(); err != nil {
			logger.Error().Err(err).Msg("httpapi: server stopped")
		}
	}()

	logger.Info().Str("addr", httpCfg.Host).Int("port", httpCfg.Port).Msg("riskcore serving")
	waitForShutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}

func waitForShutdown() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
}

func wireStore(cfg riskconfig.Config) vectorstore.Client {
	http := vectorstore.NewHTTPClient(vectorstore.Config{
		BaseURL:        cfg.Store.BaseURL,
		RequestTimeout: cfg.Store.RequestTimeout,
		MaxRetries:     cfg.Store.MaxRetries,
		RatePerSecond:  cfg.Store.RatePerSecond,
		Burst:          cfg.Store.Burst,
	})
	return breaker.New(http, breaker.Config{
		Name:                "vectorstore",
		MaxRequests:         cfg.Breaker.MaxRequests,
		Interval:            cfg.Breaker.Interval,
		Timeout:             cfg.Breaker.Timeout,
		ConsecutiveFailures: cfg.Breaker.ConsecutiveFailures,
	})
}

// wireAuditSink builds the default file sink, adding an optional Postgres
// supplement when the config names a DSN (SPEC_FULL.md's domain-stack
// wiring for jmoiron/sqlx + lib/pq).
func wireAuditSink(cfg riskconfig.Config) auditlog.Sink {
	fileSink := auditlog.NewFileSink(cfg.Audit.Dir)
	if cfg.Audit.PostgresDSN == "" {
		return fileSink
	}

	db, err := sqlx.Connect("postgres", cfg.Audit.PostgresDSN)
	if err != nil {
		log.Warn().Err(err).Msg("audit: postgres connect failed, falling back to file sink only")
		return fileSink
	}
	pgSink := auditlog.NewPostgresSink(db, 5*time.Second)
	return auditlog.MultiSink{Sinks: []auditlog.Sink{fileSink, pgSink}}
}

// wireSnapshotCache is kept separate so it's only constructed when a redis
// address is configured; the snapshot cache is strictly advisory warm-start
// data, never on the hot path.
func wireSnapshotCache(cfg riskconfig.Config) *redis.Client {
	if cfg.SnapshotCache.RedisAddr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: cfg.SnapshotCache.RedisAddr})
}

// runSnapshotCacheSaver persists the published graduation tables to redis
// every five minutes. It only writes: serve never reads the cache back, so
// startup always goes through Memory.Initialize. Strictly advisory — see
// snapshotcache package docs.
func runSnapshotCacheSaver(ctx context.Context, mem *memtable.Manager, cache *snapshotcache.Cache) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := mem.Snapshot()
			cache.Save(ctx, snap.Graduations)
		}
	}
}
