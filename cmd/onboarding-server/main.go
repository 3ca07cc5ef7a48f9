// Package main provides the GOSH onboarding orchestrator daemon.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gosh-sh/gosh-sub009/internal/config"
	"github.com/gosh-sh/gosh-sub009/internal/confirm"
	"github.com/gosh-sh/gosh-sub009/internal/db"
	"github.com/gosh-sh/gosh-sub009/internal/ledger"
	"github.com/gosh-sh/gosh-sub009/internal/metrics"
	"github.com/gosh-sh/gosh-sub009/internal/notify"
	"github.com/gosh-sh/gosh-sub009/internal/onboarding"
	"github.com/gosh-sh/gosh-sub009/internal/pipeline"
	"github.com/gosh-sh/gosh-sub009/internal/queue"
	"github.com/gosh-sh/gosh-sub009/internal/sizer"
	"github.com/gosh-sh/gosh-sub009/internal/trigger"
)

const (
	bootstrapWorkers = 2
	sizingWorkers    = 4
	confirmWorkers   = 8
	finalizeWorkers  = 1
)

func main() {
	wipeDB := flag.Bool("wipe", false, "wipe all data from database on startup (testing only)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: load config: %v\n", err)
		os.Exit(1)
	}

	logger, logCleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	slog.SetDefault(logger)
	defer func() {
		if err := logCleanup(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
		}
	}()

	logger.Info("starting onboarding-server", "node", cfg.NodeURL, "health_port", cfg.HealthPort)

	// Record store
	connectCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	dbClient, err := db.NewClient(connectCtx, db.Config{
		URL:       cfg.SurrealDBURL,
		Namespace: cfg.SurrealDBNamespace,
		Database:  cfg.SurrealDBDatabase,
		Username:  cfg.SurrealDBUser,
		Password:  cfg.SurrealDBPass,
		AuthLevel: cfg.SurrealDBAuthLevel,
	}, logger)
	cancel()
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(context.Background()); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	initCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := dbClient.InitSchema(initCtx); err != nil {
		cancel()
		logger.Error("failed to initialize schema", "error", err)
		os.Exit(1)
	}
	if *wipeDB || os.Getenv("GOSH_WIPE_DB") == "true" {
		if err := dbClient.WipeData(initCtx); err != nil {
			cancel()
			logger.Error("failed to wipe database", "error", err)
			os.Exit(1)
		}
	}
	cancel()

	// Queue and metrics
	collector := metrics.NewCollector()
	q := queue.NewManager(dbClient, logger)
	q.Subscribe(collector.ObserveQueue)

	// Ledger boundary
	node := ledger.NewNodeClient(cfg.NodeURL, logger)
	watcher := ledger.NewBlockWatcher(cfg.NodeWSURL, logger)
	watcher.Start(context.Background())

	notifier := notify.NewLogNotifier(logger)
	jobOpts := queue.Options{MaxRetries: cfg.JobRetries, Backoff: cfg.JobBackoff}

	// Consumers. All queues must be registered before ResumePending so
	// surviving jobs find their handlers.
	poller := confirm.NewPoller(q, node, cfg.ConfirmAttempts, cfg.ConfirmDelay, logger)
	poller.Register(confirmWorkers)

	bootstrap := onboarding.NewService(dbClient, node, poller, q, notifier, jobOpts, logger)
	bootstrap.Register(bootstrapWorkers)

	measurer := sizer.NewGitMeasurer(cfg.WorkDir, logger)
	triage := sizer.NewService(dbClient, measurer, q, notifier, cfg.SmallMaxObjects, cfg.MediumMaxObjects, jobOpts, logger)
	triage.Register(sizingWorkers)

	runner := pipeline.NewGitRunner(cfg.GitBinary, cfg.WorkDir, logger)
	provisioner := pipeline.NewService(dbClient, node, poller, runner, q, notifier, cfg.DeployTimeout, logger)
	provisioner.Register(cfg.SmallWorkers, cfg.MediumWorkers, cfg.LargeWorkers)

	finalizer := onboarding.NewFinalizer(dbClient, q, notifier, logger)
	finalizer.Register(finalizeWorkers)

	resumeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := q.ResumePending(resumeCtx); err != nil {
		logger.Error("failed to resume pending jobs", "error", err)
	}
	cancel()

	// Scans. Stale after three missed intervals: one slow block is fine,
	// a silent stream is not.
	scans := trigger.NewScans(dbClient, q, watcher, notifier, jobOpts, 3*cfg.ScanInterval, logger)
	schedulers := make([]*trigger.Scheduler, 0, 3)
	for _, sc := range []struct {
		name string
		fn   func(ctx context.Context) error
	}{
		{"new-imports", scans.ScanNewImports},
		{"pending-work", scans.ScanPendingWork},
		{"ready-users", scans.ScanReadyUsers},
	} {
		fn := sc.fn
		timed := func(ctx context.Context) error {
			start := time.Now()
			err := fn(ctx)
			collector.RecordTiming(metrics.OpScan, time.Since(start))
			return err
		}
		s := trigger.NewScheduler(sc.name, cfg.ScanInterval, timed, logger)
		s.Start(context.Background())
		schedulers = append(schedulers, s)
	}

	// Health and stats endpoint
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if !watcher.Healthy(3 * cfg.ScanInterval) {
			http.Error(w, "block stream stale", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(collector.Snapshot()); err != nil {
			logger.Warn("failed to encode stats", "error", err)
		}
	})

	httpServer := &http.Server{
		Addr:         ":" + cfg.HealthPort,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("orchestrator running", "scan_interval", cfg.ScanInterval)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")

	for _, s := range schedulers {
		s.Stop()
	}
	q.Stop()
	watcher.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("health server forced to shutdown", "error", err)
	}

	logger.Info("orchestrator stopped")
}
