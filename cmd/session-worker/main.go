package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/dialysis-capacity-scheduling/internal/bootstrap"
	"github.com/hackgods/dialysis-capacity-scheduling/internal/config"
	"github.com/hackgods/dialysis-capacity-scheduling/internal/logging"
	"github.com/hackgods/dialysis-capacity-scheduling/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, "session-worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("session-worker starting up",
		zap.String("env", cfg.Env),
		zap.Duration("interval", cfg.WorkerInterval),
		zap.Int("horizon_days", cfg.GenerationHorizonDays),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, closeApp, err := bootstrap.New(rootCtx, cfg, logger)
	if err != nil {
		logger.Fatal("bootstrap failed", zap.Error(err))
	}
	defer closeApp()

	horizon := worker.NewHorizon(app.Store, app.Generator, logger, cfg.GenerationHorizonDays, cfg.SystemUserID, cfg.Location)

	// Run once at startup
	runOnce(rootCtx, logger, horizon)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info("shutdown signal received, stopping session worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, logger, horizon)
		}
	}
}

func runOnce(ctx context.Context, logger *zap.Logger, h *worker.Horizon) {
	runCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	start := time.Now()
	stats, err := h.RunOnce(runCtx)
	if err != nil {
		logger.Error("horizon run failed", zap.Error(err))
		return
	}
	logger.Info("horizon run complete",
		zap.Duration("took", time.Since(start)),
		zap.Int("centers", stats.Centers),
		zap.Int("created", stats.Created),
		zap.Int("skipped", stats.Skipped),
		zap.Int("busy", stats.Busy),
		zap.Int("failed", stats.Failed),
	)
}
