package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"boxoffice/backend/internal/capacity"
	"boxoffice/backend/internal/config"
	"boxoffice/backend/internal/db"
	"boxoffice/backend/internal/logging"
	"boxoffice/backend/internal/metrics"
	"boxoffice/backend/internal/repository"
	"boxoffice/backend/internal/ticketing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, cleanup, err := logging.New(cfg.Logging, "worker")
	if err != nil {
		log.Fatalf("log error: %v", err)
	}
	defer func() {
		_ = cleanup()
	}()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("db error", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	repo := repository.New(pool)
	orders := repo.Commerce()
	tickets := ticketing.NewCollections(repo.Meta(), logger)
	r := &reconciler{
		orders:   orders,
		capacity: capacity.New(orders, tickets, logger, metrics.New(nil)),
		lookback: cfg.Reconcile.Lookback,
		pageSize: cfg.Reports.PageSize,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}

	interval := cfg.Reconcile.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	logger.Info("worker_started", "interval", interval.String(), "lookback", cfg.Reconcile.Lookback.String())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		stats, err := r.runOnce(ctx)
		if err != nil && ctx.Err() == nil {
			logger.Error("reconcile_failed", "error", err)
		} else if err == nil {
			logger.Info("reconcile_done", "orders", stats.Orders, "applied", stats.Applied, "failed", stats.Failed)
		}

		select {
		case <-ctx.Done():
			logger.Info("shutdown")
			return
		case <-ticker.C:
		}
	}
}
