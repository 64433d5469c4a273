package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"boxoffice/backend/internal/cache"
	"boxoffice/backend/internal/capacity"
	"boxoffice/backend/internal/config"
	"boxoffice/backend/internal/db"
	"boxoffice/backend/internal/http/handlers"
	"boxoffice/backend/internal/http/middleware"
	"boxoffice/backend/internal/integrations"
	"boxoffice/backend/internal/logging"
	"boxoffice/backend/internal/metrics"
	"boxoffice/backend/internal/productsync"
	"boxoffice/backend/internal/rate"
	"boxoffice/backend/internal/reports"
	"boxoffice/backend/internal/repository"
	"boxoffice/backend/internal/ticketing"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, cleanup, err := logging.New(cfg.Logging, "api")
	if err != nil {
		log.Fatalf("log error: %v", err)
	}
	defer func() {
		_ = cleanup()
	}()
	slog.SetDefault(logger)

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("db error", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if cfg.AutoMigrate {
		if err := db.EnsureSchema(ctx, pool); err != nil {
			logger.Error("schema error", "error", err)
			os.Exit(1)
		}
	}

	repo := repository.New(pool)
	metaStore := repo.Meta()
	orders := repo.Commerce()

	var reportCache cache.Cache = cache.NewMemory()
	if cfg.RedisURL != "" {
		client, err := cache.Dial(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("redis error", "error", err)
			os.Exit(1)
		}
		defer client.Close()
		reportCache = cache.NewRedis(client, "boxoffice:")
	}

	m := metrics.New(nil)
	tickets := ticketing.NewCollections(metaStore, logger)
	deps := handlers.Deps{
		Tickets:  tickets,
		Capacity: capacity.New(orders, tickets, logger, m),
		Reports: reports.NewAggregator(orders, reportCache, reports.Options{
			CacheTTL: cfg.Reports.CacheTTL,
			PageSize: cfg.Reports.PageSize,
		}, logger, m),
		Sync:     productsync.New(tickets, metaStore, orders, logger, m),
		Orders:   orders,
		Ingester: orders,
	}

	archive, err := integrations.NewReportArchive(cfg.S3)
	if err != nil {
		logger.Error("s3 error", "error", err)
		os.Exit(1)
	}
	if archive != nil {
		deps.Archive = archive
	}

	h := handlers.New(deps, cfg, logger)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(corsMiddleware)

	r.Handle("/metrics", promhttp.Handler())
	h.Routes(r, rate.NewKeyedLimiter(cfg.Webhooks.RatePerSecond, cfg.Webhooks.Burst))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("api_listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutdown")
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctxShutdown)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization,Content-Type,"+middleware.WebhookSecretHeader)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
