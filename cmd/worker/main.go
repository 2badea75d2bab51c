package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/vantage-dg/vantage/internal/app"
	"github.com/vantage-dg/vantage/internal/grants"
	jobmetrics "github.com/vantage-dg/vantage/internal/jobs"
	"github.com/vantage-dg/vantage/internal/platform/cache"
	"github.com/vantage-dg/vantage/internal/platform/db"
	"github.com/vantage-dg/vantage/internal/roles"
	"github.com/vantage-dg/vantage/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	rolesRepo := roles.NewRepository(pool)
	catalogCache := grants.NewCatalogCache(redisClient, 10*time.Minute)
	grantsService := grants.NewService(grants.NewRepository(pool), rolesRepo, catalogCache)
	warmer := grants.NewWarmer(grantsService)

	// Periodic re-warm keeps the cached catalog converging even when a
	// mutation notification is lost.
	warmTask, err := jobs.NewCatalogRefreshTask(jobs.CatalogRefreshPayload{
		Reason:     "scheduled warmup",
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Refresher: warmer,
		Metrics:   jobmetrics.NewMetrics(nil),
		Cron: []jobs.CronRegistration{
			{Spec: "*/10 * * * *", Task: warmTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
