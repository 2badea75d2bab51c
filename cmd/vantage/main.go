package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/vantage-dg/vantage/internal/access"
	"github.com/vantage-dg/vantage/internal/app"
	"github.com/vantage-dg/vantage/internal/grants"
	"github.com/vantage-dg/vantage/internal/observability"
	"github.com/vantage-dg/vantage/internal/platform/cache"
	"github.com/vantage-dg/vantage/internal/platform/db"
	"github.com/vantage-dg/vantage/internal/roles"
	"github.com/vantage-dg/vantage/jobs"
)

// catalogNotifier fans a role-catalog mutation out to every consumer that
// holds a snapshot: live permission engines, the warmed Redis catalog, and
// the background queue.
type catalogNotifier struct {
	manager *access.Manager
	grants  *grants.Service
	queue   *jobs.Client
	logger  *slog.Logger
}

func (n *catalogNotifier) CatalogChanged(ctx context.Context) {
	if _, err := n.grants.RebuildCatalog(ctx); err != nil {
		n.logger.Warn("rebuild catalog", slog.Any("error", err))
	}
	n.manager.RefreshCatalogs(ctx)
	if n.queue != nil {
		payload := jobs.CatalogRefreshPayload{Reason: "role mutation", OccurredAt: time.Now().UTC()}
		if _, err := n.queue.EnqueueCatalogRefresh(ctx, payload); err != nil {
			n.logger.Warn("enqueue catalog refresh", slog.Any("error", err))
		}
	}
}

func main() {
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

	metrics := observability.NewMetrics()

	// Backend half of the authorization contract.
	rolesRepo := roles.NewRepository(pool)
	membershipRepo := grants.NewRepository(pool)
	catalogCache := grants.NewCatalogCache(redisClient, 10*time.Minute)
	grantsService := grants.NewService(membershipRepo, rolesRepo, catalogCache)
	grantsHandler := grants.NewHandler(logger, grantsService)

	// Client half: per-actor permission engines resolving against the
	// backend contract, with override persistence in Redis.
	authzClient := access.NewHTTPAuthzClient(cfg.AuthzBaseURL)
	overrideStore := access.NewRedisOverrideStore(redisClient, cfg.OverrideTTL)
	manager := access.NewManager(authzClient, authzClient, overrideStore, logger)
	gate := access.Middleware{Manager: manager, Logger: logger, Metrics: metrics}
	accessHandler := access.NewHandler(logger, manager, gate)

	queueClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init queue client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		_ = queueClient.Close()
	}()

	notifier := &catalogNotifier{manager: manager, grants: grantsService, queue: queueClient, logger: logger}
	rolesService := roles.NewService(rolesRepo, notifier, logger)
	rolesHandler := roles.NewHandler(logger, rolesService, gate)

	jobHandler := jobs.NewHandler(asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr}), logger)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		AccessHandler:  accessHandler,
		GrantsHandler:  grantsHandler,
		RolesHandler:   rolesHandler,
		JobHandler:     jobHandler,
		GateMiddleware: gate,
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", slog.Any("error", err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server run", slog.Any("error", err))
			os.Exit(1)
		}
	}
}
