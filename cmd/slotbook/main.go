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

	"github.com/odyssey-erp/slotbook/cmd/slotbook/cli"
	"github.com/odyssey-erp/slotbook/internal/app"
	"github.com/odyssey-erp/slotbook/internal/matrix"
	"github.com/odyssey-erp/slotbook/internal/observability"
	"github.com/odyssey-erp/slotbook/internal/platform/cache"
	"github.com/odyssey-erp/slotbook/internal/platform/db"
	"github.com/odyssey-erp/slotbook/internal/resources"
	"github.com/odyssey-erp/slotbook/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(os.Args) > 1 && os.Args[1] != "serve" {
		code := cli.Run(ctx, cli.DefaultEnv, os.Args[1:], os.Stdout, os.Stderr)
		stop()
		os.Exit(code)
	}

	if err := serve(ctx, stop); err != nil {
		slog.Default().Error("slotbook", slog.Any("error", err))
		os.Exit(1)
	}
}

func serve(ctx context.Context, stop context.CancelFunc) error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return err
	}
	logger := app.NewLogger(cfg.LogFormat)

	dbpool, err := db.New(ctx, cfg.Postgres("slotbook"))
	if err != nil {
		return err
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.Redis())
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	resourceService := resources.NewService(
		resources.NewRepository(dbpool),
		cache.NewVersioned(redisClient, "slotbook:resources", cfg.ResourceCacheTTL),
	)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobsClient := jobs.NewClient(redisOpts, cfg.JobMaxRetry)
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	matrixService := matrix.NewService(matrix.ServiceDeps{
		Store:     matrix.NewRepository(dbpool, logger),
		Resources: resourceService,
		Drafts:    matrix.NewDraftStore(redisClient, cfg.SessionTTL),
		Locker:    matrix.NewRedisLocker(redisClient),
		Retrier:   jobsClient,
		Metrics:   metrics,
		Logger:    logger,
	}, matrix.ServiceConfig{SaveTimeout: cfg.MatrixSaveTimeout})

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		MatrixHandler:    matrix.NewHandler(logger, matrixService),
		ResourcesHandler: resources.NewHandler(logger, resourceService),
		JobHandler:       jobs.NewHandler(inspector, logger),
		Metrics:          metrics,
		Checks: map[string]app.HealthCheck{
			"postgres": dbpool.Ping,
			"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
	return nil
}
