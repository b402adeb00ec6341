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
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/odyssey-erp/slotbook/internal/app"
	jobmetrics "github.com/odyssey-erp/slotbook/internal/jobs"
	"github.com/odyssey-erp/slotbook/internal/matrix"
	"github.com/odyssey-erp/slotbook/internal/platform/cache"
	"github.com/odyssey-erp/slotbook/internal/platform/db"
	"github.com/odyssey-erp/slotbook/internal/resources"
	"github.com/odyssey-erp/slotbook/jobs"
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

	logger := app.NewLogger(cfg.LogFormat)

	pool, err := db.New(ctx, cfg.Postgres("slotbook-worker"))
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.Redis())
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := jobmetrics.NewMetrics(nil)
	resourceService := resources.NewService(
		resources.NewRepository(pool),
		cache.NewVersioned(redisClient, "slotbook:resources", cfg.ResourceCacheTTL),
	)
	cellRetry := jobs.NewCellRetryJob(matrix.NewRepository(pool, logger), logger, metrics)
	warmup := jobs.NewResourceWarmupJob(resourceService, logger, metrics)

	warmupTask, err := jobs.NewResourceWarmupTask(time.Now().UTC())
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.JobConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskCellRetry, Handler: cellRetry.Handle},
			{Type: jobs.TaskResourceWarmup, Handler: warmup.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.ResourceWarmupCron, Task: warmupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if cfg.WorkerMetricsAddr != "" {
		metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("worker metrics server", slog.Any("error", err))
			}
		}()
		defer func() { _ = metricsServer.Close() }()
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
