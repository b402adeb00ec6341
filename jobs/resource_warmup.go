package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/slotbook/internal/jobs"
	"github.com/odyssey-erp/slotbook/internal/resources"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// ResourceCache is the cached resource lookup refreshed by the warmup.
type ResourceCache interface {
	Invalidate(ctx context.Context) error
	Bins(ctx context.Context) ([]resources.Bin, error)
	Products(ctx context.Context) ([]resources.Product, error)
}

// ResourceWarmupJob drops and repopulates the bin and product caches so the
// editor payload never pays for a cold lookup.
type ResourceWarmupJob struct {
	Resources ResourceCache
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	clock     func() time.Time
}

// NewResourceWarmupJob wires dependencies for the warmup handler.
func NewResourceWarmupJob(res ResourceCache, logger *slog.Logger, metrics *jobmetrics.Metrics) *ResourceWarmupJob {
	return &ResourceWarmupJob{
		Resources: res,
		Logger:    logger,
		Metrics:   metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes resource warmup tasks.
func (j *ResourceWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Resources == nil {
		return errors.New("resource warmup: handler not configured")
	}
	var payload ResourceWarmupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	tracker := j.metrics().Track(TaskResourceWarmup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	start := j.now()
	logger := j.logger()
	if err := j.Resources.Invalidate(ctx); err != nil {
		resultErr = err
		logger.Error("invalidate resource cache", slog.Any("error", err))
		return resultErr
	}

	warmCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()
	bins, err := j.Resources.Bins(warmCtx)
	if err != nil {
		resultErr = err
		logger.Error("warm bins", slog.Any("error", err))
		return resultErr
	}
	products, err := j.Resources.Products(warmCtx)
	if err != nil {
		resultErr = err
		logger.Error("warm products", slog.Any("error", err))
		return resultErr
	}

	logger.Info("completed resource warmup",
		slog.Int("bins", len(bins)),
		slog.Int("products", len(products)),
		slog.Duration("duration", j.now().Sub(start)))
	return resultErr
}

func (j *ResourceWarmupJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *ResourceWarmupJob) logger() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskResourceWarmup))
	}
	return slog.Default().With(slog.String("job", TaskResourceWarmup))
}

func (j *ResourceWarmupJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// WithClock overrides the internal clock for deterministic tests.
func (j *ResourceWarmupJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}
