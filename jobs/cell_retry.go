package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/slotbook/internal/jobs"
	"github.com/odyssey-erp/slotbook/internal/matrix"
	"github.com/odyssey-erp/slotbook/internal/platform/httpx"
)

// CellWriter persists a single cell.
type CellWriter interface {
	UpdateCell(ctx context.Context, matrixID, rowID, columnID, value string) error
}

// CellRetryJob replays cell updates deferred by a grid save.
type CellRetryJob struct {
	Writer  CellWriter
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	Timeout time.Duration
}

// NewCellRetryJob constructs the job handler.
func NewCellRetryJob(writer CellWriter, logger *slog.Logger, metrics *jobmetrics.Metrics) *CellRetryJob {
	return &CellRetryJob{Writer: writer, Logger: logger, Metrics: metrics, Timeout: 10 * time.Second}
}

// Handle executes one deferred cell update. Updates whose row or column has
// since been deleted are dropped without retry.
func (j *CellRetryJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Writer == nil {
		return errors.New("cell retry: writer not configured")
	}
	var update matrix.CellUpdate
	if err := json.Unmarshal(task.Payload(), &update); err != nil {
		return fmt.Errorf("cell retry: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if update.MatrixID == "" || update.RowID == "" || update.ColumnID == "" {
		return fmt.Errorf("cell retry: incomplete payload: %w", asynq.SkipRetry)
	}

	tracker := j.metrics().Track(TaskCellRetry)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.log().With(
		slog.String("matrix_id", update.MatrixID),
		slog.String("row_id", update.RowID),
		slog.String("column_id", update.ColumnID))

	timeout := j.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := j.Writer.UpdateCell(callCtx, update.MatrixID, update.RowID, update.ColumnID, update.Value); err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			logger.Warn("deferred cell target gone", slog.Any("error", err))
			resultErr = fmt.Errorf("cell retry: %w: %w", err, asynq.SkipRetry)
			return resultErr
		}
		logger.Error("deferred cell update failed", slog.Any("error", err))
		resultErr = err
		return resultErr
	}
	logger.Info("deferred cell update applied")
	return resultErr
}

func (j *CellRetryJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *CellRetryJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskCellRetry))
	}
	return slog.Default().With(slog.String("job", TaskCellRetry))
}
