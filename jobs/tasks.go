package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/slotbook/internal/matrix"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskCellRetry retries a cell update that failed during a grid save.
	TaskCellRetry = "matrix:cell:update"
	// TaskResourceWarmup refreshes the cached bin and product lookups.
	TaskResourceWarmup = "resources:warmup"
)

// DefaultCellRetryAttempts bounds how often a deferred cell update is retried.
const DefaultCellRetryAttempts = 5

// ResourceWarmupPayload carries scheduling metadata.
type ResourceWarmupPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewCellRetryTask constructs an Asynq task for a deferred cell update.
func NewCellRetryTask(update matrix.CellUpdate, maxRetry int) (*asynq.Task, error) {
	body, err := json.Marshal(update)
	if err != nil {
		return nil, err
	}
	if maxRetry <= 0 {
		maxRetry = DefaultCellRetryAttempts
	}
	return asynq.NewTask(TaskCellRetry, body, asynq.Queue(QueueDefault), asynq.MaxRetry(maxRetry)), nil
}

// NewResourceWarmupTask constructs an Asynq task refreshing resource caches.
func NewResourceWarmupTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(ResourceWarmupPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskResourceWarmup, body, asynq.Queue(QueueDefault)), nil
}
