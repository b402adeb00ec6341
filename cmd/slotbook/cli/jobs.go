package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/slotbook/jobs"
)

var now = func() time.Time { return time.Now().UTC() }

type taskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

type queueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	ListRetryTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
	ListArchivedTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
	Close() error
}

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	client    taskEnqueuer
	inspector queueInspector
}

// NewJobsCLI initialises the CLI helpers using the provided Redis address.
func NewJobsCLI(redisAddr string) (*JobsCLI, error) {
	if redisAddr == "" {
		return nil, errors.New("jobs cli: redis address required")
	}
	opts := asynq.RedisClientOpt{Addr: redisAddr}
	return &JobsCLI{client: asynq.NewClient(opts), inspector: asynq.NewInspector(opts)}, nil
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var err error
	if c.inspector != nil {
		if closeErr := c.inspector.Close(); closeErr != nil {
			err = closeErr
		}
	}
	if c.client != nil {
		if closeErr := c.client.Close(); closeErr != nil {
			err = closeErr
		}
	}
	return err
}

// Trigger enqueues a supported job by name with default payload.
func (c *JobsCLI) Trigger(ctx context.Context, name string) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	var task *asynq.Task
	var err error
	switch name {
	case jobs.TaskResourceWarmup:
		task, err = jobs.NewResourceWarmupTask(now())
	default:
		return nil, fmt.Errorf("jobs cli: unsupported job %s", name)
	}
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.MaxRetry(3))
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
	Archived  int
}

// InspectQueue reports the queue metrics for the default queue.
func (c *JobsCLI) InspectQueue(ctx context.Context) (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return QueueStats{}, err
	}
	stats := QueueStats{Queue: jobs.QueueDefault}
	if info != nil {
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Retry = info.Retry
		stats.Archived = info.Archived
	}
	return stats, nil
}

// PendingCellRetries lists deferred cell updates waiting for a retry, or
// archived after exhausting their attempts when archived is set.
func (c *JobsCLI) PendingCellRetries(ctx context.Context, size int, archived bool) ([]*asynq.TaskInfo, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	if size <= 0 {
		size = 20
	}
	list := c.inspector.ListRetryTasks
	if archived {
		list = c.inspector.ListArchivedTasks
	}
	tasks, err := list(jobs.QueueDefault, asynq.PageSize(size), asynq.Page(1))
	if err != nil {
		return nil, err
	}
	out := tasks[:0]
	for _, t := range tasks {
		if t.Type == jobs.TaskCellRetry {
			out = append(out, t)
		}
	}
	return out, nil
}

// StatsCommand prints queue stats followed by failing cell retries.
func (c *JobsCLI) StatsCommand(ctx context.Context, stdout, stderr io.Writer) int {
	stdout = writerOr(stdout, os.Stdout)
	stderr = writerOr(stderr, os.Stderr)
	stats, err := c.InspectQueue(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "jobs: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "queue %s: pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
		stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived)
	if stats.Retry == 0 {
		return 0
	}
	tasks, err := c.PendingCellRetries(ctx, 20, false)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "jobs: %v\n", err)
		return 1
	}
	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tRETRIED\tLAST ERROR")
	for _, t := range tasks {
		_, _ = fmt.Fprintf(tw, "%s\t%d/%d\t%s\n", t.ID, t.Retried, t.MaxRetry, t.LastErr)
	}
	_ = tw.Flush()
	return 0
}
