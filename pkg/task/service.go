package task

import (
	"context"
	"errors"
	"fmt"

	"rewards-controlplane/pkg/logger"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Enqueuer is the producer side of the asynq queues. Services depend on it instead of
// *asynq.Client so tests can swap in a fake.
type Enqueuer interface {
	Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// ErrAlreadyQueued is returned when a unique task or a task with the same id is still
// pending.
var ErrAlreadyQueued = errors.New("task already queued")

type asynqEnqueuer struct {
	client *asynq.Client
}

func NewEnqueuer(client *asynq.Client) Enqueuer {
	return &asynqEnqueuer{client: client}
}

func (e *asynqEnqueuer) Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	info, err := e.client.EnqueueContext(ctx, task, opts...)
	switch {
	case errors.Is(err, asynq.ErrDuplicateTask), errors.Is(err, asynq.ErrTaskIDConflict):
		return nil, fmt.Errorf("%s: %w", task.Type(), ErrAlreadyQueued)
	case err != nil:
		return nil, fmt.Errorf("enqueue %s: %w", task.Type(), err)
	}

	logger.WithTrace(ctx).Debug("task enqueued",
		zap.String("task_type", task.Type()),
		zap.String("task_id", info.ID),
		zap.String("queue", info.Queue),
	)
	return info, nil
}
