package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"rewards-controlplane/pkg/task"
	"rewards-controlplane/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Dispatcher hands messages to the asynq worker instead of writing them inline.
type Dispatcher struct {
	enqueuer task.Enqueuer
	queue    string
}

func NewDispatcher(enqueuer task.Enqueuer, queue string) *Dispatcher {
	return &Dispatcher{enqueuer: enqueuer, queue: queue}
}

func NewDeliverTask(msg Message, queue string) (*asynq.Task, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskname.NotificationDeliver, payload,
		asynq.Queue(queue),
		asynq.MaxRetry(5),
	), nil
}

func (d *Dispatcher) Notify(ctx context.Context, msg Message) error {
	t, err := NewDeliverTask(msg, d.queue)
	if err != nil {
		return err
	}

	if _, err := d.enqueuer.Enqueue(ctx, t); err != nil {
		return err
	}
	return nil
}

// DeliveryWorker persists delivered messages into the inbox.
type DeliveryWorker struct {
	store *Store
}

func NewDeliveryWorker(store *Store) *DeliveryWorker {
	return &DeliveryWorker{store: store}
}

func (w *DeliveryWorker) HandleDeliverTask(ctx context.Context, t *asynq.Task) error {
	var msg Message
	if err := json.Unmarshal(t.Payload(), &msg); err != nil {
		return fmt.Errorf("invalid payload: %w: %w", err, asynq.SkipRetry)
	}

	if err := w.store.Notify(ctx, msg); err != nil {
		zap.L().Error("failed to deliver notification",
			zap.String("task_type", t.Type()),
			zap.String("recipient_user_id", msg.RecipientUserID.String()),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func registerTaskHandlers(mux *asynq.ServeMux, w *DeliveryWorker) {
	mux.HandleFunc(taskname.NotificationDeliver, w.HandleDeliverTask)
}
