package notification

import (
	"rewards-controlplane/pkg/config"
	"rewards-controlplane/pkg/task"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("notification.service",
	fx.Provide(
		NewStore,
		NewSink,
	),
)

var Gateway = fx.Module("notification.gateway",
	fx.Invoke(registerRoutes),
)

var Worker = fx.Module("notification.worker",
	fx.Provide(NewDeliveryWorker),
	fx.Invoke(registerTaskHandlers),
)

type SinkParams struct {
	fx.In
	Config   *config.Config
	Store    *Store
	Enqueuer task.Enqueuer `optional:"true"`
}

// NewSink picks asynq delivery when NOTIFICATION.ASYNC is set, otherwise writes the
// inbox row inline.
func NewSink(p SinkParams) Sink {
	if p.Config.Notification.Async && p.Enqueuer != nil {
		zap.L().Info("notifications delivered through asynq", zap.String("queue", p.Config.Notification.Queue))
		return NewDispatcher(p.Enqueuer, p.Config.Notification.Queue)
	}
	return p.Store
}
