package ledger

import (
	"context"
	"errors"
	"time"

	"rewards-controlplane/pkg/config"
	"rewards-controlplane/pkg/task"
	"rewards-controlplane/pkg/taskname"

	"github.com/hibiken/asynq"
	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const reconcileUniqueTTL = 30 * time.Minute

func NewReconcileTask() *asynq.Task {
	return asynq.NewTask(taskname.LedgerReconcile, nil,
		asynq.Queue(task.QueueLow),
		asynq.MaxRetry(1),
		asynq.Unique(reconcileUniqueTTL),
	)
}

// HandleReconcileTask runs a reconciliation pass from the worker.
func (s *Service) HandleReconcileTask(ctx context.Context, t *asynq.Task) error {
	zapLog := zap.L().With(zap.String("task_type", t.Type()))
	zapLog.Info("start ledger reconcile")

	drifts, err := s.Reconcile(ctx)
	if err != nil {
		zapLog.Error("ledger reconcile failed", zap.Error(err))
		return err
	}

	zapLog.Info("ledger reconcile finished", zap.Int("drift_count", len(drifts)))
	return nil
}

func registerTaskHandlers(mux *asynq.ServeMux, svc *Service) {
	mux.HandleFunc(taskname.LedgerReconcile, svc.HandleReconcileTask)
}

// Scheduler enqueues a reconcile task on the RECONCILE.SPEC cron schedule.
type Scheduler struct {
	cron     *cron.Cron
	enqueuer task.Enqueuer
}

func NewScheduler(spec string, enqueuer task.Enqueuer) (*Scheduler, error) {
	s := &Scheduler{
		cron:     cron.New(cron.WithLocation(time.UTC)),
		enqueuer: enqueuer,
	}

	if _, err := s.cron.AddFunc(spec, s.enqueue); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Scheduler) enqueue() {
	info, err := s.enqueuer.Enqueue(context.Background(), NewReconcileTask())
	if errors.Is(err, task.ErrAlreadyQueued) {
		zap.L().Info("ledger reconcile still pending, skipping tick")
		return
	}
	if err != nil {
		zap.L().Error("failed to enqueue ledger reconcile", zap.Error(err))
		return
	}
	zap.L().Info("ledger reconcile enqueued", zap.String("task_id", info.ID))
}

func (s *Scheduler) Start() { s.cron.Start() }

func (s *Scheduler) Stop() context.Context { return s.cron.Stop() }

func registerScheduler(lc fx.Lifecycle, cfg *config.Config, enqueuer task.Enqueuer) error {
	if !cfg.Reconcile.Enable {
		return nil
	}

	s, err := NewScheduler(cfg.Reconcile.Spec, enqueuer)
	if err != nil {
		return err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			zap.L().Info("ledger reconcile scheduler started", zap.String("spec", cfg.Reconcile.Spec))
			s.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			select {
			case <-s.Stop().Done():
			case <-ctx.Done():
			}
			return nil
		},
	})

	return nil
}
