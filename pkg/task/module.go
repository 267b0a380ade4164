package task

import (
	"context"
	"fmt"

	"rewards-controlplane/pkg/config"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Queue names shared by producers and the worker.
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

var Client = fx.Module("asynq:client",
	fx.Provide(newClient, NewEnqueuer),
)

var Server = fx.Module("asynq:server",
	fx.Provide(asynq.NewServeMux),
	fx.Invoke(runServer),
)

func redisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	}
}

func newClient(lc fx.Lifecycle, cfg *config.Config) (*asynq.Client, error) {
	client := asynq.NewClient(redisOpt(cfg))
	if err := client.Ping(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("asynq client ping %s: %w", cfg.Redis.Addr, err)
	}
	zap.L().Info("[Asynq] client connected", zap.String("addr", cfg.Redis.Addr))

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

// Queues weights the worker queues; the notification queue name comes from config.
func Queues(cfg *config.Config) map[string]int {
	return map[string]int{
		QueueCritical:          10,
		cfg.Notification.Queue: 6,
		QueueDefault:           5,
		QueueLow:               3,
	}
}

func serverConfig(cfg *config.Config) asynq.Config {
	concurrency := cfg.Worker.Concurrency
	if concurrency <= 0 {
		concurrency = 10
	}
	return asynq.Config{
		Concurrency:     concurrency,
		Queues:          Queues(cfg),
		ShutdownTimeout: cfg.Worker.ShutdownTimeout,
		RetryDelayFunc:  asynq.DefaultRetryDelayFunc,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, t *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			zap.L().Error("[Asynq] task failed",
				zap.String("task_type", t.Type()),
				zap.Int("retried", retried),
				zap.Int("max_retry", maxRetry),
				zap.Error(err),
			)
		}),
	}
}

// runServer starts processing on fx start. Start returns once the processors are
// running, so a redis failure aborts application startup.
func runServer(lc fx.Lifecycle, cfg *config.Config, mux *asynq.ServeMux) {
	server := asynq.NewServer(redisOpt(cfg), serverConfig(cfg))

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := server.Start(mux); err != nil {
				return fmt.Errorf("asynq server start: %w", err)
			}
			zap.L().Info("[Asynq] worker started", zap.Int("concurrency", cfg.Worker.Concurrency))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			server.Shutdown()
			return nil
		},
	})
}
