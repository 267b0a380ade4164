package redis

import (
	"context"
	"time"

	"rewards-controlplane/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("redis",
	fx.Provide(New),
)

// New opens the shared redis client. An unreachable server is logged, not fatal: the
// client reconnects lazily and callers already degrade when commands fail.
func New(lc fx.Lifecycle, c *config.Config) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:        c.Redis.Addr,
		Password:    c.Redis.Password,
		DB:          c.Redis.DB,
		PoolSize:    c.Redis.PoolSize,
		PoolTimeout: c.Redis.PoolTimeout,
	})

	log := zap.L().Named("redis").With(zap.String("addr", c.Redis.Addr), zap.Int("db", c.Redis.DB))
	if err := waitReady(context.Background(), rdb, c.Redis.PingAttempts, c.Redis.PingBackoff, log); err != nil {
		log.Error("[Redis] unreachable, continuing without a warm connection", zap.Error(err))
	} else {
		log.Info("[Redis] connected", zap.Int("pool_size", c.Redis.PoolSize))
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return rdb.Close()
		},
	})

	return rdb
}

func waitReady(ctx context.Context, rdb *redis.Client, attempts int, backoff time.Duration, log *zap.Logger) error {
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for i := 1; i <= attempts; i++ {
		if err = rdb.Ping(ctx).Err(); err == nil {
			return nil
		}
		if i == attempts {
			break
		}

		log.Warn("[Redis] not ready, retrying", zap.Int("attempt", i), zap.Duration("backoff", backoff), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return err
}
