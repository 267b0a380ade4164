package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWaitReadyGivesUp(t *testing.T) {
	// nothing listens on port 1
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond})
	t.Cleanup(func() { _ = rdb.Close() })

	start := time.Now()
	err := waitReady(context.Background(), rdb, 2, 10*time.Millisecond, zap.NewNop())
	require.Error(t, err)
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestWaitReadyHonoursContext(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := waitReady(ctx, rdb, 3, time.Hour, zap.NewNop())
	require.Error(t, err)
}
