package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm/logger"
)

func newObserved(level logger.LogLevel, showSQL bool) (*ZapGormLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return NewZapGormLogger(zap.New(core), level, showSQL), logs
}

func query() (string, int64) { return "SELECT 1", 1 }

func TestTraceLevels(t *testing.T) {
	l, logs := newObserved(logger.Info, false)
	ctx := context.Background()

	l.Trace(ctx, time.Now(), query, nil)
	require.Zero(t, logs.Len())

	l.Trace(ctx, time.Now(), query, logger.ErrRecordNotFound)
	require.Zero(t, logs.Len())

	l.Trace(ctx, time.Now(), query, errors.New("boom"))
	require.Equal(t, 1, logs.FilterLevelExact(zapcore.ErrorLevel).Len())

	l.Trace(ctx, time.Now().Add(-time.Second), query, nil)
	slow := logs.FilterMessage("gorm.slow_query")
	require.Equal(t, 1, slow.Len())
	require.Equal(t, zapcore.WarnLevel, slow.All()[0].Level)
}

func TestTraceShowSQL(t *testing.T) {
	l, logs := newObserved(logger.Info, true)
	l.Trace(context.Background(), time.Now(), query, nil)
	require.Equal(t, 1, logs.FilterMessage("gorm.query").Len())
	require.Equal(t, "SELECT 1", logs.All()[0].ContextMap()["sql"])
}

func TestSilentAndLogMode(t *testing.T) {
	l, logs := newObserved(logger.Info, true)
	silent := l.LogMode(logger.Silent)

	silent.Trace(context.Background(), time.Now(), query, errors.New("boom"))
	silent.Error(context.Background(), "ignored %d", 1)
	require.Zero(t, logs.Len())

	l.Warn(context.Background(), "pool %s", "busy")
	require.Equal(t, "pool busy", logs.All()[0].Message)
}
