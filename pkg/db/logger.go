package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	applog "rewards-controlplane/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/utils"
)

const defaultSlowQuery = 200 * time.Millisecond

// ZapGormLogger routes gorm statements through zap, tagged with the caller's trace ids.
type ZapGormLogger struct {
	Zap           *zap.Logger
	SlowThreshold time.Duration
	LogLevel      logger.LogLevel
	ShowSQL       bool
}

func NewZapGormLogger(z *zap.Logger, logLevel logger.LogLevel, showSQL bool) *ZapGormLogger {
	return &ZapGormLogger{
		Zap:           z.Named("gorm"),
		LogLevel:      logLevel,
		ShowSQL:       showSQL,
		SlowThreshold: defaultSlowQuery,
	}
}

func (l *ZapGormLogger) LogMode(level logger.LogLevel) logger.Interface {
	clone := *l
	clone.LogLevel = level
	return &clone
}

func (l *ZapGormLogger) Info(ctx context.Context, msg string, data ...any) {
	l.printf(ctx, logger.Info, msg, data)
}

func (l *ZapGormLogger) Warn(ctx context.Context, msg string, data ...any) {
	l.printf(ctx, logger.Warn, msg, data)
}

func (l *ZapGormLogger) Error(ctx context.Context, msg string, data ...any) {
	l.printf(ctx, logger.Error, msg, data)
}

func (l *ZapGormLogger) printf(ctx context.Context, level logger.LogLevel, msg string, data []any) {
	if l.LogLevel < level {
		return
	}
	log := l.Zap.With(applog.TraceFields(ctx)...)
	text := fmt.Sprintf(msg, data...)
	switch level {
	case logger.Error:
		log.Error(text)
	case logger.Warn:
		log.Warn(text)
	default:
		log.Info(text)
	}
}

// Trace logs failed statements at error, slow ones at warn, and everything else only
// when SQL echo is enabled. Record-not-found is not treated as a failure.
func (l *ZapGormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.LogLevel <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	failed := err != nil && !errors.Is(err, logger.ErrRecordNotFound)
	slow := l.SlowThreshold > 0 && elapsed > l.SlowThreshold

	var emit func(string, ...zap.Field)
	msg := "gorm.query"
	log := l.Zap.With(applog.TraceFields(ctx)...)
	switch {
	case failed && l.LogLevel >= logger.Error:
		emit = log.Error
	case slow && l.LogLevel >= logger.Warn:
		emit, msg = log.Warn, "gorm.slow_query"
	case l.ShowSQL && l.LogLevel >= logger.Info:
		emit = log.Info
	default:
		return
	}

	sql, rows := fc()
	fields := []zap.Field{
		zap.String("file", utils.FileWithLineNum()),
		zap.String("sql", sql),
		zap.Int64("rows", rows),
		zap.Duration("elapsed", elapsed),
	}
	if failed {
		fields = append(fields, zap.Error(err))
	}
	if slow {
		fields = append(fields, zap.Duration("threshold", l.SlowThreshold))
	}
	emit(msg, fields...)
}
