package logger

import (
	"context"

	"rewards-controlplane/pkg/config"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Module = fx.Module("zap",
	fx.Provide(
		New,
	),
)

type ConfigParams struct {
	fx.In
	Cfg *config.Config
}

// New builds the process logger and installs it as the zap global. Production runs emit
// JSON with severity and ISO8601 timestamps; everything else uses the console encoder.
func New(p ConfigParams) (*zap.Logger, error) {
	cfg := p.Cfg
	if cfg == nil {
		cfg = &config.Config{}
	}

	zc := zap.NewDevelopmentConfig()
	if cfg.IsProduction() {
		zc = productionConfig()
	}

	log, err := zc.Build()
	if err != nil {
		return nil, err
	}

	if cfg.AppName != "" {
		log = log.With(
			zap.String("env", cfg.AppEnv),
			zap.String("service_name", cfg.AppName),
			zap.String("service_version", cfg.AppVersion),
		)
	}

	zap.ReplaceGlobals(log)
	return log, nil
}

func productionConfig() zap.Config {
	zc := zap.NewProductionConfig()
	zc.Encoding = "json"
	zc.OutputPaths = []string{"stdout"}
	zc.ErrorOutputPaths = []string{"stderr"}

	enc := &zc.EncoderConfig
	enc.TimeKey = "timestamp"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.LevelKey = "severity"
	enc.EncodeLevel = zapcore.CapitalLevelEncoder
	enc.CallerKey = "caller"
	enc.EncodeCaller = zapcore.ShortCallerEncoder
	enc.StacktraceKey = "stacktrace"
	return zc
}

// TraceFields returns trace_id and span_id fields for the span in ctx, or nothing when
// ctx carries no sampled span.
func TraceFields(ctx context.Context) []zap.Field {
	if ctx == nil {
		return nil
	}
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return nil
	}
	return []zap.Field{
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	}
}

// WithTrace returns the global logger annotated with the trace ids found in ctx.
func WithTrace(ctx context.Context) *zap.Logger {
	fields := TraceFields(ctx)
	if len(fields) == 0 {
		return zap.L()
	}
	return zap.L().With(fields...)
}
