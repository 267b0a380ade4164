package logger

import (
	"context"
	"testing"

	"rewards-controlplane/pkg/config"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

func TestTraceFieldsWithoutSpan(t *testing.T) {
	require.Empty(t, TraceFields(context.Background()))
	require.Same(t, zap.L(), WithTrace(context.Background()))
}

func TestTraceFieldsWithSpan(t *testing.T) {
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: trace.TraceID{1, 2, 3},
		SpanID:  trace.SpanID{4, 5, 6},
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	fields := TraceFields(ctx)
	require.Len(t, fields, 2)
	require.Equal(t, "trace_id", fields[0].Key)
	require.Equal(t, sc.TraceID().String(), fields[0].String)
	require.Equal(t, "span_id", fields[1].Key)
}

func TestNewReplacesGlobals(t *testing.T) {
	prev := zap.L()
	t.Cleanup(func() { zap.ReplaceGlobals(prev) })

	cfg := &config.Config{AppEnv: "production", AppName: "rewards"}
	log, err := New(ConfigParams{Cfg: cfg})
	require.NoError(t, err)
	require.Same(t, log, zap.L())
}
