package exporters

import (
	"context"
	"fmt"
	"time"

	"rewards-controlplane/pkg/config"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
)

const defaultTimeout = 10 * time.Second

// New builds the OTLP span exporter for OTEL.PROTOCOL.
func New(cfg *config.Config) (*otlptrace.Exporter, error) {
	switch cfg.Otel.Protocol {
	case "http":
		return ProvideHttp(cfg)
	case "grpc", "":
		return ProvideGrpc(cfg)
	default:
		return nil, fmt.Errorf("unsupported otel protocol %q", cfg.Otel.Protocol)
	}
}

func timeout(cfg *config.Config) time.Duration {
	if cfg.Otel.Timeout > 0 {
		return cfg.Otel.Timeout
	}
	return defaultTimeout
}

func ProvideHttp(cfg *config.Config) (*otlptrace.Exporter, error) {
	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(cfg.Otel.Addr),
		otlptracehttp.WithCompression(otlptracehttp.GzipCompression),
		otlptracehttp.WithTimeout(timeout(cfg)),
	}
	if cfg.Otel.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if len(cfg.Otel.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(cfg.Otel.Headers))
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout(cfg))
	defer cancel()
	return otlptrace.New(ctx, otlptracehttp.NewClient(opts...))
}

func ProvideGrpc(cfg *config.Config) (*otlptrace.Exporter, error) {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Otel.Addr),
		otlptracegrpc.WithCompressor("gzip"),
		otlptracegrpc.WithTimeout(timeout(cfg)),
	}
	if cfg.Otel.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	if len(cfg.Otel.Headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(cfg.Otel.Headers))
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout(cfg))
	defer cancel()
	return otlptrace.New(ctx, otlptracegrpc.NewClient(opts...))
}
