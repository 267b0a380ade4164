package server

import (
	"context"
	"fmt"
	"net"

	"rewards-controlplane/pkg/config"
	"rewards-controlplane/pkg/errutil"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/logging"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/recovery"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/validator"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/reflection"
)

var ProvideGRPCServer = fx.Module("grpc.server",
	fx.Provide(
		NewListener,
		WithOption,
		NewGRPCServer,
	),
	fx.Invoke(
		StartGRPCServer,
	),
)

func NewListener(cfg *config.Config) (net.Listener, error) {
	return net.Listen("tcp", ":"+cfg.Grpc.Addr)
}

type OptionParams struct {
	fx.In
	Lifecycle fx.Lifecycle
	Config    *config.Config
	Tracer trace.TracerProvider
	Meter  metric.MeterProvider
}

// WithOption builds the interceptor chains and, when enabled, the TLS credentials.
func WithOption(p OptionParams) ([]grpc.ServerOption, error) {
	log := zapInterceptorLogger(zap.L().Named("grpc"))
	recoverOpt := recovery.WithRecoveryHandlerContext(func(ctx context.Context, r any) error {
		zap.L().Error("grpc handler panic", zap.Any("panic", r), zap.Stack("stack"))
		return errutil.ToGRPCError(errutil.Internal("internal server error", fmt.Errorf("panic: %v", r)))
	})

	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			recovery.UnaryServerInterceptor(recoverOpt),
			logging.UnaryServerInterceptor(log, logging.WithLogOnEvents(logging.FinishCall)),
			validator.UnaryServerInterceptor(validator.WithFailFast()),
			errutil.UnaryServerInterceptor(),
		),
		grpc.ChainStreamInterceptor(
			recovery.StreamServerInterceptor(recoverOpt),
			logging.StreamServerInterceptor(log, logging.WithLogOnEvents(logging.FinishCall)),
			validator.StreamServerInterceptor(validator.WithFailFast()),
		),
		grpc.StatsHandler(otelgrpc.NewServerHandler(
			otelgrpc.WithTracerProvider(p.Tracer),
			otelgrpc.WithMeterProvider(p.Meter),
		)),
	}

	if p.Config.TLS.Enable {
		certs, err := newCertReloader(p.Config.TLS.CertPath, p.Config.TLS.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("load grpc tls keypair: %w", err)
		}
		opts = append(opts, grpc.Creds(credentials.NewTLS(certs.TLSConfig())))

		watchCtx, stop := context.WithCancel(context.Background())
		p.Lifecycle.Append(fx.Hook{
			OnStart: func(context.Context) error {
				if err := certs.watch(watchCtx); err != nil {
					zap.L().Warn("[gRPC] tls hot reload disabled", zap.Error(err))
				}
				return nil
			},
			OnStop: func(context.Context) error {
				stop()
				return nil
			},
		})
	}

	return opts, nil
}

// zapInterceptorLogger adapts zap to the go-grpc-middleware logging interface.
func zapInterceptorLogger(l *zap.Logger) logging.Logger {
	return logging.LoggerFunc(func(ctx context.Context, lvl logging.Level, msg string, fields ...any) {
		f := make([]zap.Field, 0, len(fields)/2)
		for i := 0; i+1 < len(fields); i += 2 {
			key, ok := fields[i].(string)
			if !ok {
				continue
			}
			f = append(f, zap.Any(key, fields[i+1]))
		}

		log := l.WithOptions(zap.AddCallerSkip(1)).With(f...)
		switch lvl {
		case logging.LevelDebug:
			log.Debug(msg)
		case logging.LevelWarn:
			log.Warn(msg)
		case logging.LevelError:
			log.Error(msg)
		default:
			log.Info(msg)
		}
	})
}

type GRPCServerParams struct {
	fx.In
	Config  *config.Config
	Options []grpc.ServerOption
}

func NewGRPCServer(p GRPCServerParams) *grpc.Server {
	srv := grpc.NewServer(p.Options...)
	if !p.Config.IsProduction() {
		reflection.Register(srv)
	}
	return srv
}

// StartGRPCServer serves in the background and drains in-flight calls on stop, forcing
// the stop once the shutdown context expires.
func StartGRPCServer(lc fx.Lifecycle, lis net.Listener, srv *grpc.Server) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				zap.L().Info("[gRPC] serving", zap.String("addr", lis.Addr().String()))
				if err := srv.Serve(lis); err != nil {
					zap.L().Error("[gRPC] server exited", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			done := make(chan struct{})
			go func() {
				srv.GracefulStop()
				close(done)
			}()

			select {
			case <-done:
			case <-ctx.Done():
				zap.L().Warn("[gRPC] graceful stop timed out, forcing")
				srv.Stop()
			}
			return nil
		},
	})
}
