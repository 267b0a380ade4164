package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"rewards-controlplane/pkg/config"
	"rewards-controlplane/pkg/health"
	applog "rewards-controlplane/pkg/logger"
	"rewards-controlplane/pkg/middleware"

	"github.com/casbin/casbin/v2"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ProvideHTTPServer = fx.Module("http.server",
	fx.Provide(
		NewEngine,
		middleware.NewEnforcer,
		NewRouter,
		NewHttpServer,
	),
	fx.Invoke(Run),
)

type Server struct {
	server *http.Server
	certs  *certReloader
}

// Router exposes the authenticated /api/v1 group. Services mount their handlers on it.
type Router struct {
	API *gin.RouterGroup
}

type EngineParams struct {
	fx.In
	Config *config.Config
	Health health.HealthService
	Tracer trace.TracerProvider
}

func NewEngine(p EngineParams) *gin.Engine {
	if p.Config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery(), Tracing(p.Tracer), AccessLog(zap.L().Named("http")), middleware.Error())

	r.GET("/healthz", p.Health.Liveness)
	r.GET("/readyz", p.Health.Readiness)

	return r
}

func NewRouter(cfg *config.Config, engine *gin.Engine, enforcer *casbin.Enforcer) *Router {
	return &Router{
		API: engine.Group("/api/v1", middleware.Auth(cfg), middleware.Authorize(enforcer)),
	}
}

// Tracing starts one server span per request.
func Tracing(tp trace.TracerProvider) gin.HandlerFunc {
	tracer := tp.Tracer("rewards-controlplane/http")
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), fmt.Sprintf("%s %s", c.Request.Method, c.FullPath()),
			trace.WithSpanKind(trace.SpanKindServer),
		)
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.status_code", status))
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}

// AccessLog writes one line per request once the handler chain has finished.
func AccessLog(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := append(applog.TraceFields(c.Request.Context()),
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
		if status >= http.StatusInternalServerError {
			log.Error("request", fields...)
			return
		}
		log.Info("request", fields...)
	}
}

type Params struct {
	fx.In
	Config  *config.Config
	Handler *gin.Engine
}

func NewHttpServer(p Params) (*Server, error) {
	cfg := p.Config
	srv := &Server{
		server: &http.Server{
			Addr:         ":" + cfg.Server.Addr,
			Handler:      p.Handler,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
		},
	}

	if cfg.TLS.Enable {
		certs, err := newCertReloader(cfg.TLS.CertPath, cfg.TLS.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("load http tls keypair: %w", err)
		}
		srv.certs = certs
		srv.server.TLSConfig = certs.TLSConfig()
	}

	return srv, nil
}

func (s *Server) serve() error {
	if s.certs != nil {
		return s.server.ListenAndServeTLS("", "")
	}
	return s.server.ListenAndServe()
}

func Run(lc fx.Lifecycle, srv *Server) {
	watchCtx, stopWatch := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if srv.certs != nil {
				if err := srv.certs.watch(watchCtx); err != nil {
					zap.L().Warn("[HTTP] tls hot reload disabled", zap.Error(err))
				}
			}

			go func() {
				zap.L().Info("[HTTP] serving", zap.String("addr", srv.server.Addr), zap.Bool("tls", srv.certs != nil))
				if err := srv.serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					zap.L().Error("[HTTP] server exited", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			stopWatch()
			zap.L().Info("[HTTP] shutting down")
			return srv.server.Shutdown(ctx)
		},
	})
}
