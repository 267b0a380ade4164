package main

import (
	"log"

	"rewards-controlplane/pkg/config"
	"rewards-controlplane/pkg/db"
	"rewards-controlplane/pkg/gen"
	"rewards-controlplane/pkg/hashistack/secretmanager"
	"rewards-controlplane/pkg/health"
	"rewards-controlplane/pkg/logger"
	"rewards-controlplane/pkg/otelcol"
	"rewards-controlplane/pkg/profiling"
	"rewards-controlplane/pkg/redis"
	"rewards-controlplane/pkg/sequence"
	"rewards-controlplane/pkg/server"
	"rewards-controlplane/pkg/task"
	"rewards-controlplane/services/account"
	"rewards-controlplane/services/cart"
	"rewards-controlplane/services/catalog"
	"rewards-controlplane/services/ledger"
	"rewards-controlplane/services/notification"
	"rewards-controlplane/services/order"
	"rewards-controlplane/services/schema"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	opts := []fx.Option{
		secretmanager.Module,
		config.Module,
		logger.Module,
		db.Module,
		schema.Module,
		redis.Module,
		sequence.Module,
		task.Client,
		otelcol.Module,
		profiling.Module,
		health.Module,
		gen.Module,
		account.Module,
		account.Gateway,
		catalog.Module,
		cart.Module,
		cart.Gateway,
		notification.Module,
		notification.Gateway,
		ledger.Module,
		ledger.Gateway,
		order.Module,
		order.Gateway,
		server.ProvideHTTPServer,
		server.ProvideGRPCServer,
		health.GRPC,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	if cfg.IsProduction() {
		return fxevent.NopLogger
	}
	return &fxevent.ZapLogger{Logger: logger.Named("fx")}
})
