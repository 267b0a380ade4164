package main

import (
	"log"

	"rewards-controlplane/pkg/config"
	"rewards-controlplane/pkg/db"
	"rewards-controlplane/pkg/gen"
	"rewards-controlplane/pkg/hashistack/secretmanager"
	"rewards-controlplane/pkg/logger"
	"rewards-controlplane/pkg/otelcol"
	"rewards-controlplane/pkg/task"
	"rewards-controlplane/services/account"
	"rewards-controlplane/services/ledger"
	"rewards-controlplane/services/notification"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// worker runs the asynq server: notification delivery, ledger reconciliation and the
// reconcile schedule.
func main() {
	opts := []fx.Option{
		secretmanager.Module,
		config.Module,
		logger.Module,
		db.Module,
		otelcol.Module,
		task.Client,
		task.Server,
		gen.Module,
		account.Module,
		notification.Module,
		notification.Worker,
		ledger.Module,
		ledger.Worker,
		ledger.Schedule,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})
