package ledger

import (
	"go.uber.org/fx"
)

var Module = fx.Module("ledger.service",
	fx.Provide(NewService),
)

var Gateway = fx.Module("ledger.gateway",
	fx.Invoke(registerRoutes),
)

// Worker registers the reconcile task handler on the asynq mux.
var Worker = fx.Module("ledger.worker",
	fx.Invoke(registerTaskHandlers),
)

// Schedule enqueues periodic reconcile runs.
var Schedule = fx.Module("ledger.schedule",
	fx.Invoke(registerScheduler),
)
