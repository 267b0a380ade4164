package account

import (
	"go.uber.org/fx"
)

var Module = fx.Module("account.service",
	fx.Provide(NewService),
)

var Gateway = fx.Module("account.gateway",
	fx.Invoke(registerRoutes),
)
