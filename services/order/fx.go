package order

import "go.uber.org/fx"

var Module = fx.Module("order.service",
	fx.Provide(NewService),
)

var Gateway = fx.Module("order.gateway",
	fx.Invoke(registerRoutes),
)
