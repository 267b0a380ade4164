package cart

import "go.uber.org/fx"

var Module = fx.Module("cart.service",
	fx.Provide(NewService),
)

var Gateway = fx.Module("cart.gateway",
	fx.Invoke(registerRoutes),
)
