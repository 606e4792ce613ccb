package actuals

import (
	"go.uber.org/fx"

	"github.com/smallbiznis/revplan/internal/actuals/service"
)

var Module = fx.Module("actuals.service",
	fx.Provide(service.NewService),
)
