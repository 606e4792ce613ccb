package forecast

import (
	"go.uber.org/fx"

	"github.com/smallbiznis/revplan/internal/forecast/service"
)

var Module = fx.Module("forecast.service",
	fx.Provide(service.NewService),
)
