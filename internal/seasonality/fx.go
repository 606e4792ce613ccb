package seasonality

import (
	"go.uber.org/fx"

	"github.com/smallbiznis/revplan/internal/seasonality/service"
)

var Module = fx.Module("seasonality.service",
	fx.Provide(service.NewService),
)
