package waterfall

import (
	"go.uber.org/fx"

	"github.com/smallbiznis/revplan/internal/waterfall/service"
)

var Module = fx.Module("waterfall.service",
	fx.Provide(service.NewService),
)
