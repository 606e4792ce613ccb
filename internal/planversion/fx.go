package planversion

import (
	"go.uber.org/fx"

	"github.com/smallbiznis/revplan/internal/planversion/service"
)

var Module = fx.Module("planversion.service",
	fx.Provide(service.NewService),
)
