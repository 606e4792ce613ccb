package mix

import (
	"go.uber.org/fx"

	"github.com/smallbiznis/revplan/internal/mix/service"
)

var Module = fx.Module("mix.service",
	fx.Provide(service.NewService),
)
