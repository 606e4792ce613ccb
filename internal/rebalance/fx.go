package rebalance

import (
	"go.uber.org/fx"

	"github.com/smallbiznis/revplan/internal/rebalance/service"
)

var Module = fx.Module("rebalance.service",
	fx.Provide(service.NewService),
)
