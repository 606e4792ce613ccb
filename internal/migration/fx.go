package migration

import (
	"github.com/smallbiznis/revplan/internal/config"
	plandomain "github.com/smallbiznis/revplan/internal/plan/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType != "postgres" {
			// Local sqlite runs lean on gorm's schema sync.
			return conn.AutoMigrate(
				&plandomain.DimDate{},
				&plandomain.DimSKU{},
				&plandomain.PriorYearRevenue{},
				&plandomain.SalesTransaction{},
				&plandomain.MonthActual{},
				&plandomain.DayActual{},
				&plandomain.DayWeight{},
				&plandomain.PlanMonth{},
				&plandomain.PlanDay{},
				&plandomain.ChannelMix{},
				&plandomain.BrandMix{},
				&plandomain.PlanDayChannel{},
				&plandomain.PlanDayBrand{},
				&plandomain.PlanSKU{},
				&plandomain.Forecast{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
