package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	actualsservice "github.com/smallbiznis/revplan/internal/actuals/service"
	"github.com/smallbiznis/revplan/internal/clock"
	"github.com/smallbiznis/revplan/internal/config"
	forecastservice "github.com/smallbiznis/revplan/internal/forecast/service"
	mixservice "github.com/smallbiznis/revplan/internal/mix/service"
	plandomain "github.com/smallbiznis/revplan/internal/plan/domain"
	planversionservice "github.com/smallbiznis/revplan/internal/planversion/service"
	rebalanceservice "github.com/smallbiznis/revplan/internal/rebalance/service"
	seasonalityservice "github.com/smallbiznis/revplan/internal/seasonality/service"
	waterfallservice "github.com/smallbiznis/revplan/internal/waterfall/service"
)

func newTestScheduler(t *testing.T, now time.Time) (*Scheduler, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&plandomain.DimDate{},
		&plandomain.DimSKU{},
		&plandomain.PriorYearRevenue{},
		&plandomain.SalesTransaction{},
		&plandomain.DayWeight{},
		&plandomain.PlanMonth{},
		&plandomain.PlanDay{},
		&plandomain.ChannelMix{},
		&plandomain.BrandMix{},
		&plandomain.PlanDayChannel{},
		&plandomain.PlanDayBrand{},
		&plandomain.PlanSKU{},
		&plandomain.Forecast{},
		&plandomain.MonthActual{},
		&plandomain.DayActual{},
	))

	fake := clock.NewFakeClock(now)
	holder := config.NewStaticPlanConfigHolder(config.DefaultPlanConfig())
	log := zap.NewNop()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	seasonality := seasonalityservice.NewService(seasonalityservice.Params{
		DB: db, Log: log, Clock: fake, Plan: holder,
	})
	mix := mixservice.NewService(mixservice.Params{
		DB: db, Log: log, Clock: fake, Plan: holder,
	})
	waterfall := waterfallservice.NewService(waterfallservice.Params{
		DB: db, Log: log, Clock: fake, Plan: holder, Seasonality: seasonality, Mix: mix,
	})
	actuals := actualsservice.NewService(actualsservice.Params{
		DB: db, Log: log, Clock: fake,
	})
	forecast := forecastservice.NewService(forecastservice.Params{
		DB: db, Log: log, Clock: fake, Plan: holder, Seasonality: seasonality,
	})
	rebalance := rebalanceservice.NewService(rebalanceservice.Params{
		DB: db, Log: log, Clock: fake, Actuals: actuals, Forecast: forecast,
	})
	version := planversionservice.NewService(planversionservice.Params{
		DB: db, Log: log, Clock: fake, Plan: holder, Waterfall: waterfall, Actuals: actuals,
	})

	sched, err := New(Params{
		DB:             db,
		Log:            log,
		GenID:          node,
		Clock:          fake,
		Plan:           holder,
		SeasonalitySvc: seasonality,
		MixSvc:         mix,
		WaterfallSvc:   waterfall,
		RebalanceSvc:   rebalance,
		ForecastSvc:    forecast,
		VersionSvc:     version,
		ActualsSvc:     actuals,
	})
	require.NoError(t, err)
	return sched, db
}

func seedWarehouse(t *testing.T, db *gorm.DB) {
	t.Helper()

	for m := 1; m <= 12; m++ {
		require.NoError(t, db.Create(&plandomain.PriorYearRevenue{
			Year: 2025, Month: m, Total: decimal.NewFromInt(3),
		}).Error)
	}

	history := []struct {
		date  time.Time
		label string
	}{
		{plandomain.Date(2026, time.February, 3), "Normal day"},
		{plandomain.Date(2026, time.February, 4), "Normal day"},
		{plandomain.Date(2026, time.February, 25), "Pay Day"},
	}
	for _, h := range history {
		require.NoError(t, db.Create(&plandomain.DimDate{
			CalendarDate: h.date,
			Year:         h.date.Year(),
			Month:        int(h.date.Month()),
			Day:          h.date.Day(),
			DateLabel:    h.label,
		}).Error)
	}
	sales := []plandomain.SalesTransaction{
		{CalendarDate: history[0].date, Hour: 10, Channel: "Online", BrandName: "Acme",
			SKU: "HERO-A", Amount: decimal.NewFromInt(60), Status: "Settled"},
		{CalendarDate: history[0].date, Hour: 19, Channel: "Retail", BrandName: "Acme",
			SKU: "CORE-C", Amount: decimal.NewFromInt(40), Status: "Settled"},
		{CalendarDate: history[1].date, Hour: 11, Channel: "Online", BrandName: "Acme",
			SKU: "HERO-A", Amount: decimal.NewFromInt(100), Status: "Settled"},
		{CalendarDate: history[2].date, Hour: 12, Channel: "Online", BrandName: "Acme",
			SKU: "HERO-A", Amount: decimal.NewFromInt(130), Status: "Settled"},
	}
	require.NoError(t, db.Create(&sales).Error)

	april := []struct {
		day   int
		label string
	}{
		{1, "Normal day"},
		{2, "Normal day"},
		{25, "Pay Day"},
	}
	for _, d := range april {
		require.NoError(t, db.Create(&plandomain.DimDate{
			CalendarDate: plandomain.Date(2026, time.April, d.day),
			Year:         2026, Month: 4, Day: d.day, DateLabel: d.label,
		}).Error)
	}

	skus := []plandomain.DimSKU{
		{BrandName: "Acme", SKU: "HERO-A", Classification: plandomain.ClassificationHero,
			RevenueShareInClass: decimal.NewFromInt(100)},
		{BrandName: "Acme", SKU: "CORE-C", Classification: plandomain.ClassificationCore,
			RevenueShareInClass: decimal.NewFromInt(100)},
	}
	require.NoError(t, db.Create(&skus).Error)
}

func TestRunPipeline_EndToEnd(t *testing.T) {
	sched, db := newTestScheduler(t, plandomain.Date(2026, time.March, 28))
	seedWarehouse(t, db)

	require.NoError(t, sched.RunPipeline(context.Background(), 2026, time.April))

	// Seed and cutover versions both exist.
	var versions []string
	require.NoError(t, db.Raw(`SELECT DISTINCT version FROM plan_months`).Scan(&versions).Error)
	assert.ElementsMatch(t, []string{"month-0", "month-3"}, versions)

	// Day initials reconcile with the month budget they were spread from.
	var days []plandomain.PlanDay
	require.NoError(t, db.Raw(
		`SELECT * FROM plan_days WHERE year = 2026 AND month = 4 ORDER BY updated_at ASC`,
	).Scan(&days).Error)
	require.NotEmpty(t, days)
	latest := make(map[int]plandomain.PlanDay)
	for _, d := range days {
		latest[d.Day] = d
	}
	require.Len(t, latest, 3)

	sum := decimal.Zero
	var budget decimal.Decimal
	for _, d := range latest {
		sum = sum.Add(d.Initial)
		budget = d.MonthInitial
	}
	diff := sum.Sub(budget).Abs()
	assert.True(t, diff.LessThan(decimal.RequireFromString("0.01")),
		"sum=%s budget=%s", sum, budget)

	var channelCount, brandCount, skuCount, forecastCount int64
	require.NoError(t, db.Raw(`SELECT COUNT(*) FROM plan_day_channels`).Scan(&channelCount).Error)
	require.NoError(t, db.Raw(`SELECT COUNT(*) FROM plan_day_brands`).Scan(&brandCount).Error)
	require.NoError(t, db.Raw(`SELECT COUNT(*) FROM plan_skus`).Scan(&skuCount).Error)
	require.NoError(t, db.Raw(`SELECT COUNT(*) FROM plan_forecasts`).Scan(&forecastCount).Error)
	assert.Positive(t, channelCount)
	assert.Positive(t, brandCount)
	assert.Positive(t, skuCount)
	assert.Equal(t, skuCount, forecastCount)
}

func TestRunPipeline_DisabledJobSkipped(t *testing.T) {
	sched, db := newTestScheduler(t, plandomain.Date(2026, time.March, 28))
	seedWarehouse(t, db)
	sched.cfg.DisabledJobs = []string{"forecast_skus"}

	require.NoError(t, sched.RunPipeline(context.Background(), 2026, time.April))

	var forecastCount int64
	require.NoError(t, db.Raw(`SELECT COUNT(*) FROM plan_forecasts`).Scan(&forecastCount).Error)
	assert.Zero(t, forecastCount)
}
