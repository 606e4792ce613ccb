package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/smallbiznis/revplan/internal/clock"
	"github.com/smallbiznis/revplan/internal/config"
	mixservice "github.com/smallbiznis/revplan/internal/mix/service"
	plandomain "github.com/smallbiznis/revplan/internal/plan/domain"
	seasonalityservice "github.com/smallbiznis/revplan/internal/seasonality/service"
	waterfalldomain "github.com/smallbiznis/revplan/internal/waterfall/domain"
)

func openTestDB(t *testing.T) *gorm.DB {
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
	))
	return db
}

func newTestService(db *gorm.DB, now time.Time) waterfalldomain.Service {
	fake := clock.NewFakeClock(now)
	holder := config.NewStaticPlanConfigHolder(config.DefaultPlanConfig())
	log := zap.NewNop()
	seasonality := seasonalityservice.NewService(seasonalityservice.Params{
		DB: db, Log: log, Clock: fake, Plan: holder,
	})
	mix := mixservice.NewService(mixservice.Params{
		DB: db, Log: log, Clock: fake, Plan: holder,
	})
	return NewService(Params{
		DB:          db,
		Log:         log,
		Clock:       fake,
		Plan:        holder,
		Seasonality: seasonality,
		Mix:         mix,
	})
}

func TestAllocateMonths_ProportionalToBaseYear(t *testing.T) {
	db := openTestDB(t)
	for m := 1; m <= 12; m++ {
		require.NoError(t, db.Create(&plandomain.PriorYearRevenue{
			Year: 2025, Month: m, Total: decimal.NewFromInt(3),
		}).Error)
	}

	svc := newTestService(db, plandomain.Date(2025, time.December, 1))
	rows, err := svc.AllocateMonths(context.Background(), plandomain.SeedVersion, 2026)
	require.NoError(t, err)
	require.Len(t, rows, 12)

	// 50B x 3/36 presented at two decimal places.
	for _, row := range rows {
		assert.Equal(t, "4166666666.67", row.Initial.StringFixed(2))
		assert.True(t, row.Adjustment.Equal(row.Initial))
	}
}

func TestAllocateMonths_ZeroBaseYearFails(t *testing.T) {
	db := openTestDB(t)
	svc := newTestService(db, plandomain.Date(2025, time.December, 1))
	_, err := svc.AllocateMonths(context.Background(), plandomain.SeedVersion, 2026)
	assert.ErrorIs(t, err, waterfalldomain.ErrZeroPriorYearRevenue)
}

func seedWeights(t *testing.T, db *gorm.DB, year, month int) {
	t.Helper()
	now := plandomain.Date(year, time.Month(month), 1)
	twm := decimal.RequireFromString("3.3")
	require.NoError(t, db.Create(&[]plandomain.DayWeight{
		{
			Year: year, Month: month, DateLabel: "Normal day",
			Uplift: decimal.NewFromInt(1), DayCount: 2,
			Weight: decimal.NewFromInt(2), TotalWeightMonth: twm,
			CreatedAt: now, UpdatedAt: now,
		},
		{
			Year: year, Month: month, DateLabel: "Pay Day",
			Uplift: decimal.RequireFromString("1.3"), DayCount: 1,
			Weight: decimal.RequireFromString("1.3"), TotalWeightMonth: twm,
			CreatedAt: now, UpdatedAt: now,
		},
	}).Error)
}

func seedCalendar(t *testing.T, db *gorm.DB, dates map[string]string) {
	t.Helper()
	for raw, label := range dates {
		date, err := time.Parse("2006-01-02", raw)
		require.NoError(t, err)
		require.NoError(t, db.Create(&plandomain.DimDate{
			CalendarDate: plandomain.DateOnly(date),
			Year:         date.Year(),
			Month:        int(date.Month()),
			Day:          date.Day(),
			DateLabel:    label,
		}).Error)
	}
}

func TestAllocateDays_SpreadsMonthBudgetByWeight(t *testing.T) {
	db := openTestDB(t)
	seedWeights(t, db, 2026, 4)
	seedCalendar(t, db, map[string]string{
		"2026-04-01": "Normal day",
		"2026-04-02": "Normal day",
		"2026-04-25": "Pay Day",
	})
	now := plandomain.Date(2026, time.March, 28)
	require.NoError(t, db.Create(&plandomain.PlanMonth{
		Version: plandomain.SeedVersion, Year: 2026, Month: 4,
		Initial:    decimal.NewFromInt(330),
		Adjustment: decimal.NewFromInt(330),
		CreatedAt:  now, UpdatedAt: now,
	}).Error)

	svc := newTestService(db, now)
	rows, err := svc.AllocateDays(context.Background(), 2026, time.April)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.True(t, rows[0].Initial.Equal(decimal.NewFromInt(100)), "got %s", rows[0].Initial)
	assert.True(t, rows[1].Initial.Equal(decimal.NewFromInt(100)))
	assert.True(t, rows[2].Initial.Equal(decimal.NewFromInt(130)), "got %s", rows[2].Initial)
}

func TestAllocateDays_NewestVersionWins(t *testing.T) {
	db := openTestDB(t)
	seedWeights(t, db, 2026, 4)
	seedCalendar(t, db, map[string]string{"2026-04-01": "Normal day"})
	now := plandomain.Date(2026, time.March, 28)
	require.NoError(t, db.Create(&[]plandomain.PlanMonth{
		{
			Version: plandomain.SeedVersion, Year: 2026, Month: 4,
			Initial: decimal.NewFromInt(330), Adjustment: decimal.NewFromInt(330),
			CreatedAt: now, UpdatedAt: now,
		},
		{
			Version: plandomain.VersionLabel(3), Year: 2026, Month: 4,
			Initial: decimal.NewFromInt(660), Adjustment: decimal.NewFromInt(660),
			CreatedAt: now, UpdatedAt: now,
		},
	}).Error)

	svc := newTestService(db, now)
	rows, err := svc.AllocateDays(context.Background(), 2026, time.April)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].MonthInitial.Equal(decimal.NewFromInt(660)))
}

func TestAllocateChannels_SkipsBlackoutWindow(t *testing.T) {
	db := openTestDB(t)
	now := plandomain.Date(2026, time.June, 1)
	require.NoError(t, db.Create(&[]plandomain.PlanDay{
		{
			CalendarDate: plandomain.Date(2026, time.June, 3),
			Year:         2026, Month: 6, Day: 3, DateLabel: "Normal day",
			Initial:   decimal.NewFromInt(200),
			CreatedAt: now, UpdatedAt: now,
		},
		{
			// Inside the 6/5-6/7 mega-sale window.
			CalendarDate: plandomain.Date(2026, time.June, 6),
			Year:         2026, Month: 6, Day: 6, DateLabel: "Double Day",
			Initial:   decimal.NewFromInt(900),
			CreatedAt: now, UpdatedAt: now,
		},
	}).Error)
	require.NoError(t, db.Create(&[]plandomain.ChannelMix{
		{
			Year: 2026, Month: 6, DateLabel: "Normal day", Channel: "Online",
			Share: decimal.RequireFromString("0.6"), CreatedAt: now, UpdatedAt: now,
		},
		{
			Year: 2026, Month: 6, DateLabel: "Normal day", Channel: "Retail",
			Share: decimal.RequireFromString("0.4"), CreatedAt: now, UpdatedAt: now,
		},
	}).Error)

	svc := newTestService(db, now)
	rows, err := svc.AllocateChannels(context.Background(), 2026, time.June)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.Equal(t, 3, row.Day)
	}
	assert.True(t, rows[0].Initial.Equal(decimal.NewFromInt(120)), "got %s", rows[0].Initial)
	assert.True(t, rows[1].Initial.Equal(decimal.NewFromInt(80)))
}

func TestAllocateSKUs_HeroCoreSplit(t *testing.T) {
	db := openTestDB(t)
	now := plandomain.Date(2026, time.April, 1)
	require.NoError(t, db.Create(&plandomain.PlanDayBrand{
		CalendarDate: plandomain.Date(2026, time.April, 1),
		Year:         2026, Month: 4, Day: 1, DateLabel: "Normal day",
		Channel: "Online", BrandName: "Acme",
		Share:   decimal.NewFromInt(1),
		Initial: decimal.NewFromInt(100),
		CreatedAt: now, UpdatedAt: now,
	}).Error)
	require.NoError(t, db.Create(&[]plandomain.DimSKU{
		{BrandName: "Acme", SKU: "HERO-A", Classification: plandomain.ClassificationHero, RevenueShareInClass: decimal.NewFromInt(60)},
		{BrandName: "Acme", SKU: "HERO-B", Classification: plandomain.ClassificationHero, RevenueShareInClass: decimal.NewFromInt(40)},
		{BrandName: "Acme", SKU: "CORE-C", Classification: plandomain.ClassificationCore, RevenueShareInClass: decimal.NewFromInt(100)},
		{BrandName: "Acme", SKU: "TAIL-D", Classification: plandomain.ClassificationTail, RevenueShareInClass: decimal.NewFromInt(100)},
	}).Error)

	svc := newTestService(db, now)
	rows, err := svc.AllocateSKUs(context.Background(), 2026, time.April)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	bySKU := make(map[string]plandomain.PlanSKU, len(rows))
	for _, row := range rows {
		bySKU[row.SKU] = row
	}
	assert.Equal(t, "51", bySKU["HERO-A"].Initial.String())
	assert.Equal(t, "34", bySKU["HERO-B"].Initial.String())
	assert.Equal(t, "15", bySKU["CORE-C"].Initial.String())
	_, hasTail := bySKU["TAIL-D"]
	assert.False(t, hasTail)
}

func TestAllocateSKUs_SingleSKUTakesAll(t *testing.T) {
	db := openTestDB(t)
	now := plandomain.Date(2026, time.April, 1)
	require.NoError(t, db.Create(&plandomain.PlanDayBrand{
		CalendarDate: plandomain.Date(2026, time.April, 1),
		Year:         2026, Month: 4, Day: 1, DateLabel: "Normal day",
		Channel: "Online", BrandName: "Solo",
		Share:   decimal.NewFromInt(1),
		Initial: decimal.NewFromInt(100),
		CreatedAt: now, UpdatedAt: now,
	}).Error)
	require.NoError(t, db.Create(&plandomain.DimSKU{
		BrandName: "Solo", SKU: "ONLY-1",
		Classification:      plandomain.ClassificationCore,
		RevenueShareInClass: decimal.NewFromInt(100),
	}).Error)

	svc := newTestService(db, now)
	rows, err := svc.AllocateSKUs(context.Background(), 2026, time.April)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "100", rows[0].Initial.String())
}
