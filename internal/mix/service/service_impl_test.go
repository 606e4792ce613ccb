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
	mixdomain "github.com/smallbiznis/revplan/internal/mix/domain"
	plandomain "github.com/smallbiznis/revplan/internal/plan/domain"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&plandomain.DimDate{},
		&plandomain.SalesTransaction{},
		&plandomain.ChannelMix{},
		&plandomain.BrandMix{},
	))
	return db
}

func seedSale(t *testing.T, db *gorm.DB, date time.Time, channel, brand, amount string) {
	t.Helper()
	require.NoError(t, db.Create(&plandomain.SalesTransaction{
		CalendarDate: date,
		Hour:         12,
		Channel:      channel,
		BrandName:    brand,
		SKU:          "SKU-1",
		Amount:       decimal.RequireFromString(amount),
		Status:       "Settled",
	}).Error)
}

func newTestService(db *gorm.DB, now time.Time) mixdomain.Service {
	return NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		Clock: clock.NewFakeClock(now),
		Plan:  config.NewStaticPlanConfigHolder(config.DefaultPlanConfig()),
	})
}

func TestRefreshChannelMix_SharesPerLabelSumToOne(t *testing.T) {
	db := openTestDB(t)

	day := plandomain.Date(2026, time.February, 3)
	require.NoError(t, db.Create(&plandomain.DimDate{
		CalendarDate: day, Year: 2026, Month: 2, Day: 3, DateLabel: "Normal day",
	}).Error)
	seedSale(t, db, day, "Online", "Acme", "300")
	seedSale(t, db, day, "Retail", "Acme", "100")
	seedSale(t, db, day, "Wholesale", "Acme", "100")

	svc := newTestService(db, plandomain.Date(2026, time.March, 28))
	rows, err := svc.RefreshChannelMix(context.Background(), 2026, time.April)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	shares, err := svc.ChannelShares(context.Background(), 2026, time.April)
	require.NoError(t, err)
	normal := shares["Normal day"]
	assert.True(t, normal["Online"].Equal(decimal.RequireFromString("0.6")))
	assert.True(t, normal["Retail"].Equal(decimal.RequireFromString("0.2")))

	sum := decimal.Zero
	for _, share := range normal {
		sum = sum.Add(share)
	}
	assert.True(t, sum.Equal(decimal.NewFromInt(1)), "sum=%s", sum)
}

func TestRefreshChannelMix_BlackoutWindowExcluded(t *testing.T) {
	db := openTestDB(t)

	normal := plandomain.Date(2026, time.April, 3)
	require.NoError(t, db.Create(&plandomain.DimDate{
		CalendarDate: normal, Year: 2026, Month: 4, Day: 3, DateLabel: "Normal day",
	}).Error)
	seedSale(t, db, normal, "Online", "Acme", "100")

	// 6/5 sits in the 6/6 mega-sale window; its one-off channel skew must
	// not leak into the mix.
	windowDay := plandomain.Date(2026, time.June, 5)
	require.NoError(t, db.Create(&plandomain.DimDate{
		CalendarDate: windowDay, Year: 2026, Month: 6, Day: 5, DateLabel: "Normal day",
	}).Error)
	seedSale(t, db, windowDay, "FlashSaleApp", "Acme", "999999")

	svc := newTestService(db, plandomain.Date(2026, time.June, 28))
	_, err := svc.RefreshChannelMix(context.Background(), 2026, time.July)
	require.NoError(t, err)

	shares, err := svc.ChannelShares(context.Background(), 2026, time.July)
	require.NoError(t, err)
	normalShares := shares["Normal day"]
	assert.True(t, normalShares["Online"].Equal(decimal.NewFromInt(1)))
	_, ok := normalShares["FlashSaleApp"]
	assert.False(t, ok)
}

func TestRefreshBrandMix_SharesPerChannel(t *testing.T) {
	db := openTestDB(t)

	day := plandomain.Date(2026, time.February, 3)
	seedSale(t, db, day, "Online", "Acme", "750")
	seedSale(t, db, day, "Online", "Bolt", "250")
	seedSale(t, db, day, "Retail", "Acme", "400")

	svc := newTestService(db, plandomain.Date(2026, time.March, 28))
	_, err := svc.RefreshBrandMix(context.Background(), 2026, time.April)
	require.NoError(t, err)

	shares, err := svc.BrandShares(context.Background(), time.April)
	require.NoError(t, err)
	assert.True(t, shares["Online"]["Acme"].Equal(decimal.RequireFromString("0.75")))
	assert.True(t, shares["Online"]["Bolt"].Equal(decimal.RequireFromString("0.25")))
	assert.True(t, shares["Retail"]["Acme"].Equal(decimal.NewFromInt(1)))

	// A brand first observed in the target month has no row at all.
	_, ok := shares["Online"]["Newcomer"]
	assert.False(t, ok)
}
