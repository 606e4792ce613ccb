package service

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/smallbiznis/revplan/internal/clock"
	"github.com/smallbiznis/revplan/internal/config"
	forecastdomain "github.com/smallbiznis/revplan/internal/forecast/domain"
	plandomain "github.com/smallbiznis/revplan/internal/plan/domain"
	seasonalitydomain "github.com/smallbiznis/revplan/internal/seasonality/domain"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	Plan        *config.PlanConfigHolder
	Seasonality seasonalitydomain.Service
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	plan        *config.PlanConfigHolder
	seasonality seasonalitydomain.Service
}

func NewService(p Params) forecastdomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("forecast.service"),
		clock:       p.Clock,
		plan:        p.Plan,
		seasonality: p.Seasonality,
	}
}

type channelHourTotal struct {
	Channel string          `gorm:"column:channel"`
	Hour    int             `gorm:"column:hour"`
	Total   decimal.Decimal `gorm:"column:total"`
}

func (s *Service) HourlyCurves(ctx context.Context, daysBack int) (map[string]forecastdomain.Curve, error) {
	if daysBack <= 0 {
		daysBack = s.plan.Get().CurveWindowDays
	}
	windowEnd := plandomain.DateOnly(s.clock.Now())
	windowStart := windowEnd.AddDate(0, 0, -daysBack)

	var rows []channelHourTotal
	err := s.db.WithContext(ctx).Raw(
		`SELECT channel, hour, SUM(amount) AS total
		 FROM sales_transactions
		 WHERE calendar_date >= ? AND calendar_date < ? AND status NOT IN ?
		 GROUP BY channel, hour`,
		windowStart, windowEnd, plandomain.CanceledStatuses,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	totals := make(map[string]decimal.Decimal)
	byChannel := make(map[string]map[int]decimal.Decimal)
	for _, row := range rows {
		if byChannel[row.Channel] == nil {
			byChannel[row.Channel] = make(map[int]decimal.Decimal)
		}
		byChannel[row.Channel][row.Hour] = byChannel[row.Channel][row.Hour].Add(row.Total)
		totals[row.Channel] = totals[row.Channel].Add(row.Total)
	}

	curves := make(map[string]forecastdomain.Curve, len(byChannel))
	for channel, hours := range byChannel {
		total := totals[channel]
		if !total.IsPositive() {
			continue
		}
		curve := make(forecastdomain.Curve, len(hours))
		for hour, amount := range hours {
			curve[hour] = amount.Div(total)
		}
		curves[channel] = curve
	}
	return curves, nil
}

func (s *Service) EODEstimate(ctx context.Context, date time.Time) (decimal.Decimal, bool, error) {
	date = plandomain.DateOnly(date)

	var rows []channelHourTotal
	err := s.db.WithContext(ctx).Raw(
		`SELECT channel, hour, SUM(amount) AS total
		 FROM sales_transactions
		 WHERE calendar_date = ? AND status NOT IN ?
		 GROUP BY channel, hour`,
		date, plandomain.CanceledStatuses,
	).Scan(&rows).Error
	if err != nil {
		return decimal.Zero, false, err
	}

	cutoffHour := -1
	actual := decimal.Zero
	for _, row := range rows {
		actual = actual.Add(row.Total)
		if row.Hour > cutoffHour {
			cutoffHour = row.Hour
		}
	}
	if cutoffHour < 0 {
		cutoffHour = s.clock.Now().UTC().Hour()
	}

	curves, err := s.HourlyCurves(ctx, 0)
	if err != nil {
		return decimal.Zero, false, err
	}
	curve := make(forecastdomain.Curve)
	total := decimal.Zero
	for _, c := range curves {
		for h, frac := range c {
			curve[h] = curve[h].Add(frac)
			total = total.Add(frac)
		}
	}
	if total.IsPositive() {
		for h, frac := range curve {
			curve[h] = frac.Div(total)
		}
	}

	estimate, ok := forecastdomain.EstimateFullDay(actual, curve, cutoffHour)
	return estimate, ok, nil
}

func (s *Service) EOMEstimate(ctx context.Context, year int, month time.Month) (decimal.Decimal, bool, error) {
	cfg := s.plan.Get()
	asOf := plandomain.DateOnly(s.clock.Now())

	monthStart := plandomain.Date(year, month, 1)
	monthEnd := monthStart.AddDate(0, 1, 0)

	completedEnd := monthEnd
	if asOf.Before(monthEnd) {
		completedEnd = asOf
	}

	booked := decimal.Zero
	if completedEnd.After(monthStart) {
		var rows []struct {
			Total decimal.NullDecimal `gorm:"column:total"`
		}
		err := s.db.WithContext(ctx).Raw(
			`SELECT SUM(amount) AS total
			 FROM sales_transactions
			 WHERE calendar_date >= ? AND calendar_date < ? AND status NOT IN ?`,
			monthStart, completedEnd, plandomain.CanceledStatuses,
		).Scan(&rows).Error
		if err != nil {
			return decimal.Zero, false, err
		}
		if len(rows) > 0 && rows[0].Total.Valid {
			booked = rows[0].Total.Decimal
		}
	}

	if !completedEnd.Before(monthEnd) {
		return booked, true, nil
	}

	baseline, err := s.seasonality.BaselineNormalDayAverage(ctx, cfg.BaselineWindowDays)
	if err != nil {
		if errors.Is(err, seasonalitydomain.ErrNoBaselineData) {
			return decimal.Zero, false, nil
		}
		return decimal.Zero, false, err
	}
	weights, err := s.seasonality.Weights(ctx, year, month)
	if err != nil {
		return decimal.Zero, false, err
	}

	var days []plandomain.DimDate
	err = s.db.WithContext(ctx).Raw(
		`SELECT * FROM dim_dates WHERE calendar_date >= ? AND calendar_date < ? ORDER BY calendar_date ASC`,
		completedEnd, monthEnd,
	).Scan(&days).Error
	if err != nil {
		return decimal.Zero, false, err
	}

	estimate := booked
	for _, day := range days {
		uplift := weights[day.DateLabel].Uplift
		estimate = estimate.Add(baseline.Mul(uplift))
	}
	return estimate, true, nil
}

type skuDayTotal struct {
	CalendarDate time.Time       `gorm:"column:calendar_date"`
	Channel      string          `gorm:"column:channel"`
	BrandName    string          `gorm:"column:brand_name"`
	SKU          string          `gorm:"column:sku"`
	Total        decimal.Decimal `gorm:"column:total"`
}

type skuHourTotal struct {
	Channel   string          `gorm:"column:channel"`
	BrandName string          `gorm:"column:brand_name"`
	SKU       string          `gorm:"column:sku"`
	Hour      int             `gorm:"column:hour"`
	Total     decimal.Decimal `gorm:"column:total"`
}

func (s *Service) ProjectSKUs(ctx context.Context, year int, month time.Month) ([]plandomain.Forecast, error) {
	asOf := plandomain.DateOnly(s.clock.Now())

	var planned []plandomain.PlanSKU
	err := s.db.WithContext(ctx).Raw(
		`SELECT * FROM plan_skus WHERE year = ? AND month = ? ORDER BY updated_at ASC`,
		year, int(month),
	).Scan(&planned).Error
	if err != nil {
		return nil, err
	}
	latest := make(map[string]plandomain.PlanSKU, len(planned))
	order := make([]string, 0, len(planned))
	for _, row := range planned {
		key := row.CalendarDate.UTC().Format("2006-01-02") + "|" + row.Channel + "|" + row.BrandName + "|" + row.SKU
		if _, seen := latest[key]; !seen {
			order = append(order, key)
		}
		latest[key] = row
	}
	if len(latest) == 0 {
		return nil, nil
	}

	monthStart := plandomain.Date(year, month, 1)
	monthEnd := monthStart.AddDate(0, 1, 0)

	var actuals []skuDayTotal
	err = s.db.WithContext(ctx).Raw(
		`SELECT calendar_date, channel, brand_name, sku, SUM(amount) AS total
		 FROM sales_transactions
		 WHERE calendar_date >= ? AND calendar_date < ? AND status NOT IN ?
		 GROUP BY calendar_date, channel, brand_name, sku`,
		monthStart, monthEnd, plandomain.CanceledStatuses,
	).Scan(&actuals).Error
	if err != nil {
		return nil, err
	}
	actualByKey := make(map[string]decimal.Decimal, len(actuals))
	for _, row := range actuals {
		key := row.CalendarDate.UTC().Format("2006-01-02") + "|" + row.Channel + "|" + row.BrandName + "|" + row.SKU
		actualByKey[key] = row.Total
	}

	intraday, cutoffHours, err := s.intradayTotals(ctx, asOf)
	if err != nil {
		return nil, err
	}
	curves, err := s.HourlyCurves(ctx, 0)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	rows := make([]plandomain.Forecast, 0, len(latest))
	for _, key := range order {
		sku := latest[key]
		date := plandomain.DateOnly(sku.CalendarDate)
		value := decimal.Zero
		switch {
		case date.Before(asOf):
			value = actualByKey[key]
		case date.Equal(asOf):
			skuKey := sku.Channel + "|" + sku.BrandName + "|" + sku.SKU
			cutoff, seen := cutoffHours[sku.Channel]
			if !seen {
				cutoff = now.UTC().Hour()
			}
			if est, ok := forecastdomain.EstimateFullDay(intraday[skuKey], curves[sku.Channel], cutoff); ok {
				value = est
			}
		}
		rows = append(rows, plandomain.Forecast{
			CalendarDate: date,
			Year:         sku.Year,
			Month:        sku.Month,
			Day:          sku.Day,
			Channel:      sku.Channel,
			BrandName:    sku.BrandName,
			SKU:          sku.SKU,
			Forecast:     value,
			UpdatedAt:    now,
		})
	}
	if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	s.log.Info("sku forecast projected",
		zap.Int("year", year),
		zap.Int("month", int(month)),
		zap.Int("rows", len(rows)),
	)
	return rows, nil
}

// intradayTotals returns today's booked revenue per (channel, brand, sku)
// and the latest observed transaction hour per channel.
func (s *Service) intradayTotals(ctx context.Context, date time.Time) (map[string]decimal.Decimal, map[string]int, error) {
	var rows []skuHourTotal
	err := s.db.WithContext(ctx).Raw(
		`SELECT channel, brand_name, sku, hour, SUM(amount) AS total
		 FROM sales_transactions
		 WHERE calendar_date = ? AND status NOT IN ?
		 GROUP BY channel, brand_name, sku, hour`,
		date, plandomain.CanceledStatuses,
	).Scan(&rows).Error
	if err != nil {
		return nil, nil, err
	}
	totals := make(map[string]decimal.Decimal)
	cutoffs := make(map[string]int)
	for _, row := range rows {
		key := row.Channel + "|" + row.BrandName + "|" + row.SKU
		totals[key] = totals[key].Add(row.Total)
		if cur, ok := cutoffs[row.Channel]; !ok || row.Hour > cur {
			cutoffs[row.Channel] = row.Hour
		}
	}
	return totals, cutoffs, nil
}
