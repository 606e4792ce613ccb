package service

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/smallbiznis/revplan/internal/clock"
	"github.com/smallbiznis/revplan/internal/config"
	mixdomain "github.com/smallbiznis/revplan/internal/mix/domain"
	plandomain "github.com/smallbiznis/revplan/internal/plan/domain"
	seasonalitydomain "github.com/smallbiznis/revplan/internal/seasonality/domain"
	waterfalldomain "github.com/smallbiznis/revplan/internal/waterfall/domain"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	Plan        *config.PlanConfigHolder
	Seasonality seasonalitydomain.Service
	Mix         mixdomain.Service
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	plan        *config.PlanConfigHolder
	seasonality seasonalitydomain.Service
	mix         mixdomain.Service
}

func NewService(p Params) waterfalldomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("waterfall.service"),
		clock:       p.Clock,
		plan:        p.Plan,
		seasonality: p.Seasonality,
		mix:         p.Mix,
	}
}

func (s *Service) AllocateMonths(ctx context.Context, version string, year int) ([]plandomain.PlanMonth, error) {
	cfg := s.plan.Get()

	var prior []plandomain.PriorYearRevenue
	err := s.db.WithContext(ctx).Raw(
		`SELECT year, month, total FROM prior_year_revenue WHERE year = ?`,
		cfg.BaseYear,
	).Scan(&prior).Error
	if err != nil {
		return nil, err
	}

	byMonth := make(map[int]decimal.Decimal, len(prior))
	total := decimal.Zero
	for _, row := range prior {
		byMonth[row.Month] = byMonth[row.Month].Add(row.Total)
		total = total.Add(row.Total)
	}
	if !total.IsPositive() {
		s.log.Error("base year has no revenue to derive month shares from",
			zap.Int("base_year", cfg.BaseYear))
		return nil, waterfalldomain.ErrZeroPriorYearRevenue
	}

	target := cfg.AnnualTargetAmount()
	now := s.clock.Now()
	rows := make([]plandomain.PlanMonth, 0, 12)
	for m := 1; m <= 12; m++ {
		initial := target.Mul(byMonth[m]).Div(total)
		rows = append(rows, plandomain.PlanMonth{
			Version:    version,
			Year:       year,
			Month:      m,
			Initial:    initial,
			Adjustment: initial,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}
	if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	s.log.Info("annual target split over months",
		zap.String("version", version),
		zap.Int("year", year),
		zap.String("annual_target", target.String()),
	)
	return rows, nil
}

func (s *Service) AllocateDays(ctx context.Context, year int, month time.Month) ([]plandomain.PlanDay, error) {
	budget, ok, err := s.monthBudget(ctx, year, month)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.log.Warn("no month plan to spread over days",
			zap.Int("year", year), zap.Int("month", int(month)))
		return nil, nil
	}

	weights, err := s.seasonality.Weights(ctx, year, month)
	if err != nil {
		return nil, err
	}

	var days []plandomain.DimDate
	err = s.db.WithContext(ctx).Raw(
		`SELECT * FROM dim_dates WHERE year = ? AND month = ? ORDER BY calendar_date ASC`,
		year, int(month),
	).Scan(&days).Error
	if err != nil {
		return nil, err
	}
	if len(days) == 0 {
		return nil, nil
	}

	cfg := s.plan.Get()
	now := s.clock.Now()
	rows := make([]plandomain.PlanDay, 0, len(days))
	for _, day := range days {
		w := weights[day.DateLabel]
		uplift := w.Uplift
		weight := uplift
		if cfg.IsBlackoutDay(day.Month, day.Day) {
			weight = decimal.Zero
		}
		initial := decimal.Zero
		if w.TotalWeightMonth.IsPositive() {
			initial = weight.Mul(budget).Div(w.TotalWeightMonth)
		}
		rows = append(rows, plandomain.PlanDay{
			CalendarDate:     day.CalendarDate,
			Year:             day.Year,
			Month:            day.Month,
			Day:              day.Day,
			DateLabel:        day.DateLabel,
			MonthInitial:     budget,
			Uplift:           uplift,
			Weight:           weight,
			TotalWeightMonth: w.TotalWeightMonth,
			Initial:          initial,
			CreatedAt:        now,
			UpdatedAt:        now,
		})
	}
	if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	s.log.Info("month budget spread over days",
		zap.Int("year", year),
		zap.Int("month", int(month)),
		zap.String("month_budget", budget.String()),
		zap.Int("days", len(rows)),
	)
	return rows, nil
}

func (s *Service) AllocateChannels(ctx context.Context, year int, month time.Month) ([]plandomain.PlanDayChannel, error) {
	days, err := s.latestPlanDays(ctx, year, month)
	if err != nil {
		return nil, err
	}
	shares, err := s.mix.ChannelShares(ctx, year, month)
	if err != nil {
		return nil, err
	}

	cfg := s.plan.Get()
	now := s.clock.Now()
	var rows []plandomain.PlanDayChannel
	for _, day := range days {
		if cfg.InBlackoutWindow(day.Month, day.Day) {
			continue
		}
		budget := dayBudget(day)
		labelShares := shares[day.DateLabel]
		for _, channel := range sortedKeys(labelShares) {
			share := labelShares[channel]
			rows = append(rows, plandomain.PlanDayChannel{
				CalendarDate: day.CalendarDate,
				Year:         day.Year,
				Month:        day.Month,
				Day:          day.Day,
				DateLabel:    day.DateLabel,
				Channel:      channel,
				Share:        share,
				Initial:      budget.Mul(share),
				CreatedAt:    now,
				UpdatedAt:    now,
			})
		}
	}
	if len(rows) == 0 {
		return nil, nil
	}
	if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	s.log.Info("day budgets split over channels",
		zap.Int("year", year),
		zap.Int("month", int(month)),
		zap.Int("rows", len(rows)),
	)
	return rows, nil
}

func (s *Service) AllocateBrands(ctx context.Context, year int, month time.Month) ([]plandomain.PlanDayBrand, error) {
	channels, err := s.latestPlanDayChannels(ctx, year, month)
	if err != nil {
		return nil, err
	}
	shares, err := s.mix.BrandShares(ctx, month)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	var rows []plandomain.PlanDayBrand
	for _, ch := range channels {
		brandShares := shares[ch.Channel]
		for _, brand := range sortedKeys(brandShares) {
			share := brandShares[brand]
			rows = append(rows, plandomain.PlanDayBrand{
				CalendarDate: ch.CalendarDate,
				Year:         ch.Year,
				Month:        ch.Month,
				Day:          ch.Day,
				DateLabel:    ch.DateLabel,
				Channel:      ch.Channel,
				BrandName:    brand,
				Share:        share,
				Initial:      ch.Initial.Mul(share),
				CreatedAt:    now,
				UpdatedAt:    now,
			})
		}
	}
	if len(rows) == 0 {
		return nil, nil
	}
	if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	s.log.Info("channel budgets split over brands",
		zap.Int("year", year),
		zap.Int("month", int(month)),
		zap.Int("rows", len(rows)),
	)
	return rows, nil
}

func (s *Service) AllocateSKUs(ctx context.Context, year int, month time.Month) ([]plandomain.PlanSKU, error) {
	brands, err := s.latestPlanDayBrands(ctx, year, month)
	if err != nil {
		return nil, err
	}

	var catalog []plandomain.DimSKU
	err = s.db.WithContext(ctx).Raw(
		`SELECT * FROM dim_skus ORDER BY brand_name ASC, sku ASC`,
	).Scan(&catalog).Error
	if err != nil {
		return nil, err
	}
	byBrand := make(map[string][]plandomain.DimSKU)
	for _, sku := range catalog {
		byBrand[sku.BrandName] = append(byBrand[sku.BrandName], sku)
	}

	cfg := s.plan.Get()
	hundred := decimal.NewFromInt(100)
	now := s.clock.Now()
	var rows []plandomain.PlanSKU
	for _, brand := range brands {
		skus := byBrand[brand.BrandName]
		groupShares := classGroupShares(skus, cfg.HeroShareFraction(), cfg.CoreShareFraction())
		for _, sku := range skus {
			groupShare, ok := groupShares[sku.Classification]
			if !ok {
				continue
			}
			initial := brand.Initial.Mul(groupShare).Mul(sku.RevenueShareInClass).Div(hundred)
			rows = append(rows, plandomain.PlanSKU{
				CalendarDate:        brand.CalendarDate,
				Year:                brand.Year,
				Month:               brand.Month,
				Day:                 brand.Day,
				DateLabel:           brand.DateLabel,
				Channel:             brand.Channel,
				BrandName:           brand.BrandName,
				SKU:                 sku.SKU,
				Classification:      sku.Classification,
				RevenueShareInClass: sku.RevenueShareInClass,
				BrandInitial:        brand.Initial,
				GroupShare:          groupShare,
				Initial:             initial,
				CreatedAt:           now,
				UpdatedAt:           now,
			})
		}
	}
	if len(rows) == 0 {
		return nil, nil
	}
	if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	s.log.Info("brand budgets split over skus",
		zap.Int("year", year),
		zap.Int("month", int(month)),
		zap.Int("rows", len(rows)),
	)
	return rows, nil
}

// classGroupShares derives the share of a brand budget owned by each SKU
// classification group. Tail never takes budget; a brand whose whole
// non-Tail catalog is a single SKU gives it everything; Hero without Core
// takes everything; Hero with Core split per the configured fractions; Core
// without Hero keeps only the Core fraction.
func classGroupShares(skus []plandomain.DimSKU, heroShare, coreShare decimal.Decimal) map[string]decimal.Decimal {
	heroes, cores := 0, 0
	for _, sku := range skus {
		switch sku.Classification {
		case plandomain.ClassificationHero:
			heroes++
		case plandomain.ClassificationCore:
			cores++
		}
	}

	shares := make(map[string]decimal.Decimal, 2)
	switch {
	case heroes+cores == 1:
		if heroes == 1 {
			shares[plandomain.ClassificationHero] = decimal.NewFromInt(1)
		} else {
			shares[plandomain.ClassificationCore] = decimal.NewFromInt(1)
		}
	case heroes > 0 && cores > 0:
		shares[plandomain.ClassificationHero] = heroShare
		shares[plandomain.ClassificationCore] = coreShare
	case heroes > 0:
		shares[plandomain.ClassificationHero] = decimal.NewFromInt(1)
	case cores > 0:
		shares[plandomain.ClassificationCore] = coreShare
	}
	return shares
}

// dayBudget is the day's rebalanced amount when present, else its initial.
func dayBudget(day plandomain.PlanDay) decimal.Decimal {
	if day.Adjustment.Valid {
		return day.Adjustment.Decimal
	}
	return day.Initial
}

// monthBudget returns the newest version's adjusted budget for the month.
func (s *Service) monthBudget(ctx context.Context, year int, month time.Month) (decimal.Decimal, bool, error) {
	var rows []plandomain.PlanMonth
	err := s.db.WithContext(ctx).Raw(
		`SELECT * FROM plan_months WHERE year = ? AND month = ? ORDER BY updated_at ASC`,
		year, int(month),
	).Scan(&rows).Error
	if err != nil {
		return decimal.Zero, false, err
	}
	latest := make(map[string]plandomain.PlanMonth, len(rows))
	for _, row := range rows {
		latest[row.Version] = row
	}
	best := -1
	var budget decimal.Decimal
	for version, row := range latest {
		seq, ok := plandomain.VersionSequence(version)
		if !ok {
			continue
		}
		if seq > best {
			best = seq
			budget = row.Adjustment
		}
	}
	return budget, best >= 0, nil
}

func (s *Service) latestPlanDays(ctx context.Context, year int, month time.Month) ([]plandomain.PlanDay, error) {
	var rows []plandomain.PlanDay
	err := s.db.WithContext(ctx).Raw(
		`SELECT * FROM plan_days WHERE year = ? AND month = ? ORDER BY updated_at ASC`,
		year, int(month),
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	latest := make(map[string]plandomain.PlanDay, len(rows))
	for _, row := range rows {
		latest[row.CalendarDate.UTC().Format("2006-01-02")] = row
	}
	out := make([]plandomain.PlanDay, 0, len(latest))
	for _, key := range sortedKeys(latest) {
		out = append(out, latest[key])
	}
	return out, nil
}

func (s *Service) latestPlanDayChannels(ctx context.Context, year int, month time.Month) ([]plandomain.PlanDayChannel, error) {
	var rows []plandomain.PlanDayChannel
	err := s.db.WithContext(ctx).Raw(
		`SELECT * FROM plan_day_channels WHERE year = ? AND month = ? ORDER BY updated_at ASC`,
		year, int(month),
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	latest := make(map[string]plandomain.PlanDayChannel, len(rows))
	for _, row := range rows {
		key := row.CalendarDate.UTC().Format("2006-01-02") + "|" + row.Channel
		latest[key] = row
	}
	out := make([]plandomain.PlanDayChannel, 0, len(latest))
	for _, key := range sortedKeys(latest) {
		out = append(out, latest[key])
	}
	return out, nil
}

func (s *Service) latestPlanDayBrands(ctx context.Context, year int, month time.Month) ([]plandomain.PlanDayBrand, error) {
	var rows []plandomain.PlanDayBrand
	err := s.db.WithContext(ctx).Raw(
		`SELECT * FROM plan_day_brands WHERE year = ? AND month = ? ORDER BY updated_at ASC`,
		year, int(month),
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	latest := make(map[string]plandomain.PlanDayBrand, len(rows))
	for _, row := range rows {
		key := row.CalendarDate.UTC().Format("2006-01-02") + "|" + row.Channel + "|" + row.BrandName
		latest[key] = row
	}
	out := make([]plandomain.PlanDayBrand, 0, len(latest))
	for _, key := range sortedKeys(latest) {
		out = append(out, latest[key])
	}
	return out, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
