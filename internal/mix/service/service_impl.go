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
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	Plan  *config.PlanConfigHolder
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	plan  *config.PlanConfigHolder
}

func NewService(p Params) mixdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("mix.service"),
		clock: p.Clock,
		plan:  p.Plan,
	}
}

type channelDayTotal struct {
	CalendarDate time.Time       `gorm:"column:calendar_date"`
	DateLabel    string          `gorm:"column:date_label"`
	Channel      string          `gorm:"column:channel"`
	Total        decimal.Decimal `gorm:"column:total"`
}

type brandDayTotal struct {
	CalendarDate time.Time       `gorm:"column:calendar_date"`
	Channel      string          `gorm:"column:channel"`
	BrandName    string          `gorm:"column:brand_name"`
	Total        decimal.Decimal `gorm:"column:total"`
}

func (s *Service) RefreshChannelMix(ctx context.Context, year int, month time.Month) ([]plandomain.ChannelMix, error) {
	cfg := s.plan.Get()

	windowEnd := plandomain.Date(year, month, 1)
	windowStart := windowEnd.AddDate(0, -cfg.HistoryMonths, 0)

	var rows []channelDayTotal
	err := s.db.WithContext(ctx).Raw(
		`SELECT s.calendar_date, d.date_label, s.channel, SUM(s.amount) AS total
		 FROM sales_transactions s
		 JOIN dim_dates d ON d.calendar_date = s.calendar_date
		 WHERE s.calendar_date >= ? AND s.calendar_date < ? AND s.status NOT IN ?
		 GROUP BY s.calendar_date, d.date_label, s.channel`,
		windowStart, windowEnd, plandomain.CanceledStatuses,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	// Mega-sale windows carry their own channel distribution and are kept
	// out of the mix base.
	totals := make(map[string]map[string]decimal.Decimal)
	for _, row := range rows {
		if cfg.InBlackoutWindow(int(row.CalendarDate.Month()), row.CalendarDate.Day()) {
			continue
		}
		if totals[row.DateLabel] == nil {
			totals[row.DateLabel] = make(map[string]decimal.Decimal)
		}
		totals[row.DateLabel][row.Channel] = totals[row.DateLabel][row.Channel].Add(row.Total)
	}

	now := s.clock.Now()
	var out []plandomain.ChannelMix
	for _, label := range sortedKeys(totals) {
		byChannel := totals[label]
		labelTotal := decimal.Zero
		for _, v := range byChannel {
			labelTotal = labelTotal.Add(v)
		}
		if !labelTotal.IsPositive() {
			continue
		}
		channels := sortedKeys(byChannel)
		assigned := decimal.Zero
		for i, channel := range channels {
			var share decimal.Decimal
			if i == len(channels)-1 {
				share = decimal.NewFromInt(1).Sub(assigned)
			} else {
				share = byChannel[channel].Div(labelTotal)
				assigned = assigned.Add(share)
			}
			out = append(out, plandomain.ChannelMix{
				Year:      year,
				Month:     int(month),
				DateLabel: label,
				Channel:   channel,
				Share:     share,
				CreatedAt: now,
				UpdatedAt: now,
			})
		}
	}
	if len(out) == 0 {
		s.log.Warn("no channel history for mix refresh",
			zap.Int("year", year), zap.Int("month", int(month)))
		return nil, nil
	}
	if err := s.db.WithContext(ctx).Create(&out).Error; err != nil {
		return nil, err
	}
	s.log.Info("channel mix refreshed",
		zap.Int("year", year),
		zap.Int("month", int(month)),
		zap.Int("rows", len(out)),
	)
	return out, nil
}

func (s *Service) RefreshBrandMix(ctx context.Context, year int, month time.Month) ([]plandomain.BrandMix, error) {
	cfg := s.plan.Get()

	windowEnd := plandomain.Date(year, month, 1)
	windowStart := windowEnd.AddDate(0, -cfg.HistoryMonths, 0)

	var rows []brandDayTotal
	err := s.db.WithContext(ctx).Raw(
		`SELECT calendar_date, channel, brand_name, SUM(amount) AS total
		 FROM sales_transactions
		 WHERE calendar_date >= ? AND calendar_date < ? AND status NOT IN ?
		 GROUP BY calendar_date, channel, brand_name`,
		windowStart, windowEnd, plandomain.CanceledStatuses,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	totals := make(map[string]map[string]decimal.Decimal)
	for _, row := range rows {
		if cfg.InBlackoutWindow(int(row.CalendarDate.Month()), row.CalendarDate.Day()) {
			continue
		}
		if totals[row.Channel] == nil {
			totals[row.Channel] = make(map[string]decimal.Decimal)
		}
		totals[row.Channel][row.BrandName] = totals[row.Channel][row.BrandName].Add(row.Total)
	}

	now := s.clock.Now()
	var out []plandomain.BrandMix
	for _, channel := range sortedKeys(totals) {
		byBrand := totals[channel]
		channelTotal := decimal.Zero
		for _, v := range byBrand {
			channelTotal = channelTotal.Add(v)
		}
		if !channelTotal.IsPositive() {
			continue
		}
		brands := sortedKeys(byBrand)
		assigned := decimal.Zero
		for i, brand := range brands {
			var share decimal.Decimal
			if i == len(brands)-1 {
				share = decimal.NewFromInt(1).Sub(assigned)
			} else {
				share = byBrand[brand].Div(channelTotal)
				assigned = assigned.Add(share)
			}
			out = append(out, plandomain.BrandMix{
				Month:     int(month),
				Channel:   channel,
				BrandName: brand,
				Share:     share,
				CreatedAt: now,
				UpdatedAt: now,
			})
		}
	}
	if len(out) == 0 {
		s.log.Warn("no brand history for mix refresh",
			zap.Int("year", year), zap.Int("month", int(month)))
		return nil, nil
	}
	if err := s.db.WithContext(ctx).Create(&out).Error; err != nil {
		return nil, err
	}
	s.log.Info("brand mix refreshed",
		zap.Int("year", year),
		zap.Int("month", int(month)),
		zap.Int("rows", len(out)),
	)
	return out, nil
}

func (s *Service) ChannelShares(ctx context.Context, year int, month time.Month) (map[string]map[string]decimal.Decimal, error) {
	var rows []plandomain.ChannelMix
	err := s.db.WithContext(ctx).Raw(
		`SELECT * FROM channel_mix WHERE year = ? AND month = ? ORDER BY updated_at ASC`,
		year, int(month),
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	shares := make(map[string]map[string]decimal.Decimal)
	for _, row := range rows {
		if shares[row.DateLabel] == nil {
			shares[row.DateLabel] = make(map[string]decimal.Decimal)
		}
		shares[row.DateLabel][row.Channel] = row.Share
	}
	return shares, nil
}

func (s *Service) BrandShares(ctx context.Context, month time.Month) (map[string]map[string]decimal.Decimal, error) {
	var rows []plandomain.BrandMix
	err := s.db.WithContext(ctx).Raw(
		`SELECT * FROM brand_mix WHERE month = ? ORDER BY updated_at ASC`,
		int(month),
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	shares := make(map[string]map[string]decimal.Decimal)
	for _, row := range rows {
		if shares[row.Channel] == nil {
			shares[row.Channel] = make(map[string]decimal.Decimal)
		}
		shares[row.Channel][row.BrandName] = row.Share
	}
	return shares, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
