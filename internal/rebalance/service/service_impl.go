package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	actualsdomain "github.com/smallbiznis/revplan/internal/actuals/domain"
	"github.com/smallbiznis/revplan/internal/clock"
	forecastdomain "github.com/smallbiznis/revplan/internal/forecast/domain"
	plandomain "github.com/smallbiznis/revplan/internal/plan/domain"
	rebalancedomain "github.com/smallbiznis/revplan/internal/rebalance/domain"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	Actuals  actualsdomain.Service
	Forecast forecastdomain.Service
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	actuals  actualsdomain.Service
	forecast forecastdomain.Service
}

func NewService(p Params) rebalancedomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("rebalance.service"),
		clock:    p.Clock,
		actuals:  p.Actuals,
		forecast: p.Forecast,
	}
}

func (s *Service) RebalanceMonths(ctx context.Context, year int) ([]plandomain.PlanMonth, error) {
	version, months, err := s.newestVersionMonths(ctx, year)
	if err != nil {
		return nil, err
	}
	if len(months) == 0 {
		s.log.Warn("no month plan to rebalance", zap.Int("year", year))
		return nil, nil
	}

	actuals, err := s.actuals.ProcessedMonthActuals(ctx, year)
	if err != nil {
		return nil, err
	}

	asOf := plandomain.DateOnly(s.clock.Now())
	currentMonth := 0
	switch {
	case asOf.Year() > year:
		currentMonth = 13
	case asOf.Year() == year:
		currentMonth = int(asOf.Month())
	}

	members := make([]rebalancedomain.Member, 0, len(months))
	for m := 1; m <= 12; m++ {
		row, ok := months[m]
		if !ok {
			continue
		}
		member := rebalancedomain.Member{
			Key:     fmt.Sprintf("%d", m),
			Initial: row.Initial,
			Weight:  decimal.NewFromInt(1),
		}
		switch {
		case m < currentMonth:
			if actual, ok := actuals[m]; ok {
				a := actual
				member.Actual = &a
			} else {
				member.Elapsed = true
			}
		case m == currentMonth:
			// The running month never settles on a partial actual; it takes
			// the end-of-month estimate or stays open.
			estimate, ok, err := s.forecast.EOMEstimate(ctx, year, time.Month(m))
			if err != nil {
				return nil, err
			}
			if ok {
				e := estimate
				member.Estimate = &e
			}
		}
		members = append(members, member)
	}

	result := rebalancedomain.Rebalance(members)

	now := s.clock.Now()
	rows := make([]plandomain.PlanMonth, 0, len(result.Members))
	for _, adj := range result.Members {
		src := months[mustAtoi(adj.Key)]
		row := plandomain.PlanMonth{
			Version:    version,
			Year:       year,
			Month:      src.Month,
			Initial:    src.Initial,
			Adjustment: adj.Adjustment,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if adj.Settled {
			row.Actual = decimal.NewNullDecimal(adj.SettledValue)
			row.Gap = decimal.NewNullDecimal(adj.Gap)
		}
		rows = append(rows, row)
	}
	if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	s.log.Info("months rebalanced",
		zap.String("version", version),
		zap.Int("year", year),
		zap.String("total_gap", result.TotalGap.String()),
		zap.Bool("distributed", result.Distributed),
	)
	return rows, nil
}

func (s *Service) RebalanceDays(ctx context.Context, year int, month time.Month) ([]plandomain.PlanDay, error) {
	days, err := s.latestPlanDays(ctx, year, month)
	if err != nil {
		return nil, err
	}
	if len(days) == 0 {
		s.log.Warn("no day plan to rebalance",
			zap.Int("year", year), zap.Int("month", int(month)))
		return nil, nil
	}

	actuals, err := s.actuals.ProcessedDayActuals(ctx, year, month)
	if err != nil {
		return nil, err
	}

	asOf := plandomain.DateOnly(s.clock.Now())
	members := make([]rebalancedomain.Member, 0, len(days))
	for _, day := range days {
		date := plandomain.DateOnly(day.CalendarDate)
		member := rebalancedomain.Member{
			Key:     fmt.Sprintf("%d", day.Day),
			Initial: day.Initial,
			Weight:  day.Weight,
		}
		switch {
		case date.Before(asOf):
			if actual, ok := actuals[day.Day]; ok {
				a := actual
				member.Actual = &a
			} else {
				member.Elapsed = true
			}
		case date.Equal(asOf):
			estimate, ok, err := s.forecast.EODEstimate(ctx, date)
			if err != nil {
				return nil, err
			}
			if ok {
				e := estimate
				member.Estimate = &e
			}
		}
		members = append(members, member)
	}

	result := rebalancedomain.Rebalance(members)

	now := s.clock.Now()
	rows := make([]plandomain.PlanDay, 0, len(result.Members))
	for i, adj := range result.Members {
		src := days[i]
		row := src
		row.Adjustment = decimal.NewNullDecimal(adj.Adjustment)
		row.Actual = decimal.NullDecimal{}
		row.Gap = decimal.NullDecimal{}
		if adj.Settled {
			row.Actual = decimal.NewNullDecimal(adj.SettledValue)
			row.Gap = decimal.NewNullDecimal(adj.Gap)
		}
		row.CreatedAt = now
		row.UpdatedAt = now
		rows = append(rows, row)
	}
	if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	s.log.Info("days rebalanced",
		zap.Int("year", year),
		zap.Int("month", int(month)),
		zap.String("total_gap", result.TotalGap.String()),
		zap.Bool("distributed", result.Distributed),
	)
	return rows, nil
}

// newestVersionMonths returns the highest-sequence version of the year and
// its latest row per month.
func (s *Service) newestVersionMonths(ctx context.Context, year int) (string, map[int]plandomain.PlanMonth, error) {
	var all []plandomain.PlanMonth
	err := s.db.WithContext(ctx).Raw(
		`SELECT * FROM plan_months WHERE year = ? ORDER BY updated_at ASC`,
		year,
	).Scan(&all).Error
	if err != nil {
		return "", nil, err
	}

	byVersion := make(map[string]map[int]plandomain.PlanMonth)
	for _, row := range all {
		if byVersion[row.Version] == nil {
			byVersion[row.Version] = make(map[int]plandomain.PlanMonth)
		}
		byVersion[row.Version][row.Month] = row
	}
	best := -1
	var version string
	for label := range byVersion {
		seq, ok := plandomain.VersionSequence(label)
		if !ok {
			continue
		}
		if seq > best {
			best = seq
			version = label
		}
	}
	if best < 0 {
		return "", nil, nil
	}
	return version, byVersion[version], nil
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
	latest := make(map[int]plandomain.PlanDay, len(rows))
	maxDay := 0
	for _, row := range rows {
		latest[row.Day] = row
		if row.Day > maxDay {
			maxDay = row.Day
		}
	}
	out := make([]plandomain.PlanDay, 0, len(latest))
	for day := 1; day <= maxDay; day++ {
		if row, ok := latest[day]; ok {
			out = append(out, row)
		}
	}
	return out, nil
}

func mustAtoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
