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
	plandomain "github.com/smallbiznis/revplan/internal/plan/domain"
	seasonalitydomain "github.com/smallbiznis/revplan/internal/seasonality/domain"
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

func NewService(p Params) seasonalitydomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("seasonality.service"),
		clock: p.Clock,
		plan:  p.Plan,
	}
}

type labeledDay struct {
	CalendarDate time.Time `gorm:"column:calendar_date"`
	DateLabel    string    `gorm:"column:date_label"`
}

type dailyTotal struct {
	CalendarDate time.Time       `gorm:"column:calendar_date"`
	Total        decimal.Decimal `gorm:"column:total"`
}

func dateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func (s *Service) Refresh(ctx context.Context, year int, month time.Month) ([]plandomain.DayWeight, error) {
	cfg := s.plan.Get()

	windowEnd := plandomain.Date(year, month, 1)
	windowStart := windowEnd.AddDate(0, -cfg.HistoryMonths, 0)

	histDays, err := s.labeledDaysBetween(ctx, windowStart, windowEnd)
	if err != nil {
		return nil, err
	}
	totals, err := s.dailyTotalsBetween(ctx, windowStart, windowEnd)
	if err != nil {
		return nil, err
	}

	totalByDate := make(map[string]decimal.Decimal, len(totals))
	for _, row := range totals {
		totalByDate[dateKey(row.CalendarDate)] = row.Total
	}

	// Blackout days distort the historical average and are left out of it.
	sums := make(map[string]decimal.Decimal)
	counts := make(map[string]int)
	for _, day := range histDays {
		if cfg.IsBlackoutDay(int(day.CalendarDate.Month()), day.CalendarDate.Day()) {
			continue
		}
		sums[day.DateLabel] = sums[day.DateLabel].Add(totalByDate[dateKey(day.CalendarDate)])
		counts[day.DateLabel]++
	}

	baseline := decimal.Zero
	if counts[cfg.BaselineLabel] > 0 {
		baseline = sums[cfg.BaselineLabel].Div(decimal.NewFromInt(int64(counts[cfg.BaselineLabel])))
	}
	if !baseline.IsPositive() {
		s.log.Error("baseline day type has no historical revenue",
			zap.String("baseline_label", cfg.BaselineLabel),
			zap.Time("window_start", windowStart),
			zap.Time("window_end", windowEnd),
		)
		return nil, seasonalitydomain.ErrNoBaselineData
	}

	targetDays, err := s.labeledDaysInMonth(ctx, year, month)
	if err != nil {
		return nil, err
	}
	dayCounts := make(map[string]int)
	for _, day := range targetDays {
		if cfg.IsBlackoutDay(int(day.CalendarDate.Month()), day.CalendarDate.Day()) {
			continue
		}
		dayCounts[day.DateLabel]++
	}

	labels := make([]string, 0, len(dayCounts))
	for label := range dayCounts {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	now := s.clock.Now()
	rows := make([]plandomain.DayWeight, 0, len(labels))
	totalWeight := decimal.Zero
	for _, label := range labels {
		avg := decimal.Zero
		if counts[label] > 0 {
			avg = sums[label].Div(decimal.NewFromInt(int64(counts[label])))
		}
		uplift := avg.Div(baseline)
		weight := uplift.Mul(decimal.NewFromInt(int64(dayCounts[label])))
		totalWeight = totalWeight.Add(weight)
		rows = append(rows, plandomain.DayWeight{
			Year:        year,
			Month:       int(month),
			DateLabel:   label,
			AvgTotal:    avg,
			Uplift:      uplift,
			DayCount:    dayCounts[label],
			Weight:      weight,
			WindowStart: windowStart,
			WindowEnd:   windowEnd,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	for i := range rows {
		rows[i].TotalWeightMonth = totalWeight
	}

	if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		s.log.Info("day weight refreshed",
			zap.Int("year", row.Year),
			zap.Int("month", row.Month),
			zap.String("date_label", row.DateLabel),
			zap.String("uplift", row.Uplift.String()),
			zap.Int("day_count", row.DayCount),
			zap.String("weight", row.Weight.String()),
		)
	}
	return rows, nil
}

func (s *Service) Weights(ctx context.Context, year int, month time.Month) (map[string]plandomain.DayWeight, error) {
	var rows []plandomain.DayWeight
	err := s.db.WithContext(ctx).Raw(
		`SELECT * FROM day_weights WHERE year = ? AND month = ? ORDER BY updated_at ASC`,
		year, int(month),
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	latest := make(map[string]plandomain.DayWeight, len(rows))
	for _, row := range rows {
		latest[row.DateLabel] = row
	}
	return latest, nil
}

func (s *Service) BaselineNormalDayAverage(ctx context.Context, days int) (decimal.Decimal, error) {
	cfg := s.plan.Get()
	if days <= 0 {
		days = cfg.BaselineWindowDays
	}

	windowEnd := plandomain.DateOnly(s.clock.Now())
	windowStart := windowEnd.AddDate(0, 0, -days)

	histDays, err := s.labeledDaysBetween(ctx, windowStart, windowEnd)
	if err != nil {
		return decimal.Zero, err
	}
	totals, err := s.dailyTotalsBetween(ctx, windowStart, windowEnd)
	if err != nil {
		return decimal.Zero, err
	}
	totalByDate := make(map[string]decimal.Decimal, len(totals))
	for _, row := range totals {
		totalByDate[dateKey(row.CalendarDate)] = row.Total
	}

	sum := decimal.Zero
	count := 0
	for _, day := range histDays {
		if day.DateLabel != cfg.BaselineLabel || cfg.IsBlackoutDay(int(day.CalendarDate.Month()), day.CalendarDate.Day()) {
			continue
		}
		sum = sum.Add(totalByDate[dateKey(day.CalendarDate)])
		count++
	}
	if count == 0 || !sum.IsPositive() {
		return decimal.Zero, seasonalitydomain.ErrNoBaselineData
	}
	return sum.Div(decimal.NewFromInt(int64(count))), nil
}

func (s *Service) labeledDaysBetween(ctx context.Context, start, end time.Time) ([]labeledDay, error) {
	var rows []labeledDay
	err := s.db.WithContext(ctx).Raw(
		`SELECT calendar_date, date_label FROM dim_dates WHERE calendar_date >= ? AND calendar_date < ?`,
		start, end,
	).Scan(&rows).Error
	return rows, err
}

func (s *Service) labeledDaysInMonth(ctx context.Context, year int, month time.Month) ([]labeledDay, error) {
	var rows []labeledDay
	err := s.db.WithContext(ctx).Raw(
		`SELECT calendar_date, date_label FROM dim_dates WHERE year = ? AND month = ?`,
		year, int(month),
	).Scan(&rows).Error
	return rows, err
}

func (s *Service) dailyTotalsBetween(ctx context.Context, start, end time.Time) ([]dailyTotal, error) {
	var rows []dailyTotal
	err := s.db.WithContext(ctx).Raw(
		`SELECT calendar_date, SUM(amount) AS total
		 FROM sales_transactions
		 WHERE calendar_date >= ? AND calendar_date < ? AND status NOT IN ?
		 GROUP BY calendar_date`,
		start, end, plandomain.CanceledStatuses,
	).Scan(&rows).Error
	return rows, err
}
