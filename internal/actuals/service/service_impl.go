package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	actualsdomain "github.com/smallbiznis/revplan/internal/actuals/domain"
	"github.com/smallbiznis/revplan/internal/clock"
	plandomain "github.com/smallbiznis/revplan/internal/plan/domain"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
}

func NewService(p Params) actualsdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("actuals.service"),
		clock: p.Clock,
	}
}

func (s *Service) InsertMonthActual(ctx context.Context, year, month int, amount decimal.Decimal) error {
	now := s.clock.Now()
	row := plandomain.MonthActual{
		Year:      year,
		Month:     month,
		Amount:    amount,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return err
	}
	s.log.Info("month actual staged",
		zap.Int("year", year),
		zap.Int("month", month),
		zap.String("amount", amount.String()),
	)
	return nil
}

func (s *Service) InsertDayActual(ctx context.Context, date time.Time, amount decimal.Decimal) error {
	date = plandomain.DateOnly(date)
	now := s.clock.Now()
	row := plandomain.DayActual{
		CalendarDate: date,
		Year:         date.Year(),
		Month:        int(date.Month()),
		Day:          date.Day(),
		Amount:       amount,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return err
	}
	s.log.Info("day actual staged",
		zap.Time("calendar_date", date),
		zap.String("amount", amount.String()),
	)
	return nil
}

func (s *Service) MarkMonthProcessed(ctx context.Context, year, month int) error {
	now := s.clock.Now()
	return s.db.WithContext(ctx).Exec(
		`UPDATE actual_month_staging
		 SET processed = ?, processed_at = ?, updated_at = ?
		 WHERE year = ? AND month = ? AND processed = ?`,
		true, now, now, year, month, false,
	).Error
}

func (s *Service) MarkDayProcessed(ctx context.Context, date time.Time) error {
	date = plandomain.DateOnly(date)
	now := s.clock.Now()
	return s.db.WithContext(ctx).Exec(
		`UPDATE actual_day_staging
		 SET processed = ?, processed_at = ?, updated_at = ?
		 WHERE calendar_date = ? AND processed = ?`,
		true, now, now, date, false,
	).Error
}

func (s *Service) MarkAllMonthsProcessed(ctx context.Context, year int) error {
	now := s.clock.Now()
	return s.db.WithContext(ctx).Exec(
		`UPDATE actual_month_staging
		 SET processed = ?, processed_at = ?, updated_at = ?
		 WHERE year = ? AND processed = ?`,
		true, now, now, year, false,
	).Error
}

func (s *Service) MarkAllDaysProcessed(ctx context.Context, year int, month time.Month) error {
	now := s.clock.Now()
	return s.db.WithContext(ctx).Exec(
		`UPDATE actual_day_staging
		 SET processed = ?, processed_at = ?, updated_at = ?
		 WHERE year = ? AND month = ? AND processed = ?`,
		true, now, now, year, int(month), false,
	).Error
}

func (s *Service) ProcessedMonthActuals(ctx context.Context, year int) (map[int]decimal.Decimal, error) {
	var rows []plandomain.MonthActual
	err := s.db.WithContext(ctx).Raw(
		`SELECT * FROM actual_month_staging
		 WHERE year = ? AND processed = ?
		 ORDER BY created_at ASC`,
		year, true,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	latest := make(map[int]decimal.Decimal, len(rows))
	for _, row := range rows {
		latest[row.Month] = row.Amount
	}
	return latest, nil
}

func (s *Service) ProcessedDayActuals(ctx context.Context, year int, month time.Month) (map[int]decimal.Decimal, error) {
	var rows []plandomain.DayActual
	err := s.db.WithContext(ctx).Raw(
		`SELECT * FROM actual_day_staging
		 WHERE year = ? AND month = ? AND processed = ?
		 ORDER BY created_at ASC`,
		year, int(month), true,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	latest := make(map[int]decimal.Decimal, len(rows))
	for _, row := range rows {
		latest[row.Day] = row.Amount
	}
	return latest, nil
}
