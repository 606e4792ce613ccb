package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type Service interface {
	// InsertMonthActual stages a month-level actual. Staged rows are ignored
	// by the rebalancer until marked processed.
	InsertMonthActual(ctx context.Context, year, month int, amount decimal.Decimal) error

	// InsertDayActual stages a day-level actual.
	InsertDayActual(ctx context.Context, date time.Time, amount decimal.Decimal) error

	MarkMonthProcessed(ctx context.Context, year, month int) error
	MarkDayProcessed(ctx context.Context, date time.Time) error

	// MarkAllMonthsProcessed flips every unprocessed month row of the year.
	MarkAllMonthsProcessed(ctx context.Context, year int) error

	// MarkAllDaysProcessed flips every unprocessed day row of the month.
	MarkAllDaysProcessed(ctx context.Context, year int, month time.Month) error

	// ProcessedMonthActuals returns the newest processed amount per month.
	ProcessedMonthActuals(ctx context.Context, year int) (map[int]decimal.Decimal, error)

	// ProcessedDayActuals returns the newest processed amount per day of month.
	ProcessedDayActuals(ctx context.Context, year int, month time.Month) (map[int]decimal.Decimal, error)
}
