package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	plandomain "github.com/smallbiznis/revplan/internal/plan/domain"
)

type Service interface {
	// Refresh recomputes the day-type weights for the target month from the
	// trailing historical window and appends them to day_weights.
	Refresh(ctx context.Context, year int, month time.Month) ([]plandomain.DayWeight, error)

	// Weights returns the latest persisted weight row per date label for the
	// target month.
	Weights(ctx context.Context, year int, month time.Month) (map[string]plandomain.DayWeight, error)

	// BaselineNormalDayAverage returns the average daily revenue of baseline
	// days over the trailing window ending at the clock's current date.
	BaselineNormalDayAverage(ctx context.Context, days int) (decimal.Decimal, error)
}

var ErrNoBaselineData = errors.New("no_baseline_data")
