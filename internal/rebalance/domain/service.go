package domain

import (
	"context"
	"time"

	plandomain "github.com/smallbiznis/revplan/internal/plan/domain"
)

type Service interface {
	// RebalanceMonths settles elapsed months of the year against processed
	// actuals (the current month against its end-of-month estimate) and
	// redistributes the gap over the open months of the newest version.
	RebalanceMonths(ctx context.Context, year int) ([]plandomain.PlanMonth, error)

	// RebalanceDays does the same for the days of a month, weighting open
	// days by their seasonal uplift and settling the current day against
	// its end-of-day estimate.
	RebalanceDays(ctx context.Context, year int, month time.Month) ([]plandomain.PlanDay, error)
}
