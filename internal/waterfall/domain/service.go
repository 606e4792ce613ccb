package domain

import (
	"context"
	"errors"
	"time"

	plandomain "github.com/smallbiznis/revplan/internal/plan/domain"
)

type Service interface {
	// AllocateMonths splits the annual target over the 12 months of the plan
	// year proportionally to base-year revenue, under the given version label.
	AllocateMonths(ctx context.Context, version string, year int) ([]plandomain.PlanMonth, error)

	// AllocateDays spreads the month budget of the newest version over the
	// month's calendar days using the persisted day-type weights.
	AllocateDays(ctx context.Context, year int, month time.Month) ([]plandomain.PlanDay, error)

	// AllocateChannels splits each day budget across channels using the
	// month's channel mix. Days inside a mega-sale window are skipped.
	AllocateChannels(ctx context.Context, year int, month time.Month) ([]plandomain.PlanDayChannel, error)

	// AllocateBrands splits each channel budget across brands using the
	// month's brand mix.
	AllocateBrands(ctx context.Context, year int, month time.Month) ([]plandomain.PlanDayBrand, error)

	// AllocateSKUs splits each brand budget across its catalog SKUs by
	// classification group and in-class revenue share.
	AllocateSKUs(ctx context.Context, year int, month time.Month) ([]plandomain.PlanSKU, error)
}

var ErrZeroPriorYearRevenue = errors.New("zero_prior_year_revenue")
