package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	plandomain "github.com/smallbiznis/revplan/internal/plan/domain"
)

// Curve maps an hour of day (0-23) to its fraction of daily revenue.
// A complete curve sums to 1.
type Curve map[int]decimal.Decimal

// ElapsedShare is the fraction of a day's revenue expected by the end of
// the cutoff hour.
func (c Curve) ElapsedShare(cutoffHour int) decimal.Decimal {
	share := decimal.Zero
	for h, frac := range c {
		if h <= cutoffHour {
			share = share.Add(frac)
		}
	}
	return share
}

// EstimateFullDay projects a full-day total from revenue observed through
// the cutoff hour. The estimate is withheld (ok=false) when the curve has
// no mass inside the window or nothing was observed yet.
func EstimateFullDay(actualSoFar decimal.Decimal, curve Curve, cutoffHour int) (decimal.Decimal, bool) {
	share := curve.ElapsedShare(cutoffHour)
	if !share.IsPositive() || !actualSoFar.IsPositive() {
		return decimal.Zero, false
	}
	return actualSoFar.Div(share), true
}

type Service interface {
	// HourlyCurves derives per-channel hourly revenue curves over the
	// trailing window.
	HourlyCurves(ctx context.Context, daysBack int) (map[string]Curve, error)

	// EODEstimate projects the full-day revenue of the given date from what
	// was booked up to its latest transaction hour.
	EODEstimate(ctx context.Context, date time.Time) (decimal.Decimal, bool, error)

	// EOMEstimate projects the month total: booked revenue of completed
	// days plus a seasonal baseline projection of the remaining days.
	EOMEstimate(ctx context.Context, year int, month time.Month) (decimal.Decimal, bool, error)

	// ProjectSKUs writes the SKU-grain forecast for the month: booked
	// actuals for past days, an intraday projection for the current day.
	ProjectSKUs(ctx context.Context, year int, month time.Month) ([]plandomain.Forecast, error)
}
