package domain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	plandomain "github.com/smallbiznis/revplan/internal/plan/domain"
)

type Service interface {
	// EnsureSeed creates the month-0 version from the annual waterfall when
	// the plan year has no versions yet.
	EnsureSeed(ctx context.Context, year int) error

	// Cutover freezes the running plan into the next monthly version once
	// the configured day of month is reached. It returns the created label
	// and false when nothing had to be done. Re-invocation is a no-op.
	Cutover(ctx context.Context) (string, bool, error)

	// ForceCreate derives month-(source+1) from month-source regardless of
	// the cutoff day. An existing target fails with ErrVersionExists unless
	// force is set.
	ForceCreate(ctx context.Context, sourceMonth int, force bool) (string, error)

	// Recalculate corrects one month of a version to a new initial and
	// spreads the resulting gap evenly over the later months. Months before
	// the corrected one are left untouched.
	Recalculate(ctx context.Context, label string, month int, newInitial decimal.Decimal) error

	// Versions lists the year's version labels in sequence order.
	Versions(ctx context.Context, year int) ([]string, error)

	// MonthsOf returns the latest row per month of a version.
	MonthsOf(ctx context.Context, label string, year int) (map[int]plandomain.PlanMonth, error)
}

var (
	ErrVersionNotFound   = errors.New("version_not_found")
	ErrVersionIncomplete = errors.New("version_incomplete")
	ErrVersionExists     = errors.New("version_exists")
	ErrInvalidMonth      = errors.New("invalid_month")
)
