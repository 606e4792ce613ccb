package service

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	actualsdomain "github.com/smallbiznis/revplan/internal/actuals/domain"
	"github.com/smallbiznis/revplan/internal/clock"
	"github.com/smallbiznis/revplan/internal/config"
	plandomain "github.com/smallbiznis/revplan/internal/plan/domain"
	planversiondomain "github.com/smallbiznis/revplan/internal/planversion/domain"
	waterfalldomain "github.com/smallbiznis/revplan/internal/waterfall/domain"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Clock     clock.Clock
	Plan      *config.PlanConfigHolder
	Waterfall waterfalldomain.Service
	Actuals   actualsdomain.Service
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	clock     clock.Clock
	plan      *config.PlanConfigHolder
	waterfall waterfalldomain.Service
	actuals   actualsdomain.Service
}

func NewService(p Params) planversiondomain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("planversion.service"),
		clock:     p.Clock,
		plan:      p.Plan,
		waterfall: p.Waterfall,
		actuals:   p.Actuals,
	}
}

func (s *Service) EnsureSeed(ctx context.Context, year int) error {
	versions, err := s.Versions(ctx, year)
	if err != nil {
		return err
	}
	if len(versions) > 0 {
		return nil
	}
	if _, err := s.waterfall.AllocateMonths(ctx, plandomain.SeedVersion, year); err != nil {
		return err
	}
	s.log.Info("seed version created",
		zap.String("version", plandomain.SeedVersion),
		zap.Int("year", year),
	)
	return nil
}

func (s *Service) Cutover(ctx context.Context) (string, bool, error) {
	cfg := s.plan.Get()
	asOf := s.clock.Now().UTC()
	if asOf.Day() < cfg.CutoffDay {
		return "", false, nil
	}

	year := cfg.PlanYear
	target := int(asOf.Month())
	targetLabel := plandomain.VersionLabel(target)

	existing, err := s.MonthsOf(ctx, targetLabel, year)
	if err != nil {
		return "", false, err
	}
	if len(existing) > 0 {
		return targetLabel, false, nil
	}

	source, err := s.newestVersionBefore(ctx, year, target)
	if err != nil {
		return "", false, err
	}
	if source == "" {
		return "", false, planversiondomain.ErrVersionNotFound
	}
	if err := s.copyVersion(ctx, source, targetLabel, year); err != nil {
		return "", false, err
	}
	s.log.Info("monthly version cut over",
		zap.String("source", source),
		zap.String("target", targetLabel),
		zap.Int("year", year),
	)
	return targetLabel, true, nil
}

func (s *Service) ForceCreate(ctx context.Context, sourceMonth int, force bool) (string, error) {
	if sourceMonth < 0 || sourceMonth > 11 {
		return "", planversiondomain.ErrInvalidMonth
	}
	cfg := s.plan.Get()
	year := cfg.PlanYear
	sourceLabel := plandomain.VersionLabel(sourceMonth)
	targetLabel := plandomain.VersionLabel(sourceMonth + 1)

	source, err := s.MonthsOf(ctx, sourceLabel, year)
	if err != nil {
		return "", err
	}
	if len(source) == 0 {
		return "", planversiondomain.ErrVersionNotFound
	}

	existing, err := s.MonthsOf(ctx, targetLabel, year)
	if err != nil {
		return "", err
	}
	if len(existing) > 0 && !force {
		return "", planversiondomain.ErrVersionExists
	}

	if err := s.copyVersion(ctx, sourceLabel, targetLabel, year); err != nil {
		return "", err
	}
	s.log.Info("version created manually",
		zap.String("source", sourceLabel),
		zap.String("target", targetLabel),
		zap.Bool("force", force),
	)
	return targetLabel, nil
}

func (s *Service) Recalculate(ctx context.Context, label string, month int, newInitial decimal.Decimal) error {
	if month < 1 || month > 12 {
		return planversiondomain.ErrInvalidMonth
	}
	cfg := s.plan.Get()
	year := cfg.PlanYear

	rows, err := s.MonthsOf(ctx, label, year)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return planversiondomain.ErrVersionNotFound
	}
	if len(rows) < 12 {
		return planversiondomain.ErrVersionIncomplete
	}

	baseline, err := s.MonthsOf(ctx, plandomain.SeedVersion, year)
	if err != nil {
		return err
	}
	if len(baseline) < 12 {
		return planversiondomain.ErrVersionIncomplete
	}

	actuals, err := s.actuals.ProcessedMonthActuals(ctx, year)
	if err != nil {
		return err
	}

	// Total gap against the seed baseline: realized months before the
	// corrected one, plus the correction itself.
	totalGap := newInitial.Sub(baseline[month].Initial)
	for m := 1; m < month; m++ {
		if actual, ok := actuals[m]; ok {
			totalGap = totalGap.Add(actual.Sub(baseline[m].Initial))
		}
	}

	now := s.clock.Now()
	remaining := 12 - month
	out := make([]plandomain.PlanMonth, 0, remaining+1)
	out = append(out, plandomain.PlanMonth{
		Version: label, Year: year, Month: month,
		Initial: newInitial, Adjustment: newInitial,
		CreatedAt: now, UpdatedAt: now,
	})

	if remaining > 0 {
		// Later months each give back an equal slice of the gap, the last
		// one exactly closing the total.
		baselineTail := decimal.Zero
		for m := month + 1; m <= 12; m++ {
			baselineTail = baselineTail.Add(baseline[m].Initial)
		}
		perMonth := totalGap.Div(decimal.NewFromInt(int64(remaining)))
		assigned := decimal.Zero
		for m := month + 1; m <= 12; m++ {
			var initial decimal.Decimal
			if m == 12 {
				initial = baselineTail.Sub(totalGap).Sub(assigned)
			} else {
				initial = baseline[m].Initial.Sub(perMonth)
				assigned = assigned.Add(initial)
			}
			out = append(out, plandomain.PlanMonth{
				Version: label, Year: year, Month: m,
				Initial: initial, Adjustment: initial,
				CreatedAt: now, UpdatedAt: now,
			})
		}
	}

	if err := s.db.WithContext(ctx).Create(&out).Error; err != nil {
		return err
	}
	s.log.Info("version recalculated",
		zap.String("version", label),
		zap.Int("month", month),
		zap.String("new_initial", newInitial.String()),
		zap.String("total_gap", totalGap.String()),
	)
	return nil
}

func (s *Service) Versions(ctx context.Context, year int) ([]string, error) {
	var labels []string
	err := s.db.WithContext(ctx).Raw(
		`SELECT DISTINCT version FROM plan_months WHERE year = ?`,
		year,
	).Scan(&labels).Error
	if err != nil {
		return nil, err
	}
	sort.Slice(labels, func(i, j int) bool {
		a, _ := plandomain.VersionSequence(labels[i])
		b, _ := plandomain.VersionSequence(labels[j])
		return a < b
	})
	return labels, nil
}

func (s *Service) MonthsOf(ctx context.Context, label string, year int) (map[int]plandomain.PlanMonth, error) {
	var rows []plandomain.PlanMonth
	err := s.db.WithContext(ctx).Raw(
		`SELECT * FROM plan_months WHERE version = ? AND year = ? ORDER BY updated_at ASC`,
		label, year,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	latest := make(map[int]plandomain.PlanMonth, len(rows))
	for _, row := range rows {
		latest[row.Month] = row
	}
	return latest, nil
}

// newestVersionBefore finds the highest-sequence version strictly below the
// given sequence.
func (s *Service) newestVersionBefore(ctx context.Context, year, seq int) (string, error) {
	labels, err := s.Versions(ctx, year)
	if err != nil {
		return "", err
	}
	best := -1
	var found string
	for _, label := range labels {
		n, ok := plandomain.VersionSequence(label)
		if !ok || n >= seq {
			continue
		}
		if n > best {
			best = n
			found = label
		}
	}
	return found, nil
}

// copyVersion snapshots the source version's rebalanced amounts as the
// target version's initials.
func (s *Service) copyVersion(ctx context.Context, source, target string, year int) error {
	months, err := s.MonthsOf(ctx, source, year)
	if err != nil {
		return err
	}
	if len(months) == 0 {
		return planversiondomain.ErrVersionNotFound
	}

	now := s.clock.Now()
	keys := make([]int, 0, len(months))
	for m := range months {
		keys = append(keys, m)
	}
	sort.Ints(keys)

	rows := make([]plandomain.PlanMonth, 0, len(keys))
	for _, m := range keys {
		src := months[m]
		rows = append(rows, plandomain.PlanMonth{
			Version:    target,
			Year:       year,
			Month:      m,
			Initial:    src.Adjustment,
			Adjustment: src.Adjustment,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}
	return s.db.WithContext(ctx).Create(&rows).Error
}
