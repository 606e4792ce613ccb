package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	actualsdomain "github.com/smallbiznis/revplan/internal/actuals/domain"
	"github.com/smallbiznis/revplan/internal/clock"
	"github.com/smallbiznis/revplan/internal/config"
	forecastdomain "github.com/smallbiznis/revplan/internal/forecast/domain"
	mixdomain "github.com/smallbiznis/revplan/internal/mix/domain"
	obsmetrics "github.com/smallbiznis/revplan/internal/observability/metrics"
	planversiondomain "github.com/smallbiznis/revplan/internal/planversion/domain"
	rebalancedomain "github.com/smallbiznis/revplan/internal/rebalance/domain"
	seasonalitydomain "github.com/smallbiznis/revplan/internal/seasonality/domain"
	waterfalldomain "github.com/smallbiznis/revplan/internal/waterfall/domain"
)

var ErrInvalidConfig = errors.New("scheduler: invalid configuration")

type Params struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	GenID          *snowflake.Node
	Clock          clock.Clock
	Plan           *config.PlanConfigHolder
	SeasonalitySvc seasonalitydomain.Service
	MixSvc         mixdomain.Service
	WaterfallSvc   waterfalldomain.Service
	RebalanceSvc   rebalancedomain.Service
	ForecastSvc    forecastdomain.Service
	VersionSvc     planversiondomain.Service
	ActualsSvc     actualsdomain.Service
	Config         Config `optional:"true"`
}

type Scheduler struct {
	db             *gorm.DB
	log            *zap.Logger
	cfg            Config
	genID          *snowflake.Node
	clock          clock.Clock
	plan           *config.PlanConfigHolder
	seasonalitySvc seasonalitydomain.Service
	mixSvc         mixdomain.Service
	waterfallSvc   waterfalldomain.Service
	rebalanceSvc   rebalancedomain.Service
	forecastSvc    forecastdomain.Service
	versionSvc     planversiondomain.Service
	actualsSvc     actualsdomain.Service
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.GenID == nil || p.Clock == nil || p.Plan == nil ||
		p.SeasonalitySvc == nil || p.MixSvc == nil || p.WaterfallSvc == nil ||
		p.RebalanceSvc == nil || p.ForecastSvc == nil || p.VersionSvc == nil || p.ActualsSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:             p.DB,
		log:            p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:            p.Config.withDefaults(),
		genID:          p.GenID,
		clock:          p.Clock,
		plan:           p.Plan,
		seasonalitySvc: p.SeasonalitySvc,
		mixSvc:         p.MixSvc,
		waterfallSvc:   p.WaterfallSvc,
		rebalanceSvc:   p.RebalanceSvc,
		forecastSvc:    p.ForecastSvc,
		versionSvc:     p.VersionSvc,
		actualsSvc:     p.ActualsSvc,
	}, nil
}

func (s *Scheduler) isJobEnabled(name string) bool {
	for _, disabled := range s.cfg.DisabledJobs {
		if disabled == name {
			return false
		}
	}
	return true
}

func (s *Scheduler) runJob(parent context.Context, name string, fn func(ctx context.Context) error) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	runID := s.genID.Generate().String()
	log := s.log.With(
		zap.String("job", name),
		zap.String("run_id", runID),
	)
	log.Info("job started")

	engineMetrics := obsmetrics.Engine()
	engineMetrics.IncJobRun(name)

	err := fn(ctx)
	engineMetrics.ObserveJobDuration(name, time.Since(start))
	if err == nil {
		log.Info("job finished", zap.Duration("took", time.Since(start)))
		return nil
	}

	engineMetrics.IncJobError(name)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		log.Warn("job timed out",
			zap.Duration("timeout", s.cfg.JobTimeout),
			zap.Error(err),
		)
		return nil
	}
	log.Error("job failed", zap.Error(err))
	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce walks the full allocation pipeline for the clock's current month
// of the plan year.
func (s *Scheduler) RunOnce(parent context.Context) error {
	cfg := s.plan.Get()
	return s.RunPipeline(parent, cfg.PlanYear, s.clock.Now().UTC().Month())
}

// RunPipeline walks the allocation pipeline for one target month, top of
// the hierarchy first. Jobs run sequentially; a failed job stops the run.
func (s *Scheduler) RunPipeline(parent context.Context, year int, month time.Month) error {
	engineMetrics := obsmetrics.Engine()

	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{"ensure_seed", func(ctx context.Context) error {
			return s.versionSvc.EnsureSeed(ctx, year)
		}},
		{"cutover", func(ctx context.Context) error {
			_, _, err := s.versionSvc.Cutover(ctx)
			return err
		}},
		{"refresh_weights", func(ctx context.Context) error {
			_, err := s.seasonalitySvc.Refresh(ctx, year, month)
			return err
		}},
		{"refresh_channel_mix", func(ctx context.Context) error {
			_, err := s.mixSvc.RefreshChannelMix(ctx, year, month)
			return err
		}},
		{"refresh_brand_mix", func(ctx context.Context) error {
			_, err := s.mixSvc.RefreshBrandMix(ctx, year, month)
			return err
		}},
		{"process_actuals", func(ctx context.Context) error {
			if err := s.actualsSvc.MarkAllMonthsProcessed(ctx, year); err != nil {
				return err
			}
			return s.actualsSvc.MarkAllDaysProcessed(ctx, year, month)
		}},
		{"rebalance_months", func(ctx context.Context) error {
			rows, err := s.rebalanceSvc.RebalanceMonths(ctx, year)
			engineMetrics.IncAggregates("rebalance", "month", len(rows))
			return err
		}},
		{"allocate_days", func(ctx context.Context) error {
			rows, err := s.waterfallSvc.AllocateDays(ctx, year, month)
			engineMetrics.IncAggregates("waterfall", "day", len(rows))
			return err
		}},
		{"rebalance_days", func(ctx context.Context) error {
			rows, err := s.rebalanceSvc.RebalanceDays(ctx, year, month)
			engineMetrics.IncAggregates("rebalance", "day", len(rows))
			return err
		}},
		{"allocate_channels", func(ctx context.Context) error {
			rows, err := s.waterfallSvc.AllocateChannels(ctx, year, month)
			engineMetrics.IncAggregates("waterfall", "channel", len(rows))
			return err
		}},
		{"allocate_brands", func(ctx context.Context) error {
			rows, err := s.waterfallSvc.AllocateBrands(ctx, year, month)
			engineMetrics.IncAggregates("waterfall", "brand", len(rows))
			return err
		}},
		{"allocate_skus", func(ctx context.Context) error {
			rows, err := s.waterfallSvc.AllocateSKUs(ctx, year, month)
			engineMetrics.IncAggregates("waterfall", "sku", len(rows))
			return err
		}},
		{"forecast_skus", func(ctx context.Context) error {
			rows, err := s.forecastSvc.ProjectSKUs(ctx, year, month)
			engineMetrics.IncAggregates("forecast", "sku", len(rows))
			return err
		}},
	}

	for _, job := range jobs {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		if err := s.runJob(parent, job.Name, job.Run); err != nil {
			return err
		}
	}
	return nil
}

// RunForever re-runs the pipeline on the configured interval until the
// context is canceled. Cadence and retries beyond that belong to the
// external scheduler invoking the binary.
func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Error("pipeline run failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
