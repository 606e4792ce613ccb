package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/revplan/internal/actuals"
	"github.com/smallbiznis/revplan/internal/clock"
	"github.com/smallbiznis/revplan/internal/config"
	"github.com/smallbiznis/revplan/internal/forecast"
	"github.com/smallbiznis/revplan/internal/logger"
	"github.com/smallbiznis/revplan/internal/migration"
	"github.com/smallbiznis/revplan/internal/mix"
	"github.com/smallbiznis/revplan/internal/planversion"
	planversiondomain "github.com/smallbiznis/revplan/internal/planversion/domain"
	"github.com/smallbiznis/revplan/internal/rebalance"
	"github.com/smallbiznis/revplan/internal/scheduler"
	"github.com/smallbiznis/revplan/internal/seasonality"
	"github.com/smallbiznis/revplan/internal/server"
	"github.com/smallbiznis/revplan/internal/waterfall"
	"github.com/smallbiznis/revplan/pkg/db"
	"github.com/spf13/pflag"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type action struct {
	serve bool

	targetMonth int
	targetYear  int

	createVersion bool
	sourceMonth   int
	force         bool

	recalcLabel   string
	recalcMonth   int
	recalcInitial decimal.Decimal
}

func main() {
	targetMonth := pflag.Int("target-month", 0, "month (1-12) to run the allocation pipeline for")
	targetYear := pflag.Int("target-year", 0, "plan year override for the pipeline run")
	createVersion := pflag.Bool("create-version-manually", false, "derive the next version from --source-month")
	sourceMonth := pflag.Int("source-month", -1, "version sequence (0-11) to derive the next version from")
	force := pflag.Bool("force", false, "overwrite the target version if it already exists")
	recalcLabel := pflag.String("recalculate-version", "", "version label to correct, e.g. month-3")
	recalcMonth := pflag.Int("month", 0, "month (1-12) whose initial changes in the corrected version")
	newInitial := pflag.String("new-kpi-initial", "", "new initial amount for the corrected month")
	serve := pflag.Bool("serve", false, "run the HTTP server and scheduler loop instead of a one-shot pipeline")
	pflag.Parse()

	act, err := buildAction(*serve, *targetMonth, *targetYear, *createVersion, *sourceMonth, *force, *recalcLabel, *recalcMonth, *newInitial)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		pflag.Usage()
		os.Exit(1)
	}

	opts := []fx.Option{
		config.Module,
		logger.Module,
		clock.Module,
		fx.Provide(newSnowflakeNode),
		db.Module,
		migration.Module,
		actuals.Module,
		seasonality.Module,
		mix.Module,
		waterfall.Module,
		rebalance.Module,
		forecast.Module,
		planversion.Module,
		scheduler.Module,
	}

	if act.serve {
		opts = append(opts, server.Module, scheduler.Daemon)
	} else {
		opts = append(opts, fx.Invoke(runOnce(act)))
	}

	fx.New(opts...).Run()
}

func buildAction(serve bool, targetMonth, targetYear int, createVersion bool, sourceMonth int, force bool, recalcLabel string, recalcMonth int, newInitial string) (action, error) {
	act := action{
		serve:       serve,
		targetMonth: targetMonth,
		targetYear:  targetYear,
	}

	if recalcLabel != "" {
		if recalcMonth < 1 || recalcMonth > 12 {
			return action{}, fmt.Errorf("--recalculate-version requires --month between 1 and 12, got %d", recalcMonth)
		}
		if newInitial == "" {
			return action{}, fmt.Errorf("--recalculate-version requires --new-kpi-initial")
		}
		amount, err := decimal.NewFromString(newInitial)
		if err != nil {
			return action{}, fmt.Errorf("--new-kpi-initial: %w", err)
		}
		act.recalcLabel = recalcLabel
		act.recalcMonth = recalcMonth
		act.recalcInitial = amount
		return act, nil
	}

	if createVersion {
		if sourceMonth < 0 || sourceMonth > 11 {
			return action{}, fmt.Errorf("--create-version-manually requires --source-month between 0 and 11, got %d", sourceMonth)
		}
		act.createVersion = true
		act.sourceMonth = sourceMonth
		act.force = force
		return act, nil
	}

	if targetMonth != 0 && (targetMonth < 1 || targetMonth > 12) {
		return action{}, fmt.Errorf("--target-month must be between 1 and 12, got %d", targetMonth)
	}
	return act, nil
}

type runDeps struct {
	fx.In

	Sched    *scheduler.Scheduler
	Versions planversiondomain.Service
	Plan     *config.PlanConfigHolder
	Clock    clock.Clock
	Log      *zap.Logger
}

func runOnce(act action) func(fx.Lifecycle, fx.Shutdowner, runDeps) {
	return func(lc fx.Lifecycle, shutdowner fx.Shutdowner, deps runDeps) {
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				go func() {
					code := 0
					if err := execute(context.Background(), act, deps); err != nil {
						deps.Log.Error("run failed", zap.Error(err))
						code = 1
					}
					_ = shutdowner.Shutdown(fx.ExitCode(code))
				}()
				return nil
			},
		})
	}
}

func execute(ctx context.Context, act action, deps runDeps) error {
	switch {
	case act.recalcLabel != "":
		return deps.Versions.Recalculate(ctx, act.recalcLabel, act.recalcMonth, act.recalcInitial)

	case act.createVersion:
		label, err := deps.Versions.ForceCreate(ctx, act.sourceMonth, act.force)
		if err != nil {
			return err
		}
		deps.Log.Info("version created", zap.String("version", label))
		return nil

	default:
		year := act.targetYear
		if year == 0 {
			year = deps.Plan.Get().PlanYear
		}
		month := time.Month(act.targetMonth)
		if act.targetMonth == 0 {
			month = deps.Clock.Now().UTC().Month()
		}
		return deps.Sched.RunPipeline(ctx, year, month)
	}
}

func newSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
