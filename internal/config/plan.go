package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// PlanConfig carries the business parameters of the allocation engine:
// the annual target, the plan/base years, the monthly version cutoff,
// day-type labels and the mega-sale blackout calendar.
type PlanConfig struct {
	AnnualTarget       string         `mapstructure:"annualTarget"`
	BaseYear           int            `mapstructure:"baseYear"`
	PlanYear           int            `mapstructure:"planYear"`
	CutoffDay          int            `mapstructure:"cutoffDay"`
	BaselineLabel      string         `mapstructure:"baselineLabel"`
	DateLabels         []string       `mapstructure:"dateLabels"`
	HistoryMonths      int            `mapstructure:"historyMonths"`
	BaselineWindowDays int            `mapstructure:"baselineWindowDays"`
	CurveWindowDays    int            `mapstructure:"curveWindowDays"`
	HeroShare          string         `mapstructure:"heroShare"`
	CoreShare          string         `mapstructure:"coreShare"`
	BlackoutDays       []BlackoutDay  `mapstructure:"blackoutDays"`
	BlackoutWindows    []BlackoutSpan `mapstructure:"blackoutWindows"`
}

// BlackoutDay is a single mega-sale day excluded from the seasonal weight base.
type BlackoutDay struct {
	Month int `mapstructure:"month"`
	Day   int `mapstructure:"day"`
}

// BlackoutSpan is a day range around a mega-sale day excluded from the
// channel-and-below cascade.
type BlackoutSpan struct {
	Month   int `mapstructure:"month"`
	FromDay int `mapstructure:"fromDay"`
	ToDay   int `mapstructure:"toDay"`
}

func DefaultPlanConfig() PlanConfig {
	return PlanConfig{
		AnnualTarget:  "50000000000",
		BaseYear:      2025,
		PlanYear:      2026,
		CutoffDay:     25,
		BaselineLabel: "Normal day",
		DateLabels: []string{
			"Normal day",
			"Double Day",
			"Double Day +1",
			"Double Day -1",
			"Middle of month",
			"Middle of month +1",
			"Middle of month -1",
			"Pay Day",
			"Pay Day +1",
			"Pay Day -1",
		},
		HistoryMonths:      3,
		BaselineWindowDays: 30,
		CurveWindowDays:    30,
		HeroShare:          "0.85",
		CoreShare:          "0.15",
		BlackoutDays: []BlackoutDay{
			{Month: 6, Day: 6},
			{Month: 9, Day: 9},
			{Month: 11, Day: 11},
			{Month: 12, Day: 12},
		},
		BlackoutWindows: []BlackoutSpan{
			{Month: 6, FromDay: 5, ToDay: 7},
			{Month: 9, FromDay: 8, ToDay: 10},
			{Month: 11, FromDay: 10, ToDay: 12},
			{Month: 12, FromDay: 11, ToDay: 13},
		},
	}
}

// AnnualTargetAmount returns the annual revenue target as a Decimal.
func (c PlanConfig) AnnualTargetAmount() decimal.Decimal {
	return decimal.RequireFromString(c.AnnualTarget)
}

func (c PlanConfig) HeroShareFraction() decimal.Decimal {
	return decimal.RequireFromString(c.HeroShare)
}

func (c PlanConfig) CoreShareFraction() decimal.Decimal {
	return decimal.RequireFromString(c.CoreShare)
}

// IsBlackoutDay reports whether (month, day) is a mega-sale day excluded
// from seasonal weight derivation.
func (c PlanConfig) IsBlackoutDay(month, day int) bool {
	for _, b := range c.BlackoutDays {
		if b.Month == month && b.Day == day {
			return true
		}
	}
	return false
}

// InBlackoutWindow reports whether (month, day) falls inside a mega-sale
// window excluded from the channel/brand/SKU cascade.
func (c PlanConfig) InBlackoutWindow(month, day int) bool {
	for _, w := range c.BlackoutWindows {
		if w.Month == month && day >= w.FromDay && day <= w.ToDay {
			return true
		}
	}
	return false
}

type PlanConfigHolder struct {
	current atomic.Value // holds PlanConfig
}

func NewPlanConfigHolder() (*PlanConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("plan")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/revplan/config")
	v.AddConfigPath("/etc/revplan")
	v.AddConfigPath(".")

	v.SetEnvPrefix("REVPLAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPlanConfig()
	v.SetDefault("plan", defaults)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg PlanConfig
	if err := v.UnmarshalKey("plan", &cfg); err != nil {
		return nil, err
	}
	if err := validatePlanConfig(cfg); err != nil {
		return nil, err
	}

	holder := &PlanConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PlanConfig
		if err := v.UnmarshalKey("plan", &updated); err != nil {
			log.Printf("[plan-config] reload failed: %v", err)
			return
		}
		if err := validatePlanConfig(updated); err != nil {
			log.Printf("[plan-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[plan-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *PlanConfigHolder) Get() PlanConfig {
	return h.current.Load().(PlanConfig)
}

// NewStaticPlanConfigHolder wraps a fixed config without file watching.
// Intended for tests.
func NewStaticPlanConfigHolder(cfg PlanConfig) *PlanConfigHolder {
	holder := &PlanConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func validatePlanConfig(cfg PlanConfig) error {
	target, err := decimal.NewFromString(cfg.AnnualTarget)
	if err != nil {
		return fmt.Errorf("plan.annualTarget: %w", err)
	}
	if !target.IsPositive() {
		return errors.New("plan.annualTarget must be positive")
	}
	if cfg.CutoffDay < 1 || cfg.CutoffDay > 28 {
		return errors.New("plan.cutoffDay must be within 1-28")
	}
	if len(cfg.DateLabels) == 0 {
		return errors.New("plan.dateLabels cannot be empty")
	}
	hasBaseline := false
	for _, label := range cfg.DateLabels {
		if label == cfg.BaselineLabel {
			hasBaseline = true
			break
		}
	}
	if !hasBaseline {
		return errors.New("plan.dateLabels must include the baseline label")
	}
	hero, err := decimal.NewFromString(cfg.HeroShare)
	if err != nil {
		return fmt.Errorf("plan.heroShare: %w", err)
	}
	core, err := decimal.NewFromString(cfg.CoreShare)
	if err != nil {
		return fmt.Errorf("plan.coreShare: %w", err)
	}
	if !hero.Add(core).Equal(decimal.NewFromInt(1)) {
		return errors.New("plan.heroShare and plan.coreShare must sum to 1")
	}
	if cfg.HistoryMonths <= 0 || cfg.BaselineWindowDays <= 0 || cfg.CurveWindowDays <= 0 {
		return errors.New("plan history windows must be positive")
	}
	return nil
}
