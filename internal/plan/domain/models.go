package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Hierarchy level names used in logs and metrics.
const (
	LevelMonth   = "month"
	LevelDay     = "day"
	LevelChannel = "channel"
	LevelBrand   = "brand"
	LevelSKU     = "sku"
)

// SKU classifications. Tail SKUs never receive planned budget.
const (
	ClassificationHero = "Hero"
	ClassificationCore = "Core"
	ClassificationTail = "Tail"
)

// Transaction statuses excluded from every revenue aggregate.
var CanceledStatuses = []string{"Canceled", "Cancel"}

// Date builds a normalized calendar date (midnight UTC). All calendar_date
// columns hold values produced by this helper so equality joins behave the
// same across warehouse backends.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DateOnly truncates an instant to its calendar date in UTC.
func DateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DimDate is immutable calendar reference data carrying the day-type label.
type DimDate struct {
	CalendarDate time.Time `gorm:"column:calendar_date;type:date;primaryKey"`
	Year         int       `gorm:"column:year"`
	Month        int       `gorm:"column:month"`
	Day          int       `gorm:"column:day"`
	DateLabel    string    `gorm:"column:date_label"`
}

func (DimDate) TableName() string { return "dim_dates" }

// DimSKU is the SKU catalog with classification and in-class revenue share
// (expressed in percent, 0-100).
type DimSKU struct {
	BrandName           string          `gorm:"column:brand_name;primaryKey"`
	SKU                 string          `gorm:"column:sku;primaryKey"`
	Classification      string          `gorm:"column:sku_classification"`
	RevenueShareInClass decimal.Decimal `gorm:"column:revenue_share_in_class;type:numeric(20,10)"`
}

func (DimSKU) TableName() string { return "dim_skus" }

// PriorYearRevenue holds base-year monthly totals for the Month-level split.
type PriorYearRevenue struct {
	Year  int             `gorm:"column:year"`
	Month int             `gorm:"column:month"`
	Total decimal.Decimal `gorm:"column:total;type:numeric(30,10)"`
}

func (PriorYearRevenue) TableName() string { return "prior_year_revenue" }

// SalesTransaction is an ingested revenue fact. The staging layer populates
// calendar_date and hour so aggregates never depend on backend-specific
// date functions.
type SalesTransaction struct {
	ID           int64           `gorm:"column:id;primaryKey;autoIncrement"`
	CalendarDate time.Time       `gorm:"column:calendar_date;type:date;index"`
	Hour         int             `gorm:"column:hour"`
	Channel      string          `gorm:"column:channel"`
	BrandName    string          `gorm:"column:brand_name"`
	SKU          string          `gorm:"column:sku"`
	Amount       decimal.Decimal `gorm:"column:amount;type:numeric(30,10)"`
	Status       string          `gorm:"column:status"`
}

func (SalesTransaction) TableName() string { return "sales_transactions" }

// MonthActual is a staged month-level actual; only processed rows feed the
// rebalancer.
type MonthActual struct {
	Year        int             `gorm:"column:year"`
	Month       int             `gorm:"column:month"`
	Amount      decimal.Decimal `gorm:"column:amount;type:numeric(30,10)"`
	Processed   bool            `gorm:"column:processed"`
	ProcessedAt *time.Time      `gorm:"column:processed_at"`
	CreatedAt   time.Time       `gorm:"column:created_at"`
	UpdatedAt   time.Time       `gorm:"column:updated_at"`
}

func (MonthActual) TableName() string { return "actual_month_staging" }

// DayActual is a staged day-level actual.
type DayActual struct {
	CalendarDate time.Time       `gorm:"column:calendar_date;type:date"`
	Year         int             `gorm:"column:year"`
	Month        int             `gorm:"column:month"`
	Day          int             `gorm:"column:day"`
	Amount       decimal.Decimal `gorm:"column:amount;type:numeric(30,10)"`
	Processed    bool            `gorm:"column:processed"`
	ProcessedAt  *time.Time      `gorm:"column:processed_at"`
	CreatedAt    time.Time       `gorm:"column:created_at"`
	UpdatedAt    time.Time       `gorm:"column:updated_at"`
}

func (DayActual) TableName() string { return "actual_day_staging" }

// DayWeight is a seasonal weight row for one (year, month, date_label).
type DayWeight struct {
	Year             int             `gorm:"column:year"`
	Month            int             `gorm:"column:month"`
	DateLabel        string          `gorm:"column:date_label"`
	AvgTotal         decimal.Decimal `gorm:"column:avg_total;type:numeric(30,10)"`
	Uplift           decimal.Decimal `gorm:"column:uplift;type:numeric(20,12)"`
	DayCount         int             `gorm:"column:day_count"`
	Weight           decimal.Decimal `gorm:"column:weight;type:numeric(20,12)"`
	TotalWeightMonth decimal.Decimal `gorm:"column:total_weight_month;type:numeric(20,12)"`
	WindowStart      time.Time       `gorm:"column:window_start;type:date"`
	WindowEnd        time.Time       `gorm:"column:window_end;type:date"`
	CreatedAt        time.Time       `gorm:"column:created_at"`
	UpdatedAt        time.Time       `gorm:"column:updated_at"`
}

func (DayWeight) TableName() string { return "day_weights" }

// PlanMonth is a Month-level allocation row under a named version. Rows are
// append-only; the latest updated_at per (version, year, month) wins.
type PlanMonth struct {
	Version    string              `gorm:"column:version"`
	Year       int                 `gorm:"column:year"`
	Month      int                 `gorm:"column:month"`
	Initial    decimal.Decimal     `gorm:"column:initial;type:numeric(30,10)"`
	Actual     decimal.NullDecimal `gorm:"column:actual;type:numeric(30,10)"`
	Gap        decimal.NullDecimal `gorm:"column:gap;type:numeric(30,10)"`
	Adjustment decimal.Decimal     `gorm:"column:adjustment;type:numeric(30,10)"`
	CreatedAt  time.Time           `gorm:"column:created_at"`
	UpdatedAt  time.Time           `gorm:"column:updated_at"`
}

func (PlanMonth) TableName() string { return "plan_months" }

// PlanDay is a Day-level allocation row; latest updated_at per calendar_date wins.
type PlanDay struct {
	CalendarDate     time.Time           `gorm:"column:calendar_date;type:date"`
	Year             int                 `gorm:"column:year"`
	Month            int                 `gorm:"column:month"`
	Day              int                 `gorm:"column:day"`
	DateLabel        string              `gorm:"column:date_label"`
	MonthInitial     decimal.Decimal     `gorm:"column:month_initial;type:numeric(30,10)"`
	Uplift           decimal.Decimal     `gorm:"column:uplift;type:numeric(20,12)"`
	Weight           decimal.Decimal     `gorm:"column:weight;type:numeric(20,12)"`
	TotalWeightMonth decimal.Decimal     `gorm:"column:total_weight_month;type:numeric(20,12)"`
	Initial          decimal.Decimal     `gorm:"column:initial;type:numeric(30,10)"`
	Actual           decimal.NullDecimal `gorm:"column:actual;type:numeric(30,10)"`
	Gap              decimal.NullDecimal `gorm:"column:gap;type:numeric(30,10)"`
	Adjustment       decimal.NullDecimal `gorm:"column:adjustment;type:numeric(30,10)"`
	CreatedAt        time.Time           `gorm:"column:created_at"`
	UpdatedAt        time.Time           `gorm:"column:updated_at"`
}

func (PlanDay) TableName() string { return "plan_days" }

// ChannelMix is the per-label channel share table; shares sum to 1 per
// (year, month, date_label).
type ChannelMix struct {
	Year      int             `gorm:"column:year"`
	Month     int             `gorm:"column:month"`
	DateLabel string          `gorm:"column:date_label"`
	Channel   string          `gorm:"column:channel"`
	Share     decimal.Decimal `gorm:"column:share;type:numeric(20,12)"`
	CreatedAt time.Time       `gorm:"column:created_at"`
	UpdatedAt time.Time       `gorm:"column:updated_at"`
}

func (ChannelMix) TableName() string { return "channel_mix" }

// BrandMix is the per-channel brand share table; shares sum to 1 per channel.
// Brands first observed in the target month carry no row and thus share 0.
type BrandMix struct {
	Month     int             `gorm:"column:month"`
	Channel   string          `gorm:"column:channel"`
	BrandName string          `gorm:"column:brand_name"`
	Share     decimal.Decimal `gorm:"column:share;type:numeric(20,12)"`
	CreatedAt time.Time       `gorm:"column:created_at"`
	UpdatedAt time.Time       `gorm:"column:updated_at"`
}

func (BrandMix) TableName() string { return "brand_mix" }

// PlanDayChannel is a Channel-level allocation row.
type PlanDayChannel struct {
	CalendarDate time.Time       `gorm:"column:calendar_date;type:date"`
	Year         int             `gorm:"column:year"`
	Month        int             `gorm:"column:month"`
	Day          int             `gorm:"column:day"`
	DateLabel    string          `gorm:"column:date_label"`
	Channel      string          `gorm:"column:channel"`
	Share        decimal.Decimal `gorm:"column:share;type:numeric(20,12)"`
	Initial      decimal.Decimal `gorm:"column:initial;type:numeric(30,10)"`
	CreatedAt    time.Time       `gorm:"column:created_at"`
	UpdatedAt    time.Time       `gorm:"column:updated_at"`
}

func (PlanDayChannel) TableName() string { return "plan_day_channels" }

// PlanDayBrand is a Brand-level allocation row.
type PlanDayBrand struct {
	CalendarDate time.Time       `gorm:"column:calendar_date;type:date"`
	Year         int             `gorm:"column:year"`
	Month        int             `gorm:"column:month"`
	Day          int             `gorm:"column:day"`
	DateLabel    string          `gorm:"column:date_label"`
	Channel      string          `gorm:"column:channel"`
	BrandName    string          `gorm:"column:brand_name"`
	Share        decimal.Decimal `gorm:"column:share;type:numeric(20,12)"`
	Initial      decimal.Decimal `gorm:"column:initial;type:numeric(30,10)"`
	CreatedAt    time.Time       `gorm:"column:created_at"`
	UpdatedAt    time.Time       `gorm:"column:updated_at"`
}

func (PlanDayBrand) TableName() string { return "plan_day_brands" }

// PlanSKU is a SKU-level allocation row.
type PlanSKU struct {
	CalendarDate        time.Time       `gorm:"column:calendar_date;type:date"`
	Year                int             `gorm:"column:year"`
	Month               int             `gorm:"column:month"`
	Day                 int             `gorm:"column:day"`
	DateLabel           string          `gorm:"column:date_label"`
	Channel             string          `gorm:"column:channel"`
	BrandName           string          `gorm:"column:brand_name"`
	SKU                 string          `gorm:"column:sku"`
	Classification      string          `gorm:"column:sku_classification"`
	RevenueShareInClass decimal.Decimal `gorm:"column:revenue_share_in_class;type:numeric(20,10)"`
	BrandInitial        decimal.Decimal `gorm:"column:brand_initial;type:numeric(30,10)"`
	GroupShare          decimal.Decimal `gorm:"column:group_share;type:numeric(20,12)"`
	Initial             decimal.Decimal `gorm:"column:initial;type:numeric(30,10)"`
	CreatedAt           time.Time       `gorm:"column:created_at"`
	UpdatedAt           time.Time       `gorm:"column:updated_at"`
}

func (PlanSKU) TableName() string { return "plan_skus" }

// Forecast is a SKU-grain forecast row for one calendar day.
type Forecast struct {
	CalendarDate time.Time       `gorm:"column:calendar_date;type:date"`
	Year         int             `gorm:"column:year"`
	Month        int             `gorm:"column:month"`
	Day          int             `gorm:"column:day"`
	Channel      string          `gorm:"column:channel"`
	BrandName    string          `gorm:"column:brand_name"`
	SKU          string          `gorm:"column:sku"`
	Forecast     decimal.Decimal `gorm:"column:forecast;type:numeric(30,10)"`
	UpdatedAt    time.Time       `gorm:"column:updated_at"`
}

func (Forecast) TableName() string { return "plan_forecasts" }
