package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	plandomain "github.com/smallbiznis/revplan/internal/plan/domain"
)

type Service interface {
	// RefreshChannelMix recomputes per-day-type channel revenue shares for
	// the target month from the trailing window and appends channel_mix rows.
	RefreshChannelMix(ctx context.Context, year int, month time.Month) ([]plandomain.ChannelMix, error)

	// RefreshBrandMix recomputes per-channel brand revenue shares for the
	// target month and appends brand_mix rows.
	RefreshBrandMix(ctx context.Context, year int, month time.Month) ([]plandomain.BrandMix, error)

	// ChannelShares returns the latest channel share per (date_label, channel)
	// for the target month.
	ChannelShares(ctx context.Context, year int, month time.Month) (map[string]map[string]decimal.Decimal, error)

	// BrandShares returns the latest brand share per (channel, brand) for the
	// target month.
	BrandShares(ctx context.Context, month time.Month) (map[string]map[string]decimal.Decimal, error)
}
