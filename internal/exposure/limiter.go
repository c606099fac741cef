// Package exposure implements per-user spending limits that account for
// correlation between markets in the same category.
//
// A user buying YES on every market in "elections" carries correlated risk.
// Markets are grouped by their category string and the limiter enforces both
// a per-market cap and an aggregate cap over the group.
package exposure

import (
	"fmt"

	"github.com/atmx/binary-amm/internal/fixedpoint"
	"github.com/atmx/binary-amm/internal/model"
)

// Limiter enforces exposure limits with category awareness. Exposure is the
// cumulative gross amount a user has spent in a market; it only grows.
type Limiter struct {
	// MaxPerMarket is the maximum gross spend in any single market.
	// Zero disables the check.
	MaxPerMarket uint64

	// MaxPerCategory is the maximum aggregate gross spend across all markets
	// sharing the target's category. Zero disables the check.
	MaxPerCategory uint64
}

// NewLimiter creates a limiter with the given per-market and per-category
// limits.
func NewLimiter(maxPerMarket, maxPerCategory uint64) *Limiter {
	return &Limiter{MaxPerMarket: maxPerMarket, MaxPerCategory: maxPerCategory}
}

// Enabled reports whether any limit is configured.
func (l *Limiter) Enabled() bool {
	return l != nil && (l.MaxPerMarket > 0 || l.MaxPerCategory > 0)
}

// CheckLimit validates whether spending delta in target keeps the user within
// limits, given the user's existing exposures. Returns nil if the trade is
// within limits, or an error wrapping model.ErrExposureLimitExceeded.
func (l *Limiter) CheckLimit(target model.Exposure, delta uint64, existing []model.Exposure) error {
	if !l.Enabled() {
		return nil
	}

	// 1. Per-market limit.
	current := uint64(0)
	for _, e := range existing {
		if e.MarketID == target.MarketID {
			current = e.Gross
			break
		}
	}
	next, err := fixedpoint.Add64(current, delta)
	if err != nil {
		return err
	}
	if l.MaxPerMarket > 0 && next > l.MaxPerMarket {
		return fmt.Errorf("%w: market %d spend %d > %d",
			model.ErrExposureLimitExceeded, target.MarketID, next, l.MaxPerMarket)
	}

	// 2. Category exposure: the new market total plus every other market in
	// the same category.
	if l.MaxPerCategory == 0 || target.Category == "" {
		return nil
	}
	total := next
	for _, e := range existing {
		if e.MarketID == target.MarketID || e.Category != target.Category {
			continue
		}
		if total, err = fixedpoint.Add64(total, e.Gross); err != nil {
			return err
		}
	}
	if total > l.MaxPerCategory {
		return fmt.Errorf("%w: category %q spend %d > %d",
			model.ErrExposureLimitExceeded, target.Category, total, l.MaxPerCategory)
	}
	return nil
}
