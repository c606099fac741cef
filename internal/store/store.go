// Package store defines the persistence interface for the market engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
//
// Writes that belong to one operation are atomic: a trade commits the
// market, the position and the trade record together, and a claim commits
// the market, the tombstoned position and the claim record together.
package store

import (
	"context"
	"time"

	"github.com/atmx/binary-amm/internal/model"
)

// MarketFilter narrows ListMarkets. Zero values match everything.
type MarketFilter struct {
	Category string
	Resolved *bool
	// DueBy, when non-zero, keeps only unresolved markets whose resolution
	// time is at or before it.
	DueBy time.Time
}

func (f MarketFilter) match(m *model.Market) bool {
	if f.Category != "" && m.Category != f.Category {
		return false
	}
	if f.Resolved != nil && m.Resolved != *f.Resolved {
		return false
	}
	if !f.DueBy.IsZero() && (m.Resolved || m.ResolutionTime.After(f.DueBy)) {
		return false
	}
	return true
}

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Config ---

	// GetConfig returns the market configuration or model.ErrConfigNotFound.
	GetConfig(ctx context.Context) (*model.Config, error)

	// InitConfig persists cfg if no configuration exists yet and returns
	// the stored record, which wins over cfg when one already exists.
	InitConfig(ctx context.Context, cfg *model.Config) (*model.Config, error)

	// --- Markets ---

	// CreateMarket persists a new market and increments the config's
	// market count. Fails with model.ErrMarketExists on an id collision.
	CreateMarket(ctx context.Context, market *model.Market) error

	// GetMarket retrieves a market by its ID or model.ErrMarketNotFound.
	GetMarket(ctx context.Context, id uint64) (*model.Market, error)

	// ListMarkets returns markets matching f ordered by id.
	ListMarkets(ctx context.Context, f MarketFilter) ([]model.Market, error)

	// SaveResolution records the outcome fields of a market.
	SaveResolution(ctx context.Context, market *model.Market) error

	// --- Positions ---

	// GetPosition returns one position or model.ErrPositionNotFound.
	GetPosition(ctx context.Context, marketID uint64, owner string) (*model.Position, error)

	// ListPositionsByUser returns every position the user holds.
	ListPositionsByUser(ctx context.Context, owner string) ([]model.Position, error)

	// GetUserExposures returns the user's cumulative gross spend per market.
	GetUserExposures(ctx context.Context, owner string) ([]model.Exposure, error)

	// --- Immutable history ---

	// SaveTrade commits a buy: market state, position and trade record.
	SaveTrade(ctx context.Context, market *model.Market, pos *model.Position, ev *model.TradeEvent) error

	// ListTrades returns all trades for a market in order.
	ListTrades(ctx context.Context, marketID uint64) ([]model.TradeEvent, error)

	// SaveClaim commits a claim: market totals, position and claim record.
	SaveClaim(ctx context.Context, market *model.Market, pos *model.Position, rec *model.ClaimRecord) error

	// ListClaims returns all claims for a market in order.
	ListClaims(ctx context.Context, marketID uint64) ([]model.ClaimRecord, error)
}
