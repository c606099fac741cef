// Package model defines the core domain types shared across the market engine.
// Amounts are integer base units (uint64); cumulative share totals and the
// invariant are 128-bit fixed-point values. Decimals appear only in derived,
// display-side prices.
package model

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/binary-amm/internal/fixedpoint"
)

// Side labels used on the wire and in logs.
const (
	SideYes = "YES"
	SideNo  = "NO"
)

// SideName returns "YES" or "NO".
func SideName(isYes bool) string {
	if isYes {
		return SideYes
	}
	return SideNo
}

// Config is the per-deployment market configuration. It is created once and
// afterwards only MarketCount changes.
type Config struct {
	Authority         string    `json:"authority"`
	MarketCount       uint64    `json:"market_count"`
	FeeBps            uint16    `json:"fee_bps"` // 200 = 2%
	FeeAccumulatorRef string    `json:"fee_accumulator_ref"`
	CreatedAt         time.Time `json:"created_at"`
}

// IsAuthority reports whether id is the configured operator.
func (c *Config) IsAuthority(id string) bool {
	return id != "" && id == c.Authority
}

// Market is one constant-product pool for one yes/no question.
// Reserves are virtual pricing quantities; the funds backing the market live
// in its custodial vault on the ledger.
type Market struct {
	ID               uint64             `json:"id"`
	Question         string             `json:"question"`
	Description      string             `json:"description"`
	Category         string             `json:"category"`
	Creator          string             `json:"creator"`
	ResolutionTime   time.Time          `json:"resolution_time"`
	CreatedAt        time.Time          `json:"created_at"`
	InitialLiquidity uint64             `json:"initial_liquidity"`
	YesReserve       uint64             `json:"yes_reserve"`
	NoReserve        uint64             `json:"no_reserve"`
	InvariantK       fixedpoint.Uint128 `json:"invariant_k"`
	TotalVolume      uint64             `json:"total_volume"`
	Resolved         bool               `json:"resolved"`
	Outcome          *bool              `json:"outcome,omitempty"`
	ResolvedAt       *time.Time         `json:"resolved_at,omitempty"`
	TotalYesShares   fixedpoint.Uint128 `json:"total_yes_shares"` // outstanding, unclaimed
	TotalNoShares    fixedpoint.Uint128 `json:"total_no_shares"`  // outstanding, unclaimed
}

// PriceYes is the implied YES probability: yes / (yes + no).
func (m *Market) PriceYes() decimal.Decimal {
	yes := DecimalFromUint64(m.YesReserve)
	total := yes.Add(DecimalFromUint64(m.NoReserve))
	if total.IsZero() {
		return decimal.NewFromFloat(0.5)
	}
	return yes.DivRound(total, PriceScale)
}

// DecimalFromUint64 converts a base-unit amount to a decimal.
func DecimalFromUint64(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}

// PriceNo is 1 - PriceYes.
func (m *Market) PriceNo() decimal.Decimal {
	return decimal.NewFromInt(1).Sub(m.PriceYes())
}

// OutstandingShares returns the unclaimed share total for one side.
func (m *Market) OutstandingShares(isYes bool) fixedpoint.Uint128 {
	if isYes {
		return m.TotalYesShares
	}
	return m.TotalNoShares
}

// PriceScale is the number of decimal places for display prices.
const PriceScale int32 = 8

// Position is one user's holdings in one market. A claimed position is kept
// with zeroed shares.
type Position struct {
	Owner     string    `json:"owner"`
	MarketID  uint64    `json:"market_id"`
	YesShares uint64    `json:"yes_shares"`
	NoShares  uint64    `json:"no_shares"`
	Claimed   bool      `json:"claimed"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Shares returns the holding on one side.
func (p *Position) Shares(isYes bool) uint64 {
	if isYes {
		return p.YesShares
	}
	return p.NoShares
}

// TradeEvent is an immutable record of one buy.
type TradeEvent struct {
	ID         string    `json:"id"`
	MarketID   uint64    `json:"market_id"`
	User       string    `json:"user"`
	IsYes      bool      `json:"is_yes"`
	Gross      uint64    `json:"gross"`
	Fee        uint64    `json:"fee"`
	Net        uint64    `json:"net"`
	Shares     uint64    `json:"shares"`
	YesReserve uint64    `json:"yes_reserve"` // post-trade
	NoReserve  uint64    `json:"no_reserve"`  // post-trade
	Timestamp  time.Time `json:"timestamp"`
}

// ClaimRecord is an immutable record of one settled claim.
type ClaimRecord struct {
	ID            string    `json:"id"`
	MarketID      uint64    `json:"market_id"`
	User          string    `json:"user"`
	WinningShares uint64    `json:"winning_shares"`
	Payout        uint64    `json:"payout"`
	VaultBefore   uint64    `json:"vault_before"`
	Timestamp     time.Time `json:"timestamp"`
}

// Exposure is a user's cumulative gross spend in one market.
type Exposure struct {
	MarketID uint64 `json:"market_id"`
	Category string `json:"category"`
	Gross    uint64 `json:"gross"`
}

// PortfolioPosition is a position valued at current pool prices.
type PortfolioPosition struct {
	Position
	Question     string          `json:"question"`
	Resolved     bool            `json:"resolved"`
	Outcome      *bool           `json:"outcome,omitempty"`
	CostBasis    uint64          `json:"cost_basis"`    // gross spent
	CurrentValue decimal.Decimal `json:"current_value"` // shares marked at pool price
}

// Portfolio aggregates all positions for a user.
type Portfolio struct {
	User          string              `json:"user"`
	Positions     []PortfolioPosition `json:"positions"`
	TotalCost     uint64              `json:"total_cost"`
	TotalValue    decimal.Decimal     `json:"total_value"`
	WalletBalance uint64              `json:"wallet_balance"`
}

// SettlementSnapshot is the archived record of a swept market.
type SettlementSnapshot struct {
	Market      Market        `json:"market"`
	Trades      []TradeEvent  `json:"trades"`
	Claims      []ClaimRecord `json:"claims"`
	SweptAmount uint64        `json:"swept_amount"`
	SweptAt     time.Time     `json:"swept_at"`
}
