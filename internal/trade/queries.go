package trade

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/atmx/binary-amm/internal/ledger"
	"github.com/atmx/binary-amm/internal/model"
	"github.com/atmx/binary-amm/internal/settlement"
	"github.com/atmx/binary-amm/internal/store"
)

// PriceResponse is the current pool price of a market.
type PriceResponse struct {
	MarketID   uint64          `json:"market_id"`
	PriceYes   decimal.Decimal `json:"price_yes"`
	PriceNo    decimal.Decimal `json:"price_no"`
	YesReserve uint64          `json:"yes_reserve"`
	NoReserve  uint64          `json:"no_reserve"`
	Resolved   bool            `json:"resolved"`
}

// BalanceResponse reports one ledger account.
type BalanceResponse struct {
	Account string `json:"account"`
	Balance uint64 `json:"balance"`
}

// Config returns the persisted market config.
func (s *Service) Config(ctx context.Context) (*model.Config, error) {
	return s.config(ctx)
}

// Market returns one market.
func (s *Service) Market(ctx context.Context, id uint64) (*model.Market, error) {
	return s.store.GetMarket(ctx, id)
}

// Markets lists markets matching f.
func (s *Service) Markets(ctx context.Context, f store.MarketFilter) ([]model.Market, error) {
	return s.store.ListMarkets(ctx, f)
}

// Price returns the implied probabilities of a market.
func (s *Service) Price(ctx context.Context, id uint64) (*PriceResponse, error) {
	m, err := s.store.GetMarket(ctx, id)
	if err != nil {
		return nil, err
	}
	return &PriceResponse{
		MarketID:   m.ID,
		PriceYes:   m.PriceYes(),
		PriceNo:    m.PriceNo(),
		YesReserve: m.YesReserve,
		NoReserve:  m.NoReserve,
		Resolved:   m.Resolved,
	}, nil
}

// Trades returns the buy history of a market.
func (s *Service) Trades(ctx context.Context, id uint64) ([]model.TradeEvent, error) {
	if _, err := s.store.GetMarket(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListTrades(ctx, id)
}

// Claims returns the settled claims of a market.
func (s *Service) Claims(ctx context.Context, id uint64) ([]model.ClaimRecord, error) {
	if _, err := s.store.GetMarket(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListClaims(ctx, id)
}

// VaultBalance returns the custodial balance backing a market.
func (s *Service) VaultBalance(ctx context.Context, id uint64) (*BalanceResponse, error) {
	if _, err := s.store.GetMarket(ctx, id); err != nil {
		return nil, err
	}
	account := ledger.VaultAccount(id)
	bal, err := s.ledger.BalanceOf(ctx, account)
	if err != nil {
		return nil, err
	}
	return &BalanceResponse{Account: account, Balance: bal}, nil
}

// FeeBalance returns the fee accumulator balance.
func (s *Service) FeeBalance(ctx context.Context) (*BalanceResponse, error) {
	cfg, err := s.config(ctx)
	if err != nil {
		return nil, err
	}
	bal, err := s.ledger.BalanceOf(ctx, cfg.FeeAccumulatorRef)
	if err != nil {
		return nil, err
	}
	return &BalanceResponse{Account: cfg.FeeAccumulatorRef, Balance: bal}, nil
}

// Portfolio values every position of user. Open markets are marked at the
// pool price; resolved markets at the payout a claim would receive now.
func (s *Service) Portfolio(ctx context.Context, user string) (*model.Portfolio, error) {
	positions, err := s.store.ListPositionsByUser(ctx, user)
	if err != nil {
		return nil, err
	}
	exposures, err := s.store.GetUserExposures(ctx, user)
	if err != nil {
		return nil, err
	}
	cost := make(map[uint64]uint64, len(exposures))
	for _, e := range exposures {
		cost[e.MarketID] = e.Gross
	}
	wallet, err := s.ledger.BalanceOf(ctx, user)
	if err != nil {
		return nil, err
	}

	out := &model.Portfolio{
		User:          user,
		Positions:     make([]model.PortfolioPosition, 0, len(positions)),
		TotalValue:    decimal.Zero,
		WalletBalance: wallet,
	}
	for i := range positions {
		pos := positions[i]
		m, err := s.store.GetMarket(ctx, pos.MarketID)
		if err != nil {
			return nil, err
		}
		value, err := s.markPosition(ctx, m, &pos)
		if err != nil {
			return nil, err
		}
		pp := model.PortfolioPosition{
			Position:     pos,
			Question:     m.Question,
			Resolved:     m.Resolved,
			Outcome:      m.Outcome,
			CostBasis:    cost[pos.MarketID],
			CurrentValue: value,
		}
		out.Positions = append(out.Positions, pp)
		out.TotalCost += pp.CostBasis
		out.TotalValue = out.TotalValue.Add(value)
	}
	return out, nil
}

func (s *Service) markPosition(ctx context.Context, m *model.Market, pos *model.Position) (decimal.Decimal, error) {
	if pos.Claimed {
		return decimal.Zero, nil
	}
	if !m.Resolved {
		yes := model.DecimalFromUint64(pos.YesShares).Mul(m.PriceYes())
		no := model.DecimalFromUint64(pos.NoShares).Mul(m.PriceNo())
		return yes.Add(no).Round(model.PriceScale), nil
	}
	vault, err := s.ledger.BalanceOf(ctx, ledger.VaultAccount(m.ID))
	if err != nil {
		return decimal.Zero, err
	}
	c, err := settlement.ComputeClaim(m, pos, vault)
	if errors.Is(err, model.ErrNoWinningShares) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return model.DecimalFromUint64(c.Payout), nil
}
