// Package settlement computes pro-rata payouts for resolved markets.
//
// A claim pays winning · vault / outstanding, where vault is the custodial
// balance observed at claim time and outstanding is the side's unclaimed share
// total. Committing a claim removes the same claimant's shares from
// outstanding and the same payout from the vault, so the ratio
// vault/outstanding carries over to the next claimant whatever the claim
// order. The only loss is integer rounding, at most one unit per claim.
package settlement

import (
	"fmt"

	"github.com/atmx/binary-amm/internal/fixedpoint"
	"github.com/atmx/binary-amm/internal/model"
)

// Claim is the computed result of one claim. Nothing is committed.
type Claim struct {
	OutcomeYes       bool
	WinningShares    uint64
	Payout           uint64
	VaultBefore      uint64
	OutstandingAfter fixedpoint.Uint128
}

// ComputeClaim prices a claim for position p against market m and a fresh
// vault balance.
func ComputeClaim(m *model.Market, p *model.Position, vaultBalance uint64) (Claim, error) {
	if !m.Resolved || m.Outcome == nil {
		return Claim{}, model.ErrMarketNotResolved
	}
	if p.Claimed {
		return Claim{}, model.ErrAlreadyClaimed
	}
	outcomeYes := *m.Outcome

	winning := p.Shares(outcomeYes)
	if winning == 0 {
		return Claim{}, fmt.Errorf("%w: position holds no %s shares", model.ErrNoWinningShares, model.SideName(outcomeYes))
	}
	outstanding := m.OutstandingShares(outcomeYes)
	if outstanding.IsZero() {
		return Claim{}, fmt.Errorf("%w: no outstanding %s shares", model.ErrNoWinningShares, model.SideName(outcomeYes))
	}

	w := fixedpoint.NewUint128(winning)
	raw, err := fixedpoint.MulDiv(w, fixedpoint.NewUint128(vaultBalance), outstanding)
	if err != nil {
		return Claim{}, err
	}
	payout, err := raw.Uint64()
	if err != nil {
		return Claim{}, err
	}
	if payout == 0 {
		return Claim{}, fmt.Errorf("%w: payout rounds to zero", model.ErrNoWinningShares)
	}

	remaining, err := fixedpoint.Sub(outstanding, w)
	if err != nil {
		return Claim{}, err
	}

	return Claim{
		OutcomeYes:       outcomeYes,
		WinningShares:    winning,
		Payout:           payout,
		VaultBefore:      vaultBalance,
		OutstandingAfter: remaining,
	}, nil
}

// Apply commits a computed claim to copies of the market and position: the
// winning side's outstanding total drops by the claimed shares and the
// position becomes a zeroed tombstone.
func Apply(m model.Market, p model.Position, c Claim) (model.Market, model.Position) {
	if c.OutcomeYes {
		m.TotalYesShares = c.OutstandingAfter
	} else {
		m.TotalNoShares = c.OutstandingAfter
	}
	p.YesShares = 0
	p.NoShares = 0
	p.Claimed = true
	return m, p
}
