// Package cpmm implements the constant-product automated market maker that
// prices binary YES/NO markets.
//
// The pool holds two virtual reserves whose product is fixed by the invariant
// k, stored scaled by Precision² so that the de-scaled reserve is always
// within one base unit of the exact quotient:
//
//	k = seed² · P²
//	new_out = k / (new_in · P²)
//	shares  = out − new_out
//
// Reserves move only by the post-fee (net) amount, so the fee has no effect on
// pricing. All arithmetic goes through the fixedpoint package; the functions
// here are pure and never mutate their inputs.
package cpmm

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/atmx/binary-amm/internal/fixedpoint"
	"github.com/atmx/binary-amm/internal/model"
)

var (
	one         = fixedpoint.NewUint128(1)
	precisionSq = fixedpoint.NewUint128(fixedpoint.Precision * fixedpoint.Precision)
)

// Pool is the pricing state of one market.
type Pool struct {
	YesReserve uint64
	NoReserve  uint64
	K          fixedpoint.Uint128
}

// PoolOf extracts the pricing state from a market.
func PoolOf(m *model.Market) Pool {
	return Pool{YesReserve: m.YesReserve, NoReserve: m.NoReserve, K: m.InvariantK}
}

// Quote is the outcome of pricing one buy. Nothing is committed.
type Quote struct {
	IsYes         bool
	Gross         uint64
	Fee           uint64
	Net           uint64
	SharesOut     uint64
	NewYesReserve uint64
	NewNoReserve  uint64
}

// Invariant returns the scaled invariant for a freshly seeded pool,
// seed² · Precision². It fails with ErrOverflow when the result exceeds
// 128 bits (seeds above roughly 1.8·10^10 base units).
func Invariant(seed uint64) (fixedpoint.Uint128, error) {
	s := fixedpoint.NewUint128(seed)
	return fixedpoint.ScaledMulDiv(s, s, one, precisionSq)
}

// NewPool seeds both reserves with the same amount.
func NewPool(seed uint64) (Pool, error) {
	if seed == 0 {
		return Pool{}, fmt.Errorf("%w: seed must be positive", model.ErrInvalidParameter)
	}
	k, err := Invariant(seed)
	if err != nil {
		return Pool{}, err
	}
	return Pool{YesReserve: seed, NoReserve: seed, K: k}, nil
}

// SplitFee returns (fee, net) for a gross amount; the fee rounds down.
func SplitFee(gross uint64, feeBps uint16) (fee, net uint64, err error) {
	fee, err = fixedpoint.Bps(gross, feeBps)
	if err != nil {
		return 0, 0, err
	}
	net, err = fixedpoint.Sub64(gross, fee)
	if err != nil {
		return 0, 0, err
	}
	return fee, net, nil
}

// OutReserve computes the output-side reserve after the input side grows to
// newIn: k / (newIn · P²), rounded down.
func (p Pool) OutReserve(newIn uint64) (uint64, error) {
	denom, err := fixedpoint.Mul(fixedpoint.NewUint128(newIn), precisionSq)
	if err != nil {
		return 0, err
	}
	out, err := fixedpoint.Div(p.K, denom)
	if err != nil {
		return 0, err
	}
	return out.Uint64()
}

// QuoteBuy prices a buy of gross base units on one side. It fails with
// ErrInvalidParameter for a zero amount, ErrInsufficientLiquidity when the
// trade would mint no shares or drain the output reserve, and
// ErrSlippageExceeded when fewer than minSharesOut shares would be minted.
func QuoteBuy(p Pool, isYes bool, gross uint64, feeBps uint16, minSharesOut uint64) (Quote, error) {
	if gross == 0 {
		return Quote{}, fmt.Errorf("%w: amount must be positive", model.ErrInvalidParameter)
	}
	fee, net, err := SplitFee(gross, feeBps)
	if err != nil {
		return Quote{}, err
	}

	in, out := p.YesReserve, p.NoReserve
	if !isYes {
		in, out = p.NoReserve, p.YesReserve
	}

	newIn, err := fixedpoint.Add64(in, net)
	if err != nil {
		return Quote{}, err
	}
	newOut, err := p.OutReserve(newIn)
	if err != nil {
		return Quote{}, err
	}
	if newOut >= out || newOut == 0 {
		return Quote{}, fmt.Errorf("%w: out reserve %d -> %d", model.ErrInsufficientLiquidity, out, newOut)
	}
	shares, err := fixedpoint.Sub64(out, newOut)
	if err != nil {
		return Quote{}, err
	}
	if shares < minSharesOut {
		return Quote{}, fmt.Errorf("%w: %d shares < minimum %d", model.ErrSlippageExceeded, shares, minSharesOut)
	}

	q := Quote{
		IsYes:     isYes,
		Gross:     gross,
		Fee:       fee,
		Net:       net,
		SharesOut: shares,
	}
	if isYes {
		q.NewYesReserve, q.NewNoReserve = newIn, newOut
	} else {
		q.NewYesReserve, q.NewNoReserve = newOut, newIn
	}
	return q, nil
}

// FillPrice is the average base units paid per share, gross of fee.
func (q Quote) FillPrice() decimal.Decimal {
	if q.SharesOut == 0 {
		return decimal.Zero
	}
	return model.DecimalFromUint64(q.Gross).DivRound(model.DecimalFromUint64(q.SharesOut), model.PriceScale)
}

// CheckInvariant reports whether the pool's reserves honour k: the de-scaled
// product never exceeds k/P², and at least one reserve is tight, meaning one
// more unit on it would push the product past k/P². After a buy only the
// output side is tight, since it was computed by rounding k down.
func CheckInvariant(p Pool) error {
	if p.YesReserve == 0 || p.NoReserve == 0 {
		return fmt.Errorf("%w: empty reserve", model.ErrInsufficientLiquidity)
	}
	target, err := fixedpoint.Div(p.K, precisionSq)
	if err != nil {
		return err
	}
	yes := fixedpoint.NewUint128(p.YesReserve)
	no := fixedpoint.NewUint128(p.NoReserve)
	product, err := fixedpoint.Mul(yes, no)
	if err != nil {
		return err
	}
	if product.Cmp(target) > 0 {
		return fmt.Errorf("cpmm: reserve product %s exceeds k/P² %s", product, target)
	}
	// Accept as soon as either side is within one unit of the exact quotient.
	for _, pair := range [][2]fixedpoint.Uint128{{yes, no}, {no, yes}} {
		bumped, err := fixedpoint.Add(pair[1], one)
		if err != nil {
			return err
		}
		upper, err := fixedpoint.Mul(pair[0], bumped)
		if err != nil {
			return err
		}
		if upper.Cmp(target) > 0 {
			return nil
		}
	}
	return fmt.Errorf("cpmm: reserves (%d, %d) drift more than one unit from k/P² %s", p.YesReserve, p.NoReserve, target)
}
