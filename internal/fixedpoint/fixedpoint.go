// Package fixedpoint provides the overflow-checked integer arithmetic used by
// pricing and settlement. Nothing in this package wraps or saturates: every
// operation that cannot be represented returns ErrOverflow, and every division
// by zero returns ErrDivideByZero.
//
// 128-bit quantities are carried in holiman/uint256 words and bounded to 128
// bits after every operation, so intermediate products (a*b*precision) can use
// the full 256/512-bit range without losing precision.
package fixedpoint

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/holiman/uint256"
)

// Precision is the fixed-point scale (nine decimal digits). It never changes
// during a market's lifetime.
const Precision uint64 = 1_000_000_000

// BpsDenominator is the number of basis points in 100%.
const BpsDenominator uint64 = 10_000

var (
	// ErrOverflow is returned when a result does not fit its target width.
	ErrOverflow = errors.New("fixedpoint: arithmetic overflow")

	// ErrDivideByZero is returned for any division by zero.
	ErrDivideByZero = errors.New("fixedpoint: division by zero")
)

// --- u64 ---

// Add64 returns a+b.
func Add64(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrOverflow
	}
	return sum, nil
}

// Sub64 returns a-b; a result below zero is an overflow.
func Sub64(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, ErrOverflow
	}
	return diff, nil
}

// Mul64 returns a*b.
func Mul64(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, ErrOverflow
	}
	return lo, nil
}

// Bps returns amount*bps/10000 rounded down.
func Bps(amount uint64, bps uint16) (uint64, error) {
	if uint64(bps) >= BpsDenominator {
		return 0, fmt.Errorf("%w: %d bps", ErrOverflow, bps)
	}
	// amount*bps fits in 128 bits; the quotient is below amount.
	hi, lo := bits.Mul64(amount, uint64(bps))
	q, _ := bits.Div64(hi, lo, BpsDenominator)
	return q, nil
}

// --- u128 ---

// Uint128 is an unsigned integer bounded to 128 bits. The zero value is 0.
type Uint128 struct {
	n uint256.Int
}

// NewUint128 returns v as a Uint128.
func NewUint128(v uint64) Uint128 {
	var u Uint128
	u.n.SetUint64(v)
	return u
}

// ParseUint128 parses a base-10 string.
func ParseUint128(s string) (Uint128, error) {
	n, err := uint256.FromDecimal(s)
	if err != nil {
		return Uint128{}, fmt.Errorf("fixedpoint: parse %q: %w", s, err)
	}
	return bound(n)
}

// bound rejects values wider than 128 bits.
func bound(n *uint256.Int) (Uint128, error) {
	if n.BitLen() > 128 {
		return Uint128{}, ErrOverflow
	}
	return Uint128{n: *n}, nil
}

func (u Uint128) word() *uint256.Int {
	w := u.n
	return &w
}

// IsZero reports whether u == 0.
func (u Uint128) IsZero() bool { return u.n.IsZero() }

// Cmp returns -1, 0 or +1 as u is less than, equal to or greater than v.
func (u Uint128) Cmp(v Uint128) int { return u.word().Cmp(v.word()) }

// Uint64 narrows u to 64 bits.
func (u Uint128) Uint64() (uint64, error) {
	if !u.n.IsUint64() {
		return 0, ErrOverflow
	}
	return u.n.Uint64(), nil
}

// String returns the base-10 representation.
func (u Uint128) String() string { return u.word().Dec() }

// MarshalText encodes u as a base-10 string.
func (u Uint128) MarshalText() ([]byte, error) { return []byte(u.String()), nil }

// UnmarshalText decodes a base-10 string.
func (u *Uint128) UnmarshalText(b []byte) error {
	v, err := ParseUint128(string(b))
	if err != nil {
		return err
	}
	*u = v
	return nil
}

// Add returns a+b.
func Add(a, b Uint128) (Uint128, error) {
	z, over := new(uint256.Int).AddOverflow(a.word(), b.word())
	if over {
		return Uint128{}, ErrOverflow
	}
	return bound(z)
}

// Sub returns a-b; a result below zero is an overflow.
func Sub(a, b Uint128) (Uint128, error) {
	z, under := new(uint256.Int).SubOverflow(a.word(), b.word())
	if under {
		return Uint128{}, ErrOverflow
	}
	return bound(z)
}

// Mul returns a*b.
func Mul(a, b Uint128) (Uint128, error) {
	z, over := new(uint256.Int).MulOverflow(a.word(), b.word())
	if over {
		return Uint128{}, ErrOverflow
	}
	return bound(z)
}

// Div returns a/b rounded down.
func Div(a, b Uint128) (Uint128, error) {
	if b.IsZero() {
		return Uint128{}, ErrDivideByZero
	}
	return bound(new(uint256.Int).Div(a.word(), b.word()))
}

// MulDiv returns a*b/c rounded down, with a 512-bit intermediate product.
func MulDiv(a, b, c Uint128) (Uint128, error) {
	if c.IsZero() {
		return Uint128{}, ErrDivideByZero
	}
	z, over := new(uint256.Int).MulDivOverflow(a.word(), b.word(), c.word())
	if over {
		return Uint128{}, ErrOverflow
	}
	return bound(z)
}

// ScaledMulDiv returns a*b*precision/c rounded down. The product a*b must fit
// in 256 bits; the final multiply and divide use a 512-bit intermediate.
func ScaledMulDiv(a, b, c, precision Uint128) (Uint128, error) {
	if c.IsZero() {
		return Uint128{}, ErrDivideByZero
	}
	ab, over := new(uint256.Int).MulOverflow(a.word(), b.word())
	if over {
		return Uint128{}, ErrOverflow
	}
	z, over := new(uint256.Int).MulDivOverflow(ab, precision.word(), c.word())
	if over {
		return Uint128{}, ErrOverflow
	}
	return bound(z)
}
