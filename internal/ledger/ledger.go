// Package ledger defines the custody ledger that holds real balances:
// user wallets, per-market vaults and the fee accumulator. The market
// engine only moves value through Apply; pool reserves are bookkeeping and
// never live here.
package ledger

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/atmx/binary-amm/internal/model"
)

// Transfer moves Amount base units from one account to another.
type Transfer struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

// Ledger is the custody interface.
type Ledger interface {
	// Apply executes the transfers in order as one atomic batch: either all
	// of them land or none do. A debit that exceeds the source balance fails
	// the batch with model.ErrInsufficientFunds.
	Apply(ctx context.Context, transfers ...Transfer) error

	// BalanceOf returns the balance of an account; unknown accounts hold 0.
	BalanceOf(ctx context.Context, account string) (uint64, error)
}

// Minter is implemented by ledgers that can create funds out of thin air.
// Only development deployments expose it.
type Minter interface {
	Credit(ctx context.Context, account string, amount uint64) error
}

const vaultPrefix = "vault:"

// VaultAccount names the custodial account backing a market.
func VaultAccount(marketID uint64) string {
	return vaultPrefix + strconv.FormatUint(marketID, 10)
}

// IsVault reports whether account is a market vault.
func IsVault(account string) bool {
	return strings.HasPrefix(account, vaultPrefix)
}

// Reverse returns the compensating batch for transfers: each leg swapped and
// the order inverted.
func Reverse(transfers []Transfer) []Transfer {
	out := make([]Transfer, len(transfers))
	for i, t := range transfers {
		out[len(transfers)-1-i] = Transfer{From: t.To, To: t.From, Amount: t.Amount}
	}
	return out
}

// validate rejects malformed legs. Zero-amount and self transfers are
// dropped rather than rejected.
func validate(transfers []Transfer) ([]Transfer, error) {
	out := transfers[:0:0]
	for _, t := range transfers {
		if t.From == "" || t.To == "" {
			return nil, fmt.Errorf("%w: transfer with empty account", model.ErrInvalidParameter)
		}
		if t.Amount == 0 || t.From == t.To {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}
