package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/atmx/binary-amm/internal/fixedpoint"
	"github.com/atmx/binary-amm/internal/model"
)

// MemoryLedger implements Ledger and Minter with an in-memory balance map.
// Used for testing and development.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[string]uint64
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{balances: make(map[string]uint64)}
}

func (l *MemoryLedger) Apply(_ context.Context, transfers ...Transfer) error {
	transfers, err := validate(transfers)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Stage every touched balance so a failing leg leaves the map untouched.
	staged := make(map[string]uint64)
	get := func(acct string) uint64 {
		if v, ok := staged[acct]; ok {
			return v
		}
		return l.balances[acct]
	}
	for _, t := range transfers {
		from := get(t.From)
		if from < t.Amount {
			return fmt.Errorf("%w: %s holds %d, needs %d", model.ErrInsufficientFunds, t.From, from, t.Amount)
		}
		to, err := fixedpoint.Add64(get(t.To), t.Amount)
		if err != nil {
			return fmt.Errorf("credit %s: %w", t.To, err)
		}
		staged[t.From] = from - t.Amount
		staged[t.To] = to
	}
	for acct, v := range staged {
		l.balances[acct] = v
	}
	return nil
}

func (l *MemoryLedger) BalanceOf(_ context.Context, account string) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[account], nil
}

// Credit mints amount into account.
func (l *MemoryLedger) Credit(_ context.Context, account string, amount uint64) error {
	if account == "" {
		return fmt.Errorf("%w: empty account", model.ErrInvalidParameter)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	next, err := fixedpoint.Add64(l.balances[account], amount)
	if err != nil {
		return err
	}
	l.balances[account] = next
	return nil
}
