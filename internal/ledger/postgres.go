package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atmx/binary-amm/internal/fixedpoint"
	"github.com/atmx/binary-amm/internal/model"
)

// PostgresLedger implements Ledger and Minter on the accounts table.
// Balances are NUMERIC(20,0) so the full uint64 range fits; they travel as
// strings in both directions.
type PostgresLedger struct {
	pool *pgxpool.Pool
}

// NewPostgresLedger creates a PostgreSQL-backed ledger. The accounts table
// is created by the store migrations.
func NewPostgresLedger(pool *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{pool: pool}
}

func (l *PostgresLedger) Apply(ctx context.Context, transfers ...Transfer) error {
	transfers, err := validate(transfers)
	if err != nil {
		return err
	}
	if len(transfers) == 0 {
		return nil
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin ledger tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	ids := accountIDs(transfers)
	if _, err := tx.Exec(ctx,
		`INSERT INTO accounts (id, balance)
		 SELECT unnest($1::TEXT[]), 0
		 ON CONFLICT (id) DO NOTHING`, ids); err != nil {
		return fmt.Errorf("ensure accounts: %w", err)
	}

	// Lock in id order so concurrent batches cannot deadlock.
	rows, err := tx.Query(ctx,
		`SELECT id, balance::TEXT FROM accounts
		 WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return fmt.Errorf("lock accounts: %w", err)
	}
	balances := make(map[string]uint64, len(ids))
	for rows.Next() {
		var id, balS string
		if err := rows.Scan(&id, &balS); err != nil {
			rows.Close()
			return err
		}
		bal, err := strconv.ParseUint(balS, 10, 64)
		if err != nil {
			rows.Close()
			return fmt.Errorf("account %s balance %q: %w", id, balS, err)
		}
		balances[id] = bal
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, t := range transfers {
		from := balances[t.From]
		if from < t.Amount {
			return fmt.Errorf("%w: %s holds %d, needs %d", model.ErrInsufficientFunds, t.From, from, t.Amount)
		}
		to, err := fixedpoint.Add64(balances[t.To], t.Amount)
		if err != nil {
			return fmt.Errorf("credit %s: %w", t.To, err)
		}
		balances[t.From] = from - t.Amount
		balances[t.To] = to
	}

	batch := &pgx.Batch{}
	for _, id := range ids {
		batch.Queue(`UPDATE accounts SET balance = $2::NUMERIC, updated_at = NOW() WHERE id = $1`,
			id, strconv.FormatUint(balances[id], 10))
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("update balances: %w", err)
	}
	return tx.Commit(ctx)
}

func (l *PostgresLedger) BalanceOf(ctx context.Context, account string) (uint64, error) {
	var balS string
	err := l.pool.QueryRow(ctx,
		`SELECT balance::TEXT FROM accounts WHERE id = $1`, account).Scan(&balS)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("balance of %s: %w", account, err)
	}
	return strconv.ParseUint(balS, 10, 64)
}

// Credit mints amount into account. The CHECK constraint on the table
// rejects balances beyond the uint64 range.
func (l *PostgresLedger) Credit(ctx context.Context, account string, amount uint64) error {
	if account == "" {
		return fmt.Errorf("%w: empty account", model.ErrInvalidParameter)
	}
	_, err := l.pool.Exec(ctx,
		`INSERT INTO accounts (id, balance) VALUES ($1, $2::NUMERIC)
		 ON CONFLICT (id) DO UPDATE
		 SET balance = accounts.balance + EXCLUDED.balance, updated_at = NOW()`,
		account, strconv.FormatUint(amount, 10))
	if err != nil {
		return fmt.Errorf("credit %s: %w", account, err)
	}
	return nil
}

func accountIDs(transfers []Transfer) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, t := range transfers {
		for _, id := range []string{t.From, t.To} {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	sort.Strings(ids)
	return ids
}
