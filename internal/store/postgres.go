package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atmx/binary-amm/internal/fixedpoint"
	"github.com/atmx/binary-amm/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All amounts are stored as NUMERIC so that uint64 and 128-bit values fit
// exactly; they travel as decimal strings in both directions.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// --- Config ---

func (s *PostgresStore) GetConfig(ctx context.Context) (*model.Config, error) {
	var c model.Config
	var count string
	err := s.pool.QueryRow(ctx,
		`SELECT authority, market_count::TEXT, fee_bps, fee_accumulator_ref, created_at
		 FROM market_config WHERE id = 1`).
		Scan(&c.Authority, &count, &c.FeeBps, &c.FeeAccumulatorRef, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrConfigNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get config: %w", err)
	}
	var p numParser
	c.MarketCount = p.u64(count)
	return &c, p.err
}

func (s *PostgresStore) InitConfig(ctx context.Context, cfg *model.Config) (*model.Config, error) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO market_config (id, authority, market_count, fee_bps, fee_accumulator_ref, created_at)
		 VALUES (1, $1, 0, $2, $3, $4)
		 ON CONFLICT (id) DO NOTHING`,
		cfg.Authority, cfg.FeeBps, cfg.FeeAccumulatorRef, cfg.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("init config: %w", err)
	}
	return s.GetConfig(ctx)
}

// --- Markets ---

const marketColumns = `id::TEXT, question, description, category, creator,
	resolution_time, created_at,
	initial_liquidity::TEXT, yes_reserve::TEXT, no_reserve::TEXT, invariant_k::TEXT,
	total_volume::TEXT, resolved, outcome, resolved_at,
	total_yes_shares::TEXT, total_no_shares::TEXT`

func (s *PostgresStore) CreateMarket(ctx context.Context, m *model.Market) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx,
		`INSERT INTO markets (id, question, description, category, creator,
		                      resolution_time, created_at,
		                      initial_liquidity, yes_reserve, no_reserve, invariant_k,
		                      total_volume, resolved, total_yes_shares, total_no_shares)
		 VALUES ($1::NUMERIC, $2, $3, $4, $5, $6, $7,
		         $8::NUMERIC, $9::NUMERIC, $10::NUMERIC, $11::NUMERIC,
		         $12::NUMERIC, FALSE, $13::NUMERIC, $14::NUMERIC)
		 ON CONFLICT (id) DO NOTHING`,
		num(m.ID), m.Question, m.Description, m.Category, m.Creator,
		m.ResolutionTime, m.CreatedAt,
		num(m.InitialLiquidity), num(m.YesReserve), num(m.NoReserve), m.InvariantK.String(),
		num(m.TotalVolume), m.TotalYesShares.String(), m.TotalNoShares.String(),
	)
	if err != nil {
		return fmt.Errorf("insert market %d: %w", m.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", model.ErrMarketExists, m.ID)
	}

	tag, err = tx.Exec(ctx, `UPDATE market_config SET market_count = market_count + 1 WHERE id = 1`)
	if err != nil {
		return fmt.Errorf("bump market count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrConfigNotFound
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) GetMarket(ctx context.Context, id uint64) (*model.Market, error) {
	m, err := scanMarket(s.pool.QueryRow(ctx,
		`SELECT `+marketColumns+` FROM markets WHERE id = $1::NUMERIC`, num(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", model.ErrMarketNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get market %d: %w", id, err)
	}
	return m, nil
}

func (s *PostgresStore) ListMarkets(ctx context.Context, f MarketFilter) ([]model.Market, error) {
	var (
		where []string
		args  []any
	)
	if f.Category != "" {
		args = append(args, f.Category)
		where = append(where, fmt.Sprintf("category = $%d", len(args)))
	}
	if f.Resolved != nil {
		args = append(args, *f.Resolved)
		where = append(where, fmt.Sprintf("resolved = $%d", len(args)))
	}
	if !f.DueBy.IsZero() {
		args = append(args, f.DueBy)
		where = append(where, fmt.Sprintf("NOT resolved AND resolution_time <= $%d", len(args)))
	}
	q := `SELECT ` + marketColumns + ` FROM markets`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY id`

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	markets := []model.Market{}
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, err
		}
		markets = append(markets, *m)
	}
	return markets, rows.Err()
}

func (s *PostgresStore) SaveResolution(ctx context.Context, m *model.Market) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE markets SET resolved = $2, outcome = $3, resolved_at = $4
		 WHERE id = $1::NUMERIC`,
		num(m.ID), m.Resolved, m.Outcome, m.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("save resolution %d: %w", m.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", model.ErrMarketNotFound, m.ID)
	}
	return nil
}

// --- Positions ---

const positionColumns = `market_id::TEXT, owner, yes_shares::TEXT, no_shares::TEXT, claimed, created_at, updated_at`

func (s *PostgresStore) GetPosition(ctx context.Context, marketID uint64, owner string) (*model.Position, error) {
	p, err := scanPosition(s.pool.QueryRow(ctx,
		`SELECT `+positionColumns+` FROM positions WHERE market_id = $1::NUMERIC AND owner = $2`,
		num(marketID), owner))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: market %d owner %s", model.ErrPositionNotFound, marketID, owner)
	}
	if err != nil {
		return nil, fmt.Errorf("get position: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) ListPositionsByUser(ctx context.Context, owner string) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionColumns+` FROM positions WHERE owner = $1 ORDER BY market_id`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []model.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, *p)
	}
	return positions, rows.Err()
}

func (s *PostgresStore) GetUserExposures(ctx context.Context, owner string) ([]model.Exposure, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT t.market_id::TEXT, m.category, SUM(t.gross)::TEXT
		 FROM trades t
		 JOIN markets m ON m.id = t.market_id
		 WHERE t.user_id = $1
		 GROUP BY t.market_id, m.category
		 ORDER BY MIN(t.seq)`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exposures []model.Exposure
	for rows.Next() {
		var idS, grossS string
		var e model.Exposure
		if err := rows.Scan(&idS, &e.Category, &grossS); err != nil {
			return nil, err
		}
		var p numParser
		e.MarketID = p.u64(idS)
		e.Gross = p.u64(grossS)
		if p.err != nil {
			return nil, p.err
		}
		exposures = append(exposures, e)
	}
	return exposures, rows.Err()
}

// --- Immutable history ---

func (s *PostgresStore) SaveTrade(ctx context.Context, m *model.Market, p *model.Position, e *model.TradeEvent) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := updateMarketState(ctx, tx, m); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO positions (market_id, owner, yes_shares, no_shares, claimed, created_at, updated_at)
		 VALUES ($1::NUMERIC, $2, $3::NUMERIC, $4::NUMERIC, $5, $6, $7)
		 ON CONFLICT (market_id, owner) DO UPDATE
		 SET yes_shares = EXCLUDED.yes_shares, no_shares = EXCLUDED.no_shares,
		     claimed = EXCLUDED.claimed, updated_at = EXCLUDED.updated_at`,
		num(p.MarketID), p.Owner, num(p.YesShares), num(p.NoShares), p.Claimed, p.CreatedAt, p.UpdatedAt,
	); err != nil {
		return fmt.Errorf("upsert position: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO trades (id, market_id, user_id, is_yes, gross, fee, net, shares,
		                     yes_reserve, no_reserve, timestamp)
		 VALUES ($1, $2::NUMERIC, $3, $4, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC,
		         $9::NUMERIC, $10::NUMERIC, $11)`,
		e.ID, num(e.MarketID), e.User, e.IsYes, num(e.Gross), num(e.Fee), num(e.Net), num(e.Shares),
		num(e.YesReserve), num(e.NoReserve), e.Timestamp,
	); err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) ListTrades(ctx context.Context, marketID uint64) ([]model.TradeEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id::TEXT, market_id::TEXT, user_id, is_yes,
		        gross::TEXT, fee::TEXT, net::TEXT, shares::TEXT,
		        yes_reserve::TEXT, no_reserve::TEXT, timestamp
		 FROM trades WHERE market_id = $1::NUMERIC ORDER BY seq`, num(marketID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []model.TradeEvent
	for rows.Next() {
		var e model.TradeEvent
		var idS, grossS, feeS, netS, sharesS, yesS, noS string
		if err := rows.Scan(&e.ID, &idS, &e.User, &e.IsYes,
			&grossS, &feeS, &netS, &sharesS, &yesS, &noS, &e.Timestamp); err != nil {
			return nil, err
		}
		var p numParser
		e.MarketID = p.u64(idS)
		e.Gross = p.u64(grossS)
		e.Fee = p.u64(feeS)
		e.Net = p.u64(netS)
		e.Shares = p.u64(sharesS)
		e.YesReserve = p.u64(yesS)
		e.NoReserve = p.u64(noS)
		if p.err != nil {
			return nil, p.err
		}
		trades = append(trades, e)
	}
	return trades, rows.Err()
}

func (s *PostgresStore) SaveClaim(ctx context.Context, m *model.Market, p *model.Position, c *model.ClaimRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := updateMarketState(ctx, tx, m); err != nil {
		return err
	}
	tag, err := tx.Exec(ctx,
		`UPDATE positions SET yes_shares = $3::NUMERIC, no_shares = $4::NUMERIC,
		                      claimed = $5, updated_at = $6
		 WHERE market_id = $1::NUMERIC AND owner = $2`,
		num(p.MarketID), p.Owner, num(p.YesShares), num(p.NoShares), p.Claimed, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update position: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: market %d owner %s", model.ErrPositionNotFound, p.MarketID, p.Owner)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO claims (id, market_id, user_id, winning_shares, payout, vault_before, timestamp)
		 VALUES ($1, $2::NUMERIC, $3, $4::NUMERIC, $5::NUMERIC, $6::NUMERIC, $7)`,
		c.ID, num(c.MarketID), c.User, num(c.WinningShares), num(c.Payout), num(c.VaultBefore), c.Timestamp,
	); err != nil {
		return fmt.Errorf("insert claim: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) ListClaims(ctx context.Context, marketID uint64) ([]model.ClaimRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id::TEXT, market_id::TEXT, user_id,
		        winning_shares::TEXT, payout::TEXT, vault_before::TEXT, timestamp
		 FROM claims WHERE market_id = $1::NUMERIC ORDER BY seq`, num(marketID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var claims []model.ClaimRecord
	for rows.Next() {
		var c model.ClaimRecord
		var idS, winS, payS, vaultS string
		if err := rows.Scan(&c.ID, &idS, &c.User, &winS, &payS, &vaultS, &c.Timestamp); err != nil {
			return nil, err
		}
		var p numParser
		c.MarketID = p.u64(idS)
		c.WinningShares = p.u64(winS)
		c.Payout = p.u64(payS)
		c.VaultBefore = p.u64(vaultS)
		if p.err != nil {
			return nil, p.err
		}
		claims = append(claims, c)
	}
	return claims, rows.Err()
}

// --- Helpers ---

func updateMarketState(ctx context.Context, tx pgx.Tx, m *model.Market) error {
	tag, err := tx.Exec(ctx,
		`UPDATE markets
		 SET yes_reserve = $2::NUMERIC, no_reserve = $3::NUMERIC,
		     total_volume = $4::NUMERIC,
		     total_yes_shares = $5::NUMERIC, total_no_shares = $6::NUMERIC
		 WHERE id = $1::NUMERIC`,
		num(m.ID), num(m.YesReserve), num(m.NoReserve), num(m.TotalVolume),
		m.TotalYesShares.String(), m.TotalNoShares.String(),
	)
	if err != nil {
		return fmt.Errorf("update market %d: %w", m.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", model.ErrMarketNotFound, m.ID)
	}
	return nil
}

func scanMarket(row pgx.Row) (*model.Market, error) {
	var m model.Market
	var idS, initS, yesS, noS, kS, volS, totYesS, totNoS string
	if err := row.Scan(&idS, &m.Question, &m.Description, &m.Category, &m.Creator,
		&m.ResolutionTime, &m.CreatedAt,
		&initS, &yesS, &noS, &kS,
		&volS, &m.Resolved, &m.Outcome, &m.ResolvedAt,
		&totYesS, &totNoS); err != nil {
		return nil, err
	}
	var p numParser
	m.ID = p.u64(idS)
	m.InitialLiquidity = p.u64(initS)
	m.YesReserve = p.u64(yesS)
	m.NoReserve = p.u64(noS)
	m.InvariantK = p.u128(kS)
	m.TotalVolume = p.u64(volS)
	m.TotalYesShares = p.u128(totYesS)
	m.TotalNoShares = p.u128(totNoS)
	if p.err != nil {
		return nil, p.err
	}
	return &m, nil
}

func scanPosition(row pgx.Row) (*model.Position, error) {
	var pos model.Position
	var idS, yesS, noS string
	if err := row.Scan(&idS, &pos.Owner, &yesS, &noS, &pos.Claimed, &pos.CreatedAt, &pos.UpdatedAt); err != nil {
		return nil, err
	}
	var p numParser
	pos.MarketID = p.u64(idS)
	pos.YesShares = p.u64(yesS)
	pos.NoShares = p.u64(noS)
	if p.err != nil {
		return nil, p.err
	}
	return &pos, nil
}

func num(v uint64) string { return strconv.FormatUint(v, 10) }

// numParser parses NUMERIC text columns, keeping the first error.
type numParser struct{ err error }

func (p *numParser) u64(s string) uint64 {
	if p.err != nil {
		return 0
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		p.err = fmt.Errorf("parse numeric %q: %w", s, err)
	}
	return v
}

func (p *numParser) u128(s string) fixedpoint.Uint128 {
	if p.err != nil {
		return fixedpoint.Uint128{}
	}
	v, err := fixedpoint.ParseUint128(s)
	if err != nil {
		p.err = fmt.Errorf("parse numeric %q: %w", s, err)
	}
	return v
}
