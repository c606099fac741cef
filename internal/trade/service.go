// Package trade provides the business logic and HTTP handlers for creating
// markets, buying shares, resolving markets and settling claims.
//
// Every state-changing operation takes the caller identity explicitly, reads
// the persisted market config, and runs under the market's lock. Value moves
// through the ledger first; if the store write that follows fails, the
// ledger batch is reversed so a failed operation leaves no partial state.
package trade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/atmx/binary-amm/internal/cpmm"
	"github.com/atmx/binary-amm/internal/exposure"
	"github.com/atmx/binary-amm/internal/fixedpoint"
	"github.com/atmx/binary-amm/internal/ledger"
	"github.com/atmx/binary-amm/internal/listing"
	"github.com/atmx/binary-amm/internal/lock"
	"github.com/atmx/binary-amm/internal/metrics"
	"github.com/atmx/binary-amm/internal/model"
	"github.com/atmx/binary-amm/internal/settlement"
	"github.com/atmx/binary-amm/internal/store"
)

// DefaultClaimWindow is how long after resolution the residual sweep waits
// while winning shares remain unclaimed.
const DefaultClaimWindow = 720 * time.Hour

// Clock supplies the current time. Each operation reads it once.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// Archiver stores the settlement snapshot of a swept market.
type Archiver interface {
	Archive(ctx context.Context, snap *model.SettlementSnapshot) error
}

// Service handles market operations.
type Service struct {
	store       store.Store
	ledger      ledger.Ledger
	locker      lock.Locker
	limiter     *exposure.Limiter
	clock       Clock
	wsHub       *WSHub // optional WebSocket hub for real-time broadcasts
	archiver    Archiver
	minSeed     uint64
	claimWindow time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithLocker replaces the in-process market lock.
func WithLocker(l lock.Locker) Option { return func(s *Service) { s.locker = l } }

// WithLimiter enables exposure limits.
func WithLimiter(l *exposure.Limiter) Option { return func(s *Service) { s.limiter = l } }

// WithClock replaces the wall clock.
func WithClock(c Clock) Option { return func(s *Service) { s.clock = c } }

// WithHub enables WebSocket broadcasts.
func WithHub(h *WSHub) Option { return func(s *Service) { s.wsHub = h } }

// WithArchiver enables settlement snapshots after a sweep.
func WithArchiver(a Archiver) Option { return func(s *Service) { s.archiver = a } }

// WithMinSeed sets the smallest seed a market may be created with.
func WithMinSeed(v uint64) Option { return func(s *Service) { s.minSeed = v } }

// WithClaimWindow sets how long the sweep waits for unclaimed winners.
func WithClaimWindow(d time.Duration) Option { return func(s *Service) { s.claimWindow = d } }

// NewService creates a new trade service.
func NewService(st store.Store, led ledger.Ledger, opts ...Option) *Service {
	s := &Service{
		store:       st,
		ledger:      led,
		locker:      lock.NewKeyedMutex(),
		clock:       ClockFunc(func() time.Time { return time.Now().UTC() }),
		minSeed:     listing.DefaultMinSeed,
		claimWindow: DefaultClaimWindow,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// --- Results ---

// BuyRequest is the input to Buy.
type BuyRequest struct {
	MarketID     uint64 `json:"-"`
	IsYes        bool   `json:"is_yes"`
	Amount       uint64 `json:"amount"`
	MinSharesOut uint64 `json:"min_shares_out"`
}

// BuyResult is returned from a successful buy.
type BuyResult struct {
	Trade     model.TradeEvent `json:"trade"`
	Position  model.Position   `json:"position"`
	FillPrice string           `json:"fill_price"`
	PriceYes  string           `json:"price_yes"`
	PriceNo   string           `json:"price_no"`
}

// SweepResult is returned from a successful sweep.
type SweepResult struct {
	MarketID uint64    `json:"market_id"`
	Amount   uint64    `json:"amount"`
	SweptAt  time.Time `json:"swept_at"`
}

// --- Locking ---

const configLockKey = "config"

func marketLockKey(id uint64) string { return fmt.Sprintf("market:%d", id) }

func (s *Service) withLock(ctx context.Context, key string, fn func() error) error {
	unlock, err := s.locker.Lock(ctx, key)
	if err != nil {
		return fmt.Errorf("acquire %s: %w", key, err)
	}
	defer unlock()
	return fn()
}

// commit applies a ledger batch and then persists. If persisting fails the
// batch is reversed and the persist error returned.
func (s *Service) commit(ctx context.Context, batch []ledger.Transfer, persist func() error) error {
	if err := s.ledger.Apply(ctx, batch...); err != nil {
		return err
	}
	if err := persist(); err != nil {
		if rerr := s.ledger.Apply(context.WithoutCancel(ctx), ledger.Reverse(batch)...); rerr != nil {
			slog.Error("ledger compensation failed",
				"err", rerr, "persist_err", err, "transfers", batch)
			return errors.Join(err, rerr)
		}
		return err
	}
	return nil
}

// config loads the persisted market config.
func (s *Service) config(ctx context.Context) (*model.Config, error) {
	cfg, err := s.store.GetConfig(ctx)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func (s *Service) requireAuthority(ctx context.Context, caller string) (*model.Config, error) {
	cfg, err := s.config(ctx)
	if err != nil {
		return nil, err
	}
	if !cfg.IsAuthority(caller) {
		return nil, fmt.Errorf("%w: %q is not the market authority", model.ErrUnauthorized, caller)
	}
	return cfg, nil
}

// --- Operations ---

// Initialize persists the market config on first boot. An existing record is
// kept; differences from want are logged.
func (s *Service) Initialize(ctx context.Context, want model.Config) (*model.Config, error) {
	if want.Authority == "" || want.FeeAccumulatorRef == "" {
		return nil, fmt.Errorf("%w: authority and fee account are required", model.ErrInvalidParameter)
	}
	if uint64(want.FeeBps) >= fixedpoint.BpsDenominator {
		return nil, fmt.Errorf("%w: fee_bps %d must be below %d", model.ErrInvalidParameter, want.FeeBps, fixedpoint.BpsDenominator)
	}
	want.MarketCount = 0
	want.CreatedAt = s.clock.Now()

	var stored *model.Config
	err := s.withLock(ctx, configLockKey, func() error {
		var err error
		stored, err = s.store.InitConfig(ctx, &want)
		return err
	})
	if err != nil {
		return nil, err
	}

	if stored.Authority != want.Authority || stored.FeeBps != want.FeeBps || stored.FeeAccumulatorRef != want.FeeAccumulatorRef {
		slog.Warn("persisted market config differs from configuration; keeping persisted values",
			"authority", stored.Authority,
			"fee_bps", stored.FeeBps,
			"fee_account", stored.FeeAccumulatorRef,
		)
	}
	slog.Info("market config ready",
		"authority", stored.Authority,
		"fee_bps", stored.FeeBps,
		"market_count", stored.MarketCount,
	)
	return stored, nil
}

// CreateMarket lists a new market seeded by the authority.
func (s *Service) CreateMarket(ctx context.Context, caller string, l listing.Listing) (*model.Market, error) {
	if _, err := s.requireAuthority(ctx, caller); err != nil {
		return nil, err
	}
	now := s.clock.Now()
	l.Normalize()
	if err := l.Validate(now, s.minSeed); err != nil {
		return nil, err
	}
	pool, err := cpmm.NewPool(l.Seed)
	if err != nil {
		return nil, err
	}
	deposit, err := fixedpoint.Mul64(l.Seed, 2)
	if err != nil {
		return nil, err
	}

	market := &model.Market{
		ID:               l.ID,
		Question:         l.Question,
		Description:      l.Description,
		Category:         l.Category,
		Creator:          caller,
		ResolutionTime:   l.ResolutionTime.UTC(),
		CreatedAt:        now,
		InitialLiquidity: l.Seed,
		YesReserve:       pool.YesReserve,
		NoReserve:        pool.NoReserve,
		InvariantK:       pool.K,
	}

	err = s.withLock(ctx, configLockKey, func() error {
		return s.withLock(ctx, marketLockKey(l.ID), func() error {
			if _, err := s.store.GetMarket(ctx, l.ID); err == nil {
				return fmt.Errorf("%w: id %d", model.ErrMarketExists, l.ID)
			} else if !errors.Is(err, model.ErrMarketNotFound) {
				return err
			}
			if err := s.checkDuplicateQuestion(ctx, l.Question, now); err != nil {
				return err
			}
			batch := []ledger.Transfer{{From: caller, To: ledger.VaultAccount(l.ID), Amount: deposit}}
			return s.commit(ctx, batch, func() error {
				return s.store.CreateMarket(ctx, market)
			})
		})
	})
	if err != nil {
		return nil, err
	}

	metrics.ActiveMarkets.Inc()
	slog.Info("market created",
		"id", market.ID,
		"question", market.Question,
		"category", market.Category,
		"seed", l.Seed,
		"resolution_time", market.ResolutionTime,
	)
	s.broadcast(WSMessage{
		Type:     MsgMarketCreated,
		MarketID: market.ID,
		PriceYes: market.PriceYes().String(),
		PriceNo:  market.PriceNo().String(),
	}, now)
	return market, nil
}

func (s *Service) checkDuplicateQuestion(ctx context.Context, question string, now time.Time) error {
	markets, err := s.store.ListMarkets(ctx, store.MarketFilter{})
	if err != nil {
		return err
	}
	for i := range markets {
		m := &markets[i]
		if listing.Blocks(m, now) && listing.SimilarQuestion(question, m.Question) {
			return fmt.Errorf("%w: question too similar to market %d", model.ErrMarketExists, m.ID)
		}
	}
	return nil
}

// Buy mints shares on one side of a market for req.Amount base units.
func (s *Service) Buy(ctx context.Context, caller string, req BuyRequest) (*BuyResult, error) {
	if caller == "" {
		return nil, fmt.Errorf("%w: caller identity required", model.ErrUnauthorized)
	}
	if req.Amount == 0 {
		return nil, fmt.Errorf("%w: amount must be positive", model.ErrInvalidParameter)
	}
	side := model.SideName(req.IsYes)
	start := time.Now()

	var result *BuyResult
	err := s.withLock(ctx, marketLockKey(req.MarketID), func() error {
		cfg, err := s.config(ctx)
		if err != nil {
			return err
		}
		m, err := s.store.GetMarket(ctx, req.MarketID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		if m.Resolved {
			return fmt.Errorf("%w: market %d", model.ErrMarketAlreadyResolved, m.ID)
		}
		if !now.Before(m.ResolutionTime) {
			return fmt.Errorf("%w: market %d closed at %s", model.ErrMarketExpired, m.ID, m.ResolutionTime.Format(time.RFC3339))
		}

		pos, err := s.store.GetPosition(ctx, m.ID, caller)
		switch {
		case errors.Is(err, model.ErrPositionNotFound):
			pos = &model.Position{Owner: caller, MarketID: m.ID, CreatedAt: now}
		case err != nil:
			return err
		case pos.Claimed:
			return fmt.Errorf("%w: market %d", model.ErrAlreadyClaimed, m.ID)
		}

		if s.limiter.Enabled() {
			exposures, err := s.store.GetUserExposures(ctx, caller)
			if err != nil {
				return err
			}
			target := model.Exposure{MarketID: m.ID, Category: m.Category}
			if err := s.limiter.CheckLimit(target, req.Amount, exposures); err != nil {
				metrics.ExposureLimitRejections.Inc()
				return err
			}
		}

		q, err := cpmm.QuoteBuy(cpmm.PoolOf(m), req.IsYes, req.Amount, cfg.FeeBps, req.MinSharesOut)
		if err != nil {
			return err
		}

		next := *m
		next.YesReserve, next.NoReserve = q.NewYesReserve, q.NewNoReserve
		if next.TotalVolume, err = fixedpoint.Add64(m.TotalVolume, q.Gross); err != nil {
			return err
		}
		shares := fixedpoint.NewUint128(q.SharesOut)
		nextPos := *pos
		if req.IsYes {
			if next.TotalYesShares, err = fixedpoint.Add(m.TotalYesShares, shares); err != nil {
				return err
			}
			if nextPos.YesShares, err = fixedpoint.Add64(pos.YesShares, q.SharesOut); err != nil {
				return err
			}
		} else {
			if next.TotalNoShares, err = fixedpoint.Add(m.TotalNoShares, shares); err != nil {
				return err
			}
			if nextPos.NoShares, err = fixedpoint.Add64(pos.NoShares, q.SharesOut); err != nil {
				return err
			}
		}
		nextPos.UpdatedAt = now

		ev := &model.TradeEvent{
			ID:         uuid.New().String(),
			MarketID:   m.ID,
			User:       caller,
			IsYes:      req.IsYes,
			Gross:      q.Gross,
			Fee:        q.Fee,
			Net:        q.Net,
			Shares:     q.SharesOut,
			YesReserve: next.YesReserve,
			NoReserve:  next.NoReserve,
			Timestamp:  now,
		}

		batch := []ledger.Transfer{
			{From: caller, To: cfg.FeeAccumulatorRef, Amount: q.Fee},
			{From: caller, To: ledger.VaultAccount(m.ID), Amount: q.Net},
		}
		if err := s.commit(ctx, batch, func() error {
			return s.store.SaveTrade(ctx, &next, &nextPos, ev)
		}); err != nil {
			return err
		}

		result = &BuyResult{
			Trade:     *ev,
			Position:  nextPos,
			FillPrice: q.FillPrice().String(),
			PriceYes:  next.PriceYes().String(),
			PriceNo:   next.PriceNo().String(),
		}
		return nil
	})
	if err != nil {
		metrics.OperationErrors.WithLabelValues("buy", reason(err)).Inc()
		return nil, err
	}

	metrics.TradesTotal.WithLabelValues(side).Inc()
	metrics.TradeLatency.WithLabelValues(side).Observe(time.Since(start).Seconds())
	metrics.MarketVolume.WithLabelValues(side).Add(float64(result.Trade.Gross))
	metrics.FeesCollected.Add(float64(result.Trade.Fee))

	slog.Info("shares bought",
		"trade_id", result.Trade.ID,
		"market_id", req.MarketID,
		"user", caller,
		"side", side,
		"gross", result.Trade.Gross,
		"fee", result.Trade.Fee,
		"shares", result.Trade.Shares,
		"new_price_yes", result.PriceYes,
	)
	s.broadcast(WSMessage{
		Type:     MsgTradeExecuted,
		MarketID: req.MarketID,
		PriceYes: result.PriceYes,
		PriceNo:  result.PriceNo,
		Side:     side,
		Amount:   result.Trade.Gross,
		Shares:   result.Trade.Shares,
	}, result.Trade.Timestamp)
	return result, nil
}

// Resolve records the outcome of a market. It is one-way.
func (s *Service) Resolve(ctx context.Context, caller string, marketID uint64, outcomeYes bool) (*model.Market, error) {
	if _, err := s.requireAuthority(ctx, caller); err != nil {
		return nil, err
	}

	var resolved *model.Market
	err := s.withLock(ctx, marketLockKey(marketID), func() error {
		m, err := s.store.GetMarket(ctx, marketID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		if m.Resolved {
			return fmt.Errorf("%w: market %d", model.ErrMarketAlreadyResolved, m.ID)
		}
		if now.Before(m.ResolutionTime) {
			return fmt.Errorf("%w: market %d resolves at %s", model.ErrMarketNotYetExpired, m.ID, m.ResolutionTime.Format(time.RFC3339))
		}
		m.Resolved = true
		m.Outcome = &outcomeYes
		m.ResolvedAt = &now
		if err := s.store.SaveResolution(ctx, m); err != nil {
			return err
		}
		resolved = m
		return nil
	})
	if err != nil {
		metrics.OperationErrors.WithLabelValues("resolve", reason(err)).Inc()
		return nil, err
	}

	metrics.ActiveMarkets.Dec()
	slog.Info("market resolved",
		"market_id", marketID,
		"outcome", model.SideName(outcomeYes),
		"total_yes_shares", resolved.TotalYesShares.String(),
		"total_no_shares", resolved.TotalNoShares.String(),
	)
	s.broadcast(WSMessage{
		Type:     MsgMarketResolved,
		MarketID: marketID,
		Outcome:  model.SideName(outcomeYes),
	}, *resolved.ResolvedAt)
	return resolved, nil
}

// Claim pays the caller's pro-rata share of the vault for their winning
// shares and tombstones the position.
func (s *Service) Claim(ctx context.Context, caller string, marketID uint64) (*model.ClaimRecord, error) {
	if caller == "" {
		return nil, fmt.Errorf("%w: caller identity required", model.ErrUnauthorized)
	}

	var rec *model.ClaimRecord
	err := s.withLock(ctx, marketLockKey(marketID), func() error {
		m, err := s.store.GetMarket(ctx, marketID)
		if err != nil {
			return err
		}
		pos, err := s.store.GetPosition(ctx, marketID, caller)
		if errors.Is(err, model.ErrPositionNotFound) {
			pos = &model.Position{Owner: caller, MarketID: marketID}
		} else if err != nil {
			return err
		}

		vault := ledger.VaultAccount(marketID)
		balance, err := s.ledger.BalanceOf(ctx, vault)
		if err != nil {
			return err
		}
		c, err := settlement.ComputeClaim(m, pos, balance)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		nextMarket, nextPos := settlement.Apply(*m, *pos, c)
		nextPos.UpdatedAt = now
		r := &model.ClaimRecord{
			ID:            uuid.New().String(),
			MarketID:      marketID,
			User:          caller,
			WinningShares: c.WinningShares,
			Payout:        c.Payout,
			VaultBefore:   c.VaultBefore,
			Timestamp:     now,
		}

		batch := []ledger.Transfer{{From: vault, To: caller, Amount: c.Payout}}
		if err := s.commit(ctx, batch, func() error {
			return s.store.SaveClaim(ctx, &nextMarket, &nextPos, r)
		}); err != nil {
			return err
		}
		rec = r
		return nil
	})
	if err != nil {
		metrics.OperationErrors.WithLabelValues("claim", reason(err)).Inc()
		return nil, err
	}

	metrics.ClaimsTotal.Inc()
	metrics.PayoutsTotal.Add(float64(rec.Payout))
	slog.Info("winnings claimed",
		"claim_id", rec.ID,
		"market_id", marketID,
		"user", caller,
		"winning_shares", rec.WinningShares,
		"payout", rec.Payout,
		"vault_before", rec.VaultBefore,
	)
	s.broadcast(WSMessage{
		Type:     MsgWinningsClaimed,
		MarketID: marketID,
		User:     caller,
		Shares:   rec.WinningShares,
		Amount:   rec.Payout,
	}, rec.Timestamp)
	return rec, nil
}

// WithdrawFees moves amount from the fee accumulator to the authority and
// returns the accumulator's remaining balance.
func (s *Service) WithdrawFees(ctx context.Context, caller string, amount uint64) (uint64, error) {
	cfg, err := s.requireAuthority(ctx, caller)
	if err != nil {
		return 0, err
	}
	if amount == 0 {
		return 0, fmt.Errorf("%w: amount must be positive", model.ErrInvalidParameter)
	}

	var remaining uint64
	err = s.withLock(ctx, "fees", func() error {
		balance, err := s.ledger.BalanceOf(ctx, cfg.FeeAccumulatorRef)
		if err != nil {
			return err
		}
		if amount > balance {
			return fmt.Errorf("%w: fee accumulator holds %d, requested %d", model.ErrInsufficientFunds, balance, amount)
		}
		if err := s.ledger.Apply(ctx, ledger.Transfer{From: cfg.FeeAccumulatorRef, To: cfg.Authority, Amount: amount}); err != nil {
			return err
		}
		remaining = balance - amount
		return nil
	})
	if err != nil {
		metrics.OperationErrors.WithLabelValues("withdraw_fees", reason(err)).Inc()
		return 0, err
	}

	slog.Info("fees withdrawn", "amount", amount, "remaining", remaining, "to", cfg.Authority)
	return remaining, nil
}

// Sweep moves a resolved market's residual vault balance to the authority
// once every winning share is claimed or the claim window has elapsed.
func (s *Service) Sweep(ctx context.Context, caller string, marketID uint64) (*SweepResult, error) {
	cfg, err := s.requireAuthority(ctx, caller)
	if err != nil {
		return nil, err
	}

	var (
		res    *SweepResult
		market *model.Market
	)
	err = s.withLock(ctx, marketLockKey(marketID), func() error {
		m, err := s.store.GetMarket(ctx, marketID)
		if err != nil {
			return err
		}
		if !m.Resolved || m.Outcome == nil || m.ResolvedAt == nil {
			return fmt.Errorf("%w: market %d", model.ErrMarketNotResolved, m.ID)
		}
		vault := ledger.VaultAccount(marketID)
		balance, err := s.ledger.BalanceOf(ctx, vault)
		if err != nil {
			return err
		}
		if balance == 0 {
			return fmt.Errorf("%w: market %d vault is empty", model.ErrNoRemainingFunds, m.ID)
		}

		now := s.clock.Now()
		if !m.OutstandingShares(*m.Outcome).IsZero() {
			opens := m.ResolvedAt.Add(s.claimWindow)
			if now.Before(opens) {
				return fmt.Errorf("%w: %s winning shares unclaimed until %s",
					model.ErrClaimWindowOpen, m.OutstandingShares(*m.Outcome), opens.Format(time.RFC3339))
			}
		}

		if err := s.ledger.Apply(ctx, ledger.Transfer{From: vault, To: cfg.Authority, Amount: balance}); err != nil {
			return err
		}
		res = &SweepResult{MarketID: marketID, Amount: balance, SweptAt: now}
		market = m
		return nil
	})
	if err != nil {
		metrics.OperationErrors.WithLabelValues("sweep", reason(err)).Inc()
		return nil, err
	}

	metrics.SweptTotal.Add(float64(res.Amount))
	slog.Info("market swept", "market_id", marketID, "amount", res.Amount, "to", cfg.Authority)
	s.broadcast(WSMessage{Type: MsgMarketSwept, MarketID: marketID, Amount: res.Amount}, res.SweptAt)
	s.archive(ctx, market, res)
	return res, nil
}

// archive writes the settlement snapshot. Failures are logged only: the
// sweep has already committed.
func (s *Service) archive(ctx context.Context, m *model.Market, res *SweepResult) {
	if s.archiver == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	snap := &model.SettlementSnapshot{Market: *m, SweptAmount: res.Amount, SweptAt: res.SweptAt}
	var err error
	if snap.Trades, err = s.store.ListTrades(ctx, m.ID); err == nil {
		snap.Claims, err = s.store.ListClaims(ctx, m.ID)
	}
	if err == nil {
		err = s.archiver.Archive(ctx, snap)
	}
	if err != nil {
		metrics.ArchiveFailures.Inc()
		slog.Error("settlement archive failed", "market_id", m.ID, "err", err)
	}
}

func (s *Service) broadcast(msg WSMessage, at time.Time) {
	if s.wsHub == nil {
		return
	}
	msg.Timestamp = at
	s.wsHub.Broadcast(msg)
}

// reason is a low-cardinality label for an operation error.
func reason(err error) string {
	for _, e := range []struct {
		err   error
		label string
	}{
		{model.ErrUnauthorized, "unauthorized"},
		{model.ErrInvalidParameter, "invalid_parameter"},
		{model.ErrMarketNotFound, "market_not_found"},
		{model.ErrMarketExists, "market_exists"},
		{model.ErrMarketAlreadyResolved, "already_resolved"},
		{model.ErrMarketNotYetExpired, "not_yet_expired"},
		{model.ErrMarketExpired, "expired"},
		{model.ErrMarketNotResolved, "not_resolved"},
		{model.ErrInsufficientLiquidity, "insufficient_liquidity"},
		{model.ErrSlippageExceeded, "slippage"},
		{model.ErrExposureLimitExceeded, "exposure_limit"},
		{model.ErrOverflow, "overflow"},
		{model.ErrDivideByZero, "divide_by_zero"},
		{model.ErrAlreadyClaimed, "already_claimed"},
		{model.ErrNoWinningShares, "no_winning_shares"},
		{model.ErrInsufficientFunds, "insufficient_funds"},
		{model.ErrNoRemainingFunds, "no_remaining_funds"},
		{model.ErrClaimWindowOpen, "claim_window_open"},
	} {
		if errors.Is(err, e.err) {
			return e.label
		}
	}
	return "internal"
}
