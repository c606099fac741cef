package trade_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/atmx/binary-amm/internal/cpmm"
	"github.com/atmx/binary-amm/internal/exposure"
	"github.com/atmx/binary-amm/internal/fixedpoint"
	"github.com/atmx/binary-amm/internal/ledger"
	"github.com/atmx/binary-amm/internal/listing"
	"github.com/atmx/binary-amm/internal/model"
	"github.com/atmx/binary-amm/internal/store"
	"github.com/atmx/binary-amm/internal/trade"
)

const (
	authority = "operator"
	feeAcct   = "fees"
	seed      = 10_000_000
)

var t0 = time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	svc   *trade.Service
	st    *store.MemoryStore
	led   *ledger.MemoryLedger
	clock *fakeClock
}

// newTestEnv creates a Service over in-memory store and ledger with the
// authority funded and the config initialized at 200 bps.
func newTestEnv(t *testing.T, opts ...trade.Option) *testEnv {
	t.Helper()
	return newTestEnvWithStore(t, store.NewMemoryStore(), opts...)
}

func newTestEnvWithStore(t *testing.T, st store.Store, opts ...trade.Option) *testEnv {
	t.Helper()
	ctx := context.Background()
	led := ledger.NewMemoryLedger()
	clk := &fakeClock{now: t0}
	svc := trade.NewService(st, led, append([]trade.Option{trade.WithClock(clk)}, opts...)...)
	if _, err := svc.Initialize(ctx, model.Config{Authority: authority, FeeBps: 200, FeeAccumulatorRef: feeAcct}); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	fund(t, led, authority, 1_000_000_000_000)
	env := &testEnv{svc: svc, led: led, clock: clk}
	if ms, ok := st.(*store.MemoryStore); ok {
		env.st = ms
	}
	return env
}

func fund(t *testing.T, led *ledger.MemoryLedger, account string, amount uint64) {
	t.Helper()
	if err := led.Credit(context.Background(), account, amount); err != nil {
		t.Fatalf("credit %s: %v", account, err)
	}
}

func (e *testEnv) balance(t *testing.T, account string) uint64 {
	t.Helper()
	b, err := e.led.BalanceOf(context.Background(), account)
	if err != nil {
		t.Fatalf("balance %s: %v", account, err)
	}
	return b
}

func (e *testEnv) market(t *testing.T, id uint64) *model.Market {
	t.Helper()
	m, err := e.svc.Market(context.Background(), id)
	if err != nil {
		t.Fatalf("get market %d: %v", id, err)
	}
	return m
}

func testListing(id uint64, question string) listing.Listing {
	return listing.Listing{
		ID:             id,
		Question:       question,
		Description:    "Resolves YES if the launch happens before the deadline.",
		Category:       "space",
		ResolutionTime: t0.Add(24 * time.Hour),
		Seed:           seed,
	}
}

func (e *testEnv) createMarket(t *testing.T, id uint64, question string) *model.Market {
	t.Helper()
	m, err := e.svc.CreateMarket(context.Background(), authority, testListing(id, question))
	if err != nil {
		t.Fatalf("create market %d: %v", id, err)
	}
	return m
}

func (e *testEnv) buy(t *testing.T, user string, id uint64, isYes bool, amount uint64) *trade.BuyResult {
	t.Helper()
	res, err := e.svc.Buy(context.Background(), user, trade.BuyRequest{MarketID: id, IsYes: isYes, Amount: amount})
	if err != nil {
		t.Fatalf("%s buy %d on %d: %v", user, amount, id, err)
	}
	return res
}

func (e *testEnv) resolveAfterDeadline(t *testing.T, id uint64, outcomeYes bool) {
	t.Helper()
	e.clock.Advance(24 * time.Hour)
	if _, err := e.svc.Resolve(context.Background(), authority, id, outcomeYes); err != nil {
		t.Fatalf("resolve %d: %v", id, err)
	}
}

// --- Initialize ---

func TestInitialize_ExistingConfigWins(t *testing.T) {
	env := newTestEnv(t)
	cfg, err := env.svc.Initialize(context.Background(), model.Config{Authority: "someone-else", FeeBps: 50, FeeAccumulatorRef: "other"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Authority != authority || cfg.FeeBps != 200 || cfg.FeeAccumulatorRef != feeAcct {
		t.Errorf("persisted config should be kept, got %+v", cfg)
	}
}

func TestInitialize_RejectsFullFee(t *testing.T) {
	svc := trade.NewService(store.NewMemoryStore(), ledger.NewMemoryLedger())
	_, err := svc.Initialize(context.Background(), model.Config{Authority: authority, FeeBps: 10_000, FeeAccumulatorRef: feeAcct})
	if !errors.Is(err, model.ErrInvalidParameter) {
		t.Errorf("expected ErrInvalidParameter, got %v", err)
	}
}

// --- Market creation ---

func TestCreateMarket_SeedsPoolAndVault(t *testing.T) {
	env := newTestEnv(t)
	before := env.balance(t, authority)
	m := env.createMarket(t, 1, "Will the rocket launch?")

	if m.YesReserve != seed || m.NoReserve != seed {
		t.Errorf("expected reserves %d, got (%d,%d)", seed, m.YesReserve, m.NoReserve)
	}
	if err := cpmm.CheckInvariant(cpmm.PoolOf(m)); err != nil {
		t.Errorf("fresh market breaks invariant: %v", err)
	}
	if got := env.balance(t, ledger.VaultAccount(1)); got != 2*seed {
		t.Errorf("expected vault %d, got %d", 2*seed, got)
	}
	if got := before - env.balance(t, authority); got != 2*seed {
		t.Errorf("expected creator debited %d, got %d", 2*seed, got)
	}
	cfg, _ := env.svc.Config(context.Background())
	if cfg.MarketCount != 1 {
		t.Errorf("expected market_count 1, got %d", cfg.MarketCount)
	}
}

func TestCreateMarket_Rejections(t *testing.T) {
	env := newTestEnv(t)
	env.createMarket(t, 1, "Will the rocket launch?")

	past := testListing(3, "Will it rain tomorrow?")
	past.ResolutionTime = t0

	lowSeed := testListing(4, "Will it snow tomorrow?")
	lowSeed.Seed = seed - 1

	tests := []struct {
		name   string
		caller string
		l      listing.Listing
		want   error
	}{
		{"not authority", "alice", testListing(2, "Will gold hit a new high?"), model.ErrUnauthorized},
		{"duplicate id", authority, testListing(1, "Will gold hit a new high?"), model.ErrMarketExists},
		{"similar question", authority, testListing(2, "will the rocket launch"), model.ErrMarketExists},
		{"resolution not in future", authority, past, model.ErrInvalidParameter},
		{"seed below floor", authority, lowSeed, model.ErrInvalidParameter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := env.svc.CreateMarket(context.Background(), tt.caller, tt.l); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	cfg, _ := env.svc.Config(context.Background())
	if cfg.MarketCount != 1 {
		t.Errorf("rejected listings must not bump market_count, got %d", cfg.MarketCount)
	}
}

func TestCreateMarket_CreatorWithoutFunds(t *testing.T) {
	env := newTestEnv(t)
	if err := env.led.Apply(context.Background(), ledger.Transfer{From: authority, To: "elsewhere", Amount: env.balance(t, authority)}); err != nil {
		t.Fatalf("drain: %v", err)
	}
	_, err := env.svc.CreateMarket(context.Background(), authority, testListing(1, "Will the rocket launch?"))
	if !errors.Is(err, model.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if _, err := env.svc.Market(context.Background(), 1); !errors.Is(err, model.ErrMarketNotFound) {
		t.Errorf("market must not exist after failed funding, got %v", err)
	}
}

// --- Buy ---

func TestBuy_ReferenceScenario(t *testing.T) {
	env := newTestEnv(t)
	env.createMarket(t, 1, "Will the rocket launch?")
	fund(t, env.led, "alice", 10_000_000)

	res := env.buy(t, "alice", 1, true, 1_000_000)

	if res.Trade.Fee != 20_000 || res.Trade.Net != 980_000 {
		t.Errorf("expected fee=20000 net=980000, got fee=%d net=%d", res.Trade.Fee, res.Trade.Net)
	}
	if res.Trade.Shares != 892_532 {
		t.Errorf("expected 892532 shares, got %d", res.Trade.Shares)
	}
	m := env.market(t, 1)
	if m.YesReserve != 10_980_000 || m.NoReserve != 9_107_468 {
		t.Errorf("expected reserves (10980000, 9107468), got (%d, %d)", m.YesReserve, m.NoReserve)
	}
	if m.TotalVolume != 1_000_000 {
		t.Errorf("expected volume 1000000, got %d", m.TotalVolume)
	}
	if m.TotalYesShares.String() != "892532" {
		t.Errorf("expected outstanding YES 892532, got %s", m.TotalYesShares)
	}
	if res.Position.YesShares != 892_532 || res.Position.Owner != "alice" {
		t.Errorf("unexpected position %+v", res.Position)
	}

	if got := env.balance(t, feeAcct); got != 20_000 {
		t.Errorf("expected fee accumulator 20000, got %d", got)
	}
	if got := env.balance(t, ledger.VaultAccount(1)); got != 2*seed+980_000 {
		t.Errorf("expected vault %d, got %d", 2*seed+980_000, got)
	}
	if got := env.balance(t, "alice"); got != 9_000_000 {
		t.Errorf("expected alice 9000000, got %d", got)
	}
}

func TestBuy_SlippageLeavesNoTrace(t *testing.T) {
	env := newTestEnv(t)
	env.createMarket(t, 1, "Will the rocket launch?")
	fund(t, env.led, "alice", 10_000_000)

	_, err := env.svc.Buy(context.Background(), "alice", trade.BuyRequest{
		MarketID: 1, IsYes: true, Amount: 1_000_000, MinSharesOut: 892_533,
	})
	if !errors.Is(err, model.ErrSlippageExceeded) {
		t.Fatalf("expected ErrSlippageExceeded, got %v", err)
	}

	m := env.market(t, 1)
	if m.YesReserve != seed || m.NoReserve != seed || m.TotalVolume != 0 {
		t.Errorf("market changed after rejected buy: %+v", m)
	}
	if got := env.balance(t, "alice"); got != 10_000_000 {
		t.Errorf("alice balance changed: %d", got)
	}
	if got := env.balance(t, feeAcct); got != 0 {
		t.Errorf("fee charged on rejected buy: %d", got)
	}
	trades, _ := env.svc.Trades(context.Background(), 1)
	if len(trades) != 0 {
		t.Errorf("expected no trades, got %d", len(trades))
	}
}

func TestBuy_InsufficientFunds(t *testing.T) {
	env := newTestEnv(t)
	env.createMarket(t, 1, "Will the rocket launch?")
	fund(t, env.led, "alice", 999_999)

	_, err := env.svc.Buy(context.Background(), "alice", trade.BuyRequest{MarketID: 1, IsYes: true, Amount: 1_000_000})
	if !errors.Is(err, model.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if m := env.market(t, 1); m.YesReserve != seed || !m.TotalYesShares.IsZero() {
		t.Errorf("market changed after failed funding: %+v", m)
	}
	if _, err := env.st.GetPosition(context.Background(), 1, "alice"); !errors.Is(err, model.ErrPositionNotFound) {
		t.Errorf("position must not exist, got %v", err)
	}
}

func TestBuy_Rejections(t *testing.T) {
	env := newTestEnv(t)
	env.createMarket(t, 1, "Will the rocket launch?")
	fund(t, env.led, "alice", 10_000_000)
	ctx := context.Background()

	if _, err := env.svc.Buy(ctx, "alice", trade.BuyRequest{MarketID: 1, IsYes: true}); !errors.Is(err, model.ErrInvalidParameter) {
		t.Errorf("zero amount: expected ErrInvalidParameter, got %v", err)
	}
	if _, err := env.svc.Buy(ctx, "", trade.BuyRequest{MarketID: 1, IsYes: true, Amount: 1}); !errors.Is(err, model.ErrUnauthorized) {
		t.Errorf("anonymous: expected ErrUnauthorized, got %v", err)
	}
	if _, err := env.svc.Buy(ctx, "alice", trade.BuyRequest{MarketID: 42, IsYes: true, Amount: 1}); !errors.Is(err, model.ErrMarketNotFound) {
		t.Errorf("unknown market: expected ErrMarketNotFound, got %v", err)
	}
}

func TestBuy_ClosesAtResolutionTime(t *testing.T) {
	env := newTestEnv(t)
	env.createMarket(t, 1, "Will the rocket launch?")
	fund(t, env.led, "alice", 10_000_000)

	env.clock.Advance(24*time.Hour - time.Second)
	env.buy(t, "alice", 1, false, 100_000)

	env.clock.Advance(time.Second)
	_, err := env.svc.Buy(context.Background(), "alice", trade.BuyRequest{MarketID: 1, IsYes: false, Amount: 100_000})
	if !errors.Is(err, model.ErrMarketExpired) {
		t.Errorf("expected ErrMarketExpired at the deadline, got %v", err)
	}
}

func TestBuy_VolumeIsSumOfGross(t *testing.T) {
	env := newTestEnv(t)
	env.createMarket(t, 1, "Will the rocket launch?")
	fund(t, env.led, "alice", 100_000_000)

	amounts := []uint64{1_000_000, 37, 250_000, 3_333_333, 49}
	var gross, fees uint64
	for i, a := range amounts {
		res := env.buy(t, "alice", 1, i%2 == 0, a)
		gross += a
		fees += res.Trade.Fee
		m := env.market(t, 1)
		if m.TotalVolume != gross {
			t.Fatalf("after %d buys: volume %d, want %d", i+1, m.TotalVolume, gross)
		}
		if err := cpmm.CheckInvariant(cpmm.PoolOf(m)); err != nil {
			t.Fatalf("after %d buys: %v", i+1, err)
		}
	}
	if got := env.balance(t, feeAcct); got != fees {
		t.Errorf("fee accumulator %d, want %d", got, fees)
	}
	if got := env.balance(t, ledger.VaultAccount(1)); got != 2*seed+gross-fees {
		t.Errorf("vault %d, want %d", got, 2*seed+gross-fees)
	}
}

func TestBuy_ExposureLimit(t *testing.T) {
	env := newTestEnv(t, trade.WithLimiter(exposure.NewLimiter(1_500_000, 0)))
	env.createMarket(t, 1, "Will the rocket launch?")
	fund(t, env.led, "alice", 10_000_000)

	env.buy(t, "alice", 1, true, 1_000_000)
	_, err := env.svc.Buy(context.Background(), "alice", trade.BuyRequest{MarketID: 1, IsYes: false, Amount: 600_000})
	if !errors.Is(err, model.ErrExposureLimitExceeded) {
		t.Errorf("expected ErrExposureLimitExceeded, got %v", err)
	}
	env.buy(t, "alice", 1, false, 500_000)
}

func TestBuy_ConcurrentBuysSerialize(t *testing.T) {
	env := newTestEnv(t)
	env.createMarket(t, 1, "Will the rocket launch?")

	const n = 20
	for i := 0; i < n; i++ {
		fund(t, env.led, userName(i), 1_000_000)
	}
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := env.svc.Buy(context.Background(), userName(i), trade.BuyRequest{MarketID: 1, IsYes: i%3 != 0, Amount: 100_000})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent buy: %v", err)
		}
	}

	m := env.market(t, 1)
	if m.TotalVolume != n*100_000 {
		t.Errorf("expected volume %d, got %d", n*100_000, m.TotalVolume)
	}
	if err := cpmm.CheckInvariant(cpmm.PoolOf(m)); err != nil {
		t.Errorf("invariant after concurrent buys: %v", err)
	}
	trades, _ := env.svc.Trades(context.Background(), 1)
	if len(trades) != n {
		t.Errorf("expected %d trades, got %d", n, len(trades))
	}
}

func userName(i int) string {
	return "user-" + string(rune('a'+i))
}

// failingStore fails trade or claim writes after the ledger has moved funds.
type failingStore struct {
	*store.MemoryStore
	failTrades bool
	failClaims bool
}

var errDiskFull = errors.New("disk full")

func (s *failingStore) SaveTrade(ctx context.Context, m *model.Market, p *model.Position, ev *model.TradeEvent) error {
	if s.failTrades {
		return errDiskFull
	}
	return s.MemoryStore.SaveTrade(ctx, m, p, ev)
}

func (s *failingStore) SaveClaim(ctx context.Context, m *model.Market, p *model.Position, rec *model.ClaimRecord) error {
	if s.failClaims {
		return errDiskFull
	}
	return s.MemoryStore.SaveClaim(ctx, m, p, rec)
}

func TestBuy_StoreFailureReversesLedger(t *testing.T) {
	env := newTestEnvWithStore(t, &failingStore{MemoryStore: store.NewMemoryStore(), failTrades: true})
	env.createMarket(t, 1, "Will the rocket launch?")
	fund(t, env.led, "alice", 10_000_000)

	_, err := env.svc.Buy(context.Background(), "alice", trade.BuyRequest{MarketID: 1, IsYes: true, Amount: 1_000_000})
	if !errors.Is(err, errDiskFull) {
		t.Fatalf("expected store error, got %v", err)
	}
	if got := env.balance(t, "alice"); got != 10_000_000 {
		t.Errorf("alice should be refunded, got %d", got)
	}
	if got := env.balance(t, feeAcct); got != 0 {
		t.Errorf("fee should be reversed, got %d", got)
	}
	if got := env.balance(t, ledger.VaultAccount(1)); got != 2*seed {
		t.Errorf("vault should be restored, got %d", got)
	}
}

// --- Resolution ---

func TestResolve(t *testing.T) {
	env := newTestEnv(t)
	env.createMarket(t, 1, "Will the rocket launch?")
	ctx := context.Background()

	if _, err := env.svc.Resolve(ctx, "alice", 1, true); !errors.Is(err, model.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := env.svc.Resolve(ctx, authority, 1, true); !errors.Is(err, model.ErrMarketNotYetExpired) {
		t.Errorf("expected ErrMarketNotYetExpired, got %v", err)
	}

	env.clock.Advance(24 * time.Hour)
	m, err := env.svc.Resolve(ctx, authority, 1, false)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !m.Resolved || m.Outcome == nil || *m.Outcome || m.ResolvedAt == nil || !m.ResolvedAt.Equal(env.clock.Now()) {
		t.Errorf("unexpected resolved market: %+v", m)
	}

	if _, err := env.svc.Resolve(ctx, authority, 1, true); !errors.Is(err, model.ErrMarketAlreadyResolved) {
		t.Errorf("expected ErrMarketAlreadyResolved, got %v", err)
	}
	fund(t, env.led, "alice", 1_000)
	if _, err := env.svc.Buy(ctx, "alice", trade.BuyRequest{MarketID: 1, IsYes: true, Amount: 1_000}); !errors.Is(err, model.ErrMarketAlreadyResolved) {
		t.Errorf("buy after resolution: expected ErrMarketAlreadyResolved, got %v", err)
	}
	if m := env.market(t, 1); *m.Outcome {
		t.Error("outcome must not change once resolved")
	}
}

// --- Claims ---

func TestClaim_ProRataAcrossHolders(t *testing.T) {
	env := newTestEnv(t)
	env.createMarket(t, 1, "Will the rocket launch?")
	ctx := context.Background()
	for _, u := range []string{"alice", "bob", "carol"} {
		fund(t, env.led, u, 10_000_000)
	}
	a := env.buy(t, "alice", 1, true, 1_000_000)
	b := env.buy(t, "bob", 1, true, 3_000_000)
	env.buy(t, "carol", 1, false, 2_000_000)
	env.resolveAfterDeadline(t, 1, true)

	vault := env.balance(t, ledger.VaultAccount(1))
	total := a.Trade.Shares + b.Trade.Shares

	ra, err := env.svc.Claim(ctx, "alice", 1)
	if err != nil {
		t.Fatalf("alice claim: %v", err)
	}
	if want := a.Trade.Shares * vault / total; ra.Payout != want {
		t.Errorf("alice payout %d, want %d", ra.Payout, want)
	}
	rb, err := env.svc.Claim(ctx, "bob", 1)
	if err != nil {
		t.Fatalf("bob claim: %v", err)
	}
	if ra.Payout+rb.Payout != vault {
		t.Errorf("payouts %d + %d should drain vault %d", ra.Payout, rb.Payout, vault)
	}
	if got := env.balance(t, ledger.VaultAccount(1)); got != 0 {
		t.Errorf("expected empty vault, got %d", got)
	}
	if got := env.balance(t, "alice"); got != 9_000_000+ra.Payout {
		t.Errorf("alice balance %d, want %d", got, 9_000_000+ra.Payout)
	}

	if _, err := env.svc.Claim(ctx, "carol", 1); !errors.Is(err, model.ErrNoWinningShares) {
		t.Errorf("losing side: expected ErrNoWinningShares, got %v", err)
	}
	if _, err := env.svc.Claim(ctx, "dave", 1); !errors.Is(err, model.ErrNoWinningShares) {
		t.Errorf("no position: expected ErrNoWinningShares, got %v", err)
	}

	claims, _ := env.svc.Claims(ctx, 1)
	if len(claims) != 2 {
		t.Errorf("expected 2 claim records, got %d", len(claims))
	}
	if m := env.market(t, 1); !m.TotalYesShares.IsZero() {
		t.Errorf("outstanding YES should be zero, got %s", m.TotalYesShares)
	}
}

func TestClaim_SecondClaimIsRejected(t *testing.T) {
	env := newTestEnv(t)
	env.createMarket(t, 1, "Will the rocket launch?")
	fund(t, env.led, "alice", 10_000_000)
	env.buy(t, "alice", 1, true, 1_000_000)
	env.resolveAfterDeadline(t, 1, true)
	ctx := context.Background()

	if _, err := env.svc.Claim(ctx, "alice", 1); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	balance := env.balance(t, "alice")
	if _, err := env.svc.Claim(ctx, "alice", 1); !errors.Is(err, model.ErrAlreadyClaimed) {
		t.Errorf("expected ErrAlreadyClaimed, got %v", err)
	}
	if got := env.balance(t, "alice"); got != balance {
		t.Errorf("second claim moved funds: %d -> %d", balance, got)
	}
	pos, err := env.st.GetPosition(ctx, 1, "alice")
	if err != nil {
		t.Fatalf("get position: %v", err)
	}
	if !pos.Claimed || pos.YesShares != 0 {
		t.Errorf("expected tombstone, got %+v", pos)
	}
}

func TestClaim_BeforeResolution(t *testing.T) {
	env := newTestEnv(t)
	env.createMarket(t, 1, "Will the rocket launch?")
	fund(t, env.led, "alice", 10_000_000)
	env.buy(t, "alice", 1, true, 1_000_000)

	if _, err := env.svc.Claim(context.Background(), "alice", 1); !errors.Is(err, model.ErrMarketNotResolved) {
		t.Errorf("expected ErrMarketNotResolved, got %v", err)
	}
}

func TestClaim_StoreFailureReversesLedger(t *testing.T) {
	fs := &failingStore{MemoryStore: store.NewMemoryStore()}
	env := newTestEnvWithStore(t, fs)
	env.createMarket(t, 1, "Will the rocket launch?")
	fund(t, env.led, "alice", 10_000_000)
	bought := env.buy(t, "alice", 1, true, 1_000_000)
	env.resolveAfterDeadline(t, 1, true)
	ctx := context.Background()

	vault := env.balance(t, ledger.VaultAccount(1))
	wallet := env.balance(t, "alice")
	fs.failClaims = true

	if _, err := env.svc.Claim(ctx, "alice", 1); !errors.Is(err, errDiskFull) {
		t.Fatalf("expected store error, got %v", err)
	}
	if got := env.balance(t, ledger.VaultAccount(1)); got != vault {
		t.Errorf("vault should be restored to %d, got %d", vault, got)
	}
	if got := env.balance(t, "alice"); got != wallet {
		t.Errorf("alice should not be paid, balance %d -> %d", wallet, got)
	}
	pos, err := fs.GetPosition(ctx, 1, "alice")
	if err != nil {
		t.Fatalf("get position: %v", err)
	}
	if pos.Claimed || pos.YesShares != bought.Trade.Shares {
		t.Errorf("position should be untouched, got %+v", pos)
	}
	if m := env.market(t, 1); m.TotalYesShares.Cmp(fixedpoint.NewUint128(bought.Trade.Shares)) != 0 {
		t.Errorf("outstanding YES should be unchanged, got %s", m.TotalYesShares)
	}

	fs.failClaims = false
	rec, err := env.svc.Claim(ctx, "alice", 1)
	if err != nil {
		t.Fatalf("retry claim: %v", err)
	}
	if rec.Payout != vault {
		t.Errorf("retry should pay the whole vault %d, got %d", vault, rec.Payout)
	}
}

// --- Fees ---

func TestWithdrawFees(t *testing.T) {
	env := newTestEnv(t)
	env.createMarket(t, 1, "Will the rocket launch?")
	fund(t, env.led, "alice", 10_000_000)
	env.buy(t, "alice", 1, true, 1_000_000) // 20_000 fee
	ctx := context.Background()

	if _, err := env.svc.WithdrawFees(ctx, "alice", 1); !errors.Is(err, model.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := env.svc.WithdrawFees(ctx, authority, 20_001); !errors.Is(err, model.ErrInsufficientFunds) {
		t.Errorf("expected ErrInsufficientFunds, got %v", err)
	}
	if _, err := env.svc.WithdrawFees(ctx, authority, 0); !errors.Is(err, model.ErrInvalidParameter) {
		t.Errorf("expected ErrInvalidParameter, got %v", err)
	}

	before := env.balance(t, authority)
	remaining, err := env.svc.WithdrawFees(ctx, authority, 15_000)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if remaining != 5_000 || env.balance(t, feeAcct) != 5_000 {
		t.Errorf("expected 5000 remaining, got %d", remaining)
	}
	if got := env.balance(t, authority) - before; got != 15_000 {
		t.Errorf("authority received %d, want 15000", got)
	}
}

// --- Sweep ---

type recordingArchiver struct {
	mu    sync.Mutex
	snaps []*model.SettlementSnapshot
}

func (a *recordingArchiver) Archive(_ context.Context, s *model.SettlementSnapshot) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.snaps = append(a.snaps, s)
	return nil
}

func TestSweep_WaitsForClaimWindow(t *testing.T) {
	arch := &recordingArchiver{}
	env := newTestEnv(t, trade.WithClaimWindow(48*time.Hour), trade.WithArchiver(arch))
	env.createMarket(t, 1, "Will the rocket launch?")
	fund(t, env.led, "alice", 10_000_000)
	env.buy(t, "alice", 1, true, 1_000_000)
	ctx := context.Background()

	if _, err := env.svc.Sweep(ctx, authority, 1); !errors.Is(err, model.ErrMarketNotResolved) {
		t.Errorf("expected ErrMarketNotResolved, got %v", err)
	}
	env.resolveAfterDeadline(t, 1, true)

	if _, err := env.svc.Sweep(ctx, "alice", 1); !errors.Is(err, model.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := env.svc.Sweep(ctx, authority, 1); !errors.Is(err, model.ErrClaimWindowOpen) {
		t.Errorf("expected ErrClaimWindowOpen, got %v", err)
	}

	env.clock.Advance(48 * time.Hour)
	vault := env.balance(t, ledger.VaultAccount(1))
	before := env.balance(t, authority)
	res, err := env.svc.Sweep(ctx, authority, 1)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.Amount != vault || env.balance(t, authority)-before != vault {
		t.Errorf("expected %d swept to authority, got %d", vault, res.Amount)
	}
	if _, err := env.svc.Sweep(ctx, authority, 1); !errors.Is(err, model.ErrNoRemainingFunds) {
		t.Errorf("expected ErrNoRemainingFunds, got %v", err)
	}
	if _, err := env.svc.Claim(ctx, "alice", 1); !errors.Is(err, model.ErrNoWinningShares) {
		t.Errorf("claim against an empty vault: expected ErrNoWinningShares, got %v", err)
	}

	if len(arch.snaps) != 1 {
		t.Fatalf("expected 1 archived snapshot, got %d", len(arch.snaps))
	}
	snap := arch.snaps[0]
	if snap.Market.ID != 1 || snap.SweptAmount != vault || len(snap.Trades) != 1 {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
}

func TestSweep_NoWinnersIsImmediate(t *testing.T) {
	env := newTestEnv(t)
	env.createMarket(t, 1, "Will the rocket launch?")
	fund(t, env.led, "alice", 10_000_000)
	env.buy(t, "alice", 1, true, 1_000_000)
	env.resolveAfterDeadline(t, 1, false)

	res, err := env.svc.Sweep(context.Background(), authority, 1)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.Amount != 2*seed+980_000 {
		t.Errorf("expected whole vault swept, got %d", res.Amount)
	}
}

func TestSweep_RequiresResolutionTime(t *testing.T) {
	env := newTestEnv(t)
	env.createMarket(t, 1, "Will the rocket launch?")
	ctx := context.Background()
	env.clock.Advance(24 * time.Hour)

	yes := true
	m := env.market(t, 1)
	m.Resolved, m.Outcome, m.ResolvedAt = true, &yes, nil
	if err := env.st.SaveResolution(ctx, m); err != nil {
		t.Fatalf("save resolution: %v", err)
	}

	vault := env.balance(t, ledger.VaultAccount(1))
	if _, err := env.svc.Sweep(ctx, authority, 1); !errors.Is(err, model.ErrMarketNotResolved) {
		t.Errorf("expected ErrMarketNotResolved, got %v", err)
	}
	if got := env.balance(t, ledger.VaultAccount(1)); got != vault {
		t.Errorf("vault moved: %d -> %d", vault, got)
	}
}

// --- Portfolio ---

func TestPortfolio(t *testing.T) {
	env := newTestEnv(t)
	env.createMarket(t, 1, "Will the rocket launch?")
	env.createMarket(t, 2, "Will gold hit a new high?")
	fund(t, env.led, "alice", 10_000_000)
	env.buy(t, "alice", 1, true, 1_000_000)
	env.buy(t, "alice", 2, false, 500_000)
	env.buy(t, "alice", 2, false, 500_000)

	p, err := env.svc.Portfolio(context.Background(), "alice")
	if err != nil {
		t.Fatalf("portfolio: %v", err)
	}
	if len(p.Positions) != 2 {
		t.Fatalf("expected 2 positions, got %d", len(p.Positions))
	}
	if p.TotalCost != 2_000_000 {
		t.Errorf("expected total cost 2000000, got %d", p.TotalCost)
	}
	if p.WalletBalance != 8_000_000 {
		t.Errorf("expected wallet 8000000, got %d", p.WalletBalance)
	}
	if !p.TotalValue.IsPositive() {
		t.Errorf("expected positive mark-to-market value, got %s", p.TotalValue)
	}
}
