package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/atmx/binary-amm/internal/model"
)

type positionKey struct {
	marketID uint64
	owner    string
}

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu        sync.RWMutex
	config    *model.Config
	markets   map[uint64]*model.Market
	positions map[positionKey]*model.Position
	trades    []model.TradeEvent
	claims    []model.ClaimRecord
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		markets:   make(map[uint64]*model.Market),
		positions: make(map[positionKey]*model.Position),
	}
}

func (s *MemoryStore) GetConfig(_ context.Context) (*model.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.config == nil {
		return nil, model.ErrConfigNotFound
	}
	cfg := *s.config
	return &cfg, nil
}

func (s *MemoryStore) InitConfig(_ context.Context, cfg *model.Config) (*model.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.config == nil {
		stored := *cfg
		s.config = &stored
	}
	out := *s.config
	return &out, nil
}

func (s *MemoryStore) CreateMarket(_ context.Context, m *model.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.config == nil {
		return model.ErrConfigNotFound
	}
	if _, ok := s.markets[m.ID]; ok {
		return fmt.Errorf("%w: id %d", model.ErrMarketExists, m.ID)
	}

	// Store a copy to avoid external mutation.
	s.markets[m.ID] = cloneMarket(m)
	s.config.MarketCount++
	return nil
}

func (s *MemoryStore) GetMarket(_ context.Context, id uint64) (*model.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.markets[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", model.ErrMarketNotFound, id)
	}
	return cloneMarket(m), nil
}

func (s *MemoryStore) ListMarkets(_ context.Context, f MarketFilter) ([]model.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	markets := make([]model.Market, 0, len(s.markets))
	for _, m := range s.markets {
		if f.match(m) {
			markets = append(markets, *cloneMarket(m))
		}
	}
	sort.Slice(markets, func(i, j int) bool { return markets[i].ID < markets[j].ID })
	return markets, nil
}

func (s *MemoryStore) SaveResolution(_ context.Context, m *model.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.markets[m.ID]
	if !ok {
		return fmt.Errorf("%w: id %d", model.ErrMarketNotFound, m.ID)
	}
	next, in := cloneMarket(cur), cloneMarket(m)
	next.Resolved, next.Outcome, next.ResolvedAt = in.Resolved, in.Outcome, in.ResolvedAt
	s.markets[m.ID] = next
	return nil
}

func (s *MemoryStore) GetPosition(_ context.Context, marketID uint64, owner string) (*model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.positions[positionKey{marketID, owner}]
	if !ok {
		return nil, fmt.Errorf("%w: market %d owner %s", model.ErrPositionNotFound, marketID, owner)
	}
	out := *p
	return &out, nil
}

func (s *MemoryStore) ListPositionsByUser(_ context.Context, owner string) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Position
	for k, p := range s.positions {
		if k.owner == owner {
			result = append(result, *p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].MarketID < result[j].MarketID })
	return result, nil
}

// GetUserExposures aggregates the user's trades into gross spend per market
// (single lock, no re-entrant calls).
func (s *MemoryStore) GetUserExposures(_ context.Context, owner string) ([]model.Exposure, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agg := make(map[uint64]*model.Exposure)
	var order []uint64
	for _, e := range s.trades {
		if e.User != owner {
			continue
		}
		x, ok := agg[e.MarketID]
		if !ok {
			x = &model.Exposure{MarketID: e.MarketID}
			if m := s.markets[e.MarketID]; m != nil {
				x.Category = m.Category
			}
			agg[e.MarketID] = x
			order = append(order, e.MarketID)
		}
		x.Gross += e.Gross
	}

	exposures := make([]model.Exposure, 0, len(order))
	for _, id := range order {
		exposures = append(exposures, *agg[id])
	}
	return exposures, nil
}

func (s *MemoryStore) SaveTrade(_ context.Context, m *model.Market, p *model.Position, ev *model.TradeEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.markets[m.ID]; !ok {
		return fmt.Errorf("%w: id %d", model.ErrMarketNotFound, m.ID)
	}
	s.markets[m.ID] = cloneMarket(m)
	pos := *p
	s.positions[positionKey{p.MarketID, p.Owner}] = &pos
	s.trades = append(s.trades, *ev)
	return nil
}

func (s *MemoryStore) ListTrades(_ context.Context, marketID uint64) ([]model.TradeEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.TradeEvent
	for _, e := range s.trades {
		if e.MarketID == marketID {
			result = append(result, e)
		}
	}
	return result, nil
}

func (s *MemoryStore) SaveClaim(_ context.Context, m *model.Market, p *model.Position, rec *model.ClaimRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.markets[m.ID]; !ok {
		return fmt.Errorf("%w: id %d", model.ErrMarketNotFound, m.ID)
	}
	key := positionKey{p.MarketID, p.Owner}
	if _, ok := s.positions[key]; !ok {
		return fmt.Errorf("%w: market %d owner %s", model.ErrPositionNotFound, p.MarketID, p.Owner)
	}
	s.markets[m.ID] = cloneMarket(m)
	pos := *p
	s.positions[key] = &pos
	s.claims = append(s.claims, *rec)
	return nil
}

func (s *MemoryStore) ListClaims(_ context.Context, marketID uint64) ([]model.ClaimRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.ClaimRecord
	for _, c := range s.claims {
		if c.MarketID == marketID {
			result = append(result, c)
		}
	}
	return result, nil
}

// cloneMarket copies m including the values behind its pointer fields.
func cloneMarket(m *model.Market) *model.Market {
	out := *m
	if m.Outcome != nil {
		o := *m.Outcome
		out.Outcome = &o
	}
	if m.ResolvedAt != nil {
		t := *m.ResolvedAt
		out.ResolvedAt = &t
	}
	return &out
}
