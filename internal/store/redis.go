package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atmx/binary-amm/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for markets and config. Writes go to the primary store and then
// overwrite the cached copy; read misses fill the cache with SETNX so a slow
// reader can never replace a newer value written by a concurrent operation.
type CachedStore struct {
	primary Store
	rdb     redis.UniversalClient
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb redis.UniversalClient, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, refresh cache) ---

func (s *CachedStore) InitConfig(ctx context.Context, cfg *model.Config) (*model.Config, error) {
	stored, err := s.primary.InitConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s.rdb.Del(ctx, configKey)
	return stored, nil
}

func (s *CachedStore) CreateMarket(ctx context.Context, m *model.Market) error {
	if err := s.primary.CreateMarket(ctx, m); err != nil {
		return err
	}
	s.rdb.Del(ctx, configKey)
	s.storeMarket(ctx, m)
	return nil
}

func (s *CachedStore) SaveResolution(ctx context.Context, m *model.Market) error {
	if err := s.primary.SaveResolution(ctx, m); err != nil {
		return err
	}
	s.storeMarket(ctx, m)
	return nil
}

func (s *CachedStore) SaveTrade(ctx context.Context, m *model.Market, p *model.Position, e *model.TradeEvent) error {
	if err := s.primary.SaveTrade(ctx, m, p, e); err != nil {
		return err
	}
	s.storeMarket(ctx, m)
	return nil
}

func (s *CachedStore) SaveClaim(ctx context.Context, m *model.Market, p *model.Position, c *model.ClaimRecord) error {
	if err := s.primary.SaveClaim(ctx, m, p, c); err != nil {
		return err
	}
	s.storeMarket(ctx, m)
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetMarket(ctx context.Context, id uint64) (*model.Market, error) {
	// Try cache.
	data, err := s.rdb.Get(ctx, marketKey(id)).Bytes()
	if err == nil {
		var m model.Market
		if json.Unmarshal(data, &m) == nil {
			return &m, nil
		}
	}

	// Cache miss: read from primary.
	m, err := s.primary.GetMarket(ctx, id)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(m); err == nil {
		s.rdb.SetNX(ctx, marketKey(id), data, s.ttl)
	}
	return m, nil
}

func (s *CachedStore) GetConfig(ctx context.Context) (*model.Config, error) {
	data, err := s.rdb.Get(ctx, configKey).Bytes()
	if err == nil {
		var c model.Config
		if json.Unmarshal(data, &c) == nil {
			return &c, nil
		}
	}

	c, err := s.primary.GetConfig(ctx)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(c); err == nil {
		s.rdb.SetNX(ctx, configKey, data, s.ttl)
	}
	return c, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListMarkets(ctx context.Context, f MarketFilter) ([]model.Market, error) {
	return s.primary.ListMarkets(ctx, f)
}

func (s *CachedStore) GetPosition(ctx context.Context, marketID uint64, owner string) (*model.Position, error) {
	return s.primary.GetPosition(ctx, marketID, owner)
}

func (s *CachedStore) ListPositionsByUser(ctx context.Context, owner string) ([]model.Position, error) {
	return s.primary.ListPositionsByUser(ctx, owner)
}

func (s *CachedStore) GetUserExposures(ctx context.Context, owner string) ([]model.Exposure, error) {
	return s.primary.GetUserExposures(ctx, owner)
}

func (s *CachedStore) ListTrades(ctx context.Context, marketID uint64) ([]model.TradeEvent, error) {
	return s.primary.ListTrades(ctx, marketID)
}

func (s *CachedStore) ListClaims(ctx context.Context, marketID uint64) ([]model.ClaimRecord, error) {
	return s.primary.ListClaims(ctx, marketID)
}

// --- Cache helpers ---

// storeMarket overwrites the cached market after a committed write. If the
// write cannot land, the key is dropped so the next read goes to primary.
func (s *CachedStore) storeMarket(ctx context.Context, m *model.Market) {
	data, err := json.Marshal(m)
	if err == nil {
		err = s.rdb.Set(ctx, marketKey(m.ID), data, s.ttl).Err()
	}
	if err != nil {
		slog.Warn("market cache refresh failed", "market_id", m.ID, "error", err)
		s.rdb.Del(ctx, marketKey(m.ID))
	}
}

const configKey = "amm:config"

func marketKey(id uint64) string { return fmt.Sprintf("amm:market:%d", id) }
