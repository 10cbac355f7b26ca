package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/predly/settler/internal/domain"
)

// marketTTL keeps API reads cheap without serving long-stale pool totals.
// The resolution pass bypasses this cache entirely.
const marketTTL = 30 * time.Second

// MarketCache implements domain.MarketCache using Redis strings with JSON-
// serialized market snapshots.
//
// Key schema:
//
//	settler:market:{id} - JSON snapshot
type MarketCache struct {
	rdb *redis.Client
}

// NewMarketCache creates a MarketCache backed by the given Client.
func NewMarketCache(c *Client) *MarketCache {
	return &MarketCache{rdb: c.Underlying()}
}

func marketKey(id domain.MarketID) string {
	return "settler:market:" + strconv.FormatUint(uint64(id), 10)
}

// cachedMarket carries pools as decimal strings so amounts round-trip without
// float precision loss.
type cachedMarket struct {
	ID        domain.MarketID      `json:"id"`
	Question  string               `json:"question"`
	ExpiresAt time.Time            `json:"expires_at"`
	YesPool   string               `json:"yes_pool"`
	NoPool    string               `json:"no_pool"`
	Status    domain.MarketStatus  `json:"status"`
	Winner    *domain.Side         `json:"winner,omitempty"`
}

func toCached(m domain.Market) cachedMarket {
	return cachedMarket{
		ID:        m.ID,
		Question:  m.Question,
		ExpiresAt: m.ExpiresAt,
		YesPool:   m.YesPool.String(),
		NoPool:    m.NoPool.String(),
		Status:    m.Status,
		Winner:    m.Winner,
	}
}

func fromCached(c cachedMarket) (domain.Market, error) {
	yes, ok := new(big.Int).SetString(c.YesPool, 10)
	if !ok {
		return domain.Market{}, fmt.Errorf("bad yes pool %q", c.YesPool)
	}
	no, ok := new(big.Int).SetString(c.NoPool, 10)
	if !ok {
		return domain.Market{}, fmt.Errorf("bad no pool %q", c.NoPool)
	}
	return domain.Market{
		ID:        c.ID,
		Question:  c.Question,
		ExpiresAt: c.ExpiresAt,
		YesPool:   yes,
		NoPool:    no,
		Status:    c.Status,
		Winner:    c.Winner,
	}, nil
}

// Set stores a market snapshot with a short TTL.
func (mc *MarketCache) Set(ctx context.Context, market domain.Market) error {
	data, err := json.Marshal(toCached(market))
	if err != nil {
		return fmt.Errorf("redis: marshal market %d: %w", market.ID, err)
	}
	if err := mc.rdb.Set(ctx, marketKey(market.ID), data, marketTTL).Err(); err != nil {
		return fmt.Errorf("redis: set market %d: %w", market.ID, err)
	}
	return nil
}

// Get retrieves a market snapshot by ID.
// It returns domain.ErrNotFound when the key does not exist.
func (mc *MarketCache) Get(ctx context.Context, id domain.MarketID) (domain.Market, error) {
	data, err := mc.rdb.Get(ctx, marketKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("redis: get market %d: %w", id, err)
	}

	var cached cachedMarket
	if err := json.Unmarshal(data, &cached); err != nil {
		return domain.Market{}, fmt.Errorf("redis: unmarshal market %d: %w", id, err)
	}
	market, err := fromCached(cached)
	if err != nil {
		return domain.Market{}, fmt.Errorf("redis: unmarshal market %d: %w", id, err)
	}
	return market, nil
}

// Invalidate removes a market snapshot; used after a settle or cancel so API
// reads do not serve a pre-resolution snapshot for up to the full TTL.
func (mc *MarketCache) Invalidate(ctx context.Context, id domain.MarketID) error {
	if err := mc.rdb.Del(ctx, marketKey(id)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate market %d: %w", id, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.MarketCache = (*MarketCache)(nil)
