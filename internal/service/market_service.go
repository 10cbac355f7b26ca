// Package service contains thin query services between the HTTP handlers and
// the ledger gateway.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/predly/settler/internal/domain"
)

// MarketService serves market snapshots with a read-through cache. It exists
// for the API surface only; the resolution pass always reads the ledger
// directly.
type MarketService struct {
	ledger domain.Ledger
	cache  domain.MarketCache
	logger *slog.Logger
}

// NewMarketService creates a MarketService. The cache may be nil, in which
// case every read goes to the ledger.
func NewMarketService(ledger domain.Ledger, cache domain.MarketCache, logger *slog.Logger) *MarketService {
	return &MarketService{
		ledger: ledger,
		cache:  cache,
		logger: logger.With(slog.String("component", "markets")),
	}
}

// ListOpen returns the IDs of all unresolved markets.
func (s *MarketService) ListOpen(ctx context.Context) ([]domain.MarketID, error) {
	ids, err := s.ledger.ListOpenMarkets(ctx)
	if err != nil {
		return nil, fmt.Errorf("service: list open markets: %w", err)
	}
	return ids, nil
}

// Get returns a market snapshot, from cache when fresh enough.
func (s *MarketService) Get(ctx context.Context, id domain.MarketID) (domain.Market, error) {
	if s.cache != nil {
		market, err := s.cache.Get(ctx, id)
		if err == nil {
			return market, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "cache read failed",
				slog.Uint64("market_id", uint64(id)),
				slog.String("error", err.Error()),
			)
		}
	}

	market, err := s.ledger.ReadMarket(ctx, id)
	if err != nil {
		return domain.Market{}, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, market); err != nil {
			// Non-fatal: the next read goes to the ledger again.
			s.logger.WarnContext(ctx, "cache write failed",
				slog.Uint64("market_id", uint64(id)),
				slog.String("error", err.Error()),
			)
		}
	}
	return market, nil
}
