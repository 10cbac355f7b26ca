package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/predly/settler/internal/domain"
	"github.com/predly/settler/internal/settle"
)

// ClaimService settles individual claims against resolved markets. It is
// invoked on demand by participants, never by the scheduled pass; the pool
// snapshot it reads is final and immutable, so results are recomputed per
// request instead of stored.
type ClaimService struct {
	ledger domain.Ledger
	feeBps int
	logger *slog.Logger
}

// NewClaimService creates a ClaimService with the configured fee.
func NewClaimService(ledger domain.Ledger, feeBps int, logger *slog.Logger) *ClaimService {
	return &ClaimService{
		ledger: ledger,
		feeBps: feeBps,
		logger: logger.With(slog.String("component", "claims")),
	}
}

// Preview computes what a participant would receive without touching the
// ledger's claimed flag. Unresolved markets, already-claimed stakes, and zero
// stakes are clear rejections, never a zero or garbage payout.
func (s *ClaimService) Preview(ctx context.Context, id domain.MarketID, participant common.Address) (domain.SettlementResult, error) {
	market, err := s.ledger.ReadMarket(ctx, id)
	if err != nil {
		return domain.SettlementResult{}, fmt.Errorf("engine: claim preview: %w", err)
	}
	stake, err := s.ledger.ReadUserStake(ctx, id, participant)
	if err != nil {
		return domain.SettlementResult{}, fmt.Errorf("engine: claim preview: %w", err)
	}
	if stake.Claimed {
		return domain.SettlementResult{}, domain.ErrAlreadyClaimed
	}
	return settle.ForVerdict(market, stake, s.feeBps)
}

// Execute validates the claim locally, then asks the ledger to pay out. The
// ledger's claimed flag remains the sole double-payout guard; a mismatch
// between our computation and the ledger's amount is logged for operators.
func (s *ClaimService) Execute(ctx context.Context, id domain.MarketID, participant common.Address) (*big.Int, error) {
	expected, err := s.Preview(ctx, id, participant)
	if err != nil {
		return nil, err
	}

	amount, err := s.ledger.ClaimPayout(ctx, id, participant)
	if err != nil {
		return nil, fmt.Errorf("engine: execute claim: %w", err)
	}

	if amount.Cmp(expected.Owed()) != 0 {
		s.logger.WarnContext(ctx, "ledger payout differs from computed settlement",
			slog.Uint64("market_id", uint64(id)),
			slog.String("participant", participant.Hex()),
			slog.String("ledger_amount", amount.String()),
			slog.String("computed_amount", expected.Owed().String()),
		)
	}
	return amount, nil
}
