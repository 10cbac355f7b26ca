// Package settle computes pari-mutuel payouts and refunds. All arithmetic is
// integer arithmetic in the ledger's smallest unit; every division truncates
// toward zero so rounding always favors the pool, never the claimant. That
// keeps sum(net payouts) + fees <= total pool and the ledger can never be
// driven negative by the last claim.
package settle

import (
	"fmt"
	"math/big"

	"github.com/predly/settler/internal/domain"
)

// feeDenominator converts basis points to a fraction.
var feeDenominator = big.NewInt(10_000)

// Payout computes the fee-adjusted amount owed to a winning participant:
//
//	gross = stake * (winningPool + losingPool) / winningPool
//	fee   = gross * feeBps / 10000
//	net   = gross - fee
//
// A zero stake is a no-op, not an error. A zero winning pool is a caller
// contract violation: the verdict upstream should have been CancelNoWinners,
// so this fails loudly instead of dividing by zero.
func Payout(stake, winningPool, losingPool *big.Int, feeBps int) (domain.SettlementResult, error) {
	if winningPool.Sign() == 0 {
		return domain.SettlementResult{}, fmt.Errorf("settle: payout with empty winning pool: %w", domain.ErrNoWinningPool)
	}
	if feeBps < 0 || feeBps >= 10_000 {
		return domain.SettlementResult{}, fmt.Errorf("settle: fee %d bps out of range [0, 10000)", feeBps)
	}

	if stake.Sign() == 0 {
		zero := new(big.Int)
		return domain.SettlementResult{
			Kind:  domain.SettlementWin,
			Gross: zero,
			Fee:   new(big.Int),
			Net:   new(big.Int),
		}, nil
	}

	totalPool := new(big.Int).Add(winningPool, losingPool)

	gross := new(big.Int).Mul(stake, totalPool)
	gross.Quo(gross, winningPool)

	fee := new(big.Int).Mul(gross, big.NewInt(int64(feeBps)))
	fee.Quo(fee, feeDenominator)

	net := new(big.Int).Sub(gross, fee)

	return domain.SettlementResult{
		Kind:  domain.SettlementWin,
		Gross: gross,
		Fee:   fee,
		Net:   net,
	}, nil
}

// Refund returns the participant's full stake on both sides, with no fee.
// Used for CancelNoWinners and administrator-cancelled markets.
func Refund(stake domain.UserStake) domain.SettlementResult {
	return domain.SettlementResult{
		Kind:   domain.SettlementRefund,
		Refund: stake.Total(),
	}
}

// ForVerdict computes the settlement owed to one participant given the final
// market state. It mirrors the ledger's claim validation: the market must be
// terminal, the stake unclaimed and non-zero.
func ForVerdict(market domain.Market, stake domain.UserStake, feeBps int) (domain.SettlementResult, error) {
	switch market.Status {
	case domain.MarketStatusCancelled:
		if stake.IsZero() {
			return domain.SettlementResult{}, domain.ErrZeroStake
		}
		return Refund(stake), nil
	case domain.MarketStatusResolved:
		if market.Winner == nil {
			return domain.SettlementResult{}, fmt.Errorf("settle: resolved market %d has no winning side", market.ID)
		}
		winner := *market.Winner
		won := stake.Amount(winner)
		if won.Sign() == 0 {
			// Losing-side-only stake on a resolved market pays nothing; zero
			// stake on both sides is a distinct rejection.
			if stake.IsZero() {
				return domain.SettlementResult{}, domain.ErrZeroStake
			}
			return domain.SettlementResult{
				Kind:  domain.SettlementWin,
				Gross: new(big.Int),
				Fee:   new(big.Int),
				Net:   new(big.Int),
			}, nil
		}
		return Payout(won, market.Pool(winner), market.Pool(winner.Opposite()), feeBps)
	default:
		return domain.SettlementResult{}, domain.ErrMarketOpen
	}
}
