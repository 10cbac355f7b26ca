package domain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Ledger is the boundary to the external pool contract. It is the single
// authoritative store for market and stake state; the engine only reads and
// requests transitions. Implementations must try an ordered list of endpoints
// and surface ErrRateLimited and ErrAlreadyResolved distinctly so callers can
// apply the right policy.
type Ledger interface {
	// ListOpenMarkets returns the ids of markets not yet resolved or cancelled.
	ListOpenMarkets(ctx context.Context) ([]MarketID, error)

	// ReadMarket returns the current status, pools, expiry, and winning side
	// (if set) for one market.
	ReadMarket(ctx context.Context, id MarketID) (Market, error)

	// SubmitResolve requests the active -> resolved transition. A ledger
	// rejection because the market is already resolved is returned as
	// ErrAlreadyResolved and must be treated as a benign race.
	SubmitResolve(ctx context.Context, id MarketID, side Side) (common.Hash, error)

	// SubmitCancel requests the active -> cancelled transition.
	SubmitCancel(ctx context.Context, id MarketID) (common.Hash, error)

	// ReadUserStake returns a participant's position in one market.
	ReadUserStake(ctx context.Context, id MarketID, participant common.Address) (UserStake, error)

	// ClaimPayout asks the ledger to pay out a participant's settled stake.
	// The ledger's claimed flag is the sole double-payout guard.
	ClaimPayout(ctx context.Context, id MarketID, participant common.Address) (*big.Int, error)
}
