package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// UserStake is a participant's position in a single market. Amounts are in
// the ledger's smallest unit. Claimed flips false -> true exactly once and is
// the sole guard against double payout; the ledger owns the flag.
type UserStake struct {
	MarketID    MarketID
	Participant common.Address
	YesAmount   *big.Int
	NoAmount    *big.Int
	Claimed     bool
}

// Amount returns the stake on the given side.
func (s UserStake) Amount(side Side) *big.Int {
	if side == SideYes {
		return s.YesAmount
	}
	return s.NoAmount
}

// Total returns YesAmount + NoAmount.
func (s UserStake) Total() *big.Int {
	return new(big.Int).Add(s.YesAmount, s.NoAmount)
}

// IsZero reports whether the participant has no stake on either side.
func (s UserStake) IsZero() bool {
	return s.YesAmount.Sign() == 0 && s.NoAmount.Sign() == 0
}
