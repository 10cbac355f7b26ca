package domain

import (
	"math/big"
	"time"
)

// MarketID identifies a market on the pool contract.
type MarketID uint64

// Side is one of the two outcomes of a binary market.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// Opposite returns the other side of a binary market.
func (s Side) Opposite() Side {
	if s == SideYes {
		return SideNo
	}
	return SideYes
}

// MarketStatus is the lifecycle state of a market as recorded on the ledger.
// Transitions are one-way: active -> resolved or active -> cancelled. The
// "ended" phase is derived from the expiry time, never written.
type MarketStatus string

const (
	MarketStatusActive    MarketStatus = "active"
	MarketStatusResolved  MarketStatus = "resolved"
	MarketStatusCancelled MarketStatus = "cancelled"
)

// MarketPhase refines MarketStatus with the time-derived ended phase. It is
// what the engine reasons about when selecting markets for resolution.
type MarketPhase string

const (
	PhaseActive    MarketPhase = "active"
	PhaseEnded     MarketPhase = "ended"
	PhaseResolved  MarketPhase = "resolved"
	PhaseCancelled MarketPhase = "cancelled"
)

// Market is a binary prediction market read from the ledger. Pool totals are
// denominated in the ledger's smallest unit (wei) and are immutable once the
// status leaves active.
type Market struct {
	ID        MarketID
	Question  string
	ExpiresAt time.Time
	YesPool   *big.Int
	NoPool    *big.Int
	Status    MarketStatus
	Winner    *Side // set only when Status is resolved
}

// Phase derives the lifecycle phase at the given instant. A market whose
// expiry has passed but which the ledger still reports as active is in the
// ended phase: eligible for resolution, not for staking.
func (m Market) Phase(now time.Time) MarketPhase {
	switch m.Status {
	case MarketStatusResolved:
		return PhaseResolved
	case MarketStatusCancelled:
		return PhaseCancelled
	}
	if !now.Before(m.ExpiresAt) {
		return PhaseEnded
	}
	return PhaseActive
}

// TotalPool returns YesPool + NoPool.
func (m Market) TotalPool() *big.Int {
	return new(big.Int).Add(m.YesPool, m.NoPool)
}

// Pool returns the stake total on the given side.
func (m Market) Pool(side Side) *big.Int {
	if side == SideYes {
		return m.YesPool
	}
	return m.NoPool
}
