package domain

import "time"

// FactKind names an external fact the oracle can observe.
type FactKind string

const (
	FactBitcoinUSD  FactKind = "bitcoin-usd"
	FactEthereumUSD FactKind = "ethereum-usd"
	FactSolanaUSD   FactKind = "solana-usd"
	FactGasGwei     FactKind = "ethereum-gas-gwei"
)

// Fact is a single observation of an external value: an asset price in USD or
// a gas level in gwei. A Fact is scoped to one resolution attempt and is never
// persisted; staleness is checked against the instant it was observed.
type Fact struct {
	Kind       FactKind
	Value      float64
	Source     string // endpoint name that produced the observation
	ObservedAt time.Time
}

// FreshWithin reports whether the fact was observed no more than maxAge before
// now. Decisions must never be made on a fact outside its staleness window.
func (f Fact) FreshWithin(maxAge time.Duration, now time.Time) bool {
	return now.Sub(f.ObservedAt) <= maxAge
}
