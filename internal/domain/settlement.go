package domain

import "math/big"

// SettlementKind distinguishes a win payout from a cancellation refund.
type SettlementKind string

const (
	SettlementWin    SettlementKind = "win"
	SettlementRefund SettlementKind = "refund"
)

// SettlementResult is the amount owed to one participant, computed on demand
// from the final pool snapshot and never stored. For a win, Net = Gross - Fee
// with all truncation favoring the pool. For a refund, Refund equals the
// participant's total stake and no fee applies.
type SettlementResult struct {
	Kind   SettlementKind
	Gross  *big.Int
	Fee    *big.Int
	Net    *big.Int
	Refund *big.Int
}

// Owed returns the amount actually payable to the participant.
func (r SettlementResult) Owed() *big.Int {
	if r.Kind == SettlementRefund {
		return r.Refund
	}
	return r.Net
}
