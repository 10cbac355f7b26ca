package domain

// Verdict is the engine's decision for one market in one pass. It is applied
// to the ledger immediately or discarded; it is never persisted on its own.
type Verdict string

const (
	VerdictYes Verdict = "yes"
	VerdictNo  Verdict = "no"
	// VerdictCancelNoWinners refunds everyone: the side that would have won
	// holds no stake, so paying out is impossible and confiscating the losing
	// side's stake is not acceptable.
	VerdictCancelNoWinners Verdict = "cancel-no-winners"
	// VerdictUnresolvable leaves the market in the ended phase for a later
	// pass or a human operator.
	VerdictUnresolvable Verdict = "unresolvable"
)

// WinningSide maps a yes/no verdict to its side. The second return is false
// for cancel and unresolvable verdicts.
func (v Verdict) WinningSide() (Side, bool) {
	switch v {
	case VerdictYes:
		return SideYes, true
	case VerdictNo:
		return SideNo, true
	}
	return "", false
}
