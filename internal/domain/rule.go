package domain

import "math"

// RuleKind classifies how a market's question is judged.
type RuleKind string

const (
	// RuleThreshold compares the fact value against a numeric threshold.
	RuleThreshold RuleKind = "threshold"
	// RuleParity checks whether the whole-unit last digit is even or odd.
	RuleParity RuleKind = "parity"
	// RuleLastDigit checks whether the whole-unit last digit equals Digit.
	RuleLastDigit RuleKind = "last-digit"
	// RuleUnresolvable marks a question with no automatic rule; a human must
	// supply the verdict.
	RuleUnresolvable RuleKind = "unresolvable"
	// RuleUnverifiable marks a question whose template is recognized but whose
	// fact cannot be observed from any configured source (whale movement,
	// network activity). It always resolves to a human, never a guessed side.
	RuleUnverifiable RuleKind = "unverifiable"
)

// Comparator is the comparison used by threshold rules.
type Comparator string

const (
	CmpAbove Comparator = "above"
	CmpBelow Comparator = "below"
)

// Parity is the expected parity for parity rules.
type Parity string

const (
	ParityEven Parity = "even"
	ParityOdd  Parity = "odd"
)

// ResolutionRule is the derived judgment for a question. It is a pure
// function of the question text, recomputed each pass and never stored.
type ResolutionRule struct {
	Kind      RuleKind
	Fact      FactKind
	Cmp       Comparator
	Threshold float64
	Parity    Parity
	Digit     int
}

// Automatic reports whether the rule can be applied without a human.
func (r ResolutionRule) Automatic() bool {
	return r.Kind == RuleThreshold || r.Kind == RuleParity || r.Kind == RuleLastDigit
}

// LastDigit extracts the whole-unit last digit of a fact value. The scaling
// is fixed at floor(value) mod 10: for a price of $95,123.45 the last digit
// is 3. Negative values never reach this point; the oracle rejects them.
func LastDigit(value float64) int {
	return int(math.Mod(math.Floor(value), 10))
}

// YesWins applies the rule to an observed fact value and reports whether the
// YES side wins. It must only be called for automatic rules.
func (r ResolutionRule) YesWins(value float64) bool {
	switch r.Kind {
	case RuleThreshold:
		if r.Cmp == CmpAbove {
			return value > r.Threshold
		}
		return value < r.Threshold
	case RuleParity:
		even := LastDigit(value)%2 == 0
		if r.Parity == ParityEven {
			return even
		}
		return !even
	case RuleLastDigit:
		return LastDigit(value) == r.Digit
	}
	return false
}
