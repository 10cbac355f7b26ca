package interp

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/predly/settler/internal/domain"
)

func TestInterpret_ThresholdTemplates(t *testing.T) {
	tests := []struct {
		name      string
		question  string
		fact      domain.FactKind
		cmp       domain.Comparator
		threshold float64
	}{
		{
			name:      "btc above with comma",
			question:  "Will the Bitcoin price be above $90,000 at expiry?",
			fact:      domain.FactBitcoinUSD,
			cmp:       domain.CmpAbove,
			threshold: 90000,
		},
		{
			name:      "eth below decimal",
			question:  "Will ETH price close below $3,250.50?",
			fact:      domain.FactEthereumUSD,
			cmp:       domain.CmpBelow,
			threshold: 3250.50,
		},
		{
			name:      "sol above",
			question:  "Will Solana price be above $200 this week?",
			fact:      domain.FactSolanaUSD,
			cmp:       domain.CmpAbove,
			threshold: 200,
		},
		{
			name:      "touch classifies as spot threshold",
			question:  "Will BTC touch $100,000 before March?",
			fact:      domain.FactBitcoinUSD,
			cmp:       domain.CmpAbove,
			threshold: 100000,
		},
		{
			name:      "gas above gwei",
			question:  "Will Ethereum gas be above 50 gwei at expiry?",
			fact:      domain.FactGasGwei,
			cmp:       domain.CmpAbove,
			threshold: 50,
		},
		{
			name:      "gas below gwei",
			question:  "Will ETH gas stay below 20 gwei?",
			fact:      domain.FactGasGwei,
			cmp:       domain.CmpBelow,
			threshold: 20,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := Interpret(tt.question)
			assert.Equal(t, domain.RuleThreshold, rule.Kind)
			assert.Equal(t, tt.fact, rule.Fact)
			assert.Equal(t, tt.cmp, rule.Cmp)
			assert.Equal(t, tt.threshold, rule.Threshold)
		})
	}
}

func TestInterpret_DigitTemplates(t *testing.T) {
	rule := Interpret("Will the Bitcoin price last digit be EVEN at expiry?")
	assert.Equal(t, domain.RuleParity, rule.Kind)
	assert.Equal(t, domain.FactBitcoinUSD, rule.Fact)
	assert.Equal(t, domain.ParityEven, rule.Parity)

	rule = Interpret("Will ETH price last digit be odd?")
	assert.Equal(t, domain.RuleParity, rule.Kind)
	assert.Equal(t, domain.ParityOdd, rule.Parity)

	rule = Interpret("Will the BTC price end with digit 7?")
	assert.Equal(t, domain.RuleLastDigit, rule.Kind)
	assert.Equal(t, 7, rule.Digit)
}

func TestInterpret_UnverifiableNeverGuesses(t *testing.T) {
	for _, q := range []string{
		"Will there be major whale movement on Bitcoin today?",
		"Will Ethereum network activity increase this week?",
	} {
		rule := Interpret(q)
		assert.Equal(t, domain.RuleUnverifiable, rule.Kind, q)
		assert.False(t, rule.Automatic())
	}
}

func TestInterpret_UnrecognizedIsUnresolvable(t *testing.T) {
	for _, q := range []string{
		"",
		"Will it rain in Lisbon tomorrow?",
		"Will the next US president be under 60?",
		"Will Dogecoin price be above $1?", // asset outside the supported set
	} {
		rule := Interpret(q)
		assert.Equal(t, domain.RuleUnresolvable, rule.Kind, q)
	}
}

// Classification must be identical across passes for the same question text.
func TestInterpret_Deterministic(t *testing.T) {
	q := "Will the Bitcoin price be above $90,000 at expiry?"
	first := Interpret(q)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Interpret(q))
	}
}

func TestLastDigit_WholeUnitScaling(t *testing.T) {
	assert.Equal(t, 3, domain.LastDigit(95123.45))
	assert.Equal(t, 0, domain.LastDigit(90000))
	assert.Equal(t, 9, domain.LastDigit(9.99))
}
