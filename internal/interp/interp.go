// Package interp classifies market question text into resolution rules. The
// classification is pure string-pattern matching over a closed set of
// templates; anything unrecognized maps to an unresolvable rule rather than a
// guessed side. Matching must stay stable for existing question text: new
// templates are added after the existing ones and must never change how a
// previously matched question classifies.
package interp

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/predly/settler/internal/domain"
)

// assetFacts maps asset names as they appear in question text to fact kinds.
var assetFacts = map[string]domain.FactKind{
	"bitcoin":  domain.FactBitcoinUSD,
	"btc":      domain.FactBitcoinUSD,
	"ethereum": domain.FactEthereumUSD,
	"eth":      domain.FactEthereumUSD,
	"solana":   domain.FactSolanaUSD,
	"sol":      domain.FactSolanaUSD,
}

const asset = `(bitcoin|btc|ethereum|eth|solana|sol)`

// number matches "90000", "90,000", "90000.50".
const number = `\$?([0-9][0-9,]*(?:\.[0-9]+)?)`

var (
	rePriceAbove = regexp.MustCompile(`(?i)\b` + asset + `\b.*\bprice\b.*\b(?:be |close |stay )?above\s+` + number)
	rePriceBelow = regexp.MustCompile(`(?i)\b` + asset + `\b.*\bprice\b.*\b(?:be |close |stay )?below\s+` + number)
	// "touch $X before ..." questions are judged from the spot price at
	// resolution time only, not a lifetime high/low. Known limitation of the
	// rule set; classifying them as threshold rules is deliberate.
	reTouch      = regexp.MustCompile(`(?i)\b` + asset + `\b.*\btouch\s+` + number)
	reParity     = regexp.MustCompile(`(?i)\b` + asset + `\b.*\blast digit\b.*\b(even|odd)\b`)
	reLastDigit  = regexp.MustCompile(`(?i)\b` + asset + `\b.*\bend(?:s|ing)? with(?: the)?(?: digit)?\s+([0-9])\b`)
	reGasAbove   = regexp.MustCompile(`(?i)\b(?:ethereum|eth)\b.*\bgas\b.*\babove\s+` + number + `\s*gwei`)
	reGasBelow   = regexp.MustCompile(`(?i)\b(?:ethereum|eth)\b.*\bgas\b.*\bbelow\s+` + number + `\s*gwei`)
	// Question families the source "resolved" with a hardcoded side. There is
	// no observable fact behind them, so they always go to a human.
	reUnverifiable = regexp.MustCompile(`(?i)\b(whale movement|whale activity|network activity|active addresses)\b`)
)

// Interpret maps question text to its resolution rule. It is a total
// function: every input yields a rule, with unresolvable as the safe default.
func Interpret(question string) domain.ResolutionRule {
	q := strings.TrimSpace(question)
	if q == "" {
		return domain.ResolutionRule{Kind: domain.RuleUnresolvable}
	}

	if reUnverifiable.MatchString(q) {
		return domain.ResolutionRule{Kind: domain.RuleUnverifiable}
	}

	// Gas templates before price templates: a gas question can also contain
	// the asset name, and gas is the more specific match.
	if m := reGasAbove.FindStringSubmatch(q); m != nil {
		return thresholdRule(domain.FactGasGwei, domain.CmpAbove, m[1])
	}
	if m := reGasBelow.FindStringSubmatch(q); m != nil {
		return thresholdRule(domain.FactGasGwei, domain.CmpBelow, m[1])
	}

	if m := rePriceAbove.FindStringSubmatch(q); m != nil {
		return thresholdRule(assetFacts[strings.ToLower(m[1])], domain.CmpAbove, m[2])
	}
	if m := rePriceBelow.FindStringSubmatch(q); m != nil {
		return thresholdRule(assetFacts[strings.ToLower(m[1])], domain.CmpBelow, m[2])
	}
	if m := reTouch.FindStringSubmatch(q); m != nil {
		return thresholdRule(assetFacts[strings.ToLower(m[1])], domain.CmpAbove, m[2])
	}

	if m := reParity.FindStringSubmatch(q); m != nil {
		parity := domain.ParityEven
		if strings.EqualFold(m[2], "odd") {
			parity = domain.ParityOdd
		}
		return domain.ResolutionRule{
			Kind:   domain.RuleParity,
			Fact:   assetFacts[strings.ToLower(m[1])],
			Parity: parity,
		}
	}
	if m := reLastDigit.FindStringSubmatch(q); m != nil {
		digit, _ := strconv.Atoi(m[2])
		return domain.ResolutionRule{
			Kind:  domain.RuleLastDigit,
			Fact:  assetFacts[strings.ToLower(m[1])],
			Digit: digit,
		}
	}

	return domain.ResolutionRule{Kind: domain.RuleUnresolvable}
}

func thresholdRule(fact domain.FactKind, cmp domain.Comparator, raw string) domain.ResolutionRule {
	threshold, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64)
	if err != nil {
		// The regex admits only digits, commas, and one dot, so this is
		// unreachable; classify safely anyway.
		return domain.ResolutionRule{Kind: domain.RuleUnresolvable}
	}
	return domain.ResolutionRule{
		Kind:      domain.RuleThreshold,
		Fact:      fact,
		Cmp:       cmp,
		Threshold: threshold,
	}
}
