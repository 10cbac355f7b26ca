package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// MarketOutcome records what one pass did (or failed to do) with one market.
type MarketOutcome struct {
	MarketID MarketID `json:"market_id"`
	Question string   `json:"question"`
	RuleKind RuleKind `json:"rule_kind"`
	Verdict  Verdict  `json:"verdict,omitempty"`
	TxRef    string   `json:"tx_ref,omitempty"`
	Skipped  bool     `json:"skipped,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// PassReport is the structured result of one resolution pass, returned to the
// trigger caller and persisted for operator visibility.
type PassReport struct {
	ID           string          `json:"id"`
	StartedAt    time.Time       `json:"started_at"`
	FinishedAt   time.Time       `json:"finished_at"`
	Checked      int             `json:"checked"`
	Resolved     int             `json:"resolved"`
	Cancelled    int             `json:"cancelled"`
	Skipped      int             `json:"skipped"`
	Unresolvable int             `json:"unresolvable"`
	Failed       int             `json:"failed"`
	Markets      []MarketOutcome `json:"markets"`
}

// Record tallies an outcome into the report counters and detail list.
func (r *PassReport) Record(o MarketOutcome) {
	r.Checked++
	switch {
	case o.Error != "":
		r.Failed++
	case o.Skipped:
		r.Skipped++
	case o.Verdict == VerdictYes || o.Verdict == VerdictNo:
		r.Resolved++
	case o.Verdict == VerdictCancelNoWinners:
		r.Cancelled++
	case o.Verdict == VerdictUnresolvable:
		r.Unresolvable++
	}
	r.Markets = append(r.Markets, o)
}

// ResolutionAttempt is one state-changing request submitted to the ledger,
// recorded in the append-only audit log. The ledger stays authoritative; this
// exists for operator forensics only.
type ResolutionAttempt struct {
	ID        int64     `json:"id"`
	PassID    string    `json:"pass_id"`
	MarketID  MarketID  `json:"market_id"`
	Verdict   Verdict   `json:"verdict"`
	TxRef     string    `json:"tx_ref,omitempty"`
	Endpoint  string    `json:"endpoint,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ReviewStatus is the lifecycle of a human review case.
type ReviewStatus string

const (
	ReviewOpen   ReviewStatus = "open"
	ReviewClosed ReviewStatus = "closed"
)

// ReviewCase is a market awaiting human resolution, together with the
// evidence gathered for the reviewer. The automatic pass never closes one.
type ReviewCase struct {
	ID             string         `json:"id"`
	MarketID       MarketID       `json:"market_id"`
	Question       string         `json:"question"`
	Recommendation Verdict        `json:"recommendation,omitempty"`
	Confidence     float64        `json:"confidence,omitempty"`
	Evidence       []string       `json:"evidence,omitempty"`
	Status         ReviewStatus   `json:"status"`
	ClosedBy       common.Address `json:"closed_by,omitempty"`
	FinalVerdict   Verdict        `json:"final_verdict,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	ClosedAt       *time.Time     `json:"closed_at,omitempty"`
}
