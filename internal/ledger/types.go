package ledger

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/predly/settler/internal/domain"
)

// apiMarket is the gateway's wire representation of a market. Pool amounts
// are decimal strings in the ledger's smallest unit.
type apiMarket struct {
	ID        uint64  `json:"id"`
	Question  string  `json:"question"`
	ExpiresAt string  `json:"expires_at"`
	YesPool   string  `json:"yes_pool"`
	NoPool    string  `json:"no_pool"`
	Status    string  `json:"status"`
	Winner    *string `json:"winner,omitempty"`
}

// toDomain converts an apiMarket into the domain model, validating amounts
// and timestamps. Malformed payloads are errors, never defaults.
func (m apiMarket) toDomain() (domain.Market, error) {
	expires, err := time.Parse(time.RFC3339, m.ExpiresAt)
	if err != nil {
		return domain.Market{}, fmt.Errorf("parse expires_at %q: %w", m.ExpiresAt, err)
	}

	yes, err := parseAmount(m.YesPool)
	if err != nil {
		return domain.Market{}, fmt.Errorf("parse yes_pool: %w", err)
	}
	no, err := parseAmount(m.NoPool)
	if err != nil {
		return domain.Market{}, fmt.Errorf("parse no_pool: %w", err)
	}

	status := domain.MarketStatus(m.Status)
	switch status {
	case domain.MarketStatusActive, domain.MarketStatusResolved, domain.MarketStatusCancelled:
	default:
		return domain.Market{}, fmt.Errorf("unknown market status %q", m.Status)
	}

	var winner *domain.Side
	if m.Winner != nil {
		side := domain.Side(*m.Winner)
		if side != domain.SideYes && side != domain.SideNo {
			return domain.Market{}, fmt.Errorf("unknown winning side %q", *m.Winner)
		}
		winner = &side
	}

	return domain.Market{
		ID:        domain.MarketID(m.ID),
		Question:  m.Question,
		ExpiresAt: expires,
		YesPool:   yes,
		NoPool:    no,
		Status:    status,
		Winner:    winner,
	}, nil
}

// apiStake is the gateway's wire representation of a participant position.
type apiStake struct {
	MarketID    uint64 `json:"market_id"`
	Participant string `json:"participant"`
	YesAmount   string `json:"yes_amount"`
	NoAmount    string `json:"no_amount"`
	Claimed     bool   `json:"claimed"`
}

func (s apiStake) toDomain() (domain.UserStake, error) {
	yes, err := parseAmount(s.YesAmount)
	if err != nil {
		return domain.UserStake{}, fmt.Errorf("parse yes_amount: %w", err)
	}
	no, err := parseAmount(s.NoAmount)
	if err != nil {
		return domain.UserStake{}, fmt.Errorf("parse no_amount: %w", err)
	}
	if !common.IsHexAddress(s.Participant) {
		return domain.UserStake{}, fmt.Errorf("invalid participant address %q", s.Participant)
	}
	return domain.UserStake{
		MarketID:    domain.MarketID(s.MarketID),
		Participant: common.HexToAddress(s.Participant),
		YesAmount:   yes,
		NoAmount:    no,
		Claimed:     s.Claimed,
	}, nil
}

// txResponse is the gateway's acknowledgment of a state-changing request.
type txResponse struct {
	TxRef string `json:"tx_ref"`
}

// claimResponse is the gateway's acknowledgment of a claim.
type claimResponse struct {
	Amount string `json:"amount"`
	TxRef  string `json:"tx_ref"`
}

// resolveRequest is the signed body for resolve submissions.
type resolveRequest struct {
	MarketID uint64 `json:"market_id"`
	Side     string `json:"side"`
	Resolver string `json:"resolver"`
}

// cancelRequest is the signed body for cancel submissions.
type cancelRequest struct {
	MarketID uint64 `json:"market_id"`
	Resolver string `json:"resolver"`
}

// parseAmount parses a non-negative decimal amount string into a big.Int.
func parseAmount(s string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("empty amount")
	}
	amount, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("malformed amount %q", s)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("negative amount %q", s)
	}
	return amount, nil
}
