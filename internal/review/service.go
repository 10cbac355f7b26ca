// Package review implements the human resolution workflow for markets the
// automatic pass cannot judge. A review case carries gathered evidence and an
// optional machine recommendation; the final verdict always comes from a
// human and goes through the same ledger submit path the pass uses.
package review

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/predly/settler/internal/domain"
)

// Service drives the review workflow.
type Service struct {
	ledger   domain.Ledger
	reviews  domain.ReviewStore
	audit    domain.AuditStore
	evidence EvidenceSource
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates a review Service. The audit store and evidence source
// may be nil.
func NewService(ledger domain.Ledger, reviews domain.ReviewStore, audit domain.AuditStore, evidence EvidenceSource, logger *slog.Logger) *Service {
	return &Service{
		ledger:   ledger,
		reviews:  reviews,
		audit:    audit,
		evidence: evidence,
		logger:   logger.With(slog.String("component", "review")),
		now:      time.Now,
	}
}

// ListOpen returns the open review queue, oldest first.
func (s *Service) ListOpen(ctx context.Context, opts domain.ListOpts) ([]domain.ReviewCase, error) {
	return s.reviews.ListOpen(ctx, opts)
}

// Get returns a single review case.
func (s *Service) Get(ctx context.Context, id string) (domain.ReviewCase, error) {
	return s.reviews.Get(ctx, id)
}

// EnrichOpenCases fills in evidence for open cases that have none yet. It is
// invoked periodically by the daemon; failures on one case do not stop the
// rest.
func (s *Service) EnrichOpenCases(ctx context.Context) error {
	if s.evidence == nil {
		return nil
	}

	cases, err := s.reviews.ListOpen(ctx, domain.ListOpts{})
	if err != nil {
		return fmt.Errorf("review: list open cases: %w", err)
	}

	for _, c := range cases {
		if len(c.Evidence) > 0 {
			continue
		}
		lines, err := s.evidence.Search(ctx, c.Question)
		if err != nil {
			s.logger.WarnContext(ctx, "evidence search failed",
				slog.String("case_id", c.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if len(lines) == 0 {
			continue
		}
		if err := s.reviews.UpdateEvidence(ctx, c.ID, c.Recommendation, c.Confidence, lines); err != nil {
			s.logger.WarnContext(ctx, "evidence update failed",
				slog.String("case_id", c.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		s.logger.InfoContext(ctx, "evidence attached",
			slog.String("case_id", c.ID),
			slog.Int("lines", len(lines)),
		)
	}
	return nil
}

// SubmitVerdict closes a review case with a human decision and submits the
// corresponding ledger transition. Only yes, no, and cancel-no-winners are
// accepted; a reviewer cannot mark a case unresolvable, they simply leave it
// open.
func (s *Service) SubmitVerdict(ctx context.Context, caseID string, verdict domain.Verdict, reviewer common.Address) (domain.ReviewCase, error) {
	switch verdict {
	case domain.VerdictYes, domain.VerdictNo, domain.VerdictCancelNoWinners:
	default:
		return domain.ReviewCase{}, fmt.Errorf("review: verdict %q not submittable", verdict)
	}

	c, err := s.reviews.Get(ctx, caseID)
	if err != nil {
		return domain.ReviewCase{}, fmt.Errorf("review: load case %s: %w", caseID, err)
	}
	if c.Status != domain.ReviewOpen {
		return domain.ReviewCase{}, fmt.Errorf("review: case %s: %w", caseID, domain.ErrAlreadyResolved)
	}

	// The market must still be waiting; a concurrent resolver may have
	// settled it since the case was opened.
	market, err := s.ledger.ReadMarket(ctx, c.MarketID)
	if err != nil {
		return domain.ReviewCase{}, fmt.Errorf("review: read market %d: %w", c.MarketID, err)
	}
	if market.Phase(s.now()) != domain.PhaseEnded {
		return domain.ReviewCase{}, fmt.Errorf("review: market %d: %w", c.MarketID, domain.ErrAlreadyResolved)
	}

	var txRef string
	if side, ok := verdict.WinningSide(); ok {
		tx, err := s.ledger.SubmitResolve(ctx, c.MarketID, side)
		if err != nil {
			return domain.ReviewCase{}, fmt.Errorf("review: submit resolve for market %d: %w", c.MarketID, err)
		}
		txRef = tx.Hex()
	} else {
		tx, err := s.ledger.SubmitCancel(ctx, c.MarketID)
		if err != nil {
			return domain.ReviewCase{}, fmt.Errorf("review: submit cancel for market %d: %w", c.MarketID, err)
		}
		txRef = tx.Hex()
	}

	closedAt := s.now()
	c.Status = domain.ReviewClosed
	c.ClosedBy = reviewer
	c.FinalVerdict = verdict
	c.ClosedAt = &closedAt

	if err := s.reviews.Close(ctx, c); err != nil {
		// The ledger transition went through but the case record did not
		// close; surface loudly so an operator reconciles by hand.
		s.logger.ErrorContext(ctx, "ledger updated but case close failed",
			slog.String("case_id", c.ID),
			slog.Uint64("market_id", uint64(c.MarketID)),
			slog.String("tx_ref", txRef),
			slog.String("error", err.Error()),
		)
		return domain.ReviewCase{}, fmt.Errorf("review: close case %s: %w", caseID, err)
	}

	s.recordVerdict(ctx, c, txRef)

	s.logger.InfoContext(ctx, "review case closed",
		slog.String("case_id", c.ID),
		slog.Uint64("market_id", uint64(c.MarketID)),
		slog.String("verdict", string(verdict)),
		slog.String("reviewer", reviewer.Hex()),
		slog.String("tx_ref", txRef),
	)
	return c, nil
}

func (s *Service) recordVerdict(ctx context.Context, c domain.ReviewCase, txRef string) {
	if s.audit == nil {
		return
	}
	attempt := domain.ResolutionAttempt{
		PassID:    "review:" + c.ID,
		MarketID:  c.MarketID,
		Verdict:   c.FinalVerdict,
		TxRef:     txRef,
		CreatedAt: s.now(),
	}
	if err := s.audit.RecordAttempt(ctx, attempt); err != nil {
		s.logger.WarnContext(ctx, "audit write failed",
			slog.String("case_id", c.ID),
			slog.String("error", err.Error()),
		)
	}
}

