package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/predly/settler/internal/domain"
)

// ReviewService defines the review workflow operations the handler requires.
type ReviewService interface {
	ListOpen(ctx context.Context, opts domain.ListOpts) ([]domain.ReviewCase, error)
	Get(ctx context.Context, id string) (domain.ReviewCase, error)
	SubmitVerdict(ctx context.Context, caseID string, verdict domain.Verdict, reviewer common.Address) (domain.ReviewCase, error)
}

// ReviewHandler serves the human review queue.
type ReviewHandler struct {
	reviews ReviewService
	logger  *slog.Logger
}

// NewReviewHandler creates a ReviewHandler with the given service and logger.
func NewReviewHandler(reviews ReviewService, logger *slog.Logger) *ReviewHandler {
	return &ReviewHandler{
		reviews: reviews,
		logger:  logger,
	}
}

// ListCases returns open review cases, oldest first.
// GET /api/review/cases?limit=50&offset=0
func (h *ReviewHandler) ListCases(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	cases, err := h.reviews.ListOpen(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list review cases failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list review cases")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"cases": cases,
		"total": len(cases),
	})
}

// GetCase returns a single review case with its evidence.
// GET /api/review/cases/{id}
func (h *ReviewHandler) GetCase(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing case id")
		return
	}

	c, err := h.reviews.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "review case not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get review case failed",
			slog.String("case_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get review case")
		return
	}

	writeJSON(w, http.StatusOK, c)
}

// verdictRequest is the body for the verdict endpoint.
type verdictRequest struct {
	Verdict  string `json:"verdict"`  // "yes", "no", or "cancel-no-winners"
	Reviewer string `json:"reviewer"` // EVM address of the human reviewer
}

// SubmitVerdict closes a review case with a human decision.
// POST /api/review/cases/{id}/verdict
func (h *ReviewHandler) SubmitVerdict(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing case id")
		return
	}

	var req verdictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !common.IsHexAddress(req.Reviewer) {
		writeError(w, http.StatusBadRequest, "invalid reviewer address")
		return
	}
	switch domain.Verdict(req.Verdict) {
	case domain.VerdictYes, domain.VerdictNo, domain.VerdictCancelNoWinners:
	default:
		writeError(w, http.StatusBadRequest, "verdict must be yes, no, or cancel-no-winners")
		return
	}

	c, err := h.reviews.SubmitVerdict(r.Context(), id, domain.Verdict(req.Verdict), common.HexToAddress(req.Reviewer))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "review case not found")
		case errors.Is(err, domain.ErrAlreadyResolved):
			writeError(w, http.StatusConflict, "case closed or market already settled")
		default:
			h.logger.ErrorContext(r.Context(), "handler: submit verdict failed",
				slog.String("case_id", id),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusBadGateway, "failed to submit verdict")
		}
		return
	}

	writeJSON(w, http.StatusOK, c)
}
