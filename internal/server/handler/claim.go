package handler

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/predly/settler/internal/domain"
)

// ClaimService defines the claim operations the handler requires.
type ClaimService interface {
	Preview(ctx context.Context, id domain.MarketID, participant common.Address) (domain.SettlementResult, error)
	Execute(ctx context.Context, id domain.MarketID, participant common.Address) (*big.Int, error)
}

// ClaimHandler serves payout preview and claim endpoints.
type ClaimHandler struct {
	claims ClaimService
	logger *slog.Logger
}

// NewClaimHandler creates a ClaimHandler with the given service and logger.
func NewClaimHandler(claims ClaimService, logger *slog.Logger) *ClaimHandler {
	return &ClaimHandler{
		claims: claims,
		logger: logger,
	}
}

// claimPreviewResponse carries amounts as decimal strings of base units.
type claimPreviewResponse struct {
	MarketID domain.MarketID       `json:"market_id"`
	Address  string                `json:"address"`
	Kind     domain.SettlementKind `json:"kind"`
	Gross    string                `json:"gross,omitempty"`
	Fee      string                `json:"fee,omitempty"`
	Net      string                `json:"net,omitempty"`
	Refund   string                `json:"refund,omitempty"`
	Owed     string                `json:"owed"`
}

// PreviewClaim computes what a participant would receive without claiming.
// GET /api/claims/{id}/{address}
func (h *ClaimHandler) PreviewClaim(w http.ResponseWriter, r *http.Request) {
	id, addr, ok := h.claimParams(w, r)
	if !ok {
		return
	}

	result, err := h.claims.Preview(r.Context(), id, addr)
	if err != nil {
		h.writeClaimError(w, r, id, addr, err)
		return
	}

	writeJSON(w, http.StatusOK, toClaimResponse(id, addr, result))
}

// ExecuteClaim settles a participant's claim through the ledger.
// POST /api/claims/{id}/{address}
func (h *ClaimHandler) ExecuteClaim(w http.ResponseWriter, r *http.Request) {
	id, addr, ok := h.claimParams(w, r)
	if !ok {
		return
	}

	amount, err := h.claims.Execute(r.Context(), id, addr)
	if err != nil {
		h.writeClaimError(w, r, id, addr, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": id,
		"address":   addr.Hex(),
		"amount":    amount.String(),
	})
}

func (h *ClaimHandler) claimParams(w http.ResponseWriter, r *http.Request) (domain.MarketID, common.Address, bool) {
	id, ok := marketIDParam(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return 0, common.Address{}, false
	}
	addr, ok := addressParam(r, "address")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid participant address")
		return 0, common.Address{}, false
	}
	return id, addr, true
}

func (h *ClaimHandler) writeClaimError(w http.ResponseWriter, r *http.Request, id domain.MarketID, addr common.Address, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "market or stake not found")
	case errors.Is(err, domain.ErrMarketOpen):
		writeError(w, http.StatusConflict, "market is not settled yet")
	case errors.Is(err, domain.ErrAlreadyClaimed):
		writeError(w, http.StatusConflict, "payout already claimed")
	case errors.Is(err, domain.ErrZeroStake):
		writeError(w, http.StatusConflict, "no stake to claim")
	default:
		h.logger.ErrorContext(r.Context(), "handler: claim failed",
			slog.Uint64("market_id", uint64(id)),
			slog.String("address", addr.Hex()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "claim failed")
	}
}

func toClaimResponse(id domain.MarketID, addr common.Address, result domain.SettlementResult) claimPreviewResponse {
	resp := claimPreviewResponse{
		MarketID: id,
		Address:  addr.Hex(),
		Kind:     result.Kind,
		Owed:     result.Owed().String(),
	}
	if result.Gross != nil {
		resp.Gross = result.Gross.String()
	}
	if result.Fee != nil {
		resp.Fee = result.Fee.String()
	}
	if result.Net != nil {
		resp.Net = result.Net.String()
	}
	if result.Refund != nil {
		resp.Refund = result.Refund.String()
	}
	return resp
}
