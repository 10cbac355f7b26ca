// Package handler contains the HTTP handlers for the settler API.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/predly/settler/internal/domain"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// parseListOpts extracts standard pagination parameters from the query string.
// Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return domain.ListOpts{
		Limit:  limit,
		Offset: offset,
	}
}

// pathParam extracts a named path parameter from the request using Go 1.22+
// built-in routing (http.Request.PathValue).
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}

// marketIDParam parses the {id} path parameter as a market ID.
func marketIDParam(r *http.Request, name string) (domain.MarketID, bool) {
	raw := pathParam(r, name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return domain.MarketID(id), true
}

// addressParam parses the named path parameter as an EVM address.
func addressParam(r *http.Request, name string) (common.Address, bool) {
	raw := pathParam(r, name)
	if !common.IsHexAddress(raw) {
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

// logHandler is a convenience to attach slog fields in handler code.
func logHandler(logger *slog.Logger, handler string) *slog.Logger {
	return logger.With(slog.String("handler", handler))
}

// marketResponse is the wire shape of a market snapshot. Pool amounts are
// decimal strings of base units.
type marketResponse struct {
	ID        domain.MarketID     `json:"id"`
	Question  string              `json:"question"`
	ExpiresAt string              `json:"expires_at"`
	YesPool   string              `json:"yes_pool"`
	NoPool    string              `json:"no_pool"`
	TotalPool string              `json:"total_pool"`
	Status    domain.MarketStatus `json:"status"`
	Phase     domain.MarketPhase  `json:"phase"`
	Winner    *domain.Side        `json:"winner,omitempty"`
}

func toMarketResponse(m domain.Market, phase domain.MarketPhase) marketResponse {
	return marketResponse{
		ID:        m.ID,
		Question:  m.Question,
		ExpiresAt: m.ExpiresAt.UTC().Format(time.RFC3339),
		YesPool:   m.YesPool.String(),
		NoPool:    m.NoPool.String(),
		TotalPool: m.TotalPool().String(),
		Status:    m.Status,
		Phase:     phase,
		Winner:    m.Winner,
	}
}
