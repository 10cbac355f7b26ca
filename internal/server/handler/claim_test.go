package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predly/settler/internal/domain"
)

type fakeClaims struct {
	previewResult domain.SettlementResult
	previewErr    error
	executeAmount *big.Int
	executeErr    error
}

func (f *fakeClaims) Preview(ctx context.Context, id domain.MarketID, participant common.Address) (domain.SettlementResult, error) {
	return f.previewResult, f.previewErr
}

func (f *fakeClaims) Execute(ctx context.Context, id domain.MarketID, participant common.Address) (*big.Int, error) {
	return f.executeAmount, f.executeErr
}

func claimMux(h *ClaimHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/claims/{id}/{address}", h.PreviewClaim)
	mux.HandleFunc("POST /api/claims/{id}/{address}", h.ExecuteClaim)
	return mux
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const testAddr = "0x1111111111111111111111111111111111111111"

func TestPreviewClaimReturnsSettlement(t *testing.T) {
	claims := &fakeClaims{
		previewResult: domain.SettlementResult{
			Kind:  domain.SettlementWin,
			Gross: big.NewInt(1500),
			Fee:   big.NewInt(15),
			Net:   big.NewInt(1485),
		},
	}
	mux := claimMux(NewClaimHandler(claims, discardLogger()))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/claims/7/"+testAddr, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"owed":"1485"`)
	assert.Contains(t, rec.Body.String(), `"kind":"win"`)
}

func TestPreviewClaimRejectsBadParams(t *testing.T) {
	mux := claimMux(NewClaimHandler(&fakeClaims{}, discardLogger()))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/claims/notanumber/"+testAddr, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/claims/7/nothex", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExecuteClaimErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"not found", domain.ErrNotFound, http.StatusNotFound},
		{"market open", domain.ErrMarketOpen, http.StatusConflict},
		{"already claimed", domain.ErrAlreadyClaimed, http.StatusConflict},
		{"zero stake", domain.ErrZeroStake, http.StatusConflict},
		{"ledger down", errors.New("rpc timeout"), http.StatusBadGateway},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mux := claimMux(NewClaimHandler(&fakeClaims{executeErr: tc.err}, discardLogger()))

			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/claims/7/"+testAddr, nil))

			assert.Equal(t, tc.code, rec.Code)
		})
	}
}

func TestExecuteClaimReturnsAmount(t *testing.T) {
	mux := claimMux(NewClaimHandler(&fakeClaims{executeAmount: big.NewInt(9900)}, discardLogger()))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/claims/7/"+testAddr, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"amount":"9900"`)
}
