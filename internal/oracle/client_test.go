package oracle

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predly/settler/internal/domain"
)

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newClient(chains map[domain.FactKind][]Source) *Client {
	return New(chains, Config{
		Timeout:           time.Second,
		RequestsPerSecond: 1000,
	}, discard())
}

func TestFetchFact_PrimarySuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/simple/price", r.URL.Path)
		w.Write([]byte(`{"bitcoin":{"usd":95000.5}}`))
	}))
	defer srv.Close()

	c := newClient(map[domain.FactKind][]Source{
		domain.FactBitcoinUSD: {NewCoinGecko(srv.URL, time.Second)},
	})

	fact, err := c.FetchFact(context.Background(), domain.FactBitcoinUSD)
	require.NoError(t, err)
	assert.Equal(t, 95000.5, fact.Value)
	assert.Equal(t, "coingecko", fact.Source)
	assert.True(t, fact.FreshWithin(time.Minute, time.Now()))
}

// Primary times out, fallback succeeds; downstream only sees a usable fact.
func TestFetchFact_FallbackOnPrimaryFailure(t *testing.T) {
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer primary.Close()

	fallback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbol":"BTCUSDT","price":"94999.10000000"}`))
	}))
	defer fallback.Close()

	c := newClient(map[domain.FactKind][]Source{
		domain.FactBitcoinUSD: {
			NewCoinGecko(primary.URL, time.Second),
			NewBinance(fallback.URL, time.Second),
		},
	})

	fact, err := c.FetchFact(context.Background(), domain.FactBitcoinUSD)
	require.NoError(t, err)
	assert.Equal(t, 94999.1, fact.Value)
	assert.Equal(t, "binance", fact.Source)
}

func TestFetchFact_ZeroValueIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"bitcoin":{"usd":0}}`))
	}))
	defer srv.Close()

	c := newClient(map[domain.FactKind][]Source{
		domain.FactBitcoinUSD: {NewCoinGecko(srv.URL, time.Second)},
	})

	_, err := c.FetchFact(context.Background(), domain.FactBitcoinUSD)
	assert.ErrorIs(t, err, domain.ErrFactUnavailable)
}

func TestFetchFact_AllSourcesFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newClient(map[domain.FactKind][]Source{
		domain.FactBitcoinUSD: {
			NewCoinGecko(srv.URL, time.Second),
			NewBinance(srv.URL, time.Second),
		},
	})

	_, err := c.FetchFact(context.Background(), domain.FactBitcoinUSD)
	assert.ErrorIs(t, err, domain.ErrFactUnavailable)
}

func TestFetchFact_NoFallbackMappingForGas(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"0","message":"NOTOK","result":"Max rate limit reached"}`))
	}))
	defer srv.Close()

	// Gas chains carry a single source; a payload-level rate limit is still a
	// failure, never a default.
	c := newClient(map[domain.FactKind][]Source{
		domain.FactGasGwei: {NewEtherscan(srv.URL, "", time.Second)},
	})

	_, err := c.FetchFact(context.Background(), domain.FactGasGwei)
	assert.ErrorIs(t, err, domain.ErrFactUnavailable)
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestFetchFact_EtherscanGas(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"1","message":"OK","result":{"SafeGasPrice":"25","ProposeGasPrice":"30","FastGasPrice":"40"}}`))
	}))
	defer srv.Close()

	c := newClient(map[domain.FactKind][]Source{
		domain.FactGasGwei: {NewEtherscan(srv.URL, "key", time.Second)},
	})

	fact, err := c.FetchFact(context.Background(), domain.FactGasGwei)
	require.NoError(t, err)
	assert.Equal(t, 30.0, fact.Value)
	assert.Equal(t, "etherscan", fact.Source)
}

func TestFetchFact_UnknownKind(t *testing.T) {
	c := newClient(map[domain.FactKind][]Source{})
	_, err := c.FetchFact(context.Background(), domain.FactKind("dogecoin-usd"))
	assert.ErrorIs(t, err, domain.ErrFactUnavailable)
}
