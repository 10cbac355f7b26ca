package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/predly/settler/internal/domain"
)

// coingeckoIDs maps fact kinds to CoinGecko coin ids.
var coingeckoIDs = map[domain.FactKind]string{
	domain.FactBitcoinUSD:  "bitcoin",
	domain.FactEthereumUSD: "ethereum",
	domain.FactSolanaUSD:   "solana",
}

// CoinGecko fetches USD spot prices from the CoinGecko simple-price API. It
// is the primary price source.
type CoinGecko struct {
	baseURL    string
	httpClient *http.Client
}

// NewCoinGecko creates a CoinGecko source. baseURL is the API root, e.g.
// "https://api.coingecko.com".
func NewCoinGecko(baseURL string, timeout time.Duration) *CoinGecko {
	return &CoinGecko{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Name implements Source.
func (c *CoinGecko) Name() string { return "coingecko" }

// Quote implements Source for USD price kinds.
func (c *CoinGecko) Quote(ctx context.Context, kind domain.FactKind) (float64, error) {
	id, ok := coingeckoIDs[kind]
	if !ok {
		return 0, fmt.Errorf("coingecko: unsupported kind %q", kind)
	}

	params := url.Values{}
	params.Set("ids", id)
	params.Set("vs_currencies", "usd")

	endpoint := c.baseURL + "/api/v3/simple/price?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("coingecko: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("coingecko: http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("coingecko: read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return 0, fmt.Errorf("coingecko: %w", err)
	}

	// Response shape: {"bitcoin":{"usd":95000.12}}
	var payload map[string]map[string]float64
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, fmt.Errorf("coingecko: decode response: %w", err)
	}

	price, ok := payload[id]["usd"]
	if !ok {
		return 0, fmt.Errorf("coingecko: missing usd price for %s", id)
	}
	return price, nil
}
