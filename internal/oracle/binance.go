package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/predly/settler/internal/domain"
)

// binanceSymbols maps fact kinds to Binance spot symbols.
var binanceSymbols = map[domain.FactKind]string{
	domain.FactBitcoinUSD:  "BTCUSDT",
	domain.FactEthereumUSD: "ETHUSDT",
	domain.FactSolanaUSD:   "SOLUSDT",
}

// Binance fetches USD spot prices from the Binance ticker API. It serves as
// the fallback price source; a fallback-sourced fact is indistinguishable
// downstream from a primary-sourced one.
type Binance struct {
	baseURL    string
	httpClient *http.Client
}

// NewBinance creates a Binance source. baseURL is the API root, e.g.
// "https://api.binance.com".
func NewBinance(baseURL string, timeout time.Duration) *Binance {
	return &Binance{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Name implements Source.
func (b *Binance) Name() string { return "binance" }

// Quote implements Source for USD price kinds.
func (b *Binance) Quote(ctx context.Context, kind domain.FactKind) (float64, error) {
	symbol, ok := binanceSymbols[kind]
	if !ok {
		return 0, fmt.Errorf("binance: unsupported kind %q", kind)
	}

	params := url.Values{}
	params.Set("symbol", symbol)

	endpoint := b.baseURL + "/api/v3/ticker/price?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("binance: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("binance: http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("binance: read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return 0, fmt.Errorf("binance: %w", err)
	}

	// Response shape: {"symbol":"BTCUSDT","price":"95000.12000000"}
	var payload struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, fmt.Errorf("binance: decode response: %w", err)
	}

	price, err := strconv.ParseFloat(payload.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("binance: parse price %q: %w", payload.Price, err)
	}
	return price, nil
}
