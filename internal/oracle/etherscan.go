package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/predly/settler/internal/domain"
)

// Etherscan fetches the current proposed gas price from the Etherscan gas
// tracker. Gas has no fallback mapping: if this source fails, the fact is
// unavailable for the pass.
type Etherscan struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewEtherscan creates an Etherscan source. baseURL is the API root, e.g.
// "https://api.etherscan.io".
func NewEtherscan(baseURL, apiKey string, timeout time.Duration) *Etherscan {
	return &Etherscan{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Name implements Source.
func (e *Etherscan) Name() string { return "etherscan" }

// Quote implements Source for the gas fact kind.
func (e *Etherscan) Quote(ctx context.Context, kind domain.FactKind) (float64, error) {
	if kind != domain.FactGasGwei {
		return 0, fmt.Errorf("etherscan: unsupported kind %q", kind)
	}

	params := url.Values{}
	params.Set("module", "gastracker")
	params.Set("action", "gasoracle")
	if e.apiKey != "" {
		params.Set("apikey", e.apiKey)
	}

	endpoint := e.baseURL + "/api?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("etherscan: create request: %w", err)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("etherscan: http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("etherscan: read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return 0, fmt.Errorf("etherscan: %w", err)
	}

	// Etherscan returns HTTP 200 even when rate limited; the signal is in the
	// payload ("status":"0" with a rate-limit message).
	var payload struct {
		Status  string          `json:"status"`
		Message string          `json:"message"`
		Result  json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, fmt.Errorf("etherscan: decode response: %w", err)
	}
	if payload.Status != "1" {
		if strings.Contains(strings.ToLower(string(payload.Result)), "rate limit") {
			return 0, fmt.Errorf("etherscan: %s: %w", payload.Message, domain.ErrRateLimited)
		}
		return 0, fmt.Errorf("etherscan: api error status=%s message=%s", payload.Status, payload.Message)
	}

	var result struct {
		ProposeGasPrice string `json:"ProposeGasPrice"`
	}
	if err := json.Unmarshal(payload.Result, &result); err != nil {
		return 0, fmt.Errorf("etherscan: decode gas result: %w", err)
	}

	gwei, err := strconv.ParseFloat(result.ProposeGasPrice, 64)
	if err != nil {
		return 0, fmt.Errorf("etherscan: parse gas price %q: %w", result.ProposeGasPrice, err)
	}
	return gwei, nil
}

// checkHTTPStatus maps non-2xx status codes to domain errors shared by every
// oracle source.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, body)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, body)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, body)
	}
}
