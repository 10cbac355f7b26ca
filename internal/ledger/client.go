// Package ledger is the HTTP client for the pool contract gateway — the
// external, authoritative store of markets and stakes. Every request walks an
// ordered endpoint list with a per-endpoint timeout; writes are signed with
// the engine's resolver key. Gateway rejections with settled meaning (already
// resolved, already claimed, market still open) are returned as their domain
// sentinels immediately instead of being retried against fallbacks.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/predly/settler/internal/crypto"
	"github.com/predly/settler/internal/domain"
)

// signatureHeader carries the resolver signature on write requests.
const signatureHeader = "X-Resolver-Signature"

// Config holds the gateway client parameters.
type Config struct {
	// Endpoints is the ordered endpoint list; the first entry is primary.
	Endpoints []string
	// Contract is the pool contract address the gateway fronts.
	Contract common.Address
	// Timeout bounds each individual endpoint attempt.
	Timeout time.Duration
}

// Client implements domain.Ledger against the gateway.
type Client struct {
	cfg        Config
	httpClient *http.Client
	signer     *crypto.RequestSigner
	logger     *slog.Logger
}

// New creates a gateway client. The signer may be nil for read-only use; any
// write through an unsigned client fails.
func New(cfg Config, signer *crypto.RequestSigner, logger *slog.Logger) (*Client, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("ledger: at least one endpoint is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		signer:     signer,
		logger:     logger.With(slog.String("component", "ledger")),
	}, nil
}

// ListOpenMarkets implements domain.Ledger.
func (c *Client) ListOpenMarkets(ctx context.Context) ([]domain.MarketID, error) {
	body, err := c.do(ctx, http.MethodGet, "/v1/markets/open", nil)
	if err != nil {
		return nil, fmt.Errorf("ledger: list open markets: %w", err)
	}

	var payload struct {
		MarketIDs []uint64 `json:"market_ids"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("ledger: decode open markets: %w", err)
	}

	ids := make([]domain.MarketID, 0, len(payload.MarketIDs))
	for _, id := range payload.MarketIDs {
		ids = append(ids, domain.MarketID(id))
	}
	return ids, nil
}

// ReadMarket implements domain.Ledger.
func (c *Client) ReadMarket(ctx context.Context, id domain.MarketID) (domain.Market, error) {
	body, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/v1/markets/%d", id), nil)
	if err != nil {
		return domain.Market{}, fmt.Errorf("ledger: read market %d: %w", id, err)
	}

	var m apiMarket
	if err := json.Unmarshal(body, &m); err != nil {
		return domain.Market{}, fmt.Errorf("ledger: decode market %d: %w", id, err)
	}
	market, err := m.toDomain()
	if err != nil {
		return domain.Market{}, fmt.Errorf("ledger: market %d: %w", id, err)
	}
	return market, nil
}

// SubmitResolve implements domain.Ledger.
func (c *Client) SubmitResolve(ctx context.Context, id domain.MarketID, side domain.Side) (common.Hash, error) {
	if c.signer == nil {
		return common.Hash{}, fmt.Errorf("ledger: submit resolve: no signer configured")
	}
	reqBody, err := json.Marshal(resolveRequest{
		MarketID: uint64(id),
		Side:     string(side),
		Resolver: c.signer.Address().Hex(),
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("ledger: marshal resolve request: %w", err)
	}

	body, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/markets/%d/resolve", id), reqBody)
	if err != nil {
		return common.Hash{}, fmt.Errorf("ledger: submit resolve %d: %w", id, err)
	}

	var tx txResponse
	if err := json.Unmarshal(body, &tx); err != nil {
		return common.Hash{}, fmt.Errorf("ledger: decode resolve response: %w", err)
	}
	return common.HexToHash(tx.TxRef), nil
}

// SubmitCancel implements domain.Ledger.
func (c *Client) SubmitCancel(ctx context.Context, id domain.MarketID) (common.Hash, error) {
	if c.signer == nil {
		return common.Hash{}, fmt.Errorf("ledger: submit cancel: no signer configured")
	}
	reqBody, err := json.Marshal(cancelRequest{
		MarketID: uint64(id),
		Resolver: c.signer.Address().Hex(),
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("ledger: marshal cancel request: %w", err)
	}

	body, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/markets/%d/cancel", id), reqBody)
	if err != nil {
		return common.Hash{}, fmt.Errorf("ledger: submit cancel %d: %w", id, err)
	}

	var tx txResponse
	if err := json.Unmarshal(body, &tx); err != nil {
		return common.Hash{}, fmt.Errorf("ledger: decode cancel response: %w", err)
	}
	return common.HexToHash(tx.TxRef), nil
}

// ReadUserStake implements domain.Ledger.
func (c *Client) ReadUserStake(ctx context.Context, id domain.MarketID, participant common.Address) (domain.UserStake, error) {
	path := fmt.Sprintf("/v1/markets/%d/stakes/%s", id, participant.Hex())
	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return domain.UserStake{}, fmt.Errorf("ledger: read stake %d/%s: %w", id, participant.Hex(), err)
	}

	var s apiStake
	if err := json.Unmarshal(body, &s); err != nil {
		return domain.UserStake{}, fmt.Errorf("ledger: decode stake: %w", err)
	}
	stake, err := s.toDomain()
	if err != nil {
		return domain.UserStake{}, fmt.Errorf("ledger: stake %d/%s: %w", id, participant.Hex(), err)
	}
	return stake, nil
}

// ClaimPayout implements domain.Ledger.
func (c *Client) ClaimPayout(ctx context.Context, id domain.MarketID, participant common.Address) (*big.Int, error) {
	path := fmt.Sprintf("/v1/markets/%d/stakes/%s/claim", id, participant.Hex())
	body, err := c.do(ctx, http.MethodPost, path, []byte(`{}`))
	if err != nil {
		return nil, fmt.Errorf("ledger: claim %d/%s: %w", id, participant.Hex(), err)
	}

	var resp claimResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("ledger: decode claim response: %w", err)
	}
	amount, err := parseAmount(resp.Amount)
	if err != nil {
		return nil, fmt.Errorf("ledger: claim amount: %w", err)
	}
	return amount, nil
}

// do walks the endpoint list in order until one attempt succeeds. Semantic
// rejections abort the walk: a conflict from the primary means the same
// conflict everywhere, so failing over would only repeat the write.
func (c *Client) do(ctx context.Context, method, path string, reqBody []byte) ([]byte, error) {
	var errs []error
	for _, endpoint := range c.cfg.Endpoints {
		body, err := c.doOne(ctx, endpoint, method, path, reqBody)
		if err == nil {
			return body, nil
		}
		if isSemantic(err) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		c.logger.WarnContext(ctx, "endpoint failed",
			slog.String("endpoint", endpoint),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		errs = append(errs, fmt.Errorf("%s: %w", endpoint, err))
	}
	return nil, fmt.Errorf("%w: %w", domain.ErrAllEndpointsFailed, errors.Join(errs...))
}

// doOne performs a single attempt against one endpoint with its own timeout.
func (c *Client) doOne(ctx context.Context, endpoint, method, path string, reqBody []byte) ([]byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var bodyReader io.Reader
	if reqBody != nil {
		bodyReader = bytes.NewReader(reqBody)
	}

	req, err := http.NewRequestWithContext(attemptCtx, method, endpoint+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	// The gateway can front several deployments; pin requests to ours.
	req.Header.Set("X-Pool-Contract", c.cfg.Contract.Hex())
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
		if c.signer != nil {
			sig, err := c.signer.Sign(reqBody)
			if err != nil {
				return nil, err
			}
			req.Header.Set(signatureHeader, sig)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// checkHTTPStatus maps gateway status codes to domain errors. 409 means the
// transition or claim was already performed; 412 means the market is not in a
// claimable state yet; 422 means the participant has no stake to pay out.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, body)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, body)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, body)
	case http.StatusConflict:
		if bytes.Contains(body, []byte("claimed")) {
			return fmt.Errorf("%w: %s", domain.ErrAlreadyClaimed, body)
		}
		return fmt.Errorf("%w: %s", domain.ErrAlreadyResolved, body)
	case http.StatusPreconditionFailed:
		return fmt.Errorf("%w: %s", domain.ErrMarketOpen, body)
	case http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", domain.ErrZeroStake, body)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, body)
	}
}

// isSemantic reports whether an error carries a settled gateway decision that
// endpoint failover cannot change.
func isSemantic(err error) bool {
	return errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrUnauthorized) ||
		errors.Is(err, domain.ErrAlreadyResolved) ||
		errors.Is(err, domain.ErrAlreadyClaimed) ||
		errors.Is(err, domain.ErrMarketOpen) ||
		errors.Is(err, domain.ErrZeroStake)
}

// Compile-time interface check.
var _ domain.Ledger = (*Client)(nil)
