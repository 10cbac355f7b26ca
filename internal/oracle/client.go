// Package oracle fetches external facts (asset prices, gas levels) for
// market resolution. Each fact kind has an ordered chain of sources: the
// primary is tried first with a bounded timeout, then the fallback, only for
// kinds that have a fallback mapping. When every source fails the caller gets
// ErrFactUnavailable; the client never invents a default value, because a
// silently defaulted fact is the most dangerous failure mode in this domain.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/predly/settler/internal/domain"
)

// Source is one upstream quote provider.
type Source interface {
	// Quote returns the current value for the given fact kind.
	Quote(ctx context.Context, kind domain.FactKind) (float64, error)
	// Name identifies the provider in facts and logs.
	Name() string
}

// Config holds the oracle client parameters.
type Config struct {
	// Timeout bounds each individual source attempt.
	Timeout time.Duration
	// MaxStaleness bounds how old a fact may be when a decision is made.
	MaxStaleness time.Duration
	// RequestsPerSecond paces outbound quote requests across all sources.
	RequestsPerSecond float64
}

// Client resolves fact kinds against ordered source chains. Facts are never
// cached: every call performs a fresh fetch so staleness stays bounded to one
// resolution attempt.
type Client struct {
	chains  map[domain.FactKind][]Source
	cfg     Config
	limiter *rate.Limiter
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a Client with the given source chains. The first source in a
// chain is the primary; any remaining entries are fallbacks in order.
func New(chains map[domain.FactKind][]Source, cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxStaleness <= 0 {
		cfg.MaxStaleness = 2 * time.Minute
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}
	return &Client{
		chains:  chains,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		logger:  logger.With(slog.String("component", "oracle")),
		now:     time.Now,
	}
}

// FetchFact obtains a fresh observation for the given kind. It tries each
// source in the kind's chain with its own timeout and returns the first
// usable value. Zero and negative quotes are treated as source failures.
func (c *Client) FetchFact(ctx context.Context, kind domain.FactKind) (domain.Fact, error) {
	chain, ok := c.chains[kind]
	if !ok || len(chain) == 0 {
		return domain.Fact{}, fmt.Errorf("oracle: no source for kind %q: %w", kind, domain.ErrFactUnavailable)
	}

	var errs []error
	for _, src := range chain {
		if err := c.limiter.Wait(ctx); err != nil {
			return domain.Fact{}, fmt.Errorf("oracle: pacing wait: %w", err)
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		value, err := src.Quote(attemptCtx, kind)
		cancel()

		if err != nil {
			c.logger.WarnContext(ctx, "source failed",
				slog.String("kind", string(kind)),
				slog.String("source", src.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
			continue
		}
		if value <= 0 {
			c.logger.WarnContext(ctx, "source returned non-positive value",
				slog.String("kind", string(kind)),
				slog.String("source", src.Name()),
				slog.Float64("value", value),
			)
			errs = append(errs, fmt.Errorf("%s: non-positive value %v", src.Name(), value))
			continue
		}

		return domain.Fact{
			Kind:       kind,
			Value:      value,
			Source:     src.Name(),
			ObservedAt: c.now(),
		}, nil
	}

	return domain.Fact{}, fmt.Errorf("oracle: all sources failed for %q: %w", kind, errors.Join(append(errs, domain.ErrFactUnavailable)...))
}

// MaxStaleness exposes the configured staleness window to the decision engine.
func (c *Client) MaxStaleness() time.Duration {
	return c.cfg.MaxStaleness
}
