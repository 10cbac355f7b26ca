// Package engine derives verdicts for ended markets and drives their ledger
// transitions. There is exactly one place resolution logic lives: both the
// scheduled pass and any manual trigger go through the Runner, and every
// verdict comes out of the Decider.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/predly/settler/internal/domain"
)

// FactSource supplies fresh observations; implemented by the oracle client.
type FactSource interface {
	FetchFact(ctx context.Context, kind domain.FactKind) (domain.Fact, error)
	MaxStaleness() time.Duration
}

// DecideConfig bounds the oracle retry loop within one pass.
type DecideConfig struct {
	// OracleRetries is the number of fetch attempts per market per pass.
	OracleRetries int
	// OracleBackoff is the fixed delay between attempts.
	OracleBackoff time.Duration
}

// Decider turns (market, rule) into a verdict. Given the same fact and pool
// snapshot it is pure; facts are never cached, so two passes may compute the
// same verdict from two equivalent quotes.
type Decider struct {
	facts  FactSource
	cfg    DecideConfig
	logger *slog.Logger
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewDecider creates a Decider with the given fact source.
func NewDecider(facts FactSource, cfg DecideConfig, logger *slog.Logger) *Decider {
	if cfg.OracleRetries <= 0 {
		cfg.OracleRetries = 3
	}
	if cfg.OracleBackoff <= 0 {
		cfg.OracleBackoff = 3 * time.Second
	}
	return &Decider{
		facts:  facts,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "decider")),
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

// Decide derives the verdict for an ended market. Markets whose rule cannot
// be applied automatically, and markets whose fact stays unavailable after
// the bounded retries, come back unresolvable — never a guessed side. A
// winning side with an empty pool becomes CancelNoWinners so the losing
// side's stake is refundable instead of confiscated.
func (d *Decider) Decide(ctx context.Context, market domain.Market, rule domain.ResolutionRule) (domain.Verdict, domain.Fact, error) {
	if !rule.Automatic() {
		return domain.VerdictUnresolvable, domain.Fact{}, nil
	}

	fact, err := d.fetchWithRetry(ctx, rule.Fact)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return domain.VerdictUnresolvable, domain.Fact{}, err
		}
		d.logger.WarnContext(ctx, "oracle exhausted, deferring to next pass",
			slog.Uint64("market_id", uint64(market.ID)),
			slog.String("kind", string(rule.Fact)),
			slog.String("error", err.Error()),
		)
		return domain.VerdictUnresolvable, domain.Fact{}, nil
	}

	if !fact.FreshWithin(d.facts.MaxStaleness(), d.now()) {
		return domain.VerdictUnresolvable, domain.Fact{}, fmt.Errorf("engine: market %d: %w", market.ID, domain.ErrStaleFact)
	}

	winner := domain.SideNo
	if rule.YesWins(fact.Value) {
		winner = domain.SideYes
	}

	if market.Pool(winner).Sign() == 0 {
		return domain.VerdictCancelNoWinners, fact, nil
	}
	if winner == domain.SideYes {
		return domain.VerdictYes, fact, nil
	}
	return domain.VerdictNo, fact, nil
}

// fetchWithRetry attempts the oracle up to the configured number of times
// with a fixed backoff between attempts.
func (d *Decider) fetchWithRetry(ctx context.Context, kind domain.FactKind) (domain.Fact, error) {
	var lastErr error
	for attempt := 1; attempt <= d.cfg.OracleRetries; attempt++ {
		fact, err := d.facts.FetchFact(ctx, kind)
		if err == nil {
			return fact, nil
		}
		lastErr = err
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return domain.Fact{}, err
		}
		if attempt < d.cfg.OracleRetries {
			if err := d.sleep(ctx, d.cfg.OracleBackoff); err != nil {
				return domain.Fact{}, err
			}
		}
	}
	return domain.Fact{}, lastErr
}

// sleepCtx sleeps for d, honouring context cancellation.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
