package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/predly/settler/internal/domain"
	"github.com/predly/settler/internal/interp"
)

// passLockKey guards against overlapping passes across engine instances.
const passLockKey = "resolution-pass"

// Publisher pushes engine events to live subscribers; implemented by the
// WebSocket hub. A nil Publisher is valid and drops events.
type Publisher interface {
	Publish(event string, payload any)
}

// Alerter delivers operator notifications; implemented by the notifier.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// PassConfig holds the coordinator parameters. All values arrive from
// configuration; nothing is hardcoded.
type PassConfig struct {
	// Budget is the wall-clock limit for one pass.
	Budget time.Duration
	// MarketDelay is the pause between per-market ledger reads, purely to
	// respect third-party rate limits.
	MarketDelay time.Duration
	// RateLimitCooldown is the pause after any rate-limited ledger response,
	// distinct from the oracle retry backoff.
	RateLimitCooldown time.Duration
	// LockTTL bounds how long the pass lock may outlive a crashed run.
	LockTTL time.Duration
}

// Runner executes resolution passes: enumerate candidates, classify, decide,
// and commit exactly one state-changing request per market per pass. Each
// market's transition is all-or-nothing and independently idempotent, so a
// pass stopped by its budget leaves a safe partial state.
type Runner struct {
	ledger  domain.Ledger
	decider *Decider
	locks   domain.LockManager
	audit   domain.AuditStore
	reports domain.ReportStore
	reviews domain.ReviewStore
	cache   domain.MarketCache
	alerts  Alerter
	events  Publisher
	cfg     PassConfig
	logger  *slog.Logger
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

// RunnerDeps bundles the Runner's collaborators. Locks, audit, reports,
// reviews, alerts, and events may be nil; the Runner degrades to an
// unpersisted single-instance pass.
type RunnerDeps struct {
	Ledger  domain.Ledger
	Decider *Decider
	Locks   domain.LockManager
	Audit   domain.AuditStore
	Reports domain.ReportStore
	Reviews domain.ReviewStore
	Cache   domain.MarketCache
	Alerts  Alerter
	Events  Publisher
}

// NewRunner creates a pass Runner.
func NewRunner(deps RunnerDeps, cfg PassConfig, logger *slog.Logger) *Runner {
	if cfg.Budget <= 0 {
		cfg.Budget = 5 * time.Minute
	}
	if cfg.MarketDelay <= 0 {
		cfg.MarketDelay = 400 * time.Millisecond
	}
	if cfg.RateLimitCooldown <= 0 {
		cfg.RateLimitCooldown = 5 * time.Second
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = cfg.Budget + time.Minute
	}
	return &Runner{
		ledger:  deps.Ledger,
		decider: deps.Decider,
		locks:   deps.Locks,
		audit:   deps.Audit,
		reports: deps.Reports,
		reviews: deps.Reviews,
		cache:   deps.Cache,
		alerts:  deps.Alerts,
		events:  deps.Events,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "pass")),
		now:     time.Now,
		sleep:   sleepCtx,
	}
}

// Run executes one resolution pass and returns its report. A pass already
// running elsewhere returns domain.ErrLockHeld.
func (r *Runner) Run(ctx context.Context) (domain.PassReport, error) {
	report := domain.PassReport{
		ID:        uuid.New().String(),
		StartedAt: r.now(),
	}

	if r.locks != nil {
		unlock, err := r.locks.Acquire(ctx, passLockKey, r.cfg.LockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				r.logger.InfoContext(ctx, "pass already running, skipping trigger")
				return report, domain.ErrLockHeld
			}
			return report, fmt.Errorf("engine: acquire pass lock: %w", err)
		}
		defer unlock()
	}

	passCtx, cancel := context.WithTimeout(ctx, r.cfg.Budget)
	defer cancel()

	r.publish("pass_started", map[string]any{"pass_id": report.ID})

	ids, err := r.ledger.ListOpenMarkets(passCtx)
	if err != nil {
		report.FinishedAt = r.now()
		r.saveReport(ctx, report)
		return report, fmt.Errorf("engine: list open markets: %w", err)
	}

	for i, id := range ids {
		if passCtx.Err() != nil {
			// Budget exhausted: stop cleanly, remaining markets wait for the
			// next trigger.
			r.logger.InfoContext(ctx, "pass budget exhausted",
				slog.String("pass_id", report.ID),
				slog.Int("remaining", len(ids)-i),
			)
			break
		}
		if i > 0 {
			if err := r.sleep(passCtx, r.cfg.MarketDelay); err != nil {
				break
			}
		}

		outcome := r.processMarket(passCtx, report.ID, id)
		report.Record(outcome)

		if outcome.Error != "" && errorMentionsRateLimit(outcome.Error) {
			// Cool down before hammering the next market.
			_ = r.sleep(passCtx, r.cfg.RateLimitCooldown)
		}
	}

	report.FinishedAt = r.now()
	r.saveReport(ctx, report)
	r.publish("pass_finished", report)

	r.logger.InfoContext(ctx, "pass finished",
		slog.String("pass_id", report.ID),
		slog.Int("checked", report.Checked),
		slog.Int("resolved", report.Resolved),
		slog.Int("cancelled", report.Cancelled),
		slog.Int("skipped", report.Skipped),
		slog.Int("unresolvable", report.Unresolvable),
		slog.Int("failed", report.Failed),
	)
	return report, nil
}

// processMarket handles one market end to end. All failures are contained in
// the returned outcome; one market must never abort the rest of the pass.
func (r *Runner) processMarket(ctx context.Context, passID string, id domain.MarketID) domain.MarketOutcome {
	outcome := domain.MarketOutcome{MarketID: id}

	market, err := r.ledger.ReadMarket(ctx, id)
	if err != nil {
		outcome.Error = err.Error()
		return outcome
	}
	outcome.Question = market.Question

	if market.Phase(r.now()) != domain.PhaseEnded {
		outcome.Skipped = true
		return outcome
	}

	rule := interp.Interpret(market.Question)
	outcome.RuleKind = rule.Kind

	verdict, fact, err := r.decider.Decide(ctx, market, rule)
	if err != nil {
		outcome.Error = err.Error()
		return outcome
	}
	outcome.Verdict = verdict

	if verdict == domain.VerdictUnresolvable {
		r.flagForReview(ctx, market, rule)
		return outcome
	}

	// Re-read before the one state-changing submit of this pass: a concurrent
	// resolver or stale enumeration may have settled the market already.
	fresh, err := r.ledger.ReadMarket(ctx, id)
	if err != nil {
		outcome.Error = err.Error()
		return outcome
	}
	if fresh.Phase(r.now()) != domain.PhaseEnded {
		outcome.Verdict = ""
		outcome.Skipped = true
		return outcome
	}

	txRef, submitErr := r.submit(ctx, id, verdict)
	r.recordAttempt(ctx, passID, id, verdict, txRef, submitErr)

	if submitErr != nil {
		if errors.Is(submitErr, domain.ErrAlreadyResolved) {
			// Benign race with a concurrent resolver; logged, not retried.
			r.logger.InfoContext(ctx, "market settled concurrently",
				slog.Uint64("market_id", uint64(id)),
			)
			outcome.Verdict = ""
			outcome.Skipped = true
			return outcome
		}
		outcome.Error = submitErr.Error()
		r.alert(ctx, "resolve_failed", "Resolution submit failed",
			fmt.Sprintf("market %d: %v", id, submitErr))
		return outcome
	}

	if r.cache != nil {
		// Drop any cached pre-resolution snapshot.
		if err := r.cache.Invalidate(ctx, id); err != nil {
			r.logger.WarnContext(ctx, "cache invalidate failed",
				slog.Uint64("market_id", uint64(id)),
				slog.String("error", err.Error()),
			)
		}
	}

	outcome.TxRef = txRef
	switch verdict {
	case domain.VerdictCancelNoWinners:
		r.publish("market_cancelled", outcome)
	default:
		r.publish("market_resolved", outcome)
	}
	r.logger.InfoContext(ctx, "market settled",
		slog.Uint64("market_id", uint64(id)),
		slog.String("verdict", string(verdict)),
		slog.String("fact_source", fact.Source),
		slog.Float64("fact_value", fact.Value),
		slog.String("tx_ref", txRef),
	)
	return outcome
}

// submit sends the single state-changing request for the verdict.
func (r *Runner) submit(ctx context.Context, id domain.MarketID, verdict domain.Verdict) (string, error) {
	if side, ok := verdict.WinningSide(); ok {
		tx, err := r.ledger.SubmitResolve(ctx, id, side)
		if err != nil {
			return "", err
		}
		return tx.Hex(), nil
	}
	tx, err := r.ledger.SubmitCancel(ctx, id)
	if err != nil {
		return "", err
	}
	return tx.Hex(), nil
}

// flagForReview opens a review case for a market the engine cannot judge,
// and alerts the operators. The automatic pass never closes a case.
func (r *Runner) flagForReview(ctx context.Context, market domain.Market, rule domain.ResolutionRule) {
	r.publish("market_unresolvable", map[string]any{
		"market_id": market.ID,
		"question":  market.Question,
		"rule_kind": rule.Kind,
	})
	r.alert(ctx, "unresolvable", "Market needs human resolution",
		fmt.Sprintf("market %d: %q (%s)", market.ID, market.Question, rule.Kind))

	if r.reviews == nil {
		return
	}
	if _, err := r.reviews.GetOpenByMarket(ctx, market.ID); err == nil {
		return // case already open
	} else if !errors.Is(err, domain.ErrNotFound) {
		r.logger.WarnContext(ctx, "review lookup failed",
			slog.Uint64("market_id", uint64(market.ID)),
			slog.String("error", err.Error()),
		)
		return
	}
	c := domain.ReviewCase{
		ID:        uuid.New().String(),
		MarketID:  market.ID,
		Question:  market.Question,
		Status:    domain.ReviewOpen,
		CreatedAt: r.now(),
	}
	if err := r.reviews.Create(ctx, c); err != nil {
		r.logger.WarnContext(ctx, "review case create failed",
			slog.Uint64("market_id", uint64(market.ID)),
			slog.String("error", err.Error()),
		)
	}
}

func (r *Runner) recordAttempt(ctx context.Context, passID string, id domain.MarketID, verdict domain.Verdict, txRef string, submitErr error) {
	if r.audit == nil {
		return
	}
	attempt := domain.ResolutionAttempt{
		PassID:    passID,
		MarketID:  id,
		Verdict:   verdict,
		TxRef:     txRef,
		CreatedAt: r.now(),
	}
	if submitErr != nil {
		attempt.Error = submitErr.Error()
	}
	if err := r.audit.RecordAttempt(ctx, attempt); err != nil {
		r.logger.WarnContext(ctx, "audit write failed",
			slog.Uint64("market_id", uint64(id)),
			slog.String("error", err.Error()),
		)
	}
}

func (r *Runner) saveReport(ctx context.Context, report domain.PassReport) {
	if r.reports == nil {
		return
	}
	if err := r.reports.Save(ctx, report); err != nil {
		r.logger.WarnContext(ctx, "report save failed",
			slog.String("pass_id", report.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (r *Runner) publish(event string, payload any) {
	if r.events != nil {
		r.events.Publish(event, payload)
	}
}

func (r *Runner) alert(ctx context.Context, event, title, message string) {
	if r.alerts == nil {
		return
	}
	if err := r.alerts.Notify(ctx, event, title, message); err != nil {
		r.logger.WarnContext(ctx, "alert delivery failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// errorMentionsRateLimit inspects a recorded outcome error for the ledger's
// rate-limit sentinel text.
func errorMentionsRateLimit(msg string) bool {
	return strings.Contains(msg, domain.ErrRateLimited.Error())
}
