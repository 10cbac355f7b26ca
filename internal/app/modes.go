package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/predly/settler/internal/crypto"
	"github.com/predly/settler/internal/domain"
	"github.com/predly/settler/internal/engine"
	"github.com/predly/settler/internal/ledger"
	"github.com/predly/settler/internal/oracle"
	"github.com/predly/settler/internal/review"
	"github.com/predly/settler/internal/server"
	"github.com/predly/settler/internal/server/handler"
	"github.com/predly/settler/internal/server/ws"
	"github.com/predly/settler/internal/service"
)

// OnceMode runs exactly one resolution pass and exits. Useful for cron-driven
// deployments and manual operator runs.
func (a *App) OnceMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting once mode")

	ledgerClient, err := a.buildLedger(true)
	if err != nil {
		return fmt.Errorf("once mode: %w", err)
	}

	runner := a.buildRunner(ledgerClient, deps, nil)
	report, err := runner.Run(ctx)
	if err != nil {
		return fmt.Errorf("once mode: pass failed: %w", err)
	}

	a.logPassReport(ctx, report)
	return nil
}

// DaemonMode runs resolution passes on an interval, consumes manual triggers
// from the HTTP API, enriches open review cases, archives old audit history,
// and serves the HTTP + WebSocket API when enabled.
func (a *App) DaemonMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting daemon mode",
		slog.Duration("interval", a.cfg.Engine.Interval.Duration),
	)

	ledgerClient, err := a.buildLedger(true)
	if err != nil {
		return fmt.Errorf("daemon mode: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	// WebSocket hub carries live pass events to dashboard clients.
	var hub *ws.Hub
	if a.cfg.Server.Enabled {
		hub = ws.NewHub(a.logger)
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	var events engine.Publisher
	if hub != nil {
		events = hub
	}
	runner := a.buildRunner(ledgerClient, deps, events)

	// Pass loop: one run at startup, then on every tick. Manual triggers run
	// through the HTTP handler; the pass lock keeps the two from overlapping.
	g.Go(func() error {
		runOnce := func() {
			report, runErr := runner.Run(ctx)
			if runErr != nil {
				if ctx.Err() != nil {
					return
				}
				if errors.Is(runErr, domain.ErrLockHeld) {
					// A manually triggered pass is in flight.
					return
				}
				a.logger.ErrorContext(ctx, "resolution pass failed",
					slog.String("error", runErr.Error()),
				)
				if deps.Notifier != nil {
					_ = deps.Notifier.Notify(ctx, "pass_failed", "Resolution pass failed", runErr.Error())
				}
				return
			}
			a.logPassReport(ctx, report)
		}

		runOnce()
		ticker := time.NewTicker(a.cfg.Engine.Interval.Duration)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				runOnce()
			}
		}
	})

	// Review evidence enrichment, when a search endpoint is configured.
	reviewSvc := a.buildReviewService(ledgerClient, deps)
	if a.cfg.Review.SearchURL != "" {
		g.Go(func() error {
			ticker := time.NewTicker(a.cfg.Review.EnrichInterval.Duration)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					if err := reviewSvc.EnrichOpenCases(ctx); err != nil && ctx.Err() == nil {
						a.logger.WarnContext(ctx, "review enrichment failed",
							slog.String("error", err.Error()),
						)
					}
				}
			}
		})
	}

	// Scheduled archival of old audit history to object storage.
	if a.cfg.Archive.Enabled && deps.Archiver != nil {
		retention := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour
		g.Go(func() error {
			ticker := time.NewTicker(a.cfg.Archive.Interval.Duration)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					cutoff := time.Now().UTC().Add(-retention)
					summary, archErr := deps.Archiver.Archive(ctx, cutoff)
					if archErr != nil {
						if ctx.Err() != nil {
							return nil
						}
						a.logger.ErrorContext(ctx, "archive run failed",
							slog.String("error", archErr.Error()),
						)
						continue
					}
					a.logger.InfoContext(ctx, "archive run complete",
						slog.Int("attempts", summary.Attempts),
						slog.Int("reports", summary.Reports),
					)
				}
			}
		})
	}

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, ledgerClient, reviewSvc, hub, runner)
	}

	return g.Wait()
}

// ServerMode serves the HTTP + WebSocket API without scheduled resolution
// passes. When signing credentials are configured the manual trigger still
// works; otherwise the ledger client is read-only and resolve/cancel writes
// are rejected.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	signed := a.cfg.Signer.PrivateKey != "" || a.cfg.Signer.EncryptedKeyPath != ""
	a.logger.InfoContext(ctx, "starting server mode",
		slog.Bool("manual_triggers", signed),
	)

	ledgerClient, err := a.buildLedger(signed)
	if err != nil {
		return fmt.Errorf("server mode: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	hub := ws.NewHub(a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	var runner *engine.Runner
	if signed {
		runner = a.buildRunner(ledgerClient, deps, hub)
	}

	reviewSvc := a.buildReviewService(ledgerClient, deps)
	a.startHTTPServer(ctx, g, deps, ledgerClient, reviewSvc, hub, runner)

	return g.Wait()
}

// buildLedger constructs the gateway client. When signed is true the resolver
// signing key is loaded and writes are enabled.
func (a *App) buildLedger(signed bool) (*ledger.Client, error) {
	var signer *crypto.RequestSigner
	if signed {
		keyHex, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    a.cfg.Signer.PrivateKey,
			EncryptedKeyPath: a.cfg.Signer.EncryptedKeyPath,
			KeyPassword:      a.cfg.Signer.KeyPassword,
		})
		if err != nil {
			return nil, fmt.Errorf("load signing key: %w", err)
		}
		signer, err = crypto.NewSigner(keyHex)
		if err != nil {
			return nil, fmt.Errorf("build signer: %w", err)
		}
	}

	return ledger.New(ledger.Config{
		Endpoints: a.cfg.Ledger.Endpoints,
		Contract:  common.HexToAddress(a.cfg.Ledger.Contract),
		Timeout:   a.cfg.Ledger.Timeout.Duration,
	}, signer, a.logger)
}

// buildOracle assembles the fact source chains from the configured providers.
// The first source in a chain is primary; the rest are ordered fallbacks.
func (a *App) buildOracle() *oracle.Client {
	timeout := a.cfg.Oracle.Timeout.Duration

	var priceSources []oracle.Source
	if a.cfg.Oracle.CoinGeckoURL != "" {
		priceSources = append(priceSources, oracle.NewCoinGecko(a.cfg.Oracle.CoinGeckoURL, timeout))
	}
	if a.cfg.Oracle.BinanceURL != "" {
		priceSources = append(priceSources, oracle.NewBinance(a.cfg.Oracle.BinanceURL, timeout))
	}

	chains := map[domain.FactKind][]oracle.Source{
		domain.FactBitcoinUSD:  priceSources,
		domain.FactEthereumUSD: priceSources,
		domain.FactSolanaUSD:   priceSources,
	}
	if a.cfg.Oracle.EtherscanURL != "" {
		chains[domain.FactGasGwei] = []oracle.Source{
			oracle.NewEtherscan(a.cfg.Oracle.EtherscanURL, a.cfg.Oracle.EtherscanAPIKey, timeout),
		}
	}

	return oracle.New(chains, oracle.Config{
		Timeout:           timeout,
		MaxStaleness:      a.cfg.Oracle.MaxStaleness.Duration,
		RequestsPerSecond: a.cfg.Oracle.RequestsPerSecond,
	}, a.logger)
}

// buildRunner assembles the decider and pass runner. events may be nil when
// no WebSocket hub is running.
func (a *App) buildRunner(ledgerClient *ledger.Client, deps *Dependencies, events engine.Publisher) *engine.Runner {
	decider := engine.NewDecider(a.buildOracle(), engine.DecideConfig{
		OracleRetries: a.cfg.Engine.OracleRetries,
		OracleBackoff: a.cfg.Engine.OracleBackoff.Duration,
	}, a.logger)

	runnerDeps := engine.RunnerDeps{
		Ledger:  ledgerClient,
		Decider: decider,
		Locks:   deps.LockManager,
		Audit:   deps.AuditStore,
		Reports: deps.ReportStore,
		Reviews: deps.ReviewStore,
		Cache:   deps.MarketCache,
		Alerts:  deps.Notifier,
		Events:  events,
	}

	return engine.NewRunner(runnerDeps, engine.PassConfig{
		Budget:            a.cfg.Engine.Budget.Duration,
		MarketDelay:       a.cfg.Engine.MarketDelay.Duration,
		RateLimitCooldown: a.cfg.Engine.RateLimitCooldown.Duration,
		LockTTL:           a.cfg.Engine.LockTTL.Duration,
	}, a.logger)
}

// buildReviewService assembles the review queue service with an optional
// evidence search source.
func (a *App) buildReviewService(ledgerClient *ledger.Client, deps *Dependencies) *review.Service {
	var evidence review.EvidenceSource
	if a.cfg.Review.SearchURL != "" {
		evidence = review.NewSearchClient(
			a.cfg.Review.SearchURL,
			a.cfg.Review.MaxResults,
			a.cfg.Oracle.Timeout.Duration,
		)
	}
	return review.NewService(ledgerClient, deps.ReviewStore, deps.AuditStore, evidence, a.logger)
}

// startHTTPServer adds the API server goroutines to the given errgroup.
// runner is optional; when non-nil, POST /api/resolution/run executes one
// pass and returns its report.
func (a *App) startHTTPServer(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	ledgerClient *ledger.Client,
	reviewSvc *review.Service,
	hub *ws.Hub,
	runner *engine.Runner,
) {
	pingers := map[string]handler.Pinger{
		"postgres": deps.PGClient,
		"redis":    deps.RedisClient,
	}
	if deps.S3Client != nil {
		pingers["s3"] = pingerFunc(deps.S3Client.Health)
	}

	marketSvc := service.NewMarketService(ledgerClient, deps.MarketCache, a.logger)
	claimSvc := engine.NewClaimService(ledgerClient, a.cfg.Engine.FeeBps, a.logger)

	resolutionH := handler.NewResolutionHandler(deps.ReportStore, a.logger)
	if runner != nil {
		resolutionH = resolutionH.WithPassRunner(runner)
	}

	handlers := server.Handlers{
		Health:     handler.NewHealthHandler(pingers, a.logger),
		Markets:    handler.NewMarketHandler(marketSvc, a.logger),
		Resolution: resolutionH,
		Claims:     handler.NewClaimHandler(claimSvc, a.logger),
		Review:     handler.NewReviewHandler(reviewSvc, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:          a.cfg.Server.Port,
		CORSOrigins:   a.cfg.Server.CORSOrigins,
		APIKey:        a.cfg.Server.APIKey,
		RateLimit:     a.cfg.Server.RateLimit,
		RateLimitTime: a.cfg.Server.RateLimitWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// logPassReport emits the structured pass summary.
func (a *App) logPassReport(ctx context.Context, report domain.PassReport) {
	a.logger.InfoContext(ctx, "resolution pass complete",
		slog.String("pass_id", report.ID),
		slog.Int("checked", report.Checked),
		slog.Int("resolved", report.Resolved),
		slog.Int("cancelled", report.Cancelled),
		slog.Int("skipped", report.Skipped),
		slog.Int("unresolvable", report.Unresolvable),
		slog.Int("failed", report.Failed),
		slog.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	)
}

// pingerFunc adapts a bare health function to the handler.Pinger interface.
type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }
