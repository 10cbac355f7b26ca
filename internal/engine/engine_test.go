package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predly/settler/internal/domain"
)

// ---------------------------------------------------------------------------
// In-memory fakes
// ---------------------------------------------------------------------------

type fakeFacts struct {
	mu     sync.Mutex
	values map[domain.FactKind]float64
	fails  int // number of leading calls that fail
	calls  int
}

func (f *fakeFacts) FetchFact(ctx context.Context, kind domain.FactKind) (domain.Fact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.fails {
		return domain.Fact{}, fmt.Errorf("boom: %w", domain.ErrFactUnavailable)
	}
	v, ok := f.values[kind]
	if !ok {
		return domain.Fact{}, domain.ErrFactUnavailable
	}
	return domain.Fact{Kind: kind, Value: v, Source: "fake", ObservedAt: time.Now()}, nil
}

func (f *fakeFacts) MaxStaleness() time.Duration { return time.Minute }

type fakeLedger struct {
	mu      sync.Mutex
	markets map[domain.MarketID]*domain.Market
	stakes  map[string]*domain.UserStake
	submits int
}

func stakeKey(id domain.MarketID, p common.Address) string {
	return fmt.Sprintf("%d/%s", id, p.Hex())
}

func (l *fakeLedger) ListOpenMarkets(ctx context.Context) ([]domain.MarketID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var ids []domain.MarketID
	for id, m := range l.markets {
		if m.Status == domain.MarketStatusActive {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (l *fakeLedger) ReadMarket(ctx context.Context, id domain.MarketID) (domain.Market, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return *m, nil
}

func (l *fakeLedger) SubmitResolve(ctx context.Context, id domain.MarketID, side domain.Side) (common.Hash, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.submits++
	m := l.markets[id]
	if m.Status != domain.MarketStatusActive {
		return common.Hash{}, domain.ErrAlreadyResolved
	}
	m.Status = domain.MarketStatusResolved
	m.Winner = &side
	return common.HexToHash("0x1"), nil
}

func (l *fakeLedger) SubmitCancel(ctx context.Context, id domain.MarketID) (common.Hash, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.submits++
	m := l.markets[id]
	if m.Status != domain.MarketStatusActive {
		return common.Hash{}, domain.ErrAlreadyResolved
	}
	m.Status = domain.MarketStatusCancelled
	return common.HexToHash("0x2"), nil
}

func (l *fakeLedger) ReadUserStake(ctx context.Context, id domain.MarketID, p common.Address) (domain.UserStake, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.stakes[stakeKey(id, p)]
	if !ok {
		return domain.UserStake{}, domain.ErrNotFound
	}
	return *s, nil
}

func (l *fakeLedger) ClaimPayout(ctx context.Context, id domain.MarketID, p common.Address) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.stakes[stakeKey(id, p)]
	if s.Claimed {
		return nil, domain.ErrAlreadyClaimed
	}
	s.Claimed = true
	return big.NewInt(1), nil
}

type fakeReviews struct {
	mu    sync.Mutex
	cases map[domain.MarketID]domain.ReviewCase
}

func (r *fakeReviews) Create(ctx context.Context, c domain.ReviewCase) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cases == nil {
		r.cases = map[domain.MarketID]domain.ReviewCase{}
	}
	r.cases[c.MarketID] = c
	return nil
}

func (r *fakeReviews) Get(ctx context.Context, id string) (domain.ReviewCase, error) {
	return domain.ReviewCase{}, domain.ErrNotFound
}

func (r *fakeReviews) GetOpenByMarket(ctx context.Context, id domain.MarketID) (domain.ReviewCase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cases[id]
	if !ok {
		return domain.ReviewCase{}, domain.ErrNotFound
	}
	return c, nil
}

func (r *fakeReviews) ListOpen(ctx context.Context, opts domain.ListOpts) ([]domain.ReviewCase, error) {
	return nil, nil
}

func (r *fakeReviews) UpdateEvidence(ctx context.Context, id string, rec domain.Verdict, conf float64, evidence []string) error {
	return nil
}

func (r *fakeReviews) Close(ctx context.Context, c domain.ReviewCase) error { return nil }

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func eth(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func endedMarket(id domain.MarketID, question string, yes, no *big.Int) *domain.Market {
	return &domain.Market{
		ID:        id,
		Question:  question,
		ExpiresAt: time.Now().Add(-time.Hour),
		YesPool:   yes,
		NoPool:    no,
		Status:    domain.MarketStatusActive,
	}
}

func newTestDecider(facts FactSource) *Decider {
	d := NewDecider(facts, DecideConfig{OracleRetries: 3, OracleBackoff: time.Millisecond}, slog.New(slog.DiscardHandler))
	d.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return d
}

func newTestRunner(ledger domain.Ledger, facts FactSource, reviews domain.ReviewStore) *Runner {
	r := NewRunner(RunnerDeps{
		Ledger:  ledger,
		Decider: newTestDecider(facts),
		Reviews: reviews,
	}, PassConfig{
		Budget:      time.Minute,
		MarketDelay: time.Millisecond,
	}, slog.New(slog.DiscardHandler))
	r.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return r
}

// ---------------------------------------------------------------------------
// Decider
// ---------------------------------------------------------------------------

func TestDecide_ThresholdYes(t *testing.T) {
	facts := &fakeFacts{values: map[domain.FactKind]float64{domain.FactBitcoinUSD: 95000}}
	d := newTestDecider(facts)

	market := endedMarket(1, "Will the Bitcoin price be above $90,000?", eth(6), eth(4))
	rule := domain.ResolutionRule{
		Kind: domain.RuleThreshold, Fact: domain.FactBitcoinUSD,
		Cmp: domain.CmpAbove, Threshold: 90000,
	}

	verdict, fact, err := d.Decide(context.Background(), *market, rule)
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictYes, verdict)
	assert.Equal(t, 95000.0, fact.Value)
}

func TestDecide_Idempotent(t *testing.T) {
	facts := &fakeFacts{values: map[domain.FactKind]float64{domain.FactBitcoinUSD: 95000}}
	d := newTestDecider(facts)

	market := endedMarket(1, "q", eth(6), eth(4))
	rule := domain.ResolutionRule{
		Kind: domain.RuleThreshold, Fact: domain.FactBitcoinUSD,
		Cmp: domain.CmpAbove, Threshold: 90000,
	}

	v1, _, err := d.Decide(context.Background(), *market, rule)
	require.NoError(t, err)
	v2, _, err := d.Decide(context.Background(), *market, rule)
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
}

func TestDecide_EmptyWinningPoolCancels(t *testing.T) {
	facts := &fakeFacts{values: map[domain.FactKind]float64{domain.FactBitcoinUSD: 95000}}
	d := newTestDecider(facts)

	// YES would win but nobody staked YES: refund, never confiscate.
	market := endedMarket(1, "q", new(big.Int), eth(5))
	rule := domain.ResolutionRule{
		Kind: domain.RuleThreshold, Fact: domain.FactBitcoinUSD,
		Cmp: domain.CmpAbove, Threshold: 90000,
	}

	verdict, _, err := d.Decide(context.Background(), *market, rule)
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictCancelNoWinners, verdict)
}

func TestDecide_UnresolvableRuleNeverGuesses(t *testing.T) {
	d := newTestDecider(&fakeFacts{})
	for _, kind := range []domain.RuleKind{domain.RuleUnresolvable, domain.RuleUnverifiable} {
		verdict, _, err := d.Decide(context.Background(), *endedMarket(1, "q", eth(1), eth(1)), domain.ResolutionRule{Kind: kind})
		require.NoError(t, err)
		assert.Equal(t, domain.VerdictUnresolvable, verdict)
	}
}

func TestDecide_OracleExhaustionDefersWithoutError(t *testing.T) {
	facts := &fakeFacts{fails: 100}
	d := newTestDecider(facts)

	rule := domain.ResolutionRule{
		Kind: domain.RuleThreshold, Fact: domain.FactBitcoinUSD,
		Cmp: domain.CmpAbove, Threshold: 90000,
	}
	verdict, _, err := d.Decide(context.Background(), *endedMarket(1, "q", eth(1), eth(1)), rule)
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictUnresolvable, verdict)
	assert.Equal(t, 3, facts.calls) // bounded retries
}

func TestDecide_RetriesThenSucceeds(t *testing.T) {
	facts := &fakeFacts{
		fails:  2,
		values: map[domain.FactKind]float64{domain.FactBitcoinUSD: 95000},
	}
	d := newTestDecider(facts)

	rule := domain.ResolutionRule{
		Kind: domain.RuleThreshold, Fact: domain.FactBitcoinUSD,
		Cmp: domain.CmpAbove, Threshold: 90000,
	}
	verdict, _, err := d.Decide(context.Background(), *endedMarket(1, "q", eth(1), eth(1)), rule)
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictYes, verdict)
}

// ---------------------------------------------------------------------------
// Runner
// ---------------------------------------------------------------------------

func TestRun_ResolvesEndedMarket(t *testing.T) {
	ledger := &fakeLedger{markets: map[domain.MarketID]*domain.Market{
		1: endedMarket(1, "Will the Bitcoin price be above $90,000 at expiry?", eth(6), eth(4)),
	}}
	facts := &fakeFacts{values: map[domain.FactKind]float64{domain.FactBitcoinUSD: 95000}}

	report, err := newTestRunner(ledger, facts, nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Checked)
	assert.Equal(t, 1, report.Resolved)
	assert.Equal(t, domain.MarketStatusResolved, ledger.markets[1].Status)
	assert.Equal(t, domain.SideYes, *ledger.markets[1].Winner)
}

func TestRun_SkipsActiveMarkets(t *testing.T) {
	m := endedMarket(1, "q", eth(1), eth(1))
	m.ExpiresAt = time.Now().Add(time.Hour)
	ledger := &fakeLedger{markets: map[domain.MarketID]*domain.Market{1: m}}

	report, err := newTestRunner(ledger, &fakeFacts{}, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
	assert.Zero(t, ledger.submits)
}

func TestRun_CancelsWhenWinningPoolEmpty(t *testing.T) {
	ledger := &fakeLedger{markets: map[domain.MarketID]*domain.Market{
		1: endedMarket(1, "Will the Bitcoin price be above $90,000 at expiry?", new(big.Int), eth(5)),
	}}
	facts := &fakeFacts{values: map[domain.FactKind]float64{domain.FactBitcoinUSD: 95000}}

	report, err := newTestRunner(ledger, facts, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Cancelled)
	assert.Equal(t, domain.MarketStatusCancelled, ledger.markets[1].Status)
}

func TestRun_UnrecognizedQuestionOpensReviewCase(t *testing.T) {
	ledger := &fakeLedger{markets: map[domain.MarketID]*domain.Market{
		1: endedMarket(1, "Will the senate pass the bill?", eth(1), eth(1)),
	}}
	reviews := &fakeReviews{}

	report, err := newTestRunner(ledger, &fakeFacts{}, reviews).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Unresolvable)
	assert.Equal(t, domain.MarketStatusActive, ledger.markets[1].Status)

	c, err := reviews.GetOpenByMarket(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, domain.ReviewOpen, c.Status)

	// A second pass does not duplicate the case.
	_, err = newTestRunner(ledger, &fakeFacts{}, reviews).Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, reviews.cases, 1)
}

func TestRun_OracleOutageThenRecovery(t *testing.T) {
	ledger := &fakeLedger{markets: map[domain.MarketID]*domain.Market{
		1: endedMarket(1, "Will the Bitcoin price be above $90,000 at expiry?", eth(6), eth(4)),
	}}

	// First pass: oracle down, market stays ended.
	report, err := newTestRunner(ledger, &fakeFacts{fails: 100}, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Unresolvable)
	assert.Equal(t, domain.MarketStatusActive, ledger.markets[1].Status)

	// Second pass: oracle back, market resolves without conflict.
	facts := &fakeFacts{values: map[domain.FactKind]float64{domain.FactBitcoinUSD: 95000}}
	report, err = newTestRunner(ledger, facts, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Resolved)
	assert.Zero(t, report.Failed)
}

func TestRun_FailureIsolation(t *testing.T) {
	ledger := &fakeLedger{markets: map[domain.MarketID]*domain.Market{
		1: endedMarket(1, "Will the Bitcoin price be above $90,000 at expiry?", eth(6), eth(4)),
		2: endedMarket(2, "Will ETH gas be above 50 gwei?", eth(2), eth(2)),
	}}
	// Oracle knows BTC but not gas: the gas market defers, the BTC market
	// still settles in the same pass.
	facts := &fakeFacts{values: map[domain.FactKind]float64{domain.FactBitcoinUSD: 95000}}

	report, err := newTestRunner(ledger, facts, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Checked)
	assert.Equal(t, 1, report.Resolved)
	assert.Equal(t, 1, report.Unresolvable)
}

type heldLocks struct{}

func (heldLocks) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	return nil, domain.ErrLockHeld
}

func TestRun_LockHeldSkipsPass(t *testing.T) {
	ledger := &fakeLedger{markets: map[domain.MarketID]*domain.Market{}}
	r := NewRunner(RunnerDeps{
		Ledger:  ledger,
		Decider: newTestDecider(&fakeFacts{}),
		Locks:   heldLocks{},
	}, PassConfig{}, slog.New(slog.DiscardHandler))

	_, err := r.Run(context.Background())
	assert.ErrorIs(t, err, domain.ErrLockHeld)
}

// ---------------------------------------------------------------------------
// Claims
// ---------------------------------------------------------------------------

func TestClaim_Rejections(t *testing.T) {
	addr := common.HexToAddress("0xa1")
	yes := domain.SideYes
	ledger := &fakeLedger{
		markets: map[domain.MarketID]*domain.Market{
			1: endedMarket(1, "open", eth(1), eth(1)),
			2: {ID: 2, YesPool: eth(6), NoPool: eth(4), Status: domain.MarketStatusResolved, Winner: &yes},
		},
		stakes: map[string]*domain.UserStake{
			stakeKey(1, addr): {MarketID: 1, Participant: addr, YesAmount: eth(1), NoAmount: new(big.Int)},
			stakeKey(2, addr): {MarketID: 2, Participant: addr, YesAmount: eth(1), NoAmount: new(big.Int), Claimed: true},
		},
	}
	svc := NewClaimService(ledger, 250, slog.New(slog.DiscardHandler))

	_, err := svc.Preview(context.Background(), 1, addr)
	assert.ErrorIs(t, err, domain.ErrMarketOpen)

	_, err = svc.Preview(context.Background(), 2, addr)
	assert.ErrorIs(t, err, domain.ErrAlreadyClaimed)
}

func TestClaim_Execute(t *testing.T) {
	addr := common.HexToAddress("0xa1")
	yes := domain.SideYes
	ledger := &fakeLedger{
		markets: map[domain.MarketID]*domain.Market{
			2: {ID: 2, YesPool: eth(6), NoPool: eth(4), Status: domain.MarketStatusResolved, Winner: &yes},
		},
		stakes: map[string]*domain.UserStake{
			stakeKey(2, addr): {MarketID: 2, Participant: addr, YesAmount: eth(1), NoAmount: new(big.Int)},
		},
	}
	svc := NewClaimService(ledger, 250, slog.New(slog.DiscardHandler))

	amount, err := svc.Execute(context.Background(), 2, addr)
	require.NoError(t, err)
	assert.NotNil(t, amount)
	assert.True(t, ledger.stakes[stakeKey(2, addr)].Claimed)

	// Second claim is rejected by the ledger's claimed flag.
	_, err = svc.Execute(context.Background(), 2, addr)
	assert.ErrorIs(t, err, domain.ErrAlreadyClaimed)
}
