package review

import (
	"context"
	"io"
	"log/slog"
	"math/big"
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

type fakeLedger struct {
	market   domain.Market
	resolves []domain.MarketID
	cancels  []domain.MarketID
}

func (f *fakeLedger) ListOpenMarkets(ctx context.Context) ([]domain.MarketID, error) {
	return nil, nil
}

func (f *fakeLedger) ReadMarket(ctx context.Context, id domain.MarketID) (domain.Market, error) {
	return f.market, nil
}

func (f *fakeLedger) SubmitResolve(ctx context.Context, id domain.MarketID, side domain.Side) (common.Hash, error) {
	f.resolves = append(f.resolves, id)
	return common.HexToHash("0xabc"), nil
}

func (f *fakeLedger) SubmitCancel(ctx context.Context, id domain.MarketID) (common.Hash, error) {
	f.cancels = append(f.cancels, id)
	return common.HexToHash("0xdef"), nil
}

func (f *fakeLedger) ReadUserStake(ctx context.Context, id domain.MarketID, participant common.Address) (domain.UserStake, error) {
	return domain.UserStake{}, domain.ErrNotFound
}

func (f *fakeLedger) ClaimPayout(ctx context.Context, id domain.MarketID, participant common.Address) (*big.Int, error) {
	return nil, domain.ErrNotFound
}

type fakeReviewStore struct {
	cases  map[string]domain.ReviewCase
	closed []domain.ReviewCase
}

func (f *fakeReviewStore) Create(ctx context.Context, c domain.ReviewCase) error {
	f.cases[c.ID] = c
	return nil
}

func (f *fakeReviewStore) Get(ctx context.Context, id string) (domain.ReviewCase, error) {
	c, ok := f.cases[id]
	if !ok {
		return domain.ReviewCase{}, domain.ErrNotFound
	}
	return c, nil
}

func (f *fakeReviewStore) GetOpenByMarket(ctx context.Context, id domain.MarketID) (domain.ReviewCase, error) {
	return domain.ReviewCase{}, domain.ErrNotFound
}

func (f *fakeReviewStore) ListOpen(ctx context.Context, opts domain.ListOpts) ([]domain.ReviewCase, error) {
	var open []domain.ReviewCase
	for _, c := range f.cases {
		if c.Status == domain.ReviewOpen {
			open = append(open, c)
		}
	}
	return open, nil
}

func (f *fakeReviewStore) UpdateEvidence(ctx context.Context, id string, recommendation domain.Verdict, confidence float64, evidence []string) error {
	c := f.cases[id]
	c.Recommendation = recommendation
	c.Confidence = confidence
	c.Evidence = evidence
	f.cases[id] = c
	return nil
}

func (f *fakeReviewStore) Close(ctx context.Context, c domain.ReviewCase) error {
	f.cases[c.ID] = c
	f.closed = append(f.closed, c)
	return nil
}

type fakeAudit struct {
	attempts []domain.ResolutionAttempt
}

func (f *fakeAudit) RecordAttempt(ctx context.Context, a domain.ResolutionAttempt) error {
	f.attempts = append(f.attempts, a)
	return nil
}

func (f *fakeAudit) ListAttempts(ctx context.Context, opts domain.ListOpts) ([]domain.ResolutionAttempt, error) {
	return f.attempts, nil
}

func (f *fakeAudit) ListAttemptsBefore(ctx context.Context, before time.Time) ([]domain.ResolutionAttempt, error) {
	return nil, nil
}

func (f *fakeAudit) DeleteAttemptsBefore(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func newTestService(t *testing.T) (*Service, *fakeLedger, *fakeReviewStore, *fakeAudit) {
	t.Helper()
	ledger := &fakeLedger{
		market: domain.Market{
			ID:        42,
			Question:  "Will something unverifiable happen?",
			ExpiresAt: time.Now().Add(-time.Hour),
			YesPool:   big.NewInt(100),
			NoPool:    big.NewInt(200),
			Status:    domain.MarketStatusActive,
		},
	}
	store := &fakeReviewStore{cases: map[string]domain.ReviewCase{}}
	audit := &fakeAudit{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(ledger, store, audit, nil, logger), ledger, store, audit
}

func openCase(store *fakeReviewStore) domain.ReviewCase {
	c := domain.ReviewCase{
		ID:        "case-1",
		MarketID:  42,
		Question:  "Will something unverifiable happen?",
		Status:    domain.ReviewOpen,
		CreatedAt: time.Now().Add(-time.Hour),
	}
	store.cases[c.ID] = c
	return c
}

func TestSubmitVerdictResolvesAndAudits(t *testing.T) {
	svc, ledger, store, audit := newTestService(t)
	openCase(store)
	reviewer := common.HexToAddress("0x2222222222222222222222222222222222222222")

	closed, err := svc.SubmitVerdict(context.Background(), "case-1", domain.VerdictYes, reviewer)
	require.NoError(t, err)

	assert.Equal(t, []domain.MarketID{42}, ledger.resolves)
	assert.Equal(t, domain.ReviewClosed, closed.Status)
	assert.Equal(t, reviewer, closed.ClosedBy)

	// The human verdict lands in the audit log under a case-derived pass id.
	require.Len(t, audit.attempts, 1)
	attempt := audit.attempts[0]
	assert.Equal(t, "review:case-1", attempt.PassID)
	assert.Equal(t, domain.MarketID(42), attempt.MarketID)
	assert.Equal(t, domain.VerdictYes, attempt.Verdict)
	assert.NotEmpty(t, attempt.TxRef)
}

func TestSubmitVerdictCancelGoesThroughCancelPath(t *testing.T) {
	svc, ledger, store, audit := newTestService(t)
	openCase(store)

	_, err := svc.SubmitVerdict(context.Background(), "case-1", domain.VerdictCancelNoWinners, common.Address{})
	require.NoError(t, err)

	assert.Empty(t, ledger.resolves)
	assert.Equal(t, []domain.MarketID{42}, ledger.cancels)
	require.Len(t, audit.attempts, 1)
	assert.Equal(t, domain.VerdictCancelNoWinners, audit.attempts[0].Verdict)
}

func TestSubmitVerdictRejectsClosedCase(t *testing.T) {
	svc, _, store, _ := newTestService(t)
	c := openCase(store)
	c.Status = domain.ReviewClosed
	store.cases[c.ID] = c

	_, err := svc.SubmitVerdict(context.Background(), "case-1", domain.VerdictYes, common.Address{})
	require.ErrorIs(t, err, domain.ErrAlreadyResolved)
}

func TestSubmitVerdictRejectsSettledMarket(t *testing.T) {
	svc, ledger, store, audit := newTestService(t)
	openCase(store)
	ledger.market.Status = domain.MarketStatusResolved

	_, err := svc.SubmitVerdict(context.Background(), "case-1", domain.VerdictYes, common.Address{})
	require.ErrorIs(t, err, domain.ErrAlreadyResolved)
	assert.Empty(t, ledger.resolves)
	assert.Empty(t, audit.attempts)
}

func TestSubmitVerdictRejectsUnsubmittableVerdict(t *testing.T) {
	svc, _, store, _ := newTestService(t)
	openCase(store)

	_, err := svc.SubmitVerdict(context.Background(), "case-1", domain.VerdictUnresolvable, common.Address{})
	require.Error(t, err)
}
