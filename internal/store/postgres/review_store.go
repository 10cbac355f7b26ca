package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/predly/settler/internal/domain"
)

// ReviewStore implements domain.ReviewStore using PostgreSQL. A partial
// unique index keeps at most one open case per market.
type ReviewStore struct {
	pool *pgxpool.Pool
}

// NewReviewStore creates a new ReviewStore backed by the given connection pool.
func NewReviewStore(pool *pgxpool.Pool) *ReviewStore {
	return &ReviewStore{pool: pool}
}

// Create inserts a new review case.
func (s *ReviewStore) Create(ctx context.Context, c domain.ReviewCase) error {
	evidence, err := json.Marshal(c.Evidence)
	if err != nil {
		return fmt.Errorf("postgres: marshal evidence for market %d: %w", c.MarketID, err)
	}

	const query = `
		INSERT INTO review_cases (
			id, market_id, question, recommendation, confidence,
			evidence, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = s.pool.Exec(ctx, query,
		c.ID, int64(c.MarketID), c.Question, string(c.Recommendation),
		c.Confidence, evidence, string(c.Status), c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create review case for market %d: %w", c.MarketID, err)
	}
	return nil
}

// Get retrieves a review case by ID.
// It returns domain.ErrNotFound when no such case exists.
func (s *ReviewStore) Get(ctx context.Context, id string) (domain.ReviewCase, error) {
	const query = reviewSelect + ` WHERE id = $1`

	c, err := scanReviewCase(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ReviewCase{}, domain.ErrNotFound
		}
		return domain.ReviewCase{}, fmt.Errorf("postgres: get review case %s: %w", id, err)
	}
	return c, nil
}

// GetOpenByMarket retrieves the open case for a market, if any.
// It returns domain.ErrNotFound when no open case exists.
func (s *ReviewStore) GetOpenByMarket(ctx context.Context, id domain.MarketID) (domain.ReviewCase, error) {
	const query = reviewSelect + ` WHERE market_id = $1 AND status = 'open'`

	c, err := scanReviewCase(s.pool.QueryRow(ctx, query, int64(id)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ReviewCase{}, domain.ErrNotFound
		}
		return domain.ReviewCase{}, fmt.Errorf("postgres: get open review case for market %d: %w", id, err)
	}
	return c, nil
}

// ListOpen returns open cases, oldest first so the longest-waiting markets
// surface at the top of the review queue.
func (s *ReviewStore) ListOpen(ctx context.Context, opts domain.ListOpts) ([]domain.ReviewCase, error) {
	query := reviewSelect + ` WHERE status = 'open' ORDER BY created_at ASC`
	args := []any{}
	argIdx := 1

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open review cases: %w", err)
	}
	defer rows.Close()

	var cases []domain.ReviewCase
	for rows.Next() {
		c, err := scanReviewCase(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan review case: %w", err)
		}
		cases = append(cases, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list open review cases rows: %w", err)
	}
	return cases, nil
}

// UpdateEvidence stores gathered evidence and the machine recommendation on
// an open case. Closed cases are left untouched.
func (s *ReviewStore) UpdateEvidence(ctx context.Context, id string, recommendation domain.Verdict, confidence float64, evidence []string) error {
	data, err := json.Marshal(evidence)
	if err != nil {
		return fmt.Errorf("postgres: marshal evidence for case %s: %w", id, err)
	}

	const query = `
		UPDATE review_cases
		SET recommendation = $2, confidence = $3, evidence = $4
		WHERE id = $1 AND status = 'open'`

	tag, err := s.pool.Exec(ctx, query, id, string(recommendation), confidence, data)
	if err != nil {
		return fmt.Errorf("postgres: update evidence for case %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Close marks a case closed with the reviewer's verdict. Closing an
// already-closed case returns domain.ErrNotFound.
func (s *ReviewStore) Close(ctx context.Context, c domain.ReviewCase) error {
	const query = `
		UPDATE review_cases
		SET status = 'closed', closed_by = $2, final_verdict = $3, closed_at = $4
		WHERE id = $1 AND status = 'open'`

	tag, err := s.pool.Exec(ctx, query,
		c.ID, c.ClosedBy.Hex(), string(c.FinalVerdict), c.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: close review case %s: %w", c.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

const reviewSelect = `SELECT id, market_id, question, recommendation, confidence,
	evidence, status, closed_by, final_verdict, created_at, closed_at
	FROM review_cases`

func scanReviewCase(row pgx.Row) (domain.ReviewCase, error) {
	var (
		c              domain.ReviewCase
		marketID       int64
		recommendation string
		evidence       []byte
		status         string
		closedBy       string
		finalVerdict   string
	)
	err := row.Scan(&c.ID, &marketID, &c.Question, &recommendation, &c.Confidence,
		&evidence, &status, &closedBy, &finalVerdict, &c.CreatedAt, &c.ClosedAt)
	if err != nil {
		return domain.ReviewCase{}, err
	}
	c.MarketID = domain.MarketID(marketID)
	c.Recommendation = domain.Verdict(recommendation)
	c.Status = domain.ReviewStatus(status)
	c.FinalVerdict = domain.Verdict(finalVerdict)
	if closedBy != "" {
		c.ClosedBy = common.HexToAddress(closedBy)
	}
	if evidence != nil {
		if err := json.Unmarshal(evidence, &c.Evidence); err != nil {
			return domain.ReviewCase{}, fmt.Errorf("unmarshal evidence: %w", err)
		}
	}
	return c, nil
}

// Compile-time interface check.
var _ domain.ReviewStore = (*ReviewStore)(nil)
