package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/predly/settler/internal/domain"
)

// AuditStore implements domain.AuditStore using PostgreSQL. Rows are append
// only; the ledger stays authoritative for market state.
type AuditStore struct {
	pool *pgxpool.Pool
}

// NewAuditStore creates a new AuditStore backed by the given connection pool.
func NewAuditStore(pool *pgxpool.Pool) *AuditStore {
	return &AuditStore{pool: pool}
}

// RecordAttempt appends one resolution attempt to the audit log.
func (s *AuditStore) RecordAttempt(ctx context.Context, a domain.ResolutionAttempt) error {
	const query = `
		INSERT INTO resolution_attempts (pass_id, market_id, verdict, tx_ref, endpoint, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.pool.Exec(ctx, query,
		a.PassID, int64(a.MarketID), string(a.Verdict), a.TxRef, a.Endpoint, a.Error, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: record attempt for market %d: %w", a.MarketID, err)
	}
	return nil
}

// ListAttempts returns attempts with pagination and optional time filtering,
// newest first.
func (s *AuditStore) ListAttempts(ctx context.Context, opts domain.ListOpts) ([]domain.ResolutionAttempt, error) {
	query := `SELECT id, pass_id, market_id, verdict, tx_ref, endpoint, error, created_at
		FROM resolution_attempts WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

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
		return nil, fmt.Errorf("postgres: list attempts: %w", err)
	}
	defer rows.Close()

	return scanAttempts(rows)
}

// ListAttemptsBefore returns all attempts older than the cutoff, oldest
// first, for the archiver.
func (s *AuditStore) ListAttemptsBefore(ctx context.Context, before time.Time) ([]domain.ResolutionAttempt, error) {
	const query = `SELECT id, pass_id, market_id, verdict, tx_ref, endpoint, error, created_at
		FROM resolution_attempts WHERE created_at < $1 ORDER BY created_at ASC`

	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list attempts before %s: %w", before, err)
	}
	defer rows.Close()

	return scanAttempts(rows)
}

// DeleteAttemptsBefore prunes attempts older than the cutoff and returns the
// number of rows removed.
func (s *AuditStore) DeleteAttemptsBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM resolution_attempts WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete attempts before %s: %w", before, err)
	}
	return tag.RowsAffected(), nil
}

func scanAttempts(rows pgx.Rows) ([]domain.ResolutionAttempt, error) {
	var attempts []domain.ResolutionAttempt
	for rows.Next() {
		var (
			a        domain.ResolutionAttempt
			marketID int64
			verdict  string
		)
		if err := rows.Scan(&a.ID, &a.PassID, &marketID, &verdict, &a.TxRef, &a.Endpoint, &a.Error, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan attempt: %w", err)
		}
		a.MarketID = domain.MarketID(marketID)
		a.Verdict = domain.Verdict(verdict)
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list attempts rows: %w", err)
	}
	return attempts, nil
}

// Compile-time interface check.
var _ domain.AuditStore = (*AuditStore)(nil)
