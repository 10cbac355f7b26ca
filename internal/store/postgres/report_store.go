package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/predly/settler/internal/domain"
)

// ReportStore implements domain.ReportStore using PostgreSQL. Counters live
// in columns for cheap listing; the per-market detail is stored as JSONB.
type ReportStore struct {
	pool *pgxpool.Pool
}

// NewReportStore creates a new ReportStore backed by the given connection pool.
func NewReportStore(pool *pgxpool.Pool) *ReportStore {
	return &ReportStore{pool: pool}
}

// Save upserts a pass report. A re-run of the same pass ID overwrites the
// earlier row.
func (s *ReportStore) Save(ctx context.Context, report domain.PassReport) error {
	markets, err := json.Marshal(report.Markets)
	if err != nil {
		return fmt.Errorf("postgres: marshal report %s: %w", report.ID, err)
	}

	const query = `
		INSERT INTO pass_reports (
			id, started_at, finished_at,
			checked, resolved, cancelled, skipped, unresolvable, failed, markets
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			finished_at  = EXCLUDED.finished_at,
			checked      = EXCLUDED.checked,
			resolved     = EXCLUDED.resolved,
			cancelled    = EXCLUDED.cancelled,
			skipped      = EXCLUDED.skipped,
			unresolvable = EXCLUDED.unresolvable,
			failed       = EXCLUDED.failed,
			markets      = EXCLUDED.markets`

	_, err = s.pool.Exec(ctx, query,
		report.ID, report.StartedAt, report.FinishedAt,
		report.Checked, report.Resolved, report.Cancelled,
		report.Skipped, report.Unresolvable, report.Failed, markets,
	)
	if err != nil {
		return fmt.Errorf("postgres: save report %s: %w", report.ID, err)
	}
	return nil
}

// Get retrieves a pass report by ID.
// It returns domain.ErrNotFound when no such report exists.
func (s *ReportStore) Get(ctx context.Context, id string) (domain.PassReport, error) {
	const query = `SELECT id, started_at, finished_at,
		checked, resolved, cancelled, skipped, unresolvable, failed, markets
		FROM pass_reports WHERE id = $1`

	report, err := scanReport(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.PassReport{}, domain.ErrNotFound
		}
		return domain.PassReport{}, fmt.Errorf("postgres: get report %s: %w", id, err)
	}
	return report, nil
}

// ListRecent returns the most recent reports, newest first.
func (s *ReportStore) ListRecent(ctx context.Context, limit int) ([]domain.PassReport, error) {
	if limit <= 0 {
		limit = 20
	}
	const query = `SELECT id, started_at, finished_at,
		checked, resolved, cancelled, skipped, unresolvable, failed, markets
		FROM pass_reports ORDER BY started_at DESC LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent reports: %w", err)
	}
	defer rows.Close()

	return scanReports(rows)
}

// ListBefore returns all reports started before the cutoff, oldest first,
// for the archiver.
func (s *ReportStore) ListBefore(ctx context.Context, before time.Time) ([]domain.PassReport, error) {
	const query = `SELECT id, started_at, finished_at,
		checked, resolved, cancelled, skipped, unresolvable, failed, markets
		FROM pass_reports WHERE started_at < $1 ORDER BY started_at ASC`

	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list reports before %s: %w", before, err)
	}
	defer rows.Close()

	return scanReports(rows)
}

// DeleteBefore prunes reports started before the cutoff and returns the
// number of rows removed.
func (s *ReportStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM pass_reports WHERE started_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete reports before %s: %w", before, err)
	}
	return tag.RowsAffected(), nil
}

func scanReport(row pgx.Row) (domain.PassReport, error) {
	var (
		r       domain.PassReport
		markets []byte
	)
	err := row.Scan(&r.ID, &r.StartedAt, &r.FinishedAt,
		&r.Checked, &r.Resolved, &r.Cancelled,
		&r.Skipped, &r.Unresolvable, &r.Failed, &markets)
	if err != nil {
		return domain.PassReport{}, err
	}
	if markets != nil {
		if err := json.Unmarshal(markets, &r.Markets); err != nil {
			return domain.PassReport{}, fmt.Errorf("unmarshal markets: %w", err)
		}
	}
	return r, nil
}

func scanReports(rows pgx.Rows) ([]domain.PassReport, error) {
	var reports []domain.PassReport
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan report: %w", err)
		}
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list reports rows: %w", err)
	}
	return reports, nil
}

// Compile-time interface check.
var _ domain.ReportStore = (*ReportStore)(nil)
