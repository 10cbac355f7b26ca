package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/predly/settler/internal/domain"
)

// ArchiveImpl implements domain.Archiver by querying the audit and report
// stores for aged rows, serializing them to JSONL, uploading the files, and
// pruning the primary store. Each upload completes before its rows are
// deleted, so a failed run leaves the primary store intact.
type ArchiveImpl struct {
	writer  domain.BlobWriter
	audit   domain.AuditStore
	reports domain.ReportStore
	logger  *slog.Logger
	now     func() time.Time
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(writer domain.BlobWriter, audit domain.AuditStore, reports domain.ReportStore, logger *slog.Logger) *ArchiveImpl {
	return &ArchiveImpl{
		writer:  writer,
		audit:   audit,
		reports: reports,
		logger:  logger.With(slog.String("component", "archiver")),
		now:     time.Now,
	}
}

// Archive moves pass reports and resolution attempts older than the cutoff
// to object storage, then prunes them from the primary store.
func (a *ArchiveImpl) Archive(ctx context.Context, before time.Time) (domain.ArchiveSummary, error) {
	var summary domain.ArchiveSummary
	run := a.now().UTC()

	reports, err := a.reports.ListBefore(ctx, before)
	if err != nil {
		return summary, fmt.Errorf("s3blob: archive reports query: %w", err)
	}
	if len(reports) > 0 {
		path := archivePath("pass_reports", before, run)
		buf, err := marshalJSONL(reports)
		if err != nil {
			return summary, fmt.Errorf("s3blob: archive reports marshal: %w", err)
		}
		if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
			return summary, fmt.Errorf("s3blob: archive reports upload: %w", err)
		}
		if _, err := a.reports.DeleteBefore(ctx, before); err != nil {
			return summary, fmt.Errorf("s3blob: prune reports: %w", err)
		}
		summary.Reports = len(reports)
		summary.Objects = append(summary.Objects, path)
	}

	attempts, err := a.audit.ListAttemptsBefore(ctx, before)
	if err != nil {
		return summary, fmt.Errorf("s3blob: archive attempts query: %w", err)
	}
	if len(attempts) > 0 {
		path := archivePath("resolution_attempts", before, run)
		buf, err := marshalJSONL(attempts)
		if err != nil {
			return summary, fmt.Errorf("s3blob: archive attempts marshal: %w", err)
		}
		if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
			return summary, fmt.Errorf("s3blob: archive attempts upload: %w", err)
		}
		if _, err := a.audit.DeleteAttemptsBefore(ctx, before); err != nil {
			return summary, fmt.Errorf("s3blob: prune attempts: %w", err)
		}
		summary.Attempts = len(attempts)
		summary.Objects = append(summary.Objects, path)
	}

	a.logger.InfoContext(ctx, "archive run finished",
		slog.Time("before", before),
		slog.Int("reports", summary.Reports),
		slog.Int("attempts", summary.Attempts),
		slog.Int("objects", len(summary.Objects)),
	)
	return summary, nil
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time and suffixed with the run timestamp so that
// a second run in the same month never overwrites an earlier object.
//
//	archive/pass_reports/2026-08/20260830T120000Z.jsonl
//	archive/resolution_attempts/2026-08/20260830T120000Z.jsonl
func archivePath(kind string, before, run time.Time) string {
	return fmt.Sprintf("archive/%s/%s/%s.jsonl", kind, before.Format("2006-01"), run.Format("20060102T150405Z"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ domain.Archiver = (*ArchiveImpl)(nil)
