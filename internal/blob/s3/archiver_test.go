package s3blob

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predly/settler/internal/domain"
)

type fakeWriter struct {
	objects map[string]string
}

func (f *fakeWriter) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	body, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.objects[path] = string(body)
	return nil
}

type fakeReportStore struct {
	reports []domain.PassReport
	deletes int
}

func (f *fakeReportStore) Save(ctx context.Context, report domain.PassReport) error { return nil }

func (f *fakeReportStore) Get(ctx context.Context, id string) (domain.PassReport, error) {
	return domain.PassReport{}, domain.ErrNotFound
}

func (f *fakeReportStore) ListRecent(ctx context.Context, limit int) ([]domain.PassReport, error) {
	return nil, nil
}

func (f *fakeReportStore) ListBefore(ctx context.Context, before time.Time) ([]domain.PassReport, error) {
	return f.reports, nil
}

func (f *fakeReportStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	f.deletes++
	n := int64(len(f.reports))
	f.reports = nil
	return n, nil
}

type fakeAuditStore struct {
	attempts []domain.ResolutionAttempt
}

func (f *fakeAuditStore) RecordAttempt(ctx context.Context, a domain.ResolutionAttempt) error {
	f.attempts = append(f.attempts, a)
	return nil
}

func (f *fakeAuditStore) ListAttempts(ctx context.Context, opts domain.ListOpts) ([]domain.ResolutionAttempt, error) {
	return f.attempts, nil
}

func (f *fakeAuditStore) ListAttemptsBefore(ctx context.Context, before time.Time) ([]domain.ResolutionAttempt, error) {
	return f.attempts, nil
}

func (f *fakeAuditStore) DeleteAttemptsBefore(ctx context.Context, before time.Time) (int64, error) {
	n := int64(len(f.attempts))
	f.attempts = nil
	return n, nil
}

func newTestArchiver(writer *fakeWriter, reports *fakeReportStore, audit *fakeAuditStore) *ArchiveImpl {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewArchiver(writer, audit, reports, logger)
}

func TestArchiveUploadsThenPrunes(t *testing.T) {
	writer := &fakeWriter{objects: map[string]string{}}
	reports := &fakeReportStore{reports: []domain.PassReport{{ID: "pass-1", Checked: 2}}}
	audit := &fakeAuditStore{attempts: []domain.ResolutionAttempt{{PassID: "pass-1", MarketID: 42}}}

	a := newTestArchiver(writer, reports, audit)
	a.now = func() time.Time { return time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC) }

	cutoff := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	summary, err := a.Archive(context.Background(), cutoff)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Reports)
	assert.Equal(t, 1, summary.Attempts)
	require.Len(t, summary.Objects, 2)
	assert.Contains(t, writer.objects, "archive/pass_reports/2026-08/20260830T120000Z.jsonl")
	assert.Contains(t, writer.objects, "archive/resolution_attempts/2026-08/20260830T120000Z.jsonl")
	assert.Empty(t, reports.reports)
	assert.Empty(t, audit.attempts)
}

func TestArchiveSameMonthRunsKeepDistinctObjects(t *testing.T) {
	writer := &fakeWriter{objects: map[string]string{}}
	reports := &fakeReportStore{reports: []domain.PassReport{{ID: "pass-1"}}}
	audit := &fakeAuditStore{}

	a := newTestArchiver(writer, reports, audit)
	cutoff := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	a.now = func() time.Time { return time.Date(2026, 8, 15, 6, 0, 0, 0, time.UTC) }
	_, err := a.Archive(context.Background(), cutoff)
	require.NoError(t, err)

	reports.reports = []domain.PassReport{{ID: "pass-2"}}
	a.now = func() time.Time { return time.Date(2026, 8, 29, 6, 0, 0, 0, time.UTC) }
	_, err = a.Archive(context.Background(), cutoff)
	require.NoError(t, err)

	assert.Len(t, writer.objects, 2)
	assert.Contains(t, writer.objects["archive/pass_reports/2026-08/20260815T060000Z.jsonl"], "pass-1")
	assert.Contains(t, writer.objects["archive/pass_reports/2026-08/20260829T060000Z.jsonl"], "pass-2")
}

func TestArchiveNothingToDo(t *testing.T) {
	writer := &fakeWriter{objects: map[string]string{}}
	a := newTestArchiver(writer, &fakeReportStore{}, &fakeAuditStore{})

	summary, err := a.Archive(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Empty(t, summary.Objects)
	assert.Empty(t, writer.objects)
}
