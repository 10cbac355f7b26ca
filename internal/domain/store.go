package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and time filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// AuditStore persists the append-only resolution attempt log.
type AuditStore interface {
	RecordAttempt(ctx context.Context, a ResolutionAttempt) error
	ListAttempts(ctx context.Context, opts ListOpts) ([]ResolutionAttempt, error)
	ListAttemptsBefore(ctx context.Context, before time.Time) ([]ResolutionAttempt, error)
	DeleteAttemptsBefore(ctx context.Context, before time.Time) (int64, error)
}

// ReportStore persists pass reports for operator visibility.
type ReportStore interface {
	Save(ctx context.Context, report PassReport) error
	Get(ctx context.Context, id string) (PassReport, error)
	ListRecent(ctx context.Context, limit int) ([]PassReport, error)
	ListBefore(ctx context.Context, before time.Time) ([]PassReport, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// ReviewStore persists human review cases.
type ReviewStore interface {
	Create(ctx context.Context, c ReviewCase) error
	Get(ctx context.Context, id string) (ReviewCase, error)
	GetOpenByMarket(ctx context.Context, id MarketID) (ReviewCase, error)
	ListOpen(ctx context.Context, opts ListOpts) ([]ReviewCase, error)
	UpdateEvidence(ctx context.Context, id string, recommendation Verdict, confidence float64, evidence []string) error
	Close(ctx context.Context, c ReviewCase) error
}
