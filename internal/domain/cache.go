package domain

import (
	"context"
	"io"
	"time"
)

// LockManager provides distributed locks. The engine holds one lock for the
// duration of a resolution pass so overlapping triggers stay safe-but-wasted
// instead of racing the ledger.
type LockManager interface {
	// Acquire obtains the lock for key with the given TTL and returns an
	// unlock function, or ErrLockHeld if another holder owns it.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RateLimiter is a shared sliding-window limiter guarding third-party
// endpoints across engine instances.
type RateLimiter interface {
	// Allow reports whether one more request for key fits in the window, and
	// counts it if so.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// MarketCache is a short-lived read cache for market snapshots served by the
// HTTP API. The resolution pass never reads from it; verdicts always come
// from a fresh ledger read.
type MarketCache interface {
	Get(ctx context.Context, id MarketID) (Market, error)
	Set(ctx context.Context, market Market) error
	Invalidate(ctx context.Context, id MarketID) error
}

// BlobWriter uploads objects to the archive bucket.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// Archiver moves aged pass reports and audit rows to object storage and
// prunes them from the primary store.
type Archiver interface {
	Archive(ctx context.Context, before time.Time) (ArchiveSummary, error)
}

// ArchiveSummary reports what one archive run moved.
type ArchiveSummary struct {
	Reports  int
	Attempts int
	Objects  []string
}
