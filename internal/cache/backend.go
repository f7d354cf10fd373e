package cache

import (
	"context"
	"time"

	"riskai/internal/artifact"
)

// Backend is the durable storage behind a Store. Implementations return
// (nil, nil) from Get when no record exists; only genuine I/O failures
// are errors. Backends do not do bookkeeping; the Store owns that.
type Backend interface {
	// Get fetches one record by item ID.
	Get(ctx context.Context, itemID string) (*Record, error)
	// Upsert inserts or replaces a record (last-writer-wins).
	Upsert(ctx context.Context, rec *Record) error
	// FindByContentHash returns all records of the given kind whose stored
	// content hash equals contentHash.
	FindByContentHash(ctx context.Context, kind artifact.Kind, contentHash string) ([]*Record, error)
	// DeleteAll removes every record and reports how many were removed.
	DeleteAll(ctx context.Context) (int, error)
	// DeleteLastUsedBefore removes records whose last_used predates cutoff.
	DeleteLastUsedBefore(ctx context.Context, cutoff time.Time) (int, error)
	// Count reports the number of stored records.
	Count(ctx context.Context) (int, error)
	Close() error
}
