package ledger

import (
	"context"
	"time"
)

// Store is the persistence contract the Writer appends through. It is
// deliberately append-only: no update or delete method exists, so the
// storage-access layer enforces immutability by interface design rather
// than by convention.
type Store interface {
	// Insert persists the entry atomically and returns the store-assigned
	// monotonic id. Implementations must reject nothing silently: any
	// failure is returned to the caller.
	Insert(ctx context.Context, e *Entry) (int64, error)

	// ByUUID fetches an entry by its entry_uuid, or ErrNotFound.
	ByUUID(ctx context.Context, entryUUID string) (*Entry, error)

	// ByIdempotencyKey fetches the entry persisted under a producer
	// idempotency key, or ErrNotFound.
	ByIdempotencyKey(ctx context.Context, key string) (*Entry, error)

	// LastOccurrenceForCorrelation returns the newest occurred_at among
	// entries sharing the correlation id. ok is false when none exist.
	LastOccurrenceForCorrelation(ctx context.Context, correlationID string) (last time.Time, ok bool, err error)
}
