package ledger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/Devibnu/talkabiz-sub022/pkg/checksum"
	"github.com/Devibnu/talkabiz-sub022/pkg/observability"
)

// IdempotencyGuard is the fast-path duplicate detector consulted before the
// store insert. Implementations live in pkg/idempotency.
type IdempotencyGuard interface {
	// Reserve marks key as used by entryUUID. When the key is already
	// reserved it returns the owning entry uuid and reserved=false.
	Reserve(ctx context.Context, key, entryUUID string, ttl time.Duration) (existing string, reserved bool, err error)
	// Release frees a reservation after a failed insert so the producer's
	// retry can succeed.
	Release(ctx context.Context, key string) error
}

// reservationTTL bounds how long a failed Append blocks its idempotency key
// if Release itself fails.
const reservationTTL = 24 * time.Hour

// Writer is the single ingestion path of the ledger. It validates the
// producer event, fills system-assigned fields, computes the integrity
// digest and persists atomically. There is no update or delete.
type Writer struct {
	store   Store
	engine  *checksum.Engine
	guard   IdempotencyGuard
	limiter *rate.Limiter
	obs     *observability.Provider
	clock   func() time.Time
	logger  *slog.Logger
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithIdempotencyGuard installs a duplicate detector for producer retries.
func WithIdempotencyGuard(g IdempotencyGuard) WriterOption {
	return func(w *Writer) { w.guard = g }
}

// WithRateLimit applies in-process backpressure to Append. Waiting is
// cancellable through the caller's context.
func WithRateLimit(l *rate.Limiter) WriterOption {
	return func(w *Writer) { w.limiter = l }
}

// WithObservability attaches metrics and tracing.
func WithObservability(p *observability.Provider) WriterOption {
	return func(w *Writer) { w.obs = p }
}

// WithClock overrides the clock for testing.
func WithClock(clock func() time.Time) WriterOption {
	return func(w *Writer) { w.clock = clock }
}

// NewWriter creates a Writer over the given store and checksum engine.
func NewWriter(store Store, engine *checksum.Engine, opts ...WriterOption) *Writer {
	w := &Writer{
		store:  store,
		engine: engine,
		clock:  time.Now,
		logger: slog.Default().With("component", "ledger.writer"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Append validates the event, assigns entry_uuid, occurred_at and checksum,
// and persists the entry. On store failure the call fails loudly; the event
// is never silently dropped. A retry carrying the same idempotency key
// returns the already-persisted entry instead of creating a duplicate.
func (w *Writer) Append(ctx context.Context, ev Event) (*Entry, error) {
	start := w.clock()
	entry, err := w.append(ctx, ev)
	if w.obs != nil {
		w.obs.RecordAppend(ctx, w.clock().Sub(start), err)
	}
	return entry, err
}

func (w *Writer) append(ctx context.Context, ev Event) (*Entry, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}

	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			return nil, &PersistenceError{Op: "throttle", Err: err}
		}
	}

	entry := &Entry{
		EntryUUID:      uuid.NewString(),
		Backfill:       ev.Backfill,
		ActorType:      ev.ActorType,
		ActorID:        ev.ActorID,
		ActorEmail:     cloneString(ev.ActorEmail),
		ActorIP:        cloneString(ev.ActorIP),
		ActorUserAgent: cloneString(ev.ActorUserAgent),
		Action:         ev.Action,
		Category:       ev.Category,
		EntityType:     ev.EntityType,
		EntityID:       ev.EntityID,
		EntityUUID:     cloneString(ev.EntityUUID),
		Status:         ev.Status,
		FailureReason:  cloneString(ev.FailureReason),
		OldValues:      cloneMap(ev.OldValues),
		NewValues:      cloneMap(ev.NewValues),
		Context:        cloneMap(ev.Context),
		CorrelationID:  cloneString(ev.CorrelationID),
		SessionID:      cloneString(ev.SessionID),
		Classification: ev.Classification,
	}
	if ev.IdempotencyKey != "" {
		k := ev.IdempotencyKey
		entry.IdempotencyKey = &k
	}

	// Microsecond truncation keeps the canonical timestamp identical after
	// a round-trip through Postgres.
	if ev.Backfill && ev.OccurredAt != nil {
		entry.OccurredAt = ev.OccurredAt.UTC().Truncate(time.Microsecond)
	} else {
		entry.OccurredAt = w.clock().UTC().Truncate(time.Microsecond)
	}

	if entry.CorrelationID != nil && !entry.Backfill {
		last, ok, err := w.store.LastOccurrenceForCorrelation(ctx, *entry.CorrelationID)
		if err != nil {
			return nil, &PersistenceError{Op: "correlation lookup", Err: err}
		}
		// Clock skew between producers must not break per-correlation
		// ordering; clamp forward rather than failing the producer.
		if ok && entry.OccurredAt.Before(last) {
			entry.OccurredAt = last
		}
	}

	canonicalBytes, err := CanonicalBytes(entry)
	if err != nil {
		w.logger.Error("canonicalization failed", "action", ev.Action, "error", err)
		return nil, &CanonicalizationError{Err: err}
	}
	entry.Checksum = w.engine.Compute(canonicalBytes)

	if ev.IdempotencyKey != "" && w.guard != nil {
		existing, reserved, err := w.guard.Reserve(ctx, ev.IdempotencyKey, entry.EntryUUID, reservationTTL)
		if err != nil {
			return nil, &PersistenceError{Op: "idempotency reserve", Err: err}
		}
		if !reserved {
			prior, err := w.store.ByUUID(ctx, existing)
			if err != nil {
				return nil, &PersistenceError{Op: "idempotency lookup", Err: err}
			}
			return prior, nil
		}
	}

	id, err := w.store.Insert(ctx, entry)
	if err != nil {
		if errors.Is(err, ErrDuplicateIdempotencyKey) && ev.IdempotencyKey != "" {
			prior, lookupErr := w.store.ByIdempotencyKey(ctx, ev.IdempotencyKey)
			if lookupErr == nil {
				return prior, nil
			}
		}
		if ev.IdempotencyKey != "" && w.guard != nil {
			if relErr := w.guard.Release(ctx, ev.IdempotencyKey); relErr != nil {
				w.logger.Warn("failed to release idempotency reservation",
					"key", ev.IdempotencyKey, "error", relErr)
			}
		}
		w.logger.Error("append failed", "action", ev.Action, "error", err)
		return nil, &PersistenceError{Op: "insert", Err: err}
	}
	entry.ID = id

	w.logger.Debug("entry appended",
		"id", id,
		"entry_uuid", entry.EntryUUID,
		"action", entry.Action,
		"category", entry.Category,
	)
	return entry, nil
}
