// Package store implements append-only persistence for audit entries.
//
// The contract is append-only by interface design: Store exposes Insert and
// read methods only. Existing rows are never mutated, so reads need no
// coordination with in-flight inserts.
package store

import (
	"context"
	"time"

	"github.com/Devibnu/talkabiz-sub022/pkg/ledger"
)

// Order selects timeline direction for history queries.
type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// Filter is the search criteria for listing entries. Zero values mean
// "no constraint".
type Filter struct {
	From          *time.Time
	To            *time.Time
	ActorType     ledger.ActorType
	EntityType    string
	Category      ledger.Category
	Status        ledger.Status
	CorrelationID string
	// FreeText matches case-insensitively against action, entity_type,
	// correlation_id and actor_email.
	FreeText string
}

// PageRequest is cursor pagination over the monotonic entry id. Offset
// paging would duplicate or skip rows under concurrent appends; an id
// cursor cannot.
type PageRequest struct {
	// Cursor is exclusive: for descending scans, only ids below it are
	// returned; for ascending, only ids above it. Zero starts at the edge.
	Cursor int64
	// CursorTime carries the occurred_at of the cursor entry. History
	// orders by (occurred_at, id), so its cursor must compare on that same
	// composite key; backfilled entries make an id-only cursor loop or
	// skip. Resume with both NextCursor and NextCursorTime from the
	// previous Page. Ignored by id-ordered queries.
	CursorTime *time.Time
	Limit      int
}

// Page is one page of results plus the cursor for the next.
type Page struct {
	Entries        []*ledger.Entry
	NextCursor     int64
	NextCursorTime *time.Time
	HasMore        bool
}

// Stats are aggregate counts, computed by count queries without loading
// entry bodies. Total, ByCategory, ByStatus and ReversalCount cover the
// requested time range; Today and LastEntryTime always cover the whole
// ledger.
type Stats struct {
	Total         int64
	Today         int64
	ByCategory    map[ledger.Category]int64
	ByStatus      map[ledger.Status]int64
	ReversalCount int64
	LastEntryTime *time.Time
}

// Store is the full persistence surface: the writer-side append contract
// plus the read side consumed by the query engine, history resolver and
// integrity verifier. No update or delete exists.
type Store interface {
	ledger.Store

	// Search returns entries matching the filter, newest first by id.
	Search(ctx context.Context, f Filter, p PageRequest) (Page, error)

	// Stats returns aggregate counts. A non-nil from/to bounds the
	// range-scoped counts by occurred_at.
	Stats(ctx context.Context, from, to *time.Time) (Stats, error)

	// History returns the timeline of one logical entity.
	History(ctx context.Context, entityType, entityID string, order Order, p PageRequest) (Page, error)

	// ByCorrelation returns every entry sharing the correlation id,
	// ordered by occurred_at then id.
	ByCorrelation(ctx context.Context, correlationID string) ([]*ledger.Entry, error)

	// ScanDesc returns up to limit entries with id strictly below beforeID
	// (or from the head when beforeID <= 0), descending. Used by the
	// integrity verifier's chunked window scan.
	ScanDesc(ctx context.Context, beforeID int64, limit int) ([]*ledger.Entry, error)

	// Count returns the total number of entries.
	Count(ctx context.Context) (int64, error)
}

// DefaultPageLimit bounds unspecified page sizes.
const DefaultPageLimit = 50

// MaxPageLimit bounds runaway page sizes.
const MaxPageLimit = 500

// ClampLimit normalizes a requested page size.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultPageLimit
	}
	if limit > MaxPageLimit {
		return MaxPageLimit
	}
	return limit
}
