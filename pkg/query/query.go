// Package query is the read side of the audit ledger: indexed search and
// aggregate statistics. Read-only by construction; it holds no reference to
// any write operation.
package query

import (
	"context"
	"fmt"
	"time"

	"github.com/Devibnu/talkabiz-sub022/pkg/store"
)

// Engine answers filtered searches and stats over the store.
type Engine struct {
	store store.Store
}

// NewEngine creates a query engine over the given store.
func NewEngine(s store.Store) *Engine {
	return &Engine{store: s}
}

// Search returns a page of entries matching the filter, newest first.
// Pagination rides a monotonic id cursor, so pages stay stable while
// producers keep appending.
func (e *Engine) Search(ctx context.Context, f store.Filter, p store.PageRequest) (store.Page, error) {
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return store.Page{}, fmt.Errorf("query: time range start %s is after end %s", f.From, f.To)
	}
	page, err := e.store.Search(ctx, f, p)
	if err != nil {
		return store.Page{}, fmt.Errorf("query: search: %w", err)
	}
	return page, nil
}

// Stats returns aggregate counts computed by count queries only. A non-nil
// from/to scopes the range-bound counts by occurred_at.
func (e *Engine) Stats(ctx context.Context, from, to *time.Time) (store.Stats, error) {
	if from != nil && to != nil && from.After(*to) {
		return store.Stats{}, fmt.Errorf("query: time range start %s is after end %s", from, to)
	}
	st, err := e.store.Stats(ctx, from, to)
	if err != nil {
		return store.Stats{}, fmt.Errorf("query: stats: %w", err)
	}
	return st, nil
}
