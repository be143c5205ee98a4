// Package history reconstructs timelines: the ordered sequence of audit
// entries for one business entity, and the cross-entity set of entries
// produced by one logical operation.
package history

import (
	"context"
	"fmt"

	"github.com/Devibnu/talkabiz-sub022/pkg/ledger"
	"github.com/Devibnu/talkabiz-sub022/pkg/store"
)

// Resolver answers entity-timeline and correlation queries.
type Resolver struct {
	store store.Store
}

// NewResolver creates a Resolver over the given store.
func NewResolver(s store.Store) *Resolver {
	return &Resolver{store: s}
}

// History returns the ordered timeline of exactly one logical entity.
// entityType is a logical type name ("Invoice", "Wallet"), not a table.
func (r *Resolver) History(ctx context.Context, entityType, entityID string, order store.Order, p store.PageRequest) (store.Page, error) {
	if entityType == "" || entityID == "" {
		return store.Page{}, fmt.Errorf("history: entity type and id are required")
	}
	if order == "" {
		order = store.OrderAsc
	}
	page, err := r.store.History(ctx, entityType, entityID, order, p)
	if err != nil {
		return store.Page{}, fmt.Errorf("history: %w", err)
	}
	return page, nil
}

// RelatedByCorrelation returns every entry created with the correlation id,
// ordered by occurred_at, reconstructing one logical operation across
// entities (a charge plus the invoice it produced, for example).
func (r *Resolver) RelatedByCorrelation(ctx context.Context, correlationID string) ([]*ledger.Entry, error) {
	if correlationID == "" {
		return nil, fmt.Errorf("history: correlation id is required")
	}
	entries, err := r.store.ByCorrelation(ctx, correlationID)
	if err != nil {
		return nil, fmt.Errorf("history: correlation %s: %w", correlationID, err)
	}
	return entries, nil
}
