package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Devibnu/talkabiz-sub022/pkg/ledger"
)

// MemoryStore is an in-memory append-only store for tests and local
// development. Entries are cloned on the way in and out so nothing outside
// the store can mutate persisted state.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []*ledger.Entry
	byUUID  map[string]*ledger.Entry
	byKey   map[string]*ledger.Entry
	nextID  int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byUUID: make(map[string]*ledger.Entry),
		byKey:  make(map[string]*ledger.Entry),
	}
}

var _ Store = (*MemoryStore)(nil)

// Insert appends the entry and returns its assigned id.
func (s *MemoryStore) Insert(ctx context.Context, e *ledger.Entry) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.IdempotencyKey != nil {
		if _, exists := s.byKey[*e.IdempotencyKey]; exists {
			return 0, ledger.ErrDuplicateIdempotencyKey
		}
	}

	s.nextID++
	stored := e.Clone()
	stored.ID = s.nextID

	s.entries = append(s.entries, stored)
	s.byUUID[stored.EntryUUID] = stored
	if stored.IdempotencyKey != nil {
		s.byKey[*stored.IdempotencyKey] = stored
	}
	return stored.ID, nil
}

// ByUUID fetches an entry by entry_uuid.
func (s *MemoryStore) ByUUID(ctx context.Context, entryUUID string) (*ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byUUID[entryUUID]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	return e.Clone(), nil
}

// ByIdempotencyKey fetches the entry persisted under a producer key.
func (s *MemoryStore) ByIdempotencyKey(ctx context.Context, key string) (*ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byKey[key]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	return e.Clone(), nil
}

// LastOccurrenceForCorrelation returns the newest occurred_at in a
// correlation group.
func (s *MemoryStore) LastOccurrenceForCorrelation(ctx context.Context, correlationID string) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var last time.Time
	found := false
	for _, e := range s.entries {
		if e.CorrelationID != nil && *e.CorrelationID == correlationID {
			if !found || e.OccurredAt.After(last) {
				last = e.OccurredAt
			}
			found = true
		}
	}
	return last, found, nil
}

func (f Filter) matches(e *ledger.Entry) bool {
	if f.From != nil && e.OccurredAt.Before(*f.From) {
		return false
	}
	if f.To != nil && e.OccurredAt.After(*f.To) {
		return false
	}
	if f.ActorType != "" && e.ActorType != f.ActorType {
		return false
	}
	if f.EntityType != "" && e.EntityType != f.EntityType {
		return false
	}
	if f.Category != "" && e.Category != f.Category {
		return false
	}
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	if f.CorrelationID != "" {
		if e.CorrelationID == nil || *e.CorrelationID != f.CorrelationID {
			return false
		}
	}
	if f.FreeText != "" {
		needle := strings.ToLower(f.FreeText)
		hay := strings.ToLower(e.Action) + "\x00" + strings.ToLower(e.EntityType)
		if e.CorrelationID != nil {
			hay += "\x00" + strings.ToLower(*e.CorrelationID)
		}
		if e.ActorEmail != nil {
			hay += "\x00" + strings.ToLower(*e.ActorEmail)
		}
		if !strings.Contains(hay, needle) {
			return false
		}
	}
	return true
}

// Search returns matching entries newest first by id.
func (s *MemoryStore) Search(ctx context.Context, f Filter, p PageRequest) (Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := ClampLimit(p.Limit)
	page := Page{}
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if p.Cursor > 0 && e.ID >= p.Cursor {
			continue
		}
		if !f.matches(e) {
			continue
		}
		if len(page.Entries) == limit {
			page.HasMore = true
			break
		}
		page.Entries = append(page.Entries, e.Clone())
	}
	setNextCursor(&page)
	return page, nil
}

// Stats returns aggregate counts, range-scoped where Stats documents it.
func (s *MemoryStore) Stats(ctx context.Context, from, to *time.Time) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		ByCategory: make(map[ledger.Category]int64),
		ByStatus:   make(map[ledger.Status]int64),
	}
	dayStart := time.Now().UTC().Truncate(24 * time.Hour)
	for _, e := range s.entries {
		if !e.OccurredAt.Before(dayStart) {
			st.Today++
		}
		if st.LastEntryTime == nil || e.OccurredAt.After(*st.LastEntryTime) {
			t := e.OccurredAt
			st.LastEntryTime = &t
		}
		if from != nil && e.OccurredAt.Before(*from) {
			continue
		}
		if to != nil && e.OccurredAt.After(*to) {
			continue
		}
		st.Total++
		st.ByCategory[e.Category]++
		st.ByStatus[e.Status]++
		if isReversal(e.Action) {
			st.ReversalCount++
		}
	}
	return st, nil
}

func isReversal(action string) bool {
	return action == ledger.ActionReversal || strings.HasSuffix(action, "."+ledger.ActionReversal)
}

// History returns the timeline of one logical entity.
func (s *MemoryStore) History(ctx context.Context, entityType, entityID string, order Order, p PageRequest) (Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*ledger.Entry
	for _, e := range s.entries {
		if e.EntityType == entityType && e.EntityID == entityID {
			matched = append(matched, e)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if order == OrderDesc {
			a, b = b, a
		}
		if !a.OccurredAt.Equal(b.OccurredAt) {
			return a.OccurredAt.Before(b.OccurredAt)
		}
		return a.ID < b.ID
	})

	limit := ClampLimit(p.Limit)
	page := Page{}
	for _, e := range matched {
		if p.Cursor > 0 && !pastCursor(e, order, p) {
			continue
		}
		if len(page.Entries) == limit {
			page.HasMore = true
			break
		}
		page.Entries = append(page.Entries, e.Clone())
	}
	setNextCursor(&page)
	return page, nil
}

// pastCursor reports whether e lies strictly beyond the page cursor in the
// given direction. With CursorTime set the comparison is on the composite
// (occurred_at, id) key History orders by; without it, on id alone.
func pastCursor(e *ledger.Entry, order Order, p PageRequest) bool {
	if p.CursorTime != nil && !e.OccurredAt.Equal(*p.CursorTime) {
		if order == OrderDesc {
			return e.OccurredAt.Before(*p.CursorTime)
		}
		return e.OccurredAt.After(*p.CursorTime)
	}
	if order == OrderDesc {
		return e.ID < p.Cursor
	}
	return e.ID > p.Cursor
}

func setNextCursor(page *Page) {
	n := len(page.Entries)
	if n == 0 {
		return
	}
	last := page.Entries[n-1]
	page.NextCursor = last.ID
	t := last.OccurredAt
	page.NextCursorTime = &t
}

// ByCorrelation returns every entry in a correlation group, ordered by
// occurred_at then id.
func (s *MemoryStore) ByCorrelation(ctx context.Context, correlationID string) ([]*ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*ledger.Entry
	for _, e := range s.entries {
		if e.CorrelationID != nil && *e.CorrelationID == correlationID {
			matched = append(matched, e.Clone())
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].OccurredAt.Equal(matched[j].OccurredAt) {
			return matched[i].OccurredAt.Before(matched[j].OccurredAt)
		}
		return matched[i].ID < matched[j].ID
	})
	return matched, nil
}

// ScanDesc returns up to limit entries below beforeID, descending by id.
func (s *MemoryStore) ScanDesc(ctx context.Context, beforeID int64, limit int) ([]*ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*ledger.Entry
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		e := s.entries[i]
		if beforeID > 0 && e.ID >= beforeID {
			continue
		}
		out = append(out, e.Clone())
	}
	return out, nil
}

// Count returns the total number of entries.
func (s *MemoryStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.entries)), nil
}
