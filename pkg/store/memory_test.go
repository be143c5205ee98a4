package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Devibnu/talkabiz-sub022/pkg/checksum"
	"github.com/Devibnu/talkabiz-sub022/pkg/ledger"
)

func newEntry(t *testing.T, mutate func(*ledger.Entry)) *ledger.Entry {
	t.Helper()
	e := &ledger.Entry{
		EntryUUID:      uuid.NewString(),
		OccurredAt:     time.Now().UTC().Truncate(time.Microsecond),
		ActorType:      ledger.ActorUser,
		ActorID:        "u-1",
		Action:         "invoice.created",
		Category:       ledger.CategoryBilling,
		EntityType:     "Invoice",
		EntityID:       "inv-1",
		Status:         ledger.StatusSuccess,
		Classification: ledger.ClassInternal,
	}
	if mutate != nil {
		mutate(e)
	}
	canonical, err := ledger.CanonicalBytes(e)
	if err != nil {
		t.Fatalf("canonicalization failed: %v", err)
	}
	e.Checksum = checksum.New(nil).Compute(canonical)
	return e
}

func TestMemoryStoreAssignsSequentialIDs(t *testing.T) {
	s := NewMemoryStore()
	for i := 1; i <= 3; i++ {
		id, err := s.Insert(context.Background(), newEntry(t, nil))
		if err != nil {
			t.Fatalf("insert %d failed: %v", i, err)
		}
		if id != int64(i) {
			t.Errorf("expected id %d, got %d", i, id)
		}
	}
}

func TestMemoryStoreCloneIsolation(t *testing.T) {
	s := NewMemoryStore()
	e := newEntry(t, nil)
	if _, err := s.Insert(context.Background(), e); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	got, err := s.ByUUID(context.Background(), e.EntryUUID)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	got.Action = "mutated"

	again, err := s.ByUUID(context.Background(), e.EntryUUID)
	if err != nil {
		t.Fatalf("refetch failed: %v", err)
	}
	if again.Action != "invoice.created" {
		t.Error("mutating a fetched entry leaked into the store")
	}
}

func TestMemoryStoreDuplicateIdempotencyKey(t *testing.T) {
	s := NewMemoryStore()
	key := "req-1"
	first := newEntry(t, func(e *ledger.Entry) { e.IdempotencyKey = &key })
	if _, err := s.Insert(context.Background(), first); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	dup := newEntry(t, func(e *ledger.Entry) { e.IdempotencyKey = &key })
	if _, err := s.Insert(context.Background(), dup); err != ledger.ErrDuplicateIdempotencyKey {
		t.Fatalf("expected duplicate key error, got %v", err)
	}

	got, err := s.ByIdempotencyKey(context.Background(), key)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if got.EntryUUID != first.EntryUUID {
		t.Error("duplicate key lookup returned the wrong entry")
	}
}

func TestMemoryStoreSearchFilters(t *testing.T) {
	s := NewMemoryStore()
	corr := "op-1"
	seed := []*ledger.Entry{
		newEntry(t, nil),
		newEntry(t, func(e *ledger.Entry) {
			e.Action = "login.failed"
			e.Category = ledger.CategoryAuth
			e.Status = ledger.StatusFailed
			e.EntityType = "Account"
			e.EntityID = "acc-9"
		}),
		newEntry(t, func(e *ledger.Entry) {
			e.Action = "charge.reversal"
			e.CorrelationID = &corr
		}),
	}
	for _, e := range seed {
		if _, err := s.Insert(context.Background(), e); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}

	cases := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"no filter", Filter{}, 3},
		{"by category", Filter{Category: ledger.CategoryAuth}, 1},
		{"by status", Filter{Status: ledger.StatusFailed}, 1},
		{"by entity type", Filter{EntityType: "Invoice"}, 2},
		{"by correlation", Filter{CorrelationID: corr}, 1},
		{"free text", Filter{FreeText: "REVERSAL"}, 1},
		{"free text no match", Filter{FreeText: "refund"}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			page, err := s.Search(context.Background(), tc.filter, PageRequest{})
			if err != nil {
				t.Fatalf("search failed: %v", err)
			}
			if len(page.Entries) != tc.want {
				t.Errorf("expected %d entries, got %d", tc.want, len(page.Entries))
			}
		})
	}
}

func TestMemoryStoreSearchPaginationStableUnderAppend(t *testing.T) {
	s := NewMemoryStore()
	for i := 0; i < 5; i++ {
		if _, err := s.Insert(context.Background(), newEntry(t, nil)); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}

	page1, err := s.Search(context.Background(), Filter{}, PageRequest{Limit: 2})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(page1.Entries) != 2 || !page1.HasMore {
		t.Fatalf("expected full first page, got %d entries", len(page1.Entries))
	}
	if page1.Entries[0].ID != 5 || page1.Entries[1].ID != 4 {
		t.Errorf("expected newest-first ids 5,4, got %d,%d",
			page1.Entries[0].ID, page1.Entries[1].ID)
	}

	// Concurrent appends must not shift the next page.
	for i := 0; i < 3; i++ {
		if _, err := s.Insert(context.Background(), newEntry(t, nil)); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}

	page2, err := s.Search(context.Background(), Filter{}, PageRequest{Cursor: page1.NextCursor, Limit: 2})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if page2.Entries[0].ID != 3 || page2.Entries[1].ID != 2 {
		t.Errorf("cursor page drifted: got ids %d,%d", page2.Entries[0].ID, page2.Entries[1].ID)
	}
}

func TestMemoryStoreHistoryOrder(t *testing.T) {
	s := NewMemoryStore()
	base := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	actions := []string{"invoice.created", "invoice.sent", "invoice.paid"}
	for i, action := range actions {
		a := action
		ts := base.Add(time.Duration(i) * time.Minute)
		e := newEntry(t, func(e *ledger.Entry) {
			e.Action = a
			e.OccurredAt = ts
		})
		if _, err := s.Insert(context.Background(), e); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}
	// Same entity id on a different entity type must not appear.
	other := newEntry(t, func(e *ledger.Entry) { e.EntityType = "CreditNote" })
	if _, err := s.Insert(context.Background(), other); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	page, err := s.History(context.Background(), "Invoice", "inv-1", OrderAsc, PageRequest{})
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(page.Entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(page.Entries))
	}
	for i, action := range actions {
		if page.Entries[i].Action != action {
			t.Errorf("position %d: expected %s, got %s", i, action, page.Entries[i].Action)
		}
	}

	desc, err := s.History(context.Background(), "Invoice", "inv-1", OrderDesc, PageRequest{})
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if desc.Entries[0].Action != "invoice.paid" {
		t.Errorf("descending order: expected invoice.paid first, got %s", desc.Entries[0].Action)
	}
}

func TestMemoryStoreByCorrelation(t *testing.T) {
	s := NewMemoryStore()
	corr := "op-55"
	base := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	for i := 2; i >= 0; i-- {
		ts := base.Add(time.Duration(i) * time.Second)
		e := newEntry(t, func(e *ledger.Entry) {
			e.CorrelationID = &corr
			e.OccurredAt = ts
			e.EntityID = fmt.Sprintf("inv-%d", i)
		})
		if _, err := s.Insert(context.Background(), e); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}

	entries, err := s.ByCorrelation(context.Background(), corr)
	if err != nil {
		t.Fatalf("correlation query failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].OccurredAt.Before(entries[i-1].OccurredAt) {
			t.Error("correlation group not ordered by occurred_at")
		}
	}
}

func TestMemoryStoreStats(t *testing.T) {
	s := NewMemoryStore()
	inserts := []func(*ledger.Entry){
		nil,
		func(e *ledger.Entry) { e.Category = ledger.CategoryAuth; e.Status = ledger.StatusFailed },
		func(e *ledger.Entry) { e.Action = "charge.reversal" },
		func(e *ledger.Entry) { e.Action = ledger.ActionReversal },
	}
	for _, mutate := range inserts {
		if _, err := s.Insert(context.Background(), newEntry(t, mutate)); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}

	st, err := s.Stats(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if st.Total != 4 {
		t.Errorf("expected total 4, got %d", st.Total)
	}
	if st.Today != 4 {
		t.Errorf("expected 4 today, got %d", st.Today)
	}
	if st.ReversalCount != 2 {
		t.Errorf("expected 2 reversals, got %d", st.ReversalCount)
	}
	if st.ByCategory[ledger.CategoryBilling] != 3 {
		t.Errorf("expected 3 billing entries, got %d", st.ByCategory[ledger.CategoryBilling])
	}
	if st.ByStatus[ledger.StatusFailed] != 1 {
		t.Errorf("expected 1 failed entry, got %d", st.ByStatus[ledger.StatusFailed])
	}
	if st.LastEntryTime == nil {
		t.Error("last entry time not set")
	}
}

func TestMemoryStoreStatsTimeRange(t *testing.T) {
	s := NewMemoryStore()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	days := []int{0, 1, 2, 3}
	for _, d := range days {
		ts := base.AddDate(0, 0, d)
		e := newEntry(t, func(e *ledger.Entry) {
			e.OccurredAt = ts
			if d == 1 {
				e.Action = ledger.ActionReversal
			}
		})
		if _, err := s.Insert(context.Background(), e); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}

	from := base.AddDate(0, 0, 1)
	to := base.AddDate(0, 0, 2)
	st, err := s.Stats(context.Background(), &from, &to)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if st.Total != 2 {
		t.Errorf("expected 2 entries in range, got %d", st.Total)
	}
	if st.ReversalCount != 1 {
		t.Errorf("expected 1 reversal in range, got %d", st.ReversalCount)
	}
	if st.ByCategory[ledger.CategoryBilling] != 2 {
		t.Errorf("expected 2 billing entries in range, got %d", st.ByCategory[ledger.CategoryBilling])
	}
	// The newest entry overall lies outside the range but still reports.
	if st.LastEntryTime == nil || !st.LastEntryTime.Equal(base.AddDate(0, 0, 3)) {
		t.Errorf("unexpected last entry time: %v", st.LastEntryTime)
	}
}

func TestMemoryStoreHistoryPaginationWithBackfill(t *testing.T) {
	s := NewMemoryStore()
	base := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)
	steps := []string{"invoice.created", "invoice.sent", "invoice.paid"}
	for i, action := range steps {
		a := action
		ts := base.Add(time.Duration(i) * time.Minute)
		e := newEntry(t, func(e *ledger.Entry) {
			e.Action = a
			e.OccurredAt = ts
		})
		if _, err := s.Insert(context.Background(), e); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}
	// A backfilled import arrives last but predates the whole timeline.
	imported := newEntry(t, func(e *ledger.Entry) {
		e.Action = "invoice.imported"
		e.Backfill = true
		e.OccurredAt = base.Add(-time.Hour)
	})
	if _, err := s.Insert(context.Background(), imported); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	var got []string
	p := PageRequest{Limit: 2}
	for {
		page, err := s.History(context.Background(), "Invoice", "inv-1", OrderAsc, p)
		if err != nil {
			t.Fatalf("history failed: %v", err)
		}
		for _, e := range page.Entries {
			got = append(got, e.Action)
		}
		if !page.HasMore {
			break
		}
		if len(got) > 4 {
			t.Fatalf("paging does not terminate: %v", got)
		}
		p = PageRequest{Limit: 2, Cursor: page.NextCursor, CursorTime: page.NextCursorTime}
	}

	want := []string{"invoice.imported", "invoice.created", "invoice.sent", "invoice.paid"}
	if len(got) != len(want) {
		t.Fatalf("expected %d entries across pages, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestMemoryStoreTamperDetection(t *testing.T) {
	s := NewMemoryStore()
	engine := checksum.New(nil)
	e := newEntry(t, nil)
	if _, err := s.Insert(context.Background(), e); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	// Reach inside the store the way a direct DB write would.
	s.mu.Lock()
	s.entries[0].NewValues = map[string]interface{}{"amount": "99999"}
	s.mu.Unlock()

	got, err := s.ByUUID(context.Background(), e.EntryUUID)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	canonical, err := ledger.CanonicalBytes(got)
	if err != nil {
		t.Fatalf("canonicalization failed: %v", err)
	}
	if engine.Verify(got.Checksum, canonical) {
		t.Error("tampered entry still verifies")
	}
}

func TestMemoryStoreScanDescAndCount(t *testing.T) {
	s := NewMemoryStore()
	for i := 0; i < 4; i++ {
		if _, err := s.Insert(context.Background(), newEntry(t, nil)); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}

	out, err := s.ScanDesc(context.Background(), 0, 3)
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if len(out) != 3 || out[0].ID != 4 || out[2].ID != 2 {
		t.Errorf("unexpected scan window: %d entries, first id %d", len(out), out[0].ID)
	}

	rest, err := s.ScanDesc(context.Background(), out[2].ID, 3)
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if len(rest) != 1 || rest[0].ID != 1 {
		t.Errorf("unexpected scan continuation: %d entries", len(rest))
	}

	n, err := s.Count(context.Background())
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if n != 4 {
		t.Errorf("expected count 4, got %d", n)
	}
}
