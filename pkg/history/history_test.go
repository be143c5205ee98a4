package history_test

import (
	"context"
	"testing"

	"github.com/Devibnu/talkabiz-sub022/pkg/checksum"
	"github.com/Devibnu/talkabiz-sub022/pkg/history"
	"github.com/Devibnu/talkabiz-sub022/pkg/ledger"
	"github.com/Devibnu/talkabiz-sub022/pkg/store"
)

func strPtr(s string) *string { return &s }

func seedTimeline(t *testing.T) store.Store {
	t.Helper()
	st := store.NewMemoryStore()
	w := ledger.NewWriter(st, checksum.New(nil))

	steps := []struct {
		action     string
		entityType string
		entityID   string
		corr       *string
	}{
		{"invoice.created", "Invoice", "inv-1", strPtr("op-1")},
		{"charge.captured", "Charge", "ch-1", strPtr("op-1")},
		{"invoice.paid", "Invoice", "inv-1", strPtr("op-1")},
		{"invoice.created", "Invoice", "inv-2", nil},
	}
	for _, s := range steps {
		_, err := w.Append(context.Background(), ledger.Event{
			ActorType:      ledger.ActorSystem,
			ActorID:        "billing",
			Action:         s.action,
			Category:       ledger.CategoryBilling,
			EntityType:     s.entityType,
			EntityID:       s.entityID,
			Status:         ledger.StatusSuccess,
			CorrelationID:  s.corr,
			Classification: ledger.ClassInternal,
		})
		if err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}
	return st
}

func TestHistoryTimeline(t *testing.T) {
	r := history.NewResolver(seedTimeline(t))

	page, err := r.History(context.Background(), "Invoice", "inv-1", store.OrderAsc, store.PageRequest{})
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(page.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(page.Entries))
	}
	if page.Entries[0].Action != "invoice.created" || page.Entries[1].Action != "invoice.paid" {
		t.Errorf("timeline out of order: %s, %s",
			page.Entries[0].Action, page.Entries[1].Action)
	}
}

func TestHistoryShowsReversalAfterOriginal(t *testing.T) {
	st := store.NewMemoryStore()
	w := ledger.NewWriter(st, checksum.New(nil))

	corr := strPtr("op-7")
	for _, action := range []string{"invoice.created", ledger.ActionReversal} {
		_, err := w.Append(context.Background(), ledger.Event{
			ActorType:      ledger.ActorAdmin,
			ActorID:        "admin-1",
			Action:         action,
			Category:       ledger.CategoryBilling,
			EntityType:     "Invoice",
			EntityID:       "7",
			Status:         ledger.StatusSuccess,
			CorrelationID:  corr,
			Classification: ledger.ClassInternal,
		})
		if err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	page, err := history.NewResolver(st).History(context.Background(),
		"Invoice", "7", store.OrderAsc, store.PageRequest{})
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(page.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(page.Entries))
	}
	if page.Entries[1].Action != ledger.ActionReversal {
		t.Errorf("expected reversal last, got %s", page.Entries[1].Action)
	}
}

func TestHistoryDefaultsToAscending(t *testing.T) {
	r := history.NewResolver(seedTimeline(t))

	page, err := r.History(context.Background(), "Invoice", "inv-1", "", store.PageRequest{})
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if page.Entries[0].Action != "invoice.created" {
		t.Errorf("expected oldest entry first, got %s", page.Entries[0].Action)
	}
}

func TestHistoryRequiresEntity(t *testing.T) {
	r := history.NewResolver(store.NewMemoryStore())

	if _, err := r.History(context.Background(), "", "inv-1", store.OrderAsc, store.PageRequest{}); err == nil {
		t.Error("expected error for missing entity type")
	}
	if _, err := r.History(context.Background(), "Invoice", "", store.OrderAsc, store.PageRequest{}); err == nil {
		t.Error("expected error for missing entity id")
	}
}

func TestRelatedByCorrelation(t *testing.T) {
	r := history.NewResolver(seedTimeline(t))

	entries, err := r.RelatedByCorrelation(context.Background(), "op-1")
	if err != nil {
		t.Fatalf("correlation query failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 related entries, got %d", len(entries))
	}
	types := map[string]bool{}
	for _, e := range entries {
		types[e.EntityType] = true
	}
	if !types["Invoice"] || !types["Charge"] {
		t.Error("correlation group did not span both entity types")
	}

	if _, err := r.RelatedByCorrelation(context.Background(), ""); err == nil {
		t.Error("expected error for empty correlation id")
	}
}
