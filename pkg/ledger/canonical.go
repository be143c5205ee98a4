package ledger

import (
	"fmt"
	"time"

	"github.com/Devibnu/talkabiz-sub022/pkg/canonical"
)

// canonicalVersion tags the canonical layout so a future field addition can
// coexist with digests computed under the current one.
const canonicalVersion = 1

// CanonicalBytes returns the deterministic byte form of an entry, the exact
// input to checksum computation and verification.
//
// Every logical field participates except the digest itself and the
// store-assigned id (entry_uuid is the covered identity; renumbering an
// entry across store migrations must not invalidate its digest). Absent
// optional fields serialize to null, never to "".
func CanonicalBytes(e *Entry) ([]byte, error) {
	if e.EntryUUID == "" {
		return nil, fmt.Errorf("ledger: canonicalize: entry_uuid not assigned")
	}
	if e.OccurredAt.IsZero() {
		return nil, fmt.Errorf("ledger: canonicalize: occurred_at not assigned")
	}
	if e.Action == "" {
		return nil, fmt.Errorf("ledger: canonicalize: action not set")
	}

	for name, m := range map[string]map[string]interface{}{
		"old_values": e.OldValues,
		"new_values": e.NewValues,
		"context":    e.Context,
	} {
		if err := canonical.CheckMap(m); err != nil {
			return nil, fmt.Errorf("ledger: canonicalize %s: %w", name, err)
		}
	}

	payload := map[string]interface{}{
		"v":                   canonicalVersion,
		"entry_uuid":          e.EntryUUID,
		"occurred_at":         e.OccurredAt.UTC().Format(time.RFC3339Nano),
		"backfill":            e.Backfill,
		"actor_type":          string(e.ActorType),
		"actor_id":            e.ActorID,
		"actor_email":         stringOrNull(e.ActorEmail),
		"actor_ip":            stringOrNull(e.ActorIP),
		"actor_user_agent":    stringOrNull(e.ActorUserAgent),
		"action":              e.Action,
		"action_category":     string(e.Category),
		"entity_type":         e.EntityType,
		"entity_id":           e.EntityID,
		"entity_uuid":         stringOrNull(e.EntityUUID),
		"status":              string(e.Status),
		"failure_reason":      stringOrNull(e.FailureReason),
		"old_values":          mapOrNull(e.OldValues),
		"new_values":          mapOrNull(e.NewValues),
		"context":             mapOrNull(e.Context),
		"correlation_id":      stringOrNull(e.CorrelationID),
		"session_id":          stringOrNull(e.SessionID),
		"data_classification": string(e.Classification),
	}

	b, err := canonical.Transform(payload)
	if err != nil {
		return nil, fmt.Errorf("ledger: canonicalize: %w", err)
	}
	return b, nil
}

func stringOrNull(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func mapOrNull(m map[string]interface{}) interface{} {
	if m == nil {
		return nil
	}
	return m
}
