// Package ledger implements the append-only audit ledger core: the entry
// model, the single write path, and the integrity digest over every entry.
//
//   - Entries are immutable once persisted; corrections are new entries
//     referencing the original via correlation id.
//   - Every entry carries a digest over its canonical form, computed once
//     at write time.
//   - There is no update or delete operation anywhere in the contract.
package ledger

import (
	"time"
)

// ActorType identifies who performed an audited action.
type ActorType string

const (
	ActorUser    ActorType = "user"
	ActorAdmin   ActorType = "admin"
	ActorSystem  ActorType = "system"
	ActorWebhook ActorType = "webhook"
	ActorCron    ActorType = "cron"
)

// Category groups actions for filtering and aggregation.
type Category string

const (
	CategoryBilling     Category = "billing"
	CategoryAuth        Category = "auth"
	CategoryConfig      Category = "config"
	CategoryTrustSafety Category = "trust_safety"
	CategoryOther       Category = "other"
)

// Status is the outcome of the audited action.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusPending Status = "pending"
)

// Classification governs read-access policy, enforced by an external
// authorization collaborator.
type Classification string

const (
	ClassPublic       Classification = "public"
	ClassInternal     Classification = "internal"
	ClassConfidential Classification = "confidential"
	ClassRestricted   Classification = "restricted"
)

// ActionReversal is the conventional action verb for entries that correct
// an earlier entry. The original is referenced via correlation id or a
// context back-reference, never mutated.
const ActionReversal = "reversal"

var (
	validActorTypes = map[ActorType]bool{
		ActorUser: true, ActorAdmin: true, ActorSystem: true,
		ActorWebhook: true, ActorCron: true,
	}
	validCategories = map[Category]bool{
		CategoryBilling: true, CategoryAuth: true, CategoryConfig: true,
		CategoryTrustSafety: true, CategoryOther: true,
	}
	validStatuses = map[Status]bool{
		StatusSuccess: true, StatusFailed: true, StatusPending: true,
	}
	validClassifications = map[Classification]bool{
		ClassPublic: true, ClassInternal: true,
		ClassConfidential: true, ClassRestricted: true,
	}
)

// Entry is the sole persisted entity of the ledger.
//
// Nullable fields are pointer typed so that "absent" and "empty string"
// remain distinct in storage and in the canonical form. ID is assigned by
// the store at insertion; EntryUUID is assigned exactly once at creation
// and never regenerated, so entries stay addressable across store
// migrations.
type Entry struct {
	ID         int64     `json:"id"`
	EntryUUID  string    `json:"entry_uuid"`
	OccurredAt time.Time `json:"occurred_at"`
	Backfill   bool      `json:"backfill"`

	ActorType      ActorType `json:"actor_type"`
	ActorID        string    `json:"actor_id"`
	ActorEmail     *string   `json:"actor_email,omitempty"`
	ActorIP        *string   `json:"actor_ip,omitempty"`
	ActorUserAgent *string   `json:"actor_user_agent,omitempty"`

	Action   string   `json:"action"`
	Category Category `json:"action_category"`

	EntityType string  `json:"entity_type"`
	EntityID   string  `json:"entity_id"`
	EntityUUID *string `json:"entity_uuid,omitempty"`

	Status        Status  `json:"status"`
	FailureReason *string `json:"failure_reason,omitempty"`

	OldValues map[string]interface{} `json:"old_values,omitempty"`
	NewValues map[string]interface{} `json:"new_values,omitempty"`
	Context   map[string]interface{} `json:"context,omitempty"`

	CorrelationID *string `json:"correlation_id,omitempty"`
	SessionID     *string `json:"session_id,omitempty"`

	Classification Classification `json:"data_classification"`

	Checksum string `json:"checksum"`

	// IdempotencyKey is a storage-level duplicate barrier, not a logical
	// field: it is excluded from the canonical form and the digest.
	IdempotencyKey *string `json:"-"`
}

// Clone returns a deep copy. Stores hand out clones so no reader can
// mutate a persisted entry in place.
func (e *Entry) Clone() *Entry {
	c := *e
	c.ActorEmail = cloneString(e.ActorEmail)
	c.ActorIP = cloneString(e.ActorIP)
	c.ActorUserAgent = cloneString(e.ActorUserAgent)
	c.EntityUUID = cloneString(e.EntityUUID)
	c.FailureReason = cloneString(e.FailureReason)
	c.CorrelationID = cloneString(e.CorrelationID)
	c.SessionID = cloneString(e.SessionID)
	c.IdempotencyKey = cloneString(e.IdempotencyKey)
	c.OldValues = cloneMap(e.OldValues)
	c.NewValues = cloneMap(e.NewValues)
	c.Context = cloneMap(e.Context)
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return cloneMap(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// Event is the producer-facing descriptor accepted by the Writer. The
// Writer fills the system-assigned fields (id, entry_uuid, checksum, and
// occurred_at unless a trusted backfill supplies one).
type Event struct {
	ActorType      ActorType `json:"actor_type"`
	ActorID        string    `json:"actor_id"`
	ActorEmail     *string   `json:"actor_email,omitempty"`
	ActorIP        *string   `json:"actor_ip,omitempty"`
	ActorUserAgent *string   `json:"actor_user_agent,omitempty"`

	Action   string   `json:"action"`
	Category Category `json:"action_category"`

	EntityType string  `json:"entity_type"`
	EntityID   string  `json:"entity_id"`
	EntityUUID *string `json:"entity_uuid,omitempty"`

	Status        Status  `json:"status"`
	FailureReason *string `json:"failure_reason,omitempty"`

	OldValues map[string]interface{} `json:"old_values,omitempty"`
	NewValues map[string]interface{} `json:"new_values,omitempty"`
	Context   map[string]interface{} `json:"context,omitempty"`

	CorrelationID *string `json:"correlation_id,omitempty"`
	SessionID     *string `json:"session_id,omitempty"`

	Classification Classification `json:"data_classification"`

	// OccurredAt is honored only when Backfill is set; otherwise the
	// Writer assigns the current time and a supplied value is rejected.
	OccurredAt *time.Time `json:"occurred_at,omitempty"`
	Backfill   bool       `json:"backfill,omitempty"`

	// IdempotencyKey lets producers retry a failed Append without creating
	// duplicate entries. Optional.
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// Validate checks the descriptor before any checksum computation. Nothing
// is persisted when validation fails.
func (ev *Event) Validate() error {
	if ev.Action == "" {
		return &ValidationError{Field: "action", Reason: "must not be empty"}
	}
	if ev.ActorID == "" {
		return &ValidationError{Field: "actor_id", Reason: "must not be empty"}
	}
	if !validActorTypes[ev.ActorType] {
		return &ValidationError{Field: "actor_type", Reason: "must be one of user, admin, system, webhook, cron"}
	}
	if !validCategories[ev.Category] {
		return &ValidationError{Field: "action_category", Reason: "must be one of billing, auth, config, trust_safety, other"}
	}
	if ev.EntityType == "" {
		return &ValidationError{Field: "entity_type", Reason: "must not be empty"}
	}
	if ev.EntityID == "" {
		return &ValidationError{Field: "entity_id", Reason: "must not be empty"}
	}
	if !validStatuses[ev.Status] {
		return &ValidationError{Field: "status", Reason: "must be one of success, failed, pending"}
	}
	if ev.Status != StatusFailed && ev.FailureReason != nil {
		return &ValidationError{Field: "failure_reason", Reason: "only allowed when status is failed"}
	}
	if !validClassifications[ev.Classification] {
		return &ValidationError{Field: "data_classification", Reason: "must be one of public, internal, confidential, restricted"}
	}
	if ev.OccurredAt != nil && !ev.Backfill {
		return &ValidationError{Field: "occurred_at", Reason: "only trusted backfill producers may supply a timestamp"}
	}
	if ev.CorrelationID != nil && *ev.CorrelationID == "" {
		return &ValidationError{Field: "correlation_id", Reason: "must not be empty when supplied"}
	}
	return nil
}
