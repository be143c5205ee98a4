package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an entry is not found.
	ErrNotFound = errors.New("ledger: entry not found")
	// ErrDuplicateIdempotencyKey is returned by stores when an insert hits
	// an existing idempotency key; the Writer resolves it to the original
	// entry instead of surfacing it to producers.
	ErrDuplicateIdempotencyKey = errors.New("ledger: idempotency key already used")
)

// ValidationError means a producer supplied an incomplete or malformed
// event descriptor. Rejected before any checksum computation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("ledger: invalid event: %s %s", e.Field, e.Reason)
}

// CanonicalizationError means an entry could not be deterministically
// serialized. This is a programmer error (unsupported field type), fatal to
// the single Append call.
type CanonicalizationError struct {
	Err error
}

func (e *CanonicalizationError) Error() string {
	return fmt.Sprintf("ledger: canonicalization failed: %v", e.Err)
}

func (e *CanonicalizationError) Unwrap() error { return e.Err }

// PersistenceError means the store write failed. The event is not silently
// dropped; producers retry with an idempotency key.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("ledger: persistence failed during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
