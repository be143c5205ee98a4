// Package verify implements batch tamper detection: it re-derives the
// integrity digest of stored entries from their current field values and
// reports every mismatch. A finding is a result, not an error; a single
// tampered entry never aborts the scan.
package verify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Devibnu/talkabiz-sub022/pkg/checksum"
	"github.com/Devibnu/talkabiz-sub022/pkg/ledger"
	"github.com/Devibnu/talkabiz-sub022/pkg/merkle"
	"github.com/Devibnu/talkabiz-sub022/pkg/observability"
)

// State is the verifier lifecycle.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// ErrAlreadyRunning is returned when a check is started while another is
// in flight.
var ErrAlreadyRunning = errors.New("verify: a check is already running")

// Source is the read-only window the verifier scans. Entries are immutable
// once visible, so scanning needs no coordination with concurrent appends.
type Source interface {
	ScanDesc(ctx context.Context, beforeID int64, limit int) ([]*ledger.Entry, error)
	Count(ctx context.Context) (int64, error)
}

// Result is the finding for a single entry, carrying enough identifying
// data to investigate without re-querying.
type Result struct {
	ID         int64     `json:"id"`
	EntryUUID  string    `json:"entry_uuid"`
	OccurredAt time.Time `json:"occurred_at"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Valid      bool      `json:"valid"`
	Reason     string    `json:"reason,omitempty"`
}

// Report is the outcome of one integrity check run.
type Report struct {
	State        State     `json:"state"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	Total        int       `json:"total"`
	ValidCount   int       `json:"valid_count"`
	InvalidCount int       `json:"invalid_count"`
	// WindowRoot is the Merkle root over the checksums examined (oldest
	// first), a compact external anchor for the verified window.
	WindowRoot string `json:"window_root"`
	// ResumeCursor is set when the run was cancelled: a follow-up
	// RunCheckFrom(cursor, ...) continues where this run stopped.
	ResumeCursor int64    `json:"resume_cursor,omitempty"`
	Results      []Result `json:"results"`
}

// Verifier runs chunked integrity checks over the ledger.
type Verifier struct {
	source Source
	engine *checksum.Engine
	obs    *observability.Provider
	logger *slog.Logger

	chunkSize int

	mu    sync.Mutex
	state State
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithChunkSize bounds how many entries are loaded per scan round trip.
func WithChunkSize(n int) Option {
	return func(v *Verifier) {
		if n > 0 {
			v.chunkSize = n
		}
	}
}

// WithObservability attaches metrics and tracing.
func WithObservability(p *observability.Provider) Option {
	return func(v *Verifier) { v.obs = p }
}

// NewVerifier creates a Verifier over the given source and engine.
func NewVerifier(source Source, engine *checksum.Engine, opts ...Option) *Verifier {
	v := &Verifier{
		source:    source,
		engine:    engine,
		logger:    slog.Default().With("component", "verify"),
		chunkSize: 200,
		state:     StateIdle,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// State returns the current lifecycle state.
func (v *Verifier) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// RunCheck verifies the limit most recent entries.
func (v *Verifier) RunCheck(ctx context.Context, limit int) (*Report, error) {
	return v.RunCheckFrom(ctx, 0, limit)
}

// RunCheckFrom verifies up to limit entries with id strictly below cursor
// (from the head when cursor <= 0). The scan is chunked; cancelling the
// context keeps the partial results computed so far and sets ResumeCursor.
func (v *Verifier) RunCheckFrom(ctx context.Context, cursor int64, limit int) (*Report, error) {
	v.mu.Lock()
	if v.state == StateRunning {
		v.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	v.state = StateRunning
	v.mu.Unlock()

	report := v.run(ctx, cursor, limit)

	v.mu.Lock()
	v.state = report.State
	v.mu.Unlock()

	if v.obs != nil {
		v.obs.RecordVerification(ctx, report.Total, report.InvalidCount,
			report.FinishedAt.Sub(report.StartedAt))
	}
	if report.InvalidCount > 0 {
		v.logger.Warn("integrity check found tampered entries",
			"total", report.Total, "invalid", report.InvalidCount)
	} else {
		v.logger.Info("integrity check completed",
			"total", report.Total, "state", report.State)
	}
	return report, nil
}

func (v *Verifier) run(ctx context.Context, cursor int64, limit int) *Report {
	report := &Report{StartedAt: time.Now().UTC()}
	// Checksums in scan order (newest first); reversed before anchoring.
	var checksums []string

	remaining := limit
	for remaining > 0 {
		if err := ctx.Err(); err != nil {
			report.State = StateFailed
			report.ResumeCursor = cursor
			break
		}

		chunk := v.chunkSize
		if remaining < chunk {
			chunk = remaining
		}
		entries, err := v.source.ScanDesc(ctx, cursor, chunk)
		if err != nil {
			v.logger.Error("window scan failed", "cursor", cursor, "error", err)
			report.State = StateFailed
			report.ResumeCursor = cursor
			break
		}
		if len(entries) == 0 {
			break
		}

		for _, e := range entries {
			report.Results = append(report.Results, v.checkEntry(e))
			checksums = append(checksums, e.Checksum)
			cursor = e.ID
		}
		remaining -= len(entries)
	}

	if report.State == "" {
		report.State = StateCompleted
	}
	for _, r := range report.Results {
		if r.Valid {
			report.ValidCount++
		} else {
			report.InvalidCount++
		}
	}
	report.Total = len(report.Results)

	// Anchor oldest-first so the root matches the store's insertion order.
	for i, j := 0, len(checksums)-1; i < j; i, j = i+1, j-1 {
		checksums[i], checksums[j] = checksums[j], checksums[i]
	}
	report.WindowRoot = merkle.Root(checksums)
	report.FinishedAt = time.Now().UTC()
	return report
}

func (v *Verifier) checkEntry(e *ledger.Entry) Result {
	res := Result{
		ID:         e.ID,
		EntryUUID:  e.EntryUUID,
		OccurredAt: e.OccurredAt,
		Action:     e.Action,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
	}
	valid, err := CheckEntry(v.engine, e)
	if err != nil {
		res.Reason = "canonicalization failed: " + err.Error()
		return res
	}
	if !valid {
		res.Reason = "stored checksum does not match current field values"
		return res
	}
	res.Valid = true
	return res
}

// CheckEntry re-canonicalizes the entry's current field values and
// compares the recomputed digest to the stored one. false means tampered.
func CheckEntry(engine *checksum.Engine, e *ledger.Entry) (bool, error) {
	b, err := ledger.CanonicalBytes(e)
	if err != nil {
		return false, err
	}
	return engine.Verify(e.Checksum, b), nil
}
