// Package export produces evidence packs: self-contained zip archives of a
// search window, with a manifest carrying the Merkle root of the included
// checksums so a recipient can verify the pack offline.
package export

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/Devibnu/talkabiz-sub022/pkg/checksum"
	"github.com/Devibnu/talkabiz-sub022/pkg/config"
	"github.com/Devibnu/talkabiz-sub022/pkg/ledger"
	"github.com/Devibnu/talkabiz-sub022/pkg/merkle"
	"github.com/Devibnu/talkabiz-sub022/pkg/store"
)

// PackVersion is the evidence pack format version. Readers accept any pack
// whose major version matches.
const PackVersion = "1.0.0"

var (
	// ErrInvalidTimeRange is returned when start time is after end time.
	ErrInvalidTimeRange = errors.New("export: start time must be before end time")
	// ErrIncompatiblePack is returned when a pack's format version cannot
	// be read by this build.
	ErrIncompatiblePack = errors.New("export: incompatible pack version")
	// ErrPackCorrupted is returned when a pack's contents do not match its
	// manifest.
	ErrPackCorrupted = errors.New("export: pack contents do not match manifest")
)

// Request defines the window to export.
type Request struct {
	Filter store.Filter `json:"filter"`
	// MaxEntries caps the pack size; zero means the store page maximum.
	MaxEntries int `json:"max_entries,omitempty"`
	// Profile gates the pack by jurisdiction: entries outside its
	// exportable classifications or retention window are left out.
	Profile *config.RetentionProfile `json:"-"`
}

// Manifest describes the contents of an evidence pack.
type Manifest struct {
	PackVersion string     `json:"pack_version"`
	GeneratedAt time.Time  `json:"generated_at"`
	EventCount  int        `json:"event_count"`
	MerkleRoot  string     `json:"merkle_root"`
	EventsHash  string     `json:"events_sha256"`
	From        *time.Time `json:"from,omitempty"`
	To          *time.Time `json:"to,omitempty"`
}

// Exporter builds evidence packs from the store.
type Exporter struct {
	store store.Store
}

// NewExporter creates an Exporter over the given store.
func NewExporter(s store.Store) *Exporter {
	return &Exporter{store: s}
}

// GeneratePack creates a zip of the matching entries plus a manifest. The
// returned checksum is the sha256 of the zip bytes.
func (e *Exporter) GeneratePack(ctx context.Context, req Request) ([]byte, string, error) {
	if req.Filter.From != nil && req.Filter.To != nil && req.Filter.From.After(*req.Filter.To) {
		return nil, "", ErrInvalidTimeRange
	}

	filter := req.Filter
	if req.Profile != nil && req.Profile.AuditLogDays > 0 {
		cutoff := time.Now().UTC().AddDate(0, 0, -req.Profile.AuditLogDays)
		if filter.From == nil || filter.From.Before(cutoff) {
			filter.From = &cutoff
		}
	}

	limit := req.MaxEntries
	if limit <= 0 || limit > store.MaxPageLimit {
		limit = store.MaxPageLimit
	}
	page, err := e.store.Search(ctx, filter, store.PageRequest{Limit: limit})
	if err != nil {
		return nil, "", fmt.Errorf("export: search: %w", err)
	}
	entries := page.Entries
	if req.Profile != nil {
		kept := entries[:0]
		for _, entry := range entries {
			if req.Profile.MayExport(string(entry.Classification)) {
				kept = append(kept, entry)
			}
		}
		entries = kept
	}

	// Oldest first inside the pack, matching ledger order.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}

	eventsJSON, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, "", fmt.Errorf("export: marshal events: %w", err)
	}

	checksums := make([]string, len(entries))
	for i, entry := range entries {
		checksums[i] = entry.Checksum
	}

	manifest := Manifest{
		PackVersion: PackVersion,
		GeneratedAt: time.Now().UTC(),
		EventCount:  len(entries),
		MerkleRoot:  merkle.Root(checksums),
		EventsHash:  checksum.HashBytes(eventsJSON),
		From:        filter.From,
		To:          filter.To,
	}
	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, "", fmt.Errorf("export: marshal manifest: %w", err)
	}

	buf := new(bytes.Buffer)
	w := zip.NewWriter(buf)

	f, err := w.Create("events.json")
	if err != nil {
		return nil, "", err
	}
	_, _ = f.Write(eventsJSON)

	f, err = w.Create("manifest.json")
	if err != nil {
		return nil, "", err
	}
	_, _ = f.Write(manifestJSON)

	f, err = w.Create("README.txt")
	if err != nil {
		return nil, "", err
	}
	_, _ = fmt.Fprintf(f,
		"Audit Ledger Evidence Pack v%s\nGenerated at %s\n%d entries\nMerkle root: %s\n",
		PackVersion, manifest.GeneratedAt.Format(time.RFC3339), manifest.EventCount, manifest.MerkleRoot)

	if err := w.Close(); err != nil {
		return nil, "", err
	}

	zipBytes := buf.Bytes()
	return zipBytes, checksum.HashBytes(zipBytes), nil
}

// VerifyPack re-derives the Merkle root and events hash from a pack's
// contents and checks them against its manifest.
func VerifyPack(packBytes []byte) (*Manifest, error) {
	r, err := zip.NewReader(bytes.NewReader(packBytes), int64(len(packBytes)))
	if err != nil {
		return nil, fmt.Errorf("export: open pack: %w", err)
	}

	manifestJSON, err := readPackFile(r, "manifest.json")
	if err != nil {
		return nil, err
	}
	var manifest Manifest
	if err := json.Unmarshal(manifestJSON, &manifest); err != nil {
		return nil, fmt.Errorf("export: parse manifest: %w", err)
	}

	packVer, err := semver.NewVersion(manifest.PackVersion)
	if err != nil {
		return nil, fmt.Errorf("export: bad pack version %q: %w", manifest.PackVersion, err)
	}
	supported := semver.MustParse(PackVersion)
	if packVer.Major() != supported.Major() {
		return nil, fmt.Errorf("%w: pack is v%s, reader supports v%d.x",
			ErrIncompatiblePack, manifest.PackVersion, supported.Major())
	}

	eventsJSON, err := readPackFile(r, "events.json")
	if err != nil {
		return nil, err
	}
	if checksum.HashBytes(eventsJSON) != manifest.EventsHash {
		return nil, fmt.Errorf("%w: events.json hash mismatch", ErrPackCorrupted)
	}

	var entries []*ledger.Entry
	if err := json.Unmarshal(eventsJSON, &entries); err != nil {
		return nil, fmt.Errorf("export: parse events: %w", err)
	}
	if len(entries) != manifest.EventCount {
		return nil, fmt.Errorf("%w: event count mismatch", ErrPackCorrupted)
	}
	checksums := make([]string, len(entries))
	for i, entry := range entries {
		checksums[i] = entry.Checksum
	}
	if merkle.Root(checksums) != manifest.MerkleRoot {
		return nil, fmt.Errorf("%w: merkle root mismatch", ErrPackCorrupted)
	}

	return &manifest, nil
}

func readPackFile(r *zip.Reader, name string) ([]byte, error) {
	for _, f := range r.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("export: open %s: %w", name, err)
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("export: pack is missing %s", name)
}
