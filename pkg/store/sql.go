package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Devibnu/talkabiz-sub022/pkg/ledger"
)

// Dialect selects driver-specific SQL where Postgres and SQLite diverge.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// timeLayout is RFC 3339 with a fixed 9-digit fraction in UTC, so stored
// timestamps sort lexicographically in chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLStore is a durable append-only store over database/sql. It supports
// Postgres (lib/pq) and SQLite (modernc.org/sqlite).
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore creates the store and ensures the schema exists.
func NewSQLStore(ctx context.Context, db *sql.DB, dialect Dialect) (*SQLStore, error) {
	s := &SQLStore{db: db, dialect: dialect}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return s, nil
}

const pgSchema = `
CREATE TABLE IF NOT EXISTS audit_entries (
	id BIGSERIAL PRIMARY KEY,
	entry_uuid TEXT NOT NULL UNIQUE,
	occurred_at TEXT NOT NULL,
	backfill BOOLEAN NOT NULL DEFAULT FALSE,
	actor_type TEXT NOT NULL,
	actor_id TEXT NOT NULL,
	actor_email TEXT,
	actor_ip TEXT,
	actor_user_agent TEXT,
	action TEXT NOT NULL,
	action_category TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	entity_uuid TEXT,
	status TEXT NOT NULL,
	failure_reason TEXT,
	old_values TEXT,
	new_values TEXT,
	context TEXT,
	correlation_id TEXT,
	session_id TEXT,
	data_classification TEXT NOT NULL,
	checksum TEXT NOT NULL,
	idempotency_key TEXT UNIQUE
);
CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_entries (entity_type, entity_id, occurred_at);
CREATE INDEX IF NOT EXISTS idx_audit_correlation ON audit_entries (correlation_id);
CREATE INDEX IF NOT EXISTS idx_audit_occurred ON audit_entries (occurred_at);
CREATE INDEX IF NOT EXISTS idx_audit_category_status ON audit_entries (action_category, status);
CREATE INDEX IF NOT EXISTS idx_audit_action_lower ON audit_entries (lower(action) text_pattern_ops);
`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS audit_entries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	entry_uuid TEXT NOT NULL UNIQUE,
	occurred_at TEXT NOT NULL,
	backfill BOOLEAN NOT NULL DEFAULT 0,
	actor_type TEXT NOT NULL,
	actor_id TEXT NOT NULL,
	actor_email TEXT,
	actor_ip TEXT,
	actor_user_agent TEXT,
	action TEXT NOT NULL,
	action_category TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	entity_uuid TEXT,
	status TEXT NOT NULL,
	failure_reason TEXT,
	old_values TEXT,
	new_values TEXT,
	context TEXT,
	correlation_id TEXT,
	session_id TEXT,
	data_classification TEXT NOT NULL,
	checksum TEXT NOT NULL,
	idempotency_key TEXT UNIQUE
);
CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_entries (entity_type, entity_id, occurred_at);
CREATE INDEX IF NOT EXISTS idx_audit_correlation ON audit_entries (correlation_id);
CREATE INDEX IF NOT EXISTS idx_audit_occurred ON audit_entries (occurred_at);
CREATE INDEX IF NOT EXISTS idx_audit_category_status ON audit_entries (action_category, status);
CREATE INDEX IF NOT EXISTS idx_audit_action_lower ON audit_entries (lower(action));
`

func (s *SQLStore) migrate(ctx context.Context) error {
	schema := sqliteSchema
	if s.dialect == DialectPostgres {
		schema = pgSchema
	}
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

const entryColumns = `id, entry_uuid, occurred_at, backfill, actor_type, actor_id, actor_email,
actor_ip, actor_user_agent, action, action_category, entity_type, entity_id, entity_uuid,
status, failure_reason, old_values, new_values, context, correlation_id, session_id,
data_classification, checksum, idempotency_key`

// Insert persists the entry atomically and returns the assigned id. There
// is deliberately no UPDATE or DELETE statement anywhere in this file.
func (s *SQLStore) Insert(ctx context.Context, e *ledger.Entry) (int64, error) {
	oldJSON, err := marshalValues(e.OldValues)
	if err != nil {
		return 0, fmt.Errorf("store: marshal old_values: %w", err)
	}
	newJSON, err := marshalValues(e.NewValues)
	if err != nil {
		return 0, fmt.Errorf("store: marshal new_values: %w", err)
	}
	ctxJSON, err := marshalValues(e.Context)
	if err != nil {
		return 0, fmt.Errorf("store: marshal context: %w", err)
	}

	args := []interface{}{
		e.EntryUUID,
		e.OccurredAt.UTC().Format(timeLayout),
		e.Backfill,
		string(e.ActorType),
		e.ActorID,
		nullable(e.ActorEmail),
		nullable(e.ActorIP),
		nullable(e.ActorUserAgent),
		e.Action,
		string(e.Category),
		e.EntityType,
		e.EntityID,
		nullable(e.EntityUUID),
		string(e.Status),
		nullable(e.FailureReason),
		oldJSON,
		newJSON,
		ctxJSON,
		nullable(e.CorrelationID),
		nullable(e.SessionID),
		string(e.Classification),
		e.Checksum,
		nullable(e.IdempotencyKey),
	}

	const insert = `INSERT INTO audit_entries (
	entry_uuid, occurred_at, backfill, actor_type, actor_id, actor_email,
	actor_ip, actor_user_agent, action, action_category, entity_type, entity_id,
	entity_uuid, status, failure_reason, old_values, new_values, context,
	correlation_id, session_id, data_classification, checksum, idempotency_key
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)`

	if s.dialect == DialectPostgres {
		var id int64
		err := s.db.QueryRowContext(ctx, insert+" RETURNING id", args...).Scan(&id)
		if err != nil {
			return 0, mapInsertError(err)
		}
		return id, nil
	}

	res, err := s.db.ExecContext(ctx, insert, args...)
	if err != nil {
		return 0, mapInsertError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: last insert id: %w", err)
	}
	return id, nil
}

func mapInsertError(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "idempotency_key") &&
		(strings.Contains(msg, "duplicate key") || strings.Contains(msg, "UNIQUE constraint")) {
		return fmt.Errorf("%w: %v", ledger.ErrDuplicateIdempotencyKey, err)
	}
	return err
}

func marshalValues(m map[string]interface{}) (sql.NullString, error) {
	if m == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func nullable(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// ByUUID fetches an entry by entry_uuid.
func (s *SQLStore) ByUUID(ctx context.Context, entryUUID string) (*ledger.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM audit_entries WHERE entry_uuid = $1`
	return s.queryOne(ctx, query, entryUUID)
}

// ByIdempotencyKey fetches the entry persisted under a producer key.
func (s *SQLStore) ByIdempotencyKey(ctx context.Context, key string) (*ledger.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM audit_entries WHERE idempotency_key = $1`
	return s.queryOne(ctx, query, key)
}

// LastOccurrenceForCorrelation returns the newest occurred_at in a
// correlation group.
func (s *SQLStore) LastOccurrenceForCorrelation(ctx context.Context, correlationID string) (time.Time, bool, error) {
	var ts sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(occurred_at) FROM audit_entries WHERE correlation_id = $1`,
		correlationID,
	).Scan(&ts)
	if err != nil {
		return time.Time{}, false, err
	}
	if !ts.Valid || ts.String == "" {
		return time.Time{}, false, nil
	}
	t, err := time.Parse(timeLayout, ts.String)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("store: corrupt occurred_at %q: %w", ts.String, err)
	}
	return t, true, nil
}

// Search returns matching entries newest first by id.
func (s *SQLStore) Search(ctx context.Context, f Filter, p PageRequest) (Page, error) {
	var (
		where []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if p.Cursor > 0 {
		where = append(where, "id < "+arg(p.Cursor))
	}
	if f.From != nil {
		where = append(where, "occurred_at >= "+arg(f.From.UTC().Format(timeLayout)))
	}
	if f.To != nil {
		where = append(where, "occurred_at <= "+arg(f.To.UTC().Format(timeLayout)))
	}
	if f.ActorType != "" {
		where = append(where, "actor_type = "+arg(string(f.ActorType)))
	}
	if f.EntityType != "" {
		where = append(where, "entity_type = "+arg(f.EntityType))
	}
	if f.Category != "" {
		where = append(where, "action_category = "+arg(string(f.Category)))
	}
	if f.Status != "" {
		where = append(where, "status = "+arg(string(f.Status)))
	}
	if f.CorrelationID != "" {
		where = append(where, "correlation_id = "+arg(f.CorrelationID))
	}
	if f.FreeText != "" {
		needle := arg("%" + strings.ToLower(f.FreeText) + "%")
		where = append(where, fmt.Sprintf(
			"(lower(action) LIKE %[1]s OR lower(entity_type) LIKE %[1]s OR lower(correlation_id) LIKE %[1]s OR lower(actor_email) LIKE %[1]s)",
			needle,
		))
	}

	query := `SELECT ` + entryColumns + ` FROM audit_entries`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	limit := ClampLimit(p.Limit)
	query += fmt.Sprintf(" ORDER BY id DESC LIMIT %d", limit+1)

	entries, err := s.queryMany(ctx, query, args...)
	if err != nil {
		return Page{}, err
	}
	return paginate(entries, limit), nil
}

func paginate(entries []*ledger.Entry, limit int) Page {
	page := Page{Entries: entries}
	if len(entries) > limit {
		page.Entries = entries[:limit]
		page.HasMore = true
	}
	setNextCursor(&page)
	return page
}

// Stats returns aggregate counts using count queries only. Range-scoped
// counts honor from/to; today and last entry are always ledger-wide.
func (s *SQLStore) Stats(ctx context.Context, from, to *time.Time) (Stats, error) {
	st := Stats{
		ByCategory: make(map[ledger.Category]int64),
		ByStatus:   make(map[ledger.Status]int64),
	}

	var (
		where     []string
		rangeArgs []interface{}
	)
	if from != nil {
		rangeArgs = append(rangeArgs, from.UTC().Format(timeLayout))
		where = append(where, fmt.Sprintf("occurred_at >= $%d", len(rangeArgs)))
	}
	if to != nil {
		rangeArgs = append(rangeArgs, to.UTC().Format(timeLayout))
		where = append(where, fmt.Sprintf("occurred_at <= $%d", len(rangeArgs)))
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	args := append(append([]interface{}{}, rangeArgs...),
		ledger.ActionReversal, "%."+ledger.ActionReversal)
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT
	COUNT(*),
	COUNT(CASE WHEN action = $%d OR action LIKE $%d THEN 1 END)
FROM audit_entries%s`, len(rangeArgs)+1, len(rangeArgs)+2, cond),
		args...,
	).Scan(&st.Total, &st.ReversalCount)
	if err != nil {
		return Stats{}, err
	}

	dayStart := time.Now().UTC().Truncate(24 * time.Hour).Format(timeLayout)
	var last sql.NullString
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(CASE WHEN occurred_at >= $1 THEN 1 END), MAX(occurred_at) FROM audit_entries`,
		dayStart,
	).Scan(&st.Today, &last)
	if err != nil {
		return Stats{}, err
	}
	if last.Valid && last.String != "" {
		t, err := time.Parse(timeLayout, last.String)
		if err != nil {
			return Stats{}, fmt.Errorf("store: corrupt occurred_at %q: %w", last.String, err)
		}
		st.LastEntryTime = &t
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT action_category, COUNT(*) FROM audit_entries`+cond+` GROUP BY action_category`,
		rangeArgs...)
	if err != nil {
		return Stats{}, err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var cat string
		var n int64
		if err := rows.Scan(&cat, &n); err != nil {
			return Stats{}, err
		}
		st.ByCategory[ledger.Category(cat)] = n
	}
	if err := rows.Err(); err != nil {
		return Stats{}, err
	}

	statusRows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM audit_entries`+cond+` GROUP BY status`,
		rangeArgs...)
	if err != nil {
		return Stats{}, err
	}
	defer func() { _ = statusRows.Close() }()
	for statusRows.Next() {
		var status string
		var n int64
		if err := statusRows.Scan(&status, &n); err != nil {
			return Stats{}, err
		}
		st.ByStatus[ledger.Status(status)] = n
	}
	if err := statusRows.Err(); err != nil {
		return Stats{}, err
	}

	return st, nil
}

// History returns the timeline of one logical entity.
func (s *SQLStore) History(ctx context.Context, entityType, entityID string, order Order, p PageRequest) (Page, error) {
	limit := ClampLimit(p.Limit)
	dir := "ASC"
	cursorCmp := ">"
	if order == OrderDesc {
		dir = "DESC"
		cursorCmp = "<"
	}

	args := []interface{}{entityType, entityID}
	query := `SELECT ` + entryColumns + ` FROM audit_entries WHERE entity_type = $1 AND entity_id = $2`
	// The cursor compares on the same (occurred_at, id) key the rows are
	// ordered by; an id-only cursor loops on backfilled entries.
	if p.Cursor > 0 && p.CursorTime != nil {
		args = append(args, p.CursorTime.UTC().Format(timeLayout), p.Cursor)
		query += fmt.Sprintf(" AND (occurred_at, id) %s ($3, $4)", cursorCmp)
	} else if p.Cursor > 0 {
		args = append(args, p.Cursor)
		query += fmt.Sprintf(" AND id %s $3", cursorCmp)
	}
	query += fmt.Sprintf(" ORDER BY occurred_at %s, id %s LIMIT %d", dir, dir, limit+1)

	entries, err := s.queryMany(ctx, query, args...)
	if err != nil {
		return Page{}, err
	}
	return paginate(entries, limit), nil
}

// ByCorrelation returns every entry in a correlation group, ordered by
// occurred_at then id.
func (s *SQLStore) ByCorrelation(ctx context.Context, correlationID string) ([]*ledger.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM audit_entries
WHERE correlation_id = $1 ORDER BY occurred_at ASC, id ASC`
	return s.queryMany(ctx, query, correlationID)
}

// ScanDesc returns up to limit entries below beforeID, descending by id.
func (s *SQLStore) ScanDesc(ctx context.Context, beforeID int64, limit int) ([]*ledger.Entry, error) {
	if beforeID > 0 {
		query := fmt.Sprintf(`SELECT `+entryColumns+` FROM audit_entries WHERE id < $1 ORDER BY id DESC LIMIT %d`, limit)
		return s.queryMany(ctx, query, beforeID)
	}
	query := fmt.Sprintf(`SELECT `+entryColumns+` FROM audit_entries ORDER BY id DESC LIMIT %d`, limit)
	return s.queryMany(ctx, query)
}

// Count returns the total number of entries.
func (s *SQLStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_entries`).Scan(&n)
	return n, err
}

func (s *SQLStore) queryOne(ctx context.Context, query string, args ...interface{}) (*ledger.Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ledger.ErrNotFound
	}
	e, err := scanEntry(rows)
	if err != nil {
		return nil, err
	}
	return e, rows.Err()
}

func (s *SQLStore) queryMany(ctx context.Context, query string, args ...interface{}) ([]*ledger.Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []*ledger.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func scanEntry(rows *sql.Rows) (*ledger.Entry, error) {
	var (
		e          ledger.Entry
		occurredAt string
		actorType  string
		category   string
		status     string
		class      string
		actorEmail, actorIP, actorUA, entityUUID, failureReason sql.NullString
		oldJSON, newJSON, ctxJSON, correlationID, sessionID     sql.NullString
		idemKey                                                 sql.NullString
	)
	err := rows.Scan(
		&e.ID, &e.EntryUUID, &occurredAt, &e.Backfill, &actorType, &e.ActorID,
		&actorEmail, &actorIP, &actorUA, &e.Action, &category, &e.EntityType,
		&e.EntityID, &entityUUID, &status, &failureReason, &oldJSON, &newJSON,
		&ctxJSON, &correlationID, &sessionID, &class, &e.Checksum, &idemKey,
	)
	if err != nil {
		return nil, err
	}

	e.OccurredAt, err = time.Parse(timeLayout, occurredAt)
	if err != nil {
		return nil, fmt.Errorf("store: corrupt occurred_at %q: %w", occurredAt, err)
	}
	e.ActorType = ledger.ActorType(actorType)
	e.Category = ledger.Category(category)
	e.Status = ledger.Status(status)
	e.Classification = ledger.Classification(class)
	e.ActorEmail = fromNullable(actorEmail)
	e.ActorIP = fromNullable(actorIP)
	e.ActorUserAgent = fromNullable(actorUA)
	e.EntityUUID = fromNullable(entityUUID)
	e.FailureReason = fromNullable(failureReason)
	e.CorrelationID = fromNullable(correlationID)
	e.SessionID = fromNullable(sessionID)
	e.IdempotencyKey = fromNullable(idemKey)

	if e.OldValues, err = unmarshalValues(oldJSON); err != nil {
		return nil, fmt.Errorf("store: corrupt old_values: %w", err)
	}
	if e.NewValues, err = unmarshalValues(newJSON); err != nil {
		return nil, fmt.Errorf("store: corrupt new_values: %w", err)
	}
	if e.Context, err = unmarshalValues(ctxJSON); err != nil {
		return nil, fmt.Errorf("store: corrupt context: %w", err)
	}
	return &e, nil
}

func fromNullable(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func unmarshalValues(s sql.NullString) (map[string]interface{}, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	// UseNumber keeps large integers verbatim; a float64 round-trip could
	// change the canonical form and falsely flag the entry as tampered.
	dec := json.NewDecoder(strings.NewReader(s.String))
	dec.UseNumber()
	var m map[string]interface{}
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	return m, nil
}

// ErrUnsupportedDialect is returned by ParseDialect for unknown drivers.
var ErrUnsupportedDialect = errors.New("store: unsupported dialect")

// ParseDialect maps a registered driver name to a Dialect. The accepted
// names are exactly the ones the imported drivers register with sql.Open.
func ParseDialect(driver string) (Dialect, error) {
	switch driver {
	case "postgres":
		return DialectPostgres, nil
	case "sqlite":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedDialect, driver)
	}
}
