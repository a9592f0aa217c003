// Package sqlite persists chain entries in an embedded SQLite database.
//
// Immutability is enforced in the schema itself: BEFORE UPDATE and BEFORE
// DELETE triggers abort any rewrite, so even a process with the database
// handle cannot silently mutate history. The index column is the primary
// key, which also rejects a second writer racing on the same position.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/glebarez/go-sqlite"

	"github.com/chainlog/chainlog/internal/audit"
)

const columns = `idx, id, ts, user_id, username, action, resource, resource_id,
	method, path, query, body, ip_address, user_agent, status, status_code,
	duration_ms, error, metadata, prev_hash, hash`

// Store implements audit.Store on an embedded SQLite database.
type Store struct {
	db *sql.DB
}

var _ audit.Store = (*Store)(nil)

// Open opens (or creates) the database at path and installs the schema.
// WAL mode allows CLI reads concurrent with a writing service.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database %s: %w", path, err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS audit_entries (
			idx         INTEGER PRIMARY KEY,
			id          TEXT NOT NULL,
			ts          TEXT NOT NULL,
			user_id     TEXT NOT NULL DEFAULT '',
			username    TEXT NOT NULL DEFAULT '',
			action      TEXT NOT NULL DEFAULT '',
			resource    TEXT NOT NULL DEFAULT '',
			resource_id TEXT NOT NULL DEFAULT '',
			method      TEXT NOT NULL DEFAULT '',
			path        TEXT NOT NULL DEFAULT '',
			query       TEXT NOT NULL DEFAULT '',
			body        TEXT NOT NULL DEFAULT '',
			ip_address  TEXT NOT NULL DEFAULT '',
			user_agent  TEXT NOT NULL DEFAULT '',
			status      TEXT NOT NULL DEFAULT '',
			status_code INTEGER NOT NULL DEFAULT 0,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			error       TEXT NOT NULL DEFAULT '',
			metadata    TEXT NOT NULL DEFAULT '',
			prev_hash   TEXT NOT NULL DEFAULT '',
			hash        TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_entries_user ON audit_entries(user_id);
		CREATE INDEX IF NOT EXISTS idx_entries_action ON audit_entries(action);
		CREATE INDEX IF NOT EXISTS idx_entries_ts ON audit_entries(ts);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating sqlite schema: %w", err)
	}

	// Triggers carry BEGIN...END blocks, so they get their own Exec each.
	for _, trigger := range []string{
		`CREATE TRIGGER IF NOT EXISTS audit_entries_no_update
		 BEFORE UPDATE ON audit_entries
		 BEGIN SELECT RAISE(ABORT, 'audit entries are immutable'); END`,
		`CREATE TRIGGER IF NOT EXISTS audit_entries_no_delete
		 BEFORE DELETE ON audit_entries
		 BEGIN SELECT RAISE(ABORT, 'audit entries are immutable'); END`,
	} {
		if _, err := db.Exec(trigger); err != nil {
			db.Close()
			return nil, fmt.Errorf("installing immutability trigger: %w", err)
		}
	}

	return &Store{db: db}, nil
}

// Write inserts one committed entry. A plain INSERT, never OR REPLACE: a
// collision on the index means two writers raced, and the loser must fail.
func (s *Store) Write(ctx context.Context, e *audit.Entry) error {
	body, err := json.Marshal(e.Body)
	if err != nil {
		return fmt.Errorf("marshaling entry %d body: %w", e.Index, err)
	}
	meta, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("marshaling entry %d metadata: %w", e.Index, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audit_entries (`+columns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Index, e.ID, e.Timestamp, e.UserID, e.Username, e.Action,
		e.Resource, e.ResourceID, e.Method, e.Path, e.Query, string(body),
		e.IPAddress, e.UserAgent, e.Status, e.StatusCode, e.DurationMs,
		e.ErrorMessage, string(meta), e.PrevHash, e.Hash,
	)
	if err != nil {
		return fmt.Errorf("inserting entry %d: %w", e.Index, err)
	}
	return nil
}

// Read returns the entries matching the filter, ordered by index.
func (s *Store) Read(ctx context.Context, f audit.Filter) ([]audit.Entry, error) {
	query := "SELECT " + columns + " FROM audit_entries WHERE 1=1"
	where, args := buildWhere(f)
	query += where

	query += " ORDER BY idx"
	if f.Descending {
		query += " DESC"
	}
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	} else if f.Offset > 0 {
		query += " LIMIT -1"
	}
	if f.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, f.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying entries: %w", err)
	}
	defer rows.Close()

	var entries []audit.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// ReadAll returns the full chain in index order.
func (s *Store) ReadAll(ctx context.Context) ([]audit.Entry, error) {
	return s.Read(ctx, audit.Filter{})
}

// Count returns how many entries match the filter's match fields.
func (s *Store) Count(ctx context.Context, f audit.Filter) (int64, error) {
	query := "SELECT COUNT(*) FROM audit_entries WHERE 1=1"
	where, args := buildWhere(f)
	query += where

	var n int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting entries: %w", err)
	}
	return n, nil
}

// Last returns the highest-index entry, or nil for an empty store.
func (s *Store) Last(ctx context.Context) (*audit.Entry, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+columns+" FROM audit_entries ORDER BY idx DESC LIMIT 1")
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func buildWhere(f audit.Filter) (string, []any) {
	var query string
	var args []any

	if f.Actor != "" {
		query += " AND (user_id = ? OR username = ?)"
		args = append(args, f.Actor, f.Actor)
	}
	if f.Action != "" {
		query += " AND action = ?"
		args = append(args, f.Action)
	}
	if f.Resource != "" {
		query += " AND resource = ?"
		args = append(args, f.Resource)
	}
	if f.Status != "" {
		query += " AND status = ?"
		args = append(args, f.Status)
	}
	if f.IP != "" {
		query += " AND ip_address = ?"
		args = append(args, f.IP)
	}
	if f.From != "" {
		query += " AND ts >= ?"
		args = append(args, f.From)
	}
	if f.To != "" {
		query += " AND ts <= ?"
		args = append(args, f.To)
	}
	if f.MinIndex > 0 {
		query += " AND idx >= ?"
		args = append(args, f.MinIndex)
	}
	return query, args
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc scanner) (*audit.Entry, error) {
	var e audit.Entry
	var body, meta string
	err := sc.Scan(
		&e.Index, &e.ID, &e.Timestamp, &e.UserID, &e.Username, &e.Action,
		&e.Resource, &e.ResourceID, &e.Method, &e.Path, &e.Query, &body,
		&e.IPAddress, &e.UserAgent, &e.Status, &e.StatusCode, &e.DurationMs,
		&e.ErrorMessage, &meta, &e.PrevHash, &e.Hash,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning entry row: %w", err)
	}

	if body != "" && body != "null" {
		var parsed any
		if jsonErr := json.Unmarshal([]byte(body), &parsed); jsonErr == nil {
			e.Body = parsed
		}
	}
	if meta != "" && meta != "null" {
		var parsed map[string]any
		if jsonErr := json.Unmarshal([]byte(meta), &parsed); jsonErr == nil {
			e.Metadata = parsed
		}
	}
	return &e, nil
}
