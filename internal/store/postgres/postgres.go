// Package postgres persists chain entries in PostgreSQL for deployments
// where several services share one trail.
//
// The same immutability posture as the embedded backends: BEFORE UPDATE and
// BEFORE DELETE triggers raise, and the index column is the primary key so a
// second writer racing on the same position fails its insert. Timestamps are
// stored as text because the canonical encoding must round-trip exactly for
// hashes to recompute.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chainlog/chainlog/internal/audit"
)

const columns = `idx, id, ts, user_id, username, action, resource, resource_id,
	method, path, query, body, ip_address, user_agent, status, status_code,
	duration_ms, error, metadata, prev_hash, hash`

// Store implements audit.Store on a PostgreSQL pool.
type Store struct {
	pool *pgxpool.Pool
}

var _ audit.Store = (*Store)(nil)

// New connects to the database, verifies the connection, and installs the
// schema and immutability triggers.
func New(ctx context.Context, dsn string, maxConns int32) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: parse config: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres.New: ping: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS audit_entries (
			idx         BIGINT PRIMARY KEY,
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
			body        JSONB,
			ip_address  TEXT NOT NULL DEFAULT '',
			user_agent  TEXT NOT NULL DEFAULT '',
			status      TEXT NOT NULL DEFAULT '',
			status_code INTEGER NOT NULL DEFAULT 0,
			duration_ms BIGINT NOT NULL DEFAULT 0,
			error       TEXT NOT NULL DEFAULT '',
			metadata    JSONB,
			prev_hash   TEXT NOT NULL DEFAULT '',
			hash        TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_user ON audit_entries(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_action ON audit_entries(action)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_ts ON audit_entries(ts)`,
		`CREATE OR REPLACE FUNCTION audit_entries_immutable() RETURNS trigger AS $$
		 BEGIN
			RAISE EXCEPTION 'audit entries are immutable';
		 END;
		 $$ LANGUAGE plpgsql`,
		`DROP TRIGGER IF EXISTS audit_entries_no_update ON audit_entries`,
		`CREATE TRIGGER audit_entries_no_update BEFORE UPDATE ON audit_entries
		 FOR EACH ROW EXECUTE FUNCTION audit_entries_immutable()`,
		`DROP TRIGGER IF EXISTS audit_entries_no_delete ON audit_entries`,
		`CREATE TRIGGER audit_entries_no_delete BEFORE DELETE ON audit_entries
		 FOR EACH ROW EXECUTE FUNCTION audit_entries_immutable()`,
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres.ensureSchema: %w", err)
		}
	}
	return nil
}

// Write inserts one committed entry.
func (s *Store) Write(ctx context.Context, e *audit.Entry) error {
	body, err := json.Marshal(e.Body)
	if err != nil {
		return fmt.Errorf("postgres.Write: marshal body: %w", err)
	}
	meta, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("postgres.Write: marshal metadata: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO audit_entries (`+columns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		         $15, $16, $17, $18, $19, $20, $21)`,
		e.Index, e.ID, e.Timestamp, e.UserID, e.Username, e.Action,
		e.Resource, e.ResourceID, e.Method, e.Path, e.Query, body,
		e.IPAddress, e.UserAgent, e.Status, e.StatusCode, e.DurationMs,
		e.ErrorMessage, meta, e.PrevHash, e.Hash,
	)
	if err != nil {
		return fmt.Errorf("postgres.Write: %w", err)
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
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres.Read: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows, "postgres.Read")
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
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres.Count: %w", err)
	}
	return n, nil
}

// Last returns the highest-index entry, or nil for an empty store.
func (s *Store) Last(ctx context.Context) (*audit.Entry, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+columns+" FROM audit_entries ORDER BY idx DESC LIMIT 1")
	if err != nil {
		return nil, fmt.Errorf("postgres.Last: %w", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows, "postgres.Last")
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func buildWhere(f audit.Filter) (string, []any) {
	var query string
	var args []any

	if f.Actor != "" {
		args = append(args, f.Actor)
		query += fmt.Sprintf(" AND (user_id = $%d OR username = $%d)", len(args), len(args))
	}
	if f.Action != "" {
		args = append(args, f.Action)
		query += fmt.Sprintf(" AND action = $%d", len(args))
	}
	if f.Resource != "" {
		args = append(args, f.Resource)
		query += fmt.Sprintf(" AND resource = $%d", len(args))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.IP != "" {
		args = append(args, f.IP)
		query += fmt.Sprintf(" AND ip_address = $%d", len(args))
	}
	if f.From != "" {
		args = append(args, f.From)
		query += fmt.Sprintf(" AND ts >= $%d", len(args))
	}
	if f.To != "" {
		args = append(args, f.To)
		query += fmt.Sprintf(" AND ts <= $%d", len(args))
	}
	if f.MinIndex > 0 {
		args = append(args, f.MinIndex)
		query += fmt.Sprintf(" AND idx >= $%d", len(args))
	}
	return query, args
}

func scanEntries(rows pgx.Rows, caller string) ([]audit.Entry, error) {
	var entries []audit.Entry
	for rows.Next() {
		var e audit.Entry
		var body, meta []byte

		if err := rows.Scan(
			&e.Index, &e.ID, &e.Timestamp, &e.UserID, &e.Username, &e.Action,
			&e.Resource, &e.ResourceID, &e.Method, &e.Path, &e.Query, &body,
			&e.IPAddress, &e.UserAgent, &e.Status, &e.StatusCode,
			&e.DurationMs, &e.ErrorMessage, &meta, &e.PrevHash, &e.Hash,
		); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", caller, err)
		}
		if len(body) > 0 && string(body) != "null" {
			if err := json.Unmarshal(body, &e.Body); err != nil {
				return nil, fmt.Errorf("%s: unmarshal body: %w", caller, err)
			}
		}
		if len(meta) > 0 && string(meta) != "null" {
			if err := json.Unmarshal(meta, &e.Metadata); err != nil {
				return nil, fmt.Errorf("%s: unmarshal metadata: %w", caller, err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", caller, err)
	}
	return entries, nil
}
