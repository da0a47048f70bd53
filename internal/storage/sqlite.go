// Package storage persists crawl state: the dedup index that survives
// restarts, extracted page records, and the abandoned-task report.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/masato-kano/spinneret/internal/crawler"
	// SQLite database driver (CGO-free)
	_ "modernc.org/sqlite"
)

// Store is the SQLite-backed persistence layer. It implements both
// crawler.DedupStore and crawler.Sink so one database file carries a whole
// resumable session.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path and initializes the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection prevents SQLite lock conflicts between workers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *Store) initSchema() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA busy_timeout = 30000",
	}
	for _, pragma := range pragmas {
		if _, err := s.db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}

	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// TryClaim atomically marks key as seen, returning true only for the first
// caller. INSERT OR IGNORE makes the row insert the single check-and-set.
func (s *Store) TryClaim(ctx context.Context, key string, depth int) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO dedup (key, state, depth, added_at)
		VALUES (?, 'seen', ?, ?)
	`, key, depth, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to claim key: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read claim result: %w", err)
	}
	return n > 0, nil
}

// MarkFetched transitions key to its terminal fetched state. Idempotent, and
// valid for keys never claimed in this run (replayed sessions).
func (s *Store) MarkFetched(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dedup (key, state, added_at) VALUES (?, 'fetched', ?)
		ON CONFLICT(key) DO UPDATE SET state = 'fetched'
	`, key, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to mark fetched: %w", err)
	}
	return nil
}

// IsFetched reports whether key reached the fetched state.
func (s *Store) IsFetched(ctx context.Context, key string) (bool, error) {
	var state string
	err := s.db.QueryRowContext(ctx, "SELECT state FROM dedup WHERE key = ?", key).Scan(&state)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query key state: %w", err)
	}
	return state == "fetched", nil
}

// PendingTasks returns tasks claimed in an earlier run but never fetched, in
// claim order, so a restarted session can pick up where it stopped. Keys
// recorded as abandoned are finished work, not pending, and stay out.
func (s *Store) PendingTasks() ([]*crawler.Task, error) {
	rows, err := s.db.Query(`
		SELECT key, depth FROM dedup
		WHERE state = 'seen'
		  AND key NOT IN (SELECT key FROM abandoned)
		ORDER BY added_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []*crawler.Task
	for rows.Next() {
		t := &crawler.Task{}
		if err := rows.Scan(&t.Key, &t.Depth); err != nil {
			return nil, fmt.Errorf("failed to scan pending task: %w", err)
		}
		t.URL = t.Key
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// Persist stores page records in one transaction. Re-persisting a URL
// replaces its previous row.
func (s *Store) Persist(ctx context.Context, records []crawler.PageRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO pages (
			url, status_code, title, meta_description, meta_robots,
			canonical_url, content_hash, fetched_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, record := range records {
		if _, err := stmt.ExecContext(ctx,
			record.URL,
			record.StatusCode,
			record.Title,
			record.MetaDesc,
			record.MetaRobots,
			record.CanonicalURL,
			record.ContentHash,
			record.FetchedAt,
		); err != nil {
			return fmt.Errorf("failed to insert record for %s: %w", record.URL, err)
		}
	}

	return tx.Commit()
}

// RecordAbandoned stores one permanently failed task for diagnostics.
func (s *Store) RecordAbandoned(ctx context.Context, t crawler.AbandonedTask) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO abandoned (key, url, error_kind, attempts, occurred_at)
		VALUES (?, ?, ?, ?, ?)
	`, t.Key, t.URL, string(t.Kind), t.Attempts, t.OccurredAt)
	if err != nil {
		return fmt.Errorf("failed to record abandoned task: %w", err)
	}
	return nil
}

// Abandoned returns all recorded abandoned tasks, newest first.
func (s *Store) Abandoned() ([]crawler.AbandonedTask, error) {
	rows, err := s.db.Query(`
		SELECT key, url, error_kind, attempts, occurred_at
		FROM abandoned ORDER BY occurred_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query abandoned tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []crawler.AbandonedTask
	for rows.Next() {
		var t crawler.AbandonedTask
		var kind string
		if err := rows.Scan(&t.Key, &t.URL, &kind, &t.Attempts, &t.OccurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan abandoned task: %w", err)
		}
		t.Kind = crawler.ErrorKind(kind)
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// GetMeta retrieves a session metadata value, empty when unset.
func (s *Store) GetMeta(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM crawl_meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get meta: %w", err)
	}
	return value, nil
}

// SetMeta stores a session metadata value.
func (s *Store) SetMeta(key, value string) error {
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO crawl_meta (key, value) VALUES (?, ?)", key, value)
	if err != nil {
		return fmt.Errorf("failed to set meta: %w", err)
	}
	return nil
}
