// Package store provides the durable local queue database for fieldsync.
//
// The store is an embedded SQLite database (ncruces/go-sqlite3) holding all
// queued capture collections, their binary blobs, and an append-only
// sync-event log. It runs in WAL mode so status reads stay concurrent with
// the scheduler's writes.
//
// Layout:
//   - queue_items: one row per queued record (envelope + JSON payload)
//   - blobs:       photo/audio bytes, keyed by (item_id, name), cascade-deleted
//   - sync_log:    append-only audit trail of sync attempts
//
// Opening the store runs the crash-recovery sweep: any item left at status
// syncing by an abnormal termination is reset to pending before the first
// sync pass can run.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Store wraps the SQLite connection holding the offline queue.
type Store struct {
	conn *sql.DB
	path string
}

// Open creates or opens the queue database at the specified path.
//
// The parent directory is created if needed, the schema is initialized
// idempotently, and stale syncing items are swept back to pending. The
// caller must Close the store when done.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping store: %w", err)
	}

	s := &Store{
		conn: conn,
		path: path,
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := s.conn.Exec(pragma); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if err := s.initSchema(context.Background()); err != nil {
		_ = s.Close()
		return nil, err
	}

	// Crash recovery: an item stuck at syncing would otherwise never be
	// selected again.
	if _, err := s.RecoverStale(context.Background()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to recover stale items: %w", err)
	}

	return s, nil
}

// Close checkpoints the WAL and closes the database connection.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}

	s.conn = nil
	return nil
}

// initSchema creates all tables and indexes if they don't exist.
func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS queue_items (
		id TEXT PRIMARY KEY,
		collection TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		retry_count INTEGER NOT NULL DEFAULT 0,
		group_key TEXT NOT NULL DEFAULT '',
		last_error TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		payload TEXT NOT NULL
	);

	-- Binary payloads are held out of the indexed row so large photo and
	-- audio captures don't bloat status scans.
	CREATE TABLE IF NOT EXISTS blobs (
		item_id TEXT NOT NULL,
		name TEXT NOT NULL,
		data BLOB NOT NULL,
		PRIMARY KEY (item_id, name),
		FOREIGN KEY (item_id) REFERENCES queue_items(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS sync_log (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		collection TEXT NOT NULL,
		item_id TEXT NOT NULL,
		action TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_items_status
	    ON queue_items(collection, status);
	CREATE INDEX IF NOT EXISTS idx_items_group
	    ON queue_items(collection, group_key);
	CREATE INDEX IF NOT EXISTS idx_items_worklist
	    ON queue_items(collection, status, retry_count, created_at);
	CREATE INDEX IF NOT EXISTS idx_log_item
	    ON sync_log(item_id);
	`

	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// RecoverStale resets items stuck at status syncing back to pending and
// returns how many were swept. It runs automatically on Open; calling it
// while a sync pass is in flight would re-queue in-flight items.
func (s *Store) RecoverStale(ctx context.Context) (int64, error) {
	res, err := s.conn.ExecContext(ctx,
		`UPDATE queue_items SET status = 'pending' WHERE status = 'syncing'`)
	if err != nil {
		return 0, fmt.Errorf("failed to reset stale items: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count recovered items: %w", err)
	}
	return n, nil
}

// Usage returns the number of bytes the store occupies on disk, including
// the WAL file.
func (s *Store) Usage() (int64, error) {
	var used int64
	for _, p := range []string{s.path, s.path + "-wal"} {
		info, err := os.Stat(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return 0, fmt.Errorf("failed to stat %s: %w", p, err)
		}
		used += info.Size()
	}
	return used, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
