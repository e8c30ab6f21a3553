package store

import (
	"context"
	"fmt"
	"time"

	"github.com/crestline/fieldsync/internal/record"
)

// Sync-log actions. The log is append-only and exists for audit and
// debugging, not for correctness.
const (
	LogSyncStart   = "sync_start"
	LogSyncSuccess = "sync_success"
	LogSyncFailed  = "sync_failed"
)

// LogEntry is one immutable sync-event record.
type LogEntry struct {
	Seq        int64
	Collection record.Collection
	ItemID     string
	Action     string
	Error      string
	CreatedAt  time.Time
}

// AppendLog appends one entry to the sync-event log.
func (s *Store) AppendLog(ctx context.Context, c record.Collection, itemID, action, errMsg string) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO sync_log (collection, item_id, action, error, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		string(c), itemID, action, errMsg, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to append sync log: %w", err)
	}
	return nil
}

// RecentLog returns the newest log entries, most recent first.
func (s *Store) RecentLog(ctx context.Context, limit int) ([]LogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.conn.QueryContext(ctx,
		`SELECT seq, collection, item_id, action, error, created_at
		 FROM sync_log ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync log: %w", err)
	}
	defer rows.Close()

	var entries []LogEntry
	for rows.Next() {
		var e LogEntry
		var collection, createdAt string
		if err := rows.Scan(&e.Seq, &collection, &e.ItemID, &e.Action, &e.Error, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan log entry: %w", err)
		}
		e.Collection = record.Collection(collection)
		e.CreatedAt = parseTime(createdAt)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync log: %w", err)
	}
	return entries, nil
}

// LogForItem returns all log entries referencing one item, oldest first.
func (s *Store) LogForItem(ctx context.Context, itemID string) ([]LogEntry, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT seq, collection, item_id, action, error, created_at
		 FROM sync_log WHERE item_id = ? ORDER BY seq ASC`, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync log for %s: %w", itemID, err)
	}
	defer rows.Close()

	var entries []LogEntry
	for rows.Next() {
		var e LogEntry
		var collection, createdAt string
		if err := rows.Scan(&e.Seq, &collection, &e.ItemID, &e.Action, &e.Error, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan log entry: %w", err)
		}
		e.Collection = record.Collection(collection)
		e.CreatedAt = parseTime(createdAt)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync log: %w", err)
	}
	return entries, nil
}
