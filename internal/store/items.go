package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/crestline/fieldsync/internal/record"
)

// ErrNotFound is returned when a requested item or blob does not exist.
var ErrNotFound = sql.ErrNoRows

// Put inserts or overwrites an item by id, together with its blobs, in a
// single transaction. A crash mid-write never leaves a half-written record.
func (s *Store) Put(ctx context.Context, it *record.Item, blobs map[string][]byte) error {
	if err := it.Validate(); err != nil {
		return fmt.Errorf("invalid item: %w", err)
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
	INSERT INTO queue_items (
		id, collection, status, retry_count, group_key, last_error,
		created_at, payload
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		collection = excluded.collection,
		status = excluded.status,
		retry_count = excluded.retry_count,
		group_key = excluded.group_key,
		last_error = excluded.last_error,
		payload = excluded.payload
	`

	_, err = tx.ExecContext(ctx, query,
		it.ID,
		string(it.Collection),
		string(it.Status),
		it.RetryCount,
		it.GroupKey,
		it.LastError,
		formatTime(it.CreatedAt),
		string(it.Payload),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert item %s: %w", it.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM blobs WHERE item_id = ?`, it.ID); err != nil {
		return fmt.Errorf("failed to replace blobs for %s: %w", it.ID, err)
	}
	for name, data := range blobs {
		if len(data) == 0 {
			continue
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO blobs (item_id, name, data) VALUES (?, ?, ?)`,
			it.ID, name, data)
		if err != nil {
			return fmt.Errorf("failed to write blob %s/%s: %w", it.ID, name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit item %s: %w", it.ID, err)
	}
	return nil
}

const itemColumns = `id, collection, status, retry_count, group_key, last_error, created_at, payload`

// Get retrieves a single item by id. Returns ErrNotFound if it doesn't exist.
func (s *Store) Get(ctx context.Context, c record.Collection, id string) (*record.Item, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM queue_items WHERE collection = ? AND id = ?`,
		string(c), id)
	return scanItem(row)
}

// GetByStatus returns the items of a collection with the given status, in
// insertion order.
func (s *Store) GetByStatus(ctx context.Context, c record.Collection, status record.Status) ([]*record.Item, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM queue_items
		 WHERE collection = ? AND status = ?
		 ORDER BY created_at ASC, rowid ASC`,
		string(c), string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s by status %s: %w", c, status, err)
	}
	defer rows.Close()

	return scanItems(rows)
}

// GetByGroupKey returns the items of a collection sharing a grouping key
// (typically a property id), in insertion order. Used to show per-property
// capture history.
func (s *Store) GetByGroupKey(ctx context.Context, c record.Collection, key string) ([]*record.Item, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM queue_items
		 WHERE collection = ? AND group_key = ?
		 ORDER BY created_at ASC, rowid ASC`,
		string(c), key)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s by group %s: %w", c, key, err)
	}
	defer rows.Close()

	return scanItems(rows)
}

// FetchWorklist returns the items of a collection eligible for the next sync
// pass, in insertion order: everything pending, plus failed items still
// under the retry bound. Quarantined items (failed with retry_count at or
// past the bound) are never selected.
func (s *Store) FetchWorklist(ctx context.Context, c record.Collection, maxRetries int) ([]*record.Item, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM queue_items
		 WHERE collection = ?
		   AND (status = 'pending' OR (status = 'failed' AND retry_count < ?))
		 ORDER BY created_at ASC, rowid ASC`,
		string(c), maxRetries)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s worklist: %w", c, err)
	}
	defer rows.Close()

	return scanItems(rows)
}

// MarkSyncing moves an item to status syncing at the start of a submission
// attempt.
func (s *Store) MarkSyncing(ctx context.Context, id string) error {
	_, err := s.conn.ExecContext(ctx,
		`UPDATE queue_items SET status = 'syncing' WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to mark %s syncing: %w", id, err)
	}
	return nil
}

// MarkFailed moves an item to status failed, increments its retry counter,
// and records the error message from the attempt.
func (s *Store) MarkFailed(ctx context.Context, id, errMsg string) error {
	_, err := s.conn.ExecContext(ctx,
		`UPDATE queue_items
		 SET status = 'failed', retry_count = retry_count + 1, last_error = ?
		 WHERE id = ?`,
		errMsg, id)
	if err != nil {
		return fmt.Errorf("failed to mark %s failed: %w", id, err)
	}
	return nil
}

// Delete removes an item and its blobs. Called only after the remote write
// was confirmed. Returns nil if the item doesn't exist (idempotent).
func (s *Store) Delete(ctx context.Context, c record.Collection, id string) error {
	_, err := s.conn.ExecContext(ctx,
		`DELETE FROM queue_items WHERE collection = ? AND id = ?`,
		string(c), id)
	if err != nil {
		return fmt.Errorf("failed to delete item %s: %w", id, err)
	}
	return nil
}

// GetBlob returns one binary payload of an item. Returns ErrNotFound if the
// blob doesn't exist.
func (s *Store) GetBlob(ctx context.Context, itemID, name string) ([]byte, error) {
	var data []byte
	err := s.conn.QueryRowContext(ctx,
		`SELECT data FROM blobs WHERE item_id = ? AND name = ?`,
		itemID, name).Scan(&data)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// PendingCounts returns the number of pending items per collection.
// Collections with nothing pending are omitted.
func (s *Store) PendingCounts(ctx context.Context) (map[record.Collection]int, error) {
	return s.countByCollection(ctx,
		`SELECT collection, COUNT(*) FROM queue_items
		 WHERE status = 'pending' GROUP BY collection`)
}

// QuarantinedCounts returns the number of retry-exhausted items per
// collection. These need operator intervention before they will ever sync.
func (s *Store) QuarantinedCounts(ctx context.Context, maxRetries int) (map[record.Collection]int, error) {
	return s.countByCollection(ctx,
		`SELECT collection, COUNT(*) FROM queue_items
		 WHERE status = 'failed' AND retry_count >= ?
		 GROUP BY collection`, maxRetries)
}

func (s *Store) countByCollection(ctx context.Context, query string, args ...any) (map[record.Collection]int, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count items: %w", err)
	}
	defer rows.Close()

	counts := make(map[record.Collection]int)
	for rows.Next() {
		var c string
		var n int
		if err := rows.Scan(&c, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[record.Collection(c)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating counts: %w", err)
	}
	return counts, nil
}

// ClearSynced removes any residual rows carrying a synced status. Successful
// submissions delete their rows immediately, so this only matters for data
// written by older app versions that retained synced records.
func (s *Store) ClearSynced(ctx context.Context) (int64, error) {
	res, err := s.conn.ExecContext(ctx,
		`DELETE FROM queue_items WHERE status = 'synced'`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear synced items: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ClearAll wipes every queued item, all blobs, and the sync log.
func (s *Store) ClearAll(ctx context.Context) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM blobs`,
		`DELETE FROM queue_items`,
		`DELETE FROM sync_log`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to clear store: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit clear: %w", err)
	}
	return nil
}

func scanItem(row *sql.Row) (*record.Item, error) {
	var it record.Item
	var collection, status, createdAt, payload string

	err := row.Scan(&it.ID, &collection, &status, &it.RetryCount,
		&it.GroupKey, &it.LastError, &createdAt, &payload)
	if err != nil {
		return nil, err
	}

	it.Collection = record.Collection(collection)
	it.Status = record.Status(status)
	it.CreatedAt = parseTime(createdAt)
	it.Payload = []byte(payload)
	return &it, nil
}

func scanItems(rows *sql.Rows) ([]*record.Item, error) {
	var items []*record.Item

	for rows.Next() {
		var it record.Item
		var collection, status, createdAt, payload string

		err := rows.Scan(&it.ID, &collection, &status, &it.RetryCount,
			&it.GroupKey, &it.LastError, &createdAt, &payload)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}

		it.Collection = record.Collection(collection)
		it.Status = record.Status(status)
		it.CreatedAt = parseTime(createdAt)
		it.Payload = []byte(payload)
		items = append(items, &it)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating items: %w", err)
	}
	return items, nil
}
