package nodes

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// SQLiteStatusHistoryRepository implements StatusHistoryRepository using SQLite.
//
// Rows live in the node_status_history table created by the migrations.
type SQLiteStatusHistoryRepository struct {
	db *sql.DB
}

// NewSQLiteStatusHistoryRepository creates a repository on an open connection.
func NewSQLiteStatusHistoryRepository(db *sql.DB) *SQLiteStatusHistoryRepository {
	return &SQLiteStatusHistoryRepository{db: db}
}

// RecordStatusChange inserts a history row for a node.
// An empty source defaults to SourceSnapshot.
func (r *SQLiteStatusHistoryRepository) RecordStatusChange(ctx context.Context, nodeID string, value int, source string) error {
	if nodeID == "" {
		return fmt.Errorf("node id is required")
	}
	if source == "" {
		source = SourceSnapshot
	}

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO node_status_history (node_id, value, source) VALUES (?, ?, ?)",
		nodeID,
		value,
		source,
	)
	if err != nil {
		return fmt.Errorf("inserting status history: %w", err)
	}

	return nil
}

// GetHistory returns recent history entries for a node, newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - nodeID: Controller address of the node
//   - limit: Maximum entries to return (default 50, max 200)
//
// Returns:
//   - []StatusHistoryEntry: History entries ordered by created_at DESC
//   - error: nil on success, otherwise the underlying query error
func (r *SQLiteStatusHistoryRepository) GetHistory(ctx context.Context, nodeID string, limit int) ([]StatusHistoryEntry, error) {
	if nodeID == "" {
		return nil, fmt.Errorf("node id is required")
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, node_id, value, source, created_at
		 FROM node_status_history
		 WHERE node_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		nodeID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying status history: %w", err)
	}
	defer rows.Close()

	entries := make([]StatusHistoryEntry, 0, limit)
	for rows.Next() {
		var entry StatusHistoryEntry
		var createdAt string

		if err := rows.Scan(&entry.ID, &entry.NodeID, &entry.Value, &entry.Source, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning status history: %w", err)
		}

		timestamp, err := parseHistoryTimestamp(createdAt)
		if err != nil {
			return nil, err
		}
		entry.CreatedAt = timestamp

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating status history: %w", err)
	}

	return entries, nil
}

// PruneHistory deletes entries older than olderThan and returns the count removed.
func (r *SQLiteStatusHistoryRepository) PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM node_status_history WHERE created_at < ?",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting status history: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}

	return rowsAffected, nil
}

// parseHistoryTimestamp parses a timestamp stored in SQLite.
func parseHistoryTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("created_at is empty")
	}

	timestamp, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return timestamp, nil
}
