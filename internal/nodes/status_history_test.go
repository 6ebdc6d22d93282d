package nodes

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// setupHistoryTestDB creates an in-memory SQLite database with the node_status_history table.
func setupHistoryTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)

	schema := `
		CREATE TABLE node_status_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			node_id TEXT NOT NULL,
			value INTEGER NOT NULL,
			source TEXT NOT NULL DEFAULT 'snapshot',
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;
		CREATE INDEX idx_node_status_history_node ON node_status_history(node_id, created_at DESC);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func insertHistoryRow(t *testing.T, db *sql.DB, nodeID string, value int, source string, createdAt time.Time) {
	t.Helper()

	_, err := db.Exec(
		"INSERT INTO node_status_history (node_id, value, source, created_at) VALUES (?, ?, ?, ?)",
		nodeID, value, source, createdAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		t.Fatalf("failed to insert history row: %v", err)
	}
}

func TestRecordStatusChange(t *testing.T) {
	db := setupHistoryTestDB(t)
	repo := NewSQLiteStatusHistoryRepository(db)
	ctx := context.Background()

	if err := repo.RecordStatusChange(ctx, "14 A7 3B 1", 255, SourceEvent); err != nil {
		t.Fatalf("RecordStatusChange() error = %v", err)
	}
	if err := repo.RecordStatusChange(ctx, "14 A7 3B 1", 0, ""); err != nil {
		t.Fatalf("RecordStatusChange() error = %v", err)
	}

	entries, err := repo.GetHistory(ctx, "14 A7 3B 1", 10)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries length = %d, want 2", len(entries))
	}

	// Same second, so the id breaks the tie.
	if entries[0].Value != 0 || entries[0].Source != SourceSnapshot {
		t.Errorf("entry[0] = %+v, want value 0 from snapshot", entries[0])
	}
	if entries[1].Value != 255 || entries[1].Source != SourceEvent {
		t.Errorf("entry[1] = %+v, want value 255 from event", entries[1])
	}
	if entries[0].CreatedAt.IsZero() {
		t.Error("CreatedAt is zero, want non-zero")
	}
}

func TestRecordStatusChange_RequiresID(t *testing.T) {
	repo := NewSQLiteStatusHistoryRepository(setupHistoryTestDB(t))

	if err := repo.RecordStatusChange(context.Background(), "", 1, SourceEvent); err == nil {
		t.Error("RecordStatusChange() with empty id should fail")
	}
	if _, err := repo.GetHistory(context.Background(), "", 1); err == nil {
		t.Error("GetHistory() with empty id should fail")
	}
}

func TestGetHistory_OrderAndLimit(t *testing.T) {
	db := setupHistoryTestDB(t)
	repo := NewSQLiteStatusHistoryRepository(db)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	insertHistoryRow(t, db, "n1", 1, SourceSnapshot, now.Add(-2*time.Hour))
	insertHistoryRow(t, db, "n1", 2, SourceEvent, now.Add(-1*time.Hour))
	insertHistoryRow(t, db, "n1", 3, SourceEvent, now)
	insertHistoryRow(t, db, "n2", 9, SourceEvent, now)

	entries, err := repo.GetHistory(ctx, "n1", 2)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries length = %d, want 2", len(entries))
	}
	if entries[0].Value != 3 || !entries[0].CreatedAt.Equal(now) {
		t.Errorf("entry[0] = %+v, want value 3 at %s", entries[0], now)
	}
	if entries[1].Value != 2 {
		t.Errorf("entry[1] value = %d, want 2", entries[1].Value)
	}

	all, err := repo.GetHistory(ctx, "n1", 0)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(all) != 3 {
		t.Errorf("default limit returned %d entries, want 3", len(all))
	}
}

func TestPruneHistory(t *testing.T) {
	db := setupHistoryTestDB(t)
	repo := NewSQLiteStatusHistoryRepository(db)
	ctx := context.Background()

	now := time.Now().UTC()
	insertHistoryRow(t, db, "n1", 1, SourceSnapshot, now.Add(-48*time.Hour))
	insertHistoryRow(t, db, "n1", 2, SourceSnapshot, now.Add(-30*time.Hour))
	insertHistoryRow(t, db, "n1", 3, SourceEvent, now.Add(-1*time.Hour))

	removed, err := repo.PruneHistory(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("PruneHistory() error = %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}

	if _, err := repo.PruneHistory(ctx, 0); err == nil {
		t.Error("PruneHistory(0) should fail")
	}
}
