package migrations

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

var exampleMigrations = []Migration{
	{
		Version:     1,
		Description: "Add example table",
		Up:          `CREATE TABLE example (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`,
		Down:        `DROP TABLE example`,
	},
	{
		Version:     2,
		Description: "Add example index",
		Up:          `CREATE INDEX idx_example_name ON example(name)`,
		Down:        `DROP INDEX idx_example_name`,
	},
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", "file:"+filepath.Join(t.TempDir(), "migrations.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestApplyAndRollback(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	// Registered out of order on purpose
	manager := NewManager(exampleMigrations[1], exampleMigrations[0])
	if err := manager.Apply(ctx, db); err != nil {
		t.Fatalf("failed to apply migrations: %v", err)
	}

	version, err := CurrentVersion(ctx, db)
	if err != nil {
		t.Fatalf("CurrentVersion failed: %v", err)
	}
	if version != 2 {
		t.Errorf("expected version 2, got %d", version)
	}
	if manager.Latest() != 2 {
		t.Errorf("expected latest 2, got %d", manager.Latest())
	}

	// Re-applying is a no-op
	if err := manager.Apply(ctx, db); err != nil {
		t.Fatalf("second apply failed: %v", err)
	}

	if err := manager.Rollback(ctx, db); err != nil {
		t.Fatalf("rollback failed: %v", err)
	}
	version, _ = CurrentVersion(ctx, db)
	if version != 1 {
		t.Errorf("expected version 1 after rollback, got %d", version)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name='idx_example_name'").Scan(&count); err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if count != 0 {
		t.Error("index should have been dropped by rollback")
	}
}

func TestRollbackFreshDatabase(t *testing.T) {
	db := openTestDB(t)
	if err := NewManager(exampleMigrations...).Rollback(context.Background(), db); err == nil {
		t.Error("expected error rolling back a fresh database")
	}
}

func TestValidateDuplicateVersions(t *testing.T) {
	manager := NewManager(exampleMigrations[0], exampleMigrations[0])
	if err := manager.Validate(); err == nil {
		t.Error("expected duplicate version error")
	}
	if err := manager.Apply(context.Background(), openTestDB(t)); err == nil {
		t.Error("expected Apply to reject duplicate versions")
	}
}
