package migrations

import (
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func TestUp_FreshDatabase(t *testing.T) {
	db := openTestDB(t)

	if err := Up(db); err != nil {
		t.Fatalf("Up() error = %v", err)
	}

	for _, table := range []string{"runs", "evictions", "schema_migrations"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s was not created: %v", table, err)
		}
	}
}

func TestCheckStatus(t *testing.T) {
	t.Run("fresh database needs migration", func(t *testing.T) {
		db := openTestDB(t)
		if err := CheckStatus(db); !errors.Is(err, ErrNoSchema) {
			t.Errorf("CheckStatus() error = %v, want ErrNoSchema", err)
		}
	})

	t.Run("up to date after migration", func(t *testing.T) {
		db := openTestDB(t)
		if err := Up(db); err != nil {
			t.Fatalf("Up() error = %v", err)
		}
		if err := CheckStatus(db); err != nil {
			t.Errorf("CheckStatus() error = %v", err)
		}
	})
}

func TestUp_Idempotent(t *testing.T) {
	db := openTestDB(t)

	if err := Up(db); err != nil {
		t.Fatalf("first Up() error = %v", err)
	}
	if err := Up(db); err != nil {
		t.Errorf("second Up() error = %v (should be idempotent)", err)
	}
	if err := CheckStatus(db); err != nil {
		t.Errorf("CheckStatus() after double migration error = %v", err)
	}
}

func TestLatestVersion(t *testing.T) {
	v, err := LatestVersion()
	if err != nil {
		t.Fatalf("LatestVersion() error = %v", err)
	}
	if v != 2 {
		t.Errorf("LatestVersion() = %d, want 2", v)
	}
}

func TestSchema_EvictionRequiresRun(t *testing.T) {
	db := openTestDB(t)
	if err := Up(db); err != nil {
		t.Fatalf("Up() error = %v", err)
	}

	_, err := db.Exec(`
		INSERT INTO evictions (run_id, archive, phase, size, deleted_at)
		VALUES ('missing-run', 'a.zstd', 'expire', 1, datetime('now'))
	`)
	if err == nil {
		t.Error("expected foreign key constraint violation, but insert succeeded")
	}
}

func TestSchema_EvictionPhaseChecked(t *testing.T) {
	db := openTestDB(t)
	if err := Up(db); err != nil {
		t.Fatalf("Up() error = %v", err)
	}

	if _, err := db.Exec(`INSERT INTO runs (id, operation, started_at, status) VALUES ('r1', 'backup', datetime('now'), 'running')`); err != nil {
		t.Fatalf("inserting run: %v", err)
	}
	_, err := db.Exec(`
		INSERT INTO evictions (run_id, archive, phase, size, deleted_at)
		VALUES ('r1', 'a.zstd', 'shred', 1, datetime('now'))
	`)
	if err == nil {
		t.Error("expected check constraint violation for unknown phase")
	}
}

// openTestDB opens an in-memory SQLite database with foreign keys enforced.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("failed to enable foreign keys: %v", err)
	}
	return db
}
