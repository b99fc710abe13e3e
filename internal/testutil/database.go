package testutil

import (
	"testing"

	"zbackup/internal/database"
)

// NewTestHistory creates a new in-memory SQLite history with migrations applied.
// The database is automatically closed when the test completes.
func NewTestHistory(t *testing.T) *database.SQLiteHistory {
	t.Helper()

	h, err := database.NewSQLiteHistory(":memory:")
	if err != nil {
		t.Fatalf("failed to open history: %v", err)
	}

	t.Cleanup(func() {
		h.Close()
	})

	return h
}
