package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"zbackup/internal/database/migrations"
	"zbackup/internal/model"
	"zbackup/internal/zb"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteHistory implements zb.History using SQLite.
type SQLiteHistory struct {
	db   *sql.DB
	path string
}

// NewSQLiteHistory opens the database at path, migrating the schema to the
// latest version. path can be a file path or ":memory:".
func NewSQLiteHistory(path string) (*SQLiteHistory, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	if err := migrations.Up(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating history database: %w", err)
	}
	if err := migrations.CheckStatus(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("history schema out of date: %w", err)
	}

	return &SQLiteHistory{db: db, path: path}, nil
}

// OpenConnection opens and configures a SQLite database connection with appropriate PRAGMAs.
// path can be a file path or ":memory:" for in-memory database.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every connection to ":memory:" is a separate database.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

func (s *SQLiteHistory) StartRun(run *model.Run) error {
	_, err := s.db.ExecContext(context.Background(),
		`INSERT INTO runs (id, operation, started_at, status) VALUES (?, ?, ?, ?)`,
		run.ID, run.Operation, run.StartedAt.UTC(), run.Status)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}
	return nil
}

func (s *SQLiteHistory) FinishRun(run *model.Run) error {
	var finished sql.NullTime
	if run.FinishedAt != nil {
		finished = sql.NullTime{Time: run.FinishedAt.UTC(), Valid: true}
	}

	res, err := s.db.ExecContext(context.Background(),
		`UPDATE runs SET finished_at = ?, status = ?, archive = ?, archive_size = ?, error = ? WHERE id = ?`,
		finished, run.Status, run.Archive, run.ArchiveSize, run.Error, run.ID)
	if err != nil {
		return fmt.Errorf("updating run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run not found: %s", run.ID)
	}
	return nil
}

func (s *SQLiteHistory) RecordEviction(ev *model.Eviction) error {
	_, err := s.db.ExecContext(context.Background(),
		`INSERT INTO evictions (run_id, archive, phase, size, deleted_at) VALUES (?, ?, ?, ?, ?)`,
		ev.RunID, ev.Archive, ev.Phase, ev.Size, ev.DeletedAt.UTC())
	if err != nil {
		return fmt.Errorf("inserting eviction: %w", err)
	}
	return nil
}

func (s *SQLiteHistory) ListRuns(limit int) ([]*model.Run, error) {
	rows, err := s.db.QueryContext(context.Background(),
		`SELECT id, operation, started_at, finished_at, status, archive, archive_size, error
		 FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []*model.Run
	for rows.Next() {
		var (
			run      model.Run
			started  time.Time
			finished sql.NullTime
		)
		if err := rows.Scan(&run.ID, &run.Operation, &started, &finished, &run.Status, &run.Archive, &run.ArchiveSize, &run.Error); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		run.StartedAt = started.Local()
		if finished.Valid {
			t := finished.Time.Local()
			run.FinishedAt = &t
		}
		runs = append(runs, &run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}

func (s *SQLiteHistory) ListEvictions(runID string) ([]*model.Eviction, error) {
	rows, err := s.db.QueryContext(context.Background(),
		`SELECT run_id, archive, phase, size, deleted_at FROM evictions WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("listing evictions: %w", err)
	}
	defer rows.Close()

	var evictions []*model.Eviction
	for rows.Next() {
		var ev model.Eviction
		if err := rows.Scan(&ev.RunID, &ev.Archive, &ev.Phase, &ev.Size, &ev.DeletedAt); err != nil {
			return nil, fmt.Errorf("scanning eviction: %w", err)
		}
		ev.DeletedAt = ev.DeletedAt.Local()
		evictions = append(evictions, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing evictions: %w", err)
	}
	return evictions, nil
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteHistory) Path() string {
	return s.path
}

// Close closes the database connection.
func (s *SQLiteHistory) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Compile-time check that SQLiteHistory implements zb.History interface
var _ zb.History = (*SQLiteHistory)(nil)
