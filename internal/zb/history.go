package zb

import (
	"fmt"

	"zbackup/internal/model"
)

// History records runs and the archives each run evicted.
type History interface {
	// StartRun inserts a run in the running state.
	StartRun(run *model.Run) error

	// FinishRun stores the final state of a run started with StartRun.
	FinishRun(run *model.Run) error

	// RecordEviction stores an archive deleted during a run.
	RecordEviction(eviction *model.Eviction) error

	// ListRuns returns the most recent runs, newest first.
	ListRuns(limit int) ([]*model.Run, error)

	// ListEvictions returns the evictions recorded for a run.
	ListEvictions(runID string) ([]*model.Eviction, error)

	// Close closes the underlying store.
	Close() error
}

// GetHistory returns the most recent runs, newest first.
func (s *BackupService) GetHistory(limit int) ([]*model.Run, error) {
	runs, err := s.history.ListRuns(limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}

// GetEvictions returns the archives deleted by a run.
func (s *BackupService) GetEvictions(runID string) ([]*model.Eviction, error) {
	evictions, err := s.history.ListEvictions(runID)
	if err != nil {
		return nil, fmt.Errorf("listing evictions: %w", err)
	}
	return evictions, nil
}
