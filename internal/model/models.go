package model

import "time"

// Run statuses.
const (
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusNothing = "nothing" // nothing to back up
	RunStatusFailed  = "failed"
)

// Run operations.
const (
	OperationBackup = "backup"
	OperationPrune  = "prune"
)

// Run represents one invocation of a backup or prune.
type Run struct {
	ID          string // UUID
	Operation   string
	StartedAt   time.Time
	FinishedAt  *time.Time // nil while running
	Status      string
	Archive     string // name of the archive written, empty if none
	ArchiveSize int64
	Error       string
}

// Eviction represents an archive deleted by a run.
type Eviction struct {
	RunID     string // Foreign key to Run
	Archive   string // Archive name
	Phase     string // expire | cap | reclaim
	Size      int64
	DeletedAt time.Time
}
