package zb

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"time"

	"zbackup/internal/model"
)

// BackupResult describes the outcome of a backup run.
type BackupResult struct {
	RunID       string
	Profile     *Profile
	Report      *EvictionReport
	Archive     *Archive // nil unless an archive was written
	ArchiveSize int64
	UploadErr   error
}

// ServiceOption configures a BackupService.
type ServiceOption func(*BackupService)

// WithUploader copies every written archive with u.
func WithUploader(u Uploader) ServiceOption {
	return func(s *BackupService) {
		s.uploader = u
	}
}

// WithEngineOptions passes options to every eviction engine the service creates.
func WithEngineOptions(opts ...EngineOption) ServiceOption {
	return func(s *BackupService) {
		s.engineOpts = append(s.engineOpts, opts...)
	}
}

// BackupService is the orchestration layer: it builds the profile, runs the
// eviction engine, writes the archive and records the run.
type BackupService struct {
	catalog    Catalog
	space      SpaceOracle
	writer     ArchiveWriter
	fsmgr      FilesystemManager
	history    History
	uploader   Uploader
	logger     Logger
	clock      Clock
	idgen      IDGenerator
	engineOpts []EngineOption
}

// NewBackupService creates a new BackupService with the provided dependencies.
func NewBackupService(catalog Catalog, space SpaceOracle, writer ArchiveWriter, fsmgr FilesystemManager, history History, logger Logger, clock Clock, idgen IDGenerator, opts ...ServiceOption) *BackupService {
	s := &BackupService{
		catalog: catalog,
		space:   space,
		writer:  writer,
		fsmgr:   fsmgr,
		history: history,
		logger:  logger,
		clock:   clock,
		idgen:   idgen,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Backup runs a full backup: profile, eviction, archive write and optional
// upload. ErrNothingToBackup is returned, with a result, when the selection
// holds no data.
func (s *BackupService) Backup(ctx context.Context, sel Selection, policy RetentionPolicy) (*BackupResult, error) {
	now := s.clock.Now()
	run := &model.Run{
		ID:        s.idgen.New(),
		Operation: model.OperationBackup,
		StartedAt: now,
		Status:    model.RunStatusRunning,
	}
	if err := s.history.StartRun(run); err != nil {
		return nil, fmt.Errorf("recording run start: %w", err)
	}
	result := &BackupResult{RunID: run.ID}

	err := s.backup(ctx, sel, policy, now, run, result)
	s.finish(run, err)
	return result, err
}

func (s *BackupService) backup(ctx context.Context, sel Selection, policy RetentionPolicy, now time.Time, run *model.Run, result *BackupResult) error {
	profile, err := s.BuildProfile(sel, now)
	if err != nil {
		return err
	}
	result.Profile = profile

	if profile.TotalSize == 0 {
		s.logger.Info("nothing to back up")
		return ErrNothingToBackup
	}

	pending := NewPendingWrite(profile.TotalSize)
	s.logger.Info("pending write", "estimated_size", pending.EstimatedSize, "policy", policy.String())

	engine := NewEvictionEngine(s.catalog, s.space, policy, s.logger, now, s.engineOpts...)
	report, err := engine.Run(ctx, profile.Destination.String(), pending)
	result.Report = report
	s.recordEvictions(run.ID, report)
	if err != nil {
		return err
	}

	target := filepath.Join(profile.Destination.String(), profile.ArchiveName)
	size, err := s.writer.Write(ctx, profile.Files, target)
	if err != nil {
		return fmt.Errorf("writing archive: %w", err)
	}

	archive := NewArchive(target, profile.ArchiveName, now)
	archive.SetSize(size)
	result.Archive = archive
	result.ArchiveSize = size
	run.Archive = archive.Name
	run.ArchiveSize = size
	s.logger.Info("archive written", "archive", archive.Name, "size", size, "files", len(profile.Files))

	if s.uploader != nil {
		if err := s.uploader.Upload(ctx, archive); err != nil {
			// The local archive is complete, so the run still succeeds.
			s.logger.Error("offsite upload failed", "archive", archive.Name, "error", err)
			result.UploadErr = err
		}
	}
	return nil
}

// Prune applies the retention policy without writing anything. Space
// reclamation is a no-op because the pending write is empty.
func (s *BackupService) Prune(ctx context.Context, destination string, policy RetentionPolicy) (*EvictionReport, error) {
	now := s.clock.Now()
	run := &model.Run{
		ID:        s.idgen.New(),
		Operation: model.OperationPrune,
		StartedAt: now,
		Status:    model.RunStatusRunning,
	}
	if err := s.history.StartRun(run); err != nil {
		return nil, fmt.Errorf("recording run start: %w", err)
	}

	engine := NewEvictionEngine(s.catalog, s.space, policy, s.logger, now, s.engineOpts...)
	report, err := engine.Run(ctx, destination, PendingWrite{})
	s.recordEvictions(run.ID, report)
	s.finish(run, err)
	return report, err
}

// ListArchives returns the archives at destination, oldest first, with
// sizes resolved.
func (s *BackupService) ListArchives(ctx context.Context, destination string) ([]*Archive, error) {
	archives, err := s.catalog.List(ctx, destination)
	if err != nil {
		return nil, fmt.Errorf("listing archives: %w", err)
	}
	for _, a := range archives {
		if _, err := s.catalog.Size(ctx, a); err != nil {
			return nil, fmt.Errorf("resolving size of %s: %w", a.Name, err)
		}
	}
	slices.SortStableFunc(archives, func(a, b *Archive) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return archives, nil
}

func (s *BackupService) recordEvictions(runID string, report *EvictionReport) {
	if report == nil {
		return
	}
	deletedAt := s.clock.Now()
	for _, ev := range report.Evictions {
		err := s.history.RecordEviction(&model.Eviction{
			RunID:     runID,
			Archive:   ev.Archive.Name,
			Phase:     string(ev.Phase),
			Size:      ev.Size,
			DeletedAt: deletedAt,
		})
		if err != nil {
			s.logger.Warn("failed to record eviction", "archive", ev.Archive.Name, "error", err)
		}
	}
}

func (s *BackupService) finish(run *model.Run, err error) {
	finished := s.clock.Now()
	run.FinishedAt = &finished

	switch {
	case err == nil:
		run.Status = model.RunStatusSuccess
	case errors.Is(err, ErrNothingToBackup):
		run.Status = model.RunStatusNothing
	default:
		run.Status = model.RunStatusFailed
		run.Error = err.Error()
	}

	if herr := s.history.FinishRun(run); herr != nil {
		s.logger.Warn("failed to record run result", "run", run.ID, "error", herr)
	}
}
