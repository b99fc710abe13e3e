package zb

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// DefaultReclaimDelay is how long space reclamation waits before deleting
// anything, leaving the operator a chance to interrupt the run.
const DefaultReclaimDelay = 5 * time.Second

// Phase identifies the step of the eviction engine that deleted an archive.
type Phase string

const (
	PhaseExpire  Phase = "expire"
	PhaseCap     Phase = "cap"
	PhaseReclaim Phase = "reclaim"
)

// Eviction records one archive deleted by the engine.
type Eviction struct {
	Archive *Archive
	Phase   Phase
	Size    int64 // 0 when the size could not be resolved
}

// DeletionFailure records an archive the engine tried and failed to delete.
type DeletionFailure struct {
	Archive *Archive
	Phase   Phase
	Err     error
}

// EvictionReport summarizes a run of the eviction engine.
type EvictionReport struct {
	Evictions []Eviction
	Failures  []DeletionFailure
	Required  int64  // estimated size of the pending write
	FreeBytes uint64 // free space observed last
}

// Evicted returns the archives deleted in the given phase, in deletion order.
func (r *EvictionReport) Evicted(phase Phase) []*Archive {
	var out []*Archive
	for _, ev := range r.Evictions {
		if ev.Phase == phase {
			out = append(out, ev.Archive)
		}
	}
	return out
}

// ReclaimedBytes returns the summed size of every evicted archive.
func (r *EvictionReport) ReclaimedBytes() int64 {
	var total int64
	for _, ev := range r.Evictions {
		total += ev.Size
	}
	return total
}

// EngineOption configures an EvictionEngine.
type EngineOption func(*EvictionEngine)

// WithReclaimDelay overrides DefaultReclaimDelay. A zero delay skips the wait.
func WithReclaimDelay(d time.Duration) EngineOption {
	return func(e *EvictionEngine) {
		e.reclaimDelay = d
	}
}

// EvictionEngine decides which archives survive at a destination and deletes
// the rest so that a pending write fits.
//
// Every run executes, in order:
//   - age expiry: archives older than RetentionDays are deleted
//   - count cap: the oldest archives are deleted until KeepCount-1 remain
//   - space reclamation: while the pending write does not fit, the oldest
//     archive is deleted, never the last one unless the policy is aggressive
type EvictionEngine struct {
	catalog      Catalog
	space        SpaceOracle
	policy       RetentionPolicy
	logger       Logger
	now          time.Time
	reclaimDelay time.Duration
}

// NewEvictionEngine creates an engine. now is the single timestamp every age
// decision of the run is made against.
func NewEvictionEngine(catalog Catalog, space SpaceOracle, policy RetentionPolicy, logger Logger, now time.Time, opts ...EngineOption) *EvictionEngine {
	e := &EvictionEngine{
		catalog:      catalog,
		space:        space,
		policy:       policy,
		logger:       logger,
		now:          now,
		reclaimDelay: DefaultReclaimDelay,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run applies the retention policy at destination and frees enough space for
// pending. The report is returned even when Run fails.
//
// An *InsufficientSpaceError is returned when the write still does not fit
// after every deletion the policy permits. Catalog and space oracle failures
// abort the run; failures to delete individual archives are logged, recorded
// in the report and skipped.
func (e *EvictionEngine) Run(ctx context.Context, destination string, pending PendingWrite) (*EvictionReport, error) {
	report := &EvictionReport{Required: pending.EstimatedSize}

	if err := e.expire(ctx, destination, report); err != nil {
		return report, fmt.Errorf("expiring archives: %w", err)
	}
	if err := e.enforceKeepCount(ctx, destination, report); err != nil {
		return report, fmt.Errorf("enforcing keep count: %w", err)
	}
	if err := e.reclaim(ctx, destination, pending, report); err != nil {
		return report, err
	}
	return report, nil
}

func (e *EvictionEngine) expire(ctx context.Context, destination string, report *EvictionReport) error {
	if e.policy.RetentionDays <= 0 {
		e.logger.Info("retention is 0, archives never expire by age")
		return nil
	}

	archives, err := e.catalog.List(ctx, destination)
	if err != nil {
		return fmt.Errorf("listing archives: %w", err)
	}

	maxAge := time.Duration(e.policy.RetentionDays) * 24 * time.Hour
	e.logger.Info("deleting expired archives", "retention_days", e.policy.RetentionDays, "found", len(archives))

	for _, a := range archives {
		if err := ctx.Err(); err != nil {
			return err
		}
		if a.Age(e.now) > maxAge {
			e.remove(ctx, a, PhaseExpire, report)
		}
	}
	return nil
}

func (e *EvictionEngine) enforceKeepCount(ctx context.Context, destination string, report *EvictionReport) error {
	if e.policy.KeepCount <= 0 {
		e.logger.Info("keep is 0, no count cap on archives")
		return nil
	}

	archives, err := e.catalog.List(ctx, destination)
	if err != nil {
		return fmt.Errorf("listing archives: %w", err)
	}

	// The new archive takes one of the KeepCount slots. The most recent
	// existing archive is never removed here.
	limit := max(e.policy.KeepCount-1, 1)
	queue := newArchiveQueue(archives)

	for queue.Len() > limit {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.remove(ctx, queue.PopOldest(), PhaseCap, report)
	}
	return nil
}

func (e *EvictionEngine) reclaim(ctx context.Context, destination string, pending PendingWrite, report *EvictionReport) error {
	need := uint64(max(pending.EstimatedSize, 0))

	free, err := e.freeBytes(destination, report)
	if err != nil {
		return err
	}
	if need <= free {
		e.logger.Debug("enough space for new archive", "required", humanize.IBytes(need), "free", humanize.IBytes(free))
		return nil
	}

	if !e.policy.ReclaimForSpace {
		e.logger.Error("not enough space and removing old backups for space is disabled",
			"required", humanize.IBytes(need), "free", humanize.IBytes(free))
		return e.insufficient(destination, pending, free)
	}

	e.logger.Warn("not enough space, deleting old backups",
		"required", humanize.IBytes(need), "free", humanize.IBytes(free), "delay", e.reclaimDelay)
	if err := e.wait(ctx); err != nil {
		return fmt.Errorf("space reclamation cancelled: %w", err)
	}

	archives, err := e.catalog.List(ctx, destination)
	if err != nil {
		return fmt.Errorf("listing archives: %w", err)
	}
	queue := newArchiveQueue(archives)

	for need > free {
		if queue.Len() == 0 {
			e.logger.Warn("no archives left to delete")
			break
		}
		if queue.Len() == 1 && !e.policy.Aggressive {
			e.logger.Warn("keeping most recent archive, aggressive removal is disabled", "archive", queue.Newest().Name)
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		e.remove(ctx, queue.PopOldest(), PhaseReclaim, report)

		free, err = e.freeBytes(destination, report)
		if err != nil {
			return err
		}
	}

	if need > free {
		return e.insufficient(destination, pending, free)
	}
	return nil
}

// remove deletes a single archive. Failures are logged and recorded, never
// returned, so one stubborn file does not stop the phase.
func (e *EvictionEngine) remove(ctx context.Context, a *Archive, phase Phase, report *EvictionReport) bool {
	size, err := e.catalog.Size(ctx, a)
	if err != nil {
		e.logger.Debug("could not resolve archive size", "archive", a.Name, "error", err)
		size = 0
	}

	if err := e.catalog.Remove(ctx, a); err != nil {
		e.logger.Error("failed to delete archive", "archive", a.Name, "phase", string(phase), "error", err)
		report.Failures = append(report.Failures, DeletionFailure{Archive: a, Phase: phase, Err: err})
		return false
	}

	e.logger.Info("archive deleted", "archive", a.Name, "phase", string(phase), "size", humanize.IBytes(uint64(size)))
	report.Evictions = append(report.Evictions, Eviction{Archive: a, Phase: phase, Size: size})
	return true
}

func (e *EvictionEngine) freeBytes(destination string, report *EvictionReport) (uint64, error) {
	free, err := e.space.FreeBytes(destination)
	if err != nil {
		return 0, fmt.Errorf("querying free space: %w", err)
	}
	report.FreeBytes = free
	return free, nil
}

func (e *EvictionEngine) insufficient(destination string, pending PendingWrite, free uint64) error {
	return &InsufficientSpaceError{
		Destination: destination,
		Required:    pending.EstimatedSize,
		Free:        free,
	}
}

func (e *EvictionEngine) wait(ctx context.Context) error {
	if e.reclaimDelay <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(e.reclaimDelay)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
