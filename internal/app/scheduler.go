package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"zbackup/internal/zb"
)

// Scheduler runs a job on a cron schedule, never two at once.
type Scheduler struct {
	schedule cron.Schedule
	job      func(ctx context.Context)
	logger   zb.Logger
}

// NewScheduler parses a standard five-field cron expression (or a
// descriptor such as "@daily") for job.
func NewScheduler(spec string, job func(ctx context.Context), logger zb.Logger) (*Scheduler, error) {
	if spec == "" {
		return nil, fmt.Errorf("%w: schedule is empty", ErrConfig)
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid schedule %q: %w", ErrConfig, spec, err)
	}
	if logger == nil {
		logger = zb.NewNopLogger()
	}
	return &Scheduler{schedule: schedule, job: job, logger: logger}, nil
}

// Next returns the first activation after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t)
}

// Run starts the schedule and blocks until ctx is cancelled, then waits for
// a running job to finish. Ticks that fire while a job is still running
// are skipped.
func (s *Scheduler) Run(ctx context.Context) {
	cl := cronLogger{s.logger}
	c := cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
	c.Schedule(s.schedule, cron.FuncJob(func() { s.job(ctx) }))

	c.Start()
	s.logger.Info("scheduler started", "next_run", s.Next(time.Now()))

	<-ctx.Done()
	s.logger.Info("scheduler stopping")
	<-c.Stop().Done()
}

// cronLogger adapts zb.Logger to cron.Logger.
type cronLogger struct {
	l zb.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
