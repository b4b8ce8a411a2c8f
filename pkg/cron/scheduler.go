// Package cron re-runs the synthesis batch on a schedule using robfig/cron.
// Every trigger is still one complete batch; overlapping triggers are skipped.
package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is one scheduled batch.
type Job func(ctx context.Context) error

// Scheduler manages the scheduled batch using robfig/cron.
type Scheduler struct {
	cron    *cron.Cron
	spec    string
	job     Job
	timeout time.Duration
	logger  *slog.Logger

	runs     atomic.Int64
	failures atomic.Int64
}

// NewScheduler creates a scheduler for job on a standard 5-field cron spec
// (descriptors such as @daily are accepted). A zero timeout defaults to 30 minutes.
func NewScheduler(spec string, job Job, timeout time.Duration, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}

	cronLogger := cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))
	c := cron.New(
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)

	return &Scheduler{
		cron:    c,
		spec:    spec,
		job:     job,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// Start begins the schedule.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.run); err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("cron scheduler started",
		slog.String("schedule", s.spec),
		slog.Time("next", s.Next()),
	)
	return nil
}

// Stop stops the schedule. The returned context is done once a running batch
// has finished.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("cron scheduler stopping")
	return s.cron.Stop()
}

// RunNow triggers one batch outside the schedule.
func (s *Scheduler) RunNow() {
	go s.run()
}

// Next returns the next scheduled time, or zero before Start.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// Runs returns the number of completed batches and how many of them failed.
func (s *Scheduler) Runs() (total, failed int64) {
	return s.runs.Load(), s.failures.Load()
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	s.logger.Info("scheduled run starting")

	err := s.job(ctx)
	s.runs.Add(1)
	if err != nil {
		s.failures.Add(1)
		s.logger.Error("scheduled run failed",
			slog.Duration("elapsed", time.Since(start)),
			slog.Any("error", err),
		)
		return
	}
	s.logger.Info("scheduled run completed",
		slog.Duration("elapsed", time.Since(start)),
	)
}
