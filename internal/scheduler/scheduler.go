package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/elonfeng/hotlist/internal/pipeline"
)

// Runner is the part of the pipeline the scheduler drives.
type Runner interface {
	Run(ctx context.Context, day string) (*pipeline.Summary, error)
	Today() string
	PurgeSnapshots(ctx context.Context, day string, retentionDays int) (int64, error)
}

// Options configures the daily schedule.
type Options struct {
	Hour          int
	Minute        int
	Location      *time.Location
	Timeout       time.Duration
	RunOnStart    bool
	RetentionDays int
}

// Scheduler triggers one pipeline run per day at a fixed local time.
type Scheduler struct {
	runner Runner
	opts   Options
	log    zerolog.Logger
	now    func() time.Time
	after  func(time.Duration) <-chan time.Time
}

// New creates a new scheduler.
func New(r Runner, opts Options, log zerolog.Logger) *Scheduler {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 25 * time.Minute
	}
	return &Scheduler{
		runner: r,
		opts:   opts,
		log:    log.With().Str("component", "scheduler").Logger(),
		now:    time.Now,
		after:  time.After,
	}
}

// NextRun returns the first hour:minute in loc strictly after now.
func NextRun(now time.Time, hour, minute int, loc *time.Location) time.Time {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, hour, minute, 0, 0, loc)
	}
	return next
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.opts.RunOnStart {
		s.log.Info().Msg("initial run")
		s.Tick(ctx)
	}

	for {
		next := NextRun(s.now(), s.opts.Hour, s.opts.Minute, s.opts.Location)
		s.log.Info().Time("next_run", next).Msg("waiting")

		select {
		case <-ctx.Done():
			s.log.Info().Msg("stopped")
			return ctx.Err()
		case <-s.after(next.Sub(s.now())):
			s.Tick(ctx)
		}
	}
}

// Tick runs the pipeline for today, then the snapshot retention pass.
// Neither failure stops the schedule.
func (s *Scheduler) Tick(ctx context.Context) {
	day := s.runner.Today()

	runCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	if _, err := s.runner.Run(runCtx, day); err != nil {
		s.log.Error().Err(err).Str("day", day).Msg("scheduled run failed")
	}

	if s.opts.RetentionDays <= 0 {
		return
	}
	if _, err := s.runner.PurgeSnapshots(ctx, day, s.opts.RetentionDays); err != nil {
		s.log.Warn().Err(err).Str("day", day).Msg("snapshot purge failed")
	}
}
