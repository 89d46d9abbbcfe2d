package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
)

type CycleRunner interface {
	RunCycle(ctx context.Context, now time.Time) (CycleReport, error)
}

// Scheduler triggers reminder cycles on a cron spec evaluated in the
// service's local time zone. Overlapping ticks inside one process are
// skipped; overlap across processes is handled by the ledger.
type Scheduler struct {
	cron   *cron.Cron
	runner CycleRunner
	clock  clockwork.Clock
	logger *slog.Logger
}

func NewScheduler(runner CycleRunner, spec string, loc *time.Location, clock clockwork.Clock) (*Scheduler, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	logger := slog.Default()
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))

	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		runner: runner,
		clock:  clock,
		logger: logger,
	}

	if _, err := s.cron.AddFunc(spec, s.runOnce); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("reminder scheduler started", "next_run", s.NextRun())
}

// Stop halts new ticks. The returned context is done once a running cycle
// has finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) NextRun() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (s *Scheduler) runOnce() {
	now := s.clock.Now()
	s.logger.Info("starting reminder cycle", "now", now)

	report, err := s.runner.RunCycle(context.Background(), now)
	if err != nil {
		s.logger.Error("reminder cycle failed", "error", err, "report", report)
		return
	}
	s.logger.Info("reminder cycle finished",
		"prescheduled", report.Prescheduled,
		"day_before", report.DayBefore,
		"near_time", report.NearTime)
}
