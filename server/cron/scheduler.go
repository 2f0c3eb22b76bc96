// Package cron runs cache refreshes on cron schedules.
//
// Schedules use the five-field format (minute, hour, day of month, month, day
// of week) or one of the descriptors such as "@daily" and "@every 6h". A
// Scheduler fires its Runnable on every registered schedule; a fire while the
// previous call is still running is skipped.
//
//	sched, err := cron.NewScheduler([]string{"0 6 * * *"}, orch, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	sched.Start(ctx) // stops when ctx is cancelled
package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrInvalidCronSpec is returned when a schedule cannot be parsed.
var ErrInvalidCronSpec = errors.New("invalid cron spec")

// Runnable is fired by the scheduler.
type Runnable interface {
	Run() error
}

// RunnableFunc adapts a function to Runnable.
type RunnableFunc func() error

// Run calls f.
func (f RunnableFunc) Run() error { return f() }

var specParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Scheduler fires one Runnable on a set of schedules.
type Scheduler struct {
	cron      *cron.Cron
	schedules map[string]cron.Schedule
	logger    *slog.Logger
}

// NewScheduler registers runnable on every schedule. Errors wrap
// ErrInvalidCronSpec when a schedule does not parse.
func NewScheduler(schedules []string, runnable Runnable, logger *slog.Logger) (*Scheduler, error) {
	if len(schedules) == 0 {
		return nil, fmt.Errorf("at least one schedule is required")
	}

	s := &Scheduler{
		schedules: make(map[string]cron.Schedule, len(schedules)),
		logger:    logger,
	}
	cl := cronLogger{logger: logger}
	s.cron = cron.New(
		cron.WithParser(specParser),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	for _, spec := range schedules {
		schedule, err := specParser.Parse(spec)
		if err != nil {
			return nil, fmt.Errorf("schedule %q: %w", spec, errors.Join(ErrInvalidCronSpec, err))
		}
		s.schedules[spec] = schedule
		s.cron.Schedule(schedule, s.job(spec, runnable))
		logger.Info("refresh schedule registered", "schedule", spec, "next_run", schedule.Next(time.Now()))
	}
	return s, nil
}

func (s *Scheduler) job(spec string, runnable Runnable) cron.Job {
	return cron.FuncJob(func() {
		s.logger.Info("starting scheduled refresh", "schedule", spec)
		if err := runnable.Run(); err != nil {
			s.logger.Warn("scheduled refresh could not start", "schedule", spec, "error", err)
			return
		}
		s.logger.Info("scheduled refresh started", "schedule", spec)
	})
}

// Start runs the scheduler in the background until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.cron.Start()
	go func() {
		<-ctx.Done()
		<-s.cron.Stop().Done()
		s.logger.Info("refresh scheduler stopped")
	}()
}

// NextRun returns the earliest upcoming fire time across all schedules.
func (s *Scheduler) NextRun() time.Time {
	now := time.Now()
	var earliest time.Time
	for _, schedule := range s.schedules {
		if next := schedule.Next(now); earliest.IsZero() || next.Before(earliest) {
			earliest = next
		}
	}
	return earliest
}

// cronLogger sends the scheduler's own messages to slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
