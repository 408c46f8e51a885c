package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Parse accepts a Go duration ("15m"), a descriptor ("@every 15m",
// "@hourly") or a standard five-field cron expression.
func Parse(spec string) (cron.Schedule, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, fmt.Errorf("schedule: spec is required")
	}

	if interval, err := time.ParseDuration(spec); err == nil {
		if interval < time.Second {
			return nil, fmt.Errorf("schedule: interval %s is below one second", interval)
		}
		return cron.Every(interval), nil
	}

	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("schedule: parse %q: %w", spec, err)
	}
	return sched, nil
}

// Scheduler invokes a job on a cron schedule, one invocation at a time.
// A job that overruns its slot delays the next one instead of overlapping it.
type Scheduler struct {
	mu    sync.Mutex
	spec  string
	sched cron.Schedule

	reset chan struct{}
	now   func() time.Time // injectable for tests
}

// New creates a Scheduler for spec.
func New(spec string) (*Scheduler, error) {
	sched, err := Parse(spec)
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		spec:  spec,
		sched: sched,
		reset: make(chan struct{}, 1),
		now:   time.Now,
	}, nil
}

// SetSpec replaces the schedule. The pending wait is recomputed at once.
// An unchanged spec is a no-op.
func (s *Scheduler) SetSpec(spec string) error {
	sched, err := Parse(spec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if spec == s.spec {
		s.mu.Unlock()
		return nil
	}
	s.spec = spec
	s.sched = sched
	s.mu.Unlock()

	slog.Info("schedule: updated", "spec", spec)
	select {
	case s.reset <- struct{}{}:
	default:
	}
	return nil
}

// Next returns the first activation after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sched.Next(t)
}

// Run calls job at every activation until ctx is cancelled. With runOnStart
// the job also runs once immediately. Run blocks; job runs on the calling
// goroutine.
func (s *Scheduler) Run(ctx context.Context, runOnStart bool, job func(context.Context)) {
	if runOnStart && ctx.Err() == nil {
		job(ctx)
	}

	for {
		now := s.now()
		next := s.Next(now)
		slog.Debug("schedule: next run", "at", next.Format(time.RFC3339))

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.reset:
			timer.Stop()
			continue
		case <-timer.C:
		}

		if ctx.Err() != nil {
			return
		}
		job(ctx)
	}
}
