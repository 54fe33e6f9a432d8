// Package scheduler drives the batch reclassifier from cron entries.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jonesrussell/north-cloud/listings/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/listings/internal/reclassify"
)

// MidnightSpec fires at 00:00 in the scheduler's zone.
const MidnightSpec = "0 0 * * *"

// Runner performs one reclassification run.
type Runner interface {
	RunOnce(ctx context.Context) (*reclassify.Report, error)
}

// Config selects the entries to register.
type Config struct {
	// Interval adds an "@every" entry when positive.
	Interval time.Duration
	// RunAtMidnight adds a run at the start of every reference-zone day.
	RunAtMidnight bool
	// Location is the zone cron expressions are evaluated in.
	Location *time.Location
}

// Scheduler owns the cron instance and the lifecycle context of its runs.
type Scheduler struct {
	cron   *cron.Cron
	loc    *time.Location
	runner Runner
	log    logger.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	entries map[string]cron.EntryID
}

// New creates a scheduler and registers its entries. Nothing runs until Start.
func New(cfg Config, runner Runner, log logger.Logger) (*Scheduler, error) {
	if cfg.Interval <= 0 && !cfg.RunAtMidnight {
		return nil, errors.New("scheduler needs an interval or a midnight entry")
	}
	if cfg.Location == nil {
		return nil, errors.New("scheduler location is required")
	}
	if log == nil {
		log = logger.NewNop()
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	s := &Scheduler{
		loc:    cfg.Location,
		runner: runner,
		log:    log,
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLocation(cfg.Location),
			cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)),
		),
		entries: make(map[string]cron.EntryID),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	if cfg.Interval > 0 {
		if err := s.add("@every "+cfg.Interval.String(), "interval"); err != nil {
			return nil, err
		}
	}
	if cfg.RunAtMidnight {
		if err := s.add(MidnightSpec, "midnight"); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func (s *Scheduler) add(spec, trigger string) error {
	id, err := s.cron.AddFunc(spec, func() { s.run(trigger) })
	if err != nil {
		return fmt.Errorf("add schedule %q: %w", spec, err)
	}
	s.entries[trigger] = id
	return nil
}

// Start begins firing entries.
func (s *Scheduler) Start() {
	s.cron.Start()
	for trigger, next := range s.NextRuns() {
		s.log.Info("Reclassifier scheduled",
			logger.String("trigger", trigger),
			logger.Time("next_run", next),
		)
	}
}

// Stop cancels in-flight runs and waits for them to return or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()

	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

// NextRuns returns the next fire time of each registered entry.
func (s *Scheduler) NextRuns() map[string]time.Time {
	out := make(map[string]time.Time, len(s.entries))
	for trigger, id := range s.entries {
		entry := s.cron.Entry(id)
		next := entry.Next
		if next.IsZero() && entry.Schedule != nil {
			next = entry.Schedule.Next(time.Now().In(s.loc))
		}
		out[trigger] = next
	}
	return out
}

func (s *Scheduler) run(trigger string) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	if ctx.Err() != nil {
		return
	}

	log := s.log.With(logger.String("trigger", trigger))
	report, err := s.runner.RunOnce(ctx)
	switch {
	case err != nil:
		log.Error("Scheduled reclassify run failed", logger.Error(err))
	case report.Skipped:
		log.Debug("Scheduled reclassify run skipped")
	default:
		log.Info("Scheduled reclassify run finished",
			logger.Int64("updated", report.Updated),
			logger.Int64("duration_ms", report.DurationMs),
		)
	}
}
