// Package scheduler runs periodic maintenance on a cron schedule: retention
// pruning of persisted interaction events and housekeeping of in-memory
// bookkeeping (idle calming alerts, alert cooldowns, rate-limit buckets).
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/senseease/senseease/server/internal/metrics"
)

// HousekeepingSpec runs housekeeping at the top of every hour.
const HousekeepingSpec = "0 0 * * * *"

// Bookkeeping idle windows used by housekeeping.
const (
	cooldownIdle = 24 * time.Hour
	limiterIdle  = time.Hour
)

// Pruner deletes persisted events older than a cutoff.
type Pruner interface {
	PruneEvents(ctx context.Context, before time.Time) (int64, error)
}

// Sweeper drops bookkeeping not touched since before.
type Sweeper interface {
	Sweep(before time.Time) int
}

// SweeperFunc adapts a function to Sweeper.
type SweeperFunc func(before time.Time) int

// Sweep implements Sweeper.
func (f SweeperFunc) Sweep(before time.Time) int { return f(before) }

// Scheduler manages the maintenance cron jobs.
type Scheduler struct {
	cron      *cron.Cron
	pruner    Pruner // nil without persistence
	retention time.Duration
	cooldowns Sweeper
	limiter   Sweeper
	idle      Sweeper // resolves alerts of abandoned sessions
	idleAfter time.Duration
	metrics   *metrics.Metrics
	now       func() time.Time

	mu  sync.Mutex
	ctx context.Context
}

// New creates a Scheduler. Any of pruner, cooldowns, limiter and m may be nil.
func New(pruner Pruner, retention time.Duration, cooldowns, limiter Sweeper, m *metrics.Metrics) *Scheduler {
	return &Scheduler{
		cron:      cron.New(cron.WithSeconds()),
		pruner:    pruner,
		retention: retention,
		cooldowns: cooldowns,
		limiter:   limiter,
		metrics:   m,
		now:       time.Now,
		ctx:       context.Background(),
	}
}

// ResolveIdleAlerts makes housekeeping call r with a cutoff of after before
// now, so calming alerts of sessions no longer evaluated are resolved. A
// zero after disables it.
func (s *Scheduler) ResolveIdleAlerts(r Sweeper, after time.Duration) {
	s.idle = r
	s.idleAfter = after
}

// Register adds the pruning job on pruneSpec (six-field cron with seconds)
// and the hourly housekeeping job. Pruning is skipped without a pruner or
// with zero retention.
func (s *Scheduler) Register(pruneSpec string) error {
	if s.pruner != nil && s.retention > 0 {
		if _, err := s.cron.AddFunc(pruneSpec, s.pruneJob); err != nil {
			return fmt.Errorf("scheduler: register prune job %q: %w", pruneSpec, err)
		}
	}
	if _, err := s.cron.AddFunc(HousekeepingSpec, s.Housekeep); err != nil {
		return fmt.Errorf("scheduler: register housekeeping: %w", err)
	}
	return nil
}

// Jobs returns the number of registered jobs.
func (s *Scheduler) Jobs() int { return len(s.cron.Entries()) }

// Run starts the cron scheduler and blocks until ctx is cancelled, then
// waits for running jobs to finish.
func (s *Scheduler) Run(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.cron.Start()
	slog.Info("scheduler: started", "jobs", s.Jobs())
	<-ctx.Done()
	<-s.cron.Stop().Done()
	slog.Info("scheduler: stopped")
}

// PruneNow deletes persisted events older than the retention window.
func (s *Scheduler) PruneNow(ctx context.Context) (int64, error) {
	if s.pruner == nil || s.retention <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-s.retention)
	n, err := s.pruner.PruneEvents(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("scheduler: prune events before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	if s.metrics != nil {
		s.metrics.EventsPruned.Add(float64(n))
	}
	return n, nil
}

func (s *Scheduler) pruneJob() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	n, err := s.PruneNow(ctx)
	if err != nil {
		slog.Error("scheduler: retention pruning failed", "err", err)
		return
	}
	slog.Info("scheduler: retention pruning done", "removed", n, "retention", s.retention)
}

// Housekeep resolves idle calming alerts, then forgets idle alert cooldowns
// and rate-limit buckets.
func (s *Scheduler) Housekeep() {
	now := s.now()
	var resolved, cooldowns, limiters int
	if s.idle != nil && s.idleAfter > 0 {
		resolved = s.idle.Sweep(now.Add(-s.idleAfter))
	}
	if s.cooldowns != nil {
		cooldowns = s.cooldowns.Sweep(now.Add(-cooldownIdle))
	}
	if s.limiter != nil {
		limiters = s.limiter.Sweep(now.Add(-limiterIdle))
	}
	if resolved+cooldowns+limiters > 0 {
		slog.Debug("scheduler: housekeeping",
			"idle_alerts", resolved, "cooldowns", cooldowns, "rate_limiters", limiters)
	}
}
