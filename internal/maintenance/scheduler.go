// Package maintenance runs the periodic component flush and prune jobs.
package maintenance

import (
	"context"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/robfig/cron/v3"

	"github.com/rcliao/memcompose/internal/config"
	"github.com/rcliao/memcompose/internal/logging"
)

// Population is the component population the jobs maintain.
type Population interface {
	Flush(ctx context.Context) error
	Prune() []string
}

// Scheduler owns a cron instance with the flush and prune entries.
type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	pop     Population
	ctx     context.Context
	running bool
}

// New registers the jobs named by cfg. An empty schedule skips that job.
func New(ctx context.Context, pop Population, cfg config.MaintenanceConfig) (*Scheduler, error) {
	s := &Scheduler{
		cron: cron.New(),
		pop:  pop,
		ctx:  ctx,
	}
	if cfg.FlushSchedule != "" {
		if _, err := s.cron.AddFunc(cfg.FlushSchedule, s.flush); err != nil {
			return nil, goerr.Wrap(err, "invalid flush schedule", goerr.V("schedule", cfg.FlushSchedule))
		}
	}
	if cfg.PruneSchedule != "" {
		if _, err := s.cron.AddFunc(cfg.PruneSchedule, s.prune); err != nil {
			return nil, goerr.Wrap(err, "invalid prune schedule", goerr.V("schedule", cfg.PruneSchedule))
		}
	}
	return s, nil
}

// Jobs reports how many entries are registered.
func (s *Scheduler) Jobs() int {
	return len(s.cron.Entries())
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.cron.Start()
	logging.From(s.ctx).Debug("maintenance started", "jobs", s.Jobs())
}

// Stop halts the schedule and waits up to five seconds for a running job.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-time.After(5 * time.Second):
		logging.From(s.ctx).Warn("maintenance stop timed out waiting for running job")
	}
}

// RunOnce prunes and flushes immediately.
func (s *Scheduler) RunOnce() {
	s.prune()
}

func (s *Scheduler) flush() {
	if err := s.pop.Flush(s.ctx); err != nil {
		logging.From(s.ctx).Warn("component flush failed", "error", err)
	}
}

func (s *Scheduler) prune() {
	evicted := s.pop.Prune()
	if len(evicted) > 0 {
		logging.From(s.ctx).Info("pruned components", "count", len(evicted))
	}
	s.flush()
}
