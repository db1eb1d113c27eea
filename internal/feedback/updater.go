// Package feedback turns response quality into learning updates. Updates go
// through a bounded queue drained by one background goroutine, so the
// request path never waits on learning.
package feedback

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rcliao/memcompose/internal/logging"
	"github.com/rcliao/memcompose/internal/model"
)

// Learner applies an outcome to component statistics.
type Learner interface {
	RecordOutcome(ctx context.Context, sel model.Selection, quality float64) error
}

// PlanTracker records per-level outcome quality.
type PlanTracker interface {
	RecordOutcome(level model.MemoryLevel, quality, alpha float64)
}

// Update is one queued outcome.
type Update struct {
	Selection model.Selection
	Quality   float64
}

// Counters reports queue activity.
type Counters struct {
	Applied int64 `json:"applied"`
	Failed  int64 `json:"failed"`
	Dropped int64 `json:"dropped"`
	Pending int   `json:"pending"`
}

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("feedback updater closed")

// ErrQueueFull is returned by Submit when the queue is at capacity. The
// update is dropped.
var ErrQueueFull = errors.New("feedback queue full")

// Updater consumes queued outcomes.
type Updater struct {
	learner Learner
	planner PlanTracker
	alpha   float64
	ctx     context.Context

	mu     sync.RWMutex
	closed bool
	queue  chan Update
	wg     sync.WaitGroup

	applied atomic.Int64
	failed  atomic.Int64
	dropped atomic.Int64
}

// NewUpdater starts the background consumer. planner may be nil. ctx only
// carries the logger for the consumer.
func NewUpdater(ctx context.Context, learner Learner, planner PlanTracker, queueSize int, alpha float64) *Updater {
	if queueSize < 1 {
		queueSize = 1
	}
	u := &Updater{
		learner: learner,
		planner: planner,
		alpha:   alpha,
		ctx:     logging.With(context.Background(), logging.From(ctx)),
		queue:   make(chan Update, queueSize),
	}
	u.wg.Add(1)
	go u.loop()
	return u
}

// Submit enqueues an outcome without blocking.
func (u *Updater) Submit(sel model.Selection, quality float64) error {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if u.closed {
		return ErrClosed
	}
	select {
	case u.queue <- Update{Selection: sel, Quality: quality}:
		return nil
	default:
		u.dropped.Add(1)
		logging.From(u.ctx).Warn("feedback queue full, dropping update", "selection", sel.ID)
		return ErrQueueFull
	}
}

func (u *Updater) loop() {
	defer u.wg.Done()
	for up := range u.queue {
		u.apply(up)
	}
}

func (u *Updater) apply(up Update) {
	ctx := u.ctx
	if err := u.learner.RecordOutcome(ctx, up.Selection, up.Quality); err != nil {
		u.failed.Add(1)
		logging.From(ctx).Error("failed to apply feedback", "error", err, "selection", up.Selection.ID)
		return
	}
	if u.planner != nil && up.Selection.Level != "" {
		u.planner.RecordOutcome(up.Selection.Level, up.Quality, u.alpha)
	}
	u.applied.Add(1)
}

// Close stops accepting updates and waits until queued ones are applied.
func (u *Updater) Close() {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return
	}
	u.closed = true
	close(u.queue)
	u.mu.Unlock()
	u.wg.Wait()
}

// Counters returns a snapshot of queue activity.
func (u *Updater) Counters() Counters {
	return Counters{
		Applied: u.applied.Load(),
		Failed:  u.failed.Load(),
		Dropped: u.dropped.Load(),
		Pending: len(u.queue),
	}
}
