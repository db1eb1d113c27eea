// Package components is the shared Component Repository: an arena of prompt
// components addressed by id. Selection reads it concurrently; feedback
// updates each component under that component's own lock.
package components

import (
	"context"
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/m-mizutani/goerr/v2"

	"github.com/rcliao/memcompose/internal/logging"
	"github.com/rcliao/memcompose/internal/model"
)

// Persister stores repository snapshots.
type Persister interface {
	SaveComponents(ctx context.Context, comps []model.PromptComponent) error
	LoadComponents(ctx context.Context) ([]model.PromptComponent, error)
	DeleteComponents(ctx context.Context, ids []string) error
}

type entry struct {
	mu sync.Mutex
	c  model.PromptComponent
}

func (e *entry) get() model.PromptComponent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return clone(e.c)
}

// Repository holds the component population.
type Repository struct {
	mu      sync.RWMutex
	entries map[string]*entry
	byCat   map[model.Category][]string
	evicted []string

	cap       int
	persister Persister
	closed    atomic.Bool
	dirty     atomic.Bool
}

// New returns an empty repository holding at most capacity components per
// category. A non-positive capacity disables the cap.
func New(capacity int) *Repository {
	return &Repository{
		entries: make(map[string]*entry),
		byCat:   make(map[model.Category][]string),
		cap:     capacity,
	}
}

// Load fills a repository from p, seeding it when p holds nothing.
func Load(ctx context.Context, p Persister, capacity int) (*Repository, error) {
	r := New(capacity)
	comps, err := p.LoadComponents(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load components")
	}
	if len(comps) == 0 {
		comps = Seeds()
		if err := p.SaveComponents(ctx, comps); err != nil {
			return nil, goerr.Wrap(err, "failed to store seed components")
		}
		logging.From(ctx).Info("seeded component repository", "count", len(comps))
	}
	for _, c := range comps {
		r.insert(c)
	}
	r.persister = p
	return r, nil
}

// NewSeeded returns an in-memory repository holding the built-in seeds.
func NewSeeded(capacity int) *Repository {
	r := New(capacity)
	for _, c := range Seeds() {
		r.insert(c)
	}
	return r
}

func (r *Repository) insert(c model.PromptComponent) {
	if _, ok := r.entries[c.ID]; !ok {
		r.byCat[c.Category] = append(r.byCat[c.Category], c.ID)
	}
	r.entries[c.ID] = &entry{c: clone(c)}
}

// Close makes the repository unavailable to readers and writers.
func (r *Repository) Close() { r.closed.Store(true) }

func (r *Repository) check() error {
	if r.closed.Load() {
		return goerr.Wrap(model.ErrRepositoryUnavailable, "repository closed")
	}
	return nil
}

// Candidates returns copies of category's components, oldest first.
func (r *Repository) Candidates(cat model.Category) ([]model.PromptComponent, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	ids := r.byCat[cat]
	out := make([]model.PromptComponent, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.entries[id].get())
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Get returns a copy of the component with id.
func (r *Repository) Get(id string) (model.PromptComponent, error) {
	if err := r.check(); err != nil {
		return model.PromptComponent{}, err
	}
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return model.PromptComponent{}, goerr.Wrap(model.ErrNotFound, "component not found", goerr.V("id", id))
	}
	return e.get(), nil
}

// Add inserts c, persisting it when a persister is attached, and evicts the
// weakest other members of its category beyond the cap.
func (r *Repository) Add(ctx context.Context, c model.PromptComponent) ([]string, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	if err := validate(c); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.insert(c)
	evicted := r.evictLocked(c.Category, c.ID)
	r.mu.Unlock()

	if r.persister != nil {
		if err := r.persister.SaveComponents(ctx, []model.PromptComponent{c}); err != nil {
			r.dirty.Store(true)
			logging.From(ctx).Warn("failed to persist new component, will retry on flush", "id", c.ID, "error", err)
		}
	}
	if len(evicted) > 0 {
		logging.From(ctx).Debug("evicted components", "category", c.Category, "ids", evicted)
	}
	return evicted, nil
}

// Update applies fn to the component with id as one atomic read-modify-write.
// An update that would break the weight or success rate bounds is rejected.
func (r *Repository) Update(id string, fn func(*model.PromptComponent)) (model.PromptComponent, error) {
	if err := r.check(); err != nil {
		return model.PromptComponent{}, err
	}
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return model.PromptComponent{}, goerr.Wrap(model.ErrNotFound, "component not found", goerr.V("id", id))
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	next := clone(e.c)
	fn(&next)
	next.ID, next.Category = e.c.ID, e.c.Category
	if err := validate(next); err != nil {
		return clone(e.c), err
	}
	e.c = next
	r.dirty.Store(true)
	return clone(next), nil
}

// Prune evicts down to the cap in every category and returns evicted ids.
func (r *Repository) Prune() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, cat := range model.Categories {
		out = append(out, r.evictLocked(cat, "")...)
	}
	return out
}

// evictLocked drops the lowest-fitness, then oldest, members of cat other
// than keep until the category fits the cap.
func (r *Repository) evictLocked(cat model.Category, keep string) []string {
	ids := r.byCat[cat]
	if r.cap <= 0 || len(ids) <= r.cap {
		return nil
	}

	victims := make([]model.PromptComponent, 0, len(ids))
	for _, id := range ids {
		if id == keep {
			continue
		}
		victims = append(victims, r.entries[id].get())
	}
	sort.SliceStable(victims, func(i, j int) bool {
		fi, fj := victims[i].Fitness(), victims[j].Fitness()
		if fi != fj {
			return fi < fj
		}
		if !victims[i].CreatedAt.Equal(victims[j].CreatedAt) {
			return victims[i].CreatedAt.Before(victims[j].CreatedAt)
		}
		return victims[i].ID < victims[j].ID
	})

	drop := map[string]bool{}
	var out []string
	for _, v := range victims[:len(ids)-r.cap] {
		drop[v.ID] = true
		out = append(out, v.ID)
		delete(r.entries, v.ID)
	}
	kept := ids[:0:0]
	for _, id := range ids {
		if !drop[id] {
			kept = append(kept, id)
		}
	}
	r.byCat[cat] = kept
	r.evicted = append(r.evicted, out...)
	r.dirty.Store(true)
	return out
}

// Snapshot returns copies of every component in category order.
func (r *Repository) Snapshot() []model.PromptComponent {
	var out []model.PromptComponent
	for _, cat := range model.Categories {
		cs, err := r.Candidates(cat)
		if err != nil {
			return nil
		}
		out = append(out, cs...)
	}
	return out
}

// Len returns the population size.
func (r *Repository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Flush writes a snapshot and pending evictions to the persister when the
// repository changed since the last flush.
func (r *Repository) Flush(ctx context.Context) error {
	if r.persister == nil || !r.dirty.Swap(false) {
		return nil
	}
	r.mu.Lock()
	evicted := r.evicted
	r.evicted = nil
	r.mu.Unlock()

	if err := r.persister.SaveComponents(ctx, r.Snapshot()); err != nil {
		r.requeue(evicted)
		return goerr.Wrap(err, "failed to flush components")
	}
	if len(evicted) > 0 {
		if err := r.persister.DeleteComponents(ctx, evicted); err != nil {
			r.requeue(evicted)
			return goerr.Wrap(err, "failed to delete evicted components", goerr.V("count", len(evicted)))
		}
	}
	return nil
}

// requeue puts evictions from a failed flush back so the next flush retries them.
func (r *Repository) requeue(evicted []string) {
	r.mu.Lock()
	r.evicted = append(evicted, r.evicted...)
	r.mu.Unlock()
	r.dirty.Store(true)
}

// WeightFor maps a success rate to a selection weight, monotonically.
func WeightFor(successRate, minWeight float64) float64 {
	return math.Max(minWeight, 2*successRate)
}

func validate(c model.PromptComponent) error {
	switch {
	case c.ID == "":
		return goerr.New("component id is required")
	case math.IsNaN(c.Weight) || c.Weight < 0:
		return goerr.New("component weight must be >= 0", goerr.V("id", c.ID), goerr.V("weight", c.Weight))
	case math.IsNaN(c.SuccessRate) || c.SuccessRate < 0 || c.SuccessRate > 1:
		return goerr.New("component success rate out of range", goerr.V("id", c.ID), goerr.V("success_rate", c.SuccessRate))
	}
	return nil
}

func clone(c model.PromptComponent) model.PromptComponent {
	c.Tags = append([]string(nil), c.Tags...)
	c.ParentIDs = append([]string(nil), c.ParentIDs...)
	return c
}
