// Package engine wires the per-turn pipeline: route, plan, retrieve, select,
// assemble, and later learn from the outcome.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/m-mizutani/goerr/v2"

	"github.com/rcliao/memcompose/internal/assembler"
	"github.com/rcliao/memcompose/internal/completion"
	"github.com/rcliao/memcompose/internal/components"
	"github.com/rcliao/memcompose/internal/config"
	"github.com/rcliao/memcompose/internal/conversation"
	"github.com/rcliao/memcompose/internal/embedding"
	"github.com/rcliao/memcompose/internal/feedback"
	"github.com/rcliao/memcompose/internal/logging"
	"github.com/rcliao/memcompose/internal/maintenance"
	"github.com/rcliao/memcompose/internal/model"
	"github.com/rcliao/memcompose/internal/planner"
	"github.com/rcliao/memcompose/internal/retrieval"
	"github.com/rcliao/memcompose/internal/selector"
	"github.com/rcliao/memcompose/internal/store"
	"github.com/rcliao/memcompose/internal/vectorindex"
)

// DefaultOwner scopes memories when no owner is configured.
const DefaultOwner = "user"

// Store is the persistence the engine runs on. store.SQLiteStore
// implements it.
type Store interface {
	retrieval.DocumentStore
	components.Persister
	conversation.Store
	Put(ctx context.Context, p store.PutParams) (*model.Memory, error)
	Get(ctx context.Context, id string) (*model.Memory, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context, owner string) (int, error)
	ExportAll(ctx context.Context, owner string) ([]model.Memory, error)
	SaveSelection(ctx context.Context, sel model.Selection) error
	GetSelection(ctx context.Context, id string) (*model.Selection, error)
}

// Option configures an Engine.
type Option func(*Engine)

// WithCompletion replaces the configured completion service.
func WithCompletion(svc completion.Service) Option {
	return func(e *Engine) { e.completion = svc }
}

// WithEmbedder replaces the configured embedder.
func WithEmbedder(emb embedding.Embedder) Option {
	return func(e *Engine) {
		e.embedder = emb
		e.embedderSet = true
	}
}

// WithOwner sets the memory scope used for retrieval and saving.
func WithOwner(owner string) Option {
	return func(e *Engine) { e.owner = owner }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine is safe for concurrent turns on different threads.
type Engine struct {
	cfg   config.Config
	store Store
	owner string
	now   func() time.Time

	embedder    embedding.Embedder
	embedderSet bool
	index       *vectorindex.Index
	completion  completion.Service

	planner   *planner.Planner
	retriever *retrieval.Retriever
	repo      *components.Repository
	selector  *selector.Selector
	assembler *assembler.Assembler
	tracker   *conversation.Tracker
	updater   *feedback.Updater
	sched     *maintenance.Scheduler
	stats     *ristretto.Cache
}

// New builds an engine over st. Store failures while loading are logged
// and leave the engine on its fallbacks; only configuration errors fail.
func New(ctx context.Context, cfg config.Config, st Store, opts ...Option) (*Engine, error) {
	prof, err := cfg.ActiveProfile()
	if err != nil {
		return nil, err
	}

	e := &Engine{cfg: cfg, store: st, owner: DefaultOwner, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	log := logging.From(ctx)

	if !e.embedderSet {
		if e.embedder, err = embedding.New(ctx, cfg.Embedding); err != nil {
			return nil, goerr.Wrap(err, "failed to create embedder")
		}
	}
	if e.completion == nil {
		if e.completion, err = completion.New(ctx, cfg.Completion); err != nil {
			return nil, goerr.Wrap(err, "failed to create completion service")
		}
	}

	e.stats, err = ristretto.NewCache(&ristretto.Config{
		NumCounters: 1000,
		MaxCost:     100,
		BufferItems: 64,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create stats cache")
	}

	e.repo, err = components.Load(ctx, st, cfg.Selector.PopulationCap)
	if err != nil {
		log.Warn("component store unavailable, using in-memory seeds", "error", err)
		e.repo = components.NewSeeded(cfg.Selector.PopulationCap)
	}

	var retrievalOpts []retrieval.Option
	if e.embedder != nil {
		e.index = vectorindex.New()
		e.loadIndex(ctx)
		retrievalOpts = append(retrievalOpts, retrieval.WithSimilarity(e.index, e.embedder))
	}
	retrievalOpts = append(retrievalOpts, retrieval.WithClock(e.now))

	var selectorOpts []selector.Option
	if cfg.Selector.GenerateWithCompletion && e.completion != nil {
		selectorOpts = append(selectorOpts, selector.WithGenerator(selector.NewCompletionGenerator(e.completion)))
	}
	selectorOpts = append(selectorOpts, selector.WithClock(e.now))

	e.planner = planner.New(prof)
	e.retriever = retrieval.New(st, cfg.Retrieval, retrievalOpts...)
	e.selector = selector.New(e.repo, cfg.Selector, selectorOpts...)
	e.assembler = assembler.New(cfg.History)
	e.tracker = conversation.New(st, cfg.History)
	e.updater = feedback.NewUpdater(ctx, e.selector, e.planner, cfg.Feedback.QueueSize, cfg.Selector.LearningRate)

	e.sched, err = maintenance.New(ctx, e.repo, cfg.Maintenance)
	if err != nil {
		e.updater.Close()
		return nil, err
	}
	e.sched.Start()
	return e, nil
}

// loadIndex rebuilds the in-memory vector index from stored embeddings.
func (e *Engine) loadIndex(ctx context.Context) {
	mems, err := e.store.ExportAll(ctx, "")
	if err != nil {
		logging.From(ctx).Warn("failed to load memories into vector index", "error", err)
		return
	}
	n := 0
	for _, m := range mems {
		if len(m.Embedding) == 0 {
			continue
		}
		if err := e.index.Add(ctx, m); err != nil {
			logging.From(ctx).Warn("failed to index memory", "id", m.ID, "error", err)
			continue
		}
		n++
	}
	logging.From(ctx).Debug("vector index loaded", "indexed", n, "total", len(mems))
}

// Planner exposes the planner for profile switching and metrics.
func (e *Engine) Planner() *planner.Planner { return e.planner }

// Components returns a snapshot of the component population.
func (e *Engine) Components() []model.PromptComponent { return e.repo.Snapshot() }

// Reseed adds any built-in seed component missing from the population.
func (e *Engine) Reseed(ctx context.Context) (int, error) {
	added := 0
	for _, c := range components.Seeds() {
		if _, err := e.repo.Get(c.ID); err == nil {
			continue
		}
		if _, err := e.repo.Add(ctx, c); err != nil {
			return added, err
		}
		added++
	}
	return added, nil
}

// FeedbackCounters reports the deferred update queue.
func (e *Engine) FeedbackCounters() feedback.Counters { return e.updater.Counters() }

// Close drains pending feedback, persists the population and stops
// background jobs.
func (e *Engine) Close(ctx context.Context) error {
	e.sched.Stop()
	e.updater.Close()
	e.repo.Prune()
	err := e.repo.Flush(ctx)
	e.stats.Close()
	if err != nil {
		return goerr.Wrap(err, "failed to flush components")
	}
	return nil
}

func (e *Engine) dbStats(ctx context.Context) planner.Stats {
	key := "count:" + e.owner
	if v, ok := e.stats.Get(key); ok {
		return planner.Stats{TotalMemories: v.(int), Known: true}
	}
	n, err := e.store.Count(ctx, e.owner)
	if err != nil {
		logging.From(ctx).Warn("memory count unavailable", "error", err)
		return planner.Stats{}
	}
	e.stats.SetWithTTL(key, n, 1, e.cfg.Planner.StatsCacheTTL)
	return planner.Stats{TotalMemories: n, Known: true}
}

func joinReasons(errs []error) ([]string, error) {
	if len(errs) == 0 {
		return nil, nil
	}
	reasons := make([]string, len(errs))
	for i, err := range errs {
		reasons[i] = err.Error()
	}
	return reasons, errors.Join(errs...)
}
