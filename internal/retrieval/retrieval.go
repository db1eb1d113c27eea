// Package retrieval executes a MemoryPlan: it pulls recent and
// similarity-ranked records from the document store and packs them whole
// into the plan's token budget.
package retrieval

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/rcliao/memcompose/internal/config"
	"github.com/rcliao/memcompose/internal/embedding"
	"github.com/rcliao/memcompose/internal/logging"
	"github.com/rcliao/memcompose/internal/model"
	"github.com/rcliao/memcompose/internal/stage"
	"github.com/rcliao/memcompose/internal/store"
	"github.com/rcliao/memcompose/internal/vectorindex"
)

// DocumentStore is the part of the memory store retrieval reads from.
type DocumentStore interface {
	Query(ctx context.Context, p store.QueryParams) ([]model.Memory, error)
	Search(ctx context.Context, p store.SearchParams) ([]store.SearchResult, error)
	GetMany(ctx context.Context, ids []string) ([]model.Memory, error)
}

// SimilarityIndex answers nearest-neighbour queries over record embeddings.
type SimilarityIndex interface {
	Query(ctx context.Context, owner string, vec []float32, topK int) ([]vectorindex.Hit, error)
}

// Scored is a candidate record with its ranking inputs.
type Scored struct {
	Memory     model.Memory   `json:"memory"`
	Score      float64        `json:"score"`
	Similarity float64        `json:"similarity"`
	Source     model.Strategy `json:"source"`
}

// Stats summarises one retrieval.
type Stats struct {
	Recent     int    `json:"recent"`
	Semantic   int    `json:"semantic"`
	Candidates int    `json:"candidates"`
	Included   int    `json:"included"`
	Omitted    int    `json:"omitted"`
	TokensUsed int    `json:"tokens_used"`
	Similarity string `json:"similarity"`
	ElapsedMs  int64  `json:"elapsed_ms"`
}

// Result is the ranked and compressed memory for one turn.
type Result struct {
	Ranked     []Scored       `json:"ranked"`
	Included   []model.Memory `json:"included"`
	Compressed string         `json:"compressed"`
	Stats      Stats          `json:"stats"`
	// Degraded is set when the store was unavailable or nothing fit the budget.
	Degraded       bool              `json:"degraded"`
	Err            error             `json:"-"`
	EffectiveLevel model.MemoryLevel `json:"effective_level"`
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithSimilarity enables embedding similarity through idx and emb.
func WithSimilarity(idx SimilarityIndex, emb embedding.Embedder) Option {
	return func(r *Retriever) {
		r.index = idx
		r.embedder = emb
	}
}

// WithClock overrides the time source used for recency decay.
func WithClock(now func() time.Time) Option {
	return func(r *Retriever) { r.now = now }
}

// Retriever runs plans against a document store.
type Retriever struct {
	docs     DocumentStore
	index    SimilarityIndex
	embedder embedding.Embedder
	cfg      config.RetrievalConfig
	now      func() time.Time
}

// New creates a Retriever. Without WithSimilarity, similarity is term cosine
// over full-text matches.
func New(docs DocumentStore, cfg config.RetrievalConfig, opts ...Option) *Retriever {
	r := &Retriever{docs: docs, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve executes plan for query in owner's scope. It never fails: an
// unavailable store or an expired time slice yields an empty Degraded result
// whose EffectiveLevel is none.
func (r *Retriever) Retrieve(ctx context.Context, plan model.MemoryPlan, query, owner string) Result {
	if plan.Empty() {
		return Result{EffectiveLevel: plan.Level}
	}
	start := time.Now()

	if plan.MaxProcessingTimeMs > 0 && r.cfg.TimeShare > 0 {
		slice := time.Duration(float64(plan.MaxProcessingTimeMs)*r.cfg.TimeShare) * time.Millisecond
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, slice)
		defer cancel()
	}

	res := stage.Try(func() (Result, error) {
		return r.retrieve(ctx, plan, query, owner)
	}).OrElse(func(err error) Result {
		logging.From(ctx).Warn("retrieval unavailable, continuing without memory",
			"error", err, "level", plan.Level)
		return Result{EffectiveLevel: model.LevelNone}
	})

	out := res.Value
	if res.Degraded {
		out.Degraded = true
		out.Err = res.Err
	}
	out.Stats.ElapsedMs = time.Since(start).Milliseconds()
	return out
}

func (r *Retriever) retrieve(ctx context.Context, plan model.MemoryPlan, query, owner string) (Result, error) {
	out := Result{EffectiveLevel: plan.Level, Stats: Stats{Similarity: "terms"}}
	queryTags := tagTerms(query)
	seen := map[string]bool{}
	var ranked []Scored

	if plan.RecentCount > 0 {
		recent, err := r.docs.Query(ctx, store.QueryParams{Owner: owner, Limit: plan.RecentCount})
		if err != nil {
			return out, goerr.Wrap(model.ErrRetrievalUnavailable, "recent query failed", goerr.V("cause", err.Error()))
		}
		for _, m := range recent {
			seen[m.ID] = true
			ranked = append(ranked, r.score(m, termCosine(query, m.Content), queryTags, plan, model.StrategyRecent))
		}
		out.Stats.Recent = len(recent)
	}

	if plan.SemanticCount > 0 {
		cands, mode, err := r.candidates(ctx, plan, query, owner)
		if err != nil {
			return out, goerr.Wrap(model.ErrRetrievalUnavailable, "semantic query failed", goerr.V("cause", err.Error()))
		}
		out.Stats.Similarity = mode

		var semantic []Scored
		for _, c := range cands {
			if seen[c.Memory.ID] {
				continue
			}
			seen[c.Memory.ID] = true
			semantic = append(semantic, r.score(c.Memory, c.Similarity, queryTags, plan, c.Source))
		}
		out.Stats.Candidates = len(semantic)
		sortScored(semantic)
		if len(semantic) > plan.SemanticCount {
			semantic = semantic[:plan.SemanticCount]
		}
		out.Stats.Semantic = len(semantic)
		ranked = append(ranked, semantic...)
	}

	sortScored(ranked)
	out.Ranked = ranked

	var used int
	out.Included, out.Compressed, used = Compress(ranked, plan.TokenBudget)
	out.Stats.Included = len(out.Included)
	out.Stats.Omitted = len(ranked) - len(out.Included)
	out.Stats.TokensUsed = used

	if len(ranked) > 0 && len(out.Included) == 0 {
		out.Degraded = true
		out.Err = goerr.Wrap(model.ErrCompressionOverflow, "no record fits the token budget",
			goerr.V("budget", plan.TokenBudget), goerr.V("candidates", len(ranked)))
		logging.From(ctx).Info("compression overflow", "budget", plan.TokenBudget, "candidates", len(ranked))
	}
	return out, nil
}

// candidates gathers the semantic pool and reports which similarity was used.
func (r *Retriever) candidates(ctx context.Context, plan model.MemoryPlan, query, owner string) ([]Scored, string, error) {
	pool := plan.SemanticCount * max(r.cfg.CandidateMultiplier, 1)
	var out []Scored
	have := map[string]bool{}
	mode := "terms"

	if r.index != nil && r.embedder != nil {
		hits, err := r.vectorCandidates(ctx, query, owner, pool)
		switch {
		case err != nil:
			// similarity is an optimisation, term matching still works
			logging.From(ctx).Warn("embedding similarity unavailable, using term matching", "error", err)
		default:
			mode = "embedding"
			for _, h := range hits {
				have[h.Memory.ID] = true
			}
			out = append(out, hits...)
		}
	}

	if mode == "terms" || plan.Uses(model.StrategyKeyword) {
		results, err := r.docs.Search(ctx, store.SearchParams{Owner: owner, Query: query, Limit: pool})
		if err != nil {
			return nil, mode, err
		}
		for _, sr := range results {
			if have[sr.ID] {
				continue
			}
			have[sr.ID] = true
			out = append(out, Scored{Memory: sr.Memory, Similarity: termCosine(query, sr.Content), Source: model.StrategyKeyword})
		}
	}

	if plan.Uses(model.StrategyTemporal) {
		since := r.now().Add(-time.Duration(r.cfg.HalfLifeDays*24) * time.Hour)
		recent, err := r.docs.Query(ctx, store.QueryParams{Owner: owner, Since: since, Limit: pool})
		if err != nil {
			return nil, mode, err
		}
		for _, m := range recent {
			if have[m.ID] {
				continue
			}
			have[m.ID] = true
			out = append(out, Scored{Memory: m, Similarity: termCosine(query, m.Content), Source: model.StrategyTemporal})
		}
	}
	return out, mode, nil
}

func (r *Retriever) vectorCandidates(ctx context.Context, query, owner string, pool int) ([]Scored, error) {
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	hits, err := r.index.Query(ctx, owner, vec, pool)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}

	ids := make([]string, len(hits))
	sim := make(map[string]float64, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
		sim[h.ID] = h.Similarity
	}
	mems, err := r.docs.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]Scored, 0, len(mems))
	for _, m := range mems {
		out = append(out, Scored{Memory: m, Similarity: clamp01(sim[m.ID]), Source: model.StrategySemantic})
	}
	return out, nil
}

func (r *Retriever) score(m model.Memory, sim float64, queryTags map[string]bool, plan model.MemoryPlan, src model.Strategy) Scored {
	s := r.cfg.SimilarityWeight*sim +
		r.cfg.ImportanceWeight*m.Importance.Score() +
		r.cfg.RecencyWeight*r.decay(m.CreatedAt)
	if plan.Uses(model.StrategyTag) {
		for _, t := range m.Tags {
			if queryTags[strings.ToLower(t)] {
				s += r.cfg.TagBoost
				break
			}
		}
	}
	return Scored{Memory: m, Score: s, Similarity: sim, Source: src}
}

// decay halves every HalfLifeDays.
func (r *Retriever) decay(created time.Time) float64 {
	if r.cfg.HalfLifeDays <= 0 {
		return 1
	}
	age := r.now().Sub(created).Hours() / 24
	if age < 0 {
		age = 0
	}
	return math.Pow(0.5, age/r.cfg.HalfLifeDays)
}

// sortScored orders by score, then newest first, then id.
func sortScored(s []Scored) {
	sort.SliceStable(s, func(i, j int) bool {
		if s[i].Score != s[j].Score {
			return s[i].Score > s[j].Score
		}
		if !s[i].Memory.CreatedAt.Equal(s[j].Memory.CreatedAt) {
			return s[i].Memory.CreatedAt.After(s[j].Memory.CreatedAt)
		}
		return s[i].Memory.ID < s[j].Memory.ID
	})
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
