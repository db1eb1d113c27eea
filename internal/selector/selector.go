// Package selector picks one prompt component per category by weighted
// sampling over the Component Repository, occasionally emitting a freshly
// generated candidate instead, and learns from outcome feedback.
package selector

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/oklog/ulid/v2"

	"github.com/rcliao/memcompose/internal/components"
	"github.com/rcliao/memcompose/internal/config"
	"github.com/rcliao/memcompose/internal/logging"
	"github.com/rcliao/memcompose/internal/model"
	"github.com/rcliao/memcompose/internal/stage"
)

// Choice is the outcome for one category.
type Choice struct {
	Component model.PromptComponent
	// None is set when an optional category is omitted.
	None         bool
	Experimental bool
}

// ID returns the chosen component id or the none sentinel.
func (c Choice) ID() string {
	if c.None {
		return model.NoneComponent
	}
	return c.Component.ID
}

// Options describe the request a selection is made for.
type Options struct {
	ThreadID string
	Level    model.MemoryLevel
	// HasMemory is false when no memory will be shown, which omits memory guidance.
	HasMemory bool
}

// Outcome is a full selection with the resolved components.
type Outcome struct {
	Selection  model.Selection
	Components map[model.Category]model.PromptComponent
	Degraded   bool
	Err        error
}

// Option configures a Selector.
type Option func(*Selector)

// WithGenerator lets experiments ask g for new component text.
func WithGenerator(g Generator) Option {
	return func(s *Selector) { s.gen = g }
}

// WithClock overrides the creation time source for generated components.
func WithClock(now func() time.Time) Option {
	return func(s *Selector) { s.now = now }
}

// Selector samples components. Safe for concurrent use.
type Selector struct {
	repo *components.Repository
	cfg  config.SelectorConfig
	gen  Generator
	now  func() time.Time

	mu      sync.Mutex
	rng     *rand.Rand
	entropy *ulid.MonotonicEntropy
}

// New creates a selector over repo. A zero cfg.Seed seeds from the clock.
func New(repo *components.Repository, cfg config.SelectorConfig, opts ...Option) *Selector {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	s := &Selector{
		repo: repo,
		cfg:  cfg,
		now:  time.Now,
		rng:  rand.New(rand.NewSource(seed)),
	}
	s.entropy = ulid.Monotonic(s.rng, 0)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// newID draws a component id from the seeded source, so equal seeds and
// clocks yield equal ids.
func (s *Selector) newID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(s.now()), s.entropy).String()
}

// draws holds every random number one category choice may use, taken
// together so a choice consumes the same amount of randomness each time.
type draws struct {
	explore float64
	pick    float64
	mutate  float64
	phrase  int
}

func (s *Selector) draw() draws {
	s.mu.Lock()
	defer s.mu.Unlock()
	return draws{
		explore: s.rng.Float64(),
		pick:    s.rng.Float64(),
		mutate:  s.rng.Float64(),
		phrase:  s.rng.Intn(len(mutationPhrases)),
	}
}

// Select chooses a component for cat. When the repository is unavailable it
// falls back to the built-in seeds and marks the result Degraded.
func (s *Selector) Select(ctx context.Context, cat model.Category, conv model.ConversationContext) stage.Result[Choice] {
	d := s.draw()
	return stage.Try(func() (Choice, error) {
		return s.choose(ctx, cat, conv, d)
	}).OrElse(func(err error) Choice {
		logging.From(ctx).Warn("component repository unavailable, using seeds", "category", cat, "error", err)
		return Choice{Component: sample(relevant(components.SeedsFor(cat), conv), d.pick, s.cfg.UnusedFloor)}
	})
}

func (s *Selector) choose(ctx context.Context, cat model.Category, conv model.ConversationContext, d draws) (Choice, error) {
	cands, err := s.repo.Candidates(cat)
	if err != nil {
		return Choice{}, err
	}
	pool := relevant(cands, conv)
	if len(pool) == 0 {
		if cat.Optional() {
			return Choice{None: true}, nil
		}
		pool = relevant(components.SeedsFor(cat), conv)
	}

	if d.explore < s.cfg.ExperimentationRate {
		c, err := s.experiment(ctx, cat, pool, conv, d)
		if err == nil {
			return Choice{Component: c, Experimental: true}, nil
		}
		if errors.Is(err, model.ErrRepositoryUnavailable) {
			return Choice{}, err
		}
		logging.From(ctx).Warn("experiment failed, sampling existing components", "category", cat, "error", err)
	}
	return Choice{Component: sample(pool, d.pick, s.cfg.UnusedFloor)}, nil
}

// SelectAll makes one choice per category in the fixed category order.
func (s *Selector) SelectAll(ctx context.Context, conv model.ConversationContext, opts Options) Outcome {
	out := Outcome{
		Selection: model.Selection{
			ThreadID: opts.ThreadID,
			Choices:  make(map[model.Category]string, len(model.Categories)),
			Level:    opts.Level,
		},
		Components: make(map[model.Category]model.PromptComponent, len(model.Categories)),
	}

	for _, cat := range model.Categories {
		if cat == model.CategoryMemoryGuidance && !opts.HasMemory {
			out.Selection.Choices[cat] = model.NoneComponent
			continue
		}
		r := s.Select(ctx, cat, conv)
		if r.Degraded {
			out.Degraded = true
			out.Err = r.Err
		}
		ch := r.Value
		out.Selection.Choices[cat] = ch.ID()
		if ch.None {
			continue
		}
		out.Components[cat] = ch.Component
		if ch.Experimental {
			out.Selection.Experimental = append(out.Selection.Experimental, ch.Component.ID)
		}
	}
	return out
}

// relevant keeps untagged components and those tagged with the thread's
// conversation type or expertise. It returns all of cands when none match.
func relevant(cands []model.PromptComponent, conv model.ConversationContext) []model.PromptComponent {
	var out []model.PromptComponent
	for _, c := range cands {
		if len(c.Tags) == 0 {
			out = append(out, c)
			continue
		}
		for _, t := range c.Tags {
			if t == conv.ConversationType || t == conv.UserExpertise {
				out = append(out, c)
				break
			}
		}
	}
	if len(out) == 0 {
		return cands
	}
	return out
}

// SamplingWeight is a component's unnormalised selection probability.
func SamplingWeight(c model.PromptComponent, unusedFloor float64) float64 {
	w := c.Fitness()
	if math.IsNaN(w) || w < 0 {
		w = 0
	}
	if c.UsageCount == 0 && w < unusedFloor {
		w = unusedFloor
	}
	return w
}

// sample picks from pool with probability proportional to SamplingWeight,
// using u in [0,1). All-zero weights fall back to uniform.
func sample(pool []model.PromptComponent, u, unusedFloor float64) model.PromptComponent {
	if len(pool) == 0 {
		return model.PromptComponent{}
	}
	var total float64
	weights := make([]float64, len(pool))
	for i, c := range pool {
		weights[i] = SamplingWeight(c, unusedFloor)
		total += weights[i]
	}
	if total <= 0 {
		return pool[int(u*float64(len(pool)))%len(pool)]
	}
	target := u * total
	for i, w := range weights {
		if target < w {
			return pool[i]
		}
		target -= w
	}
	return pool[len(pool)-1]
}

// RecordOutcome folds quality into every component of sel. Each component
// is updated atomically; components evicted since selection are skipped.
func (s *Selector) RecordOutcome(ctx context.Context, sel model.Selection, quality float64) error {
	if math.IsNaN(quality) || math.IsInf(quality, 0) {
		return goerr.New("quality must be finite", goerr.V("quality", quality))
	}
	q := math.Max(0, math.Min(1, quality))
	alpha := s.cfg.LearningRate

	for _, id := range sel.ComponentIDs() {
		_, err := s.repo.Update(id, func(c *model.PromptComponent) {
			c.UsageCount++
			c.SuccessRate = math.Max(0, math.Min(1, c.SuccessRate*(1-alpha)+q*alpha))
			c.Weight = components.WeightFor(c.SuccessRate, s.cfg.MinWeight)
		})
		switch {
		case err == nil:
		case errors.Is(err, model.ErrNotFound):
			logging.From(ctx).Debug("component gone before feedback", "id", id)
		default:
			return goerr.Wrap(err, "failed to record outcome", goerr.V("component", id), goerr.V("selection", sel.ID))
		}
	}
	return nil
}
