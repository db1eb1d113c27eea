package selector_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/rcliao/memcompose/internal/completion"
	"github.com/rcliao/memcompose/internal/components"
	"github.com/rcliao/memcompose/internal/config"
	"github.com/rcliao/memcompose/internal/model"
	"github.com/rcliao/memcompose/internal/selector"
)

var conv = model.NewConversationContext("thread-1")

func cfg(rate float64, seed int64) config.SelectorConfig {
	c := config.Default().Selector
	c.ExperimentationRate = rate
	c.Seed = seed
	return c
}

func personality(id string, weight, success float64, usage int) model.PromptComponent {
	return model.PromptComponent{
		ID:          id,
		Category:    model.CategoryPersonality,
		Template:    "You are " + id + ".",
		Weight:      weight,
		SuccessRate: success,
		UsageCount:  usage,
		Provenance:  model.ProvenanceSeed,
		CreatedAt:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func repoWith(t *testing.T, comps ...model.PromptComponent) *components.Repository {
	t.Helper()
	r := components.New(0)
	for _, c := range comps {
		_, err := r.Add(context.Background(), c)
		gt.NoError(t, err)
	}
	return r
}

func countPicks(ctx context.Context, s *selector.Selector, n int) map[string]int {
	counts := map[string]int{}
	for i := 0; i < n; i++ {
		r := s.Select(ctx, model.CategoryPersonality, conv)
		counts[r.Value.ID()]++
	}
	return counts
}

func TestSelectAllIsDeterministicWithSeed(t *testing.T) {
	ctx := context.Background()
	a := selector.New(components.NewSeeded(20), cfg(0, 42))
	b := selector.New(components.NewSeeded(20), cfg(0, 42))

	for i := 0; i < 25; i++ {
		oa := a.SelectAll(ctx, conv, selector.Options{ThreadID: "t", HasMemory: true})
		ob := b.SelectAll(ctx, conv, selector.Options{ThreadID: "t", HasMemory: true})
		gt.Equal(t, oa.Selection.Choices, ob.Selection.Choices)
	}
}

func TestSelectAllIsDeterministicWhileExperimenting(t *testing.T) {
	ctx := context.Background()
	clock := selector.WithClock(func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) })
	a := selector.New(components.NewSeeded(20), cfg(0.1, 42), clock)
	b := selector.New(components.NewSeeded(20), cfg(0.1, 42), clock)

	var experiments int
	for i := 0; i < 50; i++ {
		oa := a.SelectAll(ctx, conv, selector.Options{ThreadID: "t", HasMemory: true})
		ob := b.SelectAll(ctx, conv, selector.Options{ThreadID: "t", HasMemory: true})
		gt.Equal(t, oa.Selection.Choices, ob.Selection.Choices)
		gt.Equal(t, oa.Selection.Experimental, ob.Selection.Experimental)
		experiments += len(oa.Selection.Experimental)
	}
	gt.N(t, experiments).Greater(0)
}

func TestSelectAllChoosesOnePerCategory(t *testing.T) {
	s := selector.New(components.NewSeeded(20), cfg(0, 7))
	out := s.SelectAll(context.Background(), conv, selector.Options{ThreadID: "t", Level: model.LevelLight})

	gt.False(t, out.Degraded)
	gt.Equal(t, len(out.Selection.Choices), len(model.Categories))
	gt.Equal(t, out.Selection.Choices[model.CategoryMemoryGuidance], model.NoneComponent)
	for _, cat := range []model.Category{model.CategoryPersonality, model.CategoryTaskInstruction} {
		gt.True(t, out.Selection.Choices[cat] != model.NoneComponent).Describe(string(cat) + " is required")
	}
	gt.A(t, out.Selection.ComponentIDs()).Length(len(out.Components))
}

func TestOptionalCategoryWithoutCandidatesIsNone(t *testing.T) {
	s := selector.New(repoWith(t, personality("p", 1, 0.5, 0)), cfg(0, 1))
	r := s.Select(context.Background(), model.CategoryOutputFormatter, conv)
	gt.False(t, r.Degraded)
	gt.True(t, r.Value.None)
	gt.Equal(t, r.Value.ID(), model.NoneComponent)

	// a required category never resolves to none
	r = s.Select(context.Background(), model.CategoryTaskInstruction, conv)
	gt.False(t, r.Value.None)
}

func TestWeightedSamplingRatio(t *testing.T) {
	s := selector.New(repoWith(t,
		personality("double", 2, 0.5, 5),
		personality("single", 1, 0.5, 5),
	), cfg(0, 99))

	counts := countPicks(context.Background(), s, 30000)
	ratio := float64(counts["double"]) / float64(counts["single"])
	gt.True(t, ratio > 1.8 && ratio < 2.2).Describe("twice the weight is picked about twice as often")
}

func TestUnusedComponentsCanBeSampled(t *testing.T) {
	s := selector.New(repoWith(t,
		personality("proven", 2, 0.9, 50),
		personality("untested", 0, 0, 0),
	), cfg(0, 3))

	counts := countPicks(context.Background(), s, 5000)
	gt.True(t, counts["untested"] > 0)
	gt.True(t, counts["proven"] > counts["untested"])
}

func TestRepositoryUnavailableFallsBackToSeeds(t *testing.T) {
	repo := components.NewSeeded(20)
	repo.Close()
	s := selector.New(repo, cfg(0.5, 11))

	out := s.SelectAll(context.Background(), conv, selector.Options{ThreadID: "t", HasMemory: true})
	gt.True(t, out.Degraded)
	gt.True(t, errors.Is(out.Err, model.ErrRepositoryUnavailable))
	for _, cat := range model.Categories {
		id := out.Selection.Choices[cat]
		gt.True(t, strings.HasPrefix(id, "seed-")).Describe(string(cat) + " falls back to a seed")
	}
	gt.A(t, out.Selection.Experimental).Length(0)
}

func TestExperimentMutatesFittest(t *testing.T) {
	repo := repoWith(t, personality("best", 2, 0.9, 10), personality("other", 1, 0.4, 10))
	c := cfg(1, 5)
	c.MutationShare = 1
	s := selector.New(repo, c)

	out := s.SelectAll(context.Background(), conv, selector.Options{ThreadID: "t"})
	gt.A(t, out.Selection.Experimental).Length(2)

	got := out.Components[model.CategoryPersonality]
	gt.Equal(t, got.Provenance, model.ProvenanceMutated)
	gt.Equal(t, got.ParentIDs, []string{"best"})
	gt.Equal(t, got.UsageCount, 0)
	gt.True(t, strings.HasPrefix(got.Template, "You are best."))
	gt.Equal(t, got.Weight, 2*c.InheritFraction)
	gt.Equal(t, got.SuccessRate, 0.9*c.InheritFraction)

	stored, err := repo.Get(got.ID)
	gt.NoError(t, err)
	gt.Equal(t, stored.Template, got.Template)
}

func TestExperimentCombinesHighPerformers(t *testing.T) {
	repo := repoWith(t, personality("alpha", 2, 0.95, 10), personality("beta", 1.8, 0.9, 10), personality("gamma", 1, 0.3, 10))
	c := cfg(1, 5)
	c.MutationShare = 0
	s := selector.New(repo, c)

	r := s.Select(context.Background(), model.CategoryPersonality, conv)
	gt.True(t, r.Value.Experimental)
	got := r.Value.Component
	gt.Equal(t, got.Provenance, model.ProvenanceGenerated)
	gt.Equal(t, got.ParentIDs, []string{"alpha", "beta"})
	gt.S(t, got.Template).Contains("You are alpha. Additionally, you are beta.")
}

func TestExperimentFallsBackToTemplate(t *testing.T) {
	repo := repoWith(t, personality("meh", 1, 0.5, 10))
	c := cfg(1, 5)
	c.MutationShare = 0
	s := selector.New(repo, c)

	r := s.Select(context.Background(), model.CategoryPersonality, conv)
	got := r.Value.Component
	gt.Equal(t, got.Provenance, model.ProvenanceGenerated)
	gt.S(t, got.Template).Contains("{{.ConversationType}}")
	gt.A(t, got.ParentIDs).Length(0)
}

type fakeGenerator struct {
	text string
	err  error
}

func (f fakeGenerator) Generate(context.Context, selector.GenerateRequest) (string, error) {
	return f.text, f.err
}

func TestGeneratorTextAndFallback(t *testing.T) {
	c := cfg(1, 5)
	c.MutationShare = 1

	s := selector.New(repoWith(t, personality("best", 2, 0.9, 10)), c,
		selector.WithGenerator(fakeGenerator{text: "You are a calm and thoughtful companion."}))
	r := s.Select(context.Background(), model.CategoryPersonality, conv)
	gt.Equal(t, r.Value.Component.Template, "You are a calm and thoughtful companion.")

	s = selector.New(repoWith(t, personality("best", 2, 0.9, 10)), c,
		selector.WithGenerator(fakeGenerator{err: errors.New("timeout")}))
	r = s.Select(context.Background(), model.CategoryPersonality, conv)
	gt.True(t, strings.HasPrefix(r.Value.Component.Template, "You are best. "))
}

type fakeCompletion struct {
	text string
}

func (f fakeCompletion) Complete(context.Context, string, []model.Message) (completion.Response, error) {
	return completion.Response{Text: f.text}, nil
}

func TestCompletionGeneratorValidates(t *testing.T) {
	ctx := context.Background()
	req := selector.GenerateRequest{Category: model.CategoryTaskInstruction, Context: conv}

	text, err := selector.NewCompletionGenerator(fakeCompletion{text: `"Answer step by step."`}).Generate(ctx, req)
	gt.NoError(t, err)
	gt.Equal(t, text, "Answer step by step.")

	_, err = selector.NewCompletionGenerator(fakeCompletion{text: "Use {{.Broken"}).Generate(ctx, req)
	gt.Error(t, err)

	_, err = selector.NewCompletionGenerator(fakeCompletion{text: "one\ntwo"}).Generate(ctx, req)
	gt.Error(t, err)
}

func TestRecordOutcomeMovingAverage(t *testing.T) {
	repo := repoWith(t, personality("p", 1, 0.5, 0))
	s := selector.New(repo, cfg(0, 1))
	sel := model.Selection{ID: "s1", Choices: map[model.Category]string{
		model.CategoryPersonality:   "p",
		model.CategoryContextFramer: model.NoneComponent,
	}}

	gt.NoError(t, s.RecordOutcome(context.Background(), sel, 1.0))
	c, err := repo.Get("p")
	gt.NoError(t, err)
	gt.Equal(t, c.UsageCount, 1)
	gt.Number(t, c.SuccessRate).Greater(0.549)
	gt.Number(t, c.SuccessRate).Less(0.551)
	gt.Number(t, c.Weight).Greater(1.09)

	gt.Error(t, s.RecordOutcome(context.Background(), sel, nan()))
}

func nan() float64 {
	var zero float64
	return zero / zero
}

func TestConcurrentOutcomesAreNotLost(t *testing.T) {
	repo := repoWith(t, personality("p", 1, 0.5, 0))
	s := selector.New(repo, cfg(0, 1))
	sel := model.Selection{Choices: map[model.Category]string{model.CategoryPersonality: "p"}}

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			gt.NoError(t, s.RecordOutcome(context.Background(), sel, 0.7))
		}()
	}
	wg.Wait()

	c, err := repo.Get("p")
	gt.NoError(t, err)
	gt.Equal(t, c.UsageCount, 100)
}

func TestPositiveFeedbackRaisesSuccessAndFrequency(t *testing.T) {
	ctx := context.Background()
	repo := repoWith(t, personality("favored", 1, 0.5, 0), personality("untouched", 1, 0.5, 0))
	s := selector.New(repo, cfg(0, 21))

	before := countPicks(ctx, s, 4000)

	sel := model.Selection{Choices: map[model.Category]string{model.CategoryPersonality: "favored"}}
	prev := 0.5
	for i := 0; i < 50; i++ {
		gt.NoError(t, s.RecordOutcome(ctx, sel, 1.0))
		c, err := repo.Get("favored")
		gt.NoError(t, err)
		gt.True(t, c.SuccessRate > prev).Describe("success rate strictly increases")
		prev = c.SuccessRate
	}
	gt.Number(t, prev).Greater(0.99)

	after := countPicks(ctx, s, 4000)
	shareBefore := float64(before["favored"]) / 4000
	shareAfter := float64(after["favored"]) / 4000
	gt.True(t, shareAfter > shareBefore)
	gt.Number(t, shareAfter).Greater(0.75)

	untouched, err := repo.Get("untouched")
	gt.NoError(t, err)
	gt.Equal(t, untouched.UsageCount, 0)
}
