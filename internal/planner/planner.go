// Package planner turns a routing level into a bounded MemoryPlan using
// size- and complexity-dependent formulas from the active profile.
package planner

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/rcliao/memcompose/internal/config"
	"github.com/rcliao/memcompose/internal/logging"
	"github.com/rcliao/memcompose/internal/model"
	"github.com/rcliao/memcompose/internal/stage"
)

// Stats describes the memory store as seen by the planner.
type Stats struct {
	TotalMemories int
	// Known is false when the count could not be read.
	Known bool
}

// Planner computes memory plans. It is safe for concurrent use and its
// profile can be swapped at runtime.
type Planner struct {
	profile atomic.Pointer[config.Profile]

	mu      sync.Mutex
	metrics Metrics
}

// New returns a planner using profile p, which is assumed validated.
func New(p config.Profile) *Planner {
	pl := &Planner{metrics: newMetrics()}
	pl.profile.Store(&p)
	return pl
}

// Profile returns the active profile.
func (p *Planner) Profile() config.Profile {
	return *p.profile.Load()
}

// SetProfile validates prof and makes it active for subsequent plans.
func (p *Planner) SetProfile(prof config.Profile) error {
	if err := prof.Validate(); err != nil {
		return err
	}
	p.profile.Store(&prof)
	return nil
}

// Plan computes the plan for level and query. It never fails: a formula
// producing a non-finite or negative value yields the static tier plan
// marked Degraded.
func (p *Planner) Plan(ctx context.Context, level model.MemoryLevel, query string, stats Stats) model.MemoryPlan {
	start := time.Now()
	prof := p.Profile()

	r := stage.Try(func() (model.MemoryPlan, error) {
		return dynamicPlan(prof, level, query, stats)
	}).OrElse(func(err error) model.MemoryPlan {
		logging.From(ctx).Warn("planner formula failed, using static plan", "error", err, "level", level)
		return StaticPlan(prof, level)
	})

	plan := r.Value
	p.record(plan, r.Degraded, time.Since(start))
	return plan
}

func dynamicPlan(prof config.Profile, level model.MemoryLevel, query string, stats Stats) (model.MemoryPlan, error) {
	n := stats.TotalMemories
	if !stats.Known {
		n = prof.SmallDBThreshold
	}
	tier := prof.Tier(level)
	size := SizeFactor(prof, n)
	complexity := Complexity(prof, query)

	recentF := float64(tier.Recent) * size * complexity
	semanticF := float64(tier.Semantic) * math.Sqrt(size) * complexity
	tokensF := float64(tier.Tokens) * complexity
	if !finite(size, complexity, recentF, semanticF, tokensF) {
		return model.MemoryPlan{}, goerr.Wrap(model.ErrPlannerFormula, "non-finite allocation",
			goerr.V("size_factor", size), goerr.V("complexity", complexity),
			goerr.V("recent", recentF), goerr.V("semantic", semanticF), goerr.V("tokens", tokensF))
	}

	recent := int(math.Round(recentF))
	semantic := int(math.Round(semanticF))
	if level != model.LevelNone && tier.Recent > 0 && recent < prof.MinMemories {
		recent = prof.MinMemories
	}

	strategies := strategiesFor(prof, level, complexity, n, semantic)
	est := estimateTimeMs(recent, semantic, len(strategies))
	scaled := false
	if limit := float64(prof.MaxProcessingTimeMs); est > limit {
		f := limit / est
		recent = int(float64(recent) * f)
		semantic = int(float64(semantic) * f)
		est = estimateTimeMs(recent, semantic, len(strategies))
		scaled = true
	}
	recent, semantic = capMemories(recent, semantic, prof.MaxMemories)

	return model.MemoryPlan{
		Level:               level,
		RecentCount:         recent,
		SemanticCount:       semantic,
		TokenBudget:         clampTokens(prof, int(math.Round(tokensF))),
		MaxProcessingTimeMs: prof.MaxProcessingTimeMs,
		ComplexityScore:     complexity,
		SizeFactor:          size,
		Strategies:          strategies,
		EstimatedTimeMs:     est,
		PerformanceScaled:   scaled,
		Confidence:          confidence(complexity, size),
		Profile:             prof.Name,
		Reason:              fmt.Sprintf("complexity=%.2f size_factor=%.2f db_size=%d", complexity, size, n),
	}, nil
}

// StaticPlan is the fixed per-tier plan used when the formulas fail.
func StaticPlan(prof config.Profile, level model.MemoryLevel) model.MemoryPlan {
	tier := prof.Tier(level)
	recent, semantic := capMemories(tier.Recent, tier.Semantic, prof.MaxMemories)
	strategies := strategiesFor(prof, level, 1.0, 0, semantic)
	return model.MemoryPlan{
		Level:               level,
		RecentCount:         recent,
		SemanticCount:       semantic,
		TokenBudget:         clampTokens(prof, tier.Tokens),
		MaxProcessingTimeMs: prof.MaxProcessingTimeMs,
		ComplexityScore:     1.0,
		SizeFactor:          1.0,
		Strategies:          strategies,
		EstimatedTimeMs:     estimateTimeMs(recent, semantic, len(strategies)),
		Confidence:          0.7,
		Profile:             prof.Name,
		Degraded:            true,
		Reason:              "static_fallback",
	}
}

func strategiesFor(prof config.Profile, level model.MemoryLevel, complexity float64, n, semantic int) []model.Strategy {
	if level == model.LevelNone {
		return nil
	}
	s := []model.Strategy{model.StrategyRecent}
	if semantic > 0 {
		s = append(s, model.StrategySemantic)
	}
	if level == model.LevelModerate || level == model.LevelFull {
		s = append(s, model.StrategyKeyword)
	}
	if level == model.LevelFull {
		s = append(s, model.StrategyTag)
		if n >= prof.LargeDBThreshold || complexity >= 2.5 {
			s = append(s, model.StrategyTemporal)
		}
	}
	return s
}

// capMemories shrinks both counts proportionally so their sum fits max.
func capMemories(recent, semantic, max int) (int, int) {
	if recent < 0 {
		recent = 0
	}
	if semantic < 0 {
		semantic = 0
	}
	total := recent + semantic
	if total <= max {
		return recent, semantic
	}
	if max <= 0 {
		return 0, 0
	}
	recent = recent * max / total
	semantic = max - recent
	return recent, semantic
}

func clampTokens(prof config.Profile, tokens int) int {
	if tokens < prof.TokenFloor {
		return prof.TokenFloor
	}
	if tokens > prof.TokenCeiling {
		return prof.TokenCeiling
	}
	return tokens
}
