package planner

import (
	"time"

	"github.com/rcliao/memcompose/internal/model"
)

// Metrics summarizes planner activity and the observed answer quality per
// memory level.
type Metrics struct {
	TotalPlans        int                           `json:"total_plans"`
	DynamicPlans      int                           `json:"dynamic_plans"`
	FallbackPlans     int                           `json:"fallback_plans"`
	PerformanceScaled int                           `json:"performance_scaled"`
	AvgPlanTimeMs     float64                       `json:"avg_plan_time_ms"`
	AvgComplexity     float64                       `json:"avg_complexity"`
	LevelQuality      map[model.MemoryLevel]float64 `json:"level_quality"`
	LevelSamples      map[model.MemoryLevel]int     `json:"level_samples"`
}

func newMetrics() Metrics {
	return Metrics{
		LevelQuality: map[model.MemoryLevel]float64{},
		LevelSamples: map[model.MemoryLevel]int{},
	}
}

func (p *Planner) record(plan model.MemoryPlan, degraded bool, took time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	m := &p.metrics
	m.TotalPlans++
	if degraded {
		m.FallbackPlans++
	} else {
		m.DynamicPlans++
	}
	if plan.PerformanceScaled {
		m.PerformanceScaled++
	}
	n := float64(m.TotalPlans)
	m.AvgPlanTimeMs += (float64(took.Microseconds())/1000 - m.AvgPlanTimeMs) / n
	m.AvgComplexity += (plan.ComplexityScore - m.AvgComplexity) / n
}

// RecordOutcome folds an observed quality for a plan level into an
// exponential moving average with rate alpha.
func (p *Planner) RecordOutcome(level model.MemoryLevel, quality, alpha float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	m := &p.metrics
	if m.LevelSamples[level] == 0 {
		m.LevelQuality[level] = quality
	} else {
		m.LevelQuality[level] = m.LevelQuality[level]*(1-alpha) + quality*alpha
	}
	m.LevelSamples[level]++
}

// Metrics returns a copy of the current metrics.
func (p *Planner) Metrics() Metrics {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := p.metrics
	out.LevelQuality = make(map[model.MemoryLevel]float64, len(p.metrics.LevelQuality))
	for k, v := range p.metrics.LevelQuality {
		out.LevelQuality[k] = v
	}
	out.LevelSamples = make(map[model.MemoryLevel]int, len(p.metrics.LevelSamples))
	for k, v := range p.metrics.LevelSamples {
		out.LevelSamples[k] = v
	}
	return out
}
