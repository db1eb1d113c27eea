package model

import "fmt"

// MemoryLevel is the router's coarse decision on how much memory to pull in.
type MemoryLevel string

const (
	LevelNone     MemoryLevel = "none"
	LevelLight    MemoryLevel = "light"
	LevelModerate MemoryLevel = "moderate"
	LevelFull     MemoryLevel = "full"
)

// Levels lists every level from cheapest to most expensive.
var Levels = []MemoryLevel{LevelNone, LevelLight, LevelModerate, LevelFull}

// ParseLevel converts a level name.
func ParseLevel(s string) (MemoryLevel, error) {
	for _, l := range Levels {
		if string(l) == s {
			return l, nil
		}
	}
	return "", fmt.Errorf("unknown memory level %q", s)
}

// Strategy names a retrieval strategy enabled by a plan.
type Strategy string

const (
	StrategyRecent   Strategy = "recent"
	StrategySemantic Strategy = "semantic"
	StrategyTag      Strategy = "tag"
	StrategyKeyword  Strategy = "keyword"
	StrategyTemporal Strategy = "temporal"
)

// MemoryPlan is the per-request retrieval and token budget.
type MemoryPlan struct {
	Level               MemoryLevel `json:"level"`
	RecentCount         int         `json:"recent_count"`
	SemanticCount       int         `json:"semantic_count"`
	TokenBudget         int         `json:"token_budget"`
	MaxProcessingTimeMs int         `json:"max_processing_time_ms"`
	ComplexityScore     float64     `json:"complexity_score"`
	SizeFactor          float64     `json:"size_factor"`
	Strategies          []Strategy  `json:"strategies,omitempty"`
	EstimatedTimeMs     float64     `json:"estimated_time_ms"`
	PerformanceScaled   bool        `json:"performance_scaled,omitempty"`
	Confidence          float64     `json:"confidence"`
	Profile             string      `json:"profile"`
	Degraded            bool        `json:"degraded"`
	Reason              string      `json:"reason,omitempty"`
}

// Uses reports whether the plan enables strategy s.
func (p MemoryPlan) Uses(s Strategy) bool {
	for _, x := range p.Strategies {
		if x == s {
			return true
		}
	}
	return false
}

// Empty reports whether the plan retrieves nothing.
func (p MemoryPlan) Empty() bool {
	return p.Level == LevelNone || p.RecentCount+p.SemanticCount == 0
}
