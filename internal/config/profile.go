package config

import (
	"sort"

	"github.com/m-mizutani/goerr/v2"

	"github.com/rcliao/memcompose/internal/model"
)

// TierBase holds the per-level base allocation that the planner scales.
type TierBase struct {
	Recent   int `yaml:"recent" json:"recent"`
	Semantic int `yaml:"semantic" json:"semantic"`
	Tokens   int `yaml:"tokens" json:"tokens"`
}

// Profile is a named set of planner constants.
type Profile struct {
	Name        string                         `yaml:"name" json:"name"`
	Description string                         `yaml:"description" json:"description"`
	Tiers       map[model.MemoryLevel]TierBase `yaml:"tiers" json:"tiers"`

	SmallDBThreshold int     `yaml:"small_db_threshold" json:"small_db_threshold"`
	LargeDBThreshold int     `yaml:"large_db_threshold" json:"large_db_threshold"`
	LargeDBLogFactor float64 `yaml:"large_db_log_factor" json:"large_db_log_factor"`

	ShortQueryWords   int     `yaml:"short_query_words" json:"short_query_words"`
	ShortQueryFactor  float64 `yaml:"short_query_factor" json:"short_query_factor"`
	MediumQueryWords  int     `yaml:"medium_query_words" json:"medium_query_words"`
	MediumQueryFactor float64 `yaml:"medium_query_factor" json:"medium_query_factor"`
	LongQueryWords    int     `yaml:"long_query_words" json:"long_query_words"`
	LongQueryFactor   float64 `yaml:"long_query_factor" json:"long_query_factor"`
	TechnicalBoost    float64 `yaml:"technical_boost" json:"technical_boost"`
	MemoryBoost       float64 `yaml:"memory_boost" json:"memory_boost"`
	QuestionBoost     float64 `yaml:"question_boost" json:"question_boost"`

	MaxMemories         int `yaml:"max_memories" json:"max_memories"`
	MinMemories         int `yaml:"min_memories" json:"min_memories"`
	TokenFloor          int `yaml:"token_floor" json:"token_floor"`
	TokenCeiling        int `yaml:"token_ceiling" json:"token_ceiling"`
	MaxProcessingTimeMs int `yaml:"max_processing_time_ms" json:"max_processing_time_ms"`
}

// Tier returns the base allocation for level, zero for unknown levels.
func (p Profile) Tier(level model.MemoryLevel) TierBase {
	return p.Tiers[level]
}

// Validate checks the relations the planner relies on.
func (p Profile) Validate() error {
	switch {
	case p.TokenFloor <= 0:
		return goerr.New("token floor must be positive", goerr.V("profile", p.Name))
	case p.TokenCeiling < p.TokenFloor:
		return goerr.New("token ceiling below floor", goerr.V("profile", p.Name), goerr.V("floor", p.TokenFloor), goerr.V("ceiling", p.TokenCeiling))
	case p.MaxMemories < 0 || p.MinMemories > p.MaxMemories:
		return goerr.New("invalid memory bounds", goerr.V("profile", p.Name))
	case p.SmallDBThreshold <= 0 || p.LargeDBThreshold <= p.SmallDBThreshold:
		return goerr.New("invalid db size thresholds", goerr.V("profile", p.Name))
	case p.ShortQueryWords <= 0 || p.MediumQueryWords <= p.ShortQueryWords || p.LongQueryWords < p.MediumQueryWords:
		return goerr.New("invalid query length thresholds", goerr.V("profile", p.Name),
			goerr.V("short", p.ShortQueryWords), goerr.V("medium", p.MediumQueryWords), goerr.V("long", p.LongQueryWords))
	case p.ShortQueryFactor <= 0 || p.MediumQueryFactor <= 0 || p.LongQueryFactor <= 0:
		return goerr.New("query length factors must be positive", goerr.V("profile", p.Name))
	case p.MaxProcessingTimeMs <= 0:
		return goerr.New("max processing time must be positive", goerr.V("profile", p.Name))
	}
	for _, l := range model.Levels {
		tb, ok := p.Tiers[l]
		if !ok {
			return goerr.New("missing tier", goerr.V("profile", p.Name), goerr.V("level", l))
		}
		if tb.Recent < 0 || tb.Semantic < 0 || tb.Tokens < 0 {
			return goerr.New("negative tier base", goerr.V("profile", p.Name), goerr.V("level", l))
		}
	}
	return nil
}

func baseProfile() Profile {
	return Profile{
		SmallDBThreshold:  50,
		LargeDBThreshold:  500,
		LargeDBLogFactor:  0.5,
		ShortQueryWords:   3,
		ShortQueryFactor:  0.8,
		MediumQueryWords:  10,
		MediumQueryFactor: 0.95,
		LongQueryWords:    30,
		LongQueryFactor:   1.3,
		TechnicalBoost:    1.3,
		MemoryBoost:       1.4,
		QuestionBoost:     1.2,
		MinMemories:       3,
	}
}

func tiers(light, moderate, full TierBase) map[model.MemoryLevel]TierBase {
	return map[model.MemoryLevel]TierBase{
		model.LevelNone:     {},
		model.LevelLight:    light,
		model.LevelModerate: moderate,
		model.LevelFull:     full,
	}
}

// Profiles are the built-in named planner profiles.
var Profiles = map[string]Profile{
	"balanced": func() Profile {
		p := baseProfile()
		p.Name = "balanced"
		p.Description = "Default trade-off between latency and recall"
		p.Tiers = tiers(TierBase{5, 2, 600}, TierBase{10, 5, 1200}, TierBase{20, 10, 2400})
		p.MaxMemories = 60
		p.TokenFloor = 200
		p.TokenCeiling = 3000
		p.MaxProcessingTimeMs = 300
		return p
	}(),
	"performance": func() Profile {
		p := baseProfile()
		p.Name = "performance"
		p.Description = "Small budgets for fast turns"
		p.Tiers = tiers(TierBase{3, 1, 400}, TierBase{6, 3, 800}, TierBase{12, 6, 1600})
		p.MaxMemories = 30
		p.TokenFloor = 150
		p.TokenCeiling = 2000
		p.MaxProcessingTimeMs = 150
		return p
	}(),
	"quality": func() Profile {
		p := baseProfile()
		p.Name = "quality"
		p.Description = "Large budgets for maximum recall"
		p.Tiers = tiers(TierBase{8, 4, 800}, TierBase{15, 10, 1600}, TierBase{30, 20, 3200})
		p.MaxMemories = 100
		p.TokenFloor = 300
		p.TokenCeiling = 4000
		p.MaxProcessingTimeMs = 600
		return p
	}(),
	"development": func() Profile {
		p := baseProfile()
		p.Name = "development"
		p.Description = "Tight caps and a generous time limit for debugging"
		p.Tiers = tiers(TierBase{3, 2, 400}, TierBase{5, 3, 800}, TierBase{8, 5, 1200})
		p.MaxMemories = 20
		p.TokenFloor = 200
		p.TokenCeiling = 1600
		p.MaxProcessingTimeMs = 1000
		return p
	}(),
}

// DefaultProfile names the profile used when none is configured.
const DefaultProfile = "balanced"

// ProfileNames returns the built-in profile names, sorted.
func ProfileNames() []string {
	names := make([]string, 0, len(Profiles))
	for n := range Profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// PlannerOverrides replaces individual numeric parameters of the active
// profile. Nil fields keep the profile value.
type PlannerOverrides struct {
	SmallDBThreshold    *int     `yaml:"small_db_threshold,omitempty" json:"small_db_threshold,omitempty"`
	LargeDBThreshold    *int     `yaml:"large_db_threshold,omitempty" json:"large_db_threshold,omitempty"`
	LargeDBLogFactor    *float64 `yaml:"large_db_log_factor,omitempty" json:"large_db_log_factor,omitempty"`
	ShortQueryWords     *int     `yaml:"short_query_words,omitempty" json:"short_query_words,omitempty"`
	ShortQueryFactor    *float64 `yaml:"short_query_factor,omitempty" json:"short_query_factor,omitempty"`
	MediumQueryWords    *int     `yaml:"medium_query_words,omitempty" json:"medium_query_words,omitempty"`
	MediumQueryFactor   *float64 `yaml:"medium_query_factor,omitempty" json:"medium_query_factor,omitempty"`
	LongQueryWords      *int     `yaml:"long_query_words,omitempty" json:"long_query_words,omitempty"`
	LongQueryFactor     *float64 `yaml:"long_query_factor,omitempty" json:"long_query_factor,omitempty"`
	TechnicalBoost      *float64 `yaml:"technical_boost,omitempty" json:"technical_boost,omitempty"`
	MemoryBoost         *float64 `yaml:"memory_boost,omitempty" json:"memory_boost,omitempty"`
	QuestionBoost       *float64 `yaml:"question_boost,omitempty" json:"question_boost,omitempty"`
	MaxMemories         *int     `yaml:"max_memories,omitempty" json:"max_memories,omitempty"`
	MinMemories         *int     `yaml:"min_memories,omitempty" json:"min_memories,omitempty"`
	TokenFloor          *int     `yaml:"token_floor,omitempty" json:"token_floor,omitempty"`
	TokenCeiling        *int     `yaml:"token_ceiling,omitempty" json:"token_ceiling,omitempty"`
	MaxProcessingTimeMs *int     `yaml:"max_processing_time_ms,omitempty" json:"max_processing_time_ms,omitempty"`

	Tiers map[model.MemoryLevel]TierBase `yaml:"tiers,omitempty" json:"tiers,omitempty"`
}

// Apply returns a copy of p with the overrides applied.
func (o PlannerOverrides) Apply(p Profile) Profile {
	setInt := func(dst *int, v *int) {
		if v != nil {
			*dst = *v
		}
	}
	setFloat := func(dst *float64, v *float64) {
		if v != nil {
			*dst = *v
		}
	}

	out := p
	out.Tiers = make(map[model.MemoryLevel]TierBase, len(p.Tiers))
	for k, v := range p.Tiers {
		out.Tiers[k] = v
	}
	for k, v := range o.Tiers {
		out.Tiers[k] = v
	}

	setInt(&out.SmallDBThreshold, o.SmallDBThreshold)
	setInt(&out.LargeDBThreshold, o.LargeDBThreshold)
	setFloat(&out.LargeDBLogFactor, o.LargeDBLogFactor)
	setInt(&out.ShortQueryWords, o.ShortQueryWords)
	setFloat(&out.ShortQueryFactor, o.ShortQueryFactor)
	setInt(&out.MediumQueryWords, o.MediumQueryWords)
	setFloat(&out.MediumQueryFactor, o.MediumQueryFactor)
	setInt(&out.LongQueryWords, o.LongQueryWords)
	setFloat(&out.LongQueryFactor, o.LongQueryFactor)
	setFloat(&out.TechnicalBoost, o.TechnicalBoost)
	setFloat(&out.MemoryBoost, o.MemoryBoost)
	setFloat(&out.QuestionBoost, o.QuestionBoost)
	setInt(&out.MaxMemories, o.MaxMemories)
	setInt(&out.MinMemories, o.MinMemories)
	setInt(&out.TokenFloor, o.TokenFloor)
	setInt(&out.TokenCeiling, o.TokenCeiling)
	setInt(&out.MaxProcessingTimeMs, o.MaxProcessingTimeMs)
	return out
}

// ResolveProfile looks up name and applies overrides.
func ResolveProfile(name string, o PlannerOverrides) (Profile, error) {
	p, ok := Profiles[name]
	if !ok {
		return Profile{}, goerr.New("unknown profile", goerr.V("profile", name), goerr.V("available", ProfileNames()))
	}
	p = o.Apply(p)
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}
