// Package config defines every tunable of the engine and loads it from
// defaults, an optional YAML file and the environment.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"
)

// Config is the full configuration surface.
type Config struct {
	// DBPath is the SQLite file backing memories, components and threads.
	DBPath   string `yaml:"db_path"`
	LogLevel string `yaml:"log_level"`
	// Profile names the active planner profile.
	Profile   string           `yaml:"profile"`
	Overrides PlannerOverrides `yaml:"overrides"`

	Planner     PlannerConfig     `yaml:"planner"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Selector    SelectorConfig    `yaml:"selector"`
	Feedback    FeedbackConfig    `yaml:"feedback"`
	History     HistoryConfig     `yaml:"history"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Completion  CompletionConfig  `yaml:"completion"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
}

// PlannerConfig tunes the resource planner outside the profile constants.
type PlannerConfig struct {
	// StatsCacheTTL bounds how stale the cached memory count may be.
	StatsCacheTTL time.Duration `yaml:"stats_cache_ttl"`
}

// RetrievalConfig weights the semantic ranking score.
type RetrievalConfig struct {
	SimilarityWeight float64 `yaml:"similarity_weight"`
	ImportanceWeight float64 `yaml:"importance_weight"`
	RecencyWeight    float64 `yaml:"recency_weight"`
	HalfLifeDays     float64 `yaml:"half_life_days"`
	// TagBoost is added to the score of records whose tags appear in the query.
	TagBoost float64 `yaml:"tag_boost"`
	// CandidateMultiplier sizes the candidate pool relative to the semantic count.
	CandidateMultiplier int `yaml:"candidate_multiplier"`
	// TimeShare is the fraction of the plan's processing time given to retrieval.
	TimeShare float64 `yaml:"time_share"`
}

// SelectorConfig tunes component sampling, experimentation and learning.
type SelectorConfig struct {
	ExperimentationRate float64 `yaml:"experimentation_rate"`
	LearningRate        float64 `yaml:"learning_rate"`
	MinWeight           float64 `yaml:"min_weight"`
	UnusedFloor         float64 `yaml:"unused_floor"`
	PopulationCap       int     `yaml:"population_cap"`
	CombineThreshold    float64 `yaml:"combine_threshold"`
	InheritFraction     float64 `yaml:"inherit_fraction"`
	// MutationShare is the chance an experiment mutates rather than combines.
	MutationShare float64 `yaml:"mutation_share"`
	// Seed fixes the sampling sequence; 0 seeds from the clock.
	Seed int64 `yaml:"seed"`
	// GenerateWithCompletion lets experiments ask the completion service for text.
	GenerateWithCompletion bool          `yaml:"generate_with_completion"`
	GeneratorTimeout       time.Duration `yaml:"generator_timeout"`
}

// FeedbackConfig sizes the deferred update queue.
type FeedbackConfig struct {
	QueueSize           int     `yaml:"queue_size"`
	LowQualityThreshold float64 `yaml:"low_quality_threshold"`
}

// HistoryConfig bounds the short-term history and rolling summary.
type HistoryConfig struct {
	MaxMessages   int `yaml:"max_messages"`
	TokenBudget   int `yaml:"token_budget"`
	SummaryTokens int `yaml:"summary_tokens"`
}

// EmbeddingConfig selects the embedding provider. An empty provider disables
// vector similarity and retrieval falls back to term matching.
type EmbeddingConfig struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	URL       string `yaml:"url"`
	APIKey    string `yaml:"-"`
	Dims      int    `yaml:"dims"`
	CacheSize int64  `yaml:"cache_size"`
}

// CompletionConfig selects the completion provider.
type CompletionConfig struct {
	Provider  string        `yaml:"provider"`
	Model     string        `yaml:"model"`
	APIKey    string        `yaml:"-"`
	MaxTokens int           `yaml:"max_tokens"`
	Timeout   time.Duration `yaml:"timeout"`
}

// MaintenanceConfig holds cron specs for background jobs.
type MaintenanceConfig struct {
	FlushSchedule string `yaml:"flush_schedule"`
	PruneSchedule string `yaml:"prune_schedule"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	home, _ := os.UserHomeDir()
	return Config{
		DBPath:   filepath.Join(home, ".memcompose", "memory.db"),
		LogLevel: "info",
		Profile:  DefaultProfile,
		Planner:  PlannerConfig{StatsCacheTTL: 30 * time.Second},
		Retrieval: RetrievalConfig{
			SimilarityWeight:    0.5,
			ImportanceWeight:    0.3,
			RecencyWeight:       0.2,
			HalfLifeDays:        14,
			TagBoost:            0.1,
			CandidateMultiplier: 4,
			TimeShare:           0.6,
		},
		Selector: SelectorConfig{
			ExperimentationRate: 0.1,
			LearningRate:        0.1,
			MinWeight:           0.1,
			UnusedFloor:         0.25,
			PopulationCap:       20,
			CombineThreshold:    0.8,
			InheritFraction:     0.8,
			MutationShare:       0.5,
			GeneratorTimeout:    5 * time.Second,
		},
		Feedback: FeedbackConfig{QueueSize: 256, LowQualityThreshold: 0.4},
		History:  HistoryConfig{MaxMessages: 10, TokenBudget: 600, SummaryTokens: 200},
		Embedding: EmbeddingConfig{
			CacheSize: 4096,
		},
		Completion: CompletionConfig{
			MaxTokens: 1024,
			Timeout:   60 * time.Second,
		},
		Maintenance: MaintenanceConfig{
			FlushSchedule: "@every 1m",
			PruneSchedule: "@every 10m",
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (if non-empty)
// and the environment, in that order.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, goerr.Wrap(err, "failed to read config file", goerr.V("file", path))
		}
		if err := validateYAML(raw); err != nil {
			return cfg, goerr.Wrap(err, "invalid config file", goerr.V("file", path))
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, goerr.Wrap(err, "failed to parse config file", goerr.V("file", path))
		}
	}
	applyEnv(&cfg)

	if _, err := cfg.ActiveProfile(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ActiveProfile resolves the configured profile with its overrides.
func (c Config) ActiveProfile() (Profile, error) {
	return ResolveProfile(c.Profile, c.Overrides)
}

func applyEnv(c *Config) {
	c.DBPath = envOr("MEMCOMPOSE_DB", c.DBPath)
	c.Profile = envOr("MEMCOMPOSE_PROFILE", c.Profile)
	c.LogLevel = envOr("MEMCOMPOSE_LOG_LEVEL", c.LogLevel)
	c.Embedding.Provider = envOr("MEMCOMPOSE_EMBED_PROVIDER", c.Embedding.Provider)
	c.Embedding.Model = envOr("MEMCOMPOSE_EMBED_MODEL", c.Embedding.Model)
	c.Embedding.URL = envOr("MEMCOMPOSE_EMBED_URL", c.Embedding.URL)
	c.Completion.Provider = envOr("MEMCOMPOSE_COMPLETION_PROVIDER", c.Completion.Provider)
	c.Completion.Model = envOr("MEMCOMPOSE_COMPLETION_MODEL", c.Completion.Model)

	if v := os.Getenv("MEMCOMPOSE_SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Selector.Seed = n
		}
	}

	switch c.Completion.Provider {
	case "anthropic":
		c.Completion.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	case "gemini":
		c.Completion.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	switch c.Embedding.Provider {
	case "openai":
		c.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
	case "gemini":
		c.Embedding.APIKey = os.Getenv("GEMINI_API_KEY")
	}
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

// validateYAML checks a raw YAML document against the embedded schema.
func validateYAML(raw []byte) error {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return goerr.Wrap(err, "failed to parse YAML")
	}
	if doc == nil {
		return nil
	}
	// round-trip through JSON so the validator sees plain JSON values
	b, err := json.Marshal(doc)
	if err != nil {
		return goerr.Wrap(err, "config is not representable as JSON")
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return goerr.Wrap(err, "failed to decode config JSON")
	}
	if err := configSchema.Validate(v); err != nil {
		return goerr.Wrap(err, "schema validation failed")
	}
	return nil
}
