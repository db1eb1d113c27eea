package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/rcliao/memcompose/internal/config"
	"github.com/rcliao/memcompose/internal/model"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	gt.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestBuiltinProfilesAreValid(t *testing.T) {
	gt.A(t, config.ProfileNames()).Length(4)
	for _, name := range config.ProfileNames() {
		p, err := config.ResolveProfile(name, config.PlannerOverrides{})
		gt.NoError(t, err)
		gt.Equal(t, p.Name, name)
		gt.Equal(t, p.Tier(model.LevelNone), config.TierBase{})
	}
}

func TestOverridesApplyWithoutMutatingProfile(t *testing.T) {
	ceiling := 5000
	o := config.PlannerOverrides{
		TokenCeiling: &ceiling,
		Tiers:        map[model.MemoryLevel]config.TierBase{model.LevelFull: {Recent: 1, Semantic: 1, Tokens: 100}},
	}
	p, err := config.ResolveProfile("quality", o)
	gt.NoError(t, err)
	gt.Equal(t, p.TokenCeiling, 5000)
	gt.Equal(t, p.Tier(model.LevelFull).Tokens, 100)

	gt.Equal(t, config.Profiles["quality"].TokenCeiling, 4000)
	gt.Equal(t, config.Profiles["quality"].Tier(model.LevelFull).Tokens, 3200)
}

func TestResolveProfileRejectsInvalid(t *testing.T) {
	_, err := config.ResolveProfile("turbo", config.PlannerOverrides{})
	gt.Error(t, err)

	floor := 900
	ceiling := 100
	_, err = config.ResolveProfile("balanced", config.PlannerOverrides{TokenFloor: &floor, TokenCeiling: &ceiling})
	gt.Error(t, err)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, `
profile: performance
log_level: debug
selector:
  experimentation_rate: 0.2
  seed: 42
completion:
  timeout: 10s
overrides:
  max_memories: 12
`)
	t.Setenv("MEMCOMPOSE_DB", filepath.Join(t.TempDir(), "x.db"))

	cfg, err := config.Load(path)
	gt.NoError(t, err)
	gt.Equal(t, cfg.Profile, "performance")
	gt.Equal(t, cfg.LogLevel, "debug")
	gt.Equal(t, cfg.Selector.ExperimentationRate, 0.2)
	gt.Equal(t, cfg.Selector.Seed, int64(42))
	gt.Equal(t, cfg.Selector.LearningRate, 0.1)
	gt.Equal(t, cfg.Completion.Timeout, 10*time.Second)

	p, err := cfg.ActiveProfile()
	gt.NoError(t, err)
	gt.Equal(t, p.MaxMemories, 12)
}

func TestQueryLengthOverrides(t *testing.T) {
	path := writeFile(t, `
overrides:
  short_query_words: 4
  short_query_factor: 0.6
  medium_query_words: 12
  medium_query_factor: 0.9
  long_query_words: 40
  long_query_factor: 1.5
`)
	cfg, err := config.Load(path)
	gt.NoError(t, err)

	p, err := cfg.ActiveProfile()
	gt.NoError(t, err)
	gt.Equal(t, p.ShortQueryWords, 4)
	gt.Equal(t, p.ShortQueryFactor, 0.6)
	gt.Equal(t, p.MediumQueryWords, 12)
	gt.Equal(t, p.MediumQueryFactor, 0.9)
	gt.Equal(t, p.LongQueryWords, 40)
	gt.Equal(t, p.LongQueryFactor, 1.5)
	gt.Equal(t, config.Profiles["balanced"].ShortQueryWords, 3)
}

func TestQueryLengthThresholdsMustBeOrdered(t *testing.T) {
	short, medium, long := 10, 10, 30
	_, err := config.ResolveProfile("balanced", config.PlannerOverrides{ShortQueryWords: &short, MediumQueryWords: &medium})
	gt.Error(t, err)

	medium, long = 12, 11
	_, err = config.ResolveProfile("balanced", config.PlannerOverrides{MediumQueryWords: &medium, LongQueryWords: &long})
	gt.Error(t, err)

	long = 12
	p, err := config.ResolveProfile("balanced", config.PlannerOverrides{MediumQueryWords: &medium, LongQueryWords: &long})
	gt.NoError(t, err)
	gt.Equal(t, p.LongQueryWords, 12)
}

func TestLoadRejectsSchemaViolations(t *testing.T) {
	for name, body := range map[string]string{
		"unknown key":     "colour: red\n",
		"rate too large":  "selector:\n  experimentation_rate: 1.5\n",
		"unknown profile": "profile: turbo\n",
		"bad duration":    "completion:\n  timeout: soon\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := config.Load(writeFile(t, body))
			gt.Error(t, err)
		})
	}
}

func TestEnvOverridesProfile(t *testing.T) {
	t.Setenv("MEMCOMPOSE_PROFILE", "development")
	cfg, err := config.Load("")
	gt.NoError(t, err)
	gt.Equal(t, cfg.Profile, "development")
}
