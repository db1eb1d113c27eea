package router_test

import (
	"context"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/rcliao/memcompose/internal/model"
	"github.com/rcliao/memcompose/internal/router"
)

func TestClassify(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name  string
		query string
		level model.MemoryLevel
	}{
		{"greeting", "Hi", model.LevelNone},
		{"greeting with punctuation", "hello!", model.LevelNone},
		{"recall question", "What did you tell me about my career goals?", model.LevelFull},
		{"memory keyword", "Do you remember the book I was reading last month?", model.LevelFull},
		{"short query", "explain goroutines", model.LevelLight},
		{"default", "How should I structure a weekend trip to the coast", model.LevelModerate},
		{"technical", "why does the database query timeout under concurrency load", model.LevelModerate},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := router.Classify(ctx, tc.query, nil)
			gt.Equal(t, d.Level, tc.level)
			gt.True(t, d.Confidence > 0)
		})
	}
}

func TestClassifyFallback(t *testing.T) {
	ctx := context.Background()
	for _, q := range []string{"", "   ", "\xff\xfe"} {
		d := router.Classify(ctx, q, nil)
		gt.Equal(t, d, router.Fallback())
		gt.Equal(t, d.Level, model.LevelModerate)
		gt.Equal(t, d.Confidence, 0.0)
		gt.Equal(t, d.Reason, "fallback")
	}
}

func TestClassifyContextBoost(t *testing.T) {
	recent := []model.Message{
		{Role: model.RoleUser, Content: "remember that I moved to Lisbon"},
		{Role: model.RoleAssistant, Content: "Noted."},
	}
	d := router.Classify(context.Background(), "ok thanks", recent)
	gt.Equal(t, d.Level, model.LevelLight)
	gt.S(t, d.Reason).Contains("context_memory_boost")

	d = router.Classify(context.Background(), "ok thanks", nil)
	gt.Equal(t, d.Level, model.LevelNone)

	d = router.Classify(context.Background(), "what is the weather like in Lisbon today", nil)
	gt.True(t, d.NeedsWebSearch)
}

func TestShouldSave(t *testing.T) {
	v := router.ShouldSave("My sister is called Ana", "Nice to meet her.")
	gt.True(t, v.Save)
	gt.S(t, v.Reason).Contains("personal_info")

	v = router.ShouldSave("hi", "Hello!")
	gt.False(t, v.Save)
}

func TestExtractTagsAndImportance(t *testing.T) {
	tags := router.ExtractTags("My favorite job was at the bakery with my brother")
	gt.A(t, tags).Length(3)
	gt.Equal(t, tags[0], "preferences")
	gt.Equal(t, tags[1], "family")
	gt.Equal(t, tags[2], "work")

	gt.Equal(t, router.InferImportance("remember my dentist is on Friday", nil), model.ImportanceHigh)
	gt.Equal(t, router.InferImportance("I brew coffee at home most mornings", []string{"preferences"}), model.ImportanceMedium)
}
