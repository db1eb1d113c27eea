// Package router decides how much memory a query needs. It is pure and
// synchronous and never returns an error: anything it cannot classify is
// routed to the moderate level with zero confidence.
package router

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rcliao/memcompose/internal/logging"
	"github.com/rcliao/memcompose/internal/model"
)

// Decision is the router's verdict for one query.
type Decision struct {
	Level          model.MemoryLevel `json:"level"`
	Confidence     float64           `json:"confidence"`
	Reason         string            `json:"reason"`
	SaveMemory     bool              `json:"save_memory"`
	NeedsWebSearch bool              `json:"needs_web_search"`
	Complexity     string            `json:"complexity"`
}

// Fallback is returned for input the router cannot classify.
func Fallback() Decision {
	return Decision{Level: model.LevelModerate, Confidence: 0, Reason: "fallback", Complexity: "detailed"}
}

var (
	simpleWords    = wordSet("hi", "hello", "hey", "thanks", "thank", "yes", "no", "ok", "okay", "bye")
	memoryWords    = wordSet("remember", "recall", "know", "discussed", "mentioned", "told", "said", "remind")
	personalWords  = wordSet("my", "me", "i", "myself", "about", "tell")
	webWords       = wordSet("current", "latest", "today", "news", "weather", "search")
	technicalWords = wordSet(
		"api", "algorithm", "architecture", "async", "bug", "cache", "code", "compile", "concurrency",
		"config", "database", "debug", "deploy", "docker", "error", "exception", "function", "goroutine",
		"index", "kubernetes", "latency", "memory", "migration", "optimize", "performance", "query",
		"schema", "server", "sql", "stack", "thread", "timeout", "type", "variable",
	)
	contextBoostWords = []string{"remember", "recall", "mentioned", "discussed"}
	recallPhrases     = []string{
		"do you remember", "what did i say", "what did i tell", "what did you tell", "we discussed",
		"you told me", "i told you", "last time",
	}
	personalPhrases = []string{"my ", "i am", "i'm", "i have", "i work", "i live"}
)

func wordSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

// Words lowercases s and splits it into words with surrounding punctuation
// removed.
func Words(s string) []string {
	fields := strings.Fields(strings.ToLower(s))
	out := fields[:0]
	for _, f := range fields {
		f = strings.TrimFunc(f, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\'' })
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

func count(words []string, set map[string]bool) int {
	n := 0
	for _, w := range words {
		if set[w] {
			n++
		}
	}
	return n
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// Classify routes query given recent conversation messages.
func Classify(ctx context.Context, query string, recent []model.Message) (d Decision) {
	defer func() {
		if r := recover(); r != nil {
			logging.From(ctx).Error("router panic recovered", "panic", r)
			d = Fallback()
		}
	}()

	if !utf8.ValidString(query) || strings.TrimSpace(query) == "" {
		return Fallback()
	}
	d = classify(query, recent)
	logging.From(ctx).Debug("routed query", "level", d.Level, "confidence", d.Confidence, "reason", d.Reason)
	return d
}

func classify(query string, recent []model.Message) Decision {
	lower := " " + strings.ToLower(strings.TrimSpace(query)) + " "
	words := Words(query)
	n := len(words)
	if n == 0 {
		return Fallback()
	}

	d := Decision{Level: model.LevelModerate, Confidence: 0.7, Complexity: "detailed"}
	var reasons []string

	switch {
	case count(words, simpleWords) > 0 && n <= 2:
		d.Level = model.LevelNone
		d.Confidence = 0.95
		d.Complexity = "simple"
		reasons = append(reasons, "simple_greeting")
	case count(words, memoryWords) > 0 || count(words, personalWords) >= 2 || containsAny(lower, recallPhrases):
		d.Level = model.LevelFull
		d.Confidence = 0.9
		d.Complexity = "analytical"
		reasons = append(reasons, "memory_query_detected")
	case n > 3 && float64(count(words, technicalWords))/float64(n) >= 0.25:
		d.Confidence = 0.8
		d.Complexity = "analytical"
		reasons = append(reasons, "technical_vocabulary")
	}

	d.SaveMemory = containsAny(lower, personalPhrases) || count(words, memoryWords) > 0
	if d.SaveMemory {
		reasons = append(reasons, "save_worthy_content")
	}
	if count(words, webWords) > 0 {
		d.NeedsWebSearch = true
		reasons = append(reasons, "web_search_needed")
	}

	if len(recent) > 0 && (d.Level == model.LevelNone || d.Level == model.LevelLight) {
		from := len(recent) - 3
		if from < 0 {
			from = 0
		}
		var sb strings.Builder
		for _, m := range recent[from:] {
			sb.WriteString(strings.ToLower(m.Content))
			sb.WriteByte(' ')
		}
		if containsAny(sb.String(), contextBoostWords) {
			d.Level = model.LevelModerate
			reasons = append(reasons, "context_memory_boost")
		}
	}

	switch {
	case n <= 3 && d.Level != model.LevelNone:
		d.Level = model.LevelLight
		reasons = append(reasons, "short_query_optimization")
	case n > 30:
		d.Complexity = "analytical"
		reasons = append(reasons, "long_query_detail")
	}

	if len(reasons) == 0 {
		d.Reason = "default_routing"
	} else {
		d.Reason = strings.Join(reasons, "+")
	}
	return d
}
