package conversation

import (
	"strings"
	"unicode"

	"github.com/rcliao/memcompose/internal/model"
)

var (
	troubleWords   = set("error", "errors", "bug", "bugs", "problem", "issue", "broken", "crash", "crashes", "fails", "failing", "exception")
	technicalTerms = set("api", "database", "algorithm", "function", "server", "docker", "config",
		"backend", "frontend", "deployment", "debug", "git", "code", "compile", "query", "goroutine", "kubernetes")
	casualWords    = set("hi", "hello", "hey", "thanks", "thank", "lol", "cool", "nice", "morning", "night", "bye")
	uncertainWords = []string{"don't know", "not sure", "uncertain", "unclear", "can't help"}
)

func set(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

func hits(ws []string, vocab map[string]bool) int {
	n := 0
	for _, w := range ws {
		if vocab[w] {
			n++
		}
	}
	return n
}

// ConversationType classifies the latest user query.
func ConversationType(query string) string {
	ws := words(query)
	switch {
	case hits(ws, troubleWords) > 0 || strings.Contains(strings.ToLower(query), "not working"):
		return model.ConversationTroubleshooting
	case hits(ws, technicalTerms) > 0:
		return model.ConversationTechnical
	case len(ws) > 0 && len(ws) <= 4 && !strings.Contains(query, "?") && hits(ws, casualWords) > 0:
		return model.ConversationCasual
	default:
		return model.ConversationGeneral
	}
}

// Expertise scores technical vocabulary across recent user messages.
func Expertise(userMessages []string) string {
	score := 0
	for _, m := range userMessages {
		score += hits(words(m), technicalTerms)
	}
	switch {
	case score > 5:
		return model.ExpertiseHigh
	case score > 2:
		return model.ExpertiseMedium
	default:
		return model.ExpertiseBeginner
	}
}

// ErrorCount counts uncertain assistant replies among the last ten messages.
func ErrorCount(history []model.Message) int {
	start := max(0, len(history)-10)
	n := 0
	for _, m := range history[start:] {
		if m.Role != model.RoleAssistant {
			continue
		}
		lower := strings.ToLower(m.Content)
		for _, p := range uncertainWords {
			if strings.Contains(lower, p) {
				n++
				break
			}
		}
	}
	return n
}
