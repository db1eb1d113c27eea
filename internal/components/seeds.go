package components

import (
	"time"

	"github.com/rcliao/memcompose/internal/model"
)

// seedTime keeps seeds ordered before anything generated at runtime.
var seedTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type seed struct {
	id       string
	category model.Category
	template string
	tags     []string
}

var seeds = []seed{
	{"seed-personality-helpful", model.CategoryPersonality,
		"You are a warm, helpful personal assistant who remembers what the user shares with you.", nil},
	{"seed-personality-technical", model.CategoryPersonality,
		"You are a precise technical assistant. Assume the user has {{.UserExpertise}} expertise.",
		[]string{model.ConversationTechnical, model.ConversationTroubleshooting}},
	{"seed-personality-patient", model.CategoryPersonality,
		"You are a patient guide who explains one step at a time and avoids jargon.",
		[]string{model.ExpertiseBeginner}},

	{"seed-memory-relevant", model.CategoryMemoryGuidance,
		"Use the remembered facts below only when they help answer the question. Never invent facts about the user.", nil},
	{"seed-memory-conflict", model.CategoryMemoryGuidance,
		"If a remembered fact conflicts with what the user says now, trust the user and mention the change.", nil},

	{"seed-framer-type", model.CategoryContextFramer,
		"This is a {{.ConversationType}} conversation.", nil},
	{"seed-framer-errors", model.CategoryContextFramer,
		"The user has run into {{.RecentErrorCount}} recent problems. Acknowledge them before proposing fixes.",
		[]string{model.ConversationTroubleshooting}},

	{"seed-task-direct", model.CategoryTaskInstruction,
		"Answer the user's latest message directly.", nil},
	{"seed-task-diagnose", model.CategoryTaskInstruction,
		"Diagnose the problem first, then give concrete steps to fix it.",
		[]string{model.ConversationTroubleshooting}},
	{"seed-task-code", model.CategoryTaskInstruction,
		"Answer clearly and include short code examples when they help.",
		[]string{model.ConversationTechnical}},

	{"seed-format-plain", model.CategoryOutputFormatter,
		"Reply in short paragraphs of plain text.", nil},
	{"seed-format-markdown", model.CategoryOutputFormatter,
		"Use markdown with code blocks where useful.",
		[]string{model.ConversationTechnical, model.ExpertiseHigh}},
	{"seed-format-brief", model.CategoryOutputFormatter,
		"Keep the reply under five sentences.",
		[]string{model.ConversationCasual}},
}

// Seeds returns fresh copies of the built-in components.
func Seeds() []model.PromptComponent {
	out := make([]model.PromptComponent, 0, len(seeds))
	for _, s := range seeds {
		out = append(out, model.PromptComponent{
			ID:          s.id,
			Category:    s.category,
			Template:    s.template,
			Weight:      1.0,
			SuccessRate: 0.5,
			Provenance:  model.ProvenanceSeed,
			Tags:        append([]string(nil), s.tags...),
			CreatedAt:   seedTime,
		})
	}
	return out
}

// SeedsFor returns the built-in components of one category.
func SeedsFor(cat model.Category) []model.PromptComponent {
	var out []model.PromptComponent
	for _, c := range Seeds() {
		if c.Category == cat {
			out = append(out, c)
		}
	}
	return out
}
