package model

import "time"

// Category is a prompt section a component can fill.
type Category string

const (
	CategoryPersonality     Category = "personality"
	CategoryMemoryGuidance  Category = "memory_guidance"
	CategoryContextFramer   Category = "context_framer"
	CategoryTaskInstruction Category = "task_instruction"
	CategoryOutputFormatter Category = "output_formatter"
)

// Categories lists every category in selection order.
var Categories = []Category{
	CategoryPersonality,
	CategoryMemoryGuidance,
	CategoryContextFramer,
	CategoryTaskInstruction,
	CategoryOutputFormatter,
}

// Optional reports whether a selection may resolve c to NoneComponent.
func (c Category) Optional() bool {
	switch c {
	case CategoryPersonality, CategoryTaskInstruction:
		return false
	}
	return true
}

// Provenance records how a component came to exist.
type Provenance string

const (
	ProvenanceSeed      Provenance = "seed"
	ProvenanceMutated   Provenance = "mutated"
	ProvenanceGenerated Provenance = "generated"
)

// NoneComponent is the selection sentinel for an omitted optional section.
const NoneComponent = "none"

// PromptComponent is a reusable template fragment with learned statistics.
type PromptComponent struct {
	ID          string     `json:"id"`
	Category    Category   `json:"category"`
	Template    string     `json:"template"`
	Weight      float64    `json:"weight"`
	UsageCount  int        `json:"usage_count"`
	SuccessRate float64    `json:"success_rate"`
	Provenance  Provenance `json:"provenance"`
	Tags        []string   `json:"tags,omitempty"`
	ParentIDs   []string   `json:"parent_ids,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Fitness is the sampling and eviction score of a component.
func (c PromptComponent) Fitness() float64 {
	return c.Weight * c.SuccessRate
}

// Selection is the set of components chosen for one request.
type Selection struct {
	ID           string              `json:"id"`
	ThreadID     string              `json:"thread_id"`
	Choices      map[Category]string `json:"choices"`
	Experimental []string            `json:"experimental,omitempty"`
	Level        MemoryLevel         `json:"level"`
}

// ComponentIDs returns the selected ids in category order, skipping none.
func (s Selection) ComponentIDs() []string {
	ids := make([]string, 0, len(s.Choices))
	for _, c := range Categories {
		id, ok := s.Choices[c]
		if !ok || id == NoneComponent {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
