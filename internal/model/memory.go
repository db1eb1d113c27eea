// Package model defines the core data types shared by the engine stages.
package model

import (
	"strings"
	"time"
)

// Kind distinguishes plain facts from stored question/answer exchanges.
type Kind string

const (
	KindFact Kind = "fact"
	KindQA   Kind = "qa"
)

// Importance is the coarse salience of a memory record.
type Importance string

const (
	ImportanceLow    Importance = "low"
	ImportanceMedium Importance = "medium"
	ImportanceHigh   Importance = "high"
)

// Score maps importance into [0,1] for ranking.
func (i Importance) Score() float64 {
	switch i {
	case ImportanceHigh:
		return 1.0
	case ImportanceLow:
		return 0.2
	default:
		return 0.5
	}
}

// Valid reports whether i is one of the known levels.
func (i Importance) Valid() bool {
	return i == ImportanceLow || i == ImportanceMedium || i == ImportanceHigh
}

// Memory is one stored memory record, owned by a single user scope.
type Memory struct {
	ID         string     `json:"id"`
	Owner      string     `json:"owner"`
	Kind       Kind       `json:"kind"`
	Content    string     `json:"content"`
	Tags       []string   `json:"tags,omitempty"`
	Importance Importance `json:"importance"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	Embedding  []float32  `json:"embedding,omitempty"`
}

// HasTag reports whether the record carries tag (case-insensitive).
func (m Memory) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// QAContent renders a question/answer pair as stored record content.
func QAContent(question, answer string) string {
	return "Q: " + strings.TrimSpace(question) + "\nA: " + strings.TrimSpace(answer)
}

// ValidKinds are the allowed memory kinds.
var ValidKinds = map[Kind]bool{
	KindFact: true,
	KindQA:   true,
}
