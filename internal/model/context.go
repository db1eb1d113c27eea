package model

import "time"

// Role of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one short-term history entry.
type Message struct {
	Role    Role      `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at,omitempty"`
}

// Conversation types inferred from recent turns.
const (
	ConversationGeneral         = "general"
	ConversationTechnical       = "technical"
	ConversationTroubleshooting = "troubleshooting"
	ConversationCasual          = "casual"
)

// Expertise levels inferred from vocabulary.
const (
	ExpertiseBeginner = "beginner"
	ExpertiseMedium   = "medium"
	ExpertiseHigh     = "high"
)

// ConversationContext is the per-thread state mutated after each turn.
type ConversationContext struct {
	ThreadID         string `json:"thread_id"`
	ConversationType string `json:"conversation_type"`
	UserExpertise    string `json:"user_expertise"`
	RecentErrorCount int    `json:"recent_error_count"`
	Summary          string `json:"summary,omitempty"`
	// Summarized counts history messages already folded into Summary.
	Summarized    int       `json:"summarized"`
	Turns         int       `json:"turns"`
	RecentQueries []string  `json:"recent_queries,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewConversationContext returns the initial context for a thread.
func NewConversationContext(threadID string) ConversationContext {
	return ConversationContext{
		ThreadID:         threadID,
		ConversationType: ConversationGeneral,
		UserExpertise:    ExpertiseMedium,
	}
}
