// Package action decodes the structured actions a completion may return.
// Action is a closed union: every implementation lives in this package and
// callers switch over the concrete types.
package action

import (
	"encoding/json"
	"strings"

	"github.com/rcliao/memcompose/internal/model"
)

// Action is one of Respond, UpdateMemory, QueryMemory, SuggestCategory or
// SwitchAgent.
type Action interface {
	// Reply is the text to show the user, if any.
	Reply() string
	sealed()
}

// Respond is a plain reply.
type Respond struct {
	Text string
}

// UpdateMemory asks to store a new memory record.
type UpdateMemory struct {
	Text       string
	Content    string
	Tags       []string
	Importance model.Importance
	Owner      string
}

// QueryMemory asks to list memories carrying tags.
type QueryMemory struct {
	Text  string
	Tags  []string
	Owner string
}

// SuggestCategory proposes a new memory tag.
type SuggestCategory struct {
	Text     string
	Category string
}

// SwitchAgent asks to hand the conversation to another persona.
type SwitchAgent struct {
	Text  string
	Agent string
}

func (a Respond) Reply() string         { return a.Text }
func (a UpdateMemory) Reply() string    { return a.Text }
func (a QueryMemory) Reply() string     { return a.Text }
func (a SuggestCategory) Reply() string { return a.Text }
func (a SwitchAgent) Reply() string     { return a.Text }

func (Respond) sealed()         {}
func (UpdateMemory) sealed()    {}
func (QueryMemory) sealed()     {}
func (SuggestCategory) sealed() {}
func (SwitchAgent) sealed()     {}

type envelope struct {
	Action string `json:"action"`
	Data   struct {
		Text     string `json:"text"`
		Message  string `json:"message"`
		Category string `json:"category"`
		Agent    string `json:"agent"`
		Update   *struct {
			Text       string   `json:"text"`
			Tags       []string `json:"tags"`
			Importance string   `json:"importance"`
			Agents     []string `json:"agents"`
		} `json:"update"`
		Query *struct {
			Tags   []string `json:"tags"`
			Agents []string `json:"agents"`
		} `json:"query"`
	} `json:"data"`
}

// Parse decodes a completion. Text that is not a recognised action
// envelope, including malformed ones, is a Respond carrying the raw text.
func Parse(text string) Action {
	raw := extractJSON(text)
	if raw == "" {
		return Respond{Text: text}
	}
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil || env.Action == "" {
		return Respond{Text: text}
	}

	reply := env.Data.Text
	if reply == "" {
		reply = env.Data.Message
	}
	switch env.Action {
	case "respond":
		return Respond{Text: reply}
	case "update_memory":
		if env.Data.Update == nil || strings.TrimSpace(env.Data.Update.Text) == "" {
			return Respond{Text: reply}
		}
		u := env.Data.Update
		imp := model.Importance(strings.ToLower(u.Importance))
		if !imp.Valid() {
			imp = model.ImportanceMedium
		}
		return UpdateMemory{Text: reply, Content: u.Text, Tags: u.Tags, Importance: imp, Owner: first(u.Agents)}
	case "query_memory":
		if env.Data.Query == nil {
			return Respond{Text: reply}
		}
		return QueryMemory{Text: reply, Tags: env.Data.Query.Tags, Owner: first(env.Data.Query.Agents)}
	case "suggest_new_category", "suggest_category":
		return SuggestCategory{Text: reply, Category: env.Data.Category}
	case "switch_agent":
		return SwitchAgent{Text: reply, Agent: env.Data.Agent}
	default:
		return Respond{Text: text}
	}
}

// extractJSON returns the outermost object in text, allowing a fenced
// code block around it.
func extractJSON(text string) string {
	t := strings.TrimSpace(text)
	t = strings.TrimPrefix(t, "```json")
	t = strings.TrimPrefix(t, "```")
	t = strings.TrimSuffix(t, "```")
	t = strings.TrimSpace(t)
	if !strings.HasPrefix(t, "{") || !strings.HasSuffix(t, "}") {
		return ""
	}
	return t
}

func first(s []string) string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}
