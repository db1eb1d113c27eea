// Package assembler merges selected components, compressed memory and
// short-term history into the final prompt text.
package assembler

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"text/template"

	"github.com/m-mizutani/goerr/v2"

	"github.com/rcliao/memcompose/internal/config"
	"github.com/rcliao/memcompose/internal/logging"
	"github.com/rcliao/memcompose/internal/model"
)

// Section headers for the non-component parts of a prompt.
const (
	MemoryHeader  = "## What you remember about the user"
	HistoryHeader = "## Recent conversation"
	SummaryLabel  = "Earlier in this conversation: "
)

// Input is everything one prompt is built from.
type Input struct {
	Components map[model.Category]model.PromptComponent
	Memory     string
	History    []model.Message
	Context    model.ConversationContext
}

// Prompt is the assembled text.
type Prompt struct {
	Text string `json:"text"`
	// Skipped lists components whose templates failed to render.
	Skipped         []string `json:"skipped,omitempty"`
	HistoryMessages int      `json:"history_messages"`
}

// Assembler renders prompts. Parsed templates are cached by text.
type Assembler struct {
	history config.HistoryConfig
	cache   sync.Map
}

// New creates an Assembler bounding history by cfg.
func New(cfg config.HistoryConfig) *Assembler {
	return &Assembler{history: cfg}
}

// Assemble builds the prompt in the fixed section order. It never fails:
// omitted and empty sections are left out and a malformed component is
// skipped and logged.
func (a *Assembler) Assemble(ctx context.Context, in Input) Prompt {
	var (
		out      Prompt
		sections []string
	)
	component := func(cat model.Category) {
		c, ok := in.Components[cat]
		if !ok || c.ID == "" || c.ID == model.NoneComponent {
			return
		}
		text, err := a.render(c, in.Context)
		if err != nil {
			logging.From(ctx).Warn("skipping malformed component", "id", c.ID, "category", cat, "error", err)
			out.Skipped = append(out.Skipped, c.ID)
			return
		}
		if text != "" {
			sections = append(sections, text)
		}
	}

	component(model.CategoryPersonality)
	component(model.CategoryMemoryGuidance)
	component(model.CategoryContextFramer)
	if m := strings.TrimSpace(in.Memory); m != "" {
		sections = append(sections, MemoryHeader+"\n"+in.Memory)
	}
	if h, n := a.historySection(in.History, in.Context.Summary); h != "" {
		sections = append(sections, h)
		out.HistoryMessages = n
	}
	component(model.CategoryTaskInstruction)
	component(model.CategoryOutputFormatter)

	out.Text = strings.Join(sections, "\n\n")
	return out
}

func (a *Assembler) render(c model.PromptComponent, conv model.ConversationContext) (string, error) {
	var tmpl *template.Template
	if v, ok := a.cache.Load(c.Template); ok {
		tmpl = v.(*template.Template)
	} else {
		t, err := template.New(c.ID).Option("missingkey=error").Parse(c.Template)
		if err != nil {
			return "", goerr.Wrap(err, "failed to parse component template", goerr.V("id", c.ID))
		}
		a.cache.Store(c.Template, t)
		tmpl = t
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, conv); err != nil {
		return "", goerr.Wrap(err, "failed to render component template", goerr.V("id", c.ID))
	}
	return strings.TrimSpace(buf.String()), nil
}

// historySection keeps the newest messages that fit both the message cap
// and the history token budget, preceded by the rolling summary.
func (a *Assembler) historySection(history []model.Message, summary string) (string, int) {
	msgs := history
	if a.history.MaxMessages > 0 && len(msgs) > a.history.MaxMessages {
		msgs = msgs[len(msgs)-a.history.MaxMessages:]
	}

	var lines []string
	used := 0
	for i := len(msgs) - 1; i >= 0; i-- {
		content := strings.TrimSpace(msgs[i].Content)
		if content == "" {
			continue
		}
		line := speaker(msgs[i].Role) + ": " + content
		cost := model.EstimateTokens(line)
		if a.history.TokenBudget > 0 && used+cost > a.history.TokenBudget {
			break
		}
		used += cost
		lines = append(lines, line)
	}
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}

	summary = strings.TrimSpace(summary)
	if len(lines) == 0 && summary == "" {
		return "", 0
	}
	var b strings.Builder
	b.WriteString(HistoryHeader)
	if summary != "" {
		b.WriteString("\n" + SummaryLabel + summary)
	}
	for _, l := range lines {
		b.WriteString("\n" + l)
	}
	return b.String(), len(lines)
}

func speaker(r model.Role) string {
	if r == model.RoleAssistant {
		return "Assistant"
	}
	return "User"
}
