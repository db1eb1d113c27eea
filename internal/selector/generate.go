package selector

import (
	"context"
	"sort"
	"strings"
	"text/template"
	"unicode"
	"unicode/utf8"

	"github.com/m-mizutani/goerr/v2"

	"github.com/rcliao/memcompose/internal/completion"
	"github.com/rcliao/memcompose/internal/components"
	"github.com/rcliao/memcompose/internal/logging"
	"github.com/rcliao/memcompose/internal/model"
)

var mutationPhrases = []string{
	"Be more concise.",
	"Be more specific.",
	"Keep the earlier conversation in mind.",
	"Adapt to the user's level of expertise.",
	"Personalize the reply with what you know about the user.",
}

var categoryTemplates = map[model.Category]string{
	model.CategoryPersonality:     "You are an assistant for {{.ConversationType}} conversations, talking with a user who has {{.UserExpertise}} expertise.",
	model.CategoryMemoryGuidance:  "Bring up remembered facts only when they relate to this {{.ConversationType}} conversation.",
	model.CategoryContextFramer:   "The conversation so far has been {{.ConversationType}}. Keep continuity with it.",
	model.CategoryTaskInstruction: "Respond to the user's message with detail suited to {{.UserExpertise}} expertise.",
	model.CategoryOutputFormatter: "Format the reply to suit a {{.ConversationType}} conversation.",
}

// GenerateRequest describes a component to write.
type GenerateRequest struct {
	Category model.Category
	// Parent is set when the new text should vary an existing component.
	Parent  *model.PromptComponent
	Context model.ConversationContext
}

// Generator writes component text.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// experiment creates, stores and returns a new candidate for cat.
func (s *Selector) experiment(ctx context.Context, cat model.Category, pool []model.PromptComponent, conv model.ConversationContext, d draws) (model.PromptComponent, error) {
	var c model.PromptComponent
	if best, ok := fittest(pool); ok && d.mutate < s.cfg.MutationShare {
		c = s.mutate(ctx, best, conv, d.phrase)
	} else if a, b, ok := combinable(pool, s.cfg.CombineThreshold); ok {
		c = s.combine(a, b)
	} else {
		c = s.fromTemplate(ctx, cat, conv)
	}

	c.ID = s.newID()
	c.Category = cat
	c.UsageCount = 0
	c.CreatedAt = s.now().UTC()
	if _, err := s.repo.Add(ctx, c); err != nil {
		return model.PromptComponent{}, err
	}
	logging.From(ctx).Debug("generated component", "id", c.ID, "category", cat, "provenance", c.Provenance, "parents", c.ParentIDs)
	return c, nil
}

func (s *Selector) mutate(ctx context.Context, parent model.PromptComponent, conv model.ConversationContext, phrase int) model.PromptComponent {
	text, ok := s.generated(ctx, GenerateRequest{Category: parent.Category, Parent: &parent, Context: conv})
	if !ok {
		text = strings.TrimSpace(parent.Template) + " " + mutationPhrases[phrase]
	}
	f := s.cfg.InheritFraction
	return model.PromptComponent{
		Template:    text,
		Weight:      parent.Weight * f,
		SuccessRate: parent.SuccessRate * f,
		Provenance:  model.ProvenanceMutated,
		Tags:        append([]string(nil), parent.Tags...),
		ParentIDs:   []string{parent.ID},
	}
}

func (s *Selector) combine(a, b model.PromptComponent) model.PromptComponent {
	f := s.cfg.InheritFraction
	return model.PromptComponent{
		Template:    strings.TrimRight(strings.TrimSpace(a.Template), ".") + ". Additionally, " + lowerFirst(strings.TrimSpace(b.Template)),
		Weight:      (a.Weight + b.Weight) / 2 * f,
		SuccessRate: (a.SuccessRate + b.SuccessRate) / 2 * f,
		Provenance:  model.ProvenanceGenerated,
		Tags:        union(a.Tags, b.Tags),
		ParentIDs:   []string{a.ID, b.ID},
	}
}

func (s *Selector) fromTemplate(ctx context.Context, cat model.Category, conv model.ConversationContext) model.PromptComponent {
	text, ok := s.generated(ctx, GenerateRequest{Category: cat, Context: conv})
	if !ok {
		text = categoryTemplates[cat]
	}
	var tags []string
	if conv.ConversationType != "" && conv.ConversationType != model.ConversationGeneral {
		tags = []string{conv.ConversationType}
	}
	return model.PromptComponent{
		Template:    text,
		Weight:      components.WeightFor(0.5, s.cfg.MinWeight),
		SuccessRate: 0.5,
		Provenance:  model.ProvenanceGenerated,
		Tags:        tags,
	}
}

// generated asks the configured generator for text under the generator
// timeout. ok is false when there is no generator or it failed.
func (s *Selector) generated(ctx context.Context, req GenerateRequest) (string, bool) {
	if s.gen == nil {
		return "", false
	}
	if s.cfg.GeneratorTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.GeneratorTimeout)
		defer cancel()
	}
	text, err := s.gen.Generate(ctx, req)
	if err != nil {
		logging.From(ctx).Warn("component generator failed, using local variation", "category", req.Category, "error", err)
		return "", false
	}
	return text, true
}

func fittest(pool []model.PromptComponent) (model.PromptComponent, bool) {
	if len(pool) == 0 {
		return model.PromptComponent{}, false
	}
	best := pool[0]
	for _, c := range pool[1:] {
		if c.Fitness() > best.Fitness() {
			best = c
		}
	}
	return best, true
}

// combinable returns the two fittest components whose success rate exceeds
// threshold.
func combinable(pool []model.PromptComponent, threshold float64) (model.PromptComponent, model.PromptComponent, bool) {
	var above []model.PromptComponent
	for _, c := range pool {
		if c.SuccessRate > threshold {
			above = append(above, c)
		}
	}
	if len(above) < 2 {
		return model.PromptComponent{}, model.PromptComponent{}, false
	}
	sort.SliceStable(above, func(i, j int) bool { return above[i].Fitness() > above[j].Fitness() })
	return above[0], above[1], true
}

func lowerFirst(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToLower(r)) + s[n:]
}

func union(a, b []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, t := range append(append([]string(nil), a...), b...) {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// CompletionGenerator writes component text with the completion service.
type CompletionGenerator struct {
	svc completion.Service
}

// NewCompletionGenerator wraps svc.
func NewCompletionGenerator(svc completion.Service) *CompletionGenerator {
	return &CompletionGenerator{svc: svc}
}

const generatorPrompt = `You write single-sentence instructions that become one section of an AI assistant's system prompt.
Reply with the sentence only. No quotes, no lists, no explanations.`

const maxGeneratedLen = 400

func (g *CompletionGenerator) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	var ask strings.Builder
	ask.WriteString("Write the " + strings.ReplaceAll(string(req.Category), "_", " ") + " section")
	ask.WriteString(" for a " + req.Context.ConversationType + " conversation with a user of " + req.Context.UserExpertise + " expertise.")
	if req.Parent != nil {
		ask.WriteString(" Rephrase and improve this existing instruction: " + req.Parent.Template)
	}

	resp, err := g.svc.Complete(ctx, generatorPrompt, []model.Message{{Role: model.RoleUser, Content: ask.String()}})
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(strings.Trim(strings.TrimSpace(resp.Text), `"`))
	if text == "" || len(text) > maxGeneratedLen || strings.Contains(text, "\n") {
		return "", goerr.New("unusable generated component", goerr.V("text", text))
	}
	if _, err := template.New("generated").Parse(text); err != nil {
		return "", goerr.Wrap(err, "generated component is not a valid template")
	}
	return text, nil
}
