package completion

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"

	"github.com/rcliao/memcompose/internal/adapter"
	"github.com/rcliao/memcompose/internal/model"
)

// Gemini completes through the Gemini API.
type Gemini struct {
	client    adapter.Gemini
	maxTokens int32
}

// NewGemini wraps client.
func NewGemini(client adapter.Gemini, maxTokens int) *Gemini {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &Gemini{client: client, maxTokens: int32(maxTokens)}
}

func (g *Gemini) Complete(ctx context.Context, prompt string, history []model.Message) (Response, error) {
	contents := make([]*genai.Content, 0, len(history))
	for _, m := range history {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		role := genai.Role(genai.RoleUser)
		if m.Role == model.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	if len(contents) == 0 {
		return Response{}, goerr.Wrap(model.ErrCompletionFailure, "history has no user message")
	}

	resp, err := g.client.GenerateContent(ctx, contents, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(prompt, ""),
		MaxOutputTokens:   g.maxTokens,
	})
	if err != nil {
		return Response{}, goerr.Wrap(model.ErrCompletionFailure, "gemini completion failed", goerr.V("cause", err.Error()))
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return Response{}, goerr.Wrap(model.ErrCompletionFailure, "gemini returned no candidates")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			text.WriteString(part.Text)
		}
	}
	if text.Len() == 0 {
		return Response{}, goerr.Wrap(model.ErrCompletionFailure, "gemini returned no text")
	}

	out := Response{Text: text.String()}
	if resp.UsageMetadata != nil {
		out.TokensUsed = int(resp.UsageMetadata.TotalTokenCount)
	}
	return out, nil
}
