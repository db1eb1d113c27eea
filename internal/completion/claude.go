package completion

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/m-mizutani/goerr/v2"

	"github.com/rcliao/memcompose/internal/adapter"
	"github.com/rcliao/memcompose/internal/model"
)

const defaultClaudeModel = "claude-sonnet-4-5"

// Claude completes through the Anthropic messages API.
type Claude struct {
	client    adapter.Anthropic
	model     string
	maxTokens int64
}

// NewClaude wraps client.
func NewClaude(client adapter.Anthropic, modelName string, maxTokens int) *Claude {
	if modelName == "" {
		modelName = defaultClaudeModel
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &Claude{client: client, model: modelName, maxTokens: int64(maxTokens)}
}

func (c *Claude) Complete(ctx context.Context, prompt string, history []model.Message) (Response, error) {
	msgs := make([]anthropic.MessageParam, 0, len(history))
	for _, m := range history {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == model.RoleAssistant {
			msgs = append(msgs, anthropic.NewAssistantMessage(block))
		} else {
			msgs = append(msgs, anthropic.NewUserMessage(block))
		}
	}
	if len(msgs) == 0 {
		return Response{}, goerr.Wrap(model.ErrCompletionFailure, "history has no user message")
	}

	resp, err := c.client.NewMessage(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages:  msgs,
		System:    []anthropic.TextBlockParam{{Text: prompt}},
	})
	if err != nil {
		return Response{}, goerr.Wrap(model.ErrCompletionFailure, "claude completion failed",
			goerr.V("model", c.model), goerr.V("cause", err.Error()))
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return Response{}, goerr.Wrap(model.ErrCompletionFailure, "claude returned no text", goerr.V("model", c.model))
	}
	return Response{
		Text:       text.String(),
		TokensUsed: int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
	}, nil
}
