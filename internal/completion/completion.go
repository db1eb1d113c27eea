// Package completion is the boundary to the hosted language model: it sends
// an assembled prompt plus short-term history and returns the reply text.
package completion

import (
	"context"

	"github.com/m-mizutani/goerr/v2"

	"github.com/rcliao/memcompose/internal/adapter"
	"github.com/rcliao/memcompose/internal/config"
	"github.com/rcliao/memcompose/internal/model"
)

// Response is one completion.
type Response struct {
	Text       string `json:"text"`
	TokensUsed int    `json:"tokens_used"`
}

// Service completes a prompt given conversation history.
type Service interface {
	Complete(ctx context.Context, prompt string, history []model.Message) (Response, error)
}

// New builds the configured completion service. It returns nil when no
// provider is configured.
func New(ctx context.Context, cfg config.CompletionConfig) (Service, error) {
	switch cfg.Provider {
	case "":
		return nil, nil
	case "anthropic":
		client, err := adapter.NewAnthropic(cfg.APIKey)
		if err != nil {
			return nil, err
		}
		return NewClaude(client, cfg.Model, cfg.MaxTokens), nil
	case "gemini":
		client, err := adapter.NewGemini(ctx, cfg.APIKey, adapter.WithGenerativeModel(cfg.Model))
		if err != nil {
			return nil, err
		}
		return NewGemini(client, cfg.MaxTokens), nil
	default:
		return nil, goerr.New("unknown completion provider", goerr.V("provider", cfg.Provider))
	}
}
