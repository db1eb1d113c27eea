package adapter

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/m-mizutani/goerr/v2"
)

// Anthropic is the subset of the Claude messages API the engine uses.
type Anthropic interface {
	NewMessage(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error)
}

// AnthropicClient talks to the Claude messages API.
type AnthropicClient struct {
	client anthropic.Client
}

// NewAnthropic creates a Claude client.
func NewAnthropic(apiKey string) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, goerr.New("anthropic api key is required")
	}
	return &AnthropicClient{client: anthropic.NewClient(option.WithAPIKey(apiKey))}, nil
}

func (a *AnthropicClient) NewMessage(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create message", goerr.V("model", params.Model))
	}
	return msg, nil
}
