package completion_test

import (
	"context"
	"errors"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/m-mizutani/gt"
	"google.golang.org/genai"

	"github.com/rcliao/memcompose/internal/completion"
	"github.com/rcliao/memcompose/internal/config"
	"github.com/rcliao/memcompose/internal/model"
)

type mockAnthropic struct {
	newFunc func(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error)
}

func (m *mockAnthropic) NewMessage(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	return m.newFunc(ctx, params)
}

type mockGemini struct {
	generateFunc func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

func (m *mockGemini) GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	return m.generateFunc(ctx, contents, config)
}

func (m *mockGemini) Embedding(context.Context, string) (*genai.EmbedContentResponse, error) {
	return nil, errors.New("not used")
}

var history = []model.Message{
	{Role: model.RoleUser, Content: "I moved to Lisbon"},
	{Role: model.RoleAssistant, Content: "Noted."},
	{Role: model.RoleUser, Content: "Where do I live?"},
}

func TestClaudeComplete(t *testing.T) {
	var got anthropic.MessageNewParams
	c := completion.NewClaude(&mockAnthropic{
		newFunc: func(_ context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
			got = params
			return &anthropic.Message{
				Content: []anthropic.ContentBlockUnion{{Type: "text", Text: "You live in Lisbon."}},
				Usage:   anthropic.Usage{InputTokens: 40, OutputTokens: 6},
			}, nil
		},
	}, "", 0)

	resp, err := c.Complete(context.Background(), "You are helpful.", history)
	gt.NoError(t, err)
	gt.Equal(t, resp.Text, "You live in Lisbon.")
	gt.Equal(t, resp.TokensUsed, 46)
	gt.A(t, got.Messages).Length(3)
	gt.Equal(t, got.System[0].Text, "You are helpful.")
}

func TestClaudeFailureIsPropagated(t *testing.T) {
	c := completion.NewClaude(&mockAnthropic{
		newFunc: func(context.Context, anthropic.MessageNewParams) (*anthropic.Message, error) {
			return nil, errors.New("overloaded")
		},
	}, "", 0)

	_, err := c.Complete(context.Background(), "p", history)
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrCompletionFailure))
}

func TestGeminiComplete(t *testing.T) {
	var roles []string
	g := completion.NewGemini(&mockGemini{
		generateFunc: func(_ context.Context, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			for _, c := range contents {
				roles = append(roles, string(c.Role))
			}
			gt.NotNil(t, cfg.SystemInstruction)
			return &genai.GenerateContentResponse{
				Candidates: []*genai.Candidate{{
					Content: &genai.Content{
						Role:  genai.RoleModel,
						Parts: []*genai.Part{{Text: "Lisbon."}},
					},
				}},
				UsageMetadata: &genai.GenerateContentResponseUsageMetadata{TotalTokenCount: 21},
			}, nil
		},
	}, 256)

	resp, err := g.Complete(context.Background(), "You are helpful.", history)
	gt.NoError(t, err)
	gt.Equal(t, resp.Text, "Lisbon.")
	gt.Equal(t, resp.TokensUsed, 21)
	gt.Equal(t, roles, []string{"user", "model", "user"})
}

func TestGeminiEmptyCandidates(t *testing.T) {
	g := completion.NewGemini(&mockGemini{
		generateFunc: func(context.Context, []*genai.Content, *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			return &genai.GenerateContentResponse{}, nil
		},
	}, 0)
	_, err := g.Complete(context.Background(), "p", history)
	gt.True(t, errors.Is(err, model.ErrCompletionFailure))
}

func TestNewDisabledAndUnknown(t *testing.T) {
	svc, err := completion.New(context.Background(), config.CompletionConfig{})
	gt.NoError(t, err)
	gt.True(t, svc == nil)

	_, err = completion.New(context.Background(), config.CompletionConfig{Provider: "nope"})
	gt.Error(t, err)

	_, err = completion.New(context.Background(), config.CompletionConfig{Provider: "anthropic"})
	gt.Error(t, err)
}
