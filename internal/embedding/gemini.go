package embedding

import (
	"context"

	"github.com/m-mizutani/goerr/v2"

	"github.com/rcliao/memcompose/internal/adapter"
)

// GeminiEmbedder embeds text with the Gemini embedding model.
type GeminiEmbedder struct {
	client adapter.Gemini
	dims   int
}

// NewGeminiEmbedder wraps a Gemini client; dims <= 0 selects 3072.
func NewGeminiEmbedder(client adapter.Gemini, dims int) *GeminiEmbedder {
	if dims <= 0 {
		dims = 3072
	}
	return &GeminiEmbedder{client: client, dims: dims}
}

func (g *GeminiEmbedder) Embed(ctx context.Context, text string) (Vector, error) {
	resp, err := g.client.Embedding(ctx, text)
	if err != nil {
		return nil, err
	}
	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, goerr.New("no embedding returned from gemini")
	}
	return resp.Embeddings[0].Values, nil
}

func (g *GeminiEmbedder) Dims() int { return g.dims }
