// Package embedding provides a pluggable interface for text embedding providers.
package embedding

import (
	"context"
	"math"

	"github.com/m-mizutani/goerr/v2"

	"github.com/rcliao/memcompose/internal/adapter"
	"github.com/rcliao/memcompose/internal/config"
)

// Vector is a float32 embedding vector.
type Vector = []float32

// Embedder generates embedding vectors from text.
type Embedder interface {
	Embed(ctx context.Context, text string) (Vector, error)
	Dims() int
}

// CosineSimilarity computes cosine similarity between two vectors.
func CosineSimilarity(a, b Vector) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func normalize(v Vector) Vector {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return v
	}
	n := float32(math.Sqrt(norm))
	for i := range v {
		v[i] /= n
	}
	return v
}

// New builds the configured embedder wrapped in a cache. It returns nil
// when embeddings are disabled.
func New(ctx context.Context, cfg config.EmbeddingConfig) (Embedder, error) {
	var e Embedder
	switch cfg.Provider {
	case "":
		return nil, nil
	case "hash":
		e = NewHashEmbedder(cfg.Dims)
	case "ollama":
		model := cfg.Model
		if model == "" {
			model = "nomic-embed-text"
		}
		e = NewOllamaEmbedder(cfg.URL, model)
	case "openai":
		e = NewOpenAIEmbedder(cfg.URL, cfg.APIKey, cfg.Model, cfg.Dims)
	case "gemini":
		client, err := adapter.NewGemini(ctx, cfg.APIKey, adapter.WithEmbeddingModel(cfg.Model))
		if err != nil {
			return nil, err
		}
		e = NewGeminiEmbedder(client, cfg.Dims)
	default:
		return nil, goerr.New("unknown embedding provider", goerr.V("provider", cfg.Provider))
	}

	if cfg.CacheSize <= 0 {
		return e, nil
	}
	return NewCached(e, cfg.CacheSize)
}
