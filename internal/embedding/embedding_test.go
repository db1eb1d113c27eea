package embedding

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"

	"github.com/rcliao/memcompose/internal/config"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a, b     Vector
		expected float64
		delta    float64
	}{
		{"identical", Vector{1, 0, 0}, Vector{1, 0, 0}, 1.0, 0.001},
		{"orthogonal", Vector{1, 0, 0}, Vector{0, 1, 0}, 0.0, 0.001},
		{"opposite", Vector{1, 0, 0}, Vector{-1, 0, 0}, -1.0, 0.001},
		{"similar", Vector{1, 1, 0}, Vector{1, 0, 0}, 0.707, 0.01},
		{"empty", Vector{}, Vector{}, 0.0, 0.001},
		{"different lengths", Vector{1, 0}, Vector{1, 0, 0}, 0.0, 0.001},
		{"zero vector", Vector{0, 0, 0}, Vector{1, 0, 0}, 0.0, 0.001},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			if math.Abs(got-tt.expected) > tt.delta {
				t.Errorf("CosineSimilarity(%v, %v) = %f, want %f (±%f)", tt.a, tt.b, got, tt.expected, tt.delta)
			}
		})
	}
}

func TestHashEmbedderDeterministicAndSimilar(t *testing.T) {
	ctx := context.Background()
	h := NewHashEmbedder(128)

	a1, _ := h.Embed(ctx, "career goals: become a staff engineer")
	a2, _ := h.Embed(ctx, "career goals: become a staff engineer")
	if CosineSimilarity(a1, a2) < 0.9999 {
		t.Fatal("expected identical text to embed identically")
	}
	if len(a1) != h.Dims() {
		t.Fatalf("expected %d dims, got %d", h.Dims(), len(a1))
	}

	q, _ := h.Embed(ctx, "what are my career goals")
	other, _ := h.Embed(ctx, "the cat sleeps on the warm windowsill")
	if CosineSimilarity(q, a1) <= CosineSimilarity(q, other) {
		t.Error("expected overlapping vocabulary to score higher")
	}
}

type countingEmbedder struct {
	calls atomic.Int32
	err   error
}

func (c *countingEmbedder) Embed(_ context.Context, text string) (Vector, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return Vector{float32(len(text)), 1}, nil
}

func (c *countingEmbedder) Dims() int { return 2 }

func TestCachedEmbedder(t *testing.T) {
	ctx := context.Background()
	inner := &countingEmbedder{}
	c, err := NewCached(inner, 100)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := c.Embed(ctx, "hello"); err != nil {
		t.Fatal(err)
	}
	c.Wait()
	v, err := c.Embed(ctx, "hello")
	if err != nil {
		t.Fatal(err)
	}
	if v[0] != 5 {
		t.Errorf("unexpected vector %v", v)
	}
	if n := inner.calls.Load(); n != 1 {
		t.Errorf("expected 1 upstream call, got %d", n)
	}
}

func TestCachedEmbedderPropagatesErrors(t *testing.T) {
	boom := errors.New("down")
	c, _ := NewCached(&countingEmbedder{err: boom}, 10)
	if _, err := c.Embed(context.Background(), "x"); !errors.Is(err, boom) {
		t.Fatalf("expected upstream error, got %v", err)
	}
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	e, err := New(ctx, config.EmbeddingConfig{})
	if err != nil || e != nil {
		t.Fatalf("expected disabled embedder, got %v, %v", e, err)
	}

	e, err = New(ctx, config.EmbeddingConfig{Provider: "hash", Dims: 64, CacheSize: 16})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := e.(*Cached); !ok || e.Dims() != 64 {
		t.Errorf("expected cached hash embedder with 64 dims, got %T", e)
	}

	if _, err := New(ctx, config.EmbeddingConfig{Provider: "word2vec"}); err == nil {
		t.Error("expected error for unknown provider")
	}
	if _, err := New(ctx, config.EmbeddingConfig{Provider: "gemini"}); err == nil {
		t.Error("expected error for gemini without api key")
	}
}
