package store

import (
	"context"
	"testing"

	"github.com/rcliao/memcompose/internal/model"
)

func TestSearch_Basic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Put(ctx, PutParams{Owner: "test", Content: "Go is a compiled language with goroutines"})
	s.Put(ctx, PutParams{Owner: "test", Content: "Python is an interpreted language"})
	s.Put(ctx, PutParams{Owner: "other", Content: "Rust has a borrow checker"})

	results, err := s.Search(ctx, SearchParams{Query: "language"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}

	results, err = s.Search(ctx, SearchParams{Owner: "other", Query: "borrow language"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Owner != "other" {
		t.Fatalf("expected 1 scoped result, got %+v", results)
	}

	results, err = s.Search(ctx, SearchParams{Query: "javascript"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Fatalf("expected 0 results, got %d", len(results))
	}
}

func TestSearch_RanksBetterMatchFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Put(ctx, PutParams{Owner: "a", Content: "career goals: become a staff engineer and mentor"})
	s.Put(ctx, PutParams{Owner: "a", Content: "had lunch with a friend"})
	s.Put(ctx, PutParams{Owner: "a", Content: "thinking of a career change"})

	results, err := s.Search(ctx, SearchParams{Owner: "a", Query: "What did you tell me about my career goals?"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Content != "career goals: become a staff engineer and mentor" {
		t.Errorf("expected best match first, got %q", results[0].Content)
	}
}

func TestSearch_MatchesTags(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Put(ctx, PutParams{Owner: "a", Content: "Ana visits on Sundays", Tags: []string{"family"}})

	results, _ := s.Search(ctx, SearchParams{Owner: "a", Query: "family"})
	if len(results) != 1 {
		t.Fatalf("expected tag match, got %d", len(results))
	}
}

func TestSearch_StopWordsOnly(t *testing.T) {
	s := newTestStore(t)
	s.Put(context.Background(), PutParams{Owner: "a", Content: "what is the plan", Kind: model.KindFact})

	results, err := s.Search(context.Background(), SearchParams{Query: "what is the"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results for stop words, got %d", len(results))
	}
}

func TestFTSQuery(t *testing.T) {
	got := ftsQuery(`Career "goals"? career, AND  x`)
	want := `"career" OR "goals"`
	if got != want {
		t.Errorf("ftsQuery = %q, want %q", got, want)
	}
}
