package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rcliao/memcompose/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutAndGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	mem, err := s.Put(ctx, PutParams{
		Owner: "alice", Content: "Prefers green tea", Tags: []string{"preferences"},
		Importance: model.ImportanceHigh, Embedding: []float32{0.5, -0.25, 1},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if mem.ID == "" {
		t.Error("expected non-empty ID")
	}
	if mem.Kind != model.KindFact {
		t.Errorf("expected default kind fact, got %q", mem.Kind)
	}

	got, err := s.Get(ctx, mem.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Content != "Prefers green tea" {
		t.Errorf("expected content, got %q", got.Content)
	}
	if !got.HasTag("Preferences") {
		t.Errorf("expected preferences tag, got %v", got.Tags)
	}
	if len(got.Embedding) != 3 || got.Embedding[1] != -0.25 {
		t.Errorf("embedding not round-tripped: %v", got.Embedding)
	}
}

func TestPutValidation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	cases := []PutParams{
		{Owner: "", Content: "x"},
		{Owner: "a", Content: "   "},
		{Owner: "a", Content: "x", Kind: "episodic"},
		{Owner: "a", Content: "x", Importance: "critical"},
	}
	for _, p := range cases {
		if _, err := s.Put(ctx, p); err == nil {
			t.Errorf("expected error for %+v", p)
		}
	}
}

func TestGetNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), "missing")
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestQueryNewestFirstAndScoped(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	base := time.Now().Add(-time.Hour)
	for i, c := range []string{"first", "second", "third"} {
		s.Put(ctx, PutParams{Owner: "alice", Content: c, CreatedAt: base.Add(time.Duration(i) * time.Minute)})
	}
	s.Put(ctx, PutParams{Owner: "bob", Content: "not alice's"})

	got, err := s.Query(ctx, QueryParams{Owner: "alice", Limit: 2})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2, got %d", len(got))
	}
	if got[0].Content != "third" || got[1].Content != "second" {
		t.Errorf("unexpected order: %q, %q", got[0].Content, got[1].Content)
	}

	n, err := s.Count(ctx, "alice")
	if err != nil || n != 3 {
		t.Errorf("expected count 3, got %d (%v)", n, err)
	}
	n, _ = s.Count(ctx, "")
	if n != 4 {
		t.Errorf("expected total 4, got %d", n)
	}
}

func TestQueryFilters(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.Put(ctx, PutParams{Owner: "a", Content: "works at the bakery", Tags: []string{"work"}})
	s.Put(ctx, PutParams{Owner: "a", Content: model.QAContent("where?", "Lisbon"), Kind: model.KindQA})

	got, _ := s.Query(ctx, QueryParams{Owner: "a", Tags: []string{"work"}})
	if len(got) != 1 || got[0].Content != "works at the bakery" {
		t.Errorf("tag filter: %+v", got)
	}
	got, _ = s.Query(ctx, QueryParams{Owner: "a", Kind: model.KindQA})
	if len(got) != 1 || got[0].Kind != model.KindQA {
		t.Errorf("kind filter: %+v", got)
	}
	got, _ = s.Query(ctx, QueryParams{Owner: "a", Since: time.Now().Add(time.Hour)})
	if len(got) != 0 {
		t.Errorf("since filter: expected none, got %d", len(got))
	}
}

func TestQueryTagIsExact(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.Put(ctx, PutParams{Owner: "a", Content: "percent tag", Tags: []string{"100%"}})
	s.Put(ctx, PutParams{Owner: "a", Content: "plain tag", Tags: []string{"100x"}})
	s.Put(ctx, PutParams{Owner: "a", Content: "underscore tag", Tags: []string{"a_b"}})
	s.Put(ctx, PutParams{Owner: "a", Content: "lookalike tag", Tags: []string{"axb"}})
	s.Put(ctx, PutParams{Owner: "a", Content: "untagged"})

	for tag, want := range map[string]string{"100%": "percent tag", "a_b": "underscore tag", "axb": "lookalike tag"} {
		got, err := s.Query(ctx, QueryParams{Owner: "a", Tags: []string{tag}})
		if err != nil {
			t.Fatalf("query %q: %v", tag, err)
		}
		if len(got) != 1 || got[0].Content != want {
			t.Errorf("tag %q: %+v", tag, got)
		}
	}
	got, _ := s.Query(ctx, QueryParams{Owner: "a", Tags: []string{"%"}})
	if len(got) != 0 {
		t.Errorf("wildcard tag matched %d records", len(got))
	}
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	mem, _ := s.Put(ctx, PutParams{Owner: "a", Content: "old text", Embedding: []float32{1, 2}})
	text := "new text"
	high := model.ImportanceHigh
	tags := []string{"family"}

	got, err := s.Update(ctx, UpdateParams{ID: mem.ID, Content: &text, Importance: &high, Tags: &tags})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Content != "new text" || got.Importance != model.ImportanceHigh || !got.HasTag("family") {
		t.Errorf("unexpected update result: %+v", got)
	}
	if got.Embedding != nil {
		t.Error("expected embedding cleared after text edit")
	}

	reread, _ := s.Get(ctx, mem.ID)
	if reread.Content != "new text" {
		t.Errorf("update not persisted: %q", reread.Content)
	}
	if !reread.CreatedAt.Equal(mem.CreatedAt) {
		t.Error("created_at must not change on update")
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	mem, _ := s.Put(ctx, PutParams{Owner: "a", Content: "temporary"})
	if err := s.Delete(ctx, mem.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, mem.ID); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected not found after delete, got %v", err)
	}
	if err := s.Delete(ctx, mem.ID); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected not found on second delete, got %v", err)
	}
}

func TestGetManyKeepsOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a, _ := s.Put(ctx, PutParams{Owner: "o", Content: "a"})
	b, _ := s.Put(ctx, PutParams{Owner: "o", Content: "b"})

	got, err := s.GetMany(ctx, []string{b.ID, "gone", a.ID})
	if err != nil {
		t.Fatalf("get many: %v", err)
	}
	if len(got) != 2 || got[0].ID != b.ID || got[1].ID != a.ID {
		t.Errorf("unexpected result: %+v", got)
	}
}

func TestComponentsRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	c := model.PromptComponent{
		ID: "p1", Category: model.CategoryPersonality, Template: "Be warm.", Weight: 1,
		SuccessRate: 0.5, Provenance: model.ProvenanceSeed, Tags: []string{"casual"},
	}
	if err := s.SaveComponents(ctx, []model.PromptComponent{c}); err != nil {
		t.Fatalf("save: %v", err)
	}
	c.UsageCount = 4
	c.SuccessRate = 0.9
	if err := s.SaveComponents(ctx, []model.PromptComponent{c}); err != nil {
		t.Fatalf("save again: %v", err)
	}

	got, err := s.LoadComponents(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 1 || got[0].UsageCount != 4 || got[0].SuccessRate != 0.9 || got[0].Tags[0] != "casual" {
		t.Errorf("unexpected components: %+v", got)
	}

	if err := s.DeleteComponents(ctx, []string{"p1"}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, _ = s.LoadComponents(ctx)
	if len(got) != 0 {
		t.Errorf("expected no components, got %d", len(got))
	}
}

func TestSelectionAndThreadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	sel := model.Selection{
		ID: "sel-1", ThreadID: "t1", Level: model.LevelFull,
		Choices: map[model.Category]string{model.CategoryPersonality: "p1", model.CategoryContextFramer: model.NoneComponent},
	}
	if err := s.SaveSelection(ctx, sel); err != nil {
		t.Fatalf("save selection: %v", err)
	}
	got, err := s.GetSelection(ctx, "sel-1")
	if err != nil {
		t.Fatalf("get selection: %v", err)
	}
	if got.Choices[model.CategoryPersonality] != "p1" || got.Level != model.LevelFull {
		t.Errorf("unexpected selection: %+v", got)
	}

	if _, err := s.LoadThread(ctx, "t1"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected thread not found, got %v", err)
	}
	cc := model.NewConversationContext("t1")
	cc.Turns = 3
	cc.Summary = "talked about tea"
	if err := s.SaveThread(ctx, cc); err != nil {
		t.Fatalf("save thread: %v", err)
	}
	loaded, err := s.LoadThread(ctx, "t1")
	if err != nil {
		t.Fatalf("load thread: %v", err)
	}
	if loaded.Turns != 3 || loaded.Summary != "talked about tea" {
		t.Errorf("unexpected thread: %+v", loaded)
	}
}
