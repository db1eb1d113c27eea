// Package vectorindex keeps an in-process similarity index over memory
// embeddings, one chromem collection per owner.
package vectorindex

import (
	"context"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	chromem "github.com/philippgille/chromem-go"

	"github.com/rcliao/memcompose/internal/model"
)

// Hit is one similarity match.
type Hit struct {
	ID         string
	Similarity float64
}

// Index is a per-owner vector index.
type Index struct {
	db *chromem.DB

	mu          sync.RWMutex
	collections map[string]*chromem.Collection
}

// New creates an empty in-memory index.
func New() *Index {
	return &Index{
		db:          chromem.NewDB(),
		collections: make(map[string]*chromem.Collection),
	}
}

func (x *Index) collection(owner string, create bool) (*chromem.Collection, error) {
	x.mu.RLock()
	col, ok := x.collections[owner]
	x.mu.RUnlock()
	if ok || !create {
		return col, nil
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if col, ok := x.collections[owner]; ok {
		return col, nil
	}
	col, err := x.db.CreateCollection("owner_"+owner, nil, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create collection", goerr.V("owner", owner))
	}
	x.collections[owner] = col
	return col, nil
}

// Add indexes m. Records without an embedding are ignored.
func (x *Index) Add(ctx context.Context, m model.Memory) error {
	if len(m.Embedding) == 0 {
		return nil
	}
	col, err := x.collection(m.Owner, true)
	if err != nil {
		return err
	}
	// chromem normalizes in place, keep the caller's slice intact
	emb := make([]float32, len(m.Embedding))
	copy(emb, m.Embedding)

	err = col.AddDocument(ctx, chromem.Document{
		ID:        m.ID,
		Content:   m.Content,
		Embedding: emb,
		Metadata:  map[string]string{"importance": string(m.Importance), "kind": string(m.Kind)},
	})
	if err != nil {
		return goerr.Wrap(err, "failed to index memory", goerr.V("id", m.ID))
	}
	return nil
}

// Remove drops id from owner's collection.
func (x *Index) Remove(ctx context.Context, owner, id string) error {
	col, err := x.collection(owner, false)
	if err != nil || col == nil {
		return err
	}
	if err := col.Delete(ctx, nil, nil, id); err != nil {
		return goerr.Wrap(err, "failed to remove from index", goerr.V("id", id))
	}
	return nil
}

// Query returns up to topK records of owner most similar to vec.
func (x *Index) Query(ctx context.Context, owner string, vec []float32, topK int) ([]Hit, error) {
	col, err := x.collection(owner, false)
	if err != nil || col == nil || topK <= 0 {
		return nil, err
	}
	n := topK
	if c := col.Count(); c < n {
		n = c
	}
	if n == 0 {
		return nil, nil
	}

	q := make([]float32, len(vec))
	copy(q, vec)
	res, err := col.QueryEmbedding(ctx, q, n, nil, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "similarity query failed", goerr.V("owner", owner))
	}
	hits := make([]Hit, len(res))
	for i, r := range res {
		hits[i] = Hit{ID: r.ID, Similarity: float64(r.Similarity)}
	}
	return hits, nil
}

// Len returns the number of indexed records for owner.
func (x *Index) Len(owner string) int {
	col, _ := x.collection(owner, false)
	if col == nil {
		return 0
	}
	return col.Count()
}
