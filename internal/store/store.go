// Package store is the SQLite document store for memory records, prompt
// components, selections and per-thread conversation state.
package store

import (
	"context"
	"time"

	"github.com/rcliao/memcompose/internal/model"
)

// PutParams holds parameters for storing a memory.
type PutParams struct {
	Owner      string
	Content    string
	Kind       model.Kind
	Tags       []string
	Importance model.Importance
	Embedding  []float32
	// ID and CreatedAt are kept when set, as on import.
	ID        string
	CreatedAt time.Time
}

// UpdateParams edits a record in place. Nil fields are left unchanged.
type UpdateParams struct {
	ID         string
	Content    *string
	Tags       *[]string
	Importance *model.Importance
	Embedding  []float32
}

// QueryParams filters memories. Results are ordered newest first.
type QueryParams struct {
	Owner string
	Kind  model.Kind
	Tags  []string
	Since time.Time
	Limit int
}

// Store defines the memory storage interface.
type Store interface {
	Put(ctx context.Context, p PutParams) (*model.Memory, error)
	Get(ctx context.Context, id string) (*model.Memory, error)
	GetMany(ctx context.Context, ids []string) ([]model.Memory, error)
	Update(ctx context.Context, p UpdateParams) (*model.Memory, error)
	Query(ctx context.Context, p QueryParams) ([]model.Memory, error)
	Search(ctx context.Context, p SearchParams) ([]SearchResult, error)
	Count(ctx context.Context, owner string) (int, error)
	Delete(ctx context.Context, id string) error
	Close() error
}
