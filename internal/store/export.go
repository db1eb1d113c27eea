package store

import (
	"context"
	"errors"

	"github.com/m-mizutani/goerr/v2"

	"github.com/rcliao/memcompose/internal/model"
)

// ExportAll returns every memory, optionally filtered by owner, oldest first.
func (s *SQLiteStore) ExportAll(ctx context.Context, owner string) ([]model.Memory, error) {
	query := `SELECT ` + memoryColumns + ` FROM memories`
	var args []any
	if owner != "" {
		query += ` WHERE owner = ?`
		args = append(args, owner)
	}
	query += ` ORDER BY owner, created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to export memories")
	}
	defer rows.Close()
	return collectMemories(rows)
}

// Import stores memories from an export, keeping ids and creation times.
// Records whose id already exists are skipped.
func (s *SQLiteStore) Import(ctx context.Context, memories []model.Memory) (int, error) {
	imported := 0
	for _, m := range memories {
		if m.ID != "" {
			if _, err := s.Get(ctx, m.ID); err == nil {
				continue
			} else if !errors.Is(err, model.ErrNotFound) {
				return imported, err
			}
		}
		_, err := s.Put(ctx, PutParams{
			ID:         m.ID,
			Owner:      m.Owner,
			Content:    m.Content,
			Kind:       m.Kind,
			Tags:       m.Tags,
			Importance: m.Importance,
			Embedding:  m.Embedding,
			CreatedAt:  m.CreatedAt,
		})
		if err != nil {
			return imported, err
		}
		imported++
	}
	return imported, nil
}
