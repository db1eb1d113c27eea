package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/rcliao/memcompose/internal/model"
)

// SaveComponents upserts a snapshot of components in one transaction.
func (s *SQLiteStore) SaveComponents(ctx context.Context, comps []model.PromptComponent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return goerr.Wrap(err, "failed to begin tx")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO components (id, category, template, weight, usage_count, success_rate, provenance, tags, parent_ids, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			template = excluded.template,
			weight = excluded.weight,
			usage_count = excluded.usage_count,
			success_rate = excluded.success_rate,
			tags = excluded.tags`)
	if err != nil {
		return goerr.Wrap(err, "failed to prepare component upsert")
	}
	defer stmt.Close()

	for _, c := range comps {
		created := c.CreatedAt
		if created.IsZero() {
			created = time.Now()
		}
		_, err := stmt.ExecContext(ctx, c.ID, string(c.Category), c.Template, c.Weight, c.UsageCount,
			c.SuccessRate, string(c.Provenance), encodeTags(c.Tags), encodeTags(c.ParentIDs),
			created.UTC().Format(timeLayout))
		if err != nil {
			return goerr.Wrap(err, "failed to upsert component", goerr.V("id", c.ID))
		}
	}
	return tx.Commit()
}

// LoadComponents returns every persisted component.
func (s *SQLiteStore) LoadComponents(ctx context.Context) ([]model.PromptComponent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, category, template, weight, usage_count, success_rate, provenance, tags, parent_ids, created_at
		FROM components ORDER BY category, created_at, id`)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load components")
	}
	defer rows.Close()

	var out []model.PromptComponent
	for rows.Next() {
		var c model.PromptComponent
		var category, provenance, created string
		var tags, parents sql.NullString
		if err := rows.Scan(&c.ID, &category, &c.Template, &c.Weight, &c.UsageCount, &c.SuccessRate,
			&provenance, &tags, &parents, &created); err != nil {
			return nil, goerr.Wrap(err, "failed to scan component")
		}
		c.Category = model.Category(category)
		c.Provenance = model.Provenance(provenance)
		c.CreatedAt, _ = time.Parse(timeLayout, created)
		if tags.Valid {
			json.Unmarshal([]byte(tags.String), &c.Tags)
		}
		if parents.Valid {
			json.Unmarshal([]byte(parents.String), &c.ParentIDs)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteComponents removes components by id.
func (s *SQLiteStore) DeleteComponents(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM components WHERE id IN (`+placeholders(len(ids))+`)`, args...); err != nil {
		return goerr.Wrap(err, "failed to delete components")
	}
	return nil
}

// SaveSelection records a selection so feedback can refer to it later.
func (s *SQLiteStore) SaveSelection(ctx context.Context, sel model.Selection) error {
	choices, err := json.Marshal(sel.Choices)
	if err != nil {
		return goerr.Wrap(err, "failed to encode selection")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO selections (id, thread_id, level, choices, created_at) VALUES (?, ?, ?, ?, ?)`,
		sel.ID, sel.ThreadID, string(sel.Level), string(choices), time.Now().UTC().Format(timeLayout))
	if err != nil {
		return goerr.Wrap(err, "failed to save selection", goerr.V("id", sel.ID))
	}
	return nil
}

// GetSelection loads a recorded selection.
func (s *SQLiteStore) GetSelection(ctx context.Context, id string) (*model.Selection, error) {
	var sel model.Selection
	var level, choices string
	err := s.db.QueryRowContext(ctx, `SELECT id, thread_id, level, choices FROM selections WHERE id = ?`, id).
		Scan(&sel.ID, &sel.ThreadID, &level, &choices)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, goerr.Wrap(model.ErrNotFound, "selection not found", goerr.V("id", id))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get selection", goerr.V("id", id))
	}
	sel.Level = model.MemoryLevel(level)
	if err := json.Unmarshal([]byte(choices), &sel.Choices); err != nil {
		return nil, goerr.Wrap(err, "failed to decode selection", goerr.V("id", id))
	}
	return &sel, nil
}
