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

// SaveThread persists the conversation context of one thread.
func (s *SQLiteStore) SaveThread(ctx context.Context, c model.ConversationContext) error {
	b, err := json.Marshal(c)
	if err != nil {
		return goerr.Wrap(err, "failed to encode thread context")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO threads (thread_id, context, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(thread_id) DO UPDATE SET context = excluded.context, updated_at = excluded.updated_at`,
		c.ThreadID, string(b), time.Now().UTC().Format(timeLayout))
	if err != nil {
		return goerr.Wrap(err, "failed to save thread", goerr.V("thread", c.ThreadID))
	}
	return nil
}

// LoadThread returns the stored context of a thread, or model.ErrNotFound.
func (s *SQLiteStore) LoadThread(ctx context.Context, threadID string) (model.ConversationContext, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT context FROM threads WHERE thread_id = ?`, threadID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ConversationContext{}, goerr.Wrap(model.ErrNotFound, "thread not found", goerr.V("thread", threadID))
	}
	if err != nil {
		return model.ConversationContext{}, goerr.Wrap(err, "failed to load thread", goerr.V("thread", threadID))
	}
	var c model.ConversationContext
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return c, goerr.Wrap(err, "failed to decode thread", goerr.V("thread", threadID))
	}
	return c, nil
}
