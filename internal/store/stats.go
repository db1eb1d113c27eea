package store

import (
	"context"
	"os"

	"github.com/m-mizutani/goerr/v2"
)

// Stats holds database statistics.
type Stats struct {
	DBPath        string       `json:"db_path"`
	DBSizeBytes   int64        `json:"db_size_bytes"`
	TotalMemories int          `json:"total_memories"`
	Components    int          `json:"components"`
	Selections    int          `json:"selections"`
	Threads       int          `json:"threads"`
	Owners        []OwnerStats `json:"owners"`
}

// OwnerStats holds per-owner counts.
type OwnerStats struct {
	Owner string `json:"owner"`
	Count int    `json:"count"`
	High  int    `json:"high_importance"`
}

// Stats returns database statistics.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{DBPath: s.path}
	if info, err := os.Stat(s.path); err == nil {
		st.DBSizeBytes = info.Size()
	}

	for q, dst := range map[string]*int{
		`SELECT COUNT(*) FROM memories`:   &st.TotalMemories,
		`SELECT COUNT(*) FROM components`: &st.Components,
		`SELECT COUNT(*) FROM selections`: &st.Selections,
		`SELECT COUNT(*) FROM threads`:    &st.Threads,
	} {
		if err := s.db.QueryRowContext(ctx, q).Scan(dst); err != nil {
			return nil, goerr.Wrap(err, "failed to count rows")
		}
	}

	owners, err := s.Owners(ctx)
	if err != nil {
		return st, err
	}
	st.Owners = owners
	return st, nil
}

// Owners lists every owner scope with its record counts.
func (s *SQLiteStore) Owners(ctx context.Context) ([]OwnerStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT owner, COUNT(*) AS cnt, SUM(CASE WHEN importance = 'high' THEN 1 ELSE 0 END)
		FROM memories GROUP BY owner ORDER BY cnt DESC, owner`)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list owners")
	}
	defer rows.Close()

	var out []OwnerStats
	for rows.Next() {
		var o OwnerStats
		if err := rows.Scan(&o.Owner, &o.Count, &o.High); err != nil {
			return nil, goerr.Wrap(err, "failed to scan owner")
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
