package store

import (
	"context"
	"strings"
	"unicode"

	"github.com/m-mizutani/goerr/v2"

	"github.com/rcliao/memcompose/internal/model"
)

// SearchParams holds parameters for a full-text search.
type SearchParams struct {
	Owner string
	Query string
	Kind  model.Kind
	Limit int
}

// SearchResult wraps a memory with its FTS rank (lower is better).
type SearchResult struct {
	model.Memory
	Rank float64 `json:"rank"`
}

// Search finds memories sharing any term with the query, best match first.
func (s *SQLiteStore) Search(ctx context.Context, p SearchParams) ([]SearchResult, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}
	match := ftsQuery(p.Query)
	if match == "" {
		return nil, nil
	}

	where := []string{"memories_fts MATCH ?"}
	args := []any{match}
	if p.Owner != "" {
		where = append(where, "m.owner = ?")
		args = append(args, p.Owner)
	}
	if p.Kind != "" {
		where = append(where, "m.kind = ?")
		args = append(args, string(p.Kind))
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.owner, m.kind, m.content, m.tags, m.importance, m.embedding, m.created_at, m.updated_at,
		       bm25(memories_fts) AS rank
		FROM memories_fts
		JOIN memories m ON m.rowid = memories_fts.rowid
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY rank, m.created_at DESC
		LIMIT ?`, args...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to search memories", goerr.V("query", p.Query))
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		m, err := scanMemory(rankScanner{rows, &r.Rank})
		if err != nil {
			return nil, goerr.Wrap(err, "failed to scan search result")
		}
		r.Memory = m
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to read search results")
	}
	return results, nil
}

// rankScanner appends the rank column to a memory scan.
type rankScanner struct {
	s    scanner
	rank *float64
}

func (r rankScanner) Scan(dest ...any) error {
	return r.s.Scan(append(dest, r.rank)...)
}

// ftsQuery turns free text into an FTS5 OR-query of quoted terms.
func ftsQuery(q string) string {
	seen := map[string]bool{}
	var terms []string
	for _, f := range strings.FieldsFunc(strings.ToLower(q), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len(f) < 2 || stopWords[f] || seen[f] {
			continue
		}
		seen[f] = true
		terms = append(terms, `"`+f+`"`)
	}
	return strings.Join(terms, " OR ")
}

var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true, "be": true, "by": true,
	"did": true, "do": true, "does": true, "for": true, "from": true, "how": true, "in": true,
	"is": true, "it": true, "me": true, "of": true, "on": true, "or": true, "the": true, "to": true,
	"was": true, "what": true, "when": true, "where": true, "who": true, "why": true, "with": true,
	"you": true, "your": true,
}
