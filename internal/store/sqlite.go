package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/rcliao/memcompose/internal/model"
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string

	entropyMu sync.Mutex
	entropy   *rand.Rand
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, goerr.Wrap(err, "failed to create db dir", goerr.V("path", dbPath))
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open db", goerr.V("path", dbPath))
	}

	s := &SQLiteStore{
		db:      db,
		path:    dbPath,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, goerr.Wrap(err, "failed to migrate", goerr.V("path", dbPath))
	}
	return s, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string { return s.path }

// NewID returns a fresh ULID string.
func (s *SQLiteStore) NewID() string {
	s.entropyMu.Lock()
	defer s.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS memories (
		id          TEXT PRIMARY KEY,
		owner       TEXT NOT NULL,
		kind        TEXT NOT NULL DEFAULT 'fact',
		content     TEXT NOT NULL,
		tags        TEXT,
		importance  TEXT NOT NULL DEFAULT 'medium',
		embedding   BLOB,
		created_at  TEXT NOT NULL,
		updated_at  TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_memories_owner_created ON memories(owner, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_memories_owner_kind ON memories(owner, kind);

	CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(
		content,
		tags,
		content=memories,
		content_rowid=rowid
	);

	CREATE TRIGGER IF NOT EXISTS memories_ai AFTER INSERT ON memories BEGIN
		INSERT INTO memories_fts(rowid, content, tags) VALUES (new.rowid, new.content, new.tags);
	END;
	CREATE TRIGGER IF NOT EXISTS memories_ad AFTER DELETE ON memories BEGIN
		INSERT INTO memories_fts(memories_fts, rowid, content, tags) VALUES('delete', old.rowid, old.content, old.tags);
	END;
	CREATE TRIGGER IF NOT EXISTS memories_au AFTER UPDATE ON memories BEGIN
		INSERT INTO memories_fts(memories_fts, rowid, content, tags) VALUES('delete', old.rowid, old.content, old.tags);
		INSERT INTO memories_fts(rowid, content, tags) VALUES (new.rowid, new.content, new.tags);
	END;

	CREATE TABLE IF NOT EXISTS components (
		id           TEXT PRIMARY KEY,
		category     TEXT NOT NULL,
		template     TEXT NOT NULL,
		weight       REAL NOT NULL,
		usage_count  INTEGER NOT NULL DEFAULT 0,
		success_rate REAL NOT NULL,
		provenance   TEXT NOT NULL,
		tags         TEXT,
		parent_ids   TEXT,
		created_at   TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_components_category ON components(category);

	CREATE TABLE IF NOT EXISTS selections (
		id         TEXT PRIMARY KEY,
		thread_id  TEXT NOT NULL,
		level      TEXT NOT NULL,
		choices    TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS threads (
		thread_id  TEXT PRIMARY KEY,
		context    TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Put(ctx context.Context, p PutParams) (*model.Memory, error) {
	if strings.TrimSpace(p.Owner) == "" {
		return nil, goerr.New("owner is required")
	}
	if strings.TrimSpace(p.Content) == "" {
		return nil, goerr.New("content is required", goerr.V("owner", p.Owner))
	}
	kind := p.Kind
	if kind == "" {
		kind = model.KindFact
	}
	if !model.ValidKinds[kind] {
		return nil, goerr.New("invalid kind", goerr.V("kind", kind))
	}
	importance := p.Importance
	if importance == "" {
		importance = model.ImportanceMedium
	}
	if !importance.Valid() {
		return nil, goerr.New("invalid importance", goerr.V("importance", importance))
	}

	now := time.Now().UTC()
	created := p.CreatedAt.UTC()
	if p.CreatedAt.IsZero() {
		created = now
	}
	id := p.ID
	if id == "" {
		id = s.NewID()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memories (id, owner, kind, content, tags, importance, embedding, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, p.Owner, string(kind), p.Content, encodeTags(p.Tags), string(importance),
		encodeVector(p.Embedding), created.Format(timeLayout), now.Format(timeLayout))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to insert memory", goerr.V("owner", p.Owner))
	}

	return &model.Memory{
		ID:         id,
		Owner:      p.Owner,
		Kind:       kind,
		Content:    p.Content,
		Tags:       p.Tags,
		Importance: importance,
		Embedding:  p.Embedding,
		CreatedAt:  created,
		UpdatedAt:  now,
	}, nil
}

const memoryColumns = `id, owner, kind, content, tags, importance, embedding, created_at, updated_at`

func (s *SQLiteStore) Get(ctx context.Context, id string) (*model.Memory, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+memoryColumns+` FROM memories WHERE id = ?`, id)
	m, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, goerr.Wrap(model.ErrNotFound, "memory not found", goerr.V("id", id))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get memory", goerr.V("id", id))
	}
	return &m, nil
}

// GetMany returns the records for ids in the given order, skipping ids that
// no longer exist.
func (s *SQLiteStore) GetMany(ctx context.Context, ids []string) ([]model.Memory, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+memoryColumns+` FROM memories WHERE id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get memories")
	}
	defer rows.Close()

	byID := make(map[string]model.Memory, len(ids))
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to scan memory")
		}
		byID[m.ID] = m
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to read memories")
	}

	out := make([]model.Memory, 0, len(byID))
	for _, id := range ids {
		if m, ok := byID[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

// Update edits tags, importance or text of an existing record.
func (s *SQLiteStore) Update(ctx context.Context, p UpdateParams) (*model.Memory, error) {
	m, err := s.Get(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if p.Content != nil {
		if strings.TrimSpace(*p.Content) == "" {
			return nil, goerr.New("content cannot be empty", goerr.V("id", p.ID))
		}
		m.Content = *p.Content
		// stale once the text changes
		m.Embedding = nil
	}
	if p.Tags != nil {
		m.Tags = *p.Tags
	}
	if p.Importance != nil {
		if !p.Importance.Valid() {
			return nil, goerr.New("invalid importance", goerr.V("importance", *p.Importance))
		}
		m.Importance = *p.Importance
	}
	if p.Embedding != nil {
		m.Embedding = p.Embedding
	}
	m.UpdatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx,
		`UPDATE memories SET content = ?, tags = ?, importance = ?, embedding = ?, updated_at = ? WHERE id = ?`,
		m.Content, encodeTags(m.Tags), string(m.Importance), encodeVector(m.Embedding),
		m.UpdatedAt.Format(timeLayout), m.ID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to update memory", goerr.V("id", p.ID))
	}
	return m, nil
}

// Query returns memories matching the filters, newest first.
func (s *SQLiteStore) Query(ctx context.Context, p QueryParams) ([]model.Memory, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}

	where := []string{"1 = 1"}
	var args []any
	if p.Owner != "" {
		where = append(where, "owner = ?")
		args = append(args, p.Owner)
	}
	if p.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(p.Kind))
	}
	for _, tag := range p.Tags {
		where = append(where, "EXISTS (SELECT 1 FROM json_each(memories.tags) WHERE json_each.value = ?)")
		args = append(args, tag)
	}
	if !p.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, p.Since.UTC().Format(timeLayout))
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+memoryColumns+` FROM memories WHERE `+strings.Join(where, " AND ")+`
		 ORDER BY created_at DESC, id DESC LIMIT ?`, args...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query memories", goerr.V("owner", p.Owner))
	}
	defer rows.Close()
	return collectMemories(rows)
}

// Count returns the number of records owned by owner, or all when empty.
func (s *SQLiteStore) Count(ctx context.Context, owner string) (int, error) {
	var n int
	var err error
	if owner == "" {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories`).Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories WHERE owner = ?`, owner).Scan(&n)
	}
	if err != nil {
		return 0, goerr.Wrap(err, "failed to count memories", goerr.V("owner", owner))
	}
	return n, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return goerr.Wrap(err, "failed to delete memory", goerr.V("id", id))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return goerr.Wrap(model.ErrNotFound, "memory not found", goerr.V("id", id))
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMemory(row scanner) (model.Memory, error) {
	var m model.Memory
	var kind, importance, createdAt, updatedAt string
	var tags sql.NullString
	var embedding []byte

	if err := row.Scan(&m.ID, &m.Owner, &kind, &m.Content, &tags, &importance, &embedding, &createdAt, &updatedAt); err != nil {
		return m, err
	}
	m.Kind = model.Kind(kind)
	m.Importance = model.Importance(importance)
	m.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	m.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
	if tags.Valid {
		json.Unmarshal([]byte(tags.String), &m.Tags)
	}
	m.Embedding = decodeVector(embedding)
	return m, nil
}

func collectMemories(rows *sql.Rows) ([]model.Memory, error) {
	var out []model.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to scan memory")
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to read memories")
	}
	return out, nil
}

func encodeTags(tags []string) any {
	if len(tags) == 0 {
		return nil
	}
	b, _ := json.Marshal(tags)
	return string(b)
}

func encodeVector(v []float32) any {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
