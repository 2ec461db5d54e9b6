package store

import (
	"bytes"
	"compress/gzip"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Schema for the context store database. The chunks table is the append
// log; sessions records one row per chat run for `ted store sessions`.
const schema = `
CREATE TABLE IF NOT EXISTS chunks (
    id TEXT PRIMARY KEY,
    sequence INTEGER NOT NULL UNIQUE,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    type TEXT NOT NULL CHECK (type IN ('message', 'tool_call', 'summary')),
    tier TEXT NOT NULL DEFAULT 'hot' CHECK (tier IN ('hot', 'warm', 'cold')),
    content TEXT,
    content_gz BLOB
);

CREATE INDEX IF NOT EXISTS idx_chunks_type ON chunks(type, sequence);
CREATE INDEX IF NOT EXISTS idx_chunks_tier ON chunks(tier);

CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    provider TEXT NOT NULL,
    model TEXT NOT NULL,
    started_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    status TEXT DEFAULT 'active'
);

CREATE TABLE IF NOT EXISTS metadata (
    key TEXT PRIMARY KEY,
    value TEXT
);
`

const schemaVersion = 1

type migration struct {
	version     int
	description string
	up          func(db *sql.DB) error
}

// migrations upgrade databases created before a schema change. The base
// schema const always contains the full current schema, so a fresh database
// never runs these.
var migrations = []migration{}

// Config for the SQLite context store.
type Config struct {
	// Path to the database file. Empty means the XDG data dir default.
	Path string
	// ColdThreshold is the age past which Compact moves chunks down a
	// tier. Zero compacts everything immediately.
	ColdThreshold time.Duration
}

// DefaultDBPath returns the XDG data location of the store.
func DefaultDBPath() (string, error) {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "ted", "context.db"), nil
}

// SQLiteStore implements Store on a single SQLite file with WAL. Hot
// chunks are additionally held in an in-memory index; since every chunk is
// durably inserted on append, replay after a restart recovers the full set
// regardless of tier.
type SQLiteStore struct {
	db  *sql.DB
	cfg Config

	mu  sync.Mutex // serializes appends and compaction
	hot map[int64]Chunk
}

func Open(cfg Config) (*SQLiteStore, error) {
	dbPath := cfg.Path
	if dbPath == "" {
		var err error
		dbPath, err = DefaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("resolve db path: %w", err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	s := &SQLiteStore{db: db, cfg: cfg, hot: make(map[int64]Chunk)}
	if err := s.loadHotIndex(); err != nil {
		db.Close()
		return nil, fmt.Errorf("rebuild hot index: %w", err)
	}
	return s, nil
}

func initSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return err
	}

	var current int
	err := db.QueryRow(`SELECT value FROM metadata WHERE key = 'schema_version'`).Scan(&current)
	if err == sql.ErrNoRows {
		_, err = db.Exec(`INSERT INTO metadata (key, value) VALUES ('schema_version', ?)`, schemaVersion)
		return err
	}
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := m.up(db); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.version, m.description, err)
		}
		if _, err := db.Exec(`UPDATE metadata SET value = ? WHERE key = 'schema_version'`, m.version); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) loadHotIndex() error {
	rows, err := s.db.Query(`SELECT id, sequence, created_at, type, content FROM chunks WHERE tier = 'hot' ORDER BY sequence`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var c Chunk
		var content sql.NullString
		if err := rows.Scan(&c.ID, &c.Sequence, &c.CreatedAt, &c.Type, &content); err != nil {
			return err
		}
		c.Tier = TierHot
		if content.Valid {
			c.Content = json.RawMessage(content.String)
		}
		s.hot[c.Sequence] = c
	}
	return rows.Err()
}

// Append assigns the next sequence number and durably inserts the chunk.
// The chunk is returned with its assigned id and sequence.
func (s *SQLiteStore) Append(chunkType ChunkType, content interface{}) (Chunk, error) {
	raw, err := json.Marshal(content)
	if err != nil {
		return Chunk{}, fmt.Errorf("marshal chunk content: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return Chunk{}, err
	}
	defer tx.Rollback()

	var next int64
	if err := tx.QueryRow(`SELECT COALESCE(MAX(sequence), -1) + 1 FROM chunks`).Scan(&next); err != nil {
		return Chunk{}, err
	}

	c := Chunk{
		ID:        uuid.NewString(),
		Sequence:  next,
		CreatedAt: time.Now().UTC(),
		Type:      chunkType,
		Tier:      TierHot,
		Content:   raw,
	}
	_, err = tx.Exec(
		`INSERT INTO chunks (id, sequence, created_at, type, tier, content) VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.Sequence, c.CreatedAt, string(c.Type), string(c.Tier), string(raw),
	)
	if err != nil {
		return Chunk{}, fmt.Errorf("insert chunk: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Chunk{}, err
	}

	s.hot[c.Sequence] = c
	return c, nil
}

// GetAll returns every chunk in sequence order, decompressing cold ones.
func (s *SQLiteStore) GetAll() ([]Chunk, error) {
	return s.query(`SELECT id, sequence, created_at, type, tier, content, content_gz FROM chunks ORDER BY sequence`)
}

// GetByType returns all chunks of one type in sequence order.
func (s *SQLiteStore) GetByType(chunkType ChunkType) ([]Chunk, error) {
	return s.query(
		`SELECT id, sequence, created_at, type, tier, content, content_gz FROM chunks WHERE type = ? ORDER BY sequence`,
		string(chunkType),
	)
}

func (s *SQLiteStore) query(q string, args ...interface{}) ([]Chunk, error) {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		var content sql.NullString
		var gz []byte
		if err := rows.Scan(&c.ID, &c.Sequence, &c.CreatedAt, &c.Type, &c.Tier, &content, &gz); err != nil {
			return nil, err
		}
		switch {
		case content.Valid:
			c.Content = json.RawMessage(content.String)
		case len(gz) > 0:
			raw, err := gunzip(gz)
			if err != nil {
				return nil, fmt.Errorf("decompress chunk %s: %w", c.ID, err)
			}
			c.Content = raw
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// Compact demotes chunks older than the cold threshold one tier: hot rows
// become warm and leave the in-memory index, warm rows are gzipped into
// content_gz and become cold. Running it twice in a row is harmless.
func (s *SQLiteStore) Compact() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().UTC().Add(-s.cfg.ColdThreshold)

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// warm to cold first so freshly demoted hot rows wait one more cycle
	rows, err := tx.Query(`SELECT id, content FROM chunks WHERE tier = 'warm' AND created_at <= ?`, cutoff)
	if err != nil {
		return err
	}
	type demotion struct {
		id string
		gz []byte
	}
	var demote []demotion
	for rows.Next() {
		var id string
		var content sql.NullString
		if err := rows.Scan(&id, &content); err != nil {
			rows.Close()
			return err
		}
		if !content.Valid {
			continue
		}
		gz, err := gzipBytes([]byte(content.String))
		if err != nil {
			rows.Close()
			return fmt.Errorf("compress chunk %s: %w", id, err)
		}
		demote = append(demote, demotion{id: id, gz: gz})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, d := range demote {
		if _, err := tx.Exec(
			`UPDATE chunks SET tier = 'cold', content = NULL, content_gz = ? WHERE id = ?`,
			d.gz, d.id,
		); err != nil {
			return err
		}
	}

	result, err := tx.Exec(`UPDATE chunks SET tier = 'warm' WHERE tier = 'hot' AND created_at <= ?`, cutoff)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	if n, err := result.RowsAffected(); err == nil && n > 0 {
		for seq, c := range s.hot {
			if !c.CreatedAt.After(cutoff) {
				delete(s.hot, seq)
			}
		}
	}
	return nil
}

// Stats counts chunks per tier and reports the next sequence number.
func (s *SQLiteStore) Stats() (Stats, error) {
	var st Stats
	rows, err := s.db.Query(`SELECT tier, COUNT(*) FROM chunks GROUP BY tier`)
	if err != nil {
		return st, err
	}
	defer rows.Close()
	for rows.Next() {
		var tier string
		var count int
		if err := rows.Scan(&tier, &count); err != nil {
			return st, err
		}
		st.Total += count
		switch Tier(tier) {
		case TierHot:
			st.Hot = count
		case TierWarm:
			st.Warm = count
		case TierCold:
			st.Cold = count
		}
	}
	if err := rows.Err(); err != nil {
		return st, err
	}
	if err := s.db.QueryRow(`SELECT COALESCE(MAX(sequence), -1) + 1 FROM chunks`).Scan(&st.NextSequence); err != nil {
		return st, err
	}
	return st, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// RecordSession inserts a session row for the store CLI's listing.
func (s *SQLiteStore) RecordSession(provider, model string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(
		`INSERT INTO sessions (id, provider, model) VALUES (?, ?, ?)`,
		id, provider, model,
	)
	return id, err
}

// Sessions returns recorded sessions, newest first.
func (s *SQLiteStore) Sessions() ([]SessionInfo, error) {
	rows, err := s.db.Query(`SELECT id, provider, model, started_at, status FROM sessions ORDER BY started_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sessions []SessionInfo
	for rows.Next() {
		var si SessionInfo
		if err := rows.Scan(&si.ID, &si.Provider, &si.Model, &si.StartedAt, &si.Status); err != nil {
			return nil, err
		}
		sessions = append(sessions, si)
	}
	return sessions, rows.Err()
}

// SessionInfo is one row of the sessions table.
type SessionInfo struct {
	ID        string
	Provider  string
	Model     string
	StartedAt time.Time
	Status    string
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gunzip(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
