package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/asg017/sqlite-vec-go-bindings/ncruces"
	_ "github.com/ncruces/go-sqlite3/driver"
)

// SQLiteStore is the SQLite-backed Storer. Thread-safe: every mutation takes
// the write lock, every read the read lock, matching the "Store is the only
// writer to the SQLite file" ownership rule.
type SQLiteStore struct {
	mu sync.RWMutex
	db *sql.DB
}

const currentSchemaVersion = 1

// schema creates every table the memory core persists to, plus the FTS5
// shadow of memories kept in sync by write-time triggers. Additive only:
// future migrations append columns/tables, never drop them destructively.
const schema = `
CREATE TABLE IF NOT EXISTS schema_info (
    version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS memories (
    id TEXT PRIMARY KEY,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    content TEXT NOT NULL,
    kind TEXT NOT NULL,
    importance REAL NOT NULL DEFAULT 0.5,
    access_count INTEGER NOT NULL DEFAULT 0,
    last_accessed INTEGER NOT NULL,
    decay_factor REAL NOT NULL DEFAULT 1.0,
    tags TEXT NOT NULL DEFAULT '[]',
    metadata TEXT NOT NULL DEFAULT '{}',
    archived INTEGER NOT NULL DEFAULT 0,
    vectorized INTEGER NOT NULL DEFAULT 0,
    emotion_tag TEXT NOT NULL DEFAULT '',
    conflict_flag INTEGER NOT NULL DEFAULT 0,
    user_pinned INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_memories_kind ON memories(kind) WHERE archived = 0;
CREATE INDEX IF NOT EXISTS idx_memories_archived ON memories(archived);
CREATE INDEX IF NOT EXISTS idx_memories_vectorized ON memories(vectorized) WHERE archived = 0;
CREATE INDEX IF NOT EXISTS idx_memories_last_accessed ON memories(last_accessed);

-- FTS5 shadow, tokenized with unicode61 so CJK content is indexed as
-- individual codepoint runs rather than dropped by an ASCII tokenizer.
CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(
    id UNINDEXED,
    content,
    tokenize = 'unicode61 remove_diacritics 2'
);

CREATE TRIGGER IF NOT EXISTS memories_fts_ai AFTER INSERT ON memories BEGIN
    INSERT OR REPLACE INTO memories_fts(rowid, id, content)
    VALUES ((SELECT rowid FROM memories WHERE id = new.id), new.id, new.content);
END;

CREATE TRIGGER IF NOT EXISTS memories_fts_au AFTER UPDATE ON memories BEGIN
    INSERT OR REPLACE INTO memories_fts(rowid, id, content)
    VALUES ((SELECT rowid FROM memories WHERE id = new.id), new.id, new.content);
END;

CREATE TRIGGER IF NOT EXISTS memories_fts_ad AFTER DELETE ON memories BEGIN
    DELETE FROM memories_fts WHERE id = old.id;
END;

CREATE TABLE IF NOT EXISTS archive (
    id TEXT PRIMARY KEY,
    archived_at INTEGER NOT NULL,
    payload TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS user_preferences (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS behavior_patterns (
    id TEXT PRIMARY KEY,
    pattern TEXT NOT NULL,
    occurrences INTEGER NOT NULL DEFAULT 1,
    last_seen INTEGER NOT NULL
);
`

// NewSQLiteStore opens (creating if missing) the memory database at dsn.
// ":memory:" is accepted for tests. Opening against a missing file succeeds
// by creating the schema, per the Store's integrity contract.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", dsn, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM schema_info`).Scan(&count); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: read schema_info: %w", err)
	}
	if count == 0 {
		if _, err := db.Exec(`INSERT INTO schema_info(version) VALUES (?)`, currentSchemaVersion); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: seed schema_info: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func (s *SQLiteStore) SchemaVersion() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var v int
	err := s.db.QueryRow(`SELECT version FROM schema_info LIMIT 1`).Scan(&v)
	return v, err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nowMillis() int64 { return time.Now().UnixMilli() }

// Insert writes a new Memory row with vectorized=false and stamped
// timestamps, relying on the FTS trigger to populate the shadow table.
func (s *SQLiteStore) Insert(m *Memory) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := nowMillis()
	if m.CreatedAt == 0 {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	if m.LastAccessed == 0 {
		m.LastAccessed = now
	}
	if m.DecayFactor == 0 {
		m.DecayFactor = 1.0
	}
	m.Vectorized = false

	tags, err := json.Marshal(m.Tags)
	if err != nil {
		return "", fmt.Errorf("store: marshal tags: %w", err)
	}
	meta, err := json.Marshal(m.Metadata)
	if err != nil {
		return "", fmt.Errorf("store: marshal metadata: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO memories (id, created_at, updated_at, content, kind, importance,
			access_count, last_accessed, decay_factor, tags, metadata, archived,
			vectorized, emotion_tag, conflict_flag, user_pinned)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.CreatedAt, m.UpdatedAt, m.Content, string(m.Kind), m.Importance,
		m.AccessCount, m.LastAccessed, m.DecayFactor, string(tags), string(meta),
		boolToInt(m.Archived), boolToInt(m.Vectorized), m.EmotionTag,
		boolToInt(m.ConflictFlag), boolToInt(m.UserPinned))
	if err != nil {
		return "", fmt.Errorf("store: insert memory: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("store: commit insert: %w", err)
	}
	return m.ID, nil
}

func (s *SQLiteStore) Get(id string) (*Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scanOne(s.db.QueryRow(`
		SELECT id, created_at, updated_at, content, kind, importance, access_count,
			last_accessed, decay_factor, tags, metadata, archived, vectorized,
			emotion_tag, conflict_flag, user_pinned
		FROM memories WHERE id = ?
	`, id))
}

func (s *SQLiteStore) scanOne(row *sql.Row) (*Memory, error) {
	var m Memory
	var archived, vectorized, conflictFlag, userPinned int
	var tags, meta string
	err := row.Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt, &m.Content, &m.Kind, &m.Importance,
		&m.AccessCount, &m.LastAccessed, &m.DecayFactor, &tags, &meta, &archived,
		&vectorized, &m.EmotionTag, &conflictFlag, &userPinned)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m.Archived = archived != 0
	m.Vectorized = vectorized != 0
	m.ConflictFlag = conflictFlag != 0
	m.UserPinned = userPinned != 0
	if err := json.Unmarshal([]byte(tags), &m.Tags); err != nil {
		return nil, fmt.Errorf("store: unmarshal tags: %w", err)
	}
	if err := json.Unmarshal([]byte(meta), &m.Metadata); err != nil {
		return nil, fmt.Errorf("store: unmarshal metadata: %w", err)
	}
	return &m, nil
}

// Touch increments access_count, refreshes last_accessed, and resets
// decay_factor to 1.0, all inside one transaction.
func (s *SQLiteStore) Touch(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		UPDATE memories SET access_count = access_count + 1, last_accessed = ?,
			decay_factor = 1.0, updated_at = ? WHERE id = ?
	`, nowMillis(), nowMillis(), id)
	if err != nil {
		return fmt.Errorf("store: touch: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: touch: no such memory %s", id)
	}
	return tx.Commit()
}

// DecayTick multiplies every non-archived row's decay_factor by rate.
func (s *SQLiteStore) DecayTick(rate float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`UPDATE memories SET decay_factor = decay_factor * ? WHERE archived = 0`, rate)
	if err != nil {
		return fmt.Errorf("store: decay_tick: %w", err)
	}
	return nil
}

// Archive moves a row from active to the archive table: it only flips the
// flag and keeps a JSON snapshot reachable via the archive table itself.
// No JSONL archive shard is written, here or by lifecycle's RunArchival.
func (s *SQLiteStore) Archive(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	m, err := s.scanOne(tx.QueryRow(`
		SELECT id, created_at, updated_at, content, kind, importance, access_count,
			last_accessed, decay_factor, tags, metadata, archived, vectorized,
			emotion_tag, conflict_flag, user_pinned
		FROM memories WHERE id = ?
	`, id))
	if err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("store: archive: no such memory %s", id)
	}

	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("store: marshal archive payload: %w", err)
	}

	if _, err := tx.Exec(`INSERT OR REPLACE INTO archive(id, archived_at, payload) VALUES (?, ?, ?)`,
		id, nowMillis(), string(payload)); err != nil {
		return fmt.Errorf("store: insert archive row: %w", err)
	}
	if _, err := tx.Exec(`UPDATE memories SET archived = 1, updated_at = ? WHERE id = ?`, nowMillis(), id); err != nil {
		return fmt.Errorf("store: flag archived: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) Restore(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(`UPDATE memories SET archived = 0, updated_at = ? WHERE id = ?`, nowMillis(), id)
	if err != nil {
		return fmt.Errorf("store: restore: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: restore: no such memory %s", id)
	}
	return nil
}

func (s *SQLiteStore) MarkVectorized(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`UPDATE memories SET vectorized = 1, updated_at = ? WHERE id = ?`, nowMillis(), id)
	if err != nil {
		return fmt.Errorf("store: mark_vectorized: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SetConflictFlag(id string, flag bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`UPDATE memories SET conflict_flag = ?, updated_at = ? WHERE id = ?`,
		boolToInt(flag), nowMillis(), id)
	if err != nil {
		return fmt.Errorf("store: set_conflict: %w", err)
	}
	return nil
}

// FTSSearch ranks memories_fts against query, breaking ties by
// last_accessed DESC then id ASC as the spec requires.
func (s *SQLiteStore) FTSSearch(query string, limit int, window TimeWindow) ([]FTSHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	args := []any{query}
	q := `
		SELECT m.id, bm25(memories_fts) AS rank
		FROM memories_fts
		JOIN memories m ON m.id = memories_fts.id
		WHERE memories_fts MATCH ? AND m.archived = 0
	`
	if !window.IsZero() {
		q += ` AND m.created_at BETWEEN ? AND ?`
		args = append(args, window.Start, window.End)
	}
	q += ` ORDER BY rank ASC, m.last_accessed DESC, m.id ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: fts_search: %w", err)
	}
	defer rows.Close()

	var hits []FTSHit
	for rows.Next() {
		var h FTSHit
		var rank float64
		if err := rows.Scan(&h.ID, &rank); err != nil {
			return nil, err
		}
		// bm25 is negative and unbounded; fold into (0,1] so downstream
		// reranking can treat it like any other normalized sub-score.
		h.Score = 1.0 / (1.0 + (-rank))
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func (s *SQLiteStore) ActiveMemories() ([]*Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.Query(`
		SELECT id, created_at, updated_at, content, kind, importance, access_count,
			last_accessed, decay_factor, tags, metadata, archived, vectorized,
			emotion_tag, conflict_flag, user_pinned
		FROM memories WHERE archived = 0
	`)
	if err != nil {
		return nil, err
	}
	return s.scanAll(rows)
}

func (s *SQLiteStore) RecentMemories(since int64, limit int) ([]*Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.Query(`
		SELECT id, created_at, updated_at, content, kind, importance, access_count,
			last_accessed, decay_factor, tags, metadata, archived, vectorized,
			emotion_tag, conflict_flag, user_pinned
		FROM memories WHERE archived = 0 AND created_at >= ?
		ORDER BY created_at DESC LIMIT ?
	`, since, limit)
	if err != nil {
		return nil, err
	}
	return s.scanAll(rows)
}

func (s *SQLiteStore) scanAll(rows *sql.Rows) ([]*Memory, error) {
	defer rows.Close()
	var out []*Memory
	for rows.Next() {
		var m Memory
		var archived, vectorized, conflictFlag, userPinned int
		var tags, meta string
		if err := rows.Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt, &m.Content, &m.Kind, &m.Importance,
			&m.AccessCount, &m.LastAccessed, &m.DecayFactor, &tags, &meta, &archived,
			&vectorized, &m.EmotionTag, &conflictFlag, &userPinned); err != nil {
			return nil, err
		}
		m.Archived = archived != 0
		m.Vectorized = vectorized != 0
		m.ConflictFlag = conflictFlag != 0
		m.UserPinned = userPinned != 0
		if err := json.Unmarshal([]byte(tags), &m.Tags); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(meta), &m.Metadata); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

var _ Storer = (*SQLiteStore)(nil)
