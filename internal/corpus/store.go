// Package corpus implements the persistent record store for the canonical
// chat corpus: sources, conversations, messages, and the derived
// embedding/relationship/topic tables.
//
// It uses SQLite with schema-level uniqueness constraints so that
// re-ingesting the same export any number of times converges to the same
// row set. Embeddings, relationships, and topics carry no information that
// is not reconstructible from messages — they can be wholesale-deleted and
// rebuilt at any time.
package corpus

import (
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("corpus: not found")

const dbFileName = "corpus.db"

// Config holds store configuration.
type Config struct {
	// DataDir is where the database file lives.
	DataDir string
}

// DefaultConfig returns the default store configuration.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{DataDir: filepath.Join(home, ".corpora")}
}

// Store is the persistent corpus engine backed by SQLite.
//
// The store assumes a single writer per database file; callers own the
// handle's lifetime and must Close it. All query methods return value
// types — mutation happens only through the insert/update operations.
type Store struct {
	db  *sql.DB
	cfg Config
}

// Open creates the data directory if needed, opens SQLite with WAL mode,
// and runs migrations.
func Open(cfg Config) (*Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("corpus: create data dir: %w", err)
	}

	db, err := openDB("sqlite", filepath.Join(cfg.DataDir, dbFileName))
	if err != nil {
		return nil, fmt.Errorf("corpus: open database: %w", err)
	}

	// Single-writer store: one pooled connection keeps the pragmas below
	// (which are per-connection) in force for every statement.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("corpus: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, cfg: cfg}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("corpus: migration: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return filepath.Join(s.cfg.DataDir, dbFileName)
}

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS sources (
			id       TEXT PRIMARY KEY,
			vendor   TEXT NOT NULL CHECK (vendor IN ('chatgpt','claude','gemini','grok')),
			root     TEXT NOT NULL,
			label    TEXT NOT NULL,
			color    TEXT,
			added_at TEXT NOT NULL DEFAULT (datetime('now'))
		);

		CREATE TABLE IF NOT EXISTS conversations (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			source_id    TEXT    NOT NULL,
			external_id  TEXT,
			title        TEXT    NOT NULL DEFAULT '',
			started_at   INTEGER NOT NULL DEFAULT 0,
			updated_at   INTEGER NOT NULL DEFAULT 0,
			raw_path     TEXT,
			content_hash TEXT,
			FOREIGN KEY (source_id) REFERENCES sources(id)
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_conv_source_external
			ON conversations(source_id, external_id);
		CREATE INDEX IF NOT EXISTS idx_conv_updated ON conversations(updated_at DESC);
		CREATE INDEX IF NOT EXISTS idx_conv_hash    ON conversations(content_hash);

		CREATE TABLE IF NOT EXISTS messages (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id INTEGER NOT NULL,
			role            TEXT    NOT NULL CHECK (role IN ('user','assistant','tool','system')),
			created_at      INTEGER NOT NULL DEFAULT 0,
			text            TEXT    NOT NULL,
			dedup_hash      TEXT    NOT NULL,
			FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_msg_dedup
			ON messages(conversation_id, created_at, role, dedup_hash);
		CREATE INDEX IF NOT EXISTS idx_msg_conv ON messages(conversation_id, created_at);

		CREATE TABLE IF NOT EXISTS message_embeddings (
			message_id INTEGER NOT NULL,
			model      TEXT    NOT NULL,
			dimension  INTEGER NOT NULL,
			vector     BLOB    NOT NULL,
			created_at TEXT    NOT NULL DEFAULT (datetime('now')),
			FOREIGN KEY (message_id) REFERENCES messages(id) ON DELETE CASCADE
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_emb_message
			ON message_embeddings(message_id, model);

		CREATE TABLE IF NOT EXISTS relationships (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_a INTEGER NOT NULL,
			conversation_b INTEGER NOT NULL,
			type           TEXT    NOT NULL CHECK (type IN ('similar','related','followup','reference')),
			score          REAL    NOT NULL DEFAULT 0,
			metadata       TEXT,
			created_at     TEXT    NOT NULL DEFAULT (datetime('now')),
			FOREIGN KEY (conversation_a) REFERENCES conversations(id) ON DELETE CASCADE,
			FOREIGN KEY (conversation_b) REFERENCES conversations(id) ON DELETE CASCADE
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_rel_pair
			ON relationships(conversation_a, conversation_b, type);
		CREATE INDEX IF NOT EXISTS idx_rel_a ON relationships(conversation_a);
		CREATE INDEX IF NOT EXISTS idx_rel_b ON relationships(conversation_b);

		CREATE TABLE IF NOT EXISTS topics (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			name        TEXT    NOT NULL UNIQUE,
			description TEXT,
			created_at  TEXT    NOT NULL DEFAULT (datetime('now'))
		);

		CREATE TABLE IF NOT EXISTS message_topics (
			message_id INTEGER NOT NULL,
			topic_id   INTEGER NOT NULL,
			relevance  REAL    NOT NULL DEFAULT 0,
			FOREIGN KEY (message_id) REFERENCES messages(id) ON DELETE CASCADE,
			FOREIGN KEY (topic_id)   REFERENCES topics(id)   ON DELETE CASCADE
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_msgtopic_pair
			ON message_topics(message_id, topic_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// ─── Snapshot ────────────────────────────────────────────────────────────────

// Snapshot writes a consistent copy of the database to path using the
// engine's native file format (VACUUM INTO). The target must not exist;
// an existing file is removed first.
func (s *Store) Snapshot(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("corpus: snapshot dir: %w", err)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("corpus: snapshot target: %w", err)
	}
	if _, err := s.db.Exec(`VACUUM INTO ?`, path); err != nil {
		return fmt.Errorf("corpus: snapshot: %w", err)
	}
	return nil
}

// Restore replaces the live database with the snapshot at path and
// reopens the connection. The previous contents are lost.
func (s *Store) Restore(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("corpus: read snapshot: %w", err)
	}

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("corpus: close before restore: %w", err)
	}

	dbPath := s.Path()
	// WAL sidecar files belong to the old database.
	for _, suffix := range []string{"", "-wal", "-shm"} {
		if err := os.Remove(dbPath + suffix); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("corpus: remove %s: %w", dbPath+suffix, err)
		}
	}
	if err := os.WriteFile(dbPath, data, 0600); err != nil {
		return fmt.Errorf("corpus: write restored db: %w", err)
	}

	reopened, err := Open(s.cfg)
	if err != nil {
		return fmt.Errorf("corpus: reopen after restore: %w", err)
	}
	s.db = reopened.db
	return nil
}

// ─── Stats ───────────────────────────────────────────────────────────────────

// CorpusStats returns aggregate statistics over the whole store.
func (s *Store) CorpusStats() (Stats, error) {
	var st Stats
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM conversations`).Scan(&st.TotalConversations); err != nil {
		return st, fmt.Errorf("corpus: stats conversations: %w", err)
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&st.TotalMessages); err != nil {
		return st, fmt.Errorf("corpus: stats messages: %w", err)
	}
	if err := s.db.QueryRow(`SELECT COALESCE(MAX(updated_at), 0) FROM conversations`).Scan(&st.LastUpdated); err != nil {
		return st, fmt.Errorf("corpus: stats last updated: %w", err)
	}

	sources, err := s.ListSources()
	if err != nil {
		return st, err
	}
	st.Sources = sources
	return st, nil
}

// ClearDerived deletes all embeddings, relationships, and topics. They are
// derived artifacts, recomputable from message data, so this is always safe.
func (s *Store) ClearDerived() error {
	stmts := []string{
		`DELETE FROM message_topics`,
		`DELETE FROM topics`,
		`DELETE FROM relationships`,
		`DELETE FROM message_embeddings`,
	}
	for _, q := range stmts {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("corpus: clear derived: %w", err)
		}
	}
	return nil
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// MessageDedupHash derives the per-message dedup key from role, timestamp,
// and whitespace-normalized text. This is the hard dedup barrier: the
// messages table is unique on (conversation, timestamp, role, hash).
func MessageDedupHash(role string, tsMs int64, text string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(text), " "))
	h := sha256.New()
	fmt.Fprintf(h, "%s\x1f%d\x1f%s", role, tsMs, normalized)
	return hex.EncodeToString(h.Sum(nil))
}

// encodeVector serializes a float32 vector as little-endian bytes.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// decodeVector deserializes a little-endian float32 vector.
func decodeVector(buf []byte) []float32 {
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

// Now returns the current time in epoch milliseconds.
func Now() int64 {
	return time.Now().UnixMilli()
}
