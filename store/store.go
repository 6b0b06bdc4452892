// Package store is the SQLite persistence layer. One Store owns every
// table; the vector index files live outside the database and are only
// referenced from here through the cached chunk embeddings.
package store

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Store is the SQLite-backed persistence layer shared by the bot and
// the admin server.
type Store struct {
	db   *sql.DB
	mu   sync.RWMutex
	path string

	// archive mirrors conversation writes to MongoDB when configured
	archive *Archive
}

// New opens (or creates) the database at dbPath and prepares the
// schema. If dbPath is empty, an in-memory database is used. The parent
// directory is created when missing.
func New(dbPath string) (*Store, error) {
	if dbPath == "" {
		dbPath = ":memory:"
	}

	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create directory for database: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	if err := s.configure(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// configure applies the connection pragmas. WAL keeps the admin server
// and the bot from blocking each other on the shared file.
func (s *Store) configure() error {
	pragmas := []string{
		`PRAGMA journal_mode = WAL`,
		`PRAGMA busy_timeout = 30000`,
		`PRAGMA foreign_keys = ON`,
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

// initSchema creates the necessary tables
func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS kb_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		category TEXT NOT NULL,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_kb_entries_active ON kb_entries(active);

	CREATE TABLE IF NOT EXISTS kb_chunks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		entry_id INTEGER NOT NULL REFERENCES kb_entries(id) ON DELETE CASCADE,
		chunk_index INTEGER NOT NULL,
		text TEXT NOT NULL,
		embedding BLOB,
		updated_at INTEGER NOT NULL,
		UNIQUE(entry_id, chunk_index)
	);

	CREATE TABLE IF NOT EXISTS conversations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		username TEXT,
		role TEXT NOT NULL,
		text TEXT NOT NULL,
		sources TEXT,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_conversations_user_id ON conversations(user_id, id);
	CREATE INDEX IF NOT EXISTS idx_conversations_created_at ON conversations(created_at);

	CREATE TABLE IF NOT EXISTS conversation_summaries (
		user_id INTEGER PRIMARY KEY,
		summary TEXT NOT NULL,
		message_count INTEGER NOT NULL DEFAULT 0,
		last_message_id INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS agent_requests (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		username TEXT,
		platform_handle TEXT,
		reason TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at INTEGER NOT NULL,
		handled_at INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_agent_requests_status ON agent_requests(status);

	CREATE TABLE IF NOT EXISTS appointments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		username TEXT,
		platform_handle TEXT,
		service TEXT NOT NULL,
		preferred_date TEXT NOT NULL,
		preferred_time TEXT NOT NULL,
		notes TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_appointments_status ON appointments(status);

	CREATE TABLE IF NOT EXISTS live_chats (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		username TEXT,
		active INTEGER NOT NULL DEFAULT 1,
		started_at INTEGER NOT NULL,
		ended_at INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_live_chats_user_active ON live_chats(user_id, active);

	CREATE TABLE IF NOT EXISTS unanswered_questions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		username TEXT,
		question TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'open',
		created_at INTEGER NOT NULL,
		resolved_at INTEGER
	);

	CREATE TABLE IF NOT EXISTS business_hours (
		day_of_week INTEGER PRIMARY KEY,
		open_time TEXT,
		close_time TEXT,
		closed INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS special_days (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		date TEXT NOT NULL UNIQUE,
		name TEXT,
		open_time TEXT,
		close_time TEXT,
		closed INTEGER NOT NULL DEFAULT 1,
		notes TEXT,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS referrals (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		referrer_id INTEGER NOT NULL UNIQUE,
		referred_id INTEGER UNIQUE,
		code TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL DEFAULT 'pending',
		code_sent INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		completed_at INTEGER
	);

	CREATE TABLE IF NOT EXISTS referral_credits (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		amount INTEGER NOT NULL,
		type TEXT NOT NULL,
		reason TEXT,
		used INTEGER NOT NULL DEFAULT 0,
		expires_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_referral_credits_user ON referral_credits(user_id);

	CREATE TABLE IF NOT EXISTS subscribers (
		user_id INTEGER PRIMARY KEY,
		username TEXT,
		subscribed INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS broadcasts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		text TEXT NOT NULL,
		audience TEXT NOT NULL,
		recipient_count INTEGER NOT NULL DEFAULT 0,
		sent_count INTEGER NOT NULL DEFAULT 0,
		failed_count INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'queued',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return err
	}

	// Migrations for databases created before these columns existed.
	// SQLite has no IF NOT EXISTS for ADD COLUMN, so errors are ignored.
	_ = s.migrateAddHandleColumns()
	_ = s.migrateAddSpecialDayNotes()
	_ = s.migrateAddReferralCodeSent()

	return nil
}

// migrateAddHandleColumns adds platform_handle to the tables that grew
// it after launch.
func (s *Store) migrateAddHandleColumns() error {
	_, _ = s.db.Exec(`ALTER TABLE agent_requests ADD COLUMN platform_handle TEXT`)
	_, _ = s.db.Exec(`ALTER TABLE appointments ADD COLUMN platform_handle TEXT`)
	return nil
}

// migrateAddSpecialDayNotes adds the notes column to special_days
func (s *Store) migrateAddSpecialDayNotes() error {
	_, _ = s.db.Exec(`ALTER TABLE special_days ADD COLUMN notes TEXT`)
	return nil
}

// migrateAddReferralCodeSent adds the code_sent flag to referrals
func (s *Store) migrateAddReferralCodeSent() error {
	_, _ = s.db.Exec(`ALTER TABLE referrals ADD COLUMN code_sent INTEGER NOT NULL DEFAULT 0`)
	return nil
}

// SetArchive attaches the optional MongoDB conversation mirror. Writes
// to the mirror are best effort and never fail the primary write.
func (s *Store) SetArchive(a *Archive) {
	s.archive = a
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// unixOrZero converts a nullable unix-seconds column to a time.Time,
// zero when NULL.
func unixOrZero(n sql.NullInt64) time.Time {
	if !n.Valid || n.Int64 == 0 {
		return time.Time{}
	}
	return time.Unix(n.Int64, 0).UTC()
}

// nullUnix converts a time to a nullable unix-seconds value, NULL when
// the time is zero.
func nullUnix(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.Unix()
}

// encodeEmbedding packs a vector as little-endian float32 bytes
func encodeEmbedding(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeEmbedding unpacks little-endian float32 bytes, nil on any
// malformed length so a corrupt cache just forces re-embedding.
func decodeEmbedding(b []byte) []float32 {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

// encodeSources marshals the source list for the sources TEXT column
func encodeSources(sources []string) interface{} {
	if len(sources) == 0 {
		return nil
	}
	data, err := json.Marshal(sources)
	if err != nil {
		return nil
	}
	return string(data)
}

// decodeSources unmarshals the sources column, nil when empty
func decodeSources(n sql.NullString) []string {
	if !n.Valid || n.String == "" {
		return nil
	}
	var sources []string
	if err := json.Unmarshal([]byte(n.String), &sources); err != nil {
		return nil
	}
	return sources
}
