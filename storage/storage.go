// Package storage provides SQLite persistence for personas, conversations
// and turns
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// Sentinel errors surfaced by the storage layer
var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrCharacterNotFound    = errors.New("character not found")
)

// Store wraps the backing database
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at the given path, ensuring
// that the parent directory exists, and initializes the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create db directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open db at %s: %w", path, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db at %s: %w", path, err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}
	return s, nil
}

// Close closes the backing database
func (s *Store) Close() error {
	return s.db.Close()
}

// initSchema creates all tables: characters, conversations, messages.
//
// The UNIQUE(user_id, character_id) index serializes concurrent first-message
// conversation creation: the second creator observes a conflict and re-selects
// the first's row. ON DELETE CASCADE removes a conversation's messages with it.
func (s *Store) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS characters (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			personality_type TEXT NOT NULL,
			base_prompt TEXT NOT NULL,
			avatar_url TEXT,
			is_premium INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL DEFAULT (unixepoch())
		);
		CREATE INDEX IF NOT EXISTS idx_characters_premium_personality
			ON characters(is_premium, personality_type);

		CREATE TABLE IF NOT EXISTS conversations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			character_id INTEGER NOT NULL REFERENCES characters(id) ON DELETE CASCADE,
			message_count INTEGER NOT NULL DEFAULT 0,
			started_at INTEGER NOT NULL DEFAULT (unixepoch()),
			last_message_at INTEGER,
			UNIQUE(user_id, character_id)
		);

		CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id INTEGER NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			role TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
			content TEXT NOT NULL,
			created_at INTEGER NOT NULL DEFAULT (unixepoch())
		);
		CREATE INDEX IF NOT EXISTS idx_messages_conversation_id
			ON messages(conversation_id, id);
	`)
	return err
}
