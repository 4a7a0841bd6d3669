// Package storage provides conversation and turn persistence
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Conversation is the exchange history between one user and one persona.
// One active conversation exists per (user, persona) pair; it is created
// lazily on first message.
type Conversation struct {
	ID            int64      `json:"id"`
	UserID        string     `json:"user_id"`
	CharacterID   int64      `json:"character_id"`
	MessageCount  int        `json:"message_count"`
	StartedAt     time.Time  `json:"started_at"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
}

// Turn is a single message within a conversation. Turns are immutable once
// written; ordering is creation time, ties broken by insertion sequence.
type Turn struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// GetOrCreateConversation returns the most-recently-active conversation for
// the (user, persona) pair, creating one with turn count 0 when absent.
// Concurrent first-message races resolve through the UNIQUE(user_id,
// character_id) constraint: the losing insert is a no-op and the winner's
// row is re-selected.
func (s *Store) GetOrCreateConversation(ctx context.Context, userID string, characterID int64) (Conversation, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (user_id, character_id)
		 VALUES (?, ?)
		 ON CONFLICT(user_id, character_id) DO NOTHING`,
		userID, characterID,
	)
	if err != nil {
		return Conversation{}, fmt.Errorf("create conversation: %w", err)
	}

	return s.lookupConversation(ctx, userID, characterID)
}

// lookupConversation selects the most-recently-active conversation for a pair
func (s *Store) lookupConversation(ctx context.Context, userID string, characterID int64) (Conversation, error) {
	var c Conversation
	var started int64
	var last sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, character_id, message_count, started_at, last_message_at
		 FROM conversations
		 WHERE user_id = ? AND character_id = ?
		 ORDER BY last_message_at DESC
		 LIMIT 1`,
		userID, characterID,
	).Scan(&c.ID, &c.UserID, &c.CharacterID, &c.MessageCount, &started, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return Conversation{}, ErrConversationNotFound
	}
	if err != nil {
		return Conversation{}, fmt.Errorf("query conversation: %w", err)
	}

	c.StartedAt = time.Unix(started, 0)
	if last.Valid {
		t := time.Unix(last.Int64, 0)
		c.LastMessageAt = &t
	}
	return c, nil
}

// GetConversation returns a conversation by id, or ErrConversationNotFound
func (s *Store) GetConversation(ctx context.Context, id int64) (Conversation, error) {
	var c Conversation
	var started int64
	var last sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, character_id, message_count, started_at, last_message_at
		 FROM conversations WHERE id = ?`, id,
	).Scan(&c.ID, &c.UserID, &c.CharacterID, &c.MessageCount, &started, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return Conversation{}, ErrConversationNotFound
	}
	if err != nil {
		return Conversation{}, fmt.Errorf("query conversation %d: %w", id, err)
	}

	c.StartedAt = time.Unix(started, 0)
	if last.Valid {
		t := time.Unix(last.Int64, 0)
		c.LastMessageAt = &t
	}
	return c, nil
}

// AppendTurn persists a new turn, increments the conversation's counter and
// updates its last-activity timestamp in one transaction, keeping the
// counter equal to the persisted turn count.
func (s *Store) AppendTurn(ctx context.Context, conversationID int64, role, content string) (Turn, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Turn{}, fmt.Errorf("begin append turn: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE conversations
		 SET message_count = message_count + 1, last_message_at = unixepoch()
		 WHERE id = ?`,
		conversationID,
	)
	if err != nil {
		return Turn{}, fmt.Errorf("update conversation %d: %w", conversationID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return Turn{}, fmt.Errorf("update conversation %d: %w", conversationID, err)
	}
	if affected == 0 {
		return Turn{}, ErrConversationNotFound
	}

	res, err = tx.ExecContext(ctx,
		`INSERT INTO messages (conversation_id, role, content) VALUES (?, ?, ?)`,
		conversationID, role, content,
	)
	if err != nil {
		return Turn{}, fmt.Errorf("insert turn: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Turn{}, fmt.Errorf("turn id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Turn{}, fmt.Errorf("commit append turn: %w", err)
	}

	return Turn{
		ID:             id,
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      time.Now(),
	}, nil
}

// RecentTurns returns up to limit most recent turns, oldest first
func (s *Store) RecentTurns(ctx context.Context, conversationID int64, limit int) ([]Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, role, content, created_at
		 FROM messages
		 WHERE conversation_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		conversationID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent turns: %w", err)
	}
	defer rows.Close()

	turns, err := scanTurns(rows)
	if err != nil {
		return nil, err
	}

	// Newest-first from the query; deliver oldest-first.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// TurnsPage returns one page of turns in chronological order plus the total
// persisted count, for history pagination.
func (s *Store) TurnsPage(ctx context.Context, conversationID int64, limit, offset int) ([]Turn, int, error) {
	var total int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE conversation_id = ?`, conversationID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count turns: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, role, content, created_at
		 FROM messages
		 WHERE conversation_id = ?
		 ORDER BY created_at ASC, id ASC
		 LIMIT ? OFFSET ?`,
		conversationID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("query turns page: %w", err)
	}
	defer rows.Close()

	turns, err := scanTurns(rows)
	if err != nil {
		return nil, 0, err
	}
	return turns, total, nil
}

// DeleteConversation removes a conversation; its turns cascade
func (s *Store) DeleteConversation(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete conversation %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete conversation %d: %w", id, err)
	}
	if affected == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// scanTurns reads turn rows in query order
func scanTurns(rows *sql.Rows) ([]Turn, error) {
	var turns []Turn
	for rows.Next() {
		var t Turn
		var created int64
		if err := rows.Scan(&t.ID, &t.ConversationID, &t.Role, &t.Content, &created); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		t.CreatedAt = time.Unix(created, 0)
		turns = append(turns, t)
	}
	return turns, rows.Err()
}
