// Package chat provides the context store facade over storage and cache
package chat

import (
	"context"
	"log"

	"companion-backend/cache"
	"companion-backend/storage"
)

// ContextWindow is the fixed number of recent turns kept in the context
// cache and supplied to prompt construction.
const ContextWindow = 5

// ContextStore retrieves and persists conversation turns, serving the most
// recent window from an ephemeral cache when it is present and fresh. The
// persisted turns remain the source of truth; cache trouble degrades to a
// storage read, never an error.
type ContextStore struct {
	store *storage.Store
	ctx   *cache.ContextCache
}

// NewContextStore creates a context store over the given storage and cache
func NewContextStore(store *storage.Store, contextCache *cache.ContextCache) *ContextStore {
	return &ContextStore{store: store, ctx: contextCache}
}

// GetOrCreateConversation looks up or lazily creates the conversation for a
// (user, persona) pair.
func (cs *ContextStore) GetOrCreateConversation(ctx context.Context, userID string, characterID int64) (storage.Conversation, error) {
	return cs.store.GetOrCreateConversation(ctx, userID, characterID)
}

// AppendTurn persists a turn and invalidates the cached context so the next
// read rebuilds a consistent suffix.
func (cs *ContextStore) AppendTurn(ctx context.Context, conversationID int64, role, content string) (storage.Turn, error) {
	turn, err := cs.store.AppendTurn(ctx, conversationID, role, content)
	if err != nil {
		return storage.Turn{}, err
	}
	cs.ctx.Invalidate(conversationID)
	return turn, nil
}

// RecentTurns returns up to limit most recent turns, oldest first. The cache
// serves only the fixed context window; other limits always read storage.
func (cs *ContextStore) RecentTurns(ctx context.Context, conversationID int64, limit int) ([]storage.Turn, error) {
	if limit == ContextWindow {
		if turns, ok := cs.ctx.Get(conversationID); ok {
			log.Printf("[CONTEXT] Cache hit for conversation %d", conversationID)
			return turns, nil
		}
	}

	turns, err := cs.store.RecentTurns(ctx, conversationID, limit)
	if err != nil {
		return nil, err
	}

	if limit == ContextWindow {
		cs.ctx.Set(conversationID, turns)
	}
	return turns, nil
}

// TurnsPage returns one page of turns plus the total count
func (cs *ContextStore) TurnsPage(ctx context.Context, conversationID int64, limit, offset int) ([]storage.Turn, int, error) {
	return cs.store.TurnsPage(ctx, conversationID, limit, offset)
}
