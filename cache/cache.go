// Package cache provides in-process TTL caches for conversation context and
// persona selection. Entries are never authoritative; callers fall back to
// storage on a miss.
package cache

import (
	"sync"
	"time"

	"companion-backend/storage"
)

// Default lifetimes
const (
	ContextTTL   = time.Hour
	SelectionTTL = 24 * time.Hour
)

// ContextCache holds the most recent turns per conversation, oldest first.
// Writers invalidate whole entries rather than patch them in place, so a
// reader sees either a full fresh suffix or a miss.
type ContextCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[int64]contextEntry
	now     func() time.Time
}

type contextEntry struct {
	turns     []storage.Turn
	expiresAt time.Time
}

// NewContextCache creates a context cache with the given entry TTL
func NewContextCache(ttl time.Duration) *ContextCache {
	if ttl <= 0 {
		ttl = ContextTTL
	}
	return &ContextCache{
		ttl:     ttl,
		entries: make(map[int64]contextEntry),
		now:     time.Now,
	}
}

// Get returns the cached turn suffix for a conversation. The second return
// distinguishes a hit from a miss; callers must handle both branches.
func (c *ContextCache) Get(conversationID int64) ([]storage.Turn, bool) {
	c.mu.RLock()
	entry, ok := c.entries[conversationID]
	c.mu.RUnlock()

	if !ok || c.now().After(entry.expiresAt) {
		return nil, false
	}
	return append([]storage.Turn(nil), entry.turns...), true
}

// Set stores the turn suffix for a conversation, replacing any prior entry
func (c *ContextCache) Set(conversationID int64, turns []storage.Turn) {
	entry := contextEntry{
		turns:     append([]storage.Turn(nil), turns...),
		expiresAt: c.now().Add(c.ttl),
	}
	c.mu.Lock()
	c.entries[conversationID] = entry
	c.mu.Unlock()
}

// Invalidate drops the cached context for a conversation. Called on every
// turn write so the cache never serves a stale suffix.
func (c *ContextCache) Invalidate(conversationID int64) {
	c.mu.Lock()
	delete(c.entries, conversationID)
	c.mu.Unlock()
}

// SelectionCache holds the currently selected persona per user with a TTL,
// standing in for the external key-value association.
type SelectionCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]selectionEntry
	now     func() time.Time
}

type selectionEntry struct {
	characterID int64
	expiresAt   time.Time
}

// NewSelectionCache creates a selection cache with the given entry TTL
func NewSelectionCache(ttl time.Duration) *SelectionCache {
	if ttl <= 0 {
		ttl = SelectionTTL
	}
	return &SelectionCache{
		ttl:     ttl,
		entries: make(map[string]selectionEntry),
		now:     time.Now,
	}
}

// Get returns the user's selected persona id, if any
func (c *SelectionCache) Get(userID string) (int64, bool) {
	c.mu.RLock()
	entry, ok := c.entries[userID]
	c.mu.RUnlock()

	if !ok || c.now().After(entry.expiresAt) {
		return 0, false
	}
	return entry.characterID, true
}

// Set stores the user's selected persona id, refreshing the TTL
func (c *SelectionCache) Set(userID string, characterID int64) {
	entry := selectionEntry{characterID: characterID, expiresAt: c.now().Add(c.ttl)}
	c.mu.Lock()
	c.entries[userID] = entry
	c.mu.Unlock()
}

// Clear drops the user's persona selection
func (c *SelectionCache) Clear(userID string) {
	c.mu.Lock()
	delete(c.entries, userID)
	c.mu.Unlock()
}
