package cache

import (
	"testing"
	"time"

	"companion-backend/storage"
)

func TestContextCache_HitMissInvalidate(t *testing.T) {
	c := NewContextCache(time.Hour)

	if _, ok := c.Get(1); ok {
		t.Fatal("expected miss on empty cache")
	}

	turns := []storage.Turn{
		{ID: 1, Role: "user", Content: "hi"},
		{ID: 2, Role: "assistant", Content: "hello"},
	}
	c.Set(1, turns)

	got, ok := c.Get(1)
	if !ok {
		t.Fatal("expected hit")
	}
	if len(got) != 2 || got[0].Content != "hi" || got[1].Content != "hello" {
		t.Errorf("unexpected cached turns: %+v", got)
	}

	c.Invalidate(1)
	if _, ok := c.Get(1); ok {
		t.Error("expected miss after invalidation")
	}
}

func TestContextCache_Expiry(t *testing.T) {
	c := NewContextCache(time.Hour)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Set(1, []storage.Turn{{ID: 1, Role: "user", Content: "hi"}})

	now = now.Add(59 * time.Minute)
	if _, ok := c.Get(1); !ok {
		t.Error("expected hit before TTL")
	}

	now = now.Add(2 * time.Minute)
	if _, ok := c.Get(1); ok {
		t.Error("expected miss after TTL")
	}
}

func TestContextCache_GetReturnsCopy(t *testing.T) {
	c := NewContextCache(time.Hour)
	c.Set(1, []storage.Turn{{ID: 1, Role: "user", Content: "hi"}})

	got, _ := c.Get(1)
	got[0].Content = "mutated"

	again, _ := c.Get(1)
	if again[0].Content != "hi" {
		t.Error("cache entry mutated through returned slice")
	}
}

func TestSelectionCache_Basic(t *testing.T) {
	c := NewSelectionCache(time.Hour)

	if _, ok := c.Get("user-1"); ok {
		t.Fatal("expected miss for unknown user")
	}

	c.Set("user-1", 42)
	id, ok := c.Get("user-1")
	if !ok || id != 42 {
		t.Errorf("expected 42, got %d (hit=%v)", id, ok)
	}

	c.Clear("user-1")
	if _, ok := c.Get("user-1"); ok {
		t.Error("expected miss after clear")
	}
}

func TestSelectionCache_Expiry(t *testing.T) {
	c := NewSelectionCache(time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Set("user-1", 7)
	now = now.Add(2 * time.Minute)
	if _, ok := c.Get("user-1"); ok {
		t.Error("expected miss after TTL")
	}
}
