package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedCharacter(t *testing.T, s *Store, premium bool) Character {
	t.Helper()
	name := "Aanya"
	if premium {
		name = "Meera"
	}
	c, err := s.CreateCharacter(context.Background(), Character{
		Name:            name,
		PersonalityType: "caring",
		BasePrompt:      "You are " + name + ", a caring AI companion.",
		IsPremium:       premium,
	})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestGetOrCreateConversation_Idempotent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	char := seedCharacter(t, s, false)

	first, err := s.GetOrCreateConversation(ctx, "user-1", char.ID)
	if err != nil {
		t.Fatal(err)
	}
	if first.MessageCount != 0 {
		t.Errorf("new conversation should have 0 turns, got %d", first.MessageCount)
	}

	second, err := s.GetOrCreateConversation(ctx, "user-1", char.ID)
	if err != nil {
		t.Fatal(err)
	}
	if second.ID != first.ID {
		t.Errorf("expected same conversation id, got %d and %d", first.ID, second.ID)
	}
}

func TestAppendTurn_CounterMatchesPersistedTurns(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	char := seedCharacter(t, s, false)

	conv, err := s.GetOrCreateConversation(ctx, "user-1", char.ID)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 6; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		if _, err := s.AppendTurn(ctx, conv.ID, role, fmt.Sprintf("message %d", i)); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.GetConversation(ctx, conv.ID)
	if err != nil {
		t.Fatal(err)
	}
	_, total, err := s.TurnsPage(ctx, conv.ID, 100, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got.MessageCount != total {
		t.Errorf("counter %d != persisted turns %d", got.MessageCount, total)
	}
	if got.MessageCount != 6 {
		t.Errorf("expected 6 turns, got %d", got.MessageCount)
	}
	if got.LastMessageAt == nil {
		t.Error("expected last_message_at to be set")
	}
}

func TestAppendTurn_ConversationNotFound(t *testing.T) {
	s := testStore(t)

	_, err := s.AppendTurn(context.Background(), 999, "user", "hello")
	if !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
}

func TestRecentTurns_OldestFirstSuffix(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	char := seedCharacter(t, s, false)

	conv, err := s.GetOrCreateConversation(ctx, "user-1", char.ID)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 8; i++ {
		if _, err := s.AppendTurn(ctx, conv.ID, "user", fmt.Sprintf("m%d", i)); err != nil {
			t.Fatal(err)
		}
	}

	turns, err := s.RecentTurns(ctx, conv.ID, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(turns))
	}
	for i, want := range []string{"m5", "m6", "m7"} {
		if turns[i].Content != want {
			t.Errorf("turn %d: expected %q, got %q", i, want, turns[i].Content)
		}
	}
}

func TestTurnsPage_Pagination(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	char := seedCharacter(t, s, false)

	conv, err := s.GetOrCreateConversation(ctx, "user-1", char.ID)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		if _, err := s.AppendTurn(ctx, conv.ID, "user", fmt.Sprintf("m%d", i)); err != nil {
			t.Fatal(err)
		}
	}

	page, total, err := s.TurnsPage(ctx, conv.ID, 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if total != 5 {
		t.Errorf("expected total 5, got %d", total)
	}
	if len(page) != 2 || page[0].Content != "m2" || page[1].Content != "m3" {
		t.Errorf("unexpected page: %+v", page)
	}
}

func TestDeleteConversation_CascadesTurns(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	char := seedCharacter(t, s, false)

	conv, err := s.GetOrCreateConversation(ctx, "user-1", char.ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.AppendTurn(ctx, conv.ID, "user", "hello"); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteConversation(ctx, conv.ID); err != nil {
		t.Fatal(err)
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM messages WHERE conversation_id = ?`, conv.ID).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("expected cascaded delete, %d messages remain", count)
	}
}

func TestListCharacters_PremiumFilter(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	if err := s.SeedCharacters(ctx); err != nil {
		t.Fatal(err)
	}

	free, err := s.ListCharacters(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range free {
		if c.IsPremium {
			t.Errorf("premium character %s visible to free user", c.Name)
		}
	}

	premium, err := s.ListCharacters(ctx, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(premium) != len(free)+1 {
		t.Errorf("expected premium list to add one persona: free=%d premium=%d", len(free), len(premium))
	}
}

func TestSeedCharacters_Idempotent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.SeedCharacters(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.SeedCharacters(ctx); err != nil {
		t.Fatal(err)
	}

	all, err := s.ListCharacters(ctx, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 seeded characters, got %d", len(all))
	}
}
