// Package storage provides persona reads and seeding
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
)

// Character is a configured AI persona. Immutable after creation except by
// administrative update.
type Character struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	PersonalityType string `json:"personality_type"`
	BasePrompt      string `json:"-"`
	AvatarURL       string `json:"avatar_url,omitempty"`
	IsPremium       bool   `json:"is_premium"`
}

// AccessibleBy reports whether a user of the given tier may use this persona
func (c Character) AccessibleBy(userIsPremium bool) bool {
	return !c.IsPremium || userIsPremium
}

// GetCharacter returns a persona by id, or ErrCharacterNotFound
func (s *Store) GetCharacter(ctx context.Context, id int64) (Character, error) {
	var c Character
	var avatar sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, personality_type, base_prompt, avatar_url, is_premium
		 FROM characters WHERE id = ?`, id,
	).Scan(&c.ID, &c.Name, &c.PersonalityType, &c.BasePrompt, &avatar, &c.IsPremium)
	if errors.Is(err, sql.ErrNoRows) {
		return Character{}, ErrCharacterNotFound
	}
	if err != nil {
		return Character{}, fmt.Errorf("query character %d: %w", id, err)
	}
	c.AvatarURL = avatar.String
	return c, nil
}

// ListCharacters returns personas visible to the given subscription tier,
// ordered by id. Free users never see premium personas.
func (s *Store) ListCharacters(ctx context.Context, userIsPremium bool) ([]Character, error) {
	query := `SELECT id, name, personality_type, base_prompt, avatar_url, is_premium
	          FROM characters`
	if !userIsPremium {
		query += ` WHERE is_premium = 0`
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query characters: %w", err)
	}
	defer rows.Close()

	var characters []Character
	for rows.Next() {
		var c Character
		var avatar sql.NullString
		if err := rows.Scan(&c.ID, &c.Name, &c.PersonalityType, &c.BasePrompt, &avatar, &c.IsPremium); err != nil {
			return nil, fmt.Errorf("scan character: %w", err)
		}
		c.AvatarURL = avatar.String
		characters = append(characters, c)
	}
	return characters, rows.Err()
}

// SeedCharacters inserts the default persona set when missing. Existing
// personas (matched by name and personality type) are left untouched.
func (s *Store) SeedCharacters(ctx context.Context) error {
	seed := []Character{
		{
			Name:            "Aanya",
			PersonalityType: "caring",
			BasePrompt: "You are Aanya, a caring and emotionally supportive AI companion. " +
				"You create a safe, judgment-free space for people to share their feelings. " +
				"Your communication style is warm, gentle, and empathetic. You use short, " +
				"conversational messages that feel natural and friendly. You validate feelings " +
				"without trying to fix everything immediately. Keep responses concise " +
				"(2-3 sentences typically) to maintain natural conversation flow.",
			AvatarURL: "https://api.dicebear.com/7.x/avataaars/svg?seed=Aanya",
			IsPremium: false,
		},
		{
			Name:            "Arjun",
			PersonalityType: "flirty",
			BasePrompt: "You are Arjun, a playful and confident AI companion with the energy of " +
				"a gym bro who loves fitness and flirty banter. Your communication style is " +
				"confident, playful, and charismatic with a hint of flirtation. You keep " +
				"messages short, punchy, and engaging, and you mix fitness references naturally " +
				"into conversations. Always be respectful and keep it light and fun.",
			AvatarURL: "https://api.dicebear.com/7.x/avataaars/svg?seed=Arjun",
			IsPremium: false,
		},
		{
			Name:            "Meera",
			PersonalityType: "empathetic",
			BasePrompt: "You are Meera, a deeply empathetic AI companion who understands emotions " +
				"with remarkable depth. You listen more than you advise, reflect feelings back " +
				"with precision, and help people untangle what they are experiencing. Your tone " +
				"is calm, present, and sincere.",
			AvatarURL: "https://api.dicebear.com/7.x/avataaars/svg?seed=Meera",
			IsPremium: true,
		},
	}

	for _, c := range seed {
		var exists int
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM characters WHERE name = ? AND personality_type = ?`,
			c.Name, c.PersonalityType,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check seed character %s: %w", c.Name, err)
		}
		if exists > 0 {
			continue
		}

		_, err = s.db.ExecContext(ctx,
			`INSERT INTO characters (name, personality_type, base_prompt, avatar_url, is_premium)
			 VALUES (?, ?, ?, ?, ?)`,
			c.Name, c.PersonalityType, c.BasePrompt, c.AvatarURL, c.IsPremium,
		)
		if err != nil {
			return fmt.Errorf("seed character %s: %w", c.Name, err)
		}
		log.Printf("[STORAGE] Seeded character %s (%s)", c.Name, c.PersonalityType)
	}
	return nil
}

// CreateCharacter inserts a persona and returns it with its assigned id.
// Administrative operation; personas are otherwise immutable.
func (s *Store) CreateCharacter(ctx context.Context, c Character) (Character, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO characters (name, personality_type, base_prompt, avatar_url, is_premium)
		 VALUES (?, ?, ?, ?, ?)`,
		c.Name, c.PersonalityType, c.BasePrompt, c.AvatarURL, c.IsPremium,
	)
	if err != nil {
		return Character{}, fmt.Errorf("insert character: %w", err)
	}
	c.ID, err = res.LastInsertId()
	if err != nil {
		return Character{}, fmt.Errorf("character id: %w", err)
	}
	return c, nil
}
