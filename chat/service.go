// Package chat provides the non-streaming service operations: persona
// resolution, history, selection switching and provider status
package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"companion-backend/storage"
)

// RequestError is a user-correctable failure with a stable machine-readable
// code. The transport layer maps it to a 4xx response.
type RequestError struct {
	Code    string
	Message string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// HistoryPage is one page of conversation history with pagination metadata
type HistoryPage struct {
	ConversationID int64          `json:"conversation_id"`
	CharacterID    int64          `json:"character_id"`
	Messages       []storage.Turn `json:"messages"`
	Total          int            `json:"total"`
	Limit          int            `json:"limit"`
	Offset         int            `json:"offset"`
	StartedAt      time.Time      `json:"started_at"`
	LastMessageAt  *time.Time     `json:"last_message_at,omitempty"`
}

// Status is the service health snapshot for the provider endpoint
type Status struct {
	Status             string   `json:"status"`
	CurrentProvider    string   `json:"current_provider"`
	FallbackProvider   string   `json:"fallback_provider,omitempty"`
	AvailableProviders []string `json:"available_providers"`
	AvailableProvider  string   `json:"available_provider,omitempty"`
	CurrentModel       string   `json:"current_model"`
}

// resolvePersona returns the user's currently selected persona. A premium
// persona is never resolvable for a non-premium user: a stale selection left
// over from a lapsed subscription is cleared rather than honored.
func (o *Orchestrator) resolvePersona(ctx context.Context, user User) (storage.Character, error) {
	characterID, ok := o.selection.Get(user.ID)
	if !ok {
		return storage.Character{}, &RequestError{
			Code:    CodeCharacterNotSelected,
			Message: "No character selected. Please select a character first.",
		}
	}

	persona, err := o.store.GetCharacter(ctx, characterID)
	if err != nil {
		if errors.Is(err, storage.ErrCharacterNotFound) {
			o.selection.Clear(user.ID)
			log.Printf("[CHAT] Cleared invalid character selection for user %s", user.ID)
			return storage.Character{}, &RequestError{
				Code:    CodeCharacterNotSelected,
				Message: "No character selected. Please select a character first.",
			}
		}
		return storage.Character{}, err
	}

	if !persona.AccessibleBy(user.Premium) {
		o.selection.Clear(user.ID)
		log.Printf("[CHAT] Cleared inaccessible premium character %d for user %s", persona.ID, user.ID)
		return storage.Character{}, &RequestError{
			Code:    CodeCharacterNotSelected,
			Message: "No character selected. Please select a character first.",
		}
	}

	return persona, nil
}

// SwitchCharacter updates which persona future messages resolve against.
// It creates no conversation; that happens lazily on the first message.
func (o *Orchestrator) SwitchCharacter(ctx context.Context, user User, characterID int64) (storage.Character, error) {
	persona, err := o.store.GetCharacter(ctx, characterID)
	if err != nil {
		if errors.Is(err, storage.ErrCharacterNotFound) {
			return storage.Character{}, &RequestError{Code: CodeCharacterNotFound, Message: "Character not found"}
		}
		return storage.Character{}, fmt.Errorf("switch character: %w", err)
	}

	if !persona.AccessibleBy(user.Premium) {
		return storage.Character{}, &RequestError{
			Code:    CodePremiumRequired,
			Message: "This character requires a premium subscription",
		}
	}

	o.selection.Set(user.ID, characterID)
	log.Printf("[CHAT] User %s selected character %d (%s)", user.ID, characterID, persona.Name)
	return persona, nil
}

// History returns one page of the conversation between the user and their
// selected persona. Pagination bounds are validated before any storage
// access.
func (o *Orchestrator) History(ctx context.Context, user User, limit, offset int) (HistoryPage, error) {
	if limit < 1 || limit > 100 {
		return HistoryPage{}, &RequestError{Code: CodeInvalidPagination, Message: "Limit must be between 1 and 100"}
	}
	if offset < 0 {
		return HistoryPage{}, &RequestError{Code: CodeInvalidPagination, Message: "Offset must be non-negative"}
	}

	persona, err := o.resolvePersona(ctx, user)
	if err != nil {
		return HistoryPage{}, err
	}

	conversation, err := o.contexts.GetOrCreateConversation(ctx, user.ID, persona.ID)
	if err != nil {
		return HistoryPage{}, fmt.Errorf("history conversation: %w", err)
	}

	turns, total, err := o.contexts.TurnsPage(ctx, conversation.ID, limit, offset)
	if err != nil {
		return HistoryPage{}, fmt.Errorf("history page: %w", err)
	}

	return HistoryPage{
		ConversationID: conversation.ID,
		CharacterID:    persona.ID,
		Messages:       turns,
		Total:          total,
		Limit:          limit,
		Offset:         offset,
		StartedAt:      conversation.StartedAt,
		LastMessageAt:  conversation.LastMessageAt,
	}, nil
}

// Characters lists the personas visible to the caller's subscription tier
func (o *Orchestrator) Characters(ctx context.Context, user User) ([]storage.Character, error) {
	return o.store.ListCharacters(ctx, user.Premium)
}

// SwitchProvider changes the registry's current provider pointer
func (o *Orchestrator) SwitchProvider(name string) bool {
	return o.registry.SwitchCurrent(name)
}

// ServiceStatus reports provider health: degraded when no provider passes a
// probe.
func (o *Orchestrator) ServiceStatus(ctx context.Context) Status {
	info := o.registry.Info()
	available, ok := o.registry.SelectAvailable(ctx)

	status := "healthy"
	if !ok {
		status = "degraded"
	}

	return Status{
		Status:             status,
		CurrentProvider:    info.CurrentProvider,
		FallbackProvider:   info.FallbackProvider,
		AvailableProviders: info.AvailableProviders,
		AvailableProvider:  available,
		CurrentModel:       info.CurrentModel,
	}
}
