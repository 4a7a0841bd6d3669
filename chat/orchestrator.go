// Package chat provides the chat orchestration state machine
package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"companion-backend/cache"
	"companion-backend/llm"
	"companion-backend/prompt"
	"companion-backend/storage"

	"github.com/google/uuid"
)

// User is the authenticated caller identity resolved by the transport layer
type User struct {
	ID       string
	Premium  bool
	Language string
}

// Notifier receives provider failure alerts. Implementations must be safe
// for concurrent use.
type Notifier interface {
	NotifyProviderError(provider, errType, message string)
}

// Pipeline states. Error is terminal and reachable from any step.
type state int

const (
	stateResolvingPersona state = iota
	stateAwaitingConversation
	stateBuildingPrompt
	stateSelectingProvider
	stateGenerating
	statePersisting
	stateComplete
	stateError
)

// Orchestrator drives a chat request through persona resolution, context
// retrieval, prompt construction, provider selection with failover,
// generation and persistence, emitting an ordered event stream.
type Orchestrator struct {
	registry  *llm.Registry
	contexts  *ContextStore
	store     *storage.Store
	selection *cache.SelectionCache
	builder   *prompt.Builder
	notifier  Notifier

	maxRetries        int
	retryDelay        time.Duration
	generationTimeout time.Duration
}

// NewOrchestrator creates an orchestrator. notifier may be nil.
func NewOrchestrator(registry *llm.Registry, contexts *ContextStore, store *storage.Store, selection *cache.SelectionCache, notifier Notifier) *Orchestrator {
	return &Orchestrator{
		registry:          registry,
		contexts:          contexts,
		store:             store,
		selection:         selection,
		builder:           prompt.NewBuilder(),
		notifier:          notifier,
		maxRetries:        2,
		retryDelay:        time.Second,
		generationTimeout: 60 * time.Second,
	}
}

// ProcessMessage handles one chat request as an independent task. The
// returned channel delivers metadata, content fragments and exactly one
// terminal event, then closes. Cancelling ctx stops delivery; a fully
// generated response is still persisted best-effort.
func (o *Orchestrator) ProcessMessage(ctx context.Context, user User, messageContent string, stream bool) <-chan Event {
	events := make(chan Event, 16)

	go func() {
		defer close(events)
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[CHAT] Panic processing message for user %s: %v", user.ID, r)
				o.emit(ctx, events, errorEvent(CodeProcessingError,
					"An unexpected error occurred while processing your message."))
			}
		}()

		o.run(ctx, user, messageContent, stream, events)
	}()

	return events
}

// run executes the pipeline state machine for a single request
func (o *Orchestrator) run(ctx context.Context, user User, messageContent string, stream bool, events chan<- Event) {
	start := time.Now()

	var (
		persona      storage.Character
		conversation storage.Conversation
		messages     []llm.Message
		providerName string
		response     string
		warning      string
		err          error
	)

	for st := stateResolvingPersona; ; {
		switch st {
		case stateResolvingPersona:
			persona, err = o.resolvePersona(ctx, user)
			if err != nil {
				var reqErr *RequestError
				if errors.As(err, &reqErr) {
					o.emit(ctx, events, errorEvent(reqErr.Code, reqErr.Message))
				} else {
					log.Printf("[CHAT] Persona resolution error for user %s: %v", user.ID, err)
					o.emit(ctx, events, errorEvent(CodeProcessingError,
						"An unexpected error occurred while processing your message."))
				}
				st = stateError
				continue
			}
			st = stateAwaitingConversation

		case stateAwaitingConversation:
			conversation, err = o.contexts.GetOrCreateConversation(ctx, user.ID, persona.ID)
			if err != nil {
				log.Printf("[CHAT] Conversation error for user %s: %v", user.ID, err)
				o.emit(ctx, events, errorEvent(CodeConversationError,
					"Failed to create conversation session."))
				st = stateError
				continue
			}
			st = stateBuildingPrompt

		case stateBuildingPrompt:
			messages, warning, err = o.buildPrompt(ctx, user, persona, conversation, messageContent)
			if err != nil {
				log.Printf("[CHAT] Prompt build error for conversation %d: %v", conversation.ID, err)
				o.emit(ctx, events, errorEvent(CodeConversationError,
					"Failed to prepare the conversation context."))
				st = stateError
				continue
			}
			st = stateSelectingProvider

		case stateSelectingProvider:
			name, ok := o.registry.SelectAvailable(ctx)
			if !ok {
				o.emit(ctx, events, errorEvent(CodeServiceUnavailable,
					"AI service is currently unavailable. Please try again later."))
				st = stateError
				continue
			}
			providerName = name

			o.emit(ctx, events, Event{
				Type:           EventMetadata,
				StreamID:       uuid.NewString(),
				ConversationID: conversation.ID,
				Character: &CharacterInfo{
					ID:              persona.ID,
					Name:            persona.Name,
					PersonalityType: persona.PersonalityType,
				},
				Provider:        providerName,
				EstimatedTokens: prompt.EstimateTotal(messages),
			})
			st = stateGenerating

		case stateGenerating:
			response, providerName, err = o.generate(ctx, events, messages, providerName, stream)
			if err != nil {
				o.emit(ctx, events, errorEvent(CodeGenerationFailed,
					"AI service is currently experiencing issues. Please try again in a moment."))
				st = stateError
				continue
			}
			st = statePersisting

		case statePersisting:
			// Generation succeeded; never lose it to a storage failure or a
			// client that disconnected mid-stream.
			persistCtx := context.WithoutCancel(ctx)
			if strings.TrimSpace(response) != "" {
				if _, perr := o.contexts.AppendTurn(persistCtx, conversation.ID, llm.RoleAssistant, strings.TrimSpace(response)); perr != nil {
					log.Printf("[CHAT] Failed to save assistant turn for conversation %d: %v", conversation.ID, perr)
					warning = "assistant reply could not be saved"
				}
			}
			st = stateComplete

		case stateComplete:
			o.emit(ctx, events, Event{
				Type:            EventComplete,
				ConversationID:  conversation.ID,
				ProviderUsed:    providerName,
				DurationSeconds: time.Since(start).Seconds(),
				MessageLength:   len(response),
				StorageWarning:  warning,
			})
			return

		case stateError:
			return
		}
	}
}

// buildPrompt retrieves recent context, persists the user's turn exactly
// once, and composes the bounded message list. When the first attempt still
// exceeds the hard token ceiling it rebuilds with a drastically reduced
// context window instead of rejecting the request.
func (o *Orchestrator) buildPrompt(ctx context.Context, user User, persona storage.Character, conversation storage.Conversation, messageContent string) ([]llm.Message, string, error) {
	contextTurns, err := o.contexts.RecentTurns(ctx, conversation.ID, ContextWindow)
	if err != nil {
		return nil, "", fmt.Errorf("recent turns: %w", err)
	}

	warning := ""
	if _, err := o.contexts.AppendTurn(ctx, conversation.ID, llm.RoleUser, messageContent); err != nil {
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		// Tolerable: the exchange can proceed, history just loses the turn.
		log.Printf("[CHAT] Failed to save user turn for conversation %d: %v", conversation.ID, err)
		warning = "user message could not be saved"
	}

	provider := o.registry.Current()
	messages := o.builder.Build(persona, contextTurns, messageContent, user.Language, provider)

	if prompt.EstimateTotal(messages) > prompt.HardTokenCeiling {
		reduced := contextTurns
		if len(reduced) > prompt.ReducedContextTurns {
			reduced = reduced[len(reduced)-prompt.ReducedContextTurns:]
		}
		messages = o.builder.Build(persona, reduced, messageContent, user.Language, provider)
		log.Printf("[CHAT] Reduced context for conversation %d due to token limit", conversation.ID)
	}

	return messages, warning, nil
}

// generate requests a completion with bounded retry and provider failover:
// up to maxRetries additional attempts, each first trying the paired
// fallback, then any other probe-passing provider, separated by a fixed
// backoff. Content fragments are forwarded as events when streaming.
func (o *Orchestrator) generate(ctx context.Context, events chan<- Event, messages []llm.Message, providerName string, stream bool) (string, string, error) {
	cfg := llm.DefaultGenerationConfig()

	var lastErr error
	for attempt := 0; ; attempt++ {
		provider, err := o.registry.Resolve(providerName)
		if err != nil {
			lastErr = err
		} else {
			genCtx, cancel := context.WithTimeout(ctx, o.generationTimeout)
			var response string
			if stream {
				response, err = o.streamAttempt(genCtx, events, provider, messages, cfg, providerName)
			} else {
				response, err = provider.Generate(genCtx, messages, cfg)
				if err == nil {
					o.emit(ctx, events, Event{Type: EventContent, Content: response, Provider: providerName})
				}
			}
			cancel()

			if err == nil {
				return response, providerName, nil
			}
			lastErr = err
			log.Printf("[CHAT] Provider %s failed (attempt %d): %v", providerName, attempt+1, err)
			o.notifyProviderError(providerName, "generation", err)
		}

		if ctx.Err() != nil {
			return "", providerName, ctx.Err()
		}
		if attempt >= o.maxRetries {
			break
		}

		next, ok := o.nextProvider(ctx, providerName)
		if !ok {
			break
		}
		providerName = next

		select {
		case <-time.After(o.retryDelay):
		case <-ctx.Done():
			return "", providerName, ctx.Err()
		}
	}

	return "", providerName, fmt.Errorf("generation failed after retries: %w", lastErr)
}

// streamAttempt forwards streaming fragments as content events while
// accumulating the full response.
func (o *Orchestrator) streamAttempt(ctx context.Context, events chan<- Event, provider llm.Provider, messages []llm.Message, cfg llm.GenerationConfig, providerName string) (string, error) {
	chunks, err := provider.Stream(ctx, messages, cfg)
	if err != nil {
		return "", err
	}

	var response strings.Builder
	for chunk := range chunks {
		if chunk.Err != nil {
			return response.String(), chunk.Err
		}
		response.WriteString(chunk.Content)
		o.emit(ctx, events, Event{Type: EventContent, Content: chunk.Content, Provider: providerName})
	}

	if response.Len() == 0 {
		return "", llm.ErrEmptyResponse
	}
	return response.String(), nil
}

// nextProvider picks the provider for a retry: the paired fallback when the
// failed one was current, otherwise any probe-passing provider that differs
// from the one that just failed.
func (o *Orchestrator) nextProvider(ctx context.Context, failed string) (string, bool) {
	if fallback := o.registry.Fallback(); fallback != "" && failed == o.registry.Current() {
		log.Printf("[CHAT] Switching to fallback provider %s", fallback)
		return fallback, true
	}

	if name, ok := o.registry.SelectAvailable(ctx); ok && name != failed {
		log.Printf("[CHAT] Switching to alternative provider %s", name)
		return name, true
	}
	return "", false
}

// emit delivers an event unless the client has gone away
func (o *Orchestrator) emit(ctx context.Context, events chan<- Event, e Event) {
	select {
	case events <- e:
	case <-ctx.Done():
	}
}

func (o *Orchestrator) notifyProviderError(provider, errType string, err error) {
	if o.notifier == nil {
		return
	}
	o.notifier.NotifyProviderError(provider, errType, err.Error())
}
