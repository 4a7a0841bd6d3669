// Package chat provides the orchestration core of the companion backend
package chat

// Event types emitted on a chat stream
const (
	EventMetadata = "metadata"
	EventContent  = "content"
	EventComplete = "complete"
	EventError    = "error"
)

// Stable machine-readable error codes surfaced to clients
const (
	CodeCharacterNotSelected = "CHARACTER_NOT_SELECTED"
	CodeCharacterNotFound    = "CHARACTER_NOT_FOUND"
	CodePremiumRequired      = "PREMIUM_REQUIRED"
	CodeConversationError    = "CONVERSATION_ERROR"
	CodeServiceUnavailable   = "SERVICE_UNAVAILABLE"
	CodeGenerationFailed     = "GENERATION_FAILED"
	CodeProcessingError      = "PROCESSING_ERROR"
	CodeInvalidMessage       = "INVALID_MESSAGE"
	CodeInvalidPagination    = "INVALID_PAGINATION"
)

// CharacterInfo is the persona identity carried on metadata events
type CharacterInfo struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	PersonalityType string `json:"personality_type"`
}

// Event is one element of the ordered stream produced for a chat request.
// Exactly one terminal event (complete or error) closes every stream.
type Event struct {
	Type string `json:"type"`

	// metadata
	StreamID        string         `json:"stream_id,omitempty"`
	ConversationID  int64          `json:"conversation_id,omitempty"`
	Character       *CharacterInfo `json:"character,omitempty"`
	Provider        string         `json:"provider,omitempty"`
	EstimatedTokens int            `json:"estimated_tokens,omitempty"`

	// content
	Content string `json:"content,omitempty"`

	// complete
	ProviderUsed    string  `json:"provider_used,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	MessageLength   int     `json:"message_length,omitempty"`
	StorageWarning  string  `json:"storage_warning,omitempty"`

	// error
	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"`
}

// Terminal reports whether the event closes the stream
func (e Event) Terminal() bool {
	return e.Type == EventComplete || e.Type == EventError
}

func errorEvent(code, message string) Event {
	return Event{Type: EventError, Code: code, Error: message}
}
