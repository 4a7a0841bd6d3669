// Package llm provides LLM provider integration for the companion backend
package llm

import (
	"context"
	"errors"
)

// Message is a single chat-completion message in provider wire order
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chat message roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// GenerationConfig holds decoding parameters for completion requests
type GenerationConfig struct {
	Temperature      float32
	MaxTokens        int
	PresencePenalty  float32
	FrequencyPenalty float32
}

// DefaultGenerationConfig is the fixed decoding configuration for chat
// responses: moderate temperature, bounded length, penalties against
// repetition.
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		Temperature:      0.7,
		MaxTokens:        500,
		PresencePenalty:  0.6,
		FrequencyPenalty: 0.3,
	}
}

// Chunk is one fragment of a streaming completion. Err is set on the final
// chunk when the stream terminates abnormally.
type Chunk struct {
	Content string
	Err     error
}

// Provider defines the interface for LLM provider integration
//
// All providers must implement this interface:
// - Generate: send a request and receive the complete response
// - Stream: send a streaming request receiving partial fragments
// - Probe: minimal connectivity check, never returns an error
// - Close: release provider resources
type Provider interface {
	// Name returns the configured provider name
	Name() string

	// Model returns the model used for completion requests
	Model() string

	// Generate sends a completion request and returns the full response text
	Generate(ctx context.Context, messages []Message, cfg GenerationConfig) (string, error)

	// Stream sends a streaming completion request. The returned channel is
	// closed after the finish signal or after a chunk carrying Err.
	Stream(ctx context.Context, messages []Message, cfg GenerationConfig) (<-chan Chunk, error)

	// Probe issues a minimal generation request and reports whether the
	// provider answered with non-empty content
	Probe(ctx context.Context) bool

	// Close releases provider connections
	Close() error
}

// ErrNoProviderConfigured is returned when no provider has a valid credential
var ErrNoProviderConfigured = errors.New("no LLM provider configured with valid credentials")

// ErrEmptyResponse is returned when a provider answers with no choices
var ErrEmptyResponse = errors.New("provider returned empty response")
