// Package llm provides the OpenAI-compatible provider implementation
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"companion-backend/config"

	"github.com/sashabaranov/go-openai"
)

// probeTimeout bounds the minimal connectivity check so failover can
// trigger within a user-perceptible latency budget.
const probeTimeout = 10 * time.Second

// OpenAIProvider implements Provider for OpenAI-compatible chat APIs.
// Both configured backends (groq, openai) speak this protocol; only the
// base URL and model list differ.
type OpenAIProvider struct {
	client *openai.Client
	name   string
	models []string
}

// NewOpenAIProvider creates a provider instance from configuration
func NewOpenAIProvider(cfg config.ProviderConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required for provider %s", cfg.Name)
	}
	if len(cfg.Models) == 0 {
		return nil, fmt.Errorf("at least one model is required for provider %s", cfg.Name)
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientConfig),
		name:   cfg.Name,
		models: cfg.Models,
	}, nil
}

// Name returns the configured provider name
func (p *OpenAIProvider) Name() string { return p.name }

// Model returns the preferred model (first in the ordered list)
func (p *OpenAIProvider) Model() string { return p.models[0] }

// Generate sends a completion request and returns the full response text
func (p *OpenAIProvider) Generate(ctx context.Context, messages []Message, cfg GenerationConfig) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, p.buildRequest(messages, cfg, false))
	if err != nil {
		return "", fmt.Errorf("%s completion failed: %w", p.name, err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("%s: %w", p.name, ErrEmptyResponse)
	}

	return resp.Choices[0].Message.Content, nil
}

// Stream sends a streaming completion request
func (p *OpenAIProvider) Stream(ctx context.Context, messages []Message, cfg GenerationConfig) (<-chan Chunk, error) {
	stream, err := p.client.CreateChatCompletionStream(ctx, p.buildRequest(messages, cfg, true))
	if err != nil {
		return nil, fmt.Errorf("%s stream failed: %w", p.name, err)
	}

	ch := make(chan Chunk)
	go func() {
		defer close(ch)
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if err != nil {
				if errors.Is(err, io.EOF) {
					return
				}
				select {
				case ch <- Chunk{Err: fmt.Errorf("%s stream error: %w", p.name, err)}:
				case <-ctx.Done():
				}
				return
			}

			for _, choice := range resp.Choices {
				if choice.FinishReason != "" && choice.Delta.Content == "" {
					return
				}
				if choice.Delta.Content != "" {
					select {
					case ch <- Chunk{Content: choice.Delta.Content}:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return ch, nil
}

// Probe issues a minimal generation request and reports whether the provider
// answered with non-empty content. It never returns an error.
func (p *OpenAIProvider) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.Model(),
		Messages:    []openai.ChatCompletionMessage{{Role: RoleUser, Content: "Hello"}},
		MaxTokens:   5,
		Temperature: 0,
	})
	if err != nil {
		return false
	}

	return len(resp.Choices) > 0 && resp.Choices[0].Message.Content != ""
}

// Close releases provider connections
func (p *OpenAIProvider) Close() error {
	// go-openai keeps no persistent connection
	return nil
}

// buildRequest converts messages and decoding parameters to the wire request
func (p *OpenAIProvider) buildRequest(messages []Message, cfg GenerationConfig, stream bool) openai.ChatCompletionRequest {
	wire := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		wire = append(wire, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	return openai.ChatCompletionRequest{
		Model:            p.Model(),
		Messages:         wire,
		MaxTokens:        cfg.MaxTokens,
		Temperature:      cfg.Temperature,
		PresencePenalty:  cfg.PresencePenalty,
		FrequencyPenalty: cfg.FrequencyPenalty,
		Stream:           stream,
	}
}
