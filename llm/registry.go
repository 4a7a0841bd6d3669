// Package llm provides the provider registry with failover selection
package llm

import (
	"context"
	"fmt"
	"log"
	"sync"

	"companion-backend/config"
)

// Registry holds configured providers and tracks the current and fallback
// selection. The current pointer is administratively writable at runtime and
// read concurrently by every chat request, so all access goes through the
// mutex-guarded accessors.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	order     []string
	current   string
	fallback  string
}

// Info is a point-in-time snapshot of registry state
type Info struct {
	CurrentProvider    string   `json:"current_provider"`
	FallbackProvider   string   `json:"fallback_provider"`
	AvailableProviders []string `json:"available_providers"`
	CurrentModel       string   `json:"current_model"`
}

// NewRegistry creates a registry from provider configurations. Providers
// without a valid credential are skipped. The primary and fallback names fall
// back to the first registered provider when they are not configured.
func NewRegistry(cfgs []config.ProviderConfig, primary, fallback string) (*Registry, error) {
	providers := make([]Provider, 0, len(cfgs))
	for _, cfg := range cfgs {
		provider, err := NewOpenAIProvider(cfg)
		if err != nil {
			log.Printf("[LLM] Skipping provider %s: %v", cfg.Name, err)
			continue
		}
		providers = append(providers, provider)
		log.Printf("[LLM] Initialized provider %s (model %s)", cfg.Name, provider.Model())
	}

	return NewRegistryFromProviders(providers, primary, fallback)
}

// NewRegistryFromProviders creates a registry from already constructed
// provider handles, keeping registration order for failover scans.
func NewRegistryFromProviders(providers []Provider, primary, fallback string) (*Registry, error) {
	r := &Registry{providers: make(map[string]Provider)}

	for _, provider := range providers {
		r.providers[provider.Name()] = provider
		r.order = append(r.order, provider.Name())
	}

	if len(r.providers) == 0 {
		return nil, ErrNoProviderConfigured
	}

	if _, ok := r.providers[primary]; !ok {
		log.Printf("[LLM] Primary provider %s not configured, using %s", primary, r.order[0])
		primary = r.order[0]
	}
	r.current = primary

	if _, ok := r.providers[fallback]; ok && fallback != primary {
		r.fallback = fallback
	}

	return r, nil
}

// Resolve returns the named provider's handle, or the current provider when
// name is empty. It returns ErrNoProviderConfigured when the name is unknown.
func (r *Registry) Resolve(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if name == "" {
		name = r.current
	}

	provider, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider %s: %w", name, ErrNoProviderConfigured)
	}
	return provider, nil
}

// Probe issues a minimal generation request against the named provider.
// Unknown names report false.
func (r *Registry) Probe(ctx context.Context, name string) bool {
	provider, err := r.Resolve(name)
	if err != nil {
		return false
	}
	return provider.Probe(ctx)
}

// SelectAvailable returns the first provider that passes a probe: current
// first, then fallback, then the rest in registration order. It returns
// ("", false) when every provider fails.
func (r *Registry) SelectAvailable(ctx context.Context) (string, bool) {
	current, fallback := r.Current(), r.Fallback()

	if r.Probe(ctx, current) {
		return current, true
	}

	if fallback != "" && r.Probe(ctx, fallback) {
		log.Printf("[LLM] Primary provider %s failed probe, using fallback %s", current, fallback)
		return fallback, true
	}

	r.mu.RLock()
	order := append([]string(nil), r.order...)
	r.mu.RUnlock()

	for _, name := range order {
		if name == current || name == fallback {
			continue
		}
		if r.Probe(ctx, name) {
			log.Printf("[LLM] Using alternative provider %s", name)
			return name, true
		}
	}

	log.Printf("[LLM] No provider available")
	return "", false
}

// SwitchCurrent changes the current provider pointer. It is a no-op returning
// false when the name is not configured with valid credentials.
func (r *Registry) SwitchCurrent(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.providers[name]; !ok {
		log.Printf("[LLM] Cannot switch to unknown provider %s", name)
		return false
	}

	r.current = name
	log.Printf("[LLM] Switched current provider to %s", name)
	return true
}

// Current returns the current provider name
func (r *Registry) Current() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Fallback returns the fallback provider name, or "" when none is configured
func (r *Registry) Fallback() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fallback
}

// Names returns all configured provider names in registration order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Info returns a snapshot of registry state for the status endpoint
func (r *Registry) Info() Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	model := ""
	if p, ok := r.providers[r.current]; ok {
		model = p.Model()
	}

	return Info{
		CurrentProvider:    r.current,
		FallbackProvider:   r.fallback,
		AvailableProviders: append([]string(nil), r.order...),
		CurrentModel:       model,
	}
}

// Close releases all provider resources
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, p := range r.providers {
		if err := p.Close(); err != nil {
			log.Printf("[LLM] Failed to close provider %s: %v", name, err)
		}
	}
}
