// Package config provides configuration loading for the companion backend
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ProviderConfig represents configuration for an LLM provider
type ProviderConfig struct {
	Name    string
	APIKey  string
	BaseURL string
	Models  []string
}

// Config represents backend configuration loaded from environment variables
type Config struct {
	HTTPAddr         string
	DatabasePath     string
	JWTSecret        string
	PrimaryProvider  string
	FallbackProvider string
	Providers        []ProviderConfig

	// Optional admin alerting via Telegram
	TelegramToken       string
	TelegramAdminChatID int64

	RateLimitInterval time.Duration
}

// Load loads backend configuration from environment variables
func Load() (Config, error) {
	secret := getEnv("JWT_SECRET", "")
	if secret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}

	cfg := Config{
		HTTPAddr:          getEnv("HTTP_ADDR", ":8001"),
		DatabasePath:      getEnv("DATABASE_PATH", "data/companion.db"),
		JWTSecret:         secret,
		PrimaryProvider:   getEnv("PRIMARY_PROVIDER", "groq"),
		FallbackProvider:  getEnv("FALLBACK_PROVIDER", "openai"),
		TelegramToken:     getEnv("TELEGRAM_BOT_TOKEN", ""),
		RateLimitInterval: time.Second,
	}

	// Parse provider configurations from environment
	// groq provider
	if apiKey := getEnv("GROQ_API_KEY", ""); apiKey != "" {
		cfg.Providers = append(cfg.Providers, ProviderConfig{
			Name:    "groq",
			APIKey:  apiKey,
			BaseURL: getEnv("GROQ_BASE_URL", "https://api.groq.com/openai/v1"),
			Models:  splitModels(getEnv("GROQ_MODELS", "mixtral-8x7b-32768,llama2-70b-4096")),
		})
	}

	// OpenAI-compatible providers (openai itself plus any custom endpoint)
	for _, name := range []string{"openai", "custom"} {
		envPrefix := strings.ToUpper(name)
		if apiKey := getEnv(envPrefix+"_API_KEY", ""); apiKey != "" {
			cfg.Providers = append(cfg.Providers, ProviderConfig{
				Name:    name,
				APIKey:  apiKey,
				BaseURL: getEnv(envPrefix+"_BASE_URL", "https://api.openai.com/v1"),
				Models:  splitModels(getEnv(envPrefix+"_MODELS", "gpt-3.5-turbo,gpt-4o-mini")),
			})
		}
	}

	if len(cfg.Providers) == 0 {
		return Config{}, fmt.Errorf("no LLM provider configured: set GROQ_API_KEY or OPENAI_API_KEY")
	}

	if interval := getEnv("RATE_LIMIT_INTERVAL", ""); interval != "" {
		d, err := time.ParseDuration(interval)
		if err != nil || d < 0 {
			return Config{}, fmt.Errorf("invalid RATE_LIMIT_INTERVAL %q", interval)
		}
		cfg.RateLimitInterval = d
	}

	if chatID := getEnv("TELEGRAM_ADMIN_CHAT_ID", ""); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid TELEGRAM_ADMIN_CHAT_ID %q: %w", chatID, err)
		}
		cfg.TelegramAdminChatID = id
	}

	return cfg, nil
}

// splitModels parses a comma-separated model list, dropping empty entries
func splitModels(s string) []string {
	var models []string
	for _, m := range strings.Split(s, ",") {
		if m = strings.TrimSpace(m); m != "" {
			models = append(models, m)
		}
	}
	return models
}

// getEnv retrieves an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
