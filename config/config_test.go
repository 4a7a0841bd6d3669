package config

import (
	"testing"
	"time"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("GROQ_API_KEY", "gsk-test")
	// Clear anything the host environment might carry.
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("CUSTOM_API_KEY", "")
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("RATE_LIMIT_INTERVAL", "")
	t.Setenv("TELEGRAM_ADMIN_CHAT_ID", "")
}

func TestLoad_Defaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HTTPAddr != ":8001" {
		t.Errorf("expected default addr :8001, got %s", cfg.HTTPAddr)
	}
	if cfg.PrimaryProvider != "groq" || cfg.FallbackProvider != "openai" {
		t.Errorf("unexpected provider defaults: %s/%s", cfg.PrimaryProvider, cfg.FallbackProvider)
	}
	if cfg.RateLimitInterval != time.Second {
		t.Errorf("expected 1s rate limit default, got %v", cfg.RateLimitInterval)
	}
	if len(cfg.Providers) != 1 || cfg.Providers[0].Name != "groq" {
		t.Fatalf("expected single groq provider, got %+v", cfg.Providers)
	}
	if len(cfg.Providers[0].Models) != 2 {
		t.Errorf("expected default model list, got %v", cfg.Providers[0].Models)
	}
}

func TestLoad_RequiresSecret(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("JWT_SECRET", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error without JWT_SECRET")
	}
}

func TestLoad_RequiresProvider(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("GROQ_API_KEY", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error without any provider key")
	}
}

func TestLoad_MultipleProviders(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_MODELS", "gpt-4o-mini")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Providers) != 2 {
		t.Fatalf("expected 2 providers, got %d", len(cfg.Providers))
	}
	if cfg.Providers[1].Name != "openai" || len(cfg.Providers[1].Models) != 1 {
		t.Errorf("unexpected openai provider: %+v", cfg.Providers[1])
	}
}

func TestLoad_RateLimitInterval(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("RATE_LIMIT_INTERVAL", "2s")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.RateLimitInterval != 2*time.Second {
		t.Errorf("expected 2s, got %v", cfg.RateLimitInterval)
	}

	t.Setenv("RATE_LIMIT_INTERVAL", "bogus")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid interval")
	}
}

func TestLoad_AdminChatID(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("TELEGRAM_ADMIN_CHAT_ID", "12345")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.TelegramAdminChatID != 12345 {
		t.Errorf("expected chat id 12345, got %d", cfg.TelegramAdminChatID)
	}

	t.Setenv("TELEGRAM_ADMIN_CHAT_ID", "not-a-number")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid chat id")
	}
}
