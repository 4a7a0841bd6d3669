// Companion backend: an AI companion chat service with persona selection,
// conversation persistence and LLM provider failover.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"companion-backend/cache"
	"companion-backend/chat"
	"companion-backend/config"
	"companion-backend/llm"
	"companion-backend/notify"
	"companion-backend/server"
	"companion-backend/storage"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	store, err := storage.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer store.Close()

	if err := store.SeedCharacters(context.Background()); err != nil {
		log.Fatalf("Failed to seed characters: %v", err)
	}

	registry, err := llm.NewRegistry(cfg.Providers, cfg.PrimaryProvider, cfg.FallbackProvider)
	if err != nil {
		log.Fatalf("Failed to initialize providers: %v", err)
	}
	defer registry.Close()

	notifier, err := notify.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramAdminChatID)
	if err != nil {
		log.Fatalf("Failed to initialize notifier: %v", err)
	}

	contexts := chat.NewContextStore(store, cache.NewContextCache(cache.ContextTTL))
	selection := cache.NewSelectionCache(cache.SelectionTTL)
	orchestrator := chat.NewOrchestrator(registry, contexts, store, selection, notifier)

	srv := server.New(cfg.HTTPAddr, orchestrator, []byte(cfg.JWTSecret), cfg.RateLimitInterval)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("Server error: %v", err)
		}
	case sig := <-stop:
		log.Printf("Received signal %v, shutting down", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}

	log.Printf("Companion backend stopped")
}
