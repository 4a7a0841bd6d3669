// Package notify delivers operational alerts to an admin Telegram chat.
package notify

import (
	"fmt"
	"log"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Minimum gap between alerts for the same provider, so a flapping provider
// does not flood the admin chat.
const throttleInterval = 5 * time.Minute

// TelegramNotifier sends provider failure alerts to a single admin chat.
// A nil notifier and a notifier without a configured bot are both safe to
// call; they log and drop the alert.
type TelegramNotifier struct {
	api         *tgbotapi.BotAPI
	adminChatID int64

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// NewTelegramNotifier creates a notifier. With an empty token or zero chat id
// it degrades to log-only operation.
func NewTelegramNotifier(token string, adminChatID int64) (*TelegramNotifier, error) {
	n := &TelegramNotifier{
		adminChatID: adminChatID,
		lastSent:    make(map[string]time.Time),
	}
	if token == "" || adminChatID == 0 {
		log.Printf("[NOTIFY] Admin notifications disabled (no token or chat id)")
		return n, nil
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create notifier bot: %w", err)
	}
	n.api = api
	log.Printf("[NOTIFY] Admin notifications enabled for chat %d", adminChatID)
	return n, nil
}

// NotifyProviderError alerts the admin chat about a provider failure.
// Alerts for the same provider are throttled.
func (n *TelegramNotifier) NotifyProviderError(provider, errType, message string) {
	if n == nil {
		return
	}

	text := fmt.Sprintf("⚠️ Provider %s error\n\nType: %s\nMessage: %s", provider, errType, message)
	log.Printf("[NOTIFY] Provider error: %s/%s: %s", provider, errType, message)

	if n.api == nil || !n.shouldSend(provider) {
		return
	}

	msg := tgbotapi.NewMessage(n.adminChatID, text)
	if _, err := n.api.Send(msg); err != nil {
		log.Printf("[NOTIFY] Failed to send admin notification: %v", err)
	}
}

func (n *TelegramNotifier) shouldSend(provider string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := time.Now()
	if last, ok := n.lastSent[provider]; ok && now.Sub(last) < throttleInterval {
		return false
	}
	n.lastSent[provider] = now
	return true
}
