package telegram

import (
	"context"
	"log"

	"telegram-tarot-miniapp/internal/domain/ports/adapter"
)

var _ adapter.TelegramNotifier = (*NoopBotNotifier)(nil)

// NoopBotNotifier logs instead of sending, for local/dev runs without a
// bot token.
type NoopBotNotifier struct{}

func NewNoopBotNotifier() *NoopBotNotifier { return &NoopBotNotifier{} }

func (n *NoopBotNotifier) SendMessage(ctx context.Context, chatID int64, text string) error {
	log.Printf("[noop-bot] to %d: %s", chatID, text)
	return nil
}
