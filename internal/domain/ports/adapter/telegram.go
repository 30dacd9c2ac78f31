package adapter

import "context"

// TelegramNotifier delivers out-of-band messages to users (payment
// confirmations and the like). Best-effort: callers log failures and move
// on.
type TelegramNotifier interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}
