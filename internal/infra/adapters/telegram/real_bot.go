package telegram

import (
	"context"
	"errors"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"telegram-tarot-miniapp/internal/domain/ports/adapter"
)

var _ adapter.TelegramNotifier = (*RealBotNotifier)(nil)

// RealBotNotifier sends one-off messages through the Bot API. The
// Mini-App has no conversational loop; the bot only delivers
// notifications (payment confirmations and the like).
type RealBotNotifier struct {
	bot *tgbotapi.BotAPI
}

func NewRealBotNotifier(token string) (*RealBotNotifier, error) {
	if token == "" {
		return nil, errors.New("bot token empty")
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &RealBotNotifier{bot: bot}, nil
}

func (n *RealBotNotifier) SendMessage(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	_, err := n.bot.Send(msg)
	return err
}
