// Package notify mirrors engine events to an external chat. Delivery is best
// effort: failures are logged and never reach the caller.
package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Sink delivers a text message somewhere
type Sink interface {
	Send(ctx context.Context, text string) error
}

// Sender is the part of *tgbotapi.BotAPI used for delivery
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram sends messages to one chat with HTML parse mode
type Telegram struct {
	api    Sender
	chatID int64
}

// NewTelegram creates a Telegram sink for chatID
func NewTelegram(api Sender, chatID int64) *Telegram {
	return &Telegram{api: api, chatID: chatID}
}

// Send implements Sink
func (t *Telegram) Send(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := t.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}

// Discard is a Sink that drops everything
type Discard struct{}

// Send implements Sink
func (Discard) Send(context.Context, string) error { return nil }
