// Package bot is the Telegram front end: it asks questions, records answers
// and shows chapter progress to the owner chat.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/example/quizbox/internal/chapters"
	"github.com/example/quizbox/internal/progress"
	"github.com/example/quizbox/internal/scheduler"
	"github.com/example/quizbox/pkg/models"
)

// API is the part of *tgbotapi.BotAPI the bot uses
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// ChapterLister provides the chapter list
type ChapterLister interface {
	Chapters(ctx context.Context) ([]models.Chapter, error)
}

// MenuButton represents a button in the menu
type MenuButton struct {
	Text         string
	CallbackData string
}

// createKeyboard creates a keyboard from menu buttons
func createKeyboard(buttons [][]MenuButton) tgbotapi.InlineKeyboardMarkup {
	var keyboard [][]tgbotapi.InlineKeyboardButton
	for _, row := range buttons {
		var keyboardRow []tgbotapi.InlineKeyboardButton
		for _, button := range row {
			keyboardRow = append(keyboardRow, tgbotapi.NewInlineKeyboardButtonData(button.Text, button.CallbackData))
		}
		keyboard = append(keyboard, keyboardRow)
	}
	return tgbotapi.NewInlineKeyboardMarkup(keyboard...)
}

// pendingAnswer is a short-answer question waiting for a text reply
type pendingAnswer struct {
	ChapterID  string
	QuestionID string
	Asked      time.Time
}

// Bot represents the Telegram bot application
type Bot struct {
	api      API
	store    *progress.Store
	chapters *chapters.Service
	lister   ChapterLister
	config   *BotConfig
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	pending map[int64]pendingAnswer

	wg sync.WaitGroup
}

// New creates a new bot instance
func New(api API, store *progress.Store, svc *chapters.Service, lister ChapterLister, config *BotConfig, logger *slog.Logger) (*Bot, error) {
	if api == nil || store == nil || svc == nil {
		return nil, errors.New("bot needs an API client, a progress store and a chapter service")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bot{
		api:      api,
		store:    store,
		chapters: svc,
		lister:   lister,
		config:   config,
		logger:   logger,
		now:      time.Now,
		pending:  make(map[int64]pendingAnswer),
	}, nil
}

// Start receives updates until ctx is canceled
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60

	updates := b.api.GetUpdatesChan(updateConfig)
	b.logger.Info("bot started", "owner", b.config.OwnerChatID)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				b.handleUpdate(ctx, update)
			}()
		}
	}
}

// Stop waits for in-flight updates until ctx is done
func (b *Bot) Stop(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.logger.Info("bot stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendReminder implements the scheduler.Notifier interface
func (b *Bot) SendReminder(ctx context.Context, due []scheduler.ChapterDue) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(b.config.OwnerChatID, formatReminder(due))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = createKeyboard(reminderButtons(due))
	return b.sendMessage(msg)
}

func (b *Bot) isOwner(chatID int64) bool {
	return chatID == b.config.OwnerChatID
}

// handleUpdate handles incoming updates from Telegram
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("panic while handling update", "update", update.UpdateID, "panic", r)
		}
	}()

	var err error
	switch {
	case update.Message != nil:
		if !b.isOwner(update.Message.Chat.ID) {
			b.logger.Warn("ignoring message from foreign chat", "chat", update.Message.Chat.ID)
			err = b.sendText(update.Message.Chat.ID, "This bot is private.")
			break
		}
		if update.Message.IsCommand() {
			err = b.HandleCommand(ctx, update.Message)
		} else {
			err = b.handleText(ctx, update.Message)
		}
	case update.CallbackQuery != nil:
		err = b.HandleCallback(ctx, update.CallbackQuery)
	}

	if err != nil {
		b.logger.Warn("failed to handle update", "update", update.UpdateID, "error", err)
	}
}

func (b *Bot) sendMessage(msg tgbotapi.MessageConfig) error {
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

func (b *Bot) sendText(chatID int64, text string) error {
	return b.sendMessage(tgbotapi.NewMessage(chatID, text))
}

func (b *Bot) sendHTML(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	return b.sendMessage(msg)
}

func (b *Bot) setPending(chatID int64, p pendingAnswer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending[chatID] = p
}

// takePending removes and returns the pending question of a chat if it has not expired
func (b *Bot) takePending(chatID int64) (pendingAnswer, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.pending[chatID]
	if !ok {
		return pendingAnswer{}, false
	}
	delete(b.pending, chatID)
	if b.config.PendingTTL > 0 && b.now().Sub(p.Asked) > b.config.PendingTTL {
		return pendingAnswer{}, false
	}
	return p, true
}

func (b *Bot) clearPending(chatID int64, chID, qID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.pending[chatID]; ok && p.ChapterID == chID && p.QuestionID == qID {
		delete(b.pending, chatID)
	}
}
