package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/example/quizbox/internal/chapters"
	"github.com/example/quizbox/pkg/models"
)

const helpText = `Welcome to Quizbox! 🎓

Available commands:
/chapters - List chapters with progress
/next <chapter> - Ask the next question
/due <chapter> - List questions due for review
/stats <chapter> - Show chapter statistics
/reset <chapter> <question> - Forget progress for one question
/refresh - Reload material

Answer multiple choice questions with the buttons and short questions by replying with text.`

// errUsage marks a command called with the wrong arguments
var errUsage = errors.New("usage")

// HandleCommand handles bot commands
func (b *Bot) HandleCommand(ctx context.Context, message *tgbotapi.Message) error {
	if message == nil || message.Chat == nil {
		return fmt.Errorf("invalid message: required fields are missing")
	}
	chatID := message.Chat.ID
	args := strings.Fields(message.CommandArguments())

	var err error
	switch message.Command() {
	case "start", "help":
		err = b.sendText(chatID, helpText)
	case "chapters":
		err = b.handleChapters(ctx, chatID)
	case "stats":
		err = b.withChapter(ctx, chatID, args, "/stats <chapter>", b.handleStats)
	case "next":
		err = b.withChapter(ctx, chatID, args, "/next <chapter>", b.handleNext)
	case "due":
		err = b.withChapter(ctx, chatID, args, "/due <chapter>", b.handleDue)
	case "reset":
		err = b.handleReset(ctx, chatID, args)
	case "refresh":
		err = b.handleRefresh(ctx, chatID)
	default:
		err = b.sendText(chatID, "Unknown command. Use /help to see what I can do.")
	}
	return err
}

// withChapter resolves the chapter argument, loads its index and runs fn
func (b *Bot) withChapter(ctx context.Context, chatID int64, args []string, usage string,
	fn func(ctx context.Context, chatID int64, chID string) error) error {
	if len(args) != 1 {
		return b.sendText(chatID, "Usage: "+usage)
	}
	chID := args[0]
	if err := b.chapters.EnsureIndex(ctx, chID); err != nil {
		b.logger.Warn("chapter unavailable", "chapter", chID, "error", err)
		return b.sendHTML(chatID, fmt.Sprintf("⚠️ Chapter <code>%s</code> is not available right now.", html.EscapeString(chID)))
	}
	return fn(ctx, chatID, chID)
}

func (b *Bot) listChapters(ctx context.Context) []models.Chapter {
	if b.lister != nil {
		list, err := b.lister.Chapters(ctx)
		if err == nil && len(list) > 0 {
			return list
		}
		if err != nil {
			b.logger.Warn("failed to list chapters, using fallback", "error", err)
		}
	}

	ids := b.config.FallbackChapters
	if len(ids) == 0 {
		ids = b.chapters.Loaded()
	}
	list := make([]models.Chapter, 0, len(ids))
	for _, id := range ids {
		list = append(list, models.Chapter{ID: id, Title: id})
	}
	return list
}

func (b *Bot) handleChapters(ctx context.Context, chatID int64) error {
	list := b.listChapters(ctx)
	if len(list) == 0 {
		return b.sendText(chatID, "No chapters available yet.")
	}

	ids := make([]string, 0, len(list))
	for _, ch := range list {
		ids = append(ids, ch.ID)
	}
	if err := b.chapters.EnsureMany(ctx, ids); err != nil {
		b.logger.Warn("some chapters could not be loaded", "error", err)
	}

	lines := []string{"📚 <b>Chapters</b>", ""}
	for _, ch := range list {
		stats, err := b.chapters.StatsFor(ch.ID)
		if errors.Is(err, chapters.ErrNotLoaded) {
			lines = append(lines, fmt.Sprintf("• <code>%s</code> (unavailable)", html.EscapeString(ch.ID)))
			continue
		}
		lines = append(lines, formatChapterLine(ch, b.chapters.Total(ch.ID), stats))
	}
	return b.sendHTML(chatID, strings.Join(lines, "\n"))
}

func (b *Bot) handleStats(_ context.Context, chatID int64, chID string) error {
	stats, err := b.chapters.StatsFor(chID)
	if err != nil {
		return err
	}
	return b.sendHTML(chatID, formatStats(chID, b.chapters.Total(chID), stats))
}

// nextQuestion picks the most overdue question, then the first one never seen
func (b *Bot) nextQuestion(chID string) (string, bool, error) {
	due, err := b.chapters.DueIDs(chID)
	if err != nil {
		return "", false, err
	}
	if len(due) > 0 {
		return due[0], true, nil
	}
	unseen, err := b.chapters.Unseen(chID)
	if err != nil {
		return "", false, err
	}
	if len(unseen) > 0 {
		return unseen[0], true, nil
	}
	return "", false, nil
}

func (b *Bot) handleNext(_ context.Context, chatID int64, chID string) error {
	qID, ok, err := b.nextQuestion(chID)
	if err != nil {
		return err
	}
	if !ok {
		return b.sendHTML(chatID, fmt.Sprintf("🎉 Nothing due in <code>%s</code>. Come back later!", html.EscapeString(chID)))
	}
	q, found := b.chapters.Question(chID, qID)
	if !found {
		return fmt.Errorf("question %s missing from chapter %s", qID, chID)
	}
	return b.sendQuestion(chatID, chID, q)
}

func (b *Bot) sendQuestion(chatID int64, chID string, q models.Question) error {
	if !fitsCallback(chID, q) {
		return fmt.Errorf("ids of question %s in chapter %s are too long for buttons", q.ID, chID)
	}

	var st *models.QuestionState
	if s, ok := b.store.Question(chID, q.ID); ok {
		st = &s
	}

	msg := tgbotapi.NewMessage(chatID, formatQuestion(chID, q, st))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = createKeyboard(questionButtons(chID, q))
	if err := b.sendMessage(msg); err != nil {
		return err
	}

	if q.Type == models.ShortAnswer {
		b.setPending(chatID, pendingAnswer{ChapterID: chID, QuestionID: q.ID, Asked: b.now()})
	}
	return nil
}

func (b *Bot) handleDue(_ context.Context, chatID int64, chID string) error {
	due, err := b.chapters.DueIDs(chID)
	if err != nil {
		return err
	}
	if len(due) == 0 {
		return b.sendHTML(chatID, fmt.Sprintf("Nothing due in <code>%s</code>.", html.EscapeString(chID)))
	}

	lines := []string{fmt.Sprintf("⏰ <b>%d due in %s</b>", len(due), html.EscapeString(chID))}
	for i, id := range due {
		if i == b.config.MaxDueListed {
			lines = append(lines, fmt.Sprintf("… and %d more", len(due)-i))
			break
		}
		line := "#" + html.EscapeString(id)
		if st, ok := b.store.Question(chID, id); ok {
			line += fmt.Sprintf(" (box %d)", st.Box)
		}
		lines = append(lines, line)
	}

	msg := tgbotapi.NewMessage(chatID, strings.Join(lines, "\n"))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = createKeyboard(nextButtons(chID))
	return b.sendMessage(msg)
}

func (b *Bot) handleReset(ctx context.Context, chatID int64, args []string) error {
	if len(args) != 2 {
		return b.sendText(chatID, "Usage: /reset <chapter> <question>")
	}
	chID, qID := args[0], args[1]

	removed, err := b.store.Reset(ctx, chID, qID)
	if err != nil {
		b.logger.Error("reset failed", "chapter", chID, "question", qID, "error", err)
		return b.sendText(chatID, "❌ Could not reset, please try again later.")
	}
	if !removed {
		return b.sendHTML(chatID, fmt.Sprintf("No progress stored for #%s.", html.EscapeString(qID)))
	}
	b.clearPending(chatID, chID, qID)
	return b.sendHTML(chatID, fmt.Sprintf("♻️ #%s reset", html.EscapeString(qID)))
}

func (b *Bot) handleRefresh(ctx context.Context, chatID int64) error {
	if err := b.store.Refresh(ctx); err != nil {
		b.logger.Warn("progress refresh failed", "error", err)
	}

	loaded := b.chapters.Loaded()
	failed := 0
	for _, chID := range loaded {
		if err := b.chapters.Reload(ctx, chID); err != nil {
			b.logger.Warn("chapter refresh failed", "chapter", chID, "error", err)
			failed++
		}
	}

	text := fmt.Sprintf("🔄 Refreshed %d chapters", len(loaded)-failed)
	if failed > 0 {
		text += fmt.Sprintf(", %d kept from cache", failed)
	}
	return b.sendText(chatID, text)
}

// HandleCallback handles inline button presses
func (b *Bot) HandleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb == nil || cb.Message == nil || cb.Message.Chat == nil {
		return fmt.Errorf("invalid callback data: required fields are missing")
	}
	chatID := cb.Message.Chat.ID

	toast, err := b.dispatchCallback(ctx, chatID, cb.Data)
	if err != nil {
		toast = "⚠️ Something went wrong"
	}

	// Always answer the callback query to remove the loading state
	if _, aerr := b.api.Request(tgbotapi.NewCallback(cb.ID, toast)); aerr != nil {
		b.logger.Warn("failed to answer callback", "error", aerr)
	}
	return err
}

func (b *Bot) dispatchCallback(ctx context.Context, chatID int64, data string) (string, error) {
	if !b.isOwner(chatID) {
		return "This bot is private.", nil
	}

	c, err := parseCallback(data)
	if err != nil {
		return "", err
	}
	if err := b.chapters.EnsureIndex(ctx, c.ChapterID); err != nil {
		return "", err
	}
	if c.Action == actionNext {
		return "", b.handleNext(ctx, chatID, c.ChapterID)
	}

	q, ok := b.chapters.Question(c.ChapterID, c.QuestionID)
	if !ok {
		return "This question no longer exists.", nil
	}

	switch c.Action {
	case actionAnswer:
		if q.Type != models.MultipleChoice || c.Option >= len(q.Options) {
			return "", fmt.Errorf("option %d does not fit question %s", c.Option, q.ID)
		}
		correct := checkOption(q, c.Option)
		opt := c.Option
		st, err := b.store.Record(ctx, c.ChapterID, q.ID, correct, &opt, nil)
		if err != nil {
			return "", err
		}
		b.clearPending(chatID, c.ChapterID, q.ID)
		return "", b.sendResult(chatID, c.ChapterID, formatResult(q, correct, st))

	case actionReveal:
		if _, err := b.store.MarkRevealed(ctx, c.ChapterID, q.ID); err != nil {
			return "", err
		}
		b.clearPending(chatID, c.ChapterID, q.ID)
		return "", b.sendResult(chatID, c.ChapterID, formatAnswer(q))

	case actionStar:
		st, err := b.store.ToggleHighlight(ctx, c.ChapterID, q.ID)
		if err != nil {
			return "", err
		}
		if st.Highlight {
			return "⭐ Starred", nil
		}
		return "Unstarred", nil
	}
	return "", fmt.Errorf("unhandled callback action %q", c.Action)
}

func (b *Bot) sendResult(chatID int64, chID, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = createKeyboard(nextButtons(chID))
	return b.sendMessage(msg)
}

// handleText answers a pending short question with the message text
func (b *Bot) handleText(ctx context.Context, message *tgbotapi.Message) error {
	chatID := message.Chat.ID
	reply := strings.TrimSpace(message.Text)
	if reply == "" {
		return b.sendText(chatID, "Please reply with text.")
	}

	p, ok := b.takePending(chatID)
	if !ok {
		return b.sendText(chatID, "Use /next <chapter> to get a question.")
	}

	q, found := b.chapters.Question(p.ChapterID, p.QuestionID)
	if !found {
		return b.sendText(chatID, "This question no longer exists.")
	}

	correct := checkShort(q, reply)
	st, err := b.store.Record(ctx, p.ChapterID, q.ID, correct, nil, &reply)
	if err != nil {
		b.logger.Error("failed to record answer", "chapter", p.ChapterID, "question", q.ID, "error", err)
		return b.sendText(chatID, "❌ Could not save your answer, please try again later.")
	}
	return b.sendResult(chatID, p.ChapterID, formatResult(q, correct, st))
}
