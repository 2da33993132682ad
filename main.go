package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/example/quizbox/internal/bot"
	"github.com/example/quizbox/internal/chapters"
	"github.com/example/quizbox/internal/config"
	"github.com/example/quizbox/internal/database"
	"github.com/example/quizbox/internal/material"
	"github.com/example/quizbox/internal/notify"
	"github.com/example/quizbox/internal/progress"
	"github.com/example/quizbox/internal/scheduler"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("quizbox stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("quizbox stopped successfully")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	db, err := database.Connect(database.Config{Type: cfg.DBType, URL: cfg.DatabaseURL, DataDir: cfg.DataDir})
	if err != nil {
		return err
	}
	defer db.Close()

	kv := database.NewKVRepository(db, cfg.WatchInterval, logger)

	loader := material.NewLoader(kv, material.Config{
		BaseURL:    cfg.MaterialBaseURL,
		AppVersion: cfg.AppVersion,
		Timeout:    cfg.MaterialTimeout,
		Logger:     logger,
	})

	if cfg.ImportFile != "" {
		if err := importMaterial(ctx, loader, cfg, logger); err != nil {
			return err
		}
	}

	var api *tgbotapi.BotAPI
	var sink notify.Sink = notify.Discard{}
	if cfg.TelegramToken != "" {
		api, err = tgbotapi.NewBotAPI(cfg.TelegramToken)
		if err != nil {
			return err
		}
		logger.Info("authorized on telegram", "account", api.Self.UserName)
		sink = notify.NewTelegram(api, cfg.TelegramChatID)
	}

	dispatcher := notify.NewDispatcher(sink, notify.DispatcherConfig{Logger: logger})
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := dispatcher.Close(shutdownCtx); err != nil {
			logger.Warn("notifications not fully delivered", "error", err)
		}
	}()

	store, err := progress.New(ctx, kv,
		progress.WithLogger(logger),
		progress.WithNotifier(dispatcher),
	)
	if err != nil {
		return err
	}
	defer store.Close()

	svc := chapters.NewService(loader, store, logger)
	if err := svc.EnsureMany(ctx, chapterIDs(ctx, loader, cfg, logger)); err != nil {
		logger.Warn("starting with some chapters unavailable", "error", err)
	}

	var notifier scheduler.Notifier = logReminder{logger: logger}
	var b *bot.Bot
	if api != nil {
		b, err = bot.New(api, store, svc, loader, &bot.BotConfig{
			OwnerChatID:      cfg.TelegramChatID,
			PendingTTL:       bot.DefaultConfig().PendingTTL,
			MaxDueListed:     bot.DefaultConfig().MaxDueListed,
			FallbackChapters: cfg.Chapters,
		}, logger)
		if err != nil {
			return err
		}
		notifier = b
	}

	if cfg.EnableScheduler {
		sched := scheduler.New(notifier, svc, scheduler.Config{
			ReminderInterval: cfg.ReminderInterval,
			RefreshInterval:  cfg.RefreshInterval,
			StartHour:        cfg.NotificationStartHour,
			EndHour:          cfg.NotificationEndHour,
			Logger:           logger,
		})
		if err := sched.Start(ctx); err != nil {
			return err
		}
		defer sched.Stop()
	}

	if b == nil {
		logger.Info("TELEGRAM_BOT_TOKEN not set, running without bot")
		<-ctx.Done()
		return nil
	}

	logger.Info("bot started, press Ctrl+C to stop")
	if err := b.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return b.Stop(shutdownCtx)
}

// chapterIDs lists the chapters to index at startup
func chapterIDs(ctx context.Context, loader *material.Loader, cfg *config.Config, logger *slog.Logger) []string {
	var ids []string
	list, err := loader.Chapters(ctx)
	switch {
	case err != nil:
		logger.Warn("chapter list unavailable, using CHAPTERS", "error", err)
		ids = append(ids, cfg.Chapters...)
	case len(list) == 0:
		ids = append(ids, cfg.Chapters...)
	default:
		for _, ch := range list {
			ids = append(ids, ch.ID)
		}
	}

	if cfg.ImportChapter != "" && !slices.Contains(ids, cfg.ImportChapter) {
		ids = append(ids, cfg.ImportChapter)
	}
	return ids
}

func importMaterial(ctx context.Context, loader *material.Loader, cfg *config.Config, logger *slog.Logger) error {
	importCfg := material.DefaultImportConfig()
	importCfg.FilePath = cfg.ImportFile

	questions, result, err := material.ImportFile(importCfg)
	if err != nil {
		return err
	}
	for _, msg := range result.Errors {
		logger.Warn("import row skipped", "file", cfg.ImportFile, "detail", msg)
	}
	if err := loader.Put(ctx, cfg.ImportChapter, questions); err != nil {
		return err
	}
	logger.Info("material imported", "chapter", cfg.ImportChapter,
		"processed", result.TotalProcessed, "imported", result.Imported, "skipped", result.Skipped)
	return nil
}

// logReminder reports due questions in the log when no bot is configured
type logReminder struct {
	logger *slog.Logger
}

func (l logReminder) SendReminder(_ context.Context, due []scheduler.ChapterDue) error {
	for _, d := range due {
		l.logger.Info("questions due", "chapter", d.ChapterID, "due", d.Due)
	}
	return nil
}
