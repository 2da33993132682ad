// Package config loads application settings from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Telegram
	TelegramToken  string
	TelegramChatID int64

	// Database
	DBType      string // sqlite or postgres
	DatabaseURL string
	DataDir     string

	// Material
	MaterialBaseURL string
	AppVersion      string
	MaterialTimeout time.Duration
	RefreshInterval time.Duration
	Chapters        []string // used when the chapter list cannot be fetched

	// Sync
	WatchInterval time.Duration

	// Reminders
	EnableScheduler       bool
	ReminderInterval      time.Duration
	NotificationStartHour int
	NotificationEndHour   int

	// Import
	ImportFile    string
	ImportChapter string

	LogLevel slog.Level
}

// Load reads configuration from a .env file, if present, and the environment
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		TelegramToken:         getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:        getEnvInt64("TELEGRAM_CHAT_ID", 0),
		DBType:                strings.ToLower(getEnv("DB_TYPE", "sqlite")),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		DataDir:               getEnv("DATA_DIR", "./data"),
		MaterialBaseURL:       getEnv("MATERIAL_BASE_URL", ""),
		AppVersion:            getEnv("APP_VERSION", "dev"),
		MaterialTimeout:       getEnvDuration("MATERIAL_TIMEOUT", 60*time.Second),
		RefreshInterval:       getEnvDuration("REFRESH_INTERVAL", 30*time.Minute),
		Chapters:              getEnvList("CHAPTERS"),
		WatchInterval:         getEnvDuration("WATCH_INTERVAL", 2*time.Second),
		EnableScheduler:       getEnvBool("ENABLE_SCHEDULER", true),
		ReminderInterval:      getEnvDuration("REMINDER_INTERVAL", time.Hour),
		NotificationStartHour: getEnvInt("NOTIFICATION_START_HOUR", 8),
		NotificationEndHour:   getEnvInt("NOTIFICATION_END_HOUR", 22),
		ImportFile:            getEnv("IMPORT_FILE", ""),
		ImportChapter:         getEnv("IMPORT_CHAPTER", ""),
		LogLevel:              getEnvLevel("LOG_LEVEL", slog.LevelInfo),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that settings are consistent
func (c *Config) Validate() error {
	var errs []error

	switch c.DBType {
	case "sqlite", "sqlite3":
	case "postgres":
		if c.DatabaseURL == "" {
			errs = append(errs, fmt.Errorf("DATABASE_URL must be set when DB_TYPE=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported DB_TYPE %q", c.DBType))
	}

	if c.TelegramToken != "" && c.TelegramChatID == 0 {
		errs = append(errs, fmt.Errorf("TELEGRAM_CHAT_ID must be set together with TELEGRAM_BOT_TOKEN"))
	}
	if !validHour(c.NotificationStartHour) || !validHour(c.NotificationEndHour) {
		errs = append(errs, fmt.Errorf("notification hours must be between 0 and 23"))
	}
	if c.NotificationStartHour > c.NotificationEndHour {
		errs = append(errs, fmt.Errorf("NOTIFICATION_START_HOUR must not be after NOTIFICATION_END_HOUR"))
	}
	if c.MaterialTimeout <= 0 || c.WatchInterval <= 0 || c.ReminderInterval <= 0 {
		errs = append(errs, fmt.Errorf("timeouts and intervals must be positive"))
	}
	if (c.ImportFile == "") != (c.ImportChapter == "") {
		errs = append(errs, fmt.Errorf("IMPORT_FILE and IMPORT_CHAPTER must be set together"))
	}

	return errors.Join(errs...)
}

func validHour(h int) bool {
	return h >= 0 && h <= 23
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("90s") or plain milliseconds
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvLevel(key string, defaultValue slog.Level) slog.Level {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(value)); err != nil {
		return defaultValue
	}
	return level
}
