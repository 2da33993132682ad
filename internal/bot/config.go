package bot

import (
	"time"
)

// BotConfig represents the configuration for the bot
type BotConfig struct {
	// OwnerChatID is the only chat the bot answers
	OwnerChatID int64
	// How long a short-answer question waits for a text reply
	PendingTTL time.Duration
	// Maximum number of due questions listed by /due
	MaxDueListed int
	// Chapters to use when the chapter list cannot be fetched
	FallbackChapters []string
}

// DefaultConfig returns the default bot configuration
func DefaultConfig() *BotConfig {
	return &BotConfig{
		PendingTTL:   time.Hour * 1,
		MaxDueListed: 20,
	}
}
