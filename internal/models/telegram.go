package models

import "time"

// TelegramConfig holds Telegram notification configuration.
type TelegramConfig struct {
	BotToken string
	ChatID   string
}

// TelegramMessage holds the data for a backup notification.
type TelegramMessage struct {
	Success      bool
	Host         string
	SnapshotsDir string
	StartTime    time.Time
	Duration     time.Duration

	// Run stats (if successful).
	Created []string

	// Retention stats.
	SnapshotsRemoved int
	SnapshotsKept    int

	// Error info (if failed).
	ErrorMessage string
	FailedStep   string
}

// TelegramResult holds the result of a Telegram notification.
type TelegramResult struct {
	MessageSent bool
	Error       error
}
