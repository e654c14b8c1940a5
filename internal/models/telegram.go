package models

import "time"

// TelegramConfig holds Telegram notification configuration.
type TelegramConfig struct {
	BotToken string
	ChatID   string
}

// TelegramMessage holds the data for a job notification.
type TelegramMessage struct {
	Success   bool
	RunID     string
	Action    string
	Target    string
	Host      string
	StartTime time.Time
	Duration  time.Duration

	// Command output (if successful).
	Output string

	// Error info (if failed).
	ErrorMessage string
	FailedStep   string
}

// TelegramResult holds the result of a Telegram notification.
type TelegramResult struct {
	MessageSent bool
	Error       error
}
