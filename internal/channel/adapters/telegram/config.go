package telegram

import (
	"errors"
	"strings"
	"time"
)

// DefaultCursorName keys the update cursor in the CursorStore.
const DefaultCursorName = "telegram.updates"

// Config holds the Telegram bot credentials and polling parameters.
type Config struct {
	BotToken string
	ChatID   int64
	// APIEndpoint overrides tgbotapi.APIEndpoint ("https://api.telegram.org/bot%s/%s").
	APIEndpoint    string
	PollTimeout    time.Duration
	RequestTimeout time.Duration
	CursorName     string
}

func (c Config) normalized() (Config, error) {
	c.BotToken = strings.TrimSpace(c.BotToken)
	if c.BotToken == "" {
		return c, errors.New("telegram bot token is required")
	}
	if c.ChatID == 0 {
		return c, errors.New("telegram chat id is required")
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 15 * time.Second
	}
	if c.PollTimeout < 0 {
		c.PollTimeout = 0
	}
	if c.CursorName == "" {
		c.CursorName = DefaultCursorName
	}
	return c, nil
}
