// Package boot resolves runtime settings (secrets, timezone, transport mode) for the monitor.
package boot

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sergeartemyev-blip/social-capital-monitor/internal/config"
)

// Storage backends.
const (
	BackendNotion   = "notion"
	BackendPostgres = "postgres"
)

// Transport modes for receiving button presses.
const (
	ModePoll    = "poll"
	ModeWebhook = "webhook"
)

// RuntimeConfig holds the resolved secrets and process-level settings.
// Values may be overridden by environment variables (e.g. TELEGRAM_BOT_TOKEN, NOTION_TOKEN, HTTP_ADDR).
type RuntimeConfig struct {
	Location         *time.Location
	ServerAddr       string
	Backend          string
	Mode             string
	BotToken         string
	ChatID           int64
	WebhookSecret    string
	NotionToken      string
	NotionDatabaseID string
	PostgresURL      string
	GeminiAPIKey     string
	YouTubeAPIKey    string
}

// ProvideRuntimeConfig builds RuntimeConfig from the given config and applies env overrides.
// Missing credentials for the selected backend or transport are reported before any side effect.
func ProvideRuntimeConfig(cfg config.Config) (*RuntimeConfig, error) {
	ret := &RuntimeConfig{
		ServerAddr:       cfg.Server.Addr,
		Backend:          strings.ToLower(strings.TrimSpace(cfg.Storage.Backend)),
		Mode:             strings.ToLower(strings.TrimSpace(cfg.Telegram.Mode)),
		BotToken:         cfg.Telegram.BotToken,
		WebhookSecret:    cfg.Telegram.WebhookSecret,
		NotionToken:      cfg.Notion.Token,
		NotionDatabaseID: cfg.Notion.DatabaseID,
		PostgresURL:      cfg.Postgres.URL,
		GeminiAPIKey:     cfg.Gemini.APIKey,
		YouTubeAPIKey:    cfg.YouTube.APIKey,
	}
	chatID := cfg.Telegram.ChatID

	overrides := []struct {
		env string
		dst *string
	}{
		{"HTTP_ADDR", &ret.ServerAddr},
		{"STORAGE_BACKEND", &ret.Backend},
		{"TELEGRAM_MODE", &ret.Mode},
		{"TELEGRAM_BOT_TOKEN", &ret.BotToken},
		{"TELEGRAM_CHAT_ID", &chatID},
		{"WEBHOOK_SECRET", &ret.WebhookSecret},
		{"NOTION_TOKEN", &ret.NotionToken},
		{"NOTION_DATABASE_ID", &ret.NotionDatabaseID},
		{"DATABASE_URL", &ret.PostgresURL},
		{"GEMINI_API_KEY", &ret.GeminiAPIKey},
		{"YOUTUBE_API_KEY", &ret.YouTubeAPIKey},
	}
	for _, o := range overrides {
		if value := strings.TrimSpace(os.Getenv(o.env)); value != "" {
			*o.dst = value
		}
	}

	tz := strings.TrimSpace(cfg.Schedule.Timezone)
	if value := os.Getenv("TZ_NAME"); value != "" {
		tz = value
	}
	if tz == "" {
		tz = config.DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}
	ret.Location = loc

	if ret.Backend == "" {
		ret.Backend = BackendNotion
	}
	if ret.Mode == "" {
		ret.Mode = ModePoll
	}
	if chatID = strings.TrimSpace(chatID); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid telegram chat id %q: %w", chatID, err)
		}
		ret.ChatID = id
	}
	return ret, nil
}

// ValidateStorage reports missing credentials for the configured contact database.
func (r *RuntimeConfig) ValidateStorage() error {
	switch r.Backend {
	case BackendNotion:
		if strings.TrimSpace(r.NotionToken) == "" || strings.TrimSpace(r.NotionDatabaseID) == "" {
			return errors.New("notion token and database id are required")
		}
	case BackendPostgres:
		if strings.TrimSpace(r.PostgresURL) == "" {
			return errors.New("postgres url is required")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", r.Backend)
	}
	return nil
}

// ValidateTransport reports missing Telegram credentials or an unknown mode.
func (r *RuntimeConfig) ValidateTransport() error {
	if strings.TrimSpace(r.BotToken) == "" {
		return errors.New("telegram bot token is required")
	}
	if r.ChatID == 0 {
		return errors.New("telegram chat id is required")
	}
	switch r.Mode {
	case ModePoll:
	case ModeWebhook:
		if strings.TrimSpace(r.WebhookSecret) == "" {
			return errors.New("webhook secret is required in webhook mode")
		}
	default:
		return fmt.Errorf("unknown telegram mode %q", r.Mode)
	}
	return nil
}

// Polling reports whether button presses are fetched with getUpdates.
func (r *RuntimeConfig) Polling() bool {
	return r.Mode == ModePoll
}
