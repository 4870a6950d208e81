// Package config loads and exposes application configuration (TOML).
package config

import (
	"os"

	"github.com/BurntSushi/toml"
)

// Default configuration values used when a field is missing in TOML.
const (
	DefaultConfigPath      = "config.toml"
	DefaultHTTPAddr        = "127.0.0.1:8080"
	DefaultStatePath       = "data/scmon.db"
	DefaultTimezone        = "Europe/Moscow"
	DefaultNotionVersion   = "2022-06-28"
	DefaultGeminiModel     = "gemini-flash-latest"
	DefaultStorageBackend  = "notion"
	DefaultTransportMode   = "poll"
	DefaultDigestPattern   = "0 8 * * *"
	DefaultReconcileCron   = "*/5 * * * *"
	DefaultMonitorPattern  = "0 7 * * *"
	DefaultEnrichPattern   = "0 6 1 * *"
	DefaultRequestTimeout  = 15
	DefaultGeminiTimeout   = 45
	DefaultGeminiRetries   = 5
	DefaultLookaheadDays   = 6
	DefaultMaxDue          = 5
	DefaultMaxIncomplete   = 3
	DefaultBirthdayWindow  = 14
	DefaultMonitorLookhead = 7
)

// DefaultCircles are the relationship categories that take part in scheduling.
var DefaultCircles = []string{
	"Клиент активный",
	"Клиент бывший",
	"Партнер",
	"Близкий круг",
	"Знакомый",
	"Зона развития",
}

// Config is the root application configuration loaded from TOML.
type Config struct {
	Log        LogConfig        `toml:"log"`
	Server     ServerConfig     `toml:"server"`
	Telegram   TelegramConfig   `toml:"telegram"`
	Storage    StorageConfig    `toml:"storage"`
	Notion     NotionConfig     `toml:"notion"`
	Postgres   PostgresConfig   `toml:"postgres"`
	State      StateConfig      `toml:"state"`
	Digest     DigestConfig     `toml:"digest"`
	Monitor    MonitorConfig    `toml:"monitor"`
	Schema     SchemaConfig     `toml:"schema"`
	Priorities PrioritiesConfig `toml:"priorities"`
	Schedule   ScheduleConfig   `toml:"schedule"`
	Gemini     GeminiConfig     `toml:"gemini"`
	YouTube    YouTubeConfig    `toml:"youtube"`
}

// LogConfig holds logging level and format (e.g. level=info, format=text).
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// ServerConfig holds the HTTP listener used for the Telegram webhook and manual triggers.
type ServerConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

// TelegramConfig holds the bot credentials and how button presses are received.
// Mode is "poll" (getUpdates with a persisted cursor) or "webhook".
type TelegramConfig struct {
	BotToken           string `toml:"bot_token"`
	ChatID             string `toml:"chat_id"`
	Mode               string `toml:"mode"`
	PollTimeoutSeconds int    `toml:"poll_timeout_seconds"`
	WebhookSecret      string `toml:"webhook_secret"`
	TimeoutSeconds     int    `toml:"timeout_seconds"`
}

// StorageConfig selects the contact database backend: "notion" or "postgres".
type StorageConfig struct {
	Backend string `toml:"backend"`
}

// NotionConfig holds the Notion integration token and contact database id.
type NotionConfig struct {
	Token          string `toml:"token"`
	DatabaseID     string `toml:"database_id"`
	BaseURL        string `toml:"base_url"`
	Version        string `toml:"version"`
	PageSize       int    `toml:"page_size"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// PostgresConfig holds the connection string for the Postgres contact table.
type PostgresConfig struct {
	URL   string `toml:"url"`
	Table string `toml:"table"`
}

// StateConfig holds the local SQLite file that keeps the transport cursor and run log.
type StateConfig struct {
	Path string `toml:"path"`
}

// DigestConfig holds the due-set selection caps and windows.
type DigestConfig struct {
	MonitoredCircles   []string `toml:"monitored_circles"`
	LookaheadDays      int      `toml:"lookahead_days"`
	MaxDue             int      `toml:"max_due"`
	MaxIncomplete      int      `toml:"max_incomplete"`
	BirthdayWindowDays int      `toml:"birthday_window_days"`
	HeaderDelayMillis  int      `toml:"header_delay_ms"`
	CardDelayMillis    int      `toml:"card_delay_ms"`
}

// MonitorConfig controls the social news refresh.
type MonitorConfig struct {
	LookaheadDays  int      `toml:"lookahead_days"`
	Priorities     []string `toml:"priorities"`
	MaxPosts       int      `toml:"max_posts"`
	PauseSeconds   int      `toml:"pause_seconds"`
	CacheTTLMinute int      `toml:"cache_ttl_minutes"`
}

// SchemaConfig maps logical contact fields to database property names.
type SchemaConfig struct {
	Name             string `toml:"name"`
	Circle           string `toml:"circle"`
	Priority         string `toml:"priority"`
	LastContact      string `toml:"last_contact"`
	NextContact      string `toml:"next_contact"`
	FrequencyDays    string `toml:"frequency_days"`
	Instagram        string `toml:"instagram"`
	TelegramChannel  string `toml:"telegram_channel"`
	TelegramPersonal string `toml:"telegram_personal"`
	YouTube          string `toml:"youtube"`
	Birthday         string `toml:"birthday"`
	Notes            string `toml:"notes"`
	News             string `toml:"news"`
	Occupation       string `toml:"occupation"`
	Goals            string `toml:"goals"`
}

// PrioritiesConfig maps database priority labels to the High/Medium/Low ranks.
type PrioritiesConfig struct {
	High   string `toml:"high"`
	Medium string `toml:"medium"`
	Low    string `toml:"low"`
}

// ScheduleConfig holds cron patterns for the daemon; an empty pattern disables the job.
type ScheduleConfig struct {
	Timezone  string `toml:"timezone"`
	Digest    string `toml:"digest"`
	Reconcile string `toml:"reconcile"`
	Monitor   string `toml:"monitor"`
	Enrich    string `toml:"enrich"`
}

// GeminiConfig holds the text-generation backend settings.
type GeminiConfig struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	MaxRetries     int    `toml:"max_retries"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// YouTubeConfig holds the YouTube Data API key used by the older monitor flow.
type YouTubeConfig struct {
	APIKey string `toml:"api_key"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Telegram: TelegramConfig{
			Mode:               DefaultTransportMode,
			PollTimeoutSeconds: 5,
			TimeoutSeconds:     DefaultRequestTimeout,
		},
		Storage: StorageConfig{
			Backend: DefaultStorageBackend,
		},
		Notion: NotionConfig{
			BaseURL:        "https://api.notion.com/v1",
			Version:        DefaultNotionVersion,
			PageSize:       100,
			TimeoutSeconds: DefaultRequestTimeout,
		},
		Postgres: PostgresConfig{
			Table: "contacts",
		},
		State: StateConfig{
			Path: DefaultStatePath,
		},
		Digest: DigestConfig{
			MonitoredCircles:   append([]string(nil), DefaultCircles...),
			LookaheadDays:      DefaultLookaheadDays,
			MaxDue:             DefaultMaxDue,
			MaxIncomplete:      DefaultMaxIncomplete,
			BirthdayWindowDays: DefaultBirthdayWindow,
			HeaderDelayMillis:  500,
			CardDelayMillis:    300,
		},
		Monitor: MonitorConfig{
			LookaheadDays:  DefaultMonitorLookhead,
			Priorities:     []string{"Высокий", "Средний"},
			MaxPosts:       5,
			PauseSeconds:   3,
			CacheTTLMinute: 30,
		},
		Schema: SchemaConfig{
			Name:             "Имя",
			Circle:           "Круг",
			Priority:         "Приоритет",
			LastContact:      "Последний контакт",
			NextContact:      "Следующий контакт",
			FrequencyDays:    "Частота контактов дни",
			Instagram:        "Insta",
			TelegramChannel:  "Telegram канал",
			TelegramPersonal: "Личный TG",
			YouTube:          "YouTube",
			Birthday:         "ДР",
			Notes:            "Заметки",
			News:             "Новости",
			Occupation:       "Чем занимается",
			Goals:            "Цели",
		},
		Priorities: PrioritiesConfig{
			High:   "Высокий",
			Medium: "Средний",
			Low:    "Низкий",
		},
		Schedule: ScheduleConfig{
			Timezone:  DefaultTimezone,
			Digest:    DefaultDigestPattern,
			Reconcile: DefaultReconcileCron,
			Monitor:   DefaultMonitorPattern,
			Enrich:    DefaultEnrichPattern,
		},
		Gemini: GeminiConfig{
			BaseURL:        "https://generativelanguage.googleapis.com/v1beta",
			Model:          DefaultGeminiModel,
			MaxRetries:     DefaultGeminiRetries,
			TimeoutSeconds: DefaultGeminiTimeout,
		},
	}
}

// Load reads and parses the TOML config file at path over the defaults.
// A missing file is not an error: the defaults are returned.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}
