package boot

import (
	"testing"

	"github.com/sergeartemyev-blip/social-capital-monitor/internal/config"
)

func TestProvideRuntimeConfigEnvOverrides(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("TELEGRAM_CHAT_ID", "-100500")
	t.Setenv("NOTION_TOKEN", "secret_x")
	t.Setenv("NOTION_DATABASE_ID", "db")
	t.Setenv("HTTP_ADDR", ":9999")

	cfg := config.Default()
	cfg.Telegram.BotToken = "from-file"

	rc, err := ProvideRuntimeConfig(cfg)
	if err != nil {
		t.Fatalf("provide: %v", err)
	}
	if rc.BotToken != "123:abc" {
		t.Fatalf("env should override file token, got %q", rc.BotToken)
	}
	if rc.ChatID != -100500 {
		t.Fatalf("unexpected chat id %d", rc.ChatID)
	}
	if rc.ServerAddr != ":9999" {
		t.Fatalf("unexpected addr %q", rc.ServerAddr)
	}
	if rc.Location == nil || rc.Location.String() != config.DefaultTimezone {
		t.Fatalf("unexpected location %v", rc.Location)
	}
	if err := rc.ValidateStorage(); err != nil {
		t.Fatalf("storage should validate: %v", err)
	}
	if err := rc.ValidateTransport(); err != nil {
		t.Fatalf("transport should validate: %v", err)
	}
	if !rc.Polling() {
		t.Fatal("default mode should poll")
	}
}

func TestProvideRuntimeConfigRejectsBadInput(t *testing.T) {
	cfg := config.Default()
	cfg.Schedule.Timezone = "Mars/Olympus"
	if _, err := ProvideRuntimeConfig(cfg); err == nil {
		t.Fatal("expected timezone error")
	}

	cfg = config.Default()
	cfg.Telegram.ChatID = "not-a-number"
	if _, err := ProvideRuntimeConfig(cfg); err == nil {
		t.Fatal("expected chat id error")
	}
}

func TestValidateMissingCredentials(t *testing.T) {
	tests := []struct {
		name      string
		rc        RuntimeConfig
		storage   bool
		transport bool
	}{
		{"notion without token", RuntimeConfig{Backend: BackendNotion, NotionDatabaseID: "db", BotToken: "t", ChatID: 1, Mode: ModePoll}, false, true},
		{"postgres without url", RuntimeConfig{Backend: BackendPostgres, BotToken: "t", ChatID: 1, Mode: ModePoll}, false, true},
		{"unknown backend", RuntimeConfig{Backend: "sheets", BotToken: "t", ChatID: 1, Mode: ModePoll}, false, true},
		{"no bot token", RuntimeConfig{Backend: BackendPostgres, PostgresURL: "postgres://x", ChatID: 1, Mode: ModePoll}, true, false},
		{"webhook without secret", RuntimeConfig{Backend: BackendPostgres, PostgresURL: "postgres://x", BotToken: "t", ChatID: 1, Mode: ModeWebhook}, true, false},
		{"webhook with secret", RuntimeConfig{Backend: BackendPostgres, PostgresURL: "postgres://x", BotToken: "t", ChatID: 1, Mode: ModeWebhook, WebhookSecret: "s"}, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rc.ValidateStorage() == nil; got != tt.storage {
				t.Errorf("ValidateStorage ok=%v, want %v", got, tt.storage)
			}
			if got := tt.rc.ValidateTransport() == nil; got != tt.transport {
				t.Errorf("ValidateTransport ok=%v, want %v", got, tt.transport)
			}
		})
	}
}
