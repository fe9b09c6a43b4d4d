package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadConfigRejectsUnknownField(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.json")
	content := `{
  "telegram": {
    "token": "123:abc",
    "unknown_field": 1
  }
}`
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	_, err := LoadConfig(cfgPath)
	if err == nil {
		t.Fatalf("expected unknown field error")
	}
	if !strings.Contains(strings.ToLower(err.Error()), "unknown field") {
		t.Fatalf("expected unknown field error, got: %v", err)
	}
}

func TestLoadConfigRejectsTrailingJSONContent(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.json")
	content := `{"telegram":{"control_chat_id":-100}}{"extra":true}`
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	_, err := LoadConfig(cfgPath)
	if err == nil {
		t.Fatalf("expected trailing json content error")
	}
	if !strings.Contains(err.Error(), "trailing JSON content") {
		t.Fatalf("expected trailing JSON content error, got: %v", err)
	}
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Gateway.Port != 3001 {
		t.Fatalf("gateway.port = %d, want default 3001", cfg.Gateway.Port)
	}
	if cfg.Telegram.WebhookPath != "/webhook/telegram" {
		t.Fatalf("telegram.webhook_path = %q", cfg.Telegram.WebhookPath)
	}
	if len(cfg.Relay.CannedReplies) == 0 {
		t.Fatalf("expected default canned replies")
	}
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.json")
	content := `{"telegram":{"control_chat_id":-100111,"token":"from-file"},"gateway":{"port":4000}}`
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("TGRELAY_TELEGRAM_TOKEN", "from-env")
	t.Setenv("TGRELAY_RELAY_CANNED_REPLIES", "Hello|Goodbye")

	cfg, err := LoadConfig(cfgPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Telegram.Token != "from-env" {
		t.Fatalf("token = %q, want from-env", cfg.Telegram.Token)
	}
	if cfg.Telegram.ControlChatID != -100111 {
		t.Fatalf("control_chat_id = %d", cfg.Telegram.ControlChatID)
	}
	if cfg.Gateway.Port != 4000 {
		t.Fatalf("gateway.port = %d", cfg.Gateway.Port)
	}
	if got := cfg.Relay.CannedReplies; len(got) != 2 || got[0] != "Hello" || got[1] != "Goodbye" {
		t.Fatalf("canned replies = %#v", got)
	}
}

func TestPublicWebhookURL(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.PublicWebhookURL(); got != "" {
		t.Fatalf("expected empty URL without base, got %q", got)
	}
	cfg.Telegram.WebhookURL = "https://relay.example.com/"
	if got := cfg.PublicWebhookURL(); got != "https://relay.example.com/webhook/telegram" {
		t.Fatalf("got %q", got)
	}
	cfg.Telegram.WebhookURL = "https://relay.example.com/webhook/telegram"
	if got := cfg.PublicWebhookURL(); got != "https://relay.example.com/webhook/telegram" {
		t.Fatalf("got %q", got)
	}
}

func TestPublicBaseURL(t *testing.T) {
	cfg := DefaultConfig()
	for _, in := range []string{"https://relay.example.com", "https://relay.example.com/", "https://relay.example.com/webhook/telegram"} {
		cfg.Telegram.WebhookURL = in
		if got := cfg.PublicBaseURL(); got != "https://relay.example.com" {
			t.Fatalf("PublicBaseURL(%q) = %q", in, got)
		}
	}
}

func TestLocationFallsBackToUTC(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Relay.Timezone = "Not/AZone"
	if cfg.Location() != time.UTC {
		t.Fatalf("expected UTC fallback")
	}
}

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Telegram.Token = "123456:token"
	cfg.Telegram.ControlChatID = -1001234567890
	cfg.MainServer.Secret = "shared"
	cfg.Gateway.APIKey = "key"
	return cfg
}

func TestValidateDefaultsWithCredentials(t *testing.T) {
	if errs := Validate(validConfig()); len(errs) != 0 {
		t.Fatalf("unexpected validation errors: %v", errs)
	}
}

func TestValidateReportsProblems(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing token", func(c *Config) { c.Telegram.Token = "" }, "telegram.token"},
		{"missing control chat", func(c *Config) { c.Telegram.ControlChatID = 0 }, "telegram.control_chat_id"},
		{"http webhook", func(c *Config) { c.Telegram.WebhookURL = "http://relay.example.com" }, "telegram.webhook_url"},
		{"bad secret", func(c *Config) { c.Telegram.WebhookSecret = "has space" }, "telegram.webhook_secret"},
		{"missing main secret", func(c *Config) { c.MainServer.Secret = "" }, "main_server.secret"},
		{"bad port", func(c *Config) { c.Gateway.Port = 70000 }, "gateway.port"},
		{"empty canned reply", func(c *Config) { c.Relay.CannedReplies = []string{"ok", " "} }, "relay.canned_replies[1]"},
		{"bad timezone", func(c *Config) { c.Relay.Timezone = "Mars/Olympus" }, "relay.timezone"},
		{"bad schedule", func(c *Config) { c.Watchdog.Schedule = "whenever" }, "watchdog.schedule"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			errs := Validate(cfg)
			for _, err := range errs {
				if strings.Contains(err.Error(), tt.want) {
					return
				}
			}
			t.Fatalf("expected error mentioning %q, got %v", tt.want, errs)
		})
	}
}
