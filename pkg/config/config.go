package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Telegram   TelegramConfig   `json:"telegram"`
	MainServer MainServerConfig `json:"main_server"`
	Gateway    GatewayConfig    `json:"gateway"`
	Relay      RelayConfig      `json:"relay"`
	Watchdog   WatchdogConfig   `json:"watchdog"`
	Logging    LoggingConfig    `json:"logging"`
	mu         sync.RWMutex
}

type TelegramConfig struct {
	Token           string `json:"token" env:"TGRELAY_TELEGRAM_TOKEN"`
	ControlChatID   int64  `json:"control_chat_id" env:"TGRELAY_TELEGRAM_CONTROL_CHAT_ID"`
	WebhookURL      string `json:"webhook_url" env:"TGRELAY_TELEGRAM_WEBHOOK_URL"`
	WebhookPath     string `json:"webhook_path" env:"TGRELAY_TELEGRAM_WEBHOOK_PATH"`
	WebhookSecret   string `json:"webhook_secret" env:"TGRELAY_TELEGRAM_WEBHOOK_SECRET"`
	APIServer       string `json:"api_server" env:"TGRELAY_TELEGRAM_API_SERVER"`
	APITimeoutSec   int    `json:"api_timeout_sec" env:"TGRELAY_TELEGRAM_API_TIMEOUT_SEC"`
	SetupTimeoutSec int    `json:"setup_timeout_sec" env:"TGRELAY_TELEGRAM_SETUP_TIMEOUT_SEC"`
	SendsPerMinute  int    `json:"sends_per_minute" env:"TGRELAY_TELEGRAM_SENDS_PER_MINUTE"`
	SendBurst       int    `json:"send_burst" env:"TGRELAY_TELEGRAM_SEND_BURST"`
	AutoConnect     bool   `json:"auto_connect" env:"TGRELAY_TELEGRAM_AUTO_CONNECT"`
}

type MainServerConfig struct {
	BaseURL    string `json:"base_url" env:"TGRELAY_MAIN_SERVER_BASE_URL"`
	EventsPath string `json:"events_path" env:"TGRELAY_MAIN_SERVER_EVENTS_PATH"`
	Secret     string `json:"secret" env:"TGRELAY_MAIN_SERVER_SECRET"`
	TimeoutSec int    `json:"timeout_sec" env:"TGRELAY_MAIN_SERVER_TIMEOUT_SEC"`
}

type GatewayConfig struct {
	Host      string `json:"host" env:"TGRELAY_GATEWAY_HOST"`
	Port      int    `json:"port" env:"TGRELAY_GATEWAY_PORT"`
	APIKey    string `json:"api_key" env:"TGRELAY_GATEWAY_API_KEY"`
	QueueSize int    `json:"queue_size" env:"TGRELAY_GATEWAY_QUEUE_SIZE"`
	Workers   int    `json:"workers" env:"TGRELAY_GATEWAY_WORKERS"`
}

type RelayConfig struct {
	CannedReplies []string `json:"canned_replies" env:"TGRELAY_RELAY_CANNED_REPLIES" envSeparator:"|"`
	Timezone      string   `json:"timezone" env:"TGRELAY_RELAY_TIMEZONE"`
	TimeFormat    string   `json:"time_format" env:"TGRELAY_RELAY_TIME_FORMAT"`
}

type WatchdogConfig struct {
	Enabled  bool   `json:"enabled" env:"TGRELAY_WATCHDOG_ENABLED"`
	Schedule string `json:"schedule" env:"TGRELAY_WATCHDOG_SCHEDULE"`
}

type LoggingConfig struct {
	Enabled       bool   `json:"enabled" env:"TGRELAY_LOGGING_ENABLED"`
	Level         string `json:"level" env:"TGRELAY_LOGGING_LEVEL"`
	Dir           string `json:"dir" env:"TGRELAY_LOGGING_DIR"`
	Filename      string `json:"filename" env:"TGRELAY_LOGGING_FILENAME"`
	MaxSizeMB     int    `json:"max_size_mb" env:"TGRELAY_LOGGING_MAX_SIZE_MB"`
	RetentionDays int    `json:"retention_days" env:"TGRELAY_LOGGING_RETENTION_DAYS"`
}

func GetConfigDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".tgrelay")
}

func DefaultConfig() *Config {
	configDir := GetConfigDir()
	return &Config{
		Telegram: TelegramConfig{
			WebhookPath:     "/webhook/telegram",
			APIServer:       "https://api.telegram.org",
			APITimeoutSec:   15,
			SetupTimeoutSec: 10,
			SendsPerMinute:  20,
			SendBurst:       5,
			AutoConnect:     true,
		},
		MainServer: MainServerConfig{
			BaseURL:    "http://localhost:3000",
			EventsPath: "/api/integrations/telegram/events",
			TimeoutSec: 10,
		},
		Gateway: GatewayConfig{
			Host:      "0.0.0.0",
			Port:      3001,
			QueueSize: 100,
			Workers:   8,
		},
		Relay: RelayConfig{
			CannedReplies: []string{
				"Hi! Thanks for reaching out, an agent will be with you shortly.",
				"Could you share a bit more detail so we can help?",
				"Thanks for waiting, we're looking into it now.",
				"Is there anything else we can help you with?",
			},
			Timezone:   "UTC",
			TimeFormat: "2006-01-02 15:04:05",
		},
		Watchdog: WatchdogConfig{
			Enabled:  true,
			Schedule: "@every 5m",
		},
		Logging: LoggingConfig{
			Enabled:       true,
			Level:         "info",
			Dir:           filepath.Join(configDir, "logs"),
			Filename:      "tgrelay.log",
			MaxSizeMB:     20,
			RetentionDays: 7,
		},
	}
}

// LoadConfig layers defaults, the JSON file (if present), a .env file next to
// the working directory (if present) and finally the process environment.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := DecodeStrict(data, cfg); err != nil {
			return nil, err
		}
	}

	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadDotEnv never overrides variables already set in the environment.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// DecodeStrict rejects unknown keys and trailing content.
func DecodeStrict(data []byte, cfg *Config) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return err
	}
	var extra json.RawMessage
	if err := dec.Decode(&extra); err != io.EOF {
		if err == nil {
			return fmt.Errorf("invalid config: trailing JSON content")
		}
		return err
	}
	return nil
}

func SaveConfig(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

func (c *Config) LogFilePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	filename := c.Logging.Filename
	if filename == "" {
		filename = "tgrelay.log"
	}
	return filepath.Join(expandHome(c.Logging.Dir), filename)
}

// PublicWebhookURL is the URL registered with Telegram, or "" when no
// public base is configured.
func (c *Config) PublicWebhookURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	base := strings.TrimRight(strings.TrimSpace(c.Telegram.WebhookURL), "/")
	if base == "" {
		return ""
	}
	if strings.HasSuffix(base, c.Telegram.WebhookPath) {
		return base
	}
	return base + c.Telegram.WebhookPath
}

// PublicBaseURL is the public origin of the gateway, telegram.webhook_url
// without the webhook path.
func (c *Config) PublicBaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	base := strings.TrimRight(strings.TrimSpace(c.Telegram.WebhookURL), "/")
	return strings.TrimSuffix(base, c.Telegram.WebhookPath)
}

func (c *Config) Location() *time.Location {
	c.mu.RLock()
	defer c.mu.RUnlock()

	loc, err := time.LoadLocation(c.Relay.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) APITimeout() time.Duration {
	return time.Duration(c.Telegram.APITimeoutSec) * time.Second
}

func (c *Config) SetupTimeout() time.Duration {
	return time.Duration(c.Telegram.SetupTimeoutSec) * time.Second
}

func (c *Config) ForwardTimeout() time.Duration {
	return time.Duration(c.MainServer.TimeoutSec) * time.Second
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
