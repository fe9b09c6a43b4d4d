package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Validate returns configuration problems found in cfg.
// It does not mutate cfg. Missing credentials are reported here but are not
// fatal at runtime: the affected capability degrades instead.
func Validate(cfg *Config) []error {
	if cfg == nil {
		return []error{fmt.Errorf("config is nil")}
	}

	var errs []error

	tg := cfg.Telegram
	if tg.Token == "" {
		errs = append(errs, fmt.Errorf("telegram.token is required"))
	}
	if tg.ControlChatID == 0 {
		errs = append(errs, fmt.Errorf("telegram.control_chat_id is required"))
	}
	if !strings.HasPrefix(tg.WebhookPath, "/") {
		errs = append(errs, fmt.Errorf("telegram.webhook_path must start with /"))
	}
	if tg.WebhookURL != "" {
		if u, err := url.Parse(tg.WebhookURL); err != nil || u.Scheme != "https" || u.Host == "" {
			errs = append(errs, fmt.Errorf("telegram.webhook_url must be an absolute https URL"))
		}
	}
	errs = append(errs, validateSecretToken("telegram.webhook_secret", tg.WebhookSecret)...)
	if _, err := url.ParseRequestURI(tg.APIServer); err != nil {
		errs = append(errs, fmt.Errorf("telegram.api_server must be a URL"))
	}
	if tg.APITimeoutSec <= 0 {
		errs = append(errs, fmt.Errorf("telegram.api_timeout_sec must be > 0"))
	}
	if tg.SetupTimeoutSec <= 0 {
		errs = append(errs, fmt.Errorf("telegram.setup_timeout_sec must be > 0"))
	}
	if tg.SendsPerMinute <= 0 {
		errs = append(errs, fmt.Errorf("telegram.sends_per_minute must be > 0"))
	}
	if tg.SendBurst <= 0 {
		errs = append(errs, fmt.Errorf("telegram.send_burst must be > 0"))
	}

	ms := cfg.MainServer
	if _, err := url.ParseRequestURI(ms.BaseURL); err != nil {
		errs = append(errs, fmt.Errorf("main_server.base_url must be a URL"))
	}
	if !strings.HasPrefix(ms.EventsPath, "/") {
		errs = append(errs, fmt.Errorf("main_server.events_path must start with /"))
	}
	if ms.Secret == "" {
		errs = append(errs, fmt.Errorf("main_server.secret is required"))
	}
	if ms.TimeoutSec <= 0 {
		errs = append(errs, fmt.Errorf("main_server.timeout_sec must be > 0"))
	}

	if cfg.Gateway.Port <= 0 || cfg.Gateway.Port > 65535 {
		errs = append(errs, fmt.Errorf("gateway.port must be in 1..65535"))
	}
	if cfg.Gateway.APIKey == "" {
		errs = append(errs, fmt.Errorf("gateway.api_key is required"))
	}
	if cfg.Gateway.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("gateway.queue_size must be > 0"))
	}
	if cfg.Gateway.Workers <= 0 {
		errs = append(errs, fmt.Errorf("gateway.workers must be > 0"))
	}

	errs = append(errs, validateCannedReplies(cfg.Relay.CannedReplies)...)
	if _, err := time.LoadLocation(cfg.Relay.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("relay.timezone %q: %v", cfg.Relay.Timezone, err))
	}
	if strings.TrimSpace(cfg.Relay.TimeFormat) == "" {
		errs = append(errs, fmt.Errorf("relay.time_format must not be empty"))
	}

	if cfg.Watchdog.Enabled {
		if _, err := cron.ParseStandard(cfg.Watchdog.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("watchdog.schedule %q: %v", cfg.Watchdog.Schedule, err))
		}
	}

	if cfg.Logging.Enabled {
		if cfg.Logging.Dir == "" {
			errs = append(errs, fmt.Errorf("logging.dir is required when logging.enabled=true"))
		}
		if cfg.Logging.Filename == "" {
			errs = append(errs, fmt.Errorf("logging.filename is required when logging.enabled=true"))
		}
		if cfg.Logging.MaxSizeMB <= 0 {
			errs = append(errs, fmt.Errorf("logging.max_size_mb must be > 0"))
		}
		if cfg.Logging.RetentionDays <= 0 {
			errs = append(errs, fmt.Errorf("logging.retention_days must be > 0"))
		}
	}

	return errs
}

// Telegram accepts 1-256 characters from [A-Za-z0-9_-] as a webhook secret.
func validateSecretToken(path, secret string) []error {
	if secret == "" {
		return nil
	}
	if len(secret) > 256 {
		return []error{fmt.Errorf("%s must be at most 256 characters", path)}
	}
	for _, r := range secret {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' || r == '-') {
			return []error{fmt.Errorf("%s may only contain A-Z, a-z, 0-9, _ and -", path)}
		}
	}
	return nil
}

// MaxCannedReplies keeps the quick-reply keyboard, one button per row,
// well inside Telegram's 100-button inline keyboard limit.
const MaxCannedReplies = 50

func validateCannedReplies(values []string) []error {
	var errs []error
	for i, value := range values {
		if strings.TrimSpace(value) == "" {
			errs = append(errs, fmt.Errorf("relay.canned_replies[%d] must not be empty", i))
		}
	}
	if len(values) > MaxCannedReplies {
		errs = append(errs, fmt.Errorf("relay.canned_replies supports at most %d entries", MaxCannedReplies))
	}
	return errs
}
