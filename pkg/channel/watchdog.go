package channel

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"tgrelay/pkg/logger"
)

// Watchdog periodically checks that Telegram still points at our webhook and
// reconnects when the registration drifted, e.g. after another deployment
// called setWebhook with the same token. A disconnected channel is left alone.
type Watchdog struct {
	manager  *Manager
	schedule string
	timeout  time.Duration
	cron     *cron.Cron
	mu       sync.Mutex
	lastErr  string
}

func NewWatchdog(manager *Manager, schedule string, timeout time.Duration) *Watchdog {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Watchdog{
		manager:  manager,
		schedule: schedule,
		timeout:  timeout,
	}
}

func (w *Watchdog) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cron != nil {
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(w.schedule, func() { w.Check(context.Background()) }); err != nil {
		return err
	}
	c.Start()
	w.cron = c
	logger.InfoCF("watchdog", "Webhook watchdog started", map[string]interface{}{
		"schedule": w.schedule,
	})
	return nil
}

func (w *Watchdog) Stop() {
	w.mu.Lock()
	c := w.cron
	w.cron = nil
	w.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
	logger.InfoC("watchdog", "Webhook watchdog stopped")
}

// Check runs one comparison and reports whether a reconnect was attempted.
func (w *Watchdog) Check(ctx context.Context) bool {
	state := w.manager.Current()
	if !state.Ready || w.manager.bot == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	info, err := w.manager.bot.WebhookInfo(ctx)
	if err != nil {
		logger.WarnCF("watchdog", "getWebhookInfo failed", map[string]interface{}{
			logger.FieldError: err.Error(),
		})
		return false
	}
	w.reportPlatformError(info.LastErrorMessage, info.LastErrorDate)

	if info.URL == state.WebhookURL {
		return false
	}
	logger.WarnCF("watchdog", "Webhook registration drifted, reconnecting", map[string]interface{}{
		"registered": info.URL,
		"expected":   state.WebhookURL,
	})
	if _, err := w.manager.Connect(ctx); err != nil {
		logger.ErrorCF("watchdog", "Reconnect failed", map[string]interface{}{
			logger.FieldError: err.Error(),
		})
	}
	return true
}

// reportPlatformError logs Telegram's delivery error once per distinct message.
func (w *Watchdog) reportPlatformError(msg string, at time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if msg == "" || msg == w.lastErr {
		return
	}
	w.lastErr = msg
	logger.WarnCF("watchdog", "Telegram reports webhook delivery errors", map[string]interface{}{
		logger.FieldError: msg,
		"at":              at.UTC().Format(time.RFC3339),
	})
}
