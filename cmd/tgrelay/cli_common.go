package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mymmrac/telego"

	"tgrelay/pkg/bus"
	"tgrelay/pkg/channel"
	"tgrelay/pkg/config"
	"tgrelay/pkg/dispatcher"
	"tgrelay/pkg/filelink"
	"tgrelay/pkg/forwarder"
	"tgrelay/pkg/logger"
	"tgrelay/pkg/platform"
	"tgrelay/pkg/router"
)

func getConfigPath() string {
	if p := strings.TrimSpace(configPathFlag); p != "" {
		return p
	}
	if fromEnv := strings.TrimSpace(os.Getenv("TGRELAY_CONFIG")); fromEnv != "" {
		return fromEnv
	}
	return filepath.Join(config.GetConfigDir(), "config.json")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(getConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", getConfigPath(), err)
	}
	configureLogging(cfg)
	return cfg, nil
}

func configureLogging(cfg *config.Config) {
	if !debugFlag {
		if level, err := logger.ParseLevel(cfg.Logging.Level); err == nil {
			logger.SetLevel(level)
		} else {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	if !cfg.Logging.Enabled {
		logger.DisableFileLogging()
		return
	}
	if err := logger.EnableFileLogging(cfg.LogFilePath(), cfg.Logging.MaxSizeMB, cfg.Logging.RetentionDays); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to enable file logging: %v\n", err)
	}
}

func printProblems(w io.Writer, problems []error) {
	for _, p := range problems {
		fmt.Fprintf(w, "  ✗ %v\n", p)
	}
}

// fileLinks signs gateway download URLs with the gateway API key. It is nil
// without a public base URL or key, and file URLs then carry the bot token.
func fileLinks(cfg *config.Config) *filelink.Signer {
	return filelink.New(cfg.PublicBaseURL(), cfg.Gateway.APIKey)
}

func newTelegram(cfg *config.Config) (*platform.Telegram, error) {
	opts := platform.Options{
		Token:          cfg.Telegram.Token,
		APIServer:      cfg.Telegram.APIServer,
		APITimeout:     cfg.APITimeout(),
		SetupTimeout:   cfg.SetupTimeout(),
		SendsPerMinute: cfg.Telegram.SendsPerMinute,
		SendBurst:      cfg.Telegram.SendBurst,
	}
	if links := fileLinks(cfg); links != nil {
		opts.FileLinks = links
	}
	return platform.NewTelegram(opts)
}

// relay wires every component the gateway runs. tg is nil when no bot token
// is configured; the gateway still serves /health and reports not ready.
type relay struct {
	cfg        *config.Config
	tg         *platform.Telegram
	manager    *channel.Manager
	dispatcher *dispatcher.Dispatcher
	forwarder  *forwarder.Client
	router     *router.Router
	updates    *bus.UpdateBus
	workers    *bus.Workers
}

func newRelay(cfg *config.Config) *relay {
	r := &relay{
		cfg:       cfg,
		forwarder: forwarder.NewFromConfig(cfg),
		updates:   bus.NewUpdateBus(cfg.Gateway.QueueSize),
	}

	var bot channel.Bot
	var sender dispatcher.Sender
	tg, err := newTelegram(cfg)
	if err != nil {
		logger.WarnCF("relay", "Telegram unavailable, outbound relay disabled", map[string]interface{}{
			logger.FieldError: err.Error(),
		})
	} else {
		r.tg = tg
		bot, sender = tg, tg
		if fileLinks(cfg) == nil {
			logger.WarnC("relay", "No public base URL or gateway API key: forwarded file URLs will contain the bot token")
		}
	}

	r.manager = channel.NewManager(bot, cfg.PublicWebhookURL(), cfg.Telegram.WebhookSecret)
	r.dispatcher = dispatcher.New(sender, r.manager, dispatcher.Options{
		ControlChatID: cfg.Telegram.ControlChatID,
		CannedReplies: cfg.Relay.CannedReplies,
		Location:      cfg.Location(),
		TimeFormat:    cfg.Relay.TimeFormat,
	})

	handler := func(ctx context.Context, update telego.Update) {
		logger.DebugCF("relay", "Update dropped, no bot configured", map[string]interface{}{
			logger.FieldUpdateID: update.UpdateID,
		})
	}
	if r.tg != nil {
		r.router = router.New(r.tg, r.forwarder, r.dispatcher, r.manager, router.Options{
			ControlChatID: cfg.Telegram.ControlChatID,
			CannedReplies: cfg.Relay.CannedReplies,
		})
		handler = func(ctx context.Context, update telego.Update) {
			r.router.Route(ctx, update)
		}
	}
	r.workers = bus.NewWorkers(r.updates, cfg.Gateway.Workers, handler)
	return r
}

// requireTelegram is for commands that talk to the Bot API directly.
func requireTelegram(cfg *config.Config) (*platform.Telegram, error) {
	tg, err := newTelegram(cfg)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w (set telegram.token or TGRELAY_TELEGRAM_TOKEN)", err)
	}
	return tg, nil
}
