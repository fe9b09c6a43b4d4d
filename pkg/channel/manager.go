// tgrelay - Telegram support-group relay
// License: MIT
//
// Copyright (c) 2026 tgrelay contributors

package channel

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"tgrelay/pkg/logger"
	"tgrelay/pkg/platform"
)

var (
	ErrNotConfigured = errors.New("telegram channel not configured")
	ErrNoWebhookURL  = errors.New("telegram.webhook_url not configured")
)

// Bot is the slice of the Bot API the lifecycle needs.
type Bot interface {
	GetMe(ctx context.Context) (platform.Identity, error)
	SetWebhook(ctx context.Context, url, secret string) error
	DeleteWebhook(ctx context.Context) error
	WebhookInfo(ctx context.Context) (platform.WebhookStatus, error)
}

// State is an immutable snapshot of the channel. It is replaced wholesale on
// every transition and never mutated in place.
type State struct {
	Ready       bool      `json:"ready"`
	BotID       int64     `json:"botId,omitempty"`
	BotUsername string    `json:"bot,omitempty"`
	WebhookURL  string    `json:"webhookUrl,omitempty"`
	ConnectedAt time.Time `json:"connectedAt,omitzero"`
	LastError   string    `json:"lastError,omitempty"`
}

// Manager owns the webhook registration and the readiness flag that gates
// outbound sends. Inbound routing never consults it.
type Manager struct {
	bot        Bot
	webhookURL string
	secret     string
	state      atomic.Pointer[State]
	connecting singleflight.Group
	now        func() time.Time
}

// NewManager accepts a nil bot; every transition then fails with
// ErrNotConfigured and the channel stays not ready.
func NewManager(bot Bot, webhookURL, secret string) *Manager {
	m := &Manager{
		bot:        bot,
		webhookURL: webhookURL,
		secret:     secret,
		now:        time.Now,
	}
	m.state.Store(&State{})
	return m
}

func (m *Manager) Current() State {
	return *m.state.Load()
}

func (m *Manager) Ready() bool {
	return m.state.Load().Ready
}

func (m *Manager) WebhookURL() string {
	return m.webhookURL
}

// Connect registers the webhook and marks the channel ready. Concurrent
// callers share one registration.
func (m *Manager) Connect(ctx context.Context) (State, error) {
	if m.bot == nil {
		return m.fail(ErrNotConfigured), ErrNotConfigured
	}
	if m.webhookURL == "" {
		return m.fail(ErrNoWebhookURL), ErrNoWebhookURL
	}

	ch := m.connecting.DoChan("connect", func() (interface{}, error) {
		return m.connect(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return m.Current(), res.Err
		}
		return res.Val.(State), nil
	case <-ctx.Done():
		return m.Current(), ctx.Err()
	}
}

func (m *Manager) connect(ctx context.Context) (State, error) {
	me, err := m.bot.GetMe(ctx)
	if err != nil {
		err = fmt.Errorf("verify bot token: %w", err)
		return m.fail(err), err
	}
	if err := m.bot.SetWebhook(ctx, m.webhookURL, m.secret); err != nil {
		err = fmt.Errorf("register webhook: %w", err)
		return m.fail(err), err
	}

	next := &State{
		Ready:       true,
		BotID:       me.ID,
		BotUsername: me.Username,
		WebhookURL:  m.webhookURL,
		ConnectedAt: m.now().UTC(),
	}
	m.state.Store(next)
	logger.InfoCF("channel", "Telegram channel connected", map[string]interface{}{
		"bot":         me.Username,
		"webhook_url": m.webhookURL,
	})
	return *next, nil
}

// Disconnect unregisters the webhook. The channel is marked not ready even
// when unregistering fails, so sends stop either way.
func (m *Manager) Disconnect(ctx context.Context) (State, error) {
	if m.bot == nil {
		return m.fail(ErrNotConfigured), ErrNotConfigured
	}

	prev := m.Current()
	next := &State{BotID: prev.BotID, BotUsername: prev.BotUsername}
	err := m.bot.DeleteWebhook(ctx)
	if err != nil {
		err = fmt.Errorf("unregister webhook: %w", err)
		next.LastError = err.Error()
	}
	m.state.Store(next)

	logger.InfoCF("channel", "Telegram channel disconnected", map[string]interface{}{
		"bot":             prev.BotUsername,
		logger.FieldError: next.LastError,
	})
	return *next, err
}

func (m *Manager) fail(err error) State {
	prev := m.Current()
	next := &State{
		BotID:       prev.BotID,
		BotUsername: prev.BotUsername,
		LastError:   err.Error(),
	}
	m.state.Store(next)
	logger.WarnCF("channel", "Telegram channel not ready", map[string]interface{}{
		logger.FieldError: err.Error(),
	})
	return *next
}
