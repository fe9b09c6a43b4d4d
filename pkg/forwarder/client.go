// tgrelay - Telegram support-group relay
// License: MIT
//
// Copyright (c) 2026 tgrelay contributors

package forwarder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"tgrelay/pkg/config"
	"tgrelay/pkg/logger"
	"tgrelay/pkg/relay"
)

const (
	SecretHeader    = "X-Integration-Secret"
	RequestIDHeader = "X-Request-ID"

	maxErrorBody = 512
)

var ErrNotConfigured = errors.New("main server forwarding not configured")

// Client posts operator events to the main server. It never retries; the
// main server is expected to accept events idempotently by id.
type Client struct {
	endpoint   string
	secret     string
	timeout    time.Duration
	httpClient *http.Client
	now        func() time.Time
}

func NewClient(baseURL, eventsPath, secret string, timeout time.Duration) *Client {
	return &Client{
		endpoint: strings.TrimRight(baseURL, "/") + eventsPath,
		secret:   secret,
		timeout:  timeout,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		now: time.Now,
	}
}

func NewFromConfig(cfg *config.Config) *Client {
	ms := cfg.MainServer
	return NewClient(ms.BaseURL, ms.EventsPath, ms.Secret, cfg.ForwardTimeout())
}

func (c *Client) Endpoint() string {
	return c.endpoint
}

// Forward sends one event and returns the id it was sent under. A zero
// timestamp in data is stamped with the current time.
func (c *Client) Forward(ctx context.Context, event string, data relay.EventData) (string, error) {
	if c.secret == "" || c.endpoint == "" {
		return "", ErrNotConfigured
	}
	if data.Timestamp.IsZero() {
		data.Timestamp = c.now().UTC()
	}

	envelope := relay.Event{
		ID:    uuid.NewString(),
		Event: event,
		Data:  data,
	}
	jsonData, err := json.Marshal(envelope)
	if err != nil {
		return "", fmt.Errorf("failed to marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SecretHeader, c.secret)
	req.Header.Set(RequestIDHeader, envelope.ID)

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logFailure(envelope, 0, err)
		return "", fmt.Errorf("forward %s: %w", event, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		err := fmt.Errorf("main server error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
		c.logFailure(envelope, resp.StatusCode, err)
		return "", fmt.Errorf("forward %s: %w", event, err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	logger.DebugCF("forwarder", "Event forwarded", map[string]interface{}{
		"id":                envelope.ID,
		logger.FieldEvent:   event,
		logger.FieldChatRef: data.ChatID,
		"elapsed":           time.Since(started).String(),
	})
	return envelope.ID, nil
}

func (c *Client) logFailure(ev relay.Event, status int, err error) {
	fields := map[string]interface{}{
		"id":                ev.ID,
		logger.FieldEvent:   ev.Event,
		logger.FieldChatRef: ev.Data.ChatID,
		logger.FieldError:   err.Error(),
	}
	if status != 0 {
		fields[logger.FieldStatusCode] = status
	}
	logger.WarnCF("forwarder", "Event forward failed", fields)
}
