// tgrelay - Telegram support-group relay
// License: MIT
//
// Copyright (c) 2026 tgrelay contributors

package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tgrelay/pkg/correlation"
	"tgrelay/pkg/logger"
	"tgrelay/pkg/relay"
)

var ErrNoCannedReplies = errors.New("no canned replies configured")

// Sender is the outbound half of the Bot API.
type Sender interface {
	SendText(ctx context.Context, chatID int64, text string, actions [][]relay.Action) (int, error)
	SendPhoto(ctx context.Context, chatID int64, photoURL, caption string, actions [][]relay.Action) (int, error)
	SendDocument(ctx context.Context, chatID int64, docURL, caption string, actions [][]relay.Action) (int, error)
}

// Readiness reports whether the channel may be used for sends right now.
type Readiness interface {
	Ready() bool
}

type Options struct {
	ControlChatID int64
	CannedReplies []string
	Location      *time.Location
	TimeFormat    string
	Capabilities  Capabilities
}

// Dispatcher renders main-server messages for the control group and sends
// them with the buttons operators act on.
type Dispatcher struct {
	sender    Sender
	readiness Readiness
	chatID    int64
	canned    []string
	loc       *time.Location
	layout    string
	caps      Capabilities
	now       func() time.Time
}

// New accepts a nil sender for a bot without a token; every send then
// reports not delivered.
func New(sender Sender, readiness Readiness, opts Options) *Dispatcher {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.TimeFormat == "" {
		opts.TimeFormat = "2006-01-02 15:04:05"
	}
	if opts.Capabilities == nil {
		opts.Capabilities = StateCapabilities{}
	}
	return &Dispatcher{
		sender:    sender,
		readiness: readiness,
		chatID:    opts.ControlChatID,
		canned:    append([]string(nil), opts.CannedReplies...),
		loc:       opts.Location,
		layout:    opts.TimeFormat,
		caps:      opts.Capabilities,
		now:       time.Now,
	}
}

func (d *Dispatcher) usable() bool {
	return d.sender != nil && d.chatID != 0 && d.readiness != nil && d.readiness.Ready()
}

// SendToConversationChannel relays one message into the control group and
// returns the Telegram message id. delivered is false with a nil error when
// the channel is not connected; that is an expected outcome, not a fault.
func (d *Dispatcher) SendToConversationChannel(ctx context.Context, chat relay.Chat, msg relay.Message) (messageID int, delivered bool, err error) {
	if !correlation.ValidRef(chat.ID) {
		return 0, false, fmt.Errorf("chat %q: %w", chat.ID, correlation.ErrInvalidRef)
	}
	if !d.usable() {
		logger.DebugCF("dispatcher", "Channel not ready, message not relayed", map[string]interface{}{
			logger.FieldChatRef: chat.ID,
		})
		return 0, false, nil
	}

	text, err := d.RenderText(chat, msg)
	if err != nil {
		return 0, false, err
	}
	actions := d.BuildActions(chat, msg)
	content := msg.Content()

	switch content.Type {
	case relay.ContentImage:
		messageID, err = d.sender.SendPhoto(ctx, d.chatID, content.FileURL, text, actions)
	case relay.ContentFile:
		messageID, err = d.sender.SendDocument(ctx, d.chatID, content.FileURL, text, actions)
	default:
		messageID, err = d.sender.SendText(ctx, d.chatID, text, actions)
	}
	if err != nil {
		logger.WarnCF("dispatcher", "Relay to control group failed", map[string]interface{}{
			logger.FieldChatRef: chat.ID,
			"kind":              string(content.Type),
			logger.FieldError:   err.Error(),
		})
		return 0, false, err
	}

	logger.InfoCF("dispatcher", "Message relayed to control group", map[string]interface{}{
		logger.FieldChatRef:   chat.ID,
		logger.FieldMessageID: messageID,
		"kind":                string(content.Type),
	})
	return messageID, true, nil
}

// PresentQuickReplies posts the canned list for ref into the control group,
// one button per entry. The post carries the ref line too, so a plain reply
// to it routes to the same conversation.
func (d *Dispatcher) PresentQuickReplies(ctx context.Context, ref string) (int, error) {
	if len(d.canned) == 0 {
		return 0, ErrNoCannedReplies
	}
	refLine, err := correlation.Embed(ref)
	if err != nil {
		return 0, err
	}
	if !d.usable() {
		return 0, fmt.Errorf("quick replies for %s: channel not ready", ref)
	}

	rows := make([][]relay.Action, 0, len(d.canned))
	for i, reply := range d.canned {
		data, err := correlation.NewQuickMessage(ref, i).Encode()
		if err != nil {
			return 0, err
		}
		rows = append(rows, []relay.Action{{Label: buttonLabel(i, reply), Data: data}})
	}

	text := "⚡ Quick replies\n" + refLine + "\n\nPick one to send it to the user, or reply to this message."
	return d.sender.SendText(ctx, d.chatID, text, rows)
}

func buttonLabel(i int, reply string) string {
	const maxLabel = 40
	label := strings.Join(strings.Fields(reply), " ")
	if r := []rune(label); len(r) > maxLabel {
		label = string(r[:maxLabel-1]) + "…"
	}
	return fmt.Sprintf("%d. %s", i+1, label)
}
