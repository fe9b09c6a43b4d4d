package router

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mymmrac/telego"

	"tgrelay/pkg/channel"
	"tgrelay/pkg/correlation"
	"tgrelay/pkg/logger"
	"tgrelay/pkg/relay"
)

// Platform is the part of the Bot API the router calls back into.
type Platform interface {
	AnswerCallback(ctx context.Context, callbackID, text string) error
	FileURL(ctx context.Context, fileID string) (string, error)
	SendText(ctx context.Context, chatID int64, text string, actions [][]relay.Action) (int, error)
}

type Forwarder interface {
	Forward(ctx context.Context, event string, data relay.EventData) (string, error)
}

type QuickReplies interface {
	PresentQuickReplies(ctx context.Context, ref string) (int, error)
}

type Health interface {
	Current() channel.State
}

// Outcome names what Route did with an update.
type Outcome string

const (
	OutcomeIgnored      Outcome = "ignored"
	OutcomeAcknowledged Outcome = "acknowledged"
	OutcomeForwarded    Outcome = "forwarded"
	OutcomePresented    Outcome = "presented"
	OutcomeReplied      Outcome = "replied"
	OutcomeFailed       Outcome = "failed"
)

// Callback notices shown to the operator who pressed a button.
const (
	NoticeClosed        = "✅ Chat closed"
	NoticeClaimed       = "✋ Chat claimed"
	NoticeReplying      = "✍️ User sees you are replying"
	NoticeSent          = "✅ Sent"
	NoticeNotFound      = "⚠️ Quick reply not found"
	NoticeForwardFailed = "⚠️ Main server unavailable, try again"
	NoticePresentFailed = "⚠️ Could not post quick replies"
)

type Options struct {
	ControlChatID int64
	CannedReplies []string
}

// Router turns Telegram updates from the control group into main-server
// events. It never consults connection state.
type Router struct {
	platform  Platform
	forwarder Forwarder
	presenter QuickReplies
	health    Health
	chatID    int64
	canned    []string
	now       func() time.Time
}

func New(platform Platform, forwarder Forwarder, presenter QuickReplies, health Health, opts Options) *Router {
	return &Router{
		platform:  platform,
		forwarder: forwarder,
		presenter: presenter,
		health:    health,
		chatID:    opts.ControlChatID,
		canned:    append([]string(nil), opts.CannedReplies...),
		now:       time.Now,
	}
}

// Route handles one update. Faults, panics included, are logged and turned
// into OutcomeFailed; nothing escapes to the webhook acknowledgment.
func (r *Router) Route(ctx context.Context, update telego.Update) (out Outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.ErrorCF("router", "Update handling panicked", map[string]interface{}{
				logger.FieldUpdateID: update.UpdateID,
				"panic":              fmt.Sprint(rec),
			})
			out = OutcomeFailed
		}
	}()

	switch {
	case update.CallbackQuery != nil:
		return r.routeCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		return r.routeMessage(ctx, update.Message)
	}
	return OutcomeIgnored
}

func (r *Router) fromControlChat(chatID int64) bool {
	return r.chatID != 0 && chatID == r.chatID
}

func (r *Router) routeMessage(ctx context.Context, msg *telego.Message) Outcome {
	if !r.fromControlChat(msg.Chat.ID) {
		return OutcomeIgnored
	}
	if msg.From != nil && msg.From.IsBot {
		return OutcomeIgnored
	}

	if msg.ReplyToMessage != nil {
		return r.routeReply(ctx, msg)
	}
	if strings.HasPrefix(msg.Text, "/") {
		return r.routeCommand(ctx, msg)
	}
	return OutcomeIgnored
}

func (r *Router) routeReply(ctx context.Context, msg *telego.Message) Outcome {
	ref, ok := quotedRef(msg.ReplyToMessage)
	if !ok {
		logger.DebugCF("router", "Reply without conversation ref dropped", map[string]interface{}{
			logger.FieldMessageID: msg.MessageID,
		})
		return OutcomeIgnored
	}

	content, ok, err := r.replyContent(ctx, msg)
	if err != nil {
		logger.WarnCF("router", "Could not resolve reply attachment", map[string]interface{}{
			logger.FieldChatRef: ref,
			logger.FieldError:   err.Error(),
		})
		return OutcomeFailed
	}
	if !ok {
		return OutcomeIgnored
	}

	data := relay.EventData{
		ChatID:    ref,
		Admin:     adminIdentity(msg.From),
		Content:   &content,
		Timestamp: messageTime(msg.Date, r.now),
	}
	if _, err := r.forwarder.Forward(ctx, relay.EventAdminMessage, data); err != nil {
		logger.ErrorCF("router", "Operator reply not forwarded", map[string]interface{}{
			logger.FieldChatRef: ref,
			logger.FieldError:   err.Error(),
		})
		return OutcomeFailed
	}

	logger.InfoCF("router", "Operator reply forwarded", map[string]interface{}{
		logger.FieldChatRef:  ref,
		logger.FieldSenderID: data.Admin.TelegramID,
		"kind":               string(content.Type),
		logger.FieldPreview:  preview(content.Text),
	})
	return OutcomeForwarded
}

// replyContent reports ok=false for content the main server cannot take,
// such as stickers or voice notes.
func (r *Router) replyContent(ctx context.Context, msg *telego.Message) (relay.Content, bool, error) {
	switch {
	case len(msg.Photo) > 0:
		largest := msg.Photo[len(msg.Photo)-1]
		url, err := r.platform.FileURL(ctx, largest.FileID)
		if err != nil {
			return relay.Content{}, false, err
		}
		return relay.Content{Type: relay.ContentImage, Text: msg.Caption, FileURL: url}, true, nil
	case msg.Document != nil:
		url, err := r.platform.FileURL(ctx, msg.Document.FileID)
		if err != nil {
			return relay.Content{}, false, err
		}
		return relay.Content{Type: relay.ContentFile, Text: msg.Caption, FileURL: url, FileName: msg.Document.FileName}, true, nil
	case strings.TrimSpace(msg.Text) != "":
		return relay.Content{Type: relay.ContentText, Text: msg.Text}, true, nil
	}
	return relay.Content{}, false, nil
}

func (r *Router) routeCommand(ctx context.Context, msg *telego.Message) Outcome {
	verb := commandVerb(msg.Text)
	switch verb {
	case "start", "status":
		if _, err := r.platform.SendText(ctx, r.chatID, r.statusText(), nil); err != nil {
			logger.WarnCF("router", "Status reply failed", map[string]interface{}{
				"command":         verb,
				logger.FieldError: err.Error(),
			})
			return OutcomeFailed
		}
		return OutcomeReplied
	}
	return OutcomeIgnored
}

func (r *Router) statusText() string {
	if r.health == nil {
		return "🟢 Relay is running"
	}
	state := r.health.Current()
	var b strings.Builder
	if state.Ready {
		b.WriteString("🟢 Relay connected")
	} else {
		b.WriteString("🔴 Relay not connected")
	}
	if state.BotUsername != "" {
		b.WriteString("\nBot: @" + state.BotUsername)
	}
	if !state.ConnectedAt.IsZero() {
		b.WriteString("\nConnected since: " + state.ConnectedAt.UTC().Format(time.RFC3339))
	}
	if state.LastError != "" {
		b.WriteString("\nLast error: " + state.LastError)
	}
	fmt.Fprintf(&b, "\nQuick replies: %d", len(r.canned))
	return b.String()
}

// commandVerb turns "/status@relay_bot now" into "status".
func commandVerb(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	verb := strings.TrimPrefix(fields[0], "/")
	if i := strings.IndexByte(verb, '@'); i >= 0 {
		verb = verb[:i]
	}
	return strings.ToLower(verb)
}

func quotedRef(quoted *telego.Message) (string, bool) {
	if ref, ok := correlation.Extract(quoted.Text); ok {
		return ref, true
	}
	return correlation.Extract(quoted.Caption)
}

func adminIdentity(u *telego.User) relay.AdminIdentity {
	if u == nil {
		return relay.AdminIdentity{Name: "Agent"}
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.Username
	}
	if name == "" {
		name = "Agent"
	}
	return relay.AdminIdentity{TelegramID: u.ID, Name: name, Username: u.Username}
}

func messageTime(unix int64, now func() time.Time) time.Time {
	if unix > 0 {
		return time.Unix(unix, 0).UTC()
	}
	return now().UTC()
}

func preview(s string) string {
	const max = 60
	if r := []rune(s); len(r) > max {
		return string(r[:max]) + "…"
	}
	return s
}
