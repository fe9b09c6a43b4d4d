package dispatcher

import (
	"strings"

	"tgrelay/pkg/correlation"
	"tgrelay/pkg/logger"
	"tgrelay/pkg/relay"
)

// Capabilities decides which buttons a relayed message offers. The
// dispatcher itself holds no opinion about conversation state.
type Capabilities interface {
	CanClaim(chat relay.Chat) bool
	CanMarkReplying(chat relay.Chat) bool
	CanClose(chat relay.Chat) bool
	OffersQuickReplies(chat relay.Chat, msg relay.Message) bool
}

// StateCapabilities derives buttons from the chat as the main server sent it:
// no claim once someone owns the chat, nothing but claim on a closed chat,
// and quick replies only for messages written by the end-user.
type StateCapabilities struct{}

func (StateCapabilities) CanClaim(chat relay.Chat) bool { return !chat.Claimed() }

func (StateCapabilities) CanMarkReplying(chat relay.Chat) bool { return !chat.Closed() }

func (StateCapabilities) CanClose(chat relay.Chat) bool { return !chat.Closed() }

func (StateCapabilities) OffersQuickReplies(chat relay.Chat, msg relay.Message) bool {
	return !chat.Closed() && msg.Sender == relay.SenderUser
}

// RenderText builds the control-group text for msg. The ref line comes right
// after the sender so it survives caption truncation.
func (d *Dispatcher) RenderText(chat relay.Chat, msg relay.Message) (string, error) {
	refLine, err := correlation.Embed(chat.ID)
	if err != nil {
		return "", err
	}

	at := msg.CreatedAt
	if at.IsZero() {
		at = d.now()
	}

	var b strings.Builder
	b.WriteString(senderLabel(chat, msg))
	b.WriteString("\n")
	b.WriteString(refLine)
	b.WriteString("\n🕒 ")
	b.WriteString(at.In(d.loc).Format(d.layout))
	if page := oneLine(chat.CurrentPage); page != "" {
		b.WriteString("\n📄 Page: ")
		b.WriteString(page)
	}
	if tags := cleanTags(chat.Tags); len(tags) > 0 {
		b.WriteString("\n🏷 Tags: ")
		b.WriteString(strings.Join(tags, ", "))
	}
	b.WriteString("\n\n")
	b.WriteString(body(msg.Content()))
	return b.String(), nil
}

// BuildActions returns the keyboard rows for a relayed message.
func (d *Dispatcher) BuildActions(chat relay.Chat, msg relay.Message) [][]relay.Action {
	var first, second []relay.Action
	if d.caps.CanClaim(chat) {
		first = appendAction(first, "✋ Claim", correlation.NewAction(correlation.ActionAssign, chat.ID))
	}
	if d.caps.CanMarkReplying(chat) {
		first = appendAction(first, "✍️ Replying", correlation.NewAction(correlation.ActionReplying, chat.ID))
	}
	if d.caps.CanClose(chat) {
		second = appendAction(second, "✅ Close", correlation.NewAction(correlation.ActionClose, chat.ID))
	}
	if d.caps.OffersQuickReplies(chat, msg) && len(d.canned) > 0 {
		second = appendAction(second, "⚡ Quick replies", correlation.NewAction(correlation.ActionQuickReplies, chat.ID))
	}

	var rows [][]relay.Action
	for _, row := range [][]relay.Action{first, second} {
		if len(row) > 0 {
			rows = append(rows, row)
		}
	}
	return rows
}

func appendAction(row []relay.Action, label string, tok correlation.ActionToken) []relay.Action {
	data, err := tok.Encode()
	if err != nil {
		logger.WarnCF("dispatcher", "Dropping button with unencodable action", map[string]interface{}{
			logger.FieldAction:  string(tok.Type),
			logger.FieldChatRef: tok.Ref,
			logger.FieldError:   err.Error(),
		})
		return row
	}
	return append(row, relay.Action{Label: label, Data: data})
}

// Header fields come from end-users, so they are flattened to one line; a
// forged ref line above the real one would hijack replies.
func senderLabel(chat relay.Chat, msg relay.Message) string {
	switch msg.Sender {
	case relay.SenderAdmin:
		name := firstNonEmpty(oneLine(msg.SenderName), oneLine(chat.AssignedAdmin), "Agent")
		return "🧑‍💼 " + name + " (agent)"
	case relay.SenderSystem:
		return "⚙️ System"
	default:
		label := "👤 " + firstNonEmpty(oneLine(msg.SenderName), oneLine(chat.UserName), "Visitor")
		if email := oneLine(chat.UserEmail); email != "" {
			label += " <" + email + ">"
		}
		return label
	}
}

func body(c relay.Content) string {
	text := strings.TrimSpace(c.Text)
	switch c.Type {
	case relay.ContentImage:
		if text == "" {
			return "🖼 Image"
		}
	case relay.ContentFile:
		if text == "" {
			return "📎 " + firstNonEmpty(c.FileName, "File")
		}
	default:
		if text == "" {
			return "(empty message)"
		}
	}
	return text
}

func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = oneLine(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
