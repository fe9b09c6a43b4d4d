package relay

import (
	"strings"
	"time"
)

type SenderKind string

const (
	SenderUser   SenderKind = "user"
	SenderAdmin  SenderKind = "admin"
	SenderSystem SenderKind = "system"
)

type ContentKind string

const (
	ContentText  ContentKind = "text"
	ContentImage ContentKind = "image"
	ContentFile  ContentKind = "file"
)

type ChatStatus string

const (
	ChatOpen   ChatStatus = "open"
	ChatClosed ChatStatus = "closed"
)

// Event names understood by the main server.
const (
	EventAdminMessage = "admin_message"
	EventChatClose    = "chat_close"
	EventChatAssign   = "chat_assign"
	EventAdminTyping  = "admin_typing"
)

// Chat is the main server's view of a conversation, as posted to /api/telegram/send.
type Chat struct {
	ID            string     `json:"id"`
	UserName      string     `json:"userName,omitempty"`
	UserEmail     string     `json:"userEmail,omitempty"`
	Status        ChatStatus `json:"status,omitempty"`
	AssignedAdmin string     `json:"assignedAdmin,omitempty"`
	CurrentPage   string     `json:"currentPage,omitempty"`
	Tags          []string   `json:"tags,omitempty"`
}

func (c Chat) Claimed() bool { return strings.TrimSpace(c.AssignedAdmin) != "" }

func (c Chat) Closed() bool { return c.Status == ChatClosed }

type Message struct {
	ID         string      `json:"id,omitempty"`
	Sender     SenderKind  `json:"sender"`
	SenderName string      `json:"senderName,omitempty"`
	Type       ContentKind `json:"type,omitempty"`
	Text       string      `json:"text,omitempty"`
	FileURL    string      `json:"fileUrl,omitempty"`
	FileName   string      `json:"fileName,omitempty"`
	CreatedAt  time.Time   `json:"createdAt,omitempty"`
}

// Content normalizes the message body. A message with a file URL but no
// declared type is treated as a file.
func (m Message) Content() Content {
	kind := m.Type
	if kind == "" {
		kind = ContentText
		if m.FileURL != "" {
			kind = ContentFile
		}
	}
	if kind != ContentText && m.FileURL == "" {
		kind = ContentText
	}
	return Content{Type: kind, Text: m.Text, FileURL: m.FileURL, FileName: m.FileName}
}

// Content is one of text, image(url) or file(url, name); Text doubles as caption.
type Content struct {
	Type     ContentKind `json:"type"`
	Text     string      `json:"text,omitempty"`
	FileURL  string      `json:"fileUrl,omitempty"`
	FileName string      `json:"fileName,omitempty"`
}

// Action is one inline button: a label plus an encoded action token.
type Action struct {
	Label string `json:"label"`
	Data  string `json:"data"`
}

// AdminIdentity is derived from the Telegram sender of a reply or button press.
type AdminIdentity struct {
	TelegramID int64  `json:"telegramId"`
	Name       string `json:"name"`
	Username   string `json:"username,omitempty"`
}

type EventData struct {
	ChatID    string        `json:"chatId"`
	Admin     AdminIdentity `json:"admin"`
	Content   *Content      `json:"content,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// Event is the envelope forwarded to the main server.
type Event struct {
	ID    string    `json:"id"`
	Event string    `json:"event"`
	Data  EventData `json:"data"`
}
