package platform

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/mymmrac/telego"
	"github.com/mymmrac/telego/telegoutil"
	"golang.org/x/time/rate"

	"tgrelay/pkg/logger"
	"tgrelay/pkg/relay"
)

// Telegram limits, in UTF-16 code units.
const (
	telegramMaxTextLen    = 4096
	telegramMaxCaptionLen = 1024
	defaultAPICallTimeout = 15 * time.Second
	defaultSetupTimeout   = 10 * time.Second
)

var ErrNotConfigured = errors.New("telegram bot token not configured")

// AllowedUpdates is what the relay subscribes to when registering its webhook.
var AllowedUpdates = []string{"message", "callback_query"}

type Options struct {
	Token          string
	APIServer      string
	APITimeout     time.Duration
	SetupTimeout   time.Duration
	SendsPerMinute int
	SendBurst      int
	HTTPClient     *http.Client
	// FileLinks, when set, replaces Bot API download URLs, which embed the
	// token, with links served by the gateway.
	FileLinks LinkSigner
}

type LinkSigner interface {
	URL(fileID string) string
}

// Identity is the bot account behind the token.
type Identity struct {
	ID       int64
	Username string
	Name     string
}

type WebhookStatus struct {
	URL              string
	PendingUpdates   int
	LastErrorDate    time.Time
	LastErrorMessage string
}

// Telegram wraps the Bot API calls the relay needs. Every call is bounded
// by a timeout and none is retried; callers decide what a failure means.
type Telegram struct {
	bot          *telego.Bot
	token        string
	apiServer    string
	apiTimeout   time.Duration
	setupTimeout time.Duration
	sendLimiter  *rate.Limiter
	httpClient   *http.Client
	links        LinkSigner
}

func NewTelegram(opts Options) (*Telegram, error) {
	if strings.TrimSpace(opts.Token) == "" {
		return nil, ErrNotConfigured
	}
	if opts.APIServer == "" {
		opts.APIServer = "https://api.telegram.org"
	}
	opts.APIServer = strings.TrimRight(opts.APIServer, "/")
	if opts.APITimeout <= 0 {
		opts.APITimeout = defaultAPICallTimeout
	}
	if opts.SetupTimeout <= 0 {
		opts.SetupTimeout = defaultSetupTimeout
	}
	if opts.SendsPerMinute <= 0 {
		opts.SendsPerMinute = 20
	}
	if opts.SendBurst <= 0 {
		opts.SendBurst = 1
	}

	botOpts := []telego.BotOption{
		telego.WithDiscardLogger(),
		telego.WithAPIServer(opts.APIServer),
	}
	httpClient := http.DefaultClient
	if opts.HTTPClient != nil {
		httpClient = opts.HTTPClient
		botOpts = append(botOpts, telego.WithHTTPClient(opts.HTTPClient))
	}
	bot, err := telego.NewBot(opts.Token, botOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	return &Telegram{
		bot:          bot,
		token:        opts.Token,
		apiServer:    opts.APIServer,
		apiTimeout:   opts.APITimeout,
		setupTimeout: opts.SetupTimeout,
		sendLimiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.SendsPerMinute)), opts.SendBurst),
		httpClient:   httpClient,
		links:        opts.FileLinks,
	}, nil
}

func (t *Telegram) SendText(ctx context.Context, chatID int64, text string, actions [][]relay.Action) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, t.apiTimeout)
	defer cancel()
	if err := t.sendLimiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("sendMessage: rate limit wait: %w", err)
	}

	params := telegoutil.Message(telegoutil.ID(chatID), truncateString(text, telegramMaxTextLen))
	if kb := keyboard(actions); kb != nil {
		params.ReplyMarkup = kb
	}
	msg, err := t.bot.SendMessage(ctx, params)
	if err != nil {
		return 0, t.fault("sendMessage", chatID, err)
	}
	return msg.MessageID, nil
}

func (t *Telegram) SendPhoto(ctx context.Context, chatID int64, photoURL, caption string, actions [][]relay.Action) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, t.apiTimeout)
	defer cancel()
	if err := t.sendLimiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("sendPhoto: rate limit wait: %w", err)
	}

	params := &telego.SendPhotoParams{
		ChatID:  telegoutil.ID(chatID),
		Photo:   telegoutil.FileFromURL(photoURL),
		Caption: truncateString(caption, telegramMaxCaptionLen),
	}
	if kb := keyboard(actions); kb != nil {
		params.ReplyMarkup = kb
	}
	msg, err := t.bot.SendPhoto(ctx, params)
	if err != nil {
		return 0, t.fault("sendPhoto", chatID, err)
	}
	return msg.MessageID, nil
}

func (t *Telegram) SendDocument(ctx context.Context, chatID int64, docURL, caption string, actions [][]relay.Action) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, t.apiTimeout)
	defer cancel()
	if err := t.sendLimiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("sendDocument: rate limit wait: %w", err)
	}

	params := &telego.SendDocumentParams{
		ChatID:   telegoutil.ID(chatID),
		Document: telegoutil.FileFromURL(docURL),
		Caption:  truncateString(caption, telegramMaxCaptionLen),
	}
	if kb := keyboard(actions); kb != nil {
		params.ReplyMarkup = kb
	}
	msg, err := t.bot.SendDocument(ctx, params)
	if err != nil {
		return 0, t.fault("sendDocument", chatID, err)
	}
	return msg.MessageID, nil
}

// AnswerCallback clears the loading state of a pressed button, optionally
// showing a short notice to the operator who pressed it.
func (t *Telegram) AnswerCallback(ctx context.Context, callbackID, text string) error {
	ctx, cancel := context.WithTimeout(ctx, t.apiTimeout)
	defer cancel()

	params := &telego.AnswerCallbackQueryParams{CallbackQueryID: callbackID, Text: text}
	if err := t.bot.AnswerCallbackQuery(ctx, params); err != nil {
		return t.fault("answerCallbackQuery", 0, err)
	}
	return nil
}

// FileURL resolves a file_id to a download URL. With FileLinks set the URL
// points at the gateway; otherwise it is the Bot API file URL.
func (t *Telegram) FileURL(ctx context.Context, fileID string) (string, error) {
	direct, err := t.directFileURL(ctx, fileID)
	if err != nil {
		return "", err
	}
	if t.links != nil {
		return t.links.URL(fileID), nil
	}
	return direct, nil
}

// OpenFile streams a file from the Bot API. The caller closes the body.
func (t *Telegram) OpenFile(ctx context.Context, fileID string) (body io.ReadCloser, contentType string, err error) {
	direct, err := t.directFileURL(ctx, fileID)
	if err != nil {
		return nil, "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, direct, nil)
	if err != nil {
		return nil, "", fmt.Errorf("download %s: %w", fileID, err)
	}
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, "", t.fault("downloadFile", 0, errors.New(strings.ReplaceAll(err.Error(), t.token, "<token>")))
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, "", t.fault("downloadFile", 0, fmt.Errorf("status %d", resp.StatusCode))
	}
	return resp.Body, resp.Header.Get("Content-Type"), nil
}

func (t *Telegram) directFileURL(ctx context.Context, fileID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.apiTimeout)
	defer cancel()

	file, err := t.bot.GetFile(ctx, &telego.GetFileParams{FileID: fileID})
	if err != nil {
		return "", t.fault("getFile", 0, err)
	}
	if file.FilePath == "" {
		return "", fmt.Errorf("getFile: empty file path for %s", fileID)
	}
	return fmt.Sprintf("%s/file/bot%s/%s", t.apiServer, t.token, file.FilePath), nil
}

func (t *Telegram) GetMe(ctx context.Context) (Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, t.setupTimeout)
	defer cancel()

	me, err := t.bot.GetMe(ctx)
	if err != nil {
		return Identity{}, t.fault("getMe", 0, err)
	}
	return Identity{
		ID:       me.ID,
		Username: me.Username,
		Name:     strings.TrimSpace(me.FirstName + " " + me.LastName),
	}, nil
}

func (t *Telegram) SetWebhook(ctx context.Context, url, secret string) error {
	ctx, cancel := context.WithTimeout(ctx, t.setupTimeout)
	defer cancel()

	params := &telego.SetWebhookParams{
		URL:            url,
		SecretToken:    secret,
		AllowedUpdates: AllowedUpdates,
	}
	if err := t.bot.SetWebhook(ctx, params); err != nil {
		return t.fault("setWebhook", 0, err)
	}
	return nil
}

func (t *Telegram) DeleteWebhook(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, t.setupTimeout)
	defer cancel()

	if err := t.bot.DeleteWebhook(ctx, &telego.DeleteWebhookParams{}); err != nil {
		return t.fault("deleteWebhook", 0, err)
	}
	return nil
}

func (t *Telegram) WebhookInfo(ctx context.Context) (WebhookStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, t.setupTimeout)
	defer cancel()

	info, err := t.bot.GetWebhookInfo(ctx)
	if err != nil {
		return WebhookStatus{}, t.fault("getWebhookInfo", 0, err)
	}
	status := WebhookStatus{
		URL:              info.URL,
		PendingUpdates:   info.PendingUpdateCount,
		LastErrorMessage: info.LastErrorMessage,
	}
	if info.LastErrorDate > 0 {
		status.LastErrorDate = time.Unix(info.LastErrorDate, 0)
	}
	return status, nil
}

func (t *Telegram) fault(op string, chatID int64, err error) error {
	fields := map[string]interface{}{
		logger.FieldOperation: op,
		logger.FieldError:     err.Error(),
	}
	if chatID != 0 {
		fields[logger.FieldChatID] = chatID
	}
	logger.WarnCF("telegram", "Telegram API call failed", fields)
	return fmt.Errorf("%s: %w", op, err)
}

func keyboard(actions [][]relay.Action) *telego.InlineKeyboardMarkup {
	if len(actions) == 0 {
		return nil
	}
	rows := make([][]telego.InlineKeyboardButton, 0, len(actions))
	for _, row := range actions {
		if len(row) == 0 {
			continue
		}
		buttons := make([]telego.InlineKeyboardButton, 0, len(row))
		for _, a := range row {
			buttons = append(buttons, telego.InlineKeyboardButton{Text: a.Label, CallbackData: a.Data})
		}
		rows = append(rows, buttons)
	}
	if len(rows) == 0 {
		return nil
	}
	return &telego.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// truncateString keeps at most maxUnits UTF-16 code units, which is how
// Telegram measures text and caption length. Cuts fall on rune boundaries.
func truncateString(s string, maxUnits int) string {
	if maxUnits <= 0 {
		return ""
	}
	units := 0
	for i, r := range s {
		n := utf16.RuneLen(r)
		if n < 0 {
			n = 1
		}
		if units+n > maxUnits {
			return s[:i]
		}
		units += n
	}
	return s
}
