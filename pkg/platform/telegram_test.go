package platform

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"tgrelay/pkg/relay"
)

var testToken = "123456:" + strings.Repeat("A", 35)

type botAPICall struct {
	Method string
	Params map[string]interface{}
}

type fakeBotAPI struct {
	mu      sync.Mutex
	calls   []botAPICall
	results map[string]string
}

func newFakeBotAPI(t *testing.T) (*fakeBotAPI, *httptest.Server) {
	t.Helper()
	f := &fakeBotAPI{results: map[string]string{
		"sendMessage":         `{"message_id":101,"date":1,"chat":{"id":-100,"type":"supergroup"}}`,
		"sendPhoto":           `{"message_id":102,"date":1,"chat":{"id":-100,"type":"supergroup"}}`,
		"sendDocument":        `{"message_id":103,"date":1,"chat":{"id":-100,"type":"supergroup"}}`,
		"answerCallbackQuery": `true`,
		"getFile":             `{"file_id":"F1","file_unique_id":"U1","file_path":"photos/file_1.jpg"}`,
		"getMe":               `{"id":42,"is_bot":true,"first_name":"Relay","username":"relay_bot"}`,
		"setWebhook":          `true`,
		"deleteWebhook":       `true`,
		"getWebhookInfo":      `{"url":"https://relay.example.com/webhook/telegram","has_custom_certificate":false,"pending_update_count":3,"last_error_date":1700000000,"last_error_message":"Connection refused"}`,
	}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/file/bot"+testToken+"/photos/file_1.jpg" {
			w.Header().Set("Content-Type", "image/jpeg")
			_, _ = io.WriteString(w, "jpeg-bytes")
			return
		}
		prefix := "/bot" + testToken + "/"
		if !strings.HasPrefix(r.URL.Path, prefix) {
			http.NotFound(w, r)
			return
		}
		method := strings.TrimPrefix(r.URL.Path, prefix)
		body, _ := io.ReadAll(r.Body)
		params := map[string]interface{}{}
		if len(body) > 0 {
			_ = json.Unmarshal(body, &params)
		}
		f.mu.Lock()
		f.calls = append(f.calls, botAPICall{Method: method, Params: params})
		result, ok := f.results[method]
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if !ok {
			_, _ = io.WriteString(w, `{"ok":false,"error_code":400,"description":"Bad Request: unknown method"}`)
			return
		}
		_, _ = io.WriteString(w, `{"ok":true,"result":`+result+`}`)
	}))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeBotAPI) fail(method string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.results, method)
}

func (f *fakeBotAPI) last(t *testing.T) botAPICall {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		t.Fatalf("expected at least one Bot API call")
	}
	return f.calls[len(f.calls)-1]
}

func newTestTelegram(t *testing.T, srv *httptest.Server) *Telegram {
	t.Helper()
	tg, err := NewTelegram(Options{
		Token:          testToken,
		APIServer:      srv.URL,
		SendsPerMinute: 600,
		SendBurst:      10,
		HTTPClient:     srv.Client(),
	})
	if err != nil {
		t.Fatalf("new telegram: %v", err)
	}
	return tg
}

func TestNewTelegramRequiresToken(t *testing.T) {
	if _, err := NewTelegram(Options{Token: "  "}); err != ErrNotConfigured {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestSendTextCarriesKeyboard(t *testing.T) {
	api, srv := newFakeBotAPI(t)
	tg := newTestTelegram(t, srv)

	actions := [][]relay.Action{
		{{Label: "Claim", Data: "assign_abc-123"}, {Label: "Close", Data: "close_abc-123"}},
		{},
	}
	id, err := tg.SendText(context.Background(), -100, "hello", actions)
	if err != nil {
		t.Fatalf("send text: %v", err)
	}
	if id != 101 {
		t.Fatalf("message id = %d, want 101", id)
	}

	call := api.last(t)
	if call.Method != "sendMessage" {
		t.Fatalf("method = %q", call.Method)
	}
	if call.Params["text"] != "hello" {
		t.Fatalf("text = %#v", call.Params["text"])
	}
	if _, ok := call.Params["parse_mode"]; ok {
		t.Fatalf("expected plain text send, got parse_mode %v", call.Params["parse_mode"])
	}
	markup, ok := call.Params["reply_markup"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected reply_markup, got %#v", call.Params["reply_markup"])
	}
	rows, _ := markup["inline_keyboard"].([]interface{})
	if len(rows) != 1 {
		t.Fatalf("expected empty rows dropped, got %d rows", len(rows))
	}
	buttons, _ := rows[0].([]interface{})
	if len(buttons) != 2 {
		t.Fatalf("expected 2 buttons, got %d", len(buttons))
	}
	first, _ := buttons[0].(map[string]interface{})
	if first["callback_data"] != "assign_abc-123" {
		t.Fatalf("callback_data = %#v", first["callback_data"])
	}
}

func TestSendPhotoAndDocumentUseCaption(t *testing.T) {
	api, srv := newFakeBotAPI(t)
	tg := newTestTelegram(t, srv)

	id, err := tg.SendPhoto(context.Background(), -100, "https://cdn.example.com/a.jpg", "caption", nil)
	if err != nil || id != 102 {
		t.Fatalf("send photo: id=%d err=%v", id, err)
	}
	call := api.last(t)
	if call.Params["photo"] != "https://cdn.example.com/a.jpg" || call.Params["caption"] != "caption" {
		t.Fatalf("unexpected photo params %#v", call.Params)
	}
	if _, ok := call.Params["reply_markup"]; ok {
		t.Fatalf("expected no keyboard without actions")
	}

	id, err = tg.SendDocument(context.Background(), -100, "https://cdn.example.com/a.pdf", "doc", nil)
	if err != nil || id != 103 {
		t.Fatalf("send document: id=%d err=%v", id, err)
	}
	if call := api.last(t); call.Params["document"] != "https://cdn.example.com/a.pdf" {
		t.Fatalf("unexpected document params %#v", call.Params)
	}
}

func TestSendTextSurfacesAPIError(t *testing.T) {
	api, srv := newFakeBotAPI(t)
	api.fail("sendMessage")
	tg := newTestTelegram(t, srv)

	if _, err := tg.SendText(context.Background(), -100, "hello", nil); err == nil {
		t.Fatalf("expected error from failed sendMessage")
	} else if !strings.Contains(err.Error(), "sendMessage") {
		t.Fatalf("expected operation name in error, got %v", err)
	}
}

func TestAnswerCallback(t *testing.T) {
	api, srv := newFakeBotAPI(t)
	tg := newTestTelegram(t, srv)

	if err := tg.AnswerCallback(context.Background(), "cb-1", "Closed"); err != nil {
		t.Fatalf("answer callback: %v", err)
	}
	call := api.last(t)
	if call.Method != "answerCallbackQuery" || call.Params["callback_query_id"] != "cb-1" || call.Params["text"] != "Closed" {
		t.Fatalf("unexpected call %#v", call)
	}
}

func TestFileURL(t *testing.T) {
	_, srv := newFakeBotAPI(t)
	tg := newTestTelegram(t, srv)

	got, err := tg.FileURL(context.Background(), "F1")
	if err != nil {
		t.Fatalf("file url: %v", err)
	}
	want := srv.URL + "/file/bot" + testToken + "/photos/file_1.jpg"
	if got != want {
		t.Fatalf("file url = %q, want %q", got, want)
	}
}

type fakeLinks struct{}

func (fakeLinks) URL(fileID string) string { return "https://relay.example.com/files/" + fileID }

func TestFileURLUsesGatewayLinks(t *testing.T) {
	_, srv := newFakeBotAPI(t)
	tg, err := NewTelegram(Options{
		Token:      testToken,
		APIServer:  srv.URL,
		HTTPClient: srv.Client(),
		FileLinks:  fakeLinks{},
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := tg.FileURL(context.Background(), "F1")
	if err != nil {
		t.Fatalf("file url: %v", err)
	}
	if got != "https://relay.example.com/files/F1" || strings.Contains(got, testToken) {
		t.Fatalf("file url = %q", got)
	}
}

func TestFileURLFailsForUnknownFile(t *testing.T) {
	api, srv := newFakeBotAPI(t)
	api.fail("getFile")
	tg := newTestTelegram(t, srv)
	if _, err := tg.FileURL(context.Background(), "F1"); err == nil {
		t.Fatalf("expected getFile failure")
	}
}

func TestOpenFileStreamsContent(t *testing.T) {
	_, srv := newFakeBotAPI(t)
	tg := newTestTelegram(t, srv)

	body, contentType, err := tg.OpenFile(context.Background(), "F1")
	if err != nil {
		t.Fatalf("open file: %v", err)
	}
	defer body.Close()
	data, _ := io.ReadAll(body)
	if string(data) != "jpeg-bytes" || contentType != "image/jpeg" {
		t.Fatalf("got %q (%s)", data, contentType)
	}
}

func TestGetMeAndWebhookCalls(t *testing.T) {
	api, srv := newFakeBotAPI(t)
	tg := newTestTelegram(t, srv)
	ctx := context.Background()

	me, err := tg.GetMe(ctx)
	if err != nil {
		t.Fatalf("getMe: %v", err)
	}
	if me.ID != 42 || me.Username != "relay_bot" || me.Name != "Relay" {
		t.Fatalf("unexpected identity %#v", me)
	}

	if err := tg.SetWebhook(ctx, "https://relay.example.com/webhook/telegram", "s3cret"); err != nil {
		t.Fatalf("setWebhook: %v", err)
	}
	call := api.last(t)
	if call.Params["url"] != "https://relay.example.com/webhook/telegram" || call.Params["secret_token"] != "s3cret" {
		t.Fatalf("unexpected setWebhook params %#v", call.Params)
	}
	allowed, _ := call.Params["allowed_updates"].([]interface{})
	if len(allowed) != 2 {
		t.Fatalf("allowed_updates = %#v", call.Params["allowed_updates"])
	}

	info, err := tg.WebhookInfo(ctx)
	if err != nil {
		t.Fatalf("getWebhookInfo: %v", err)
	}
	if info.PendingUpdates != 3 || info.LastErrorMessage != "Connection refused" || info.LastErrorDate.IsZero() {
		t.Fatalf("unexpected webhook status %#v", info)
	}

	if err := tg.DeleteWebhook(ctx); err != nil {
		t.Fatalf("deleteWebhook: %v", err)
	}
	if call := api.last(t); call.Method != "deleteWebhook" {
		t.Fatalf("method = %q", call.Method)
	}
}

func TestTruncateStringCountsUTF16Units(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"short unchanged", "short", 10, "short"},
		{"ascii", "abcdef", 4, "abcd"},
		{"two-byte runes count once", strings.Repeat("é", 10), 5, strings.Repeat("é", 5)},
		{"cyrillic keeps full budget", strings.Repeat("ж", 1024), 1024, strings.Repeat("ж", 1024)},
		{"emoji is two units", "ab😀c", 3, "ab"},
		{"emoji fits exactly", "ab😀c", 4, "ab😀"},
		{"zero budget", "abc", 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncateString(tt.in, tt.max)
			if got != tt.want {
				t.Fatalf("truncateString(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Fatalf("result is not valid UTF-8: %q", got)
			}
		})
	}
}
