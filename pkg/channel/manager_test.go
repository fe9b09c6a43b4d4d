package channel

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"tgrelay/pkg/platform"
)

type fakeBot struct {
	mu          sync.Mutex
	getMeCalls  int32
	setCalls    int32
	deleteCalls int32
	setErr      error
	deleteErr   error
	registered  string
	release     chan struct{}
}

func (f *fakeBot) GetMe(ctx context.Context) (platform.Identity, error) {
	atomic.AddInt32(&f.getMeCalls, 1)
	if f.release != nil {
		<-f.release
	}
	return platform.Identity{ID: 42, Username: "relay_bot"}, nil
}

func (f *fakeBot) SetWebhook(ctx context.Context, url, secret string) error {
	atomic.AddInt32(&f.setCalls, 1)
	if f.setErr != nil {
		return f.setErr
	}
	f.mu.Lock()
	f.registered = url
	f.mu.Unlock()
	return nil
}

func (f *fakeBot) DeleteWebhook(ctx context.Context) error {
	atomic.AddInt32(&f.deleteCalls, 1)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.mu.Lock()
	f.registered = ""
	f.mu.Unlock()
	return nil
}

func (f *fakeBot) WebhookInfo(ctx context.Context) (platform.WebhookStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return platform.WebhookStatus{URL: f.registered}, nil
}

func (f *fakeBot) setRegistered(url string) {
	f.mu.Lock()
	f.registered = url
	f.mu.Unlock()
}

const testWebhook = "https://relay.example.com/webhook/telegram"

func TestConnectMarksReady(t *testing.T) {
	bot := &fakeBot{}
	m := NewManager(bot, testWebhook, "s3cret")
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	m.now = func() time.Time { return fixed }

	if m.Ready() {
		t.Fatalf("expected manager to start not ready")
	}
	state, err := m.Connect(context.Background())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if !state.Ready || state.BotUsername != "relay_bot" || state.WebhookURL != testWebhook {
		t.Fatalf("unexpected state %#v", state)
	}
	if !state.ConnectedAt.Equal(fixed) {
		t.Fatalf("connectedAt = %v", state.ConnectedAt)
	}
	if !m.Ready() {
		t.Fatalf("expected manager to be ready")
	}
}

func TestConnectFailureRecordsError(t *testing.T) {
	bot := &fakeBot{setErr: errors.New("bad url")}
	m := NewManager(bot, testWebhook, "")

	state, err := m.Connect(context.Background())
	if err == nil {
		t.Fatalf("expected connect error")
	}
	if state.Ready || state.LastError == "" {
		t.Fatalf("unexpected state %#v", state)
	}
	if m.Ready() {
		t.Fatalf("expected not ready after failed connect")
	}
}

func TestConnectWithoutBotOrURL(t *testing.T) {
	if _, err := NewManager(nil, testWebhook, "").Connect(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if _, err := NewManager(&fakeBot{}, "", "").Connect(context.Background()); !errors.Is(err, ErrNoWebhookURL) {
		t.Fatalf("expected ErrNoWebhookURL, got %v", err)
	}
}

func TestConcurrentConnectSharesRegistration(t *testing.T) {
	bot := &fakeBot{release: make(chan struct{})}
	m := NewManager(bot, testWebhook, "")

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Connect(context.Background()); err != nil {
				t.Errorf("connect: %v", err)
			}
		}()
	}
	for atomic.LoadInt32(&bot.getMeCalls) == 0 {
		time.Sleep(time.Millisecond)
	}
	// Give the remaining callers time to join the in-flight registration.
	time.Sleep(20 * time.Millisecond)
	close(bot.release)
	wg.Wait()

	if got := atomic.LoadInt32(&bot.setCalls); got != 1 {
		t.Fatalf("setWebhook calls = %d, want 1", got)
	}
}

func TestDisconnectClearsReady(t *testing.T) {
	bot := &fakeBot{}
	m := NewManager(bot, testWebhook, "")
	if _, err := m.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	before := m.Current()
	state, err := m.Disconnect(context.Background())
	if err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if state.Ready || m.Ready() {
		t.Fatalf("expected not ready after disconnect")
	}
	if !before.Ready {
		t.Fatalf("earlier snapshot must not change after disconnect")
	}
}

func TestDisconnectFailureStillStopsSends(t *testing.T) {
	bot := &fakeBot{deleteErr: errors.New("timeout")}
	m := NewManager(bot, testWebhook, "")
	_, _ = m.Connect(context.Background())

	state, err := m.Disconnect(context.Background())
	if err == nil {
		t.Fatalf("expected disconnect error")
	}
	if state.Ready || state.LastError == "" {
		t.Fatalf("unexpected state %#v", state)
	}
}

func TestWatchdogReconnectsOnDrift(t *testing.T) {
	bot := &fakeBot{}
	m := NewManager(bot, testWebhook, "")
	if _, err := m.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	w := NewWatchdog(m, "@every 5m", time.Second)

	if w.Check(context.Background()) {
		t.Fatalf("expected no reconnect while registration matches")
	}

	bot.setRegistered("https://elsewhere.example.com/hook")
	if !w.Check(context.Background()) {
		t.Fatalf("expected reconnect after drift")
	}
	if got := atomic.LoadInt32(&bot.setCalls); got != 2 {
		t.Fatalf("setWebhook calls = %d, want 2", got)
	}
	if info, _ := bot.WebhookInfo(context.Background()); info.URL != testWebhook {
		t.Fatalf("registration = %q after reconnect", info.URL)
	}
}

func TestWatchdogIgnoresDisconnectedChannel(t *testing.T) {
	bot := &fakeBot{}
	m := NewManager(bot, testWebhook, "")
	w := NewWatchdog(m, "@every 5m", time.Second)
	if w.Check(context.Background()) {
		t.Fatalf("expected watchdog to skip a channel that was never connected")
	}
	if atomic.LoadInt32(&bot.setCalls) != 0 {
		t.Fatalf("watchdog must not register a disconnected channel")
	}
}

func TestWatchdogStartRejectsBadSchedule(t *testing.T) {
	w := NewWatchdog(NewManager(&fakeBot{}, testWebhook, ""), "whenever", time.Second)
	if err := w.Start(); err == nil {
		w.Stop()
		t.Fatalf("expected schedule parse error")
	}
}
