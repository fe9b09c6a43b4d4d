package server

import (
	"context"
	"crypto/subtle"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/mymmrac/telego"

	"tgrelay/pkg/channel"
	"tgrelay/pkg/config"
	"tgrelay/pkg/filelink"
	"tgrelay/pkg/logger"
	"tgrelay/pkg/relay"
)

const (
	SecretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"
	APIKeyHeader      = "X-Api-Key"

	maxBodyBytes = 1 << 20
)

// Publisher queues an acknowledged update for asynchronous handling.
type Publisher interface {
	Publish(update telego.Update) bool
}

type Dispatcher interface {
	SendToConversationChannel(ctx context.Context, chat relay.Chat, msg relay.Message) (int, bool, error)
}

type Lifecycle interface {
	Connect(ctx context.Context) (channel.State, error)
	Disconnect(ctx context.Context) (channel.State, error)
	Current() channel.State
}

// FileSource streams Telegram files for signed gateway links.
type FileSource interface {
	OpenFile(ctx context.Context, fileID string) (io.ReadCloser, string, error)
}

type LinkVerifier interface {
	Valid(fileID, sig string) bool
}

type Server struct {
	mu         sync.Mutex
	server     *http.Server
	stopped    bool
	config     *config.Config
	updates    Publisher
	dispatcher Dispatcher
	lifecycle  Lifecycle
	files      FileSource
	links      LinkVerifier
}

func NewServer(cfg *config.Config, updates Publisher, dispatcher Dispatcher, lifecycle Lifecycle) *Server {
	return &Server{
		config:     cfg,
		updates:    updates,
		dispatcher: dispatcher,
		lifecycle:  lifecycle,
	}
}

// ServeFiles enables the signed download route. Call it before Handler or
// ListenAndServe.
func (s *Server) ServeFiles(files FileSource, links LinkVerifier) {
	s.files = files
	s.links = links
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.config.Telegram.WebhookPath, s.handleWebhook)
	mux.HandleFunc("/api/telegram/send", s.requireAPIKey(s.handleSend))
	mux.HandleFunc("/api/telegram/connect", s.requireAPIKey(s.handleConnect))
	mux.HandleFunc("/api/telegram/disconnect", s.requireAPIKey(s.handleDisconnect))
	if s.files != nil && s.links != nil {
		mux.HandleFunc(filelink.PathPrefix, s.handleFile)
	}
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/", s.handleRoot)
	return s.withCORS(s.withRequestLog(mux))
}

// ListenAndServe blocks until the server stops. A clean Stop returns nil,
// including a Stop that happened before the listener was started.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.config.Gateway.Host, s.config.Gateway.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.server = srv
	s.mu.Unlock()

	logger.InfoCF("server", "Starting HTTP server", map[string]interface{}{
		"addr":         addr,
		"webhook_path": s.config.Telegram.WebhookPath,
	})

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.ErrorCF("server", "HTTP server failed", map[string]interface{}{
			logger.FieldError: err.Error(),
		})
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	srv := s.server
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	logger.InfoC("server", "Stopping HTTP server")
	return srv.Shutdown(ctx)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "tgrelay gateway running\nTime: %s", time.Now().Format(time.RFC3339))
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+APIKeyHeader)
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.DebugCF("server", "HTTP request", map[string]interface{}{
			"method":               r.Method,
			"path":                 r.URL.Path,
			logger.FieldStatusCode: rec.status,
			"elapsed":              time.Since(started).String(),
		})
	})
}

// requireAPIKey rejects callers without the gateway key. An unset key
// rejects everyone.
func (s *Server) requireAPIKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !secretMatches(s.config.Gateway.APIKey, r.Header.Get(APIKeyHeader)) {
			logger.WarnCF("server", "Rejected request with bad API key", map[string]interface{}{
				"path":   r.URL.Path,
				"remote": r.RemoteAddr,
			})
			writeJSON(w, http.StatusUnauthorized, map[string]interface{}{"success": false, "error": "unauthorized"})
			return
		}
		next(w, r)
	}
}

func secretMatches(want, got string) bool {
	if want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}
