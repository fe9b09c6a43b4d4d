package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mymmrac/telego"

	"tgrelay/pkg/channel"
	"tgrelay/pkg/correlation"
	"tgrelay/pkg/filelink"
	"tgrelay/pkg/logger"
	"tgrelay/pkg/relay"
)

// handleWebhook acknowledges Telegram before any routing happens. Once the
// body parses, the response is 200 whatever the update turns out to be.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, map[string]interface{}{"ok": false})
		return
	}
	if secret := s.config.Telegram.WebhookSecret; secret != "" && !secretMatches(secret, r.Header.Get(SecretTokenHeader)) {
		logger.WarnCF("server", "Webhook call with bad secret token", map[string]interface{}{
			"remote": r.RemoteAddr,
		})
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{"ok": false})
		return
	}

	var update telego.Update
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&update); err != nil {
		logger.WarnCF("server", "Webhook body rejected", map[string]interface{}{
			logger.FieldError: err.Error(),
		})
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"ok": false})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	s.updates.Publish(update)
}

type sendRequest struct {
	Chat    relay.Chat    `json:"chat"`
	Message relay.Message `json:"message"`
}

type sendResponse struct {
	Success           bool   `json:"success"`
	TelegramMessageID *int   `json:"telegramMessageId"`
	Error             string `json:"error,omitempty"`
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, sendResponse{Error: "method not allowed"})
		return
	}

	var req sendRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, sendResponse{Error: "invalid JSON body"})
		return
	}
	if req.Chat.ID == "" {
		writeJSON(w, http.StatusBadRequest, sendResponse{Error: "chat.id is required"})
		return
	}

	id, delivered, err := s.dispatcher.SendToConversationChannel(r.Context(), req.Chat, req.Message)
	switch {
	case errors.Is(err, correlation.ErrInvalidRef):
		writeJSON(w, http.StatusBadRequest, sendResponse{Error: err.Error()})
	case err != nil:
		writeJSON(w, http.StatusBadGateway, sendResponse{Error: err.Error()})
	case !delivered:
		writeJSON(w, http.StatusOK, sendResponse{Success: false})
	default:
		writeJSON(w, http.StatusOK, sendResponse{Success: true, TelegramMessageID: &id})
	}
}

type lifecycleResponse struct {
	Success bool          `json:"success"`
	State   channel.State `json:"state"`
	Error   string        `json:"error,omitempty"`
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, lifecycleResponse{Error: "method not allowed"})
		return
	}
	state, err := s.lifecycle.Connect(r.Context())
	s.writeLifecycle(w, state, err)
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, lifecycleResponse{Error: "method not allowed"})
		return
	}
	state, err := s.lifecycle.Disconnect(r.Context())
	s.writeLifecycle(w, state, err)
}

func (s *Server) writeLifecycle(w http.ResponseWriter, state channel.State, err error) {
	switch {
	case errors.Is(err, channel.ErrNotConfigured), errors.Is(err, channel.ErrNoWebhookURL):
		writeJSON(w, http.StatusServiceUnavailable, lifecycleResponse{State: state, Error: err.Error()})
	case err != nil:
		writeJSON(w, http.StatusBadGateway, lifecycleResponse{State: state, Error: err.Error()})
	default:
		writeJSON(w, http.StatusOK, lifecycleResponse{Success: true, State: state})
	}
}

// handleFile proxies a Telegram file for a link minted by filelink, so the
// main server and end-users never see the bot token.
func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	fileID := strings.TrimPrefix(r.URL.Path, filelink.PathPrefix)
	if fileID == "" || strings.Contains(fileID, "/") {
		http.NotFound(w, r)
		return
	}
	if !s.links.Valid(fileID, r.URL.Query().Get("sig")) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	body, contentType, err := s.files.OpenFile(r.Context(), fileID)
	if err != nil {
		http.Error(w, "file unavailable", http.StatusBadGateway)
		return
	}
	defer body.Close()

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, body); err != nil {
		logger.WarnCF("server", "File download interrupted", map[string]interface{}{
			logger.FieldError: err.Error(),
		})
	}
}

type healthTelegram struct {
	Ready       bool       `json:"ready"`
	Bot         string     `json:"bot,omitempty"`
	ConnectedAt *time.Time `json:"connectedAt,omitempty"`
	LastError   string     `json:"lastError,omitempty"`
}

type healthResponse struct {
	Status   string         `json:"status"`
	Telegram healthTelegram `json:"telegram"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	state := s.lifecycle.Current()
	resp := healthResponse{
		Status: "ok",
		Telegram: healthTelegram{
			Ready:     state.Ready,
			Bot:       state.BotUsername,
			LastError: state.LastError,
		},
	}
	if !state.Ready {
		resp.Status = "degraded"
	}
	if !state.ConnectedAt.IsZero() {
		at := state.ConnectedAt
		resp.Telegram.ConnectedAt = &at
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WarnCF("server", "Failed to write response", map[string]interface{}{
			logger.FieldError: err.Error(),
		})
	}
}
