// Package httpapi exposes the small operational HTTP surface: a health
// probe and an authenticated outbound-send endpoint for scripts and
// monitoring.
package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Deps are the collaborators the API needs. HealthCheck may be nil when no
// database is configured.
type Deps struct {
	BotName     string
	Token       string
	AdminChatID string
	Send        func(ctx context.Context, chatID, text string) error
	HealthCheck func(ctx context.Context) error
	StartedAt   time.Time
}

// Server wraps the http.Server for clean shutdown.
type Server struct {
	http *http.Server
	deps Deps
}

func New(addr string, deps Deps) *Server {
	s := &Server{deps: deps}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /api/send", s.requireToken(s.handleSend))
	s.http = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Start serves until Shutdown. It returns once the listener closes.
func (s *Server) Start() error {
	slog.Info("http_api_listening", "addr", s.http.Addr)
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// requireToken rejects requests without the configured bearer token. An
// empty configured token disables the endpoint entirely.
func (s *Server) requireToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if s.deps.Token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(s.deps.Token)) != 1 {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
			return
		}
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status": "ok",
		"bot":    s.deps.BotName,
		"uptime": int(time.Since(s.deps.StartedAt).Seconds()),
	}
	if s.deps.HealthCheck != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.deps.HealthCheck(ctx); err != nil {
			resp["status"] = "degraded"
			resp["db"] = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		resp["db"] = "ok"
	}
	writeJSON(w, http.StatusOK, resp)
}

type sendRequest struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	chatID := req.To
	if chatID == "admin" {
		chatID = s.deps.AdminChatID
	}
	if chatID == "" || req.Text == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing to or text"})
		return
	}

	if err := s.deps.Send(r.Context(), chatID, req.Text); err != nil {
		slog.Error("api_send_failed", "chat_id", chatID, "error", err.Error())
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
