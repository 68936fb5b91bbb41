// Package alertserver implements the alert-ingress HTTP server (§6.5): a
// bearer-token-authenticated POST /alert endpoint that pushes externally
// produced notifications onto the alert inbox (C10), plus a GET /health
// liveness check distinct from the pipeline's own /healthz and /readyz.
package alertserver

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gregcmartin/claw-voice/internal/health"
	"github.com/gregcmartin/claw-voice/internal/pipeline"
)

// PresenceChecker reports whether the designated speaker is currently
// present in the voice channel, for the alert response's userInVoice field.
// Implemented by [*pipeline.HandoffRouter].
type PresenceChecker interface {
	Diverted() bool
}

// Server serves the alert-ingress HTTP surface.
type Server struct {
	inbox    *pipeline.AlertInbox
	token    string
	presence PresenceChecker
	health   *health.Handler
}

// New constructs a [Server]. token authenticates POST /alert requests via
// "Authorization: Bearer <token>"; presence reports voice-channel attendance
// for the response's userInVoice field; health, if non-nil, is registered
// alongside the alert routes so a single listener serves both surfaces.
func New(inbox *pipeline.AlertInbox, token string, presence PresenceChecker, h *health.Handler) *Server {
	return &Server{inbox: inbox, token: token, presence: presence, health: h}
}

// Handler returns the configured [http.Handler] for this server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /alert", s.handleAlert)
	mux.HandleFunc("GET /health", s.handleHealth)
	if s.health != nil {
		s.health.Register(mux)
	}
	return mux
}

type alertRequest struct {
	Message     string `json:"message"`
	Priority    string `json:"priority"`
	FullDetails string `json:"fullDetails"`
	Source      string `json:"source"`
}

type alertResponse struct {
	OK          bool `json:"ok"`
	Queued      bool `json:"queued"`
	UserInVoice bool `json:"userInVoice"`
}

func (s *Server) handleAlert(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, `{"ok":false,"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req alertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"ok":false,"error":"invalid json body"}`, http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		http.Error(w, `{"ok":false,"error":"message is required"}`, http.StatusBadRequest)
		return
	}

	priority := pipeline.AlertNormal
	if strings.EqualFold(req.Priority, "urgent") {
		priority = pipeline.AlertUrgent
	}

	s.inbox.Push(pipeline.Alert{
		Priority:    priority,
		Message:     req.Message,
		FullDetails: req.FullDetails,
		Source:      req.Source,
		ReceivedAt:  time.Now(),
	})
	slog.Debug("alertserver: alert queued", "source", req.Source, "priority", req.Priority)

	userInVoice := s.presence == nil || !s.presence.Diverted()
	writeJSON(w, http.StatusOK, alertResponse{OK: true, Queued: true, UserInVoice: userInVoice})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) authorized(r *http.Request) bool {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, prefix) {
		return false
	}
	got := strings.TrimPrefix(h, prefix)
	return subtle.ConstantTimeCompare([]byte(got), []byte(s.token)) == 1
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, fmt.Sprintf(`{"ok":false,"error":%q}`, err.Error()), http.StatusInternalServerError)
	}
}
