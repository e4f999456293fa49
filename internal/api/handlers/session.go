package handlers

import (
	"net/http"

	"github.com/cloo-solutions/unirank/internal/api"
	"github.com/go-chi/chi/v5"
)

type SessionHandler struct {
	sessions     SessionStore
	helpText     string
	resetMessage string
}

func NewSessionHandler(sessions SessionStore, helpText, resetMessage string) *SessionHandler {
	return &SessionHandler{sessions: sessions, helpText: helpText, resetMessage: resetMessage}
}

type HelpResponse struct {
	Help string `json:"help"`
}

type ResetResponse struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// Reset handles POST /sessions/{id}/reset. Resetting an unknown session succeeds.
func (h *SessionHandler) Reset(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if sessionID == "" {
		api.Error(w, http.StatusBadRequest, "session id is required")
		return
	}

	h.sessions.Reset(sessionID)
	api.Success(w, http.StatusOK, ResetResponse{SessionID: sessionID, Message: h.resetMessage})
}

// Help handles GET /help.
func (h *SessionHandler) Help(w http.ResponseWriter, r *http.Request) {
	api.Success(w, http.StatusOK, HelpResponse{Help: h.helpText})
}
