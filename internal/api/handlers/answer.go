package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/cloo-solutions/unirank/internal/api"
	"github.com/cloo-solutions/unirank/internal/domain"
	"github.com/cloo-solutions/unirank/internal/logging"
	"github.com/cloo-solutions/unirank/internal/service"
	"github.com/google/uuid"
)

type Answerer interface {
	Answer(ctx context.Context, input service.AnswerInput) (*service.AnswerOutput, error)
}

type SessionStore interface {
	History(sessionID string) *domain.History
	Reset(sessionID string) bool
}

type AnswerHandler struct {
	answerer Answerer
	sessions SessionStore
	logger   *slog.Logger
}

func NewAnswerHandler(answerer Answerer, sessions SessionStore, logger *slog.Logger) *AnswerHandler {
	return &AnswerHandler{answerer: answerer, sessions: sessions, logger: logging.OrDiscard(logger)}
}

type AnswerRequest struct {
	SessionID string `json:"session_id"`
	Query     string `json:"query"`
}

type AnswerResponse struct {
	Answer    string `json:"answer"`
	SessionID string `json:"session_id"`
	QueryID   string `json:"query_id,omitempty"`
	State     string `json:"state"`
}

// Answer handles POST /answer. Pipeline failures still return 200 with the
// apology text; only malformed requests and saturation are reported as errors.
func (h *AnswerHandler) Answer(w http.ResponseWriter, r *http.Request) {
	var req AnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			api.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(req.Query) == "" {
		api.HandleError(w, domain.ErrEmptyQuery)
		return
	}

	var history *domain.History
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	if h.sessions != nil {
		history = h.sessions.History(req.SessionID)
	}

	out, err := h.answerer.Answer(r.Context(), service.AnswerInput{
		Query:     req.Query,
		SessionID: req.SessionID,
		History:   history,
	})

	resp := AnswerResponse{SessionID: req.SessionID}
	if out != nil {
		resp.State = string(out.State)
		if out.Trace != nil {
			resp.QueryID = out.Trace.ID
		}
	}

	if err != nil {
		if errors.Is(err, domain.ErrTooManyQueries) {
			api.HandleError(w, err)
			return
		}
		resp.Answer = service.ApologyMessage
		resp.State = string(domain.QueryStateFailed)
		api.Success(w, http.StatusOK, resp)
		return
	}

	resp.Answer = out.Answer
	api.Success(w, http.StatusOK, resp)
}
