package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/cloo-solutions/unirank/internal/api"
	"github.com/cloo-solutions/unirank/internal/api/handlers"
	"github.com/cloo-solutions/unirank/internal/api/middleware"
	"github.com/go-chi/chi/v5"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type RouterConfig struct {
	AnswerHandler  *handlers.AnswerHandler
	SessionHandler *handlers.SessionHandler
	HealthCheck    HealthCheck
	Logger         *slog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 64 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog(cfg.Logger))
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if cfg.HealthCheck != nil {
			if err := cfg.HealthCheck(r.Context()); err != nil {
				api.Error(w, http.StatusServiceUnavailable, "unhealthy: "+err.Error())
				return
			}
		}
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/answer", cfg.AnswerHandler.Answer)
	r.Get("/help", cfg.SessionHandler.Help)
	r.Post("/sessions/{id}/reset", cfg.SessionHandler.Reset)

	return r
}
