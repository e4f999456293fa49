package middleware

import (
	"context"
	"net/http"

	"github.com/cloo-solutions/unirank/internal/logging"
	"github.com/google/uuid"
)

// RequestID injects a request ID into context and response headers. Loggers
// built by the logging package pick it up from the context.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := logging.WithRequestID(r.Context(), requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID returns the request ID from context.
func GetRequestID(ctx context.Context) string {
	return logging.RequestID(ctx)
}
