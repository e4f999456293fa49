package middleware

import (
	"fmt"
	"net/http"

	"github.com/cloo-solutions/unirank/internal/api"
	"github.com/cloo-solutions/unirank/internal/domain"
)

// MaxBodyBytes rejects declared bodies over limit with 413. Bodies of unknown
// length are cut off at limit and surface as *http.MaxBytesError on read.
func MaxBodyBytes(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limit > 0 && r.Body != nil && r.Body != http.NoBody {
				if r.ContentLength > limit {
					api.JSON(w, http.StatusRequestEntityTooLarge, api.ErrorResponse{
						Error: fmt.Sprintf("request body exceeds %d bytes", limit),
						Code:  domain.ErrCodeValidation,
					})
					return
				}
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}
