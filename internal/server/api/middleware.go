package api

import (
	"net/http"
	"strings"

	"github.com/finvista/acusync/internal/common"
	"github.com/finvista/acusync/internal/server/auth"
)

// authMiddleware requires a valid bearer token on every request it wraps.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			s.writeError(w, r, common.ErrUnauthorized)
			return
		}

		if _, err := auth.GetSubjectFromToken(token, []byte(s.cfg.SecretKey)); err != nil {
			s.writeError(w, r, common.ErrInvalidToken)
			return
		}
		next.ServeHTTP(w, r)
	})
}
