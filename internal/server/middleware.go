package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/wp-composer/package-bridge/internal/authn"
)

type contextKey string

const contextKeyAPIKey contextKey = "api-key"

// authMiddleware validates the API key before any storage or archive
// work happens. The token travels in the basic-auth username; the
// password is a fixed placeholder and is ignored.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, _, ok := r.BasicAuth()
		if !ok {
			s.unauthorized(w, r, fmt.Errorf("%w: missing credentials", authn.ErrAuthenticationFailed))
			return
		}
		key, err := s.keys.FindByToken(token)
		if err != nil {
			s.requestLogger(r).Warnf("invalid api key from %s", r.RemoteAddr)
			s.unauthorized(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), contextKeyAPIKey, key)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) unauthorized(w http.ResponseWriter, r *http.Request, err error) {
	w.Header().Set("WWW-Authenticate", `Basic realm="package-bridge"`)
	s.writeJSONError(w, r, http.StatusUnauthorized, err, "authentication failed")
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requestLogger(r).Infof("%s %s (%s)", r.Method, r.URL.EscapedPath(), r.RemoteAddr)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.writeJSONError(w, r, http.StatusInternalServerError, fmt.Errorf("panic: %v", rec))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
