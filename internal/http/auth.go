package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/Joram-tec/expense-pro/internal/core"
	"github.com/Joram-tec/expense-pro/internal/session"
)

type contextKey string

const principalKey contextKey = "principal"

// requireAuth verifies the bearer token and checks that its subject is
// the principal the session service currently holds. A valid token for
// a signed-out or different user is rejected.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenStr, ok := bearerToken(r)
		if !ok {
			writeError(w, r, core.ErrNotAuthenticated)
			return
		}

		p, err := s.tokens.Verify(tokenStr)
		if err != nil {
			writeError(w, r, core.ErrAuthFailed)
			return
		}

		state, active := s.sessions.Current()
		if state != session.Authenticated || active == nil || active.UserID != p.UserID {
			writeError(w, r, core.ErrNotAuthenticated)
			return
		}

		ctx := context.WithValue(r.Context(), principalKey, p)
		next(w, r.WithContext(ctx))
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(h[len(prefix):]), true
}

// principalFrom returns the authenticated principal stored by requireAuth.
func principalFrom(ctx context.Context) (core.Principal, bool) {
	p, ok := ctx.Value(principalKey).(core.Principal)
	return p, ok
}
