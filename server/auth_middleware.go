package server

import (
	"context"
	"net/http"

	"github.com/opsdeck/console-auth/session"
	"github.com/opsdeck/console-auth/token"
	"github.com/rs/zerolog/log"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

// ContextKeySession stores the validated session record
const ContextKeySession ContextKey = "session"

// SessionFromContext returns the session injected by RequireSession.
func SessionFromContext(ctx context.Context) (session.Session, bool) {
	sess, ok := ctx.Value(ContextKeySession).(session.Session)
	return sess, ok
}

// RequireSession validates the session cookie and ensures the access token
// is current, refreshing it if needed. A session whose refresh has failed
// terminally is torn down and the caller told where to re-authenticate; no
// authenticated response is ever served from an error-flagged session.
func (s *Server) RequireSession() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(sessionCookieName)
			if err != nil || cookie.Value == "" {
				writeJSONError(w, "unauthenticated", "No session", http.StatusUnauthorized)
				return
			}

			sess, err := s.sessions.EnsureValid(r.Context(), cookie.Value)
			if err != nil {
				s.ClearSessionCookie(w, r)
				writeJSONError(w, "unauthenticated", "Invalid session", http.StatusUnauthorized)
				return
			}

			if loginRedirect, handled := s.auth.HandleSessionError(r.Context(), sess); handled {
				log.Info().
					Str("session_id", sess.ID).
					Str("error", sess.Error.String()).
					Msg("session torn down after terminal error")
				s.ClearSessionCookie(w, r)
				writeJSON(w, http.StatusUnauthorized, map[string]string{
					"error":     sess.Error.String(),
					"login_url": loginRedirect,
				})
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeySession, sess)
			next(w, r.WithContext(ctx))
		}
	}
}

// RequireRole rejects sessions whose role set lacks the named role. Must be
// chained after RequireSession.
func (s *Server) RequireRole(role string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			sess, ok := SessionFromContext(r.Context())
			if !ok || !token.HasRole(sess.Roles, role) {
				writeJSONError(w, "forbidden", "Requires role: "+role, http.StatusForbidden)
				return
			}
			next(w, r)
		}
	}
}
