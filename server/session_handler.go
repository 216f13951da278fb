package server

import (
	"net/http"
	"time"
)

// sessionUser is the identity block of the session object.
type sessionUser struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
}

// sessionResponse is the session object every authenticated console page
// consumes to gate role-based rendering.
type sessionResponse struct {
	User    sessionUser `json:"user"`
	Expires time.Time   `json:"expires"`
	Error   string      `json:"error,omitempty"`
}

// SessionHandler returns the current session object. RequireSession has
// already refreshed the token if it was stale, so the expiry here is always
// in the future.
func (s *Server) SessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := SessionFromContext(r.Context())
		if !ok {
			writeJSONError(w, "unauthenticated", "No session", http.StatusUnauthorized)
			return
		}

		roles := sess.Roles
		if roles == nil {
			roles = []string{}
		}

		writeJSON(w, http.StatusOK, sessionResponse{
			User: sessionUser{
				ID:       sess.UserID,
				Username: sess.Username,
				Roles:    roles,
			},
			Expires: sess.AccessTokenExpiresAt,
			Error:   sess.Error.String(),
		})
	}
}
