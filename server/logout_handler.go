package server

import (
	"net/http"

	"github.com/opsdeck/console-auth/auth"
)

// LogoutHandler ends the session. The facade guarantees a redirect target
// even when the provider-side sign-out fails, so the browser always leaves
// the authenticated area.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookieName)
		if err != nil || cookie.Value == "" {
			http.Redirect(w, r, s.config.GetPostLogoutURL(), http.StatusSeeOther)
			return
		}

		redirect, _ := s.auth.SignOut(r.Context(), cookie.Value, auth.SignOutOptions{Redirect: true})
		s.ClearSessionCookie(w, r)
		http.Redirect(w, r, redirect, http.StatusSeeOther)
	}
}

// HealthzHandler reports process liveness.
func (s *Server) HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
