package server

import (
	"net/http"

	"github.com/rs/zerolog/log"
)

// CallbackHandler completes the interactive sign-in: code exchange, ID token
// verification, session creation, cookie.
func (s *Server) CallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// r.FormValue works for both query params (GET) and form_post (POST).
		state := r.FormValue("state")
		code := r.FormValue("code")
		errorParam := r.FormValue("error")
		errorDesc := r.FormValue("error_description")

		if errorParam != "" {
			log.Warn().Str("error", errorParam).Str("description", errorDesc).Msg("provider rejected authorization")
			redirectWithError(w, r, s.config.GetLoginURL(), errorParam)
			return
		}

		if code == "" || state == "" {
			writeJSONError(w, "invalid_request", "Missing code or state parameter", http.StatusBadRequest)
			return
		}

		flowState, err := s.authStates.Get(state)
		if err != nil {
			writeJSONError(w, "invalid_request", "Invalid state parameter", http.StatusBadRequest)
			return
		}
		// State is single-use whatever happens next.
		_ = s.authStates.Delete(state)

		tokens, err := s.flow.Exchange(r.Context(), code, flowState.CodeVerifier)
		if err != nil {
			log.Error().Err(err).Msg("code exchange failed")
			redirectWithError(w, r, s.config.GetLoginURL(), "exchange_failed")
			return
		}

		if tokens.IDToken == "" {
			log.Error().Msg("no ID token in exchange response")
			redirectWithError(w, r, s.config.GetLoginURL(), "exchange_failed")
			return
		}

		idClaims, err := s.flow.VerifyIDToken(r.Context(), tokens.IDToken)
		if err != nil {
			log.Error().Err(err).Msg("ID token verification failed")
			redirectWithError(w, r, s.config.GetLoginURL(), "verification_failed")
			return
		}

		// Nonce comparison prevents replay of a captured callback.
		if idClaims.Nonce != flowState.Nonce {
			log.Warn().Msg("nonce mismatch in callback")
			writeJSONError(w, "invalid_request", "Invalid nonce", http.StatusUnauthorized)
			return
		}

		sess, err := s.sessions.InitFromSignIn(tokens)
		if err != nil {
			log.Error().Err(err).Msg("building session from sign-in")
			redirectWithError(w, r, s.config.GetLoginURL(), "session_failed")
			return
		}

		s.SetSessionCookie(w, r, sess.ID, int(s.config.GetSessionCookieTTL().Seconds()))
		http.Redirect(w, r, flowState.ReturnURL, http.StatusSeeOther)
	}
}
