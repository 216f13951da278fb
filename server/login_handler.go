package server

import (
	"net/http"
	"time"

	"github.com/opsdeck/console-auth/server/authflow"
	"github.com/rs/zerolog/log"
)

// LoginHandler starts the interactive sign-in: it parks the flow state
// (state, nonce, PKCE verifier) locally and redirects the browser to the
// identity provider's authorization endpoint.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := generateRandomString(32)
		nonce := generateRandomString(32)
		verifier := generateRandomString(32)

		flowState := &authflow.State{
			CodeVerifier: verifier,
			Nonce:        nonce,
			ReturnURL:    safeReturnURL(r.URL.Query().Get("return_to")),
			CreatedAt:    time.Now(),
		}
		if err := s.authStates.Upsert(state, flowState); err != nil {
			log.Error().Err(err).Msg("storing auth flow state")
			writeJSONError(w, "server_error", "Failed to start sign-in", http.StatusInternalServerError)
			return
		}

		authURL := s.flow.AuthCodeURL(state, nonce, generateCodeChallenge(verifier))
		http.Redirect(w, r, authURL, http.StatusFound)
	}
}
