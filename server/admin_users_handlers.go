package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/opsdeck/console-auth/admin"
	"github.com/rs/zerolog/log"
)

// AdminUsersListHandler lists users from the provider admin API.
func (s *Server) AdminUsersListHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		pm := admin.PageMetadata{Search: q.Get("search")}
		if first, err := strconv.Atoi(q.Get("first")); err == nil {
			pm.First = first
		}
		if max, err := strconv.Atoi(q.Get("max")); err == nil {
			pm.Max = max
		}

		users, err := s.admin.ListUsers(r.Context(), pm)
		if err != nil {
			log.Error().Err(err).Msg("listing users")
			writeJSONError(w, "upstream_error", "Identity provider admin API call failed", http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusOK, users)
	}
}

// AdminUserCreateHandler creates a user and returns its id.
func (s *Server) AdminUserCreateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var user admin.User
		if err := json.NewDecoder(r.Body).Decode(&user); err != nil {
			writeJSONError(w, "invalid_request", "Malformed user payload", http.StatusBadRequest)
			return
		}
		if user.Username == "" {
			writeJSONError(w, "invalid_request", "username is required", http.StatusBadRequest)
			return
		}

		id, err := s.admin.CreateUser(r.Context(), user)
		if err != nil {
			log.Error().Err(err).Str("username", user.Username).Msg("creating user")
			writeJSONError(w, "upstream_error", "Identity provider admin API call failed", http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"id": id})
	}
}

// AdminUserGetHandler fetches a single user.
func (s *Server) AdminUserGetHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := s.admin.User(r.Context(), r.PathValue("id"))
		if err != nil {
			log.Error().Err(err).Str("user_id", r.PathValue("id")).Msg("fetching user")
			writeJSONError(w, "upstream_error", "Identity provider admin API call failed", http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusOK, user)
	}
}

// AdminUserUpdateHandler replaces a user representation. The path id wins
// over any id in the body.
func (s *Server) AdminUserUpdateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var user admin.User
		if err := json.NewDecoder(r.Body).Decode(&user); err != nil {
			writeJSONError(w, "invalid_request", "Malformed user payload", http.StatusBadRequest)
			return
		}
		user.ID = r.PathValue("id")

		if err := s.admin.UpdateUser(r.Context(), user); err != nil {
			log.Error().Err(err).Str("user_id", user.ID).Msg("updating user")
			writeJSONError(w, "upstream_error", "Identity provider admin API call failed", http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// AdminUserDeleteHandler removes a user.
func (s *Server) AdminUserDeleteHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.admin.DeleteUser(r.Context(), r.PathValue("id")); err != nil {
			log.Error().Err(err).Str("user_id", r.PathValue("id")).Msg("deleting user")
			writeJSONError(w, "upstream_error", "Identity provider admin API call failed", http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
