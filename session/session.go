// Package session owns the lifecycle of authenticated console sessions: the
// session record built at sign-in, expiry checking on every access, and
// coalesced refresh against the identity provider when the access token has
// gone stale.
package session

import "time"

// ErrorKind is the closed set of terminal session error states. It is a
// typed enum rather than a string tag so callers can switch over it
// exhaustively.
type ErrorKind int

const (
	// ErrorNone means the session is healthy.
	ErrorNone ErrorKind = iota

	// ErrorRefreshAccessToken means the most recent refresh attempt failed
	// terminally. The session cannot recover; the UI must force a full
	// re-authentication.
	ErrorRefreshAccessToken
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorNone:
		return ""
	case ErrorRefreshAccessToken:
		return "RefreshAccessTokenError"
	default:
		return "unknown"
	}
}

// State is the lifecycle position of a session at a point in time.
type State int

const (
	// StateActive: access token unexpired, usable as-is.
	StateActive State = iota
	// StateStale: access token expired but a refresh may still succeed.
	StateStale
	// StateInvalid: refresh failed terminally; only a fresh sign-in helps.
	StateInvalid
)

// Session is the externally visible session record. AccessTokenExpiresAt
// always reflects the exp claim of the currently stored access token; Error
// is set if and only if the most recent refresh attempt failed terminally.
type Session struct {
	// ID is the opaque server-side session identifier held in the cookie.
	ID string

	// Identity derived from the access token claims.
	UserID   string
	Username string
	Roles    []string

	// Tokens. Never log these in full.
	AccessToken  string
	RefreshToken string

	AccessTokenExpiresAt time.Time

	// LastRefreshAttemptAt is when the most recent refresh attempt started,
	// used to debounce near-simultaneous expiry checks.
	LastRefreshAttemptAt time.Time

	CreatedAt time.Time

	Error ErrorKind
}

// State reports the session's lifecycle state as of now.
func (s *Session) State(now time.Time) State {
	if s.Error != ErrorNone {
		return StateInvalid
	}
	if now.Before(s.AccessTokenExpiresAt) {
		return StateActive
	}
	return StateStale
}

// Valid reports whether the session can authorize a call right now without
// any refresh.
func (s *Session) Valid(now time.Time) bool {
	return s.State(now) == StateActive
}
