package session

import (
	"time"

	"github.com/pkg/errors"
)

// ErrNotFound is returned by a Repo when no session exists for an ID.
var ErrNotFound = errors.New("session not found")

// Repo stores session records keyed by session ID. Implementations must be
// safe for concurrent use; the Manager serialises writers per session but
// readers are unconstrained.
type Repo interface {
	// Upsert creates or updates a session
	Upsert(sessionID string, session Session) error

	// Get retrieves a session by ID
	Get(sessionID string) (Session, error)

	// Delete removes a session by ID
	Delete(sessionID string) error

	// DeleteExpiredSessions removes sessions whose access token expired
	// before expiryTime, along with sessions flagged with a terminal error.
	// The removed IDs are returned so callers can release per-session state
	// of their own.
	DeleteExpiredSessions(expiryTime time.Time) ([]string, error)
}
