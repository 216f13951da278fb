package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opsdeck/console-auth/provider"
	"github.com/opsdeck/console-auth/token"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// DefaultDebounceWindow is the minimum spacing between refresh attempts for
// one session. Near-simultaneous expiry checks from parallel page loads
// otherwise all race to refresh at once.
const DefaultDebounceWindow = 10 * time.Second

// DefaultRetention is how long a stale session may sit un-refreshed before
// the cleanup sweep removes it. Matches the default session cookie TTL: a
// session nobody has touched for that long has no cookie pointing at it.
const DefaultRetention = 8 * time.Hour

// TokenExchanger refreshes an access token at the identity provider. It is
// implemented by *provider.Client.
type TokenExchanger interface {
	Refresh(ctx context.Context, refreshToken string) (*provider.TokenSet, error)
}

// Manager assembles and maintains session records: it builds them at
// sign-in, answers the "is this session still usable" question on every
// access, and drives the coalesced token refresh when it is not.
type Manager struct {
	repo      Repo
	exchanger TokenExchanger
	debounce  time.Duration
	retention time.Duration
	nowTime   func() time.Time // injectable for testing

	// gates serialises refreshes per session: at most one network refresh
	// is in flight for a session, and concurrent callers block on the gate
	// and then observe the first caller's result.
	mu    sync.Mutex
	gates map[string]*sync.Mutex
}

// ManagerOption modifies a Manager instance.
type ManagerOption func(*Manager)

// WithNowTime sets the now time function (primarily for testing).
func WithNowTime(nowFunc func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowTime = nowFunc
	}
}

// WithDebounceWindow overrides the refresh debounce window.
func WithDebounceWindow(window time.Duration) ManagerOption {
	return func(m *Manager) {
		m.debounce = window
	}
}

// WithRetention overrides how long stale sessions are kept before the
// cleanup sweep removes them. Usually wired to the session cookie TTL.
func WithRetention(retention time.Duration) ManagerOption {
	return func(m *Manager) {
		m.retention = retention
	}
}

// NewManager initializes a new session Manager with required dependencies.
func NewManager(repo Repo, exchanger TokenExchanger, options ...ManagerOption) (*Manager, error) {
	if repo == nil {
		return nil, errors.New("[NewManager] session repo is required")
	}
	if exchanger == nil {
		return nil, errors.New("[NewManager] token exchanger is required")
	}

	m := &Manager{
		repo:      repo,
		exchanger: exchanger,
		debounce:  DefaultDebounceWindow,
		retention: DefaultRetention,
		nowTime:   time.Now,
		gates:     make(map[string]*sync.Mutex),
	}

	for _, opt := range options {
		opt(m)
	}

	return m, nil
}

// InitFromSignIn builds and stores the initial session record from the token
// set issued by a successful interactive sign-in. The access token must
// decode cleanly; a provider that hands us an unreadable token at sign-in is
// a configuration problem, not something to limp along with.
func (m *Manager) InitFromSignIn(tokens *provider.TokenSet) (Session, error) {
	if tokens == nil || tokens.AccessToken == "" {
		return Session{}, errors.New("[Manager.InitFromSignIn] no access token")
	}

	claims, err := token.Decode(tokens.AccessToken)
	if err != nil {
		return Session{}, errors.Wrap(err, "[Manager.InitFromSignIn] decoding access token")
	}

	now := m.nowTime()
	session := Session{
		ID:                   uuid.New().String(),
		UserID:               claims.Subject,
		Username:             claims.Username,
		Roles:                token.ExtractRoles(claims),
		AccessToken:          tokens.AccessToken,
		RefreshToken:         tokens.RefreshToken,
		AccessTokenExpiresAt: claims.ExpiresAt,
		CreatedAt:            now,
		Error:                ErrorNone,
	}

	if err := m.repo.Upsert(session.ID, session); err != nil {
		return Session{}, errors.Wrap(err, "[Manager.InitFromSignIn] storing session")
	}

	log.Info().
		Str("session_id", session.ID).
		Str("user_id", session.UserID).
		Dur("expires_in", claims.ExpiresIn(now)).
		Msg("session created")

	return session, nil
}

// EnsureValid is the single entry point consulted before using a session for
// any authorized action. A still-valid session is returned untouched with no
// network call. A stale one is refreshed under the session's gate; a session
// whose refresh has already failed terminally is returned with its Error set
// so the caller can force re-authentication.
func (m *Manager) EnsureValid(ctx context.Context, sessionID string) (Session, error) {
	session, err := m.repo.Get(sessionID)
	if err != nil {
		return Session{}, errors.Wrap(err, "[Manager.EnsureValid] loading session")
	}

	// Fast path: unexpired, or already terminally failed.
	if session.Valid(m.nowTime()) || session.Error != ErrorNone {
		return session, nil
	}

	gate := m.gate(sessionID)
	gate.Lock()
	defer gate.Unlock()

	// Re-check under the gate: a concurrent caller may have refreshed (or
	// terminally failed) while we waited.
	session, err = m.repo.Get(sessionID)
	if err != nil {
		return Session{}, errors.Wrap(err, "[Manager.EnsureValid] reloading session")
	}
	now := m.nowTime()
	if session.Valid(now) || session.Error != ErrorNone {
		return session, nil
	}

	// Debounce: a refresh attempt started moments ago; treat the session as
	// current rather than hammering the token endpoint.
	if !session.LastRefreshAttemptAt.IsZero() && now.Sub(session.LastRefreshAttemptAt) < m.debounce {
		return session, nil
	}

	return m.refresh(ctx, session)
}

// refresh performs one network refresh for a stale session. Callers must
// hold the session's gate.
func (m *Manager) refresh(ctx context.Context, session Session) (Session, error) {
	session.LastRefreshAttemptAt = m.nowTime()

	if session.RefreshToken == "" {
		log.Warn().
			Str("session_id", session.ID).
			Msg("access token expired and no refresh token held")
		return m.markInvalid(session)
	}

	tokens, err := m.exchanger.Refresh(ctx, session.RefreshToken)
	if err != nil {
		event := log.Warn().Str("session_id", session.ID)
		var tokenErr *provider.TokenError
		if errors.As(err, &tokenErr) {
			event = event.Str("provider_error", tokenErr.Code).Str("description", tokenErr.Description)
		}
		event.Err(err).Msg("token refresh failed")
		return m.markInvalid(session)
	}

	session.AccessToken = tokens.AccessToken
	session.AccessTokenExpiresAt = tokens.ExpiresAt
	if tokens.RefreshToken != "" {
		// Rotation: the provider may or may not issue a new refresh token.
		// When it does not, the previous one stays valid and is retained.
		session.RefreshToken = tokens.RefreshToken
	}

	// Claims refresh is best-effort: an undecodable refreshed token keeps
	// the previous identity and role set rather than failing the refresh.
	if claims, err := token.Decode(tokens.AccessToken); err != nil {
		log.Error().
			Str("session_id", session.ID).
			Err(err).
			Msg("refreshed access token did not decode; keeping previous claims")
	} else {
		session.UserID = claims.Subject
		if claims.Username != "" {
			session.Username = claims.Username
		}
		session.Roles = token.ExtractRoles(claims)
		session.AccessTokenExpiresAt = claims.ExpiresAt
	}

	session.Error = ErrorNone
	if err := m.repo.Upsert(session.ID, session); err != nil {
		return Session{}, errors.Wrap(err, "[Manager.refresh] storing refreshed session")
	}

	log.Info().
		Str("session_id", session.ID).
		Time("expires_at", session.AccessTokenExpiresAt).
		Msg("session refreshed")

	return session, nil
}

// markInvalid flags the session with the terminal refresh error and
// persists it. The session stays in the store so subsequent accesses see the
// error flag instead of a missing session.
func (m *Manager) markInvalid(session Session) (Session, error) {
	session.Error = ErrorRefreshAccessToken
	if err := m.repo.Upsert(session.ID, session); err != nil {
		return Session{}, errors.Wrap(err, "[Manager.markInvalid] storing session")
	}
	return session, nil
}

// Get returns the stored session without any validity check.
func (m *Manager) Get(sessionID string) (Session, error) {
	return m.repo.Get(sessionID)
}

// Delete destroys a session, at sign-out or after a forced
// re-authentication.
func (m *Manager) Delete(sessionID string) error {
	m.mu.Lock()
	delete(m.gates, sessionID)
	m.mu.Unlock()
	return m.repo.Delete(sessionID)
}

// CleanupExpiredSessions removes sessions nobody can use any more: those
// flagged with a terminal refresh error and those whose access token expired
// longer ago than the retention window. Gates of removed sessions are
// released along with the records.
func (m *Manager) CleanupExpiredSessions() error {
	cutoff := m.nowTime().Add(-m.retention)
	removed, err := m.repo.DeleteExpiredSessions(cutoff)
	if err != nil {
		return errors.Wrap(err, "[Manager.CleanupExpiredSessions] deleting expired sessions")
	}
	if len(removed) == 0 {
		return nil
	}

	m.mu.Lock()
	for _, sessionID := range removed {
		delete(m.gates, sessionID)
	}
	m.mu.Unlock()

	log.Info().Int("removed", len(removed)).Msg("expired sessions cleaned up")
	return nil
}

func (m *Manager) gate(sessionID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.gates[sessionID]
	if !ok {
		g = &sync.Mutex{}
		m.gates[sessionID] = g
	}
	return g
}
