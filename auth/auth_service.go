// Package auth is the retry-wrapped sign-in/sign-out facade over the
// identity provider. It turns the provider's interactive flows into typed
// results with bounded retries and timeouts, and decides what happens when a
// session has failed terminally.
package auth

import (
	"context"
	"net/url"
	"time"

	"github.com/opsdeck/console-auth/provider"
	"github.com/opsdeck/console-auth/session"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ReasonTokenRefreshFailed is the reason code appended to the login redirect
// when a session is torn down because its token refresh failed.
const ReasonTokenRefreshFailed = "token_refresh_failed"

// IdentityProvider is the slice of the provider client the facade needs.
type IdentityProvider interface {
	PasswordGrant(ctx context.Context, username, password string) (*provider.TokenSet, error)
	Logout(ctx context.Context, refreshToken string) error
}

// RetryPolicy bounds the interactive sign-in flow. Zero fields fall back to
// the defaults.
type RetryPolicy struct {
	// MaxRetries is the total number of sign-in attempts.
	MaxRetries int
	// RetryDelay is the linear backoff step: attempt n waits n×RetryDelay
	// before retrying.
	RetryDelay time.Duration
	// Timeout bounds each individual attempt.
	Timeout time.Duration
}

// DefaultRetryPolicy returns the stock sign-in retry budget.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		RetryDelay: time.Second,
		Timeout:    10 * time.Second,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	d := DefaultRetryPolicy()
	if p.MaxRetries <= 0 {
		p.MaxRetries = d.MaxRetries
	}
	if p.RetryDelay <= 0 {
		p.RetryDelay = d.RetryDelay
	}
	if p.Timeout <= 0 {
		p.Timeout = d.Timeout
	}
	return p
}

// Redirects are the console URLs the facade sends browsers to.
type Redirects struct {
	// LoginURL is the console login page, the target after any forced
	// re-authentication.
	LoginURL string
	// PostLogoutURL is where a normally signed-out user lands.
	PostLogoutURL string
}

// SignOutOptions control the failure behaviour of SignOut.
type SignOutOptions struct {
	// Redirect requests a redirect URL even if the provider call fails, so
	// the user is never left stuck in an authenticated-looking state.
	Redirect bool
	// RedirectURL overrides the configured post-logout URL.
	RedirectURL string
}

// Service wraps the identity provider's interactive flows.
type Service struct {
	idp      IdentityProvider
	sessions *session.Manager
	policy   RetryPolicy
	urls     Redirects
	sleep    func(ctx context.Context, d time.Duration) error // injectable for testing
}

// ServiceOption modifies a Service instance.
type ServiceOption func(*Service)

// WithSleep sets the backoff sleep function (primarily for testing).
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) ServiceOption {
	return func(s *Service) {
		s.sleep = sleep
	}
}

// NewService initializes the facade with required dependencies.
func NewService(idp IdentityProvider, sessions *session.Manager, urls Redirects, policy RetryPolicy, options ...ServiceOption) (*Service, error) {
	if idp == nil {
		return nil, errors.New("[NewService] identity provider is required")
	}
	if sessions == nil {
		return nil, errors.New("[NewService] session manager is required")
	}

	s := &Service{
		idp:      idp,
		sessions: sessions,
		policy:   policy.withDefaults(),
		urls:     urls,
		sleep:    sleepWithContext,
	}

	for _, opt := range options {
		opt(s)
	}

	return s, nil
}

// SignInWithRetry attempts an interactive sign-in up to the policy's retry
// budget. Each attempt races the provider call against the per-attempt
// timeout; attempts are spaced by linear backoff. The first success wins;
// otherwise the last error encountered is returned. A provider rejection is
// terminal immediately, retrying bad credentials cannot succeed.
func (s *Service) SignInWithRetry(ctx context.Context, username, password string) (session.Session, error) {
	var lastErr error

	for attempt := 1; attempt <= s.policy.MaxRetries; attempt++ {
		if attempt > 1 {
			backoff := time.Duration(attempt-1) * s.policy.RetryDelay
			if err := s.sleep(ctx, backoff); err != nil {
				return session.Session{}, errors.Wrap(err, "[Service.SignInWithRetry] cancelled during backoff")
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, s.policy.Timeout)
		tokens, err := s.idp.PasswordGrant(attemptCtx, username, password)
		cancel()

		if err == nil {
			return s.sessions.InitFromSignIn(tokens)
		}

		var tokenErr *provider.TokenError
		if errors.As(err, &tokenErr) {
			log.Info().
				Str("username", username).
				Str("provider_error", tokenErr.Code).
				Msg("sign-in rejected")
			return session.Session{}, errors.Wrapf(ErrAuthFailed, "%s", tokenErr.Error())
		}

		if errors.Is(err, context.DeadlineExceeded) {
			lastErr = errors.Wrapf(ErrAuthTimeout, "attempt %d of %d", attempt, s.policy.MaxRetries)
		} else {
			lastErr = errors.Wrapf(err, "[Service.SignInWithRetry] attempt %d of %d", attempt, s.policy.MaxRetries)
		}

		log.Warn().
			Int("attempt", attempt).
			Int("max_retries", s.policy.MaxRetries).
			Err(err).
			Msg("sign-in attempt failed")
	}

	return session.Session{}, lastErr
}

// SignOut destroys the local session and ends the provider-side session.
// When the provider call fails and a redirect was requested, the user is
// still sent to the post-logout URL; without a redirect the failure is
// surfaced as ErrSignOutFailed. The returned string is the URL the caller
// should redirect the browser to (empty when no redirect applies).
func (s *Service) SignOut(ctx context.Context, sessionID string, opts SignOutOptions) (string, error) {
	target := opts.RedirectURL
	if target == "" {
		target = s.urls.PostLogoutURL
	}

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		// Nothing held locally; the user is effectively signed out already.
		if opts.Redirect {
			return target, nil
		}
		return "", nil
	}

	// The local session goes first: whatever the provider says, this
	// process must stop honouring the tokens.
	if err := s.sessions.Delete(sessionID); err != nil {
		log.Error().Str("session_id", sessionID).Err(err).Msg("deleting local session failed")
	}

	if err := s.idp.Logout(ctx, sess.RefreshToken); err != nil {
		if !opts.Redirect {
			return "", errors.Wrapf(ErrSignOutFailed, "%s", err.Error())
		}
		log.Warn().
			Str("session_id", sessionID).
			Err(err).
			Msg("provider sign-out failed; falling back to manual redirect")
		return target, nil
	}

	log.Info().Str("session_id", sessionID).Msg("signed out")
	if opts.Redirect {
		return target, nil
	}
	return "", nil
}

// HandleSessionError inspects a session's terminal error flag. A session
// flagged with a failed token refresh is signed out and the caller receives
// the login redirect (with a reason code) to send the browser to; the
// returned bool reports whether the error was handled here.
func (s *Service) HandleSessionError(ctx context.Context, sess session.Session) (string, bool) {
	switch sess.Error {
	case session.ErrorNone:
		return "", false
	case session.ErrorRefreshAccessToken:
		redirect, _ := s.SignOut(ctx, sess.ID, SignOutOptions{
			Redirect:    true,
			RedirectURL: loginRedirectWithReason(s.urls.LoginURL, ReasonTokenRefreshFailed),
		})
		return redirect, true
	default:
		return "", false
	}
}

func loginRedirectWithReason(loginURL, reason string) string {
	return loginURL + "?error=" + url.QueryEscape(reason)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
