package config

import "time"

// LifecycleConfig carries the session lifecycle knobs. The defaults mirror
// the behaviour the console shipped with; every one of them is tunable
// because none was ever chosen against documented requirements.
type LifecycleConfig interface {
	// GetDebounceWindow is the minimum spacing between token refresh
	// attempts for one session.
	GetDebounceWindow() time.Duration

	// GetRefreshTimeout bounds each token-endpoint call.
	GetRefreshTimeout() time.Duration

	// GetSignInMaxRetries is the total number of interactive sign-in
	// attempts.
	GetSignInMaxRetries() int

	// GetSignInRetryDelay is the linear backoff step between attempts.
	GetSignInRetryDelay() time.Duration

	// GetSignInTimeout bounds each individual sign-in attempt.
	GetSignInTimeout() time.Duration

	// GetSessionCookieTTL is the max-age of the session cookie.
	GetSessionCookieTTL() time.Duration

	// GetSessionSweepInterval is how often dead sessions are swept from
	// the store.
	GetSessionSweepInterval() time.Duration
}

type Lifecycle struct{}

var _ LifecycleConfig = Lifecycle{}

func (Lifecycle) GetDebounceWindow() time.Duration {
	return GetDurationEnv("SESSION_REFRESH_DEBOUNCE", 10*time.Second)
}

func (Lifecycle) GetRefreshTimeout() time.Duration {
	return GetDurationEnv("SESSION_REFRESH_TIMEOUT", 10*time.Second)
}

func (Lifecycle) GetSignInMaxRetries() int {
	return GetIntEnv("SIGNIN_MAX_RETRIES", 3)
}

func (Lifecycle) GetSignInRetryDelay() time.Duration {
	return GetDurationEnv("SIGNIN_RETRY_DELAY", time.Second)
}

func (Lifecycle) GetSignInTimeout() time.Duration {
	return GetDurationEnv("SIGNIN_TIMEOUT", 10*time.Second)
}

func (Lifecycle) GetSessionCookieTTL() time.Duration {
	return GetDurationEnv("SESSION_COOKIE_TTL", 8*time.Hour)
}

func (Lifecycle) GetSessionSweepInterval() time.Duration {
	return GetDurationEnv("SESSION_SWEEP_INTERVAL", 10*time.Minute)
}
