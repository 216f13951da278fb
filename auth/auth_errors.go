package auth

import "github.com/pkg/errors"

var (
	// ErrAuthTimeout means every sign-in attempt exceeded its per-attempt
	// timeout.
	ErrAuthTimeout = errors.New("sign-in timed out")

	// ErrAuthFailed means the identity provider rejected the sign-in (bad
	// credentials, disabled account). Retrying with the same credentials is
	// pointless, so the retry budget is not consumed.
	ErrAuthFailed = errors.New("sign-in rejected by identity provider")

	// ErrSignOutFailed means the provider-side sign-out call failed and no
	// redirect fallback was requested.
	ErrSignOutFailed = errors.New("sign-out failed")
)
