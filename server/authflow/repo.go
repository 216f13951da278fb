// Package authflow tracks in-flight interactive sign-ins between the
// redirect to the identity provider and the callback: the state parameter,
// PKCE verifier, nonce, and where to send the user afterwards.
package authflow

import "time"

// StateTTL is how long a pending sign-in stays redeemable. A user parked on
// the provider's login form for longer starts over.
const StateTTL = 10 * time.Minute

type State struct {
	CodeVerifier string
	Nonce        string
	ReturnURL    string
	CreatedAt    time.Time
}

type Repo interface {
	Upsert(state string, flowState *State) error
	Get(state string) (*State, error)
	Delete(state string) error
}
