// Package token decodes access tokens issued by the external identity
// provider and derives the console's view of a user's identity from them.
//
// Tokens are parsed without signature verification: this service only ever
// receives tokens directly from the provider over TLS, so signature trust is
// delegated to the issuing side. Nothing in this package performs network IO.
package token

import (
	"time"
)

// Claims is the decoded payload of a provider-issued access token, reduced
// to the fields the console cares about. Instances are immutable once
// returned from Decode.
type Claims struct {
	// Subject is the provider's stable user identifier ("sub").
	Subject string

	// Username is the login/display name ("preferred_username"). May be
	// empty, the provider does not guarantee it on every token.
	Username string

	// IssuedAt and ExpiresAt are the "iat" and "exp" claims. ExpiresAt is
	// always set; Decode rejects tokens without it.
	IssuedAt  time.Time
	ExpiresAt time.Time

	// RealmRoles are the realm-wide roles ("realm_access.roles").
	RealmRoles []string

	// ResourceRoles maps a client/resource name to the roles scoped to it
	// ("resource_access.{client}.roles").
	ResourceRoles map[string][]string
}

// ExpiresIn reports how long the token remains valid relative to now.
// Negative for already-expired tokens.
func (c *Claims) ExpiresIn(now time.Time) time.Duration {
	return c.ExpiresAt.Sub(now)
}
