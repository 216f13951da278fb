package admin

import (
	"context"
	"sync"
	"time"

	"github.com/opsdeck/console-auth/provider"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// DefaultExpirySkew is subtracted from the cached token's lifetime so a
// token is never handed out moments before it expires mid-request.
const DefaultExpirySkew = 30 * time.Second

// GrantFunc obtains a fresh service-account token, typically
// provider.Client.ClientCredentials bound to the admin client.
type GrantFunc func(ctx context.Context) (*provider.TokenSet, error)

// TokenCache holds one admin access token and its expiry, refreshing it on
// demand. It replaces the hidden mutable-singleton pattern: the cache is a
// value constructed in main and injected into whatever needs admin calls.
type TokenCache struct {
	mu        sync.Mutex
	token     string
	expiresAt time.Time
	skew      time.Duration
	grant     GrantFunc
	nowTime   func() time.Time // injectable for testing
}

// TokenCacheOption modifies a TokenCache instance.
type TokenCacheOption func(*TokenCache)

// WithCacheNowTime sets the now time function (primarily for testing).
func WithCacheNowTime(nowFunc func() time.Time) TokenCacheOption {
	return func(c *TokenCache) {
		c.nowTime = nowFunc
	}
}

// WithExpirySkew overrides the early-refresh margin.
func WithExpirySkew(skew time.Duration) TokenCacheOption {
	return func(c *TokenCache) {
		c.skew = skew
	}
}

// NewTokenCache creates an empty cache over the given grant.
func NewTokenCache(grant GrantFunc, options ...TokenCacheOption) (*TokenCache, error) {
	if grant == nil {
		return nil, errors.New("[NewTokenCache] grant func is required")
	}

	c := &TokenCache{
		skew:    DefaultExpirySkew,
		grant:   grant,
		nowTime: time.Now,
	}

	for _, opt := range options {
		opt(c)
	}

	return c, nil
}

// Token returns the cached admin token, fetching a new one when the cache is
// empty or within the skew of expiry. Concurrent callers coalesce on the
// mutex: one grant call, everyone gets its result.
func (c *TokenCache) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.nowTime().Add(c.skew).Before(c.expiresAt) {
		return c.token, nil
	}

	tokens, err := c.grant(ctx)
	if err != nil {
		return "", errors.Wrap(err, "[TokenCache.Token] obtaining admin token")
	}

	c.token = tokens.AccessToken
	c.expiresAt = tokens.ExpiresAt

	log.Debug().Time("expires_at", c.expiresAt).Msg("admin token refreshed")
	return c.token, nil
}

// Invalidate drops the cached token, forcing the next Token call to fetch a
// fresh one. Called when the admin API rejects the token early.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.expiresAt = time.Time{}
}
