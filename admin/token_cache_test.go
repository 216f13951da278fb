package admin_test

import (
	"context"
	"testing"
	"time"

	"github.com/opsdeck/console-auth/admin"
	"github.com/opsdeck/console-auth/provider"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestTokenCache(t *testing.T) {
	now := time.Now()
	grants := 0
	grant := func(context.Context) (*provider.TokenSet, error) {
		grants++
		return &provider.TokenSet{
			AccessToken: "admin-token",
			ExpiresAt:   now.Add(time.Minute),
		}, nil
	}

	cache, err := admin.NewTokenCache(grant, admin.WithCacheNowTime(func() time.Time { return now }))
	require.NoError(t, err)

	tok, err := cache.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "admin-token", tok)
	require.Equal(t, 1, grants)

	// Cached until the skew window; no second grant.
	tok, err = cache.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "admin-token", tok)
	require.Equal(t, 1, grants)
}

func TestTokenCacheRefreshesNearExpiry(t *testing.T) {
	now := time.Now()
	grants := 0
	grant := func(context.Context) (*provider.TokenSet, error) {
		grants++
		return &provider.TokenSet{
			AccessToken: "admin-token",
			ExpiresAt:   now.Add(time.Minute),
		}, nil
	}

	cache, err := admin.NewTokenCache(grant, admin.WithCacheNowTime(func() time.Time { return now }))
	require.NoError(t, err)

	_, err = cache.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, grants)

	// Step the clock inside the skew of expiry; the next call re-grants.
	now = now.Add(time.Minute - 10*time.Second)
	_, err = cache.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, grants)
}

func TestTokenCacheInvalidate(t *testing.T) {
	grants := 0
	grant := func(context.Context) (*provider.TokenSet, error) {
		grants++
		return &provider.TokenSet{
			AccessToken: "admin-token",
			ExpiresAt:   time.Now().Add(time.Minute),
		}, nil
	}

	cache, err := admin.NewTokenCache(grant)
	require.NoError(t, err)

	_, err = cache.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, grants)

	cache.Invalidate()

	_, err = cache.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, grants)
}

func TestTokenCacheGrantFailure(t *testing.T) {
	cache, err := admin.NewTokenCache(func(context.Context) (*provider.TokenSet, error) {
		return nil, errors.New("provider unreachable")
	})
	require.NoError(t, err)

	_, err = cache.Token(context.Background())
	require.Error(t, err)
}

func TestNewTokenCacheRequiresGrant(t *testing.T) {
	_, err := admin.NewTokenCache(nil)
	require.Error(t, err)
}
