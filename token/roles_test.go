package token_test

import (
	"testing"
	"time"

	"github.com/opsdeck/console-auth/token"
	"github.com/stretchr/testify/require"
)

func TestExtractRolesUnion(t *testing.T) {
	claims := &token.Claims{
		RealmRoles: []string{"viewer", "admin"},
		ResourceRoles: map[string][]string{
			"ops-console": {"dashboard-editor", "admin"},
			"metrics-api": {"query"},
		},
	}

	roles := token.ExtractRoles(claims)

	// Set union, deduplicated, order-independent.
	require.ElementsMatch(t, []string{"viewer", "admin", "dashboard-editor", "query"}, roles)
}

func TestExtractRolesDeterministicOrder(t *testing.T) {
	claims := &token.Claims{
		RealmRoles:    []string{"zulu", "alpha"},
		ResourceRoles: map[string][]string{"c": {"mike"}},
	}

	require.Equal(t, token.ExtractRoles(claims), token.ExtractRoles(claims))
}

func TestExtractRolesEmpty(t *testing.T) {
	require.Empty(t, token.ExtractRoles(&token.Claims{}))
	require.Empty(t, token.ExtractRoles(nil))
	require.NotNil(t, token.ExtractRoles(nil))
}

func TestExtractRolesMatchesDecodedToken(t *testing.T) {
	decoded, err := token.Decode(buildToken(t, standardClaims(time.Now().Add(time.Minute))))
	require.NoError(t, err)

	roles := token.ExtractRoles(decoded)
	require.ElementsMatch(t, []string{"viewer", "admin", "dashboard-editor", "query"}, roles)
}

func TestHasRole(t *testing.T) {
	roles := []string{"viewer", "admin"}

	require.True(t, token.HasRole(roles, "admin"))
	require.False(t, token.HasRole(roles, "editor"))
	require.False(t, token.HasRole(nil, "admin"))
}
