package token

import (
	"strings"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/opsdeck/console-auth/internal/utils"
	"github.com/pkg/errors"
)

// ErrMalformedToken indicates a token whose payload could not be parsed or
// which lacks the claims the console requires ("exp" and "sub").
var ErrMalformedToken = errors.New("malformed token")

// Decode parses the claims of a raw bearer token without verifying its
// signature. It never caches; callers decide whether and where to hold on to
// the result.
func Decode(rawToken string) (*Claims, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, errors.Wrap(ErrMalformedToken, "empty token")
	}

	unverifiedToken, _, err := jwtlib.NewParser().ParseUnverified(rawToken, jwtlib.MapClaims{})
	if err != nil {
		return nil, errors.Wrap(ErrMalformedToken, err.Error())
	}

	mapClaims, ok := unverifiedToken.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, errors.Wrap(ErrMalformedToken, "claims are not a JSON object")
	}

	exp, err := mapClaims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, errors.Wrap(ErrMalformedToken, "missing exp claim")
	}

	sub, err := mapClaims.GetSubject()
	if err != nil || sub == "" {
		return nil, errors.Wrap(ErrMalformedToken, "missing sub claim")
	}

	claims := &Claims{
		Subject:       sub,
		ExpiresAt:     exp.Time,
		RealmRoles:    realmRoles(mapClaims),
		ResourceRoles: resourceRoles(mapClaims),
	}

	if iat, err := mapClaims.GetIssuedAt(); err == nil && iat != nil {
		claims.IssuedAt = iat.Time
	}
	if username, ok := mapClaims["preferred_username"].(string); ok {
		claims.Username = username
	}

	return claims, nil
}

// realmRoles pulls "realm_access": {"roles": [...]} out of the raw claims.
func realmRoles(mapClaims jwtlib.MapClaims) []string {
	realmAccess, ok := mapClaims["realm_access"].(map[string]any)
	if !ok {
		return nil
	}
	roles, ok := realmAccess["roles"].([]any)
	if !ok {
		return nil
	}
	return utils.ToStringSlice(roles)
}

// resourceRoles pulls "resource_access": {"<client>": {"roles": [...]}} out
// of the raw claims.
func resourceRoles(mapClaims jwtlib.MapClaims) map[string][]string {
	resourceAccess, ok := mapClaims["resource_access"].(map[string]any)
	if !ok {
		return nil
	}

	byResource := make(map[string][]string, len(resourceAccess))
	for resource, v := range resourceAccess {
		entry, ok := v.(map[string]any)
		if !ok {
			continue
		}
		roles, ok := entry["roles"].([]any)
		if !ok {
			continue
		}
		byResource[resource] = utils.ToStringSlice(roles)
	}

	if len(byResource) == 0 {
		return nil
	}
	return byResource
}
