package token

import "sort"

// ExtractRoles flattens realm roles and all resource role lists into a single
// deduplicated role set. The returned slice is sorted so callers get a stable
// value, but order carries no authorization meaning and must not be relied on.
func ExtractRoles(claims *Claims) []string {
	if claims == nil {
		return []string{}
	}

	set := make(map[string]struct{})
	for _, role := range claims.RealmRoles {
		set[role] = struct{}{}
	}
	for _, roles := range claims.ResourceRoles {
		for _, role := range roles {
			set[role] = struct{}{}
		}
	}

	flattened := make([]string, 0, len(set))
	for role := range set {
		flattened = append(flattened, role)
	}
	sort.Strings(flattened)
	return flattened
}

// HasRole reports whether the named role is present in a role set.
func HasRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
