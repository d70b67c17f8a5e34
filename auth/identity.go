package auth

import (
	"sort"
	"strings"
	"time"
)

// ScopeSet is the set of scopes granted to a token.
type ScopeSet map[string]struct{}

// ParseScopes splits a whitespace-delimited scope string into a set.
func ParseScopes(s string) ScopeSet {
	fields := strings.Fields(s)
	set := make(ScopeSet, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// Has reports whether scope is in the set.
func (s ScopeSet) Has(scope string) bool {
	_, ok := s[scope]
	return ok
}

// List returns the scopes in sorted order.
func (s ScopeSet) List() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// String joins the scopes with single spaces, sorted.
func (s ScopeSet) String() string {
	return strings.Join(s.List(), " ")
}

// Identity is the result of a successful token verification.
//
// It is produced fresh for every call to Verify and is never cached.
type Identity struct {
	// ClientID is the calling application (azp, appid or sub).
	ClientID string

	// Subject is the sub claim.
	Subject string

	// TenantID is the tid claim, if present.
	TenantID string

	// Scopes are the delegated scopes from the scp claim.
	Scopes ScopeSet

	// ExpiresAt is the exp claim.
	ExpiresAt time.Time

	// IssuedAt is the iat claim, zero if absent.
	IssuedAt time.Time

	// RawToken is the verified token as presented.
	RawToken string

	// Claims contains the raw claims from the token.
	Claims map[string]any
}

// HasScope checks if the identity holds a specific scope.
func (id *Identity) HasScope(scope string) bool {
	if id == nil {
		return false
	}
	return id.Scopes.Has(scope)
}

// IsExpired checks if the identity has expired at now.
func (id *Identity) IsExpired(now time.Time) bool {
	if id.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(id.ExpiresAt)
}
