package auth

import (
	"context"
)

// Context keys for auth-related values.
type contextKey int

const (
	tokenKey contextKey = iota
	identityKey
)

// WithToken returns a new context carrying the raw bearer token of the
// request being handled. An empty token leaves ctx unchanged.
func WithToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, tokenKey, token)
}

// WithoutToken returns a context that carries no bearer token, even when
// ctx does. Other values of ctx are kept.
func WithoutToken(ctx context.Context) context.Context {
	if _, ok := TokenFromContext(ctx); !ok {
		return ctx
	}
	return context.WithValue(ctx, tokenKey, "")
}

// TokenFromContext retrieves the bearer token bound to ctx.
func TokenFromContext(ctx context.Context) (string, bool) {
	tok, ok := ctx.Value(tokenKey).(string)
	return tok, ok && tok != ""
}

// WithIdentity returns a new context with the given verified identity attached.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext retrieves the identity from the context.
// Returns nil if no identity is present.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey).(*Identity)
	return id
}

// ClientIDFromContext retrieves the verified client id from the context.
// Returns empty string if no identity is present.
func ClientIDFromContext(ctx context.Context) string {
	id := IdentityFromContext(ctx)
	if id == nil {
		return ""
	}
	return id.ClientID
}
