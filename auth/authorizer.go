package auth

import (
	"context"
	"fmt"
	"strings"
)

// Authorizer decides whether a verified caller may invoke a tool. It
// returns nil to allow and an error matching ErrForbidden to deny.
type Authorizer interface {
	Authorize(ctx context.Context, req *AuthzRequest) error
}

// AuthzRequest is one tool invocation to authorize. Subject is nil when
// the tool server runs without authentication.
type AuthzRequest struct {
	Subject *Identity
	Tool    string
}

// AuthzError is a denied tool call.
type AuthzError struct {
	ClientID string
	Tool     string
	Missing  []string
}

func (e *AuthzError) Error() string {
	return fmt.Sprintf("client %q may not call %q: missing scopes %s",
		e.ClientID, e.Tool, strings.Join(e.Missing, ", "))
}

// Is makes every AuthzError match ErrForbidden.
func (e *AuthzError) Is(target error) bool {
	return target == ErrForbidden
}

// AllowAllAuthorizer permits every call.
type AllowAllAuthorizer struct{}

func (AllowAllAuthorizer) Authorize(context.Context, *AuthzRequest) error { return nil }

// ScopeAuthorizer requires scopes per tool. A tool listed in Tools needs
// all of its scopes; any other tool needs Default. An empty requirement
// lets every caller through, including an anonymous one.
type ScopeAuthorizer struct {
	Tools   map[string][]string
	Default []string
}

// Authorize reports every scope the subject lacks.
func (a *ScopeAuthorizer) Authorize(_ context.Context, req *AuthzRequest) error {
	required, ok := a.Tools[req.Tool]
	if !ok {
		required = a.Default
	}

	var missing []string
	for _, scope := range required {
		if !req.Subject.HasScope(scope) {
			missing = append(missing, scope)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	clientID := ""
	if req.Subject != nil {
		clientID = req.Subject.ClientID
	}
	return &AuthzError{ClientID: clientID, Tool: req.Tool, Missing: missing}
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context, req *AuthzRequest) error

func (f AuthorizerFunc) Authorize(ctx context.Context, req *AuthzRequest) error {
	return f(ctx, req)
}

var (
	_ Authorizer = AllowAllAuthorizer{}
	_ Authorizer = (*ScopeAuthorizer)(nil)
	_ Authorizer = AuthorizerFunc(nil)
)
