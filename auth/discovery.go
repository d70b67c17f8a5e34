package auth

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
)

// DiscoverKeySetURL resolves the jwks_uri of issuer from its OpenID
// Connect discovery document. The document's issuer must equal issuer.
func DiscoverKeySetURL(ctx context.Context, issuer string, client *http.Client) (string, error) {
	if client != nil {
		ctx = oidc.ClientContext(ctx, client)
	}
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return "", fmt.Errorf("%w: discovery: %v", ErrKeySetUnavailable, err)
	}

	var meta struct {
		JWKSURL string `json:"jwks_uri"`
	}
	if err := provider.Claims(&meta); err != nil {
		return "", fmt.Errorf("%w: discovery: %v", ErrKeySetUnavailable, err)
	}
	if meta.JWKSURL == "" {
		return "", fmt.Errorf("%w: discovery document has no jwks_uri", ErrKeySetUnavailable)
	}
	return meta.JWKSURL, nil
}
