// Package authtest provides a fake token issuer for tests.
package authtest

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"

	"github.com/jonwraymond/toolgate/auth"
)

// Defaults used in minted tokens.
const (
	IssuerURL = "https://login.example.test/tenant-1/v2.0"
	Audience  = "api-client-id"
	KeyID     = "test-key"
)

// Issuer serves a JWKS document with one RSA key and mints tokens signed
// by it.
type Issuer struct {
	t      testing.TB
	key    *rsa.PrivateKey
	server *httptest.Server
}

// NewIssuer starts an Issuer that is closed when the test ends.
func NewIssuer(t testing.TB) *Issuer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	i := &Issuer{t: t, key: key}
	i.server = httptest.NewServer(http.HandlerFunc(i.serveJWKS))
	t.Cleanup(i.server.Close)
	return i
}

// JWKSURL is the key set endpoint.
func (i *Issuer) JWKSURL() string { return i.server.URL }

func (i *Issuer) serveJWKS(w http.ResponseWriter, _ *http.Request) {
	pub, err := jwk.FromRaw(&i.key.PublicKey)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	_ = pub.Set(jwk.KeyIDKey, KeyID)
	_ = pub.Set(jwk.KeyUsageKey, "sig")
	_ = pub.Set(jwk.AlgorithmKey, jwa.RS256)

	set := jwk.NewSet()
	_ = set.AddKey(pub)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(set)
}

// Claims returns valid claims for client, granting scopes.
func Claims(client, scopes string) jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss": IssuerURL,
		"aud": Audience,
		"exp": now.Add(time.Hour).Unix(),
		"iat": now.Unix(),
		"sub": "user-" + client,
		"azp": client,
		"tid": "tenant-1",
		"scp": scopes,
	}
}

// Token signs claims with the issuer's key.
func (i *Issuer) Token(claims jwt.MapClaims) string {
	i.t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = KeyID
	s, err := tok.SignedString(i.key)
	if err != nil {
		i.t.Fatalf("SignedString() error = %v", err)
	}
	return s
}

// Verifier returns a verifier that accepts this issuer's tokens.
func (i *Issuer) Verifier() *auth.Verifier {
	i.t.Helper()
	v, err := auth.NewVerifier(auth.VerifierConfig{
		KeySet:   auth.NewKeySet(auth.KeySetConfig{URL: i.JWKSURL()}),
		Issuer:   IssuerURL,
		Audience: Audience,
	})
	if err != nil {
		i.t.Fatalf("NewVerifier() error = %v", err)
	}
	return v
}
