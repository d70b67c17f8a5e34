package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"

	"github.com/jonwraymond/toolgate/resilience"
)

const (
	testIssuerURL = "https://login.example.test/tenant-1/v2.0"
	testAudience  = "api-client-id"
)

// testIssuer is a fake identity provider serving a JWKS document and
// minting RS256 tokens.
type testIssuer struct {
	t      *testing.T
	server *httptest.Server

	mu        sync.Mutex
	keys      map[string]*rsa.PrivateKey
	published []string

	fetches atomic.Int32
	// failures is the number of upcoming fetches answered with status.
	failures atomic.Int32
	status   atomic.Int32
}

func newTestIssuer(t *testing.T, kids ...string) *testIssuer {
	t.Helper()
	iss := &testIssuer{t: t, keys: make(map[string]*rsa.PrivateKey)}
	for _, kid := range kids {
		iss.addKey(kid)
	}
	iss.server = httptest.NewServer(http.HandlerFunc(iss.serveJWKS))
	t.Cleanup(iss.server.Close)
	return iss
}

func (i *testIssuer) serveJWKS(w http.ResponseWriter, _ *http.Request) {
	i.fetches.Add(1)
	if i.failures.Load() > 0 {
		i.failures.Add(-1)
		w.WriteHeader(int(i.status.Load()))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(i.jwks())
}

// failNext makes the next n fetches fail with status.
func (i *testIssuer) failNext(n int, status int) {
	i.status.Store(int32(status))
	i.failures.Store(int32(n))
}

func (i *testIssuer) addKey(kid string) {
	i.t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		i.t.Fatalf("GenerateKey() error = %v", err)
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.keys[kid] = priv
	i.published = append(i.published, kid)
}

func (i *testIssuer) jwks() []byte {
	i.mu.Lock()
	defer i.mu.Unlock()

	set := jwk.NewSet()
	for _, kid := range i.published {
		key, err := jwk.FromRaw(&i.keys[kid].PublicKey)
		if err != nil {
			i.t.Errorf("FromRaw() error = %v", err)
			continue
		}
		_ = key.Set(jwk.KeyIDKey, kid)
		_ = key.Set(jwk.KeyUsageKey, "sig")
		_ = key.Set(jwk.AlgorithmKey, jwa.RS256)
		_ = set.AddKey(key)
	}
	b, err := json.Marshal(set)
	if err != nil {
		i.t.Errorf("Marshal() error = %v", err)
	}
	return b
}

func (i *testIssuer) url() string { return i.server.URL }

// newStaticServer serves every request with handle and returns its URL.
func newStaticServer(t *testing.T, handle func(w http.ResponseWriter)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		handle(w)
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

// sign mints an RS256 token with the key kid.
func (i *testIssuer) sign(kid string, claims jwt.MapClaims) string {
	i.t.Helper()
	i.mu.Lock()
	priv := i.keys[kid]
	i.mu.Unlock()

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kid
	s, err := tok.SignedString(priv)
	if err != nil {
		i.t.Fatalf("SignedString() error = %v", err)
	}
	return s
}

func validClaims(now time.Time) jwt.MapClaims {
	return jwt.MapClaims{
		"iss": testIssuerURL,
		"aud": testAudience,
		"exp": now.Add(time.Hour).Unix(),
		"iat": now.Unix(),
		"sub": "user-1",
		"azp": "agent-client",
		"tid": "tenant-1",
		"scp": "MCP.Access tools.read",
	}
}

// fastExecutor retries quickly so failure tests finish promptly.
func fastExecutor() *resilience.Executor {
	return resilience.NewExecutor(
		resilience.WithRetry(resilience.NewRetry(resilience.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: time.Millisecond,
			MaxDelay:     2 * time.Millisecond,
			RetryIf:      retryableFetchError,
		})),
		resilience.WithTimeout(5*time.Second),
	)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingMetrics counts calls of interest.
type recordingMetrics struct {
	mu            sync.Mutex
	verifications map[string]int
	keyFetches    int
	dispatches    []int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{verifications: make(map[string]int)}
}

func (m *recordingMetrics) RecordVerification(_ context.Context, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verifications[outcome]++
}

func (m *recordingMetrics) RecordKeyFetch(context.Context, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keyFetches++
}

func (m *recordingMetrics) RecordDispatch(_ context.Context, status int, _ time.Duration, _ error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dispatches = append(m.dispatches, status)
}

func (m *recordingMetrics) RecordRequest(context.Context, string, string, int, time.Duration) {}

func (m *recordingMetrics) RecordToolCall(context.Context, string, time.Duration, error) {}
