package auth

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"

	"github.com/jonwraymond/toolgate/resilience"
)

func newTestKeySet(iss *testIssuer, mutate func(*KeySetConfig)) *KeySet {
	cfg := KeySetConfig{
		URL:      iss.url(),
		Executor: fastExecutor(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return NewKeySet(cfg)
}

func TestKeySet_FetchesOnceForNewKeyID(t *testing.T) {
	iss := newTestIssuer(t, "kid-1", "kid-2")
	ks := newTestKeySet(iss, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		key, err := ks.Lookup(ctx, "kid-1")
		if err != nil {
			t.Fatalf("Lookup() error = %v", err)
		}
		if key.KeyID != "kid-1" || key.Algorithm != "RS256" {
			t.Errorf("key = %+v", key)
		}
	}
	if got := iss.fetches.Load(); got != 1 {
		t.Fatalf("fetches = %d, want 1", got)
	}

	// The whole set was cached by the first fetch.
	if _, err := ks.Lookup(ctx, "kid-2"); err != nil {
		t.Fatalf("Lookup(kid-2) error = %v", err)
	}
	if got := iss.fetches.Load(); got != 1 {
		t.Errorf("fetches after second kid = %d, want 1", got)
	}
	if ks.Len() != 2 {
		t.Errorf("Len() = %d, want 2", ks.Len())
	}
}

func TestKeySet_ConcurrentMissesShareOneFetch(t *testing.T) {
	iss := newTestIssuer(t, "kid-1")
	ks := newTestKeySet(iss, nil)

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ks.Lookup(context.Background(), "kid-1"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("Lookup() error = %v", err)
	}
	if got := iss.fetches.Load(); got != 1 {
		t.Errorf("fetches = %d, want 1", got)
	}
}

func TestKeySet_RotatedKeyFetchedOnMiss(t *testing.T) {
	iss := newTestIssuer(t, "kid-1")
	ks := newTestKeySet(iss, nil)
	ctx := context.Background()

	if _, err := ks.Lookup(ctx, "kid-1"); err != nil {
		t.Fatal(err)
	}
	iss.addKey("kid-2")

	if _, err := ks.Lookup(ctx, "kid-2"); err != nil {
		t.Fatalf("Lookup(kid-2) error = %v", err)
	}
	if got := iss.fetches.Load(); got != 2 {
		t.Errorf("fetches = %d, want 2", got)
	}
}

func TestKeySet_UnknownKeyID(t *testing.T) {
	iss := newTestIssuer(t, "kid-1")
	ks := newTestKeySet(iss, nil)

	_, err := ks.Lookup(context.Background(), "missing")
	if !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("Lookup() error = %v, want ErrKeyNotFound", err)
	}
	if errors.Is(err, ErrKeySetUnavailable) {
		t.Error("key-not-found must be distinguishable from unavailable")
	}
}

func TestKeySet_EmptyKeyID(t *testing.T) {
	t.Run("single key matches", func(t *testing.T) {
		ks := newTestKeySet(newTestIssuer(t, "only"), nil)
		key, err := ks.Lookup(context.Background(), "")
		if err != nil || key.KeyID != "only" {
			t.Fatalf("Lookup(\"\") = %v, %v", key, err)
		}
	})
	t.Run("ambiguous with several keys", func(t *testing.T) {
		ks := newTestKeySet(newTestIssuer(t, "a", "b"), nil)
		if _, err := ks.Lookup(context.Background(), ""); !errors.Is(err, ErrKeyNotFound) {
			t.Fatalf("Lookup(\"\") error = %v, want ErrKeyNotFound", err)
		}
	})
}

func TestKeySet_MissLimiter(t *testing.T) {
	iss := newTestIssuer(t, "kid-1")
	ks := newTestKeySet(iss, func(c *KeySetConfig) {
		c.MissLimiter = resilience.NewRateLimiter(resilience.RateLimiterConfig{Rate: 0.001, Burst: 1})
	})
	ctx := context.Background()

	// The first population is never limited.
	if _, err := ks.Lookup(ctx, "kid-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := ks.Lookup(ctx, "random-1"); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("error = %v, want ErrKeyNotFound", err)
	}
	if got := iss.fetches.Load(); got != 2 {
		t.Fatalf("fetches = %d, want 2", got)
	}

	if _, err := ks.Lookup(ctx, "random-2"); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("error = %v, want ErrKeyNotFound", err)
	}
	if got := iss.fetches.Load(); got != 2 {
		t.Errorf("rate-limited miss fetched: fetches = %d, want 2", got)
	}

	// Known keys are unaffected by the limiter.
	if _, err := ks.Lookup(ctx, "kid-1"); err != nil {
		t.Errorf("Lookup(kid-1) error = %v", err)
	}
}

func TestKeySet_TTL(t *testing.T) {
	iss := newTestIssuer(t, "kid-1")
	clock := newFakeClock()
	ks := newTestKeySet(iss, func(c *KeySetConfig) {
		c.KeyTTL = time.Minute
		c.Now = clock.Now
	})
	ctx := context.Background()

	if _, err := ks.Lookup(ctx, "kid-1"); err != nil {
		t.Fatal(err)
	}
	clock.Advance(30 * time.Second)
	if _, err := ks.Lookup(ctx, "kid-1"); err != nil {
		t.Fatal(err)
	}
	if got := iss.fetches.Load(); got != 1 {
		t.Fatalf("fetches within TTL = %d, want 1", got)
	}

	clock.Advance(time.Minute)
	if ks.Fresh() {
		t.Error("Fresh() = true after TTL")
	}
	if _, err := ks.Lookup(ctx, "kid-1"); err != nil {
		t.Fatal(err)
	}
	if got := iss.fetches.Load(); got != 2 {
		t.Errorf("fetches after TTL = %d, want 2", got)
	}
	if !ks.Fresh() {
		t.Error("Fresh() = false after refetch")
	}
}

func TestKeySet_StaleKeyUsedWhenRefreshFails(t *testing.T) {
	iss := newTestIssuer(t, "kid-1")
	clock := newFakeClock()
	ks := newTestKeySet(iss, func(c *KeySetConfig) {
		c.KeyTTL = time.Minute
		c.Now = clock.Now
	})
	ctx := context.Background()

	if _, err := ks.Lookup(ctx, "kid-1"); err != nil {
		t.Fatal(err)
	}
	clock.Advance(2 * time.Minute)
	iss.failNext(10, http.StatusServiceUnavailable)

	key, err := ks.Lookup(ctx, "kid-1")
	if err != nil {
		t.Fatalf("Lookup() error = %v, want stale key", err)
	}
	if key.KeyID != "kid-1" {
		t.Errorf("KeyID = %q", key.KeyID)
	}
	if _, lastErr := ks.LastFetch(); lastErr == nil {
		t.Error("LastFetch() error = nil after failed refresh")
	}
}

func TestKeySet_FetchFailures(t *testing.T) {
	tests := []struct {
		name        string
		failures    int
		status      int
		wantErr     error
		wantFetches int32
	}{
		{"transient 500 recovered by retry", 1, http.StatusInternalServerError, nil, 2},
		{"persistent 503 exhausts attempts", 10, http.StatusServiceUnavailable, ErrKeySetUnavailable, 3},
		{"404 is not retried", 10, http.StatusNotFound, ErrKeySetUnavailable, 1},
		{"429 is retried", 2, http.StatusTooManyRequests, nil, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			iss := newTestIssuer(t, "kid-1")
			iss.failNext(tt.failures, tt.status)
			metrics := newRecordingMetrics()
			ks := newTestKeySet(iss, func(c *KeySetConfig) { c.Metrics = metrics })

			_, err := ks.Lookup(context.Background(), "kid-1")
			if tt.wantErr == nil && err != nil {
				t.Fatalf("Lookup() error = %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("Lookup() error = %v, want %v", err, tt.wantErr)
			}
			if got := iss.fetches.Load(); got != tt.wantFetches {
				t.Errorf("fetches = %d, want %d", got, tt.wantFetches)
			}
			if metrics.keyFetches != 1 {
				t.Errorf("recorded fetches = %d, want 1", metrics.keyFetches)
			}
		})
	}
}

func TestKeySet_UndecodableDocumentNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := newStaticServer(t, func(w http.ResponseWriter) {
		calls.Add(1)
		_, _ = w.Write([]byte("not json"))
	})
	ks := NewKeySet(KeySetConfig{URL: srv, Executor: fastExecutor()})

	if _, err := ks.Lookup(context.Background(), "kid"); !errors.Is(err, ErrKeySetUnavailable) {
		t.Fatalf("Lookup() error = %v, want ErrKeySetUnavailable", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestKeySet_CallerCancellation(t *testing.T) {
	release := make(chan struct{})
	srv := newStaticServer(t, func(w http.ResponseWriter) {
		<-release
	})
	defer close(release)
	ks := NewKeySet(KeySetConfig{URL: srv, Executor: fastExecutor()})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := ks.Lookup(ctx, "kid"); !errors.Is(err, ErrKeySetUnavailable) {
		t.Fatalf("Lookup() error = %v, want ErrKeySetUnavailable", err)
	}
}

func TestKeySet_MaxKeys(t *testing.T) {
	iss := newTestIssuer(t, "a", "b", "c")
	ks := newTestKeySet(iss, func(c *KeySetConfig) { c.MaxKeys = 2 })

	if err := ks.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	if ks.Len() != 2 {
		t.Errorf("Len() = %d, want 2", ks.Len())
	}
}

func TestKeySet_Refresh(t *testing.T) {
	iss := newTestIssuer(t, "kid-1")
	ks := newTestKeySet(iss, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := ks.Refresh(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if got := iss.fetches.Load(); got != 2 {
		t.Errorf("fetches = %d, want 2", got)
	}
	last, err := ks.LastFetch()
	if last.IsZero() || err != nil {
		t.Errorf("LastFetch() = %v, %v", last, err)
	}
}

func TestSigningKeys_SkipsUnusableKeys(t *testing.T) {
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	set := jwk.NewSet()
	add := func(raw any, kid, use string) {
		k, err := jwk.FromRaw(raw)
		if err != nil {
			t.Fatal(err)
		}
		_ = k.Set(jwk.KeyIDKey, kid)
		if use != "" {
			_ = k.Set(jwk.KeyUsageKey, use)
		}
		_ = set.AddKey(k)
	}
	add(&rsaKey.PublicKey, "rsa-sig", "sig")
	add(&rsaKey.PublicKey, "rsa-nouse", "")
	add(&rsaKey.PublicKey, "rsa-enc", "enc")
	add(&ecKey.PublicKey, "ec-sig", "sig")

	keys := signingKeys(set)
	got := map[string]bool{}
	for _, k := range keys {
		got[k.KeyID] = true
	}
	if len(keys) != 2 || !got["rsa-sig"] || !got["rsa-nouse"] {
		t.Errorf("signingKeys() = %v, want rsa-sig and rsa-nouse", got)
	}
}
