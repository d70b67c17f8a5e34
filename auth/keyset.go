package auth

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/toolgate/observe"
	"github.com/jonwraymond/toolgate/resilience"
)

// maxKeySetBytes bounds the size of a fetched JWKS document.
const maxKeySetBytes = 1 << 20

var errKeySetDecode = errors.New("decode key set")

// KeySetConfig configures a KeySet.
type KeySetConfig struct {
	// URL is the JWKS endpoint URL.
	URL string

	// KeyTTL is how long a fetched key is trusted before it is refreshed.
	// Default: 1 hour
	KeyTTL time.Duration

	// MaxKeys bounds the number of retained keys. The oldest are evicted first.
	// Default: 64
	MaxKeys int

	// HTTPClient is the HTTP client to use for requests.
	// If nil, a default client with 30s timeout is used.
	HTTPClient *http.Client

	// Executor wraps every fetch. If nil, fetches are retried three times with
	// exponential backoff behind a circuit breaker and a 10s attempt timeout.
	Executor *resilience.Executor

	// MissLimiter, when set, limits refetches caused by unknown key ids once
	// the set has been populated. A limited miss fails with ErrKeyNotFound.
	MissLimiter *resilience.RateLimiter

	Logger  observe.Logger
	Metrics observe.Metrics
	Tracer  observe.Tracer

	// Now is the clock. Default: time.Now.
	Now func() time.Time
}

// SigningKey is one public key of the remote key set.
type SigningKey struct {
	KeyID     string
	Algorithm string
	Key       *rsa.PublicKey
	FetchedAt time.Time
}

// KeySet fetches and caches the signing keys of a JWKS endpoint.
//
// Keys are fetched lazily on the first miss for a key id. Every signing key
// in the fetched document is cached, not just the requested one. Concurrent
// misses share one fetch.
//
// Contract:
//   - Concurrency: safe for concurrent use.
//   - Errors: ErrKeyNotFound when the key id is absent after a fetch,
//     ErrKeySetUnavailable when the fetch itself failed.
type KeySet struct {
	config KeySetConfig

	mu         sync.RWMutex
	keys       map[string]*SigningKey
	generation uint64 // incremented by every successful fetch
	lastFetch  time.Time
	lastErr    error
	group      singleflight.Group
}

// NewKeySet creates a KeySet for the given endpoint.
func NewKeySet(config KeySetConfig) *KeySet {
	if config.KeyTTL <= 0 {
		config.KeyTTL = time.Hour
	}
	if config.MaxKeys <= 0 {
		config.MaxKeys = 64
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{
			Timeout: 30 * time.Second,
		}
	}
	if config.Logger == nil {
		config.Logger = observe.NopLogger()
	}
	if config.Executor == nil {
		config.Executor = defaultFetchExecutor(config.Logger, config.URL)
	}
	if config.Metrics == nil {
		config.Metrics = observe.NopMetrics()
	}
	if config.Tracer == nil {
		config.Tracer = observe.NopTracer()
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &KeySet{
		config: config,
		keys:   make(map[string]*SigningKey),
	}
}

func defaultFetchExecutor(logger observe.Logger, url string) *resilience.Executor {
	return resilience.NewExecutor(
		resilience.WithCircuitBreaker(resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			MaxFailures:  5,
			ResetTimeout: 30 * time.Second,
			OnStateChange: func(from, to resilience.State) {
				logger.Warn(context.Background(), "key set circuit "+to.String(),
					observe.Field{Key: "url", Value: url},
					observe.Field{Key: "from", Value: from.String()},
				)
			},
		})),
		resilience.WithRetry(resilience.NewRetry(resilience.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     2 * time.Second,
			Jitter:       true,
			RetryIf:      retryableFetchError,
			OnRetry: func(attempt int, err error, delay time.Duration) {
				logger.Debug(context.Background(), "key set fetch retry",
					observe.Field{Key: "attempt", Value: attempt},
					observe.Field{Key: "delay", Value: delay.String()},
					observe.Field{Key: "error", Value: err},
				)
			},
		})),
		resilience.WithTimeout(10*time.Second),
	)
}

func retryableFetchError(err error) bool {
	return resilience.IsRetryable(err) && !errors.Is(err, errKeySetDecode)
}

// SigningKey resolves the key named by the unverified kid header of token.
func (k *KeySet) SigningKey(ctx context.Context, token *jwt.Token) (*SigningKey, error) {
	kid, _ := token.Header["kid"].(string)
	return k.Lookup(ctx, kid)
}

// Lookup returns the key with the given id, fetching the key set on a miss.
// An empty kid matches only when the set holds exactly one key.
func (k *KeySet) Lookup(ctx context.Context, kid string) (*SigningKey, error) {
	now := k.config.Now()

	k.mu.RLock()
	cached := k.lookupLocked(kid)
	populated := !k.lastFetch.IsZero()
	seen := k.generation
	k.mu.RUnlock()

	if cached != nil && k.fresh(cached, now) {
		return cached, nil
	}

	if cached == nil && populated && k.config.MissLimiter != nil && !k.config.MissLimiter.Allow() {
		k.config.Logger.Debug(ctx, "key set refetch rate limited", observe.Field{Key: "kid", Value: kid})
		return nil, ErrKeyNotFound
	}

	k.config.Logger.Debug(ctx, "key set miss", observe.Field{Key: "kid", Value: kid})
	if err := k.refreshShared(ctx, seen, false); err != nil {
		if cached != nil {
			k.config.Logger.Warn(ctx, "key set refresh failed, using stale key",
				observe.Field{Key: "kid", Value: cached.KeyID},
				observe.Field{Key: "error", Value: err},
			)
			return cached, nil
		}
		return nil, err
	}

	k.mu.RLock()
	key := k.lookupLocked(kid)
	k.mu.RUnlock()

	if key == nil {
		return nil, ErrKeyNotFound
	}
	return key, nil
}

// Refresh fetches the key set now, regardless of cached state.
func (k *KeySet) Refresh(ctx context.Context) error {
	return k.refreshShared(ctx, 0, true)
}

// Len returns the number of cached keys.
func (k *KeySet) Len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.keys)
}

// LastFetch returns the time of the last successful fetch and the error of
// the last failed one, if it failed after that.
func (k *KeySet) LastFetch() (time.Time, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.lastFetch, k.lastErr
}

// Fresh reports whether at least one cached key is within its TTL.
func (k *KeySet) Fresh() bool {
	now := k.config.Now()
	k.mu.RLock()
	defer k.mu.RUnlock()
	for _, key := range k.keys {
		if k.fresh(key, now) {
			return true
		}
	}
	return false
}

func (k *KeySet) fresh(key *SigningKey, now time.Time) bool {
	return now.Sub(key.FetchedAt) < k.config.KeyTTL
}

// lookupLocked finds a key by ID. Caller must hold at least RLock.
func (k *KeySet) lookupLocked(kid string) *SigningKey {
	if kid == "" {
		if len(k.keys) != 1 {
			return nil
		}
		for _, key := range k.keys {
			return key
		}
	}
	return k.keys[kid]
}

// refreshShared collapses concurrent refreshes into one fetch. Unless force
// is set, the fetch is skipped when another one has completed since the
// caller observed generation seen. The fetch ignores the cancellation of
// whichever caller started it; each caller stops waiting when its ctx ends.
func (k *KeySet) refreshShared(ctx context.Context, seen uint64, force bool) error {
	ch := k.group.DoChan("fetch", func() (any, error) {
		if !force {
			k.mu.RLock()
			current := k.generation
			k.mu.RUnlock()
			if current != seen {
				return nil, nil
			}
		}
		return nil, k.fetch(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrKeySetUnavailable, ctx.Err())
	case res := <-ch:
		return res.Err
	}
}

func (k *KeySet) fetch(ctx context.Context) error {
	ctx, span := k.config.Tracer.StartSpan(ctx, observe.SpanKeyFetch, trace.SpanKindClient,
		attribute.String("url.full", k.config.URL))
	start := time.Now()

	var fetched []*SigningKey
	err := k.config.Executor.Execute(ctx, func(ctx context.Context) error {
		var err error
		fetched, err = k.download(ctx)
		return err
	})

	k.config.Tracer.EndSpan(span, err)
	k.config.Metrics.RecordKeyFetch(ctx, time.Since(start), err)

	if err != nil {
		k.mu.Lock()
		k.lastErr = err
		k.mu.Unlock()
		k.config.Logger.Warn(ctx, "key set fetch failed", observe.Field{Key: "error", Value: err})
		return fmt.Errorf("%w: %v", ErrKeySetUnavailable, err)
	}

	k.store(fetched)
	k.config.Logger.Debug(ctx, "key set fetched", observe.Field{Key: "keys", Value: len(fetched)})
	return nil
}

func (k *KeySet) store(fetched []*SigningKey) {
	now := k.config.Now()

	k.mu.Lock()
	defer k.mu.Unlock()

	next := make(map[string]*SigningKey, len(fetched)+len(k.keys))
	for kid, key := range k.keys {
		if k.fresh(key, now) {
			next[kid] = key
		}
	}
	for _, key := range fetched {
		key.FetchedAt = now
		next[key.KeyID] = key
	}

	if len(next) > k.config.MaxKeys {
		ordered := make([]*SigningKey, 0, len(next))
		for _, key := range next {
			ordered = append(ordered, key)
		}
		sort.Slice(ordered, func(i, j int) bool {
			return ordered[i].FetchedAt.Before(ordered[j].FetchedAt)
		})
		for _, key := range ordered[:len(ordered)-k.config.MaxKeys] {
			delete(next, key.KeyID)
		}
	}

	k.keys = next
	k.generation++
	k.lastFetch = now
	k.lastErr = nil
}

// download fetches and parses the JWKS document.
func (k *KeySet) download(ctx context.Context) ([]*SigningKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.config.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := k.config.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch JWKS: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &resilience.StatusError{Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxKeySetBytes))
	if err != nil {
		return nil, fmt.Errorf("read JWKS: %w", err)
	}

	set, err := jwk.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errKeySetDecode, err)
	}

	return signingKeys(set), nil
}

// signingKeys extracts the RSA signature keys of set. Encryption keys and
// other key types are skipped.
func signingKeys(set jwk.Set) []*SigningKey {
	keys := make([]*SigningKey, 0, set.Len())
	for i := 0; i < set.Len(); i++ {
		key, ok := set.Key(i)
		if !ok {
			continue
		}
		if key.KeyType() != jwa.RSA {
			continue
		}
		if use := key.KeyUsage(); use != "" && use != string(jwk.ForSignature) {
			continue
		}

		var raw any
		if err := key.Raw(&raw); err != nil {
			continue
		}
		pub, ok := raw.(*rsa.PublicKey)
		if !ok {
			continue
		}

		alg := ""
		if key.Algorithm() != nil {
			alg = key.Algorithm().String()
		}
		keys = append(keys, &SigningKey{
			KeyID:     key.KeyID(),
			Algorithm: alg,
			Key:       pub,
		})
	}
	return keys
}
