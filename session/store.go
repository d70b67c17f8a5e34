package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jonwraymond/toolgate/auth"
	"github.com/jonwraymond/toolgate/cache"
	"github.com/jonwraymond/toolgate/observe"
)

// DefaultID is used when a caller supplies no session id.
const DefaultID = "default"

const keyNamespace = "session"

// Sentinel errors.
var (
	ErrUnknownSession = errors.New("session: unknown session")
	ErrEmptyToken     = errors.New("session: empty token")
	ErrTokenExpired   = errors.New("session: token already expired")
)

// Options configures a Store.
type Options struct {
	// Policy bounds entry lifetimes. Default: cache.DefaultPolicy().
	Policy cache.Policy

	// Keyer derives backend keys. Default: cache.NewHashKeyer().
	Keyer cache.Keyer

	Logger observe.Logger

	// Now is the clock. Default: time.Now.
	Now func() time.Time
}

// Store is the Session→Token table.
//
// Entries are scoped to the bearer token bound to the calling context
// (auth.WithToken): a caller reads, replaces and deletes only the sessions
// it stored itself. Calls without a bound token share one unscoped table.
//
// Contract:
//   - Concurrency: safe for concurrent use if the backend is.
//   - Tokens are stored and returned byte for byte.
//   - Errors: Get returns ErrUnknownSession on a miss or an expired entry.
type Store struct {
	backend cache.Cache
	policy  cache.Policy
	keyer   cache.Keyer
	logger  observe.Logger
	now     func() time.Time
}

// NewStore creates a Store on backend.
func NewStore(backend cache.Cache, opts Options) *Store {
	if opts.Policy.DefaultTTL <= 0 {
		opts.Policy = cache.DefaultPolicy()
	}
	if opts.Keyer == nil {
		opts.Keyer = cache.NewHashKeyer()
	}
	if opts.Logger == nil {
		opts.Logger = observe.NopLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		backend: backend,
		policy:  opts.Policy,
		keyer:   opts.Keyer,
		logger:  opts.Logger,
		now:     opts.Now,
	}
}

// NormalizeID maps an empty id to DefaultID.
func NormalizeID(id string) string {
	if id == "" {
		return DefaultID
	}
	return id
}

// Put stores token under id, replacing any previous token.
//
// When token is a JWT carrying exp, the entry expires no later than exp.
// The token is not verified here.
func (s *Store) Put(ctx context.Context, id, token string) error {
	if token == "" {
		return ErrEmptyToken
	}
	id = NormalizeID(id)

	ttl := s.policy.EffectiveTTL(0)
	if exp, ok := tokenExpiry(token); ok {
		if ttl = s.policy.TTLUntil(s.now(), exp); ttl <= 0 {
			return ErrTokenExpired
		}
	}

	if err := s.backend.Set(ctx, s.key(ctx, id), []byte(token), ttl); err != nil {
		return fmt.Errorf("session: store: %w", err)
	}
	s.logger.Debug(ctx, "session token stored",
		observe.Field{Key: "session_id", Value: id},
		observe.Field{Key: "ttl", Value: ttl.String()},
	)
	return nil
}

// Get returns the token stored under id.
func (s *Store) Get(ctx context.Context, id string) (string, error) {
	b, err := s.backend.Get(ctx, s.key(ctx, NormalizeID(id)))
	if errors.Is(err, cache.ErrNotFound) {
		return "", ErrUnknownSession
	}
	if err != nil {
		return "", fmt.Errorf("session: load: %w", err)
	}
	return string(b), nil
}

// Delete removes the token stored under id.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.backend.Delete(ctx, s.key(ctx, NormalizeID(id))); err != nil {
		return fmt.Errorf("session: delete: %w", err)
	}
	return nil
}

// key hashes the owner's token together with id, so neither appears in the
// backend and ids chosen by different callers never collide.
func (s *Store) key(ctx context.Context, id string) string {
	owner, _ := auth.TokenFromContext(ctx)
	return s.keyer.Key(keyNamespace, owner+"\x00"+id)
}

// tokenExpiry reads exp from an unverified JWT. Opaque tokens report false.
func tokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
