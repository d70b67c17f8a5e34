package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	"github.com/jonwraymond/toolgate/auth"
	"github.com/jonwraymond/toolgate/cache"
	"github.com/jonwraymond/toolgate/config"
	"github.com/jonwraymond/toolgate/health"
	"github.com/jonwraymond/toolgate/observe"
	"github.com/jonwraymond/toolgate/resilience"
	"github.com/jonwraymond/toolgate/session"
)

// runtime is what every command needs before it builds its server.
type runtime struct {
	cfg    *config.Config
	obs    observe.Observer
	mw     *observe.Middleware
	logger observe.Logger
}

func newRuntime(ctx context.Context, v *viper.Viper, service string) (*runtime, error) {
	cfg, err := config.Load(ctx, v)
	if err != nil {
		return nil, err
	}
	obs, err := observe.NewObserver(ctx, cfg.ObserverConfig(service, Version))
	if err != nil {
		return nil, fmt.Errorf("observer: %w", err)
	}
	mw, err := observe.MiddlewareFromObserver(obs)
	if err != nil {
		_ = obs.Shutdown(ctx)
		return nil, fmt.Errorf("observer middleware: %w", err)
	}
	return &runtime{cfg: cfg, obs: obs, mw: mw, logger: obs.Logger()}, nil
}

func (r *runtime) shutdown(ctx context.Context) {
	if err := r.obs.Shutdown(ctx); err != nil {
		r.logger.Warn(ctx, "observer shutdown failed", observe.Field{Key: "error", Value: err})
	}
}

// newKeySet builds the signing key cache and warms it. A failed warm-up is
// logged; the first token with an unknown kid retries the fetch.
func (r *runtime) newKeySet(ctx context.Context) (*auth.KeySet, error) {
	a := r.cfg.Auth
	url := a.JWKSURL
	if a.Discover {
		var err error
		url, err = auth.DiscoverKeySetURL(ctx, a.Issuer, nil)
		if err != nil {
			return nil, err
		}
		r.logger.Info(ctx, "discovered key set", observe.Field{Key: "url", Value: url})
	}

	keys := auth.NewKeySet(auth.KeySetConfig{
		URL:    url,
		KeyTTL: a.KeyTTL,
		MissLimiter: resilience.NewRateLimiter(resilience.RateLimiterConfig{
			Rate:  1,
			Burst: 5,
		}),
		Logger:  r.logger,
		Metrics: r.mw.Metrics(),
		Tracer:  r.mw.Tracer(),
	})
	if err := keys.Refresh(ctx); err != nil {
		r.logger.Warn(ctx, "key set warm-up failed", observe.Field{Key: "error", Value: err})
	}
	return keys, nil
}

func (r *runtime) newVerifier(keys *auth.KeySet) (*auth.Verifier, error) {
	return auth.NewVerifier(auth.VerifierConfig{
		KeySet:   keys,
		Issuer:   r.cfg.Auth.Issuer,
		Audience: r.cfg.Auth.Audience,
		Logger:   r.logger,
		Metrics:  r.mw.Metrics(),
		Tracer:   r.mw.Tracer(),
	})
}

// newSessionStore builds the Session→Token table on the configured
// backend. The returned checker is nil for the in-memory backend.
func (r *runtime) newSessionStore(ctx context.Context) (*session.Store, health.Checker, func() error, error) {
	s := r.cfg.Session
	opts := session.Options{
		Policy: cache.Policy{DefaultTTL: s.TTL, MaxTTL: s.TTL},
		Logger: r.logger,
	}

	switch s.Backend {
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     s.RedisAddr,
			Password: s.RedisPassword,
		})
		backend := cache.NewRedisCache(client, "toolgate:")
		if err := backend.Ping(ctx); err != nil {
			_ = client.Close()
			return nil, nil, nil, fmt.Errorf("session backend %s: %w", s.RedisAddr, err)
		}
		return session.NewStore(backend, opts), health.PingChecker(backend), client.Close, nil
	case config.BackendMemory:
		return session.NewStore(cache.NewMemoryCache(s.MaxEntries), opts), nil, func() error { return nil }, nil
	default:
		return nil, nil, nil, errors.New("unknown session backend " + s.Backend)
	}
}
