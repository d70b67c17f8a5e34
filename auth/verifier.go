package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jonwraymond/toolgate/observe"
)

// Outcome classifies the result of a token verification.
//
// Outcomes are for logs and metrics only. Callers outside this package see a
// verified identity or nothing.
type Outcome int

const (
	OutcomeVerified Outcome = iota
	OutcomeMalformed
	OutcomeKeyNotFound
	OutcomeSignatureInvalid
	OutcomeAudienceMismatch
	OutcomeIssuerMismatch
	// OutcomeExpired also covers tokens that are not valid yet.
	OutcomeExpired
	OutcomeUnavailable
)

// String returns the outcome label used in logs and metrics.
func (o Outcome) String() string {
	switch o {
	case OutcomeVerified:
		return "verified"
	case OutcomeMalformed:
		return "malformed"
	case OutcomeKeyNotFound:
		return "key_not_found"
	case OutcomeSignatureInvalid:
		return "signature_invalid"
	case OutcomeAudienceMismatch:
		return "audience_mismatch"
	case OutcomeIssuerMismatch:
		return "issuer_mismatch"
	case OutcomeExpired:
		return "expired"
	case OutcomeUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Infrastructure reports whether the outcome is a failure of the verifier's
// dependencies rather than of the token.
func (o Outcome) Infrastructure() bool {
	return o == OutcomeUnavailable
}

func (o Outcome) err() error {
	switch o {
	case OutcomeMalformed:
		return ErrTokenMalformed
	case OutcomeKeyNotFound:
		return ErrKeyNotFound
	case OutcomeSignatureInvalid:
		return ErrSignatureInvalid
	case OutcomeAudienceMismatch:
		return ErrAudienceMismatch
	case OutcomeIssuerMismatch:
		return ErrIssuerMismatch
	case OutcomeExpired:
		return ErrTokenExpired
	case OutcomeUnavailable:
		return ErrKeySetUnavailable
	default:
		return nil
	}
}

// VerifierConfig configures a Verifier.
type VerifierConfig struct {
	// KeySet resolves signing keys. Required.
	KeySet *KeySet

	// Issuer is the exact expected iss claim. Required.
	Issuer string

	// Audience is the expected aud claim. Required.
	Audience string

	// Algorithm is the only accepted signing algorithm. It must be an RSA
	// algorithm.
	// Default: "RS256"
	Algorithm string

	// Leeway is the clock skew tolerated on exp and nbf.
	Leeway time.Duration

	Logger  observe.Logger
	Metrics observe.Metrics
	Tracer  observe.Tracer

	// Now is the clock. Default: time.Now.
	Now func() time.Time
}

// Verifier validates bearer tokens against a remote key set.
type Verifier struct {
	config VerifierConfig
	parser *jwt.Parser
}

// NewVerifier creates a Verifier. It fails with ErrNotConfigured when a
// required field is missing or the algorithm is not an RSA algorithm.
func NewVerifier(config VerifierConfig) (*Verifier, error) {
	if config.KeySet == nil || config.Issuer == "" || config.Audience == "" {
		return nil, ErrNotConfigured
	}
	if config.Algorithm == "" {
		config.Algorithm = jwt.SigningMethodRS256.Alg()
	}
	switch jwt.GetSigningMethod(config.Algorithm).(type) {
	case *jwt.SigningMethodRSA, *jwt.SigningMethodRSAPSS:
	default:
		return nil, fmt.Errorf("%w: unsupported algorithm %q", ErrNotConfigured, config.Algorithm)
	}
	if config.Logger == nil {
		config.Logger = observe.NopLogger()
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

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{config.Algorithm}),
		jwt.WithAudience(config.Audience),
		jwt.WithIssuer(config.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(config.Leeway),
		jwt.WithTimeFunc(config.Now),
	)

	return &Verifier{config: config, parser: parser}, nil
}

// Verify returns the identity carried by token, or nil if the token fails
// any check. The reason for a failure is never returned.
func (v *Verifier) Verify(ctx context.Context, token string) *Identity {
	id, _, _ := v.Check(ctx, token)
	return id
}

// Check verifies token and reports the outcome. The error wraps the sentinel
// matching the outcome and is nil only for OutcomeVerified.
func (v *Verifier) Check(ctx context.Context, token string) (*Identity, Outcome, error) {
	ctx, span := v.config.Tracer.StartSpan(ctx, observe.SpanVerify, trace.SpanKindInternal)

	id, outcome, err := v.check(ctx, token)

	span.SetAttributes(attribute.String("auth.outcome", outcome.String()))
	var spanErr error
	if outcome.Infrastructure() {
		spanErr = err
	}
	v.config.Tracer.EndSpan(span, spanErr)
	v.config.Metrics.RecordVerification(ctx, outcome.String())

	switch {
	case outcome == OutcomeVerified:
		v.config.Logger.Debug(ctx, "token verified", observe.Field{Key: "client_id", Value: id.ClientID})
	case outcome.Infrastructure():
		v.config.Logger.Warn(ctx, "token verification unavailable",
			observe.Field{Key: "outcome", Value: outcome.String()},
			observe.Field{Key: "error", Value: err},
		)
	default:
		v.config.Logger.Debug(ctx, "token rejected",
			observe.Field{Key: "outcome", Value: outcome.String()},
			observe.Field{Key: "error", Value: err},
		)
	}

	return id, outcome, err
}

func (v *Verifier) check(ctx context.Context, raw string) (*Identity, Outcome, error) {
	if raw == "" {
		return nil, OutcomeMalformed, ErrTokenMalformed
	}

	claims := jwt.MapClaims{}
	var keyErr error
	_, err := v.parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		key, err := v.config.KeySet.SigningKey(ctx, t)
		if err != nil {
			keyErr = err
			return nil, err
		}
		if key.Algorithm != "" && key.Algorithm != v.config.Algorithm {
			keyErr = fmt.Errorf("%w: key %q is for %s", ErrSignatureInvalid, key.KeyID, key.Algorithm)
			return nil, keyErr
		}
		return key.Key, nil
	})
	if err != nil {
		outcome := v.classify(err, keyErr, claims)
		return nil, outcome, fmt.Errorf("%w: %v", outcome.err(), err)
	}

	return v.identity(raw, claims), OutcomeVerified, nil
}

// classify maps a parse failure to an outcome. Claim failures are reported
// in check order: audience, issuer, then expiry.
func (v *Verifier) classify(err, keyErr error, claims jwt.MapClaims) Outcome {
	switch {
	case keyErr != nil:
		switch {
		case errors.Is(keyErr, ErrKeySetUnavailable):
			return OutcomeUnavailable
		case errors.Is(keyErr, ErrKeyNotFound):
			return OutcomeKeyNotFound
		default:
			return OutcomeSignatureInvalid
		}
	case errors.Is(err, jwt.ErrTokenInvalidClaims):
		aud, _ := claims.GetAudience()
		if !containsString(aud, v.config.Audience) {
			return OutcomeAudienceMismatch
		}
		if iss, _ := claims.GetIssuer(); iss != v.config.Issuer {
			return OutcomeIssuerMismatch
		}
		return OutcomeExpired
	case errors.Is(err, jwt.ErrTokenMalformed):
		return OutcomeMalformed
	default:
		return OutcomeSignatureInvalid
	}
}

func (v *Verifier) identity(raw string, claims jwt.MapClaims) *Identity {
	id := &Identity{
		RawToken: raw,
		Claims:   make(map[string]any, len(claims)),
	}
	for k, val := range claims {
		id.Claims[k] = val
	}

	id.Subject, _ = claims.GetSubject()
	id.TenantID = stringClaim(claims, "tid")
	id.ClientID = firstNonEmpty(stringClaim(claims, "azp"), stringClaim(claims, "appid"), id.Subject)

	switch scp := claims["scp"].(type) {
	case string:
		id.Scopes = ParseScopes(scp)
	case []any:
		id.Scopes = make(ScopeSet, len(scp))
		for _, s := range scp {
			if str, ok := s.(string); ok {
				id.Scopes[str] = struct{}{}
			}
		}
	default:
		id.Scopes = ParseScopes(stringClaim(claims, "scope"))
	}

	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		id.ExpiresAt = exp.Time
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		id.IssuedAt = iat.Time
	}
	return id
}

func stringClaim(claims jwt.MapClaims, name string) string {
	s, _ := claims[name].(string)
	return s
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func containsString(list []string, target string) bool {
	for _, s := range list {
		if s == target {
			return true
		}
	}
	return false
}
