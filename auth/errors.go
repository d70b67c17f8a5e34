package auth

import "errors"

// Sentinel errors for credential extraction and token verification.
var (
	// Gate errors
	ErrMissingToken    = errors.New("auth: missing bearer token")
	ErrMalformedHeader = errors.New("auth: malformed authorization header")

	// Key set errors
	ErrKeyNotFound       = errors.New("auth: signing key not found")
	ErrKeySetUnavailable = errors.New("auth: key set unavailable")

	// Verification errors
	ErrTokenMalformed    = errors.New("auth: token malformed")
	ErrSignatureInvalid  = errors.New("auth: signature invalid")
	ErrAudienceMismatch  = errors.New("auth: audience mismatch")
	ErrIssuerMismatch    = errors.New("auth: issuer mismatch")
	ErrTokenExpired      = errors.New("auth: token expired")
	ErrNotConfigured     = errors.New("auth: verifier not configured")

	// Authorization errors
	ErrForbidden = errors.New("auth: access denied")
)
