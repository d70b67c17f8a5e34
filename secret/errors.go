package secret

import "errors"

// Sentinel errors.
var (
	ErrMissingEnv      = errors.New("secret: missing environment variable")
	ErrUnknownProvider = errors.New("secret: provider not registered")
	ErrEmptySecret     = errors.New("secret: resolved to empty value")
	ErrNotFound        = errors.New("secret: not found")
)
