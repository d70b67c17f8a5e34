package secret

import (
	"context"
	"fmt"
	"strings"
)

// RefPrefix marks a configuration value that names a secret instead of
// holding it: secretref:<provider>:<ref>.
const RefPrefix = "secretref:"

// Resolver turns configuration values into secrets. A value that is a
// secret reference is looked up with the named provider; any other value
// has its ${VAR} references expanded strictly.
type Resolver struct {
	providers map[string]Provider
	strict    bool
}

// NewResolver creates a Resolver. With strict set, a reference that
// resolves to the empty string is an error.
func NewResolver(strict bool, providers ...Provider) *Resolver {
	r := &Resolver{providers: make(map[string]Provider, len(providers)), strict: strict}
	for _, p := range providers {
		if p != nil {
			r.providers[p.Name()] = p
		}
	}
	return r
}

// DefaultResolver is strict and knows the env and file providers.
func DefaultResolver() *Resolver {
	return NewResolver(true, EnvProvider{}, FileProvider{})
}

// ResolveValue resolves one configuration value.
func (r *Resolver) ResolveValue(ctx context.Context, value string) (string, error) {
	expanded, err := ExpandEnvStrict(value)
	if err != nil {
		return "", err
	}
	name, ref, ok := ParseSecretRef(expanded)
	if !ok {
		return expanded, nil
	}

	p, ok := r.providers[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	v, err := p.Resolve(ctx, ref)
	if err != nil {
		return "", err
	}
	if r.strict && v == "" {
		return "", fmt.Errorf("%w: %s:%s", ErrEmptySecret, name, ref)
	}
	return v, nil
}

// ResolveFields resolves each non-empty field in place and stops at the
// first failure.
func (r *Resolver) ResolveFields(ctx context.Context, fields ...*string) error {
	for _, f := range fields {
		if f == nil || *f == "" {
			continue
		}
		v, err := r.ResolveValue(ctx, *f)
		if err != nil {
			return err
		}
		*f = v
	}
	return nil
}

// ParseSecretRef splits secretref:<provider>:<ref>. The ref may itself
// contain colons.
func ParseSecretRef(value string) (provider, ref string, ok bool) {
	rest, found := strings.CutPrefix(value, RefPrefix)
	if !found {
		return "", "", false
	}
	provider, ref, ok = strings.Cut(rest, ":")
	if !ok || provider == "" || ref == "" {
		return "", "", false
	}
	return provider, ref, true
}
