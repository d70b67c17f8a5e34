// Package config loads toolgate settings from the environment, an optional
// YAML file and defaults, in that order of precedence.
//
// Entra-style issuer and key set URLs are derived from the tenant id when
// not set explicitly. Credential-bearing values may use ${VAR} or
// secretref: references, resolved at load time.
package config
