// Package secret resolves credential-bearing configuration values.
//
// A value may reference the environment with ${VAR}, where an unset
// variable is an error, or be a secret reference in its entirety:
//
//	secretref:env:REDIS_PASSWORD
//	secretref:file:/var/run/secrets/redis/password
package secret
