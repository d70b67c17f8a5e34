// Package session maps caller-chosen session ids to raw bearer tokens.
//
// Entries expire after the policy TTL or at the token's own expiry,
// whichever comes first. Each entry belongs to the bearer token bound to
// the context that stored it. The table is a cache, not durable storage.
package session
