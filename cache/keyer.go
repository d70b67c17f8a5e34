package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// Keyer derives cache keys from identifiers supplied by callers.
//
// Contract:
// - Determinism: the same inputs always produce the same key.
// - Concurrency: implementations must be safe for concurrent use.
type Keyer interface {
	// Key derives the key for id within namespace.
	Key(namespace, id string) string
}

// HashKeyer derives SHA-256 based keys so that caller-chosen identifiers
// never appear in the backend and always form valid keys.
type HashKeyer struct{}

// NewHashKeyer creates a new hash keyer.
func NewHashKeyer() *HashKeyer {
	return &HashKeyer{}
}

// Key returns <namespace>:<hash>, where hash is the first 32 hex
// characters of SHA-256(id).
func (k *HashKeyer) Key(namespace, id string) string {
	sum := sha256.Sum256([]byte(id))
	return namespace + ":" + hex.EncodeToString(sum[:16])
}

// Ensure HashKeyer implements Keyer
var _ Keyer = (*HashKeyer)(nil)
