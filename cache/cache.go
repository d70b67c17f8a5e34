package cache

import (
	"context"
	"errors"
	"strings"
	"time"
)

// MaxKeyLength bounds backend keys.
const MaxKeyLength = 512

var (
	ErrNotFound   = errors.New("cache: entry not found")
	ErrInvalidKey = errors.New("cache: key is invalid")
	ErrKeyTooLong = errors.New("cache: key exceeds max length")
)

// Cache stores opaque byte values with a per-entry expiry. Both the
// in-process LRU and the Redis backend implement it.
//
// Contract:
//   - Concurrency: safe for concurrent use.
//   - Get returns ErrNotFound for a missing or expired entry and values
//     byte for byte as stored.
//   - Set with a non-positive ttl stores nothing and drops any prior value.
//   - Delete of a missing key succeeds.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// ValidateKey rejects blank keys, keys with line breaks and keys longer
// than MaxKeyLength.
func ValidateKey(key string) error {
	switch {
	case len(key) > MaxKeyLength:
		return ErrKeyTooLong
	case strings.TrimSpace(key) == "", strings.ContainsAny(key, "\r\n"):
		return ErrInvalidKey
	}
	return nil
}
