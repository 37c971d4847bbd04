// Package cache stores inferred tables keyed by a fingerprint of the source
// that produced them, so repeated schema and data requests for the same URL
// skip the fetch and the inference pass.
//
// Two backends exist: an in-process memory cache bounded by entry count, and
// a pebble-backed cache that survives restarts.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/JonMunkholm/csvwdc/internal/config"
	"github.com/JonMunkholm/csvwdc/internal/infer"
)

const (
	BackendMemory = "memory"
	BackendPebble = "pebble"
)

// ErrClosed is returned by operations on a closed cache.
var ErrClosed = errors.New("cache closed")

// Cache stores inferred results by fingerprint.
type Cache interface {
	// Get returns the cached result for key. ok is false on a miss or when
	// the entry has expired.
	Get(key string) (res *infer.Result, ok bool, err error)

	Put(key string, res *infer.Result) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) error

	Close() error
}

// Fingerprint hashes the identifying fields of a source into a hex key.
// Fields are length-prefixed so ("ab","c") and ("a","bc") differ.
func Fingerprint(fields ...string) string {
	h := sha256.New()
	for _, f := range fields {
		fmt.Fprintf(h, "%d:%s;", len(f), f)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// New opens the backend named by cfg.Backend.
func New(cfg config.CacheConfig) (Cache, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", BackendMemory:
		return NewMemory(cfg.MaxEntries, cfg.TTL), nil
	case BackendPebble:
		return OpenPebble(cfg.Dir, cfg.TTL)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

// expired reports whether an entry stamped at expiresAt is stale. A zero
// expiry never expires.
func expired(expiresAt, now time.Time) bool {
	return !expiresAt.IsZero() && !now.Before(expiresAt)
}

func expiry(ttl time.Duration, now time.Time) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}
