// Package cache stores text-understanding service responses so the optional
// enhancement passes (consolidation, audit, normalization) can be re-run
// without re-spending quota. Extraction batches are never cached; a retried
// batch must always hit the live service.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Cache defines the interface for response caching
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// Key derives a cache key from a full prompt (system + user text)
func Key(prompt string) string {
	hash := sha256.Sum256([]byte(prompt))
	return "litsort:v1:" + hex.EncodeToString(hash[:])
}
