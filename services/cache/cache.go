package cache

import (
	"time"
)

// CacheService represents a generic cache service. The scraper uses it for
// cross-process rate-limit block keys: parallel per-site processes share the
// same memcache, so a 429 observed by one process blocks the others too.
type CacheService interface {
	// Get retrieves a value from the cache
	Get(key string) ([]byte, error)

	// Set stores a value in the cache with an expiration time
	Set(key string, value []byte, expiration time.Duration) error

	// Delete removes a value from the cache
	Delete(key string) error
}

// BlockGuard wraps a CacheService as a nil-safe rate-limit block store
type BlockGuard struct {
	svc CacheService
}

// NewBlockGuard creates a guard; svc may be nil, in which case all
// operations are no-ops and nothing is ever blocked
func NewBlockGuard(svc CacheService) *BlockGuard {
	return &BlockGuard{svc: svc}
}

// Blocked reports whether the key currently holds a block
func (g *BlockGuard) Blocked(key string) bool {
	if g == nil || g.svc == nil || key == "" {
		return false
	}
	_, err := g.svc.Get(key)
	return err == nil
}

// Block sets a block on the key for the given duration
func (g *BlockGuard) Block(key string, d time.Duration) error {
	if g == nil || g.svc == nil || key == "" {
		return nil
	}
	return g.svc.Set(key, []byte(d.String()), d)
}

// Clear removes a block
func (g *BlockGuard) Clear(key string) error {
	if g == nil || g.svc == nil || key == "" {
		return nil
	}
	return g.svc.Delete(key)
}
