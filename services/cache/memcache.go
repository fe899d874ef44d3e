package cache

import (
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

// MemcacheService backs the BlockGuard with a shared memcache, so rate-limit
// blocks survive the process and apply across parallel scraper runs
type MemcacheService struct {
	client *memcache.Client
}

// NewMemcacheService connects to the memcache at serverAddr
func NewMemcacheService(serverAddr string) *MemcacheService {
	return &MemcacheService{
		client: memcache.New(serverAddr),
	}
}

// Get retrieves a block value; a cache miss surfaces as the client's miss
// error, which BlockGuard treats as "not blocked"
func (m *MemcacheService) Get(key string) ([]byte, error) {
	item, err := m.client.Get(key)
	if err != nil {
		return nil, err
	}
	return item.Value, nil
}

// Set stores a block value with an expiration, after which the block lifts
// on its own
func (m *MemcacheService) Set(key string, value []byte, expiration time.Duration) error {
	return m.client.Set(&memcache.Item{
		Key:        key,
		Value:      value,
		Expiration: int32(expiration.Seconds()),
	})
}

// Delete lifts a block early
func (m *MemcacheService) Delete(key string) error {
	return m.client.Delete(key)
}
