package cache

import (
	"testing"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/stretchr/testify/assert"
)

// This test requires a running memcached instance
// If memcached is not available, the test will be skipped
func TestMemcacheService(t *testing.T) {
	mc := NewMemcacheService("localhost:11211")

	_, err := mc.client.Get("probe")
	if err != nil && err != memcache.ErrCacheMiss {
		t.Skip("Memcached is not available, skipping test")
	}

	err = mc.Set("safeway_block", []byte("60s"), 1*time.Second)
	assert.NoError(t, err)

	value, err := mc.Get("safeway_block")
	assert.NoError(t, err)
	assert.Equal(t, "60s", string(value))

	err = mc.Delete("safeway_block")
	assert.NoError(t, err)

	_, err = mc.Get("safeway_block")
	assert.Error(t, err)
}

type mapCache struct {
	data map[string][]byte
}

func (m *mapCache) Get(key string) ([]byte, error) {
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return nil, memcache.ErrCacheMiss
}

func (m *mapCache) Set(key string, value []byte, _ time.Duration) error {
	m.data[key] = value
	return nil
}

func (m *mapCache) Delete(key string) error {
	delete(m.data, key)
	return nil
}

func TestBlockGuard(t *testing.T) {
	guard := NewBlockGuard(&mapCache{data: map[string][]byte{}})

	assert.False(t, guard.Blocked("safeway_block"))

	assert.NoError(t, guard.Block("safeway_block", time.Minute))
	assert.True(t, guard.Blocked("safeway_block"))

	assert.NoError(t, guard.Clear("safeway_block"))
	assert.False(t, guard.Blocked("safeway_block"))
}

func TestBlockGuardNilSafe(t *testing.T) {
	var guard *BlockGuard

	assert.False(t, guard.Blocked("anything"))
	assert.NoError(t, guard.Block("anything", time.Minute))
	assert.NoError(t, guard.Clear("anything"))

	guard = NewBlockGuard(nil)
	assert.False(t, guard.Blocked("anything"))
	assert.NoError(t, guard.Block("anything", time.Minute))
}
