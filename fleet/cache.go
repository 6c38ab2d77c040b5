package fleet

import (
	"time"

	"github.com/eluv-io/errors-go"
	gocache "github.com/patrickmn/go-cache"
)

// Keys under which the orchestrator publishes its output.
const (
	KeySnapshot = "snapshot"
	KeyFaults   = "faults"
)

// Cache is the key/value store through which cycle output reaches the
// notification and UI components. A zero ttl never expires.
type Cache interface {
	Set(key string, value interface{}, ttl time.Duration)
	Get(key string) (interface{}, bool)
}

// MemoryCache is an in-process Cache. It runs no janitor goroutine: expired
// entries are never returned and are dropped when the key is set again.
type MemoryCache struct {
	items *gocache.Cache
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{items: gocache.New(gocache.NoExpiration, 0)}
}

func (c *MemoryCache) Set(key string, value interface{}, ttl time.Duration) {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	c.items.Set(key, value, ttl)
}

func (c *MemoryCache) Get(key string) (interface{}, bool) {
	return c.items.Get(key)
}

// GetSnapshot returns the last snapshot published to c.
func GetSnapshot(c Cache) (*Snapshot, error) {
	v, ok := c.Get(KeySnapshot)
	if !ok {
		return nil, errors.E("GetSnapshot", errors.K.NotExist, "key", KeySnapshot)
	}
	s, ok := v.(*Snapshot)
	if !ok {
		return nil, errors.E("GetSnapshot", errors.K.Invalid, "key", KeySnapshot, "reason", "unexpected value type")
	}
	return s, nil
}

// GetFaults returns the fault descriptions published to c, if they have not
// expired.
func GetFaults(c Cache) ([]string, error) {
	v, ok := c.Get(KeyFaults)
	if !ok {
		return nil, errors.E("GetFaults", errors.K.NotExist, "key", KeyFaults)
	}
	f, ok := v.([]string)
	if !ok {
		return nil, errors.E("GetFaults", errors.K.Invalid, "key", KeyFaults, "reason", "unexpected value type")
	}
	return f, nil
}
