package storage

import (
	"github.com/dgraph-io/ristretto/v2"
	"github.com/pkg/errors"
)

// RootHolder is implemented by stores that remember one well-known record,
// typically the header of the default tree.
type RootHolder interface {
	RootRecord() RID
	SetRootRecord(rid RID) error
}

// CacheStats reports read cache effectiveness.
type CacheStats struct {
	Hits   uint64
	Misses uint64
	Ratio  float64
}

// CachedStore puts a ristretto read cache in front of a RecordStore.
// Payloads are cached by RID with their length as cost; writes and deletes
// invalidate the entry before returning.
type CachedStore struct {
	inner RecordStore
	cache *ristretto.Cache[uint64, []byte]
}

// NewCachedStore wraps inner with a cache holding up to maxBytes of payload.
func NewCachedStore(inner RecordStore, maxBytes int64) (*CachedStore, error) {
	if maxBytes <= 0 {
		return nil, errors.New("cache size must be positive")
	}
	counters := maxBytes / 64
	if counters < 1000 {
		counters = 1000
	}
	cache, err := ristretto.NewCache(&ristretto.Config[uint64, []byte]{
		NumCounters:        counters,
		MaxCost:            maxBytes,
		BufferItems:        64,
		Metrics:            true,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create record cache")
	}
	return &CachedStore{inner: inner, cache: cache}, nil
}

// Create writes through to the inner store.
func (c *CachedStore) Create(data []byte) (RID, error) {
	return c.inner.Create(data)
}

// Read serves the payload from cache when present.
func (c *CachedStore) Read(rid RID) ([]byte, error) {
	if data, ok := c.cache.Get(uint64(rid)); ok {
		return clone(data), nil
	}
	data, err := c.inner.Read(rid)
	if err != nil {
		return nil, err
	}
	c.cache.Set(uint64(rid), clone(data), int64(len(data))+1)
	return data, nil
}

// Update writes through and invalidates the cached payload.
func (c *CachedStore) Update(rid RID, data []byte) error {
	err := c.inner.Update(rid, data)
	c.invalidate(rid)
	return err
}

// Delete writes through and invalidates the cached payload.
func (c *CachedStore) Delete(rid RID) error {
	err := c.inner.Delete(rid)
	c.invalidate(rid)
	return err
}

// Sync flushes the inner store.
func (c *CachedStore) Sync() error {
	return c.inner.Sync()
}

// Close releases the cache and closes the inner store.
func (c *CachedStore) Close() error {
	c.cache.Close()
	return c.inner.Close()
}

// RootRecord forwards to the inner store when it remembers a root.
func (c *CachedStore) RootRecord() RID {
	if h, ok := c.inner.(RootHolder); ok {
		return h.RootRecord()
	}
	return InvalidRID
}

// SetRootRecord forwards to the inner store when it remembers a root.
func (c *CachedStore) SetRootRecord(rid RID) error {
	if h, ok := c.inner.(RootHolder); ok {
		return h.SetRootRecord(rid)
	}
	return errors.New("inner store cannot remember a root record")
}

// Unwrap returns the inner store.
func (c *CachedStore) Unwrap() RecordStore {
	return c.inner
}

// Stats returns cache hit counters.
func (c *CachedStore) Stats() CacheStats {
	m := c.cache.Metrics
	return CacheStats{Hits: m.Hits(), Misses: m.Misses(), Ratio: m.Ratio()}
}

// invalidate drops rid and waits for buffered sets so a stale payload read
// before the write cannot land after it.
func (c *CachedStore) invalidate(rid RID) {
	c.cache.Del(uint64(rid))
	c.cache.Wait()
	c.cache.Del(uint64(rid))
}
