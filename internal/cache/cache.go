package cache

import (
	"sync"
	"time"

	"github.com/OCAP2/mocap/pkg/core"
)

// Stamp identifies one version of a stored blob. A cached entry is only
// served while the blob still carries the stamp it was cached under.
type Stamp struct {
	Size    int64
	ModTime time.Time
}

type entry struct {
	stamp Stamp
	meta  core.RecordingMetadata
}

// MetadataCache caches recording metadata so listing does not reopen every blob.
// Storage may change out of band, so entries are validated on every read.
type MetadataCache struct {
	m       sync.Mutex
	entries map[string]entry

	hits   SafeCounter
	misses SafeCounter
}

func NewMetadataCache() *MetadataCache {
	return &MetadataCache{
		entries: make(map[string]entry),
	}
}

// Get returns the cached metadata for name if it was stored under stamp.
// A stale entry is dropped.
func (c *MetadataCache) Get(name string, stamp Stamp) (core.RecordingMetadata, bool) {
	c.m.Lock()
	defer c.m.Unlock()
	e, ok := c.entries[name]
	if !ok {
		c.misses.Inc()
		return core.RecordingMetadata{}, false
	}
	if e.stamp.Size != stamp.Size || !e.stamp.ModTime.Equal(stamp.ModTime) {
		delete(c.entries, name)
		c.misses.Inc()
		return core.RecordingMetadata{}, false
	}
	c.hits.Inc()
	return e.meta, true
}

func (c *MetadataCache) Put(name string, stamp Stamp, meta core.RecordingMetadata) {
	c.m.Lock()
	defer c.m.Unlock()
	c.entries[name] = entry{stamp: stamp, meta: meta}
}

func (c *MetadataCache) Invalidate(name string) {
	c.m.Lock()
	defer c.m.Unlock()
	delete(c.entries, name)
}

func (c *MetadataCache) Reset() {
	c.m.Lock()
	defer c.m.Unlock()
	c.entries = make(map[string]entry)
}

func (c *MetadataCache) Len() int {
	c.m.Lock()
	defer c.m.Unlock()
	return len(c.entries)
}

// Stats returns hit and miss counts since creation.
func (c *MetadataCache) Stats() (hits, misses int) {
	return c.hits.Value(), c.misses.Value()
}

// SafeCounter is a thread-safe counter
type SafeCounter struct {
	mu sync.Mutex
	v  int
}

func (c *SafeCounter) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.v
}

func (c *SafeCounter) Inc() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.v++
}

func (c *SafeCounter) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.v = 0
}
