// Package trackcache holds the process-wide bounded audio cache. Eviction
// is strictly FIFO by insertion: lookups never promote an entry, and a
// re-insert of an existing key replaces the entry with a fresh sequence
// number.
package trackcache

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

type entry struct {
	data []byte
	seq  uint64
}

// Cache maps track ids to compressed audio bytes, capped at maxEntries.
type Cache struct {
	mu         sync.Mutex
	maxEntries int
	nextSeq    uint64
	entries    map[string]*entry
	logger     *log.Entry
}

func New(maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = 100
	}
	return &Cache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
		logger:     log.WithFields(log.Fields{"module": "trackcache"}),
	}
}

// Get returns the cached bytes for a track id, if present. It does not
// touch insertion order.
func (c *Cache) Get(trackID string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[trackID]
	if !ok {
		return nil, false
	}
	return e.data, true
}

// Put inserts (or replaces) an entry, then evicts the single oldest entry
// if the cache now exceeds capacity.
func (c *Cache) Put(trackID string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[trackID] = &entry{data: data, seq: c.nextSeq}
	c.nextSeq++

	if len(c.entries) > c.maxEntries {
		c.evictOldest()
	}
}

// evictOldest removes the entry with the smallest sequence number. Caller
// must hold the mutex.
func (c *Cache) evictOldest() {
	var oldestKey string
	var oldestSeq uint64
	first := true

	for key, e := range c.entries {
		if first || e.seq < oldestSeq {
			oldestKey = key
			oldestSeq = e.seq
			first = false
		}
	}

	if !first {
		delete(c.entries, oldestKey)
		c.logger.Debugf("evicted %s (cache full at %d entries)", oldestKey, c.maxEntries)
	}
}

// Size returns the current entry count.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Keys returns the cached track ids, in no particular order. Used by the
// health endpoint; the view is best-effort.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.entries))
	for key := range c.entries {
		keys = append(keys, key)
	}
	return keys
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*entry)
	c.logger.Info("cache cleared")
}
