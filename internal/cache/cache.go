// Package cache is the compiler's content-addressed build cache. Every
// run gets an in-memory level; a disk level under the build directory
// is added when persistence is requested.
package cache

import "time"

// Store is one cache level.
type Store interface {
	Lookup(fp Fingerprint) (Entry, bool)
	Store(e Entry) error
	Stats() Stats
}

// Cache is the read-through composition of the memory level and an
// optional disk level. Disk hits are promoted into memory.
type Cache struct {
	memory *MemoryStore
	disk   *DiskStore
}

// New returns a cache backed by memory only. Attach a disk level with
// Persist.
func New() *Cache {
	return &Cache{memory: NewMemoryStore()}
}

// Persist attaches a disk level rooted at dir.
func (c *Cache) Persist(dir string) error {
	d, err := NewDiskStore(dir)
	if err != nil {
		return err
	}
	c.disk = d
	return nil
}

// Persistent reports whether a disk level is attached.
func (c *Cache) Persistent() bool { return c.disk != nil }

// Lookup checks memory first, then disk.
func (c *Cache) Lookup(fp Fingerprint) (Entry, bool) {
	if e, ok := c.memory.Lookup(fp); ok {
		return e, true
	}
	if c.disk == nil {
		return Entry{}, false
	}
	e, ok := c.disk.Lookup(fp)
	if !ok {
		return Entry{}, false
	}
	c.memory.Store(e) //nolint:errcheck
	return e, true
}

// Store writes the entry to every attached level.
func (c *Cache) Store(e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	if err := c.memory.Store(e); err != nil {
		return err
	}
	if c.disk != nil {
		return c.disk.Store(e)
	}
	return nil
}

// Stats sums the counters of all attached levels.
func (c *Cache) Stats() Stats {
	s := c.memory.Stats()
	if c.disk != nil {
		ds := c.disk.Stats()
		s.Hits += ds.Hits
		s.Misses += ds.Misses
		s.Entries += ds.Entries
		s.Bytes += ds.Bytes
	}
	return s
}
