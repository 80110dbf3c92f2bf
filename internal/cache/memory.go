package cache

import (
	"sync"
	"time"
)

// Entry is one cached compilation: the generated intermediate text
// and, when the engine has already rendered it, the audio artifact.
type Entry struct {
	Fingerprint Fingerprint
	Text        string
	// Artifact is the path of a previously produced audio file, or
	// empty when only the intermediate text is cached.
	Artifact  string
	CreatedAt time.Time
}

// Stats reports cache effectiveness for one compiler run.
type Stats struct {
	Hits    int64
	Misses  int64
	Entries int64
	Bytes   int64
}

// MemoryStore is the in-memory cache level. It always exists for the
// duration of one compiler invocation so a unit imported by several
// jobs compiles once. Safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[Fingerprint]Entry
	stats   Stats
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: map[Fingerprint]Entry{}}
}

// Lookup returns the entry for fp if present.
func (m *MemoryStore) Lookup(fp Fingerprint) (Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[fp]
	if ok {
		m.stats.Hits++
	} else {
		m.stats.Misses++
	}
	return e, ok
}

// Store inserts or replaces the entry for its fingerprint.
func (m *MemoryStore) Store(e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.entries[e.Fingerprint]; ok {
		m.stats.Bytes -= int64(len(old.Text))
		m.stats.Entries--
	}
	m.entries[e.Fingerprint] = e
	m.stats.Entries++
	m.stats.Bytes += int64(len(e.Text))
	return nil
}

// Stats returns a snapshot of the store's counters.
func (m *MemoryStore) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}
