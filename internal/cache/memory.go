package cache

import (
	"sync"

	"github.com/lingobridge/lingobridge/internal/api/middleware"
)

// hotTierCapacity is the fixed size of the in-memory tier. The least
// recently used entry is evicted when a new key arrives at capacity.
const hotTierCapacity = 500

// MemoryStore is the hot cache tier: a fixed-capacity LRU over translation
// entries. Reads reinsert the key at the most-recently-used end.
type MemoryStore struct {
	mu       sync.RWMutex
	capacity int
	entries  map[string]Entry
	order    []string
}

// NewMemoryStore returns an empty hot tier with the standard capacity.
func NewMemoryStore() *MemoryStore {
	return newMemoryStore(hotTierCapacity)
}

func newMemoryStore(capacity int) *MemoryStore {
	return &MemoryStore{
		capacity: capacity,
		entries:  make(map[string]Entry, capacity),
		order:    make([]string, 0, capacity),
	}
}

// Get returns the entry for key and refreshes its recency.
func (m *MemoryStore) Get(key string) (Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return Entry{}, false
	}
	m.moveToEnd(key)
	return entry, true
}

// Set stores the entry, evicting the least recently used one at capacity.
// Setting an existing key overwrites it and refreshes its recency.
func (m *MemoryStore) Set(entry Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[entry.Key]; exists {
		m.entries[entry.Key] = entry
		m.moveToEnd(entry.Key)
		return
	}

	for len(m.entries) >= m.capacity && len(m.order) > 0 {
		oldest := m.order[0]
		m.order = m.order[1:]
		delete(m.entries, oldest)
	}

	m.entries[entry.Key] = entry
	m.order = append(m.order, entry.Key)
	middleware.SetCacheSize("memory", len(m.entries))
}

// Len reports the number of entries currently held.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Clear drops every entry.
func (m *MemoryStore) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]Entry, m.capacity)
	m.order = m.order[:0]
	middleware.SetCacheSize("memory", 0)
}

// moveToEnd reinserts key at the most-recently-used end of the order.
// Callers must hold the write lock.
func (m *MemoryStore) moveToEnd(key string) {
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			m.order = append(m.order, key)
			return
		}
	}
}
