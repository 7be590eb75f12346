package identity

import (
	"github.com/conduit-lang/tuplizer/internal/orm/tuplizer"
)

type mapEntry struct {
	key   EntityKey
	tuple tuplizer.Tuple
}

// Map holds at most one instance per EntityKey. It belongs to a single unit
// of work and is not safe for concurrent use.
type Map struct {
	buckets map[string][]mapEntry
	size    int
}

// NewMap creates an empty identity map
func NewMap() *Map {
	return &Map{buckets: make(map[string][]mapEntry)}
}

// Get returns the instance registered under k
func (m *Map) Get(k EntityKey) (tuplizer.Tuple, bool) {
	for _, e := range m.buckets[k.String()] {
		if SameEntity(e.key, k) {
			return e.tuple, true
		}
	}
	return nil, false
}

// Add registers t under k unless the key is already present, in which case
// the existing instance is returned with false
func (m *Map) Add(k EntityKey, t tuplizer.Tuple) (tuplizer.Tuple, bool) {
	if existing, ok := m.Get(k); ok {
		return existing, false
	}
	h := k.String()
	m.buckets[h] = append(m.buckets[h], mapEntry{key: k, tuple: t})
	m.size++
	return t, true
}

// Replace registers t under k, dropping any instance held before
func (m *Map) Replace(k EntityKey, t tuplizer.Tuple) {
	h := k.String()
	for i, e := range m.buckets[h] {
		if SameEntity(e.key, k) {
			m.buckets[h][i].tuple = t
			return
		}
	}
	m.buckets[h] = append(m.buckets[h], mapEntry{key: k, tuple: t})
	m.size++
}

// Remove drops the instance registered under k
func (m *Map) Remove(k EntityKey) bool {
	h := k.String()
	bucket := m.buckets[h]
	for i, e := range bucket {
		if SameEntity(e.key, k) {
			bucket = append(bucket[:i], bucket[i+1:]...)
			if len(bucket) == 0 {
				delete(m.buckets, h)
			} else {
				m.buckets[h] = bucket
			}
			m.size--
			return true
		}
	}
	return false
}

// Len returns the number of registered instances
func (m *Map) Len() int {
	return m.size
}

// Keys returns every registered key in no particular order
func (m *Map) Keys() []EntityKey {
	keys := make([]EntityKey, 0, m.size)
	for _, bucket := range m.buckets {
		for _, e := range bucket {
			keys = append(keys, e.key)
		}
	}
	return keys
}

// Clear drops all instances
func (m *Map) Clear() {
	m.buckets = make(map[string][]mapEntry)
	m.size = 0
}
