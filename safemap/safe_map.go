// Package safemap provides a generic map guarded by a sync.RWMutex.
// Unlike sync.Map, every read of the whole map (Range, Values, Len) observes a
// single consistent state: no entry can be added or removed mid-iteration.
package safemap

import "sync"

// SafeMap is a concurrent map that is safe for use by multiple goroutines.
// Writers (Store, Delete) take the exclusive lock. Readers share it.
//
// SafeMap must not be copied after first use.
type SafeMap[K comparable, V any] struct {
	mu sync.RWMutex
	m  map[K]V
}

// NewSafeMap returns a new, empty SafeMap ready for use.
//
// Returns:
//   - A pointer to a new SafeMap[K, V]
func NewSafeMap[K comparable, V any]() *SafeMap[K, V] {
	return &SafeMap[K, V]{m: make(map[K]V)}
}

// Store sets the value for key k, overwriting any existing value.
//
// Parameters:
//   - k: The key to store
//   - v: The value to associate with k
func (m *SafeMap[K, V]) Store(k K, v V) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.m[k] = v
}

// Load returns the value for key k and whether it was present.
//
// Parameters:
//   - k: The key to look up
//
// Returns:
//   - The value associated with k, or the zero value of V if not found
//   - true if the key was present, false otherwise
func (m *SafeMap[K, V]) Load(k K) (V, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.m[k]
	return v, ok
}

// Delete removes the entry for key k and reports whether it was present.
//
// Parameters:
//   - k: The key to delete
//
// Returns:
//   - true if an entry was removed
func (m *SafeMap[K, V]) Delete(k K) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.m[k]
	delete(m.m, k)
	return ok
}

// Has reports whether key k is present in the map.
func (m *SafeMap[K, V]) Has(k K) bool {
	_, ok := m.Load(k)
	return ok
}

// Len returns the number of entries in the map.
func (m *SafeMap[K, V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.m)
}

// Range calls f for each entry while holding the read lock. If f returns
// false the iteration stops. f must not call Store or Delete on the same map,
// and should not block: writers wait until Range returns.
//
// Parameters:
//   - f: Function called for each entry; return false to stop iteration
func (m *SafeMap[K, V]) Range(f func(k K, v V) bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for k, v := range m.m {
		if !f(k, v) {
			return
		}
	}
}

// Values returns a snapshot of all values taken under a single read lock.
// The returned slice is owned by the caller and is safe to use after the
// map changes. Order is unspecified.
//
// Returns:
//   - A new slice holding every value present at the time of the call
func (m *SafeMap[K, V]) Values() []V {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]V, 0, len(m.m))
	for _, v := range m.m {
		out = append(out, v)
	}

	return out
}
