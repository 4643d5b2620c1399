package storage

import (
	"sync"
)

// MemoryStorage is a single-lock keyed store with dirty tracking
type MemoryStorage[K comparable, V any] struct {
	data  map[K]V
	mutex sync.RWMutex
	dirty map[K]bool
}

// NewMemoryStorage creates a new storage
func NewMemoryStorage[K comparable, V any]() *MemoryStorage[K, V] {
	return &MemoryStorage[K, V]{
		data:  make(map[K]V),
		dirty: make(map[K]bool),
	}
}

// Set adds or updates an object
func (s *MemoryStorage[K, V]) Set(key K, value V) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.data[key] = value
	s.dirty[key] = true
}

// Get returns an object by key
func (s *MemoryStorage[K, V]) Get(key K) (V, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	value, exists := s.data[key]
	return value, exists
}

// Update replaces the value of key with fn(current) under the lock
func (s *MemoryStorage[K, V]) Update(key K, fn func(current V, exists bool) V) V {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	current, exists := s.data[key]
	next := fn(current, exists)
	s.data[key] = next
	s.dirty[key] = true
	return next
}

// Delete removes an object by key
func (s *MemoryStorage[K, V]) Delete(key K) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.data[key]; !exists {
		return false
	}
	delete(s.data, key)
	delete(s.dirty, key)
	return true
}

// GetAll returns a copy of every object
func (s *MemoryStorage[K, V]) GetAll() map[K]V {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	result := make(map[K]V, len(s.data))
	for k, v := range s.data {
		result[k] = v
	}
	return result
}

// GetDirty returns modified objects without clearing their flags
func (s *MemoryStorage[K, V]) GetDirty() map[K]V {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	result := make(map[K]V, len(s.dirty))
	for k := range s.dirty {
		if v, exists := s.data[k]; exists {
			result[k] = v
		}
	}
	return result
}

// ClearDirty clears dirty flags for provided keys
func (s *MemoryStorage[K, V]) ClearDirty(keys []K) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, k := range keys {
		delete(s.dirty, k)
	}
}

// ForEach calls fn on a snapshot of the objects until it returns false
func (s *MemoryStorage[K, V]) ForEach(fn func(key K, value V) bool) {
	for k, v := range s.GetAll() {
		if !fn(k, v) {
			break
		}
	}
}

// Count returns the number of objects
func (s *MemoryStorage[K, V]) Count() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.data)
}

// Reset drops every object
func (s *MemoryStorage[K, V]) Reset() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.data = make(map[K]V)
	s.dirty = make(map[K]bool)
}
