package storage

import (
	"fmt"
	"hash/fnv"
	"sync"
)

// ShardedMemoryStorage spreads keys over independently locked shards so that
// concurrent writers on different keys rarely contend
type ShardedMemoryStorage[K comparable, V any] struct {
	shards     []*shardData[K, V]
	shardMask  int
	keyToShard func(K) int
}

type shardData[K comparable, V any] struct {
	data  map[K]V
	mutex sync.RWMutex
	dirty map[K]bool
}

// NewShardedMemoryStorage creates a storage with shardCount rounded up to a power of two
func NewShardedMemoryStorage[K comparable, V any](shardCount int, keyToShardFunc func(K) int) *ShardedMemoryStorage[K, V] {
	realShardCount := 1
	for realShardCount < shardCount {
		realShardCount *= 2
	}

	shards := make([]*shardData[K, V], realShardCount)
	for i := range shards {
		shards[i] = &shardData[K, V]{
			data:  make(map[K]V),
			dirty: make(map[K]bool),
		}
	}

	mask := realShardCount - 1
	if keyToShardFunc == nil {
		keyToShardFunc = func(key K) int {
			switch k := any(key).(type) {
			case int:
				return k & mask
			case int64:
				return int(k) & mask
			case uint64:
				return int(k) & mask
			case string:
				return int(hashString(k)) & mask
			default:
				return int(hashString(fmt.Sprintf("%v", key))) & mask
			}
		}
	}

	return &ShardedMemoryStorage[K, V]{
		shards:     shards,
		shardMask:  mask,
		keyToShard: keyToShardFunc,
	}
}

func hashString(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}

func (s *ShardedMemoryStorage[K, V]) getShard(key K) *shardData[K, V] {
	return s.shards[s.keyToShard(key)&s.shardMask]
}

// ShardCount returns the number of shards
func (s *ShardedMemoryStorage[K, V]) ShardCount() int {
	return len(s.shards)
}

// Set adds or updates an object
func (s *ShardedMemoryStorage[K, V]) Set(key K, value V) {
	shard := s.getShard(key)

	shard.mutex.Lock()
	defer shard.mutex.Unlock()

	shard.data[key] = value
	shard.dirty[key] = true
}

// Get returns object by key
func (s *ShardedMemoryStorage[K, V]) Get(key K) (V, bool) {
	shard := s.getShard(key)

	shard.mutex.RLock()
	defer shard.mutex.RUnlock()

	value, exists := shard.data[key]
	return value, exists
}

// Update replaces the value of key with fn(current) holding only the key's shard lock
func (s *ShardedMemoryStorage[K, V]) Update(key K, fn func(current V, exists bool) V) V {
	shard := s.getShard(key)

	shard.mutex.Lock()
	defer shard.mutex.Unlock()

	current, exists := shard.data[key]
	next := fn(current, exists)
	shard.data[key] = next
	shard.dirty[key] = true
	return next
}

// Delete removes an object
func (s *ShardedMemoryStorage[K, V]) Delete(key K) bool {
	shard := s.getShard(key)

	shard.mutex.Lock()
	defer shard.mutex.Unlock()

	if _, exists := shard.data[key]; !exists {
		return false
	}
	delete(shard.data, key)
	delete(shard.dirty, key)
	return true
}

// GetAll returns all objects from all shards
func (s *ShardedMemoryStorage[K, V]) GetAll() map[K]V {
	result := make(map[K]V)
	for _, shard := range s.shards {
		shard.mutex.RLock()
		for k, v := range shard.data {
			result[k] = v
		}
		shard.mutex.RUnlock()
	}
	return result
}

// GetDirty returns modified objects from all shards without clearing their flags
func (s *ShardedMemoryStorage[K, V]) GetDirty() map[K]V {
	result := make(map[K]V)
	for _, shard := range s.shards {
		shard.mutex.RLock()
		for k := range shard.dirty {
			if v, exists := shard.data[k]; exists {
				result[k] = v
			}
		}
		shard.mutex.RUnlock()
	}
	return result
}

// ClearDirty clears dirty flags for provided keys
func (s *ShardedMemoryStorage[K, V]) ClearDirty(keys []K) {
	for _, k := range keys {
		shard := s.getShard(k)
		shard.mutex.Lock()
		delete(shard.dirty, k)
		shard.mutex.Unlock()
	}
}

// ForEach calls fn on a snapshot of each shard until it returns false
func (s *ShardedMemoryStorage[K, V]) ForEach(fn func(key K, value V) bool) {
	for _, shard := range s.shards {
		shard.mutex.RLock()
		items := make(map[K]V, len(shard.data))
		for k, v := range shard.data {
			items[k] = v
		}
		shard.mutex.RUnlock()

		for k, v := range items {
			if !fn(k, v) {
				return
			}
		}
	}
}

// Count returns total number of objects
func (s *ShardedMemoryStorage[K, V]) Count() int {
	count := 0
	for _, shard := range s.shards {
		shard.mutex.RLock()
		count += len(shard.data)
		shard.mutex.RUnlock()
	}
	return count
}

// Reset drops every object of every shard
func (s *ShardedMemoryStorage[K, V]) Reset() {
	for _, shard := range s.shards {
		shard.mutex.Lock()
		shard.data = make(map[K]V)
		shard.dirty = make(map[K]bool)
		shard.mutex.Unlock()
	}
}
