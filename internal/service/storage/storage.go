package storage

// Storage defines the keyed store used for run state and receiver energy
type Storage[K comparable, V any] interface {
	Set(key K, value V)
	Get(key K) (V, bool)
	Update(key K, fn func(current V, exists bool) V) V
	Delete(key K) bool
	GetAll() map[K]V
	GetDirty() map[K]V
	ClearDirty(keys []K)
	ForEach(fn func(key K, value V) bool)
	Count() int
	Reset()
}
