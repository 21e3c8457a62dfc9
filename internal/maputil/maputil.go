package maputil

import (
	"cmp"
	"slices"
	"sync"
)

// Pop removes key from map under lock and returns the previous value if present.
func Pop[K comparable, V any](mu *sync.Mutex, items map[K]V, key K) (V, bool) {
	mu.Lock()
	defer mu.Unlock()

	value, ok := items[key]
	if ok {
		delete(items, key)
	}
	return value, ok
}

// SortedKeys returns map keys in ascending order.
func SortedKeys[K cmp.Ordered, V any](items map[K]V) []K {
	keys := make([]K, 0, len(items))
	for key := range items {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

// Clone returns a shallow copy of items with room for extra entries.
func Clone[K comparable, V any](items map[K]V, extra int) map[K]V {
	out := make(map[K]V, len(items)+extra)
	for key, value := range items {
		out[key] = value
	}
	return out
}
