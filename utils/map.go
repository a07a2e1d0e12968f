package utils

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
)

// LookupCopy returns a copy of the value stored at key in m, detached from
// the map and safe to use after any lock is released. A missing key or nil
// entry yields notFound wrapped with the key.
func LookupCopy[T any](m map[string]*T, key string, notFound error) (T, error) {
	v := m[key]
	if v == nil {
		var zero T
		return zero, fmt.Errorf("%q: %w", key, notFound)
	}
	return *v, nil
}

// SortedKeys returns the keys of m in ascending order.
func SortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	return slices.Sorted(maps.Keys(m))
}
