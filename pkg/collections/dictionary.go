// Package collections holds small generic containers shared by the sync layer.
package collections

import (
	"fmt"
	"sync"

	acs_errors "azure-communication/pkg/errors"
)

// Entry is one key/value pair stored in a Dictionary.
type Entry[K, V any] struct {
	Key   K
	Value V
}

// CompareFunc is a three-way comparator. Only a zero result is treated as
// "same key"; the sign of non-zero results is ignored.
type CompareFunc[K any] func(a, b K) int

// Dictionary is an insertion-ordered, slice-backed map whose key identity is
// decided by a caller-supplied comparator instead of hashing. Lookups are
// linear, so it is meant for a small number of entries (one per chat thread).
//
// All methods are safe for concurrent use.
type Dictionary[K, V any] struct {
	mu      sync.RWMutex
	entries []Entry[K, V]
	compare CompareFunc[K]
}

// NewDictionary creates an empty dictionary using compare for key equality.
func NewDictionary[K, V any](compare CompareFunc[K]) *Dictionary[K, V] {
	if compare == nil {
		panic("collections: nil compare func")
	}
	return &Dictionary[K, V]{compare: compare}
}

// Add appends a new entry. It fails with ErrDuplicateKey when an equal key
// is already present, leaving the existing value untouched.
func (d *Dictionary[K, V]) Add(key K, value V) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.indexOf(key) != -1 {
		return fmt.Errorf("add %v: %w", key, acs_errors.ErrDuplicateKey)
	}
	d.entries = append(d.entries, Entry[K, V]{Key: key, Value: value})
	return nil
}

// Set replaces the value of an existing key in place and returns the entry it
// displaced. It fails with ErrKeyNotFound when the key is absent.
func (d *Dictionary[K, V]) Set(key K, value V) (Entry[K, V], error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	index := d.indexOf(key)
	if index == -1 {
		return Entry[K, V]{}, fmt.Errorf("set %v: %w", key, acs_errors.ErrKeyNotFound)
	}
	previous := d.entries[index]
	d.entries[index] = Entry[K, V]{Key: key, Value: value}
	return previous, nil
}

// Get returns the entry for key. The boolean is false when nothing matches.
func (d *Dictionary[K, V]) Get(key K) (Entry[K, V], bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	index := d.indexOf(key)
	if index == -1 {
		return Entry[K, V]{}, false
	}
	return d.entries[index], true
}

// GetValue returns the value stored for key or ErrKeyNotFound.
func (d *Dictionary[K, V]) GetValue(key K) (V, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	index := d.indexOf(key)
	if index == -1 {
		var zero V
		return zero, fmt.Errorf("get %v: %w", key, acs_errors.ErrKeyNotFound)
	}
	return d.entries[index].Value, nil
}

// Remove deletes the entry for key and returns it. Removing a missing key is a
// no-op that reports false.
func (d *Dictionary[K, V]) Remove(key K) (Entry[K, V], bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	index := d.indexOf(key)
	if index == -1 {
		return Entry[K, V]{}, false
	}
	removed := d.entries[index]
	d.entries = append(d.entries[:index], d.entries[index+1:]...)
	return removed, true
}

// ContainsKey reports whether an equal key is present.
func (d *Dictionary[K, V]) ContainsKey(key K) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.indexOf(key) != -1
}

// Keys returns the keys in insertion order.
func (d *Dictionary[K, V]) Keys() []K {
	d.mu.RLock()
	defer d.mu.RUnlock()

	keys := make([]K, 0, len(d.entries))
	for _, entry := range d.entries {
		keys = append(keys, entry.Key)
	}
	return keys
}

// Values returns the values in insertion order.
func (d *Dictionary[K, V]) Values() []V {
	d.mu.RLock()
	defer d.mu.RUnlock()

	values := make([]V, 0, len(d.entries))
	for _, entry := range d.entries {
		values = append(values, entry.Value)
	}
	return values
}

// Len returns the number of entries.
func (d *Dictionary[K, V]) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}

// indexOf must be called with d.mu held.
func (d *Dictionary[K, V]) indexOf(key K) int {
	for i, entry := range d.entries {
		if d.compare(entry.Key, key) == 0 {
			return i
		}
	}
	return -1
}
