// Package ordered provides a map that remembers insertion order, backed by
// github.com/wk8/go-ordered-map. A nil *Map reads as empty.
package ordered

import (
	"iter"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Map is a map whose iteration order is the order keys were first set.
// It is not safe for concurrent mutation; callers publish finished maps instead.
type Map[K comparable, V any] struct {
	om *orderedmap.OrderedMap[K, V]
}

// New returns an empty map.
func New[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{om: orderedmap.New[K, V]()}
}

// Set stores v under k. Re-setting an existing key keeps its position.
func (m *Map[K, V]) Set(k K, v V) {
	m.om.Set(k, v)
}

// Get returns the value for k.
func (m *Map[K, V]) Get(k K) (V, bool) {
	if m == nil {
		var zero V
		return zero, false
	}
	return m.om.Get(k)
}

// Has reports whether k is present.
func (m *Map[K, V]) Has(k K) bool {
	_, ok := m.Get(k)
	return ok
}

// Delete removes k.
func (m *Map[K, V]) Delete(k K) {
	m.om.Delete(k)
}

// Len returns the number of entries.
func (m *Map[K, V]) Len() int {
	if m == nil {
		return 0
	}
	return m.om.Len()
}

// Keys returns the keys in insertion order.
func (m *Map[K, V]) Keys() []K {
	if m == nil {
		return nil
	}
	out := make([]K, 0, m.om.Len())
	for k := range m.All() {
		out = append(out, k)
	}
	return out
}

// Values returns the values in insertion order.
func (m *Map[K, V]) Values() []V {
	if m == nil {
		return nil
	}
	out := make([]V, 0, m.om.Len())
	for _, v := range m.All() {
		out = append(out, v)
	}
	return out
}

// All iterates over entries in insertion order.
func (m *Map[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		if m == nil {
			return
		}
		for p := m.om.Oldest(); p != nil; p = p.Next() {
			if !yield(p.Key, p.Value) {
				return
			}
		}
	}
}
