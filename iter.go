// Copyright 2024 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package robinhood

import "iter"

// All calls yield sequentially for each key and value present in the map. If
// yield returns false, iteration stops. Entries are visited in slot order,
// which is unspecified. The map must not be structurally modified during
// iteration (overwriting the value of an existing key is fine); doing so
// panics when iteration resumes.
//
// The signature of All allows ranging over the map directly:
//
//	for k, v := range m.All {
//	  fmt.Printf("%v: %v\n", k, v)
//	}
func (m *Map[K, V]) All(yield func(key K, value V) bool) {
	version := m.version
	slots := m.table.slots
	for i := range slots {
		s := &slots[i]
		if !s.occupied {
			continue
		}
		if !yield(s.key, s.value) {
			return
		}
		m.checkVersion(version, "iteration")
	}
}

// Keys calls yield sequentially for each key present in the map. It has the
// same restrictions as All.
func (m *Map[K, V]) Keys(yield func(key K) bool) {
	m.All(func(key K, _ V) bool {
		return yield(key)
	})
}

// Values calls yield sequentially for each value present in the map. It has
// the same restrictions as All.
func (m *Map[K, V]) Values(yield func(value V) bool) {
	m.All(func(_ K, value V) bool {
		return yield(value)
	})
}

// Iterator is a single pass cursor over the entries of a Map, for callers
// that cannot use a callback:
//
//	for it := m.Iter(); it.Next(); {
//	  fmt.Printf("%v: %v\n", it.Key(), it.Value())
//	}
//
// The map must not be structurally modified while the iterator is in use.
type Iterator[K comparable, V any] struct {
	m       *Map[K, V]
	next    int
	cur     *Slot[K, V]
	version uint64
}

// Iter returns an Iterator positioned before the first entry.
func (m *Map[K, V]) Iter() *Iterator[K, V] {
	return &Iterator[K, V]{m: m, version: m.version}
}

// Next advances to the next entry, returning false when there are none left.
// Once Next returns false the iterator is exhausted.
func (it *Iterator[K, V]) Next() bool {
	it.m.checkVersion(it.version, "iterator")
	slots := it.m.table.slots
	for it.next < len(slots) {
		s := &slots[it.next]
		it.next++
		if s.occupied {
			it.cur = s
			return true
		}
	}
	it.cur = nil
	return false
}

// Key returns the key of the current entry.
func (it *Iterator[K, V]) Key() K {
	return *it.cur.keyRef()
}

// Value returns the value of the current entry.
func (it *Iterator[K, V]) Value() V {
	return *it.cur.valueRef()
}

// FromSeq constructs a Map of default capacity holding the entries of seq.
// Later entries for the same key overwrite earlier ones.
func FromSeq[K comparable, V any](seq iter.Seq2[K, V], options ...Option[K, V]) *Map[K, V] {
	m := New[K, V](0, options...)
	m.Extend(seq)
	return m
}

// Extend puts every entry of seq into the map.
func (m *Map[K, V]) Extend(seq iter.Seq2[K, V]) {
	for k, v := range seq {
		m.Put(k, v)
	}
}
