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

// Entry is a view into a single key of a Map, which is either present
// (occupied) or absent (vacant). The key is hashed and located once, when
// the Entry is created, so that "get or insert" style updates cost a single
// hash computation:
//
//	counts := robinhood.New[string, int](0)
//	for _, w := range words {
//	  *counts.Entry(w).OrDefault() += 1
//	}
//
// An Entry, and any OccupiedEntry or VacantEntry derived from it, is only
// valid until the map is next structurally modified (a key inserted or
// deleted, or the map resized or cleared). Using a stale view panics.
type Entry[K comparable, V any] struct {
	m        *Map[K, V]
	key      K
	hash     uint32
	index    int
	occupied bool
	version  uint64
}

// Entry returns the Entry for key.
func (m *Map[K, V]) Entry(key K) Entry[K, V] {
	h := m.hash(&key)
	i, ok := m.table.find(key, h)
	return Entry[K, V]{
		m:        m,
		key:      key,
		hash:     h,
		index:    i,
		occupied: ok,
		version:  m.version,
	}
}

// Key returns the key the entry was looked up with.
func (e Entry[K, V]) Key() K {
	return e.key
}

// Occupied returns true if the key is present in the map.
func (e Entry[K, V]) Occupied() bool {
	return e.occupied
}

// AsOccupied returns the occupied view of the entry, or ok=false if the key
// is not present.
func (e Entry[K, V]) AsOccupied() (_ OccupiedEntry[K, V], ok bool) {
	if !e.occupied {
		return OccupiedEntry[K, V]{}, false
	}
	return OccupiedEntry[K, V]{e: e}, true
}

// AsVacant returns the vacant view of the entry, or ok=false if the key is
// present.
func (e Entry[K, V]) AsVacant() (_ VacantEntry[K, V], ok bool) {
	if e.occupied {
		return VacantEntry[K, V]{}, false
	}
	return VacantEntry[K, V]{e: e}, true
}

// OrInsert inserts value if the key is absent and returns a pointer to the
// value stored for the key.
func (e Entry[K, V]) OrInsert(value V) *V {
	if e.occupied {
		return OccupiedEntry[K, V]{e: e}.GetPtr()
	}
	return VacantEntry[K, V]{e: e}.Insert(value)
}

// OrInsertWith inserts the result of fn if the key is absent and returns a
// pointer to the value stored for the key. Fn is not called if the key is
// present.
func (e Entry[K, V]) OrInsertWith(fn func() V) *V {
	if e.occupied {
		return OccupiedEntry[K, V]{e: e}.GetPtr()
	}
	return VacantEntry[K, V]{e: e}.Insert(fn())
}

// OrInsertWithKey is like OrInsertWith, but fn is passed the key.
func (e Entry[K, V]) OrInsertWithKey(fn func(key K) V) *V {
	if e.occupied {
		return OccupiedEntry[K, V]{e: e}.GetPtr()
	}
	return VacantEntry[K, V]{e: e}.Insert(fn(e.key))
}

// OrDefault inserts the zero value if the key is absent and returns a
// pointer to the value stored for the key.
func (e Entry[K, V]) OrDefault() *V {
	var zero V
	return e.OrInsert(zero)
}

// AndModify calls fn with a pointer to the stored value if the key is
// present. It returns e so that it can be chained with OrInsert.
func (e Entry[K, V]) AndModify(fn func(value *V)) Entry[K, V] {
	if e.occupied {
		fn(OccupiedEntry[K, V]{e: e}.GetPtr())
	}
	return e
}

// OccupiedEntry is a view of a key present in the map.
type OccupiedEntry[K comparable, V any] struct {
	e Entry[K, V]
}

func (o OccupiedEntry[K, V]) slot() *Slot[K, V] {
	o.e.m.checkVersion(o.e.version, "occupied entry")
	return &o.e.m.table.slots[o.e.index]
}

// Key returns the key stored in the map.
func (o OccupiedEntry[K, V]) Key() K {
	return *o.slot().keyRef()
}

// Get returns the stored value.
func (o OccupiedEntry[K, V]) Get() V {
	return *o.slot().valueRef()
}

// GetPtr returns a pointer to the stored value.
func (o OccupiedEntry[K, V]) GetPtr() *V {
	return o.slot().valueRef()
}

// Replace stores value and returns the value it replaced. The replaced value
// becomes the caller's and is not handed to the Releaser.
func (o OccupiedEntry[K, V]) Replace(value V) V {
	return o.slot().replaceValue(value)
}

// Delete removes the entry from the map and returns its value. The stored
// key is handed to the Releaser.
func (o OccupiedEntry[K, V]) Delete() V {
	key, value := o.DeleteEntry()
	o.e.m.releaseKey(key)
	return value
}

// DeleteEntry removes the entry from the map and returns the stored key and
// value, both of which become the caller's.
func (o OccupiedEntry[K, V]) DeleteEntry() (K, V) {
	m := o.e.m
	m.checkVersion(o.e.version, "occupied entry")
	key, value := m.table.removeAt(o.e.index)
	m.version++
	m.table.checkInvariants(m)
	return key, value
}

// VacantEntry is a view of a key absent from the map.
type VacantEntry[K comparable, V any] struct {
	e Entry[K, V]
}

// Key returns the key that would be inserted.
func (v VacantEntry[K, V]) Key() K {
	return v.e.key
}

// Insert inserts the key with value, growing the map first if it is at its
// maximum load, and returns a pointer to the stored value. The hash computed
// when the entry was created is reused.
func (v VacantEntry[K, V]) Insert(value V) *V {
	m := v.e.m
	m.checkVersion(v.e.version, "vacant entry")
	return m.insertNew(v.e.key, value, v.e.hash)
}
