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

// Package robinhood is a Go implementation of a Robin-Hood hash map with
// backward-shift deletion, meant for programs that care about memory
// footprint and predictable per-operation cost more than about raw
// throughput on huge maps. See also:
// https://codecapsule.com/2013/11/11/robin-hood-hashing/ and
// https://codecapsule.com/2013/11/17/robin-hood-hashing-backward-shift-deletion/.
//
// # Robin-Hood hashing
//
// A Map is a single open-addressing table of 2^N slots probed linearly.
// Every occupied slot remembers its displacement: the distance between the
// index the key hashes to (its ideal index, hash&(2^N-1)) and the index it
// actually lives at. On insertion, the entry being placed walks forward from
// its ideal index and takes the place of any resident entry that is closer
// to its own ideal index than the walker is to its own ("steal from the
// rich, give to the poor"). The evicted resident continues the walk. The walk
// stops at the first empty slot. The effect is that displacements across the
// table stay small and close to each other.
//
// The table remembers the largest displacement it has ever produced. A
// lookup never needs to look further than that many slots past the ideal
// index, and it can stop as soon as it sees an empty slot.
//
// # Deletion
//
// Deletion does not use tombstones. When an entry is removed, the entries
// following it are shifted back by one slot (lowering their displacement by
// one) until an empty slot or an entry sitting at its ideal index is found.
// Every slot is therefore either empty or holding an entry at a valid
// position, so probe lengths never degrade because of deleted entries and no
// periodic compaction is required. The recorded maximum displacement is not
// lowered on deletion; it is a conservative bound that is reset when the
// table grows.
//
// # Growth
//
// Before a new key is inserted, the map doubles its capacity if at least 85%
// of its slots are occupied. Growth allocates a new slot array and reinserts
// every entry using its cached hash. Maps never shrink.
//
// # Memory
//
// Slot arrays are obtained from an Allocator (see WithAllocator) and removed
// keys and values are zeroed so that the GC does not retain them. Keys and
// values that the map destroys (overwritten entries, deleted keys, entries
// dropped by Clear or Close) are handed to a Releaser (see WithReleaser)
// exactly once, which lets keys and values that own external resources
// account for them.
//
// A Map is NOT goroutine-safe.
package robinhood

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

const (
	debug = false

	// defaultCapacity is the capacity of a map constructed with an initial
	// capacity of 0.
	defaultCapacity = 16

	// maxLoadPercent is the load factor at which inserting a new key first
	// doubles the capacity of the map.
	maxLoadPercent = 85
)

// ErrKeyNotFound is the error MustGet panics with (wrapped) when the key is
// not present.
var ErrKeyNotFound = errors.New("no entry found for key")

// Map is an unordered map from keys to values with Put, Get, Delete, Entry
// and All operations. By default, a Map[K,V] uses the same hash function as
// Go's builtin map[K]V folded to 32 bits, though a different hash function
// can be specified using the WithHash option.
//
// A Map is NOT goroutine-safe.
type Map[K comparable, V any] struct {
	// The hash function for keys of type K.
	hash hashFn[K]
	// The allocator to use for the slots slice.
	allocator Allocator[K, V]
	// The releaser notified of destroyed keys and values. May be nil.
	releaser Releaser[K, V]
	table    table[K, V]
	// version is incremented on every structural mutation (a key being added
	// or removed, or the slots being reallocated). Entry views and iterators
	// capture it to detect that they have become stale.
	version uint64
	// The number of times the map grew to make room for a new key.
	grows int
}

// New constructs a new Map with the specified initial capacity, which must be
// a power of two. If initialCapacity is 0 the map starts out with a capacity
// of 16. The zero value for a Map is not usable.
func New[K comparable, V any](initialCapacity int, options ...Option[K, V]) *Map[K, V] {
	m := &Map[K, V]{}
	m.Init(initialCapacity, options...)
	return m
}

// Init initializes a Map with the specified initial capacity, which must be
// a power of two (0 selects the default of 16). The zero value for a Map is
// not usable and Init must be called before using the map.
//
// Init is intended for usage when a Map is embedded by value in another
// structure.
func (m *Map[K, V]) Init(initialCapacity int, options ...Option[K, V]) {
	*m = Map[K, V]{
		hash:      defaultHash[K](),
		allocator: defaultAllocator[K, V]{},
	}

	for _, op := range options {
		op.apply(m)
	}

	if initialCapacity == 0 {
		initialCapacity = defaultCapacity
	}
	m.table.init(m, initialCapacity)
	m.table.checkInvariants(m)
}

// Close closes the map, releasing every remaining key and value to the
// configured Releaser and the slots back to the configured Allocator. It is
// unnecessary to close a map that uses neither. It is invalid to use a Map
// after it has been closed, though Close itself is idempotent.
func (m *Map[K, V]) Close() {
	if m.allocator == nil {
		return
	}
	m.table.close(m)
	m.version++
	m.allocator = nil
}

// Len returns the number of entries in the map.
func (m *Map[K, V]) Len() int {
	return m.table.len()
}

// IsEmpty returns true if the map has no entries.
func (m *Map[K, V]) IsEmpty() bool {
	return m.table.len() == 0
}

// Capacity returns the number of slots in the map. It is always a power of
// two (or zero after Close).
func (m *Map[K, V]) Capacity() int {
	return m.table.capacity()
}

// Resize grows the map to newCapacity slots, which must be a power of two no
// smaller than the current capacity. Resizing to the current capacity is a
// noop. Pointers previously returned by the map no longer refer to the map's
// storage after a resize.
func (m *Map[K, V]) Resize(newCapacity int) {
	if newCapacity < m.table.capacity() {
		panic(errors.AssertionFailedf("can only increase the capacity of a map: %d < %d",
			newCapacity, m.table.capacity()))
	}
	if newCapacity == m.table.capacity() {
		return
	}
	if !isPowerOfTwo(newCapacity) {
		panic(errors.AssertionFailedf("capacity must be a power of two: %d", newCapacity))
	}
	m.table.resize(m, newCapacity)
	m.version++
	m.table.checkInvariants(m)
}

// Put inserts an entry into the map, overwriting the key and value of an
// existing entry if one with the same key is already present. The prior key
// and value are handed to the Releaser. Put returns a pointer to the stored
// value which remains valid until the next insertion of a new key or
// deletion.
func (m *Map[K, V]) Put(key K, value V) *V {
	h := m.hash(&key)
	if debug {
		fmt.Printf("put(%v): hash=%08x\n", key, h)
	}

	if i, ok := m.table.find(key, h); ok {
		oldKey, oldValue := m.table.replaceAt(i, key, value)
		m.release(oldKey, oldValue)
		m.table.checkInvariants(m)
		return m.table.slots[i].valueRef()
	}
	return m.insertNew(key, value, h)
}

// insertNew inserts a key known not to be present, growing the map first if
// it is at its maximum load.
func (m *Map[K, V]) insertNew(key K, value V, h uint32) *V {
	if m.shouldGrow() {
		m.table.resize(m, 2*m.table.capacity())
		m.grows++
	}
	i := m.table.insertNew(key, value, h)
	m.version++
	m.table.checkInvariants(m)
	return m.table.slots[i].valueRef()
}

// shouldGrow returns true if inserting a new key requires doubling the
// capacity first.
func (m *Map[K, V]) shouldGrow() bool {
	return uint64(m.table.len())*100 >= uint64(m.table.capacity())*maxLoadPercent
}

// Get retrieves the value from the map for the specified key, returning
// ok=false if the key is not present.
func (m *Map[K, V]) Get(key K) (value V, ok bool) {
	i, ok := m.table.find(key, m.hash(&key))
	if !ok {
		return value, false
	}
	return m.table.slots[i].value, true
}

// GetPtr returns a pointer to the value stored for key, returning ok=false
// if the key is not present. The pointer remains valid until the next
// insertion of a new key or deletion.
func (m *Map[K, V]) GetPtr(key K) (value *V, ok bool) {
	i, ok := m.table.find(key, m.hash(&key))
	if !ok {
		return nil, false
	}
	return m.table.slots[i].valueRef(), true
}

// MustGet returns the value stored for key. It panics with an error wrapping
// ErrKeyNotFound if the key is not present; use Get when absence is
// expected.
func (m *Map[K, V]) MustGet(key K) V {
	v, ok := m.Get(key)
	if !ok {
		panic(errors.Wrapf(ErrKeyNotFound, "key %v", key))
	}
	return v
}

// Delete deletes the entry corresponding to the specified key from the map
// and returns its value. The stored key is handed to the Releaser while the
// value becomes the caller's. It is a noop to delete a non-existent key.
func (m *Map[K, V]) Delete(key K) (value V, ok bool) {
	h := m.hash(&key)
	i, ok := m.table.find(key, h)
	if !ok {
		if debug {
			fmt.Printf("delete(%v): not found\n", key)
		}
		return value, false
	}
	storedKey, value := m.table.removeAt(i)
	m.version++
	m.releaseKey(storedKey)
	m.table.checkInvariants(m)
	return value, true
}

// Clear deletes all entries from the map, handing every key and value to the
// Releaser. The capacity of the map is unchanged.
func (m *Map[K, V]) Clear() {
	m.table.clear(m.releaser)
	m.version++
	m.table.checkInvariants(m)
}

// Stats returns occupancy and probe length statistics for the map. It walks
// every slot.
func (m *Map[K, V]) Stats() Stats {
	st := m.table.stats()
	st.Grows = m.grows
	return st
}

// GoString implements the fmt.GoStringer interface which is used when
// formatting using the "%#v" format specifier.
func (m *Map[K, V]) GoString() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "grows=%d  version=%d\n", m.grows, m.version)
	buf.WriteString(m.table.debugString())
	return buf.String()
}

func (m *Map[K, V]) release(key K, value V) {
	if m.releaser != nil {
		m.releaser.ReleaseKey(key)
		m.releaser.ReleaseValue(value)
	}
}

func (m *Map[K, V]) releaseKey(key K) {
	if m.releaser != nil {
		m.releaser.ReleaseKey(key)
	}
}

// checkVersion panics if the map was structurally mutated since version was
// captured by an entry view or iterator.
func (m *Map[K, V]) checkVersion(version uint64, what string) {
	if m.version != version {
		panic(errors.AssertionFailedf("%s used after the map was modified", errors.Safe(what)))
	}
}
