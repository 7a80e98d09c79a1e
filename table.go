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

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// table is the backing storage of a Map: a power of two sized array of
// slots using Robin-Hood insertion and backward-shift deletion. The table is
// handed precomputed hashes by the Map and never hashes keys itself (except
// when checking invariants).
type table[K comparable, V any] struct {
	// slots is capacity in length.
	slots []Slot[K, V]
	// mask is capacity-1 and is used to compute i%capacity with a bitwise &.
	mask uint32
	// The number of occupied slots.
	used int
	// maxDisplacement is the largest displacement any entry has had since
	// the table was created. It bounds the number of slots find examines. It
	// only ever grows: deletions do not lower it.
	maxDisplacement uint32
}

// MaxCapacity is the largest supported table capacity. Hashes and
// displacements are 32 bits wide so the mask must fit in a uint32.
const MaxCapacity = 1 << 31

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// init allocates capacity empty slots. Capacity must be a power of two no
// larger than MaxCapacity.
func (t *table[K, V]) init(m *Map[K, V], capacity int) {
	if !isPowerOfTwo(capacity) {
		panic(errors.AssertionFailedf("capacity must be a power of two: %d", capacity))
	}
	if uint64(capacity) > MaxCapacity {
		panic(errors.AssertionFailedf("capacity %d exceeds maximum %d", capacity, uint64(MaxCapacity)))
	}
	slots := m.allocator.Alloc(capacity)
	if len(slots) != capacity {
		panic(errors.AssertionFailedf("allocator returned %d slots, expected %d", len(slots), capacity))
	}
	*t = table[K, V]{
		slots: slots,
		mask:  uint32(capacity - 1),
	}
}

func (t *table[K, V]) capacity() int {
	return len(t.slots)
}

func (t *table[K, V]) len() int {
	return t.used
}

// insertNew inserts an entry known not to be in the table and returns the
// index the entry was placed at. The caller guarantees there is at least one
// empty slot.
//
// Starting at the ideal index of the new entry we walk forward. Whenever we
// meet an entry that is closer to its own ideal index than the entry we are
// carrying, the two are swapped and we continue walking with the evicted
// entry. The walk ends at the first empty slot. This keeps the variance of
// displacements low, which is what lets find give up after maxDisplacement
// probes.
func (t *table[K, V]) insertNew(key K, value V, hash uint32) int {
	if invariants && t.used >= len(t.slots) {
		panic(errors.AssertionFailedf("insert into full table: used=%d capacity=%d", t.used, len(t.slots)))
	}

	carry := makeSlot(key, value, hash)
	inserted := -1
	i := hash & t.mask
	for {
		s := &t.slots[i]
		if !s.occupied {
			*s = carry
			if inserted < 0 {
				inserted = int(i)
			}
			if debug {
				fmt.Printf("insert(placed): index=%d displacement=%d\n", i, carry.displacement)
			}
			break
		}
		if s.displacement < carry.displacement {
			if debug {
				fmt.Printf("insert(evict): index=%d resident=%d carried=%d\n",
					i, s.displacement, carry.displacement)
			}
			*s, carry = carry, *s
			if inserted < 0 {
				inserted = int(i)
			}
		}
		i = (i + 1) & t.mask
		carry.incrementDisplacement()
		t.maxDisplacement = max(t.maxDisplacement, carry.displacement)
	}

	t.used++
	return inserted
}

// find returns the index of key. Only maxDisplacement+1 slots starting at
// the ideal index need to be examined, and an empty slot ends the search
// early.
func (t *table[K, V]) find(key K, hash uint32) (int, bool) {
	if len(t.slots) == 0 {
		return 0, false
	}
	for d := uint32(0); d <= t.maxDisplacement; d++ {
		i := (hash + d) & t.mask
		s := &t.slots[i]
		if !s.occupied {
			if debug {
				fmt.Printf("find(not-found): index=%d probes=%d\n", i, d+1)
			}
			return 0, false
		}
		if s.hash == hash && s.key == key {
			return int(i), true
		}
	}
	if debug {
		fmt.Printf("find(not-found): exhausted max-displacement=%d\n", t.maxDisplacement)
	}
	return 0, false
}

// removeAt removes the entry at index i and returns it. Rather than leaving
// a tombstone, the run of entries following i is shifted back by one slot
// until we reach an empty slot or an entry that already sits at its ideal
// index (moving that one back would put it before its ideal index).
func (t *table[K, V]) removeAt(i int) (K, V) {
	cur := uint32(i)
	t.used--

	for {
		next := (cur + 1) & t.mask
		ns := &t.slots[next]
		if !ns.occupied || ns.displacement == 0 {
			if debug {
				fmt.Printf("remove(done): index=%d start=%d\n", cur, i)
			}
			key, value, _ := t.slots[cur].take()
			return key, value
		}

		// Move the entry being removed forward and the following entry back
		// into its place.
		t.slots[cur], t.slots[next] = t.slots[next], t.slots[cur]
		t.slots[cur].decrementDisplacement()
		cur = next
	}
}

// replaceAt overwrites the key and value stored at index i, returning the
// previous pair.
func (t *table[K, V]) replaceAt(i int, key K, value V) (K, V) {
	return t.slots[i].replace(key, value)
}

// resize reallocates the table with newCapacity slots and reinserts every
// entry. The cached hash of each entry is reused; the ideal indexes change
// with the capacity so every entry is placed from scratch. The old slot
// array is returned to the allocator.
func (t *table[K, V]) resize(m *Map[K, V], newCapacity int) {
	old := *t
	t.init(m, newCapacity)

	if debug {
		fmt.Printf("resize: capacity=%d->%d used=%d\n", len(old.slots), newCapacity, old.used)
	}

	for i := range old.slots {
		s := &old.slots[i]
		if !s.occupied {
			continue
		}
		key, value, hash := s.take()
		t.insertNew(key, value, hash)
	}

	if old.slots != nil {
		m.allocator.Free(old.slots)
	}
}

// clear releases every entry and empties the table without changing its
// capacity.
func (t *table[K, V]) clear(r Releaser[K, V]) {
	for i := range t.slots {
		t.slots[i].release(r)
	}
	t.used = 0
	t.maxDisplacement = 0
}

// close releases every entry and returns the slot array to the allocator.
func (t *table[K, V]) close(m *Map[K, V]) {
	t.clear(m.releaser)
	if t.slots != nil {
		m.allocator.Free(t.slots)
	}
	*t = table[K, V]{}
}

func (t *table[K, V]) checkInvariants(m *Map[K, V]) {
	if invariants {
		if t.slots != nil && !isPowerOfTwo(len(t.slots)) {
			panic(errors.AssertionFailedf("invariant failed: capacity %d is not a power of two", len(t.slots)))
		}
		if t.slots != nil && uint32(len(t.slots)-1) != t.mask {
			panic(errors.AssertionFailedf("invariant failed: mask %d does not match capacity %d", t.mask, len(t.slots)))
		}

		var used int
		for i := range t.slots {
			s := &t.slots[i]
			if !s.occupied {
				continue
			}
			used++

			if h := m.hash(&s.key); h != s.hash {
				panic(errors.AssertionFailedf("invariant failed: slot(%d): cached hash %08x != %08x\n%s",
					i, s.hash, h, t.debugString()))
			}
			if ideal := (uint32(i) - s.displacement) & t.mask; ideal != s.hash&t.mask {
				panic(errors.AssertionFailedf("invariant failed: slot(%d): displacement %d leads to %d, ideal index is %d\n%s",
					i, s.displacement, ideal, s.hash&t.mask, t.debugString()))
			}
			if s.displacement > t.maxDisplacement {
				panic(errors.AssertionFailedf("invariant failed: slot(%d): displacement %d > max displacement %d\n%s",
					i, s.displacement, t.maxDisplacement, t.debugString()))
			}
			if j, ok := t.find(s.key, s.hash); !ok || j != i {
				panic(errors.AssertionFailedf("invariant failed: slot(%d): %v not found [hash=%08x]\n%s",
					i, s.key, s.hash, t.debugString()))
			}
		}

		if used != t.used {
			panic(errors.AssertionFailedf("invariant failed: found %d used slots, but used count is %d\n%s",
				used, t.used, t.debugString()))
		}
	}
}

func (t *table[K, V]) debugString() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "capacity=%d  used=%d  max-displacement=%d\n", len(t.slots), t.used, t.maxDisplacement)
	for i := range t.slots {
		s := &t.slots[i]
		if !s.occupied {
			fmt.Fprintf(&buf, "  %4d: empty\n", i)
			continue
		}
		fmt.Fprintf(&buf, "  %4d: %v [hash=%08x ideal=%d displacement=%d]\n",
			i, s.key, s.hash, s.hash&t.mask, s.displacement)
	}
	return buf.String()
}

// Stats describes the occupancy and probe lengths of a Map.
type Stats struct {
	// Len is the number of entries.
	Len int `json:"len"`
	// Capacity is the number of slots.
	Capacity int `json:"capacity"`
	// Grows is the number of times the map doubled its capacity to make room
	// for a new key. Explicit calls to Resize are not counted.
	Grows int `json:"grows"`
	// MaxDisplacement is the probe bound lookups use. It is the largest
	// displacement observed since the last resize or clear, which can be
	// larger than any live entry's displacement after deletions.
	MaxDisplacement int `json:"max_displacement"`
	// LiveMaxDisplacement is the largest displacement of a live entry.
	LiveMaxDisplacement int `json:"live_max_displacement"`
	// Displacements is a histogram: Displacements[d] is the number of live
	// entries d slots away from their ideal index.
	Displacements []int `json:"displacements"`
}

// LoadFactor returns the fraction of occupied slots.
func (s Stats) LoadFactor() float64 {
	if s.Capacity == 0 {
		return 0
	}
	return float64(s.Len) / float64(s.Capacity)
}

// MeanDisplacement returns the average displacement of live entries, which
// is one less than the average number of slots examined by a successful
// lookup.
func (s Stats) MeanDisplacement() float64 {
	if s.Len == 0 {
		return 0
	}
	var sum int
	for d, n := range s.Displacements {
		sum += d * n
	}
	return float64(sum) / float64(s.Len)
}

func (t *table[K, V]) stats() Stats {
	st := Stats{
		Len:             t.used,
		Capacity:        len(t.slots),
		MaxDisplacement: int(t.maxDisplacement),
	}
	for i := range t.slots {
		s := &t.slots[i]
		if !s.occupied {
			continue
		}
		d := int(s.displacement)
		for len(st.Displacements) <= d {
			st.Displacements = append(st.Displacements, 0)
		}
		st.Displacements[d]++
		st.LiveMaxDisplacement = max(st.LiveMaxDisplacement, d)
	}
	return st
}
