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

import "github.com/cockroachdb/errors"

// Slot holds at most one key and value along with the cached hash of the key
// and the slot's displacement from its ideal index. The zero value is an
// empty slot.
//
// The payload fields of an empty slot are always zero so that the GC does not
// retain keys and values that have been removed from the map.
type Slot[K comparable, V any] struct {
	key   K
	value V
	hash  uint32
	// displacement is the distance from the ideal index (hash&mask) to the
	// index the slot actually lives at. It is meaningless if !occupied.
	displacement uint32
	occupied     bool
}

func makeSlot[K comparable, V any](key K, value V, hash uint32) Slot[K, V] {
	return Slot[K, V]{
		key:      key,
		value:    value,
		hash:     hash,
		occupied: true,
	}
}

// keyRef returns a pointer to the key, or nil if the slot is empty.
func (s *Slot[K, V]) keyRef() *K {
	if !s.occupied {
		return nil
	}
	return &s.key
}

// valueRef returns a pointer to the value, or nil if the slot is empty.
func (s *Slot[K, V]) valueRef() *V {
	if !s.occupied {
		return nil
	}
	return &s.value
}

// take moves the payload out of the slot and marks it empty.
func (s *Slot[K, V]) take() (K, V, uint32) {
	if !s.occupied {
		panic(errors.AssertionFailedf("take from an empty slot"))
	}
	key, value, hash := s.key, s.value, s.hash
	*s = Slot[K, V]{}
	return key, value, hash
}

// replaceValue swaps in a new value and returns the old one.
func (s *Slot[K, V]) replaceValue(value V) V {
	if !s.occupied {
		panic(errors.AssertionFailedf("replace value of an empty slot"))
	}
	old := s.value
	s.value = value
	return old
}

// replace swaps in a new key and value and returns the old pair. The cached
// hash is kept: the new key compares equal to the old one.
func (s *Slot[K, V]) replace(key K, value V) (K, V) {
	if !s.occupied {
		panic(errors.AssertionFailedf("replace key and value of an empty slot"))
	}
	oldKey, oldValue := s.key, s.value
	s.key, s.value = key, value
	return oldKey, oldValue
}

func (s *Slot[K, V]) incrementDisplacement() {
	s.displacement++
}

func (s *Slot[K, V]) decrementDisplacement() {
	if s.displacement == 0 {
		panic(errors.AssertionFailedf("decrement displacement below zero: slot hash=%08x", s.hash))
	}
	s.displacement--
}

// release hands the key and then the value to r and empties the slot. It is
// a no-op on an empty slot.
func (s *Slot[K, V]) release(r Releaser[K, V]) {
	if !s.occupied {
		return
	}
	key, value, _ := s.take()
	if r != nil {
		r.ReleaseKey(key)
		r.ReleaseValue(value)
	}
}
