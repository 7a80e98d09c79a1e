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

// Option provides an interface to do work on Map while it is being created.
type Option[K comparable, V any] interface {
	apply(m *Map[K, V])
}

type hashOption[K comparable, V any] struct {
	hash hashFn[K]
}

func (op hashOption[K, V]) apply(m *Map[K, V]) {
	m.hash = op.hash
}

// WithHash is an option to specify the hash function to use for a Map[K,V].
// The function must be deterministic for the lifetime of the map. It does not
// need to be resistant to adversarial keys.
func WithHash[K comparable, V any](hash func(key *K) uint32) Option[K, V] {
	return hashOption[K, V]{hash}
}

// Allocator specifies an interface for allocating and releasing the slot
// arrays used by a Map. The default allocator utilizes Go's builtin make()
// and allows the GC to reclaim memory.
//
// If the allocator is manually managing memory and requires that slot arrays
// be freed then Map.Close must be called in order to ensure Free is called
// for the final array.
type Allocator[K comparable, V any] interface {
	// Alloc should return a slice equivalent to make([]Slot[K,V], n).
	Alloc(n int) []Slot[K, V]

	// Free can optionally release the memory associated with the supplied
	// slice that is guaranteed to have been allocated by Alloc. Every slot in
	// the slice is empty when Free is called.
	Free(v []Slot[K, V])
}

type defaultAllocator[K comparable, V any] struct{}

func (defaultAllocator[K, V]) Alloc(n int) []Slot[K, V] {
	return make([]Slot[K, V], n)
}

func (defaultAllocator[K, V]) Free(v []Slot[K, V]) {
}

type allocatorOption[K comparable, V any] struct {
	allocator Allocator[K, V]
}

func (op allocatorOption[K, V]) apply(m *Map[K, V]) {
	m.allocator = op.allocator
}

// WithAllocator is an option to specify the Allocator to use for a Map[K,V].
func WithAllocator[K comparable, V any](allocator Allocator[K, V]) Option[K, V] {
	return allocatorOption[K, V]{allocator}
}

// Releaser is notified whenever the map destroys a key or value it owns:
// the prior key and value when Put overwrites an existing entry, the stored
// key when Delete hands the value back to the caller, and every live key and
// value on Clear and Close. Each stored key and value is released at most
// once, and never after it was handed back to the caller. Moving entries
// during growth or deletion does not release anything.
type Releaser[K comparable, V any] interface {
	ReleaseKey(key K)
	ReleaseValue(value V)
}

// ReleaseFuncs adapts a pair of functions to the Releaser interface. Either
// function may be nil.
type ReleaseFuncs[K comparable, V any] struct {
	Key   func(key K)
	Value func(value V)
}

// ReleaseKey implements Releaser.
func (f ReleaseFuncs[K, V]) ReleaseKey(key K) {
	if f.Key != nil {
		f.Key(key)
	}
}

// ReleaseValue implements Releaser.
func (f ReleaseFuncs[K, V]) ReleaseValue(value V) {
	if f.Value != nil {
		f.Value(value)
	}
}

type releaserOption[K comparable, V any] struct {
	releaser Releaser[K, V]
}

func (op releaserOption[K, V]) apply(m *Map[K, V]) {
	m.releaser = op.releaser
}

// WithReleaser is an option to specify the Releaser notified when the map
// destroys keys and values.
func WithReleaser[K comparable, V any](releaser Releaser[K, V]) Option[K, V] {
	return releaserOption[K, V]{releaser}
}
