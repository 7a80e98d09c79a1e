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
	"hash/maphash"
	"math/bits"
	"unsafe"

	"golang.org/x/exp/constraints"
)

// hashFn maps a key to the 32-bit hash used to place it in the table.
type hashFn[K comparable] func(key *K) uint32

// defaultSeed is shared by every map using the default hasher so that the
// hash of a key is stable for the lifetime of the process.
var defaultSeed = maphash.MakeSeed()

// defaultHash returns the hash function used when WithHash is not specified.
// It is the hash of Go's builtin map[K]V folded to 32 bits.
func defaultHash[K comparable]() hashFn[K] {
	return func(key *K) uint32 {
		h := maphash.Comparable(defaultSeed, *key)
		return uint32(h) ^ uint32(h>>32)
	}
}

// fxSeed is the multiplier of the 32-bit Fx hash (the golden ratio).
const fxSeed = 0x9e3779b9

func fxAdd(h, word uint32) uint32 {
	return (bits.RotateLeft32(h, 5) ^ word) * fxSeed
}

// FxHash is the 32-bit Fx hash of an integer key. It is a single multiply
// and rotate per 32-bit word which makes it a good fit for small integer
// keys on slow CPUs. It offers no protection against chosen keys.
//
//	m := robinhood.New[int, string](0, robinhood.WithHash[int, string](robinhood.FxHash[int]))
func FxHash[K constraints.Integer](key *K) uint32 {
	v := uint64(*key)
	h := fxAdd(0, uint32(v))
	if unsafe.Sizeof(*key) > 4 {
		h = fxAdd(h, uint32(v>>32))
	}
	return h
}

// FxHashString is the 32-bit Fx hash of a string key. The string is consumed
// in little-endian 4, 2 and 1 byte words. Short words are zero-extended, so
// the length is mixed into the final 0xff terminator to keep strings that
// differ only in trailing NUL bytes apart.
func FxHashString(key *string) uint32 {
	s := *key
	n := uint32(len(s))
	var h uint32
	for len(s) >= 4 {
		h = fxAdd(h, uint32(s[0])|uint32(s[1])<<8|uint32(s[2])<<16|uint32(s[3])<<24)
		s = s[4:]
	}
	if len(s) >= 2 {
		h = fxAdd(h, uint32(s[0])|uint32(s[1])<<8)
		s = s[2:]
	}
	if len(s) >= 1 {
		h = fxAdd(h, uint32(s[0]))
	}
	return fxAdd(h, 0xff^n)
}
