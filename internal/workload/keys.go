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

package workload

import (
	"io"
	"math/rand"

	"github.com/cockroachdb/robinhood"
	"github.com/google/uuid"
)

// keySource maps key ids to keys. The same id always yields the same key and
// distinct ids yield distinct keys.
type keySource[K comparable] interface {
	key(id int) K
}

type intKeys struct{}

func (intKeys) key(id int) int { return id }

// uuidKeys generates random UUIDs on demand from a seeded source, so that a
// trial is reproducible.
type uuidKeys struct {
	rand io.Reader
	keys []uuid.UUID
}

func newUUIDKeys(rng *rand.Rand) *uuidKeys {
	return &uuidKeys{rand: rng}
}

func (u *uuidKeys) key(id int) uuid.UUID {
	for len(u.keys) <= id {
		k, err := uuid.NewRandomFromReader(u.rand)
		if err != nil {
			// A *rand.Rand never fails to read.
			panic(err)
		}
		u.keys = append(u.keys, k)
	}
	return u.keys[id]
}

// fxUUIDHash hashes the 16 bytes of a UUID with the Fx hash.
func fxUUIDHash(u *uuid.UUID) uint32 {
	s := string(u[:])
	return robinhood.FxHashString(&s)
}

func hashOptions[K comparable](hash string, fx func(*K) uint32) []robinhood.Option[K, int] {
	if hash == HashFx {
		return []robinhood.Option[K, int]{robinhood.WithHash[K, int](fx)}
	}
	return nil
}
