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
	"testing"

	"github.com/stretchr/testify/require"
)

type slotSummary struct {
	key          int
	displacement uint32
}

func (m *Map[K, V]) layout() []any {
	r := make([]any, len(m.table.slots))
	for i := range m.table.slots {
		s := &m.table.slots[i]
		if s.occupied {
			r[i] = slotSummary{key: any(s.key).(int), displacement: s.displacement}
		}
	}
	return r
}

// divTenHash sends keys 0-9 to ideal index 0, 10-19 to ideal index 1, etc.
func divTenHash(key *int) uint32 {
	return uint32(*key / 10)
}

func TestTableInsertSteals(t *testing.T) {
	m := New[int, int](16, WithHash[int, int](divTenHash))
	tbl := &m.table
	insert := func(k int) int {
		return tbl.insertNew(k, k, m.hash(&k))
	}

	require.Equal(t, 0, insert(0))
	require.Equal(t, 1, insert(1))
	require.Equal(t, 2, insert(10))
	// Key 2 is further from home at index 2 than key 10 is, so it takes the
	// slot and key 10 moves along.
	require.Equal(t, 2, insert(2))

	expected := make([]any, 16)
	expected[0] = slotSummary{0, 0}
	expected[1] = slotSummary{1, 1}
	expected[2] = slotSummary{2, 2}
	expected[3] = slotSummary{10, 2}
	require.Equal(t, expected, m.layout())
	require.EqualValues(t, 2, tbl.maxDisplacement)
	require.EqualValues(t, 4, tbl.len())

	for _, k := range []int{0, 1, 2, 10} {
		i, ok := tbl.find(k, m.hash(&k))
		require.True(t, ok, "%d", k)
		require.Equal(t, k, tbl.slots[i].key)
	}
	k := 3
	_, ok := tbl.find(k, m.hash(&k))
	require.False(t, ok)

	// Removing key 1 shifts keys 2 and 10 back by one.
	i, ok := tbl.find(1, 0)
	require.True(t, ok)
	key, value := tbl.removeAt(i)
	require.Equal(t, 1, key)
	require.Equal(t, 1, value)

	expected = make([]any, 16)
	expected[0] = slotSummary{0, 0}
	expected[1] = slotSummary{2, 1}
	expected[2] = slotSummary{10, 1}
	require.Equal(t, expected, m.layout())
	require.EqualValues(t, 2, tbl.maxDisplacement)
	require.EqualValues(t, 3, tbl.len())
}

func TestTableRemoveStopsAtHome(t *testing.T) {
	m := New[int, int](16, WithHash[int, int](divTenHash))
	for _, k := range []int{0, 1, 10} {
		m.Put(k, k)
	}
	// Key 20 hashes to index 2, which key 10 already holds.
	m.Put(20, 20)
	expected := make([]any, 16)
	expected[0] = slotSummary{0, 0}
	expected[1] = slotSummary{1, 1}
	expected[2] = slotSummary{10, 1}
	expected[3] = slotSummary{20, 1}
	require.Equal(t, expected, m.layout())

	// Removing 0 shifts 1 home, but 10 and 20 follow along since they are
	// displaced too.
	_, ok := m.Delete(0)
	require.True(t, ok)
	expected = make([]any, 16)
	expected[0] = slotSummary{1, 0}
	expected[1] = slotSummary{10, 0}
	expected[2] = slotSummary{20, 0}
	require.Equal(t, expected, m.layout())

	// Now every entry is at home: removing 1 shifts nothing.
	_, ok = m.Delete(1)
	require.True(t, ok)
	expected = make([]any, 16)
	expected[1] = slotSummary{10, 0}
	expected[2] = slotSummary{20, 0}
	require.Equal(t, expected, m.layout())
	m.checkDisplacements(t)
}

func TestTableWrapAround(t *testing.T) {
	m := New[int, int](4, WithHash[int, int](func(key *int) uint32 {
		return uint32(*key)
	}))
	m.Put(3, 3)
	m.Put(7, 7)

	expected := make([]any, 4)
	expected[3] = slotSummary{3, 0}
	expected[0] = slotSummary{7, 1}
	require.Equal(t, expected, m.layout())
	require.EqualValues(t, 7, m.MustGet(7))

	_, ok := m.Delete(3)
	require.True(t, ok)
	expected = make([]any, 4)
	expected[3] = slotSummary{7, 0}
	require.Equal(t, expected, m.layout())
	require.EqualValues(t, 7, m.MustGet(7))
}

func TestTableFindStopsAtEmpty(t *testing.T) {
	m := New[int, int](16, WithHash[int, int](func(key *int) uint32 {
		return uint32(*key)
	}))
	for _, k := range []int{0, 16, 32} {
		m.Put(k, k)
	}
	require.EqualValues(t, 2, m.table.maxDisplacement)

	// Key 5 hashes to an empty slot.
	_, ok := m.Get(5)
	require.False(t, ok)
	// Key 48 probes 0, 1 and 2, all occupied by other keys, and gives up
	// once the displacement bound is reached.
	_, ok = m.Get(48)
	require.False(t, ok)
}

func TestTableResizeKeepsHashes(t *testing.T) {
	calls := 0
	m := New[int, int](16, WithHash[int, int](func(key *int) uint32 {
		calls++
		return uint32(*key) * 0x9e3779b9
	}))
	for i := 0; i < 100; i++ {
		m.Put(i, i)
	}
	require.EqualValues(t, 3, m.Stats().Grows)
	if !invariants {
		// One hash per Put; growth reuses the cached hashes.
		require.Equal(t, 100, calls)
	}
}

func TestTableClose(t *testing.T) {
	m := New[int, int](0)
	m.Put(1, 1)
	m.Close()
	_, ok := m.Get(1)
	require.False(t, ok)
	require.EqualValues(t, 0, m.Len())
	require.True(t, m.IsEmpty())
}
