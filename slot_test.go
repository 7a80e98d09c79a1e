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

func TestSlot(t *testing.T) {
	var empty Slot[string, int]
	require.Nil(t, empty.keyRef())
	require.Nil(t, empty.valueRef())

	s := makeSlot("a", 1, 7)
	require.Equal(t, "a", *s.keyRef())
	require.Equal(t, 1, *s.valueRef())
	require.EqualValues(t, 0, s.displacement)

	require.Equal(t, 1, s.replaceValue(2))
	k, v := s.replace("b", 3)
	require.Equal(t, "a", k)
	require.Equal(t, 2, v)

	s.incrementDisplacement()
	s.incrementDisplacement()
	s.decrementDisplacement()
	require.EqualValues(t, 1, s.displacement)

	k, v, h := s.take()
	require.Equal(t, "b", k)
	require.Equal(t, 3, v)
	require.EqualValues(t, 7, h)
	require.Equal(t, Slot[string, int]{}, s)
}

func TestSlotMisuse(t *testing.T) {
	var s Slot[int, int]
	requireAssertionFailure(t, func() { s.take() })
	requireAssertionFailure(t, func() { s.replaceValue(1) })
	requireAssertionFailure(t, func() { s.replace(1, 1) })

	s = makeSlot(1, 1, 1)
	requireAssertionFailure(t, func() { s.decrementDisplacement() })
}

func TestSlotRelease(t *testing.T) {
	var keys, values []int
	r := ReleaseFuncs[int, int]{
		Key:   func(k int) { keys = append(keys, k) },
		Value: func(v int) { values = append(values, v) },
	}

	var empty Slot[int, int]
	empty.release(r)
	require.Empty(t, keys)

	s := makeSlot(1, 10, 1)
	s.release(r)
	require.Equal(t, []int{1}, keys)
	require.Equal(t, []int{10}, values)
	require.False(t, s.occupied)

	// Releasing twice is a noop.
	s.release(r)
	require.Equal(t, []int{1}, keys)

	// A nil releaser still empties the slot.
	s = makeSlot(2, 20, 2)
	s.release(nil)
	require.False(t, s.occupied)
}
