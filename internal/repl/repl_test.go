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

package repl

import (
	"bytes"
	"strings"
	"testing"

	"github.com/cockroachdb/robinhood"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestREPL(t *testing.T) (*REPL, *bytes.Buffer) {
	m := robinhood.New[string, string](4, robinhood.WithHash[string, string](robinhood.FxHashString))
	t.Cleanup(m.Close)
	var out bytes.Buffer
	return New(m, &out, zaptest.NewLogger(t)), &out
}

func TestExec(t *testing.T) {
	r, out := newTestREPL(t)

	testCases := []struct {
		line     string
		expected string
	}{
		{"put a 1", "OK\n"},
		{"put a 2", "OK (replaced \"1\")\n"},
		{"PUT b 3", "OK\n"},
		{"get a", "\"2\"\n"},
		{"get c", "(not found)\n"},
		{"len", "2\n"},
		{"cap", "4\n"},
		{"del a", "OK (was \"2\")\n"},
		{"del a", "(not found)\n"},
		{"delete b", "OK (was \"3\")\n"},
		{"len", "0\n"},
		{"grow 3", "Error: capacity must be a power of two no smaller than 4: 3\n"},
		{"grow 2", "Error: capacity must be a power of two no smaller than 4: 2\n"},
		{"grow x", "Error: capacity must be an integer: \"x\"\n"},
		{"grow 4294967296", "Error: capacity 4294967296 exceeds maximum 2147483648\n"},
		{"grow 16", "OK (capacity=16)\n"},
		{"seq 10", "OK: inserted 10 entries (len=10 capacity=16)\n"},
		{"seq 0", "Error: count must be a positive integer: \"0\"\n"},
		{"put a", "Error: usage: put <key> <value>\n"},
		{"get", "Error: usage: get <key>\n"},
		{"bogus", "Error: unknown command: bogus (type 'help' for commands)\n"},
		{"   ", ""},
		{"clear", "OK\n"},
		{"len", "0\n"},
	}
	for _, c := range testCases {
		out.Reset()
		require.False(t, r.Exec(c.line), c.line)
		require.Equal(t, c.expected, out.String(), c.line)
	}

	for _, line := range []string{"exit", "quit", "q", "EXIT"} {
		require.True(t, r.Exec(line), line)
	}
}

func TestExecPutReplaceHashesOnce(t *testing.T) {
	var hashes int
	m := robinhood.New[string, string](4, robinhood.WithHash[string, string](func(key *string) uint32 {
		hashes++
		return robinhood.FxHashString(key)
	}))
	t.Cleanup(m.Close)
	var out bytes.Buffer
	r := New(m, &out, zaptest.NewLogger(t))

	r.Exec("put a 1")
	hashes = 0
	out.Reset()
	r.Exec("put a 2")
	require.Equal(t, "OK (replaced \"1\")\n", out.String())
	require.Equal(t, 1, hashes)
	require.Equal(t, "2", m.MustGet("a"))
}

func TestExecSeqPrefix(t *testing.T) {
	r, out := newTestREPL(t)
	r.Exec("seq 3 x")
	r.Exec("seq 2 x")
	out.Reset()
	r.Exec("get x2")
	require.Equal(t, "\"2\"\n", out.String())
	out.Reset()
	r.Exec("len")
	require.Equal(t, "3\n", out.String())
}

func TestExecScan(t *testing.T) {
	r, out := newTestREPL(t)
	r.Exec("seq 10")

	out.Reset()
	r.Exec("scan 3")
	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	require.Equal(t, "(3 of 10 entries)", lines[3])
	for _, l := range lines[:3] {
		require.True(t, strings.HasPrefix(l, "\"k"), l)
	}

	out.Reset()
	r.Exec("ls")
	require.Contains(t, out.String(), "(10 of 10 entries)")

	out.Reset()
	r.Exec("scan 0")
	require.Equal(t, "Error: limit must be a positive integer: \"0\"\n", out.String())
}

func TestExecStatsAndDump(t *testing.T) {
	r, out := newTestREPL(t)
	r.Exec("seq 20")

	out.Reset()
	r.Exec("stats")
	require.Contains(t, out.String(), "len=20 capacity=32")
	require.Contains(t, out.String(), "grows=3")
	require.Contains(t, out.String(), "max-displacement=")

	out.Reset()
	r.Exec("dump")
	require.Contains(t, out.String(), "capacity=32  used=20")
	require.Equal(t, 32+2, strings.Count(out.String(), "\n"))
}

func TestHelp(t *testing.T) {
	r, out := newTestREPL(t)
	r.Exec("help")
	for _, cmd := range []string{"put", "get", "del", "scan", "stats", "dump", "grow", "seq", "clear"} {
		require.Contains(t, out.String(), "  "+cmd+" ")
	}
}

func TestComplete(t *testing.T) {
	require.Equal(t, []string{"del", "delete", "dump"}, complete("d"))
	require.Equal(t, []string{"scan", "stats", "seq"}, complete("S"))
	require.Empty(t, complete("z"))
}
