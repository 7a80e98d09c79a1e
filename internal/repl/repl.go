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

// Package repl is an interactive shell over a robinhood map of strings, for
// watching how entries are placed, shifted and probed.
package repl

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/robinhood"
	"github.com/peterh/liner"
	"go.uber.org/zap"
)

const prompt = "rhmap> "

var commands = []string{
	"put", "get", "del", "delete",
	"scan", "ls", "len", "cap",
	"stats", "dump", "grow", "seq",
	"clear", "help", "exit", "quit", "q",
}

// REPL is the interactive command loop.
type REPL struct {
	m      *robinhood.Map[string, string]
	out    io.Writer
	logger *zap.Logger
	liner  *liner.State
}

// New returns a REPL operating on m and printing to out.
func New(m *robinhood.Map[string, string], out io.Writer, logger *zap.Logger) *REPL {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &REPL{m: m, out: out, logger: logger}
}

// historyFile returns the path to the history file.
func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".rhmap_history")
}

// Run reads commands from the terminal until exit or end of input.
func (r *REPL) Run() error {
	r.liner = liner.NewLiner()
	defer r.liner.Close()

	r.liner.SetCtrlCAborts(true)
	r.liner.SetCompleter(complete)

	if f, err := os.Open(historyFile()); err == nil {
		if _, err := r.liner.ReadHistory(f); err != nil {
			r.logger.Warn("reading history", zap.Error(err))
		}
		f.Close()
	}
	defer r.saveHistory()

	fmt.Fprintf(r.out, "rhmap - robin hood map shell (capacity=%d)\n", r.m.Capacity())
	fmt.Fprintln(r.out, "Type 'help' for available commands.")

	for {
		line, err := r.liner.Prompt(prompt)
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(r.out, "\nBye!")
				return nil
			}
			return errors.Wrap(err, "reading input")
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		r.liner.AppendHistory(line)

		if quit := r.Exec(line); quit {
			fmt.Fprintln(r.out, "Bye!")
			return nil
		}
	}
}

// saveHistory persists command history to disk.
func (r *REPL) saveHistory() {
	path := historyFile()
	if path == "" {
		return
	}
	f, err := os.Create(path)
	if err != nil {
		r.logger.Warn("saving history", zap.String("path", path), zap.Error(err))
		return
	}
	defer f.Close()
	if _, err := r.liner.WriteHistory(f); err != nil {
		r.logger.Warn("saving history", zap.String("path", path), zap.Error(err))
	}
}

// complete provides tab completion for commands.
func complete(line string) []string {
	var completions []string
	lower := strings.ToLower(line)
	for _, cmd := range commands {
		if strings.HasPrefix(cmd, lower) {
			completions = append(completions, cmd)
		}
	}
	return completions
}

// Exec runs a single command line, returning true if the shell should exit.
// Errors are reported to the output rather than returned.
func (r *REPL) Exec(line string) (quit bool) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}
	cmd, args := strings.ToLower(parts[0]), parts[1:]

	var err error
	switch cmd {
	case "exit", "quit", "q":
		return true
	case "help", "?":
		r.printHelp()
	case "put":
		err = r.cmdPut(args)
	case "get":
		err = r.cmdGet(args)
	case "del", "delete":
		err = r.cmdDelete(args)
	case "scan", "ls":
		err = r.cmdScan(args)
	case "len":
		fmt.Fprintln(r.out, r.m.Len())
	case "cap":
		fmt.Fprintln(r.out, r.m.Capacity())
	case "stats":
		r.cmdStats()
	case "dump":
		fmt.Fprint(r.out, r.m.GoString())
	case "grow":
		err = r.cmdGrow(args)
	case "seq":
		err = r.cmdSeq(args)
	case "clear":
		r.m.Clear()
		fmt.Fprintln(r.out, "OK")
	default:
		err = errors.Newf("unknown command: %s (type 'help' for commands)", cmd)
	}
	if err != nil {
		r.logger.Debug("command failed", zap.String("cmd", cmd), zap.Error(err))
		fmt.Fprintf(r.out, "Error: %v\n", err)
	}
	return false
}

func (r *REPL) printHelp() {
	fmt.Fprintln(r.out, "Commands:")
	fmt.Fprintln(r.out, "  put <key> <value>       Insert or overwrite an entry")
	fmt.Fprintln(r.out, "  get <key>               Look up an entry")
	fmt.Fprintln(r.out, "  del <key>               Delete an entry")
	fmt.Fprintln(r.out, "  scan [limit]            List entries in slot order")
	fmt.Fprintln(r.out, "  len                     Number of entries")
	fmt.Fprintln(r.out, "  cap                     Number of slots")
	fmt.Fprintln(r.out, "  stats                   Load factor and displacement histogram")
	fmt.Fprintln(r.out, "  dump                    Show every slot")
	fmt.Fprintln(r.out, "  grow <capacity>         Resize to a larger power of two")
	fmt.Fprintln(r.out, "  seq <count> [prefix]    Insert <prefix>0 .. <prefix><count-1>")
	fmt.Fprintln(r.out, "  clear                   Delete every entry")
	fmt.Fprintln(r.out, "  help                    Show this help")
	fmt.Fprintln(r.out, "  exit / quit / q         Exit")
}

func usage(format string) error {
	return errors.Newf("usage: %s", errors.Safe(format))
}

func (r *REPL) cmdPut(args []string) error {
	if len(args) != 2 {
		return usage("put <key> <value>")
	}
	e := r.m.Entry(args[0])
	if o, ok := e.AsOccupied(); ok {
		old := o.Replace(args[1])
		fmt.Fprintf(r.out, "OK (replaced %q)\n", old)
		return nil
	}
	e.OrInsert(args[1])
	fmt.Fprintln(r.out, "OK")
	return nil
}

func (r *REPL) cmdGet(args []string) error {
	if len(args) != 1 {
		return usage("get <key>")
	}
	v, ok := r.m.Get(args[0])
	if !ok {
		fmt.Fprintln(r.out, "(not found)")
		return nil
	}
	fmt.Fprintf(r.out, "%q\n", v)
	return nil
}

func (r *REPL) cmdDelete(args []string) error {
	if len(args) != 1 {
		return usage("del <key>")
	}
	v, ok := r.m.Delete(args[0])
	if !ok {
		fmt.Fprintln(r.out, "(not found)")
		return nil
	}
	fmt.Fprintf(r.out, "OK (was %q)\n", v)
	return nil
}

func (r *REPL) cmdScan(args []string) error {
	limit := -1
	if len(args) > 1 {
		return usage("scan [limit]")
	}
	if len(args) == 1 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return errors.Newf("limit must be a positive integer: %q", args[0])
		}
		limit = n
	}
	var shown int
	for k, v := range r.m.All {
		if shown == limit {
			break
		}
		fmt.Fprintf(r.out, "%q: %q\n", k, v)
		shown++
	}
	fmt.Fprintf(r.out, "(%d of %d entries)\n", shown, r.m.Len())
	return nil
}

func (r *REPL) cmdStats() {
	st := r.m.Stats()
	fmt.Fprintf(r.out, "len=%d capacity=%d load=%.2f grows=%d\n",
		st.Len, st.Capacity, st.LoadFactor(), st.Grows)
	fmt.Fprintf(r.out, "max-displacement=%d live-max-displacement=%d mean-displacement=%.2f\n",
		st.MaxDisplacement, st.LiveMaxDisplacement, st.MeanDisplacement())
	for d, n := range st.Displacements {
		fmt.Fprintf(r.out, "  %3d: %d\n", d, n)
	}
}

func (r *REPL) cmdGrow(args []string) error {
	if len(args) != 1 {
		return usage("grow <capacity>")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return errors.Newf("capacity must be an integer: %q", args[0])
	}
	if n < r.m.Capacity() || n&(n-1) != 0 {
		return errors.Newf("capacity must be a power of two no smaller than %d: %d", r.m.Capacity(), n)
	}
	if uint64(n) > robinhood.MaxCapacity {
		return errors.Newf("capacity %d exceeds maximum %d", n, uint64(robinhood.MaxCapacity))
	}
	r.m.Resize(n)
	fmt.Fprintf(r.out, "OK (capacity=%d)\n", r.m.Capacity())
	return nil
}

func (r *REPL) cmdSeq(args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return usage("seq <count> [prefix]")
	}
	count, err := strconv.Atoi(args[0])
	if err != nil || count < 1 {
		return errors.Newf("count must be a positive integer: %q", args[0])
	}
	prefix := "k"
	if len(args) == 2 {
		prefix = args[1]
	}
	for i := range count {
		s := strconv.Itoa(i)
		*r.m.Entry(prefix + s).OrDefault() = s
	}
	fmt.Fprintf(r.out, "OK: inserted %d entries (len=%d capacity=%d)\n", count, r.m.Len(), r.m.Capacity())
	return nil
}
