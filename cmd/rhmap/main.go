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

// rhmap is a developer tool for exercising robinhood maps.
//
// Usage:
//
//	rhmap run [flags] <workload.jsonc>   Run a workload and print a report
//	rhmap repl [flags]                   Interactive shell over a string map
//
// Flags:
//
//	--log-level    debug, info, warn or error (default: info)
//	--log-format   console or json (default: console)
//	--report       Write the report to a file instead of stdout (run)
//	--parallel     Number of trials run at once (run, default: GOMAXPROCS)
//	--hash         runtime or fx, overrides the workload's hash
//	--capacity     Initial capacity, overrides the workload's capacity
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/robinhood"
	"github.com/cockroachdb/robinhood/internal/repl"
	"github.com/cockroachdb/robinhood/internal/workload"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// options holds the flags shared by every command.
type options struct {
	logLevel  string
	logFormat string
	report    string
	parallel  int
	hash      string
	capacity  int
	flags     *flag.FlagSet
}

func parseFlags(name string, args []string) (*options, error) {
	o := &options{flags: flag.NewFlagSet(name, flag.ContinueOnError)}
	fs := o.flags
	fs.SetOutput(io.Discard)
	fs.StringVar(&o.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	fs.StringVar(&o.logFormat, "log-format", "console", "Log format (console, json)")
	fs.StringVar(&o.report, "report", "", "Write the report to this file")
	fs.IntVar(&o.parallel, "parallel", 0, "Number of trials run at once")
	fs.StringVar(&o.hash, "hash", workload.HashRuntime, "Hash function (runtime, fx)")
	fs.IntVar(&o.capacity, "capacity", 0, "Initial capacity, a power of two")
	if err := fs.Parse(args); err != nil {
		return nil, errors.Wrap(err, "parsing flags")
	}
	return o, nil
}

// newLogger builds the zap logger selected by the flags. Logs go to stderr
// so that reports written to stdout stay machine readable.
func (o *options) newLogger() (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(o.logLevel)); err != nil {
		return nil, errors.Wrapf(err, "invalid --log-level")
	}

	var cfg zap.Config
	switch o.logFormat {
	case "console":
		cfg = zap.NewDevelopmentConfig()
	case "json":
		cfg = zap.NewProductionConfig()
	default:
		return nil, errors.Newf("invalid --log-format %q", o.logFormat)
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}

func run(ctx context.Context, args []string, out, errOut io.Writer) int {
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}

	var err error
	switch cmd := args[0]; cmd {
	case "run":
		err = cmdRun(ctx, args[1:], out)
	case "repl":
		err = cmdREPL(args[1:], out)
	case "help", "-h", "--help":
		printUsage(out)
	default:
		printUsage(errOut)
		err = errors.Newf("unknown command: %s", cmd)
	}
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return 1
	}
	return 0
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "usage:")
	fmt.Fprintln(w, "  rhmap run [flags] <workload.jsonc>")
	fmt.Fprintln(w, "  rhmap repl [flags]")
	fmt.Fprintln(w, "flags:")
	o, _ := parseFlags("rhmap", nil)
	o.flags.SetOutput(w)
	o.flags.PrintDefaults()
}

func cmdRun(ctx context.Context, args []string, out io.Writer) error {
	o, err := parseFlags("run", args)
	if err != nil {
		return err
	}
	if o.flags.NArg() != 1 {
		return errors.New("run takes exactly one workload file")
	}
	logger, err := o.newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := workload.Load(o.flags.Arg(0))
	if err != nil {
		return err
	}
	if o.flags.Changed("hash") {
		cfg.Hash = o.hash
	}
	if o.flags.Changed("capacity") {
		cfg.Capacity = o.capacity
	}

	logger.Info("running workload",
		zap.String("path", o.flags.Arg(0)),
		zap.String("hash", cfg.Hash),
		zap.String("keys", cfg.Keys),
		zap.Int("trials", cfg.Trials),
		zap.Int("steps", len(cfg.Steps)))

	r := &workload.Runner{Config: cfg, Parallel: o.parallel, Logger: logger}
	rep, err := r.Run(ctx)
	if err != nil {
		return err
	}
	if o.report == "" {
		return rep.Write(out)
	}
	if err := rep.WriteFile(o.report); err != nil {
		return err
	}
	logger.Info("report written", zap.String("path", o.report), zap.Duration("duration", rep.Duration))
	return nil
}

func cmdREPL(args []string, out io.Writer) error {
	o, err := parseFlags("repl", args)
	if err != nil {
		return err
	}
	if o.flags.NArg() != 0 {
		return errors.New("repl takes no arguments")
	}
	logger, err := o.newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	var opts []robinhood.Option[string, string]
	switch o.hash {
	case workload.HashRuntime:
	case workload.HashFx:
		opts = append(opts, robinhood.WithHash[string, string](robinhood.FxHashString))
	default:
		return errors.Newf("invalid --hash %q", o.hash)
	}
	capacity := o.capacity
	if capacity < 0 || capacity&(capacity-1) != 0 {
		return errors.Newf("--capacity must be a power of two: %d", capacity)
	}
	if uint64(capacity) > robinhood.MaxCapacity {
		return errors.Newf("--capacity %d exceeds maximum %d", capacity, uint64(robinhood.MaxCapacity))
	}

	m := robinhood.New[string, string](capacity, opts...)
	defer m.Close()
	return repl.New(m, out, logger).Run()
}
