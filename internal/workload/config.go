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

// Package workload runs scripted sequences of map operations against
// robinhood maps and reports the resulting occupancy and probe lengths.
package workload

import (
	"bytes"
	"encoding/json"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/robinhood"
	"github.com/tailscale/hujson"
)

// Hash function names accepted in a workload.
const (
	HashRuntime = "runtime"
	HashFx      = "fx"
)

// Key kinds accepted in a workload.
const (
	KeysInt  = "int"
	KeysUUID = "uuid"
)

// Step operations.
const (
	OpInsert = "insert"
	OpRemove = "remove"
	OpChurn  = "churn"
	OpLookup = "lookup"
)

const defaultInsertRatio = 0.5

// Config describes a workload. Workload files are JSON with comments and
// trailing commas allowed.
type Config struct {
	// Capacity is the initial capacity of each map. Zero selects the map's
	// default.
	Capacity int    `json:"capacity"`
	Hash     string `json:"hash"`
	Keys     string `json:"keys"`
	Seed     int64  `json:"seed"`
	// Trials is the number of independent maps the steps are run against.
	// Trial i is seeded with Seed+i.
	Trials int `json:"trials"`
	// Verify cross-checks every map against a builtin map after each step.
	Verify bool   `json:"verify"`
	Steps  []Step `json:"steps"`
}

// Step is a single phase of a workload.
//
//   - insert puts Count keys that have not been inserted before.
//   - remove deletes the Count oldest keys put by insert steps.
//   - churn performs Count random puts and deletes over KeySpace keys,
//     choosing a put with probability InsertRatio.
//   - lookup gets Count random keys, roughly half of which are absent.
type Step struct {
	Op          string   `json:"op"`
	Count       int      `json:"count"`
	KeySpace    int      `json:"key_space,omitempty"`
	InsertRatio *float64 `json:"insert_ratio,omitempty"`
}

func (s Step) insertRatio() float64 {
	if s.InsertRatio == nil {
		return defaultInsertRatio
	}
	return *s.InsertRatio
}

func (s Step) keySpace() int {
	if s.KeySpace == 0 {
		return s.Count
	}
	return s.KeySpace
}

// Parse parses and validates a workload, filling in defaults.
func Parse(data []byte) (Config, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, errors.Wrap(err, "invalid JSONC")
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(standardized))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "invalid workload")
	}

	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads and parses the workload file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "reading workload")
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, errors.Wrapf(err, "%s", path)
	}
	return cfg, nil
}

func (c *Config) setDefaults() {
	if c.Hash == "" {
		c.Hash = HashRuntime
	}
	if c.Keys == "" {
		c.Keys = KeysInt
	}
	if c.Trials == 0 {
		c.Trials = 1
	}
}

// Validate returns an error describing the first problem found in c.
func (c *Config) Validate() error {
	if c.Capacity < 0 || (c.Capacity != 0 && c.Capacity&(c.Capacity-1) != 0) {
		return errors.Newf("capacity must be zero or a power of two: %d", c.Capacity)
	}
	if uint64(c.Capacity) > robinhood.MaxCapacity {
		return errors.Newf("capacity %d exceeds maximum %d", c.Capacity, uint64(robinhood.MaxCapacity))
	}
	switch c.Hash {
	case HashRuntime, HashFx:
	default:
		return errors.Newf("unknown hash %q", c.Hash)
	}
	switch c.Keys {
	case KeysInt, KeysUUID:
	default:
		return errors.Newf("unknown key kind %q", c.Keys)
	}
	if c.Trials < 1 {
		return errors.Newf("trials must be positive: %d", c.Trials)
	}
	if len(c.Steps) == 0 {
		return errors.New("workload has no steps")
	}
	for i, s := range c.Steps {
		if err := s.validate(); err != nil {
			return errors.Wrapf(err, "step %d", i)
		}
	}
	return nil
}

func (s Step) validate() error {
	switch s.Op {
	case OpInsert, OpRemove, OpChurn, OpLookup:
	default:
		return errors.Newf("unknown op %q", s.Op)
	}
	if s.Count <= 0 {
		return errors.Newf("count must be positive: %d", s.Count)
	}
	if s.KeySpace < 0 {
		return errors.Newf("key_space must not be negative: %d", s.KeySpace)
	}
	if s.Op != OpChurn && (s.KeySpace != 0 || s.InsertRatio != nil) {
		return errors.Newf("key_space and insert_ratio only apply to %s", OpChurn)
	}
	if r := s.insertRatio(); r < 0 || r > 1 {
		return errors.Newf("insert_ratio must be within [0, 1]: %g", r)
	}
	return nil
}
