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
	"bytes"
	"encoding/json"
	"io"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/robinhood"
	"github.com/natefinch/atomic"
)

// OpCounts counts the operations a trial performed, by outcome.
type OpCounts struct {
	Inserts      int `json:"inserts"`
	Overwrites   int `json:"overwrites"`
	Removes      int `json:"removes"`
	RemoveMisses int `json:"remove_misses"`
	LookupHits   int `json:"lookup_hits"`
	LookupMisses int `json:"lookup_misses"`
}

// TrialReport describes the final state of a single trial's map.
type TrialReport struct {
	Trial            int             `json:"trial"`
	Seed             int64           `json:"seed"`
	Ops              OpCounts        `json:"ops"`
	Stats            robinhood.Stats `json:"stats"`
	LoadFactor       float64         `json:"load_factor"`
	MeanDisplacement float64         `json:"mean_displacement"`
	Duration         time.Duration   `json:"duration_ns"`
	Verified         bool            `json:"verified"`
}

// Report is the result of running a workload.
type Report struct {
	Hash     string        `json:"hash"`
	Keys     string        `json:"keys"`
	Duration time.Duration `json:"duration_ns"`
	Trials   []TrialReport `json:"trials"`
}

// Marshal returns the indented JSON encoding of r.
func (r *Report) Marshal() ([]byte, error) {
	buf, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "encoding report")
	}
	return append(buf, '\n'), nil
}

// Write writes the report to w.
func (r *Report) Write(w io.Writer) error {
	buf, err := r.Marshal()
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

// WriteFile writes the report to path. The file is replaced atomically so
// readers never see a partially written report.
func (r *Report) WriteFile(path string) error {
	buf, err := r.Marshal()
	if err != nil {
		return err
	}
	if err := atomic.WriteFile(path, bytes.NewReader(buf)); err != nil {
		return errors.Wrapf(err, "writing report to %s", path)
	}
	return nil
}
