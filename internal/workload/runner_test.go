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
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func ratio(r float64) *float64 { return &r }

func TestRunnerInsertRemove(t *testing.T) {
	r := &Runner{
		Config: Config{
			Trials: 3,
			Verify: true,
			Steps: []Step{
				{Op: OpInsert, Count: 65},
				{Op: OpRemove, Count: 32},
				{Op: OpLookup, Count: 1000},
			},
		},
		Parallel: 2,
		Logger:   zaptest.NewLogger(t),
	}
	r.Config.setDefaults()

	rep, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, rep.Trials, 3)

	for i, tr := range rep.Trials {
		require.Equal(t, i, tr.Trial)
		require.EqualValues(t, i, tr.Seed)
		require.True(t, tr.Verified)
		require.Equal(t, 65, tr.Ops.Inserts)
		require.Equal(t, 32, tr.Ops.Removes)
		require.Equal(t, 0, tr.Ops.RemoveMisses)
		require.Equal(t, 1000, tr.Ops.LookupHits+tr.Ops.LookupMisses)
		require.Equal(t, 33, tr.Stats.Len)
		// 16 -> 32 -> 64 -> 128
		require.Equal(t, 128, tr.Stats.Capacity)
		require.Equal(t, 3, tr.Stats.Grows)
	}
}

func TestRunnerRemoveMoreThanInserted(t *testing.T) {
	r := &Runner{Config: Config{
		Verify: true,
		Steps: []Step{
			{Op: OpInsert, Count: 5},
			{Op: OpRemove, Count: 10},
		},
	}}
	r.Config.setDefaults()

	rep, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 5, rep.Trials[0].Ops.Removes)
	require.Equal(t, 0, rep.Trials[0].Stats.Len)
}

func TestRunnerChurn(t *testing.T) {
	for _, keys := range []string{KeysInt, KeysUUID} {
		for _, hash := range []string{HashRuntime, HashFx} {
			t.Run(keys+"/"+hash, func(t *testing.T) {
				r := &Runner{Config: Config{
					Capacity: 4,
					Hash:     hash,
					Keys:     keys,
					Seed:     7,
					Trials:   2,
					Verify:   true,
					Steps: []Step{
						{Op: OpInsert, Count: 100},
						{Op: OpChurn, Count: 2000, KeySpace: 256, InsertRatio: ratio(0.6)},
						{Op: OpChurn, Count: 2000, KeySpace: 256, InsertRatio: ratio(0)},
						{Op: OpLookup, Count: 100},
					},
				}}
				rep, err := r.Run(context.Background())
				require.NoError(t, err)
				for _, tr := range rep.Trials {
					ops := tr.Ops
					require.Equal(t, 4100, ops.Inserts+ops.Overwrites+ops.Removes+ops.RemoveMisses)
					require.Equal(t, ops.Inserts-ops.Removes, tr.Stats.Len)
					require.GreaterOrEqual(t, tr.Stats.MaxDisplacement, tr.Stats.LiveMaxDisplacement)
				}
			})
		}
	}
}

func TestRunnerDeterministic(t *testing.T) {
	cfg := Config{
		Keys:  KeysUUID,
		Hash:  HashFx,
		Seed:  99,
		Steps: []Step{{Op: OpChurn, Count: 3000, KeySpace: 512}},
	}
	cfg.setDefaults()

	run := func() TrialReport {
		rep, err := (&Runner{Config: cfg}).Run(context.Background())
		require.NoError(t, err)
		return rep.Trials[0]
	}
	a, b := run(), run()
	if diff := cmp.Diff(a, b, cmpopts.IgnoreFields(TrialReport{}, "Duration")); diff != "" {
		t.Fatalf("trials differ (-a +b):\n%s", diff)
	}
}

func TestRunnerCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := &Runner{Config: Config{Steps: []Step{{Op: OpInsert, Count: 1}}}}
	r.Config.setDefaults()
	_, err := r.Run(ctx)
	require.True(t, errors.Is(err, context.Canceled), "%v", err)
}

func TestRunnerInvalidConfig(t *testing.T) {
	r := &Runner{Config: Config{Capacity: 3, Steps: []Step{{Op: OpInsert, Count: 1}}}}
	r.Config.setDefaults()
	_, err := r.Run(context.Background())
	require.ErrorContains(t, err, "power of two")
}

func TestReportWriteFile(t *testing.T) {
	r := &Runner{Config: Config{Trials: 2, Steps: []Step{{Op: OpInsert, Count: 20}}}}
	r.Config.setDefaults()
	rep, err := r.Run(context.Background())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, rep.WriteFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded Report
	require.NoError(t, json.Unmarshal(data, &decoded))
	if diff := cmp.Diff(*rep, decoded); diff != "" {
		t.Fatalf("unexpected report (-want +got):\n%s", diff)
	}

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	trial := raw["trials"].([]any)[0].(map[string]any)
	require.EqualValues(t, 20, trial["stats"].(map[string]any)["len"])
	require.EqualValues(t, 20, trial["ops"].(map[string]any)["inserts"])
}
