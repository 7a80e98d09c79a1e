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
	"math/rand"
	"runtime"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/robinhood"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Runner runs the trials of a workload.
type Runner struct {
	Config Config
	// Parallel bounds the number of trials run at once. Zero means
	// GOMAXPROCS.
	Parallel int
	Logger   *zap.Logger
}

// Run runs every trial and returns their reports in trial order. Each trial
// owns its map; maps are never shared between goroutines. The first failing
// trial cancels the rest.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	if err := r.Config.Validate(); err != nil {
		return nil, err
	}
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	parallel := r.Parallel
	if parallel <= 0 {
		parallel = runtime.GOMAXPROCS(0)
	}

	rep := &Report{
		Hash:   r.Config.Hash,
		Keys:   r.Config.Keys,
		Trials: make([]TrialReport, r.Config.Trials),
	}
	start := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i := range r.Config.Trials {
		g.Go(func() error {
			seed := r.Config.Seed + int64(i)
			l := logger.With(zap.Int("trial", i), zap.Int64("seed", seed))
			tr, err := r.runTrial(ctx, seed, l)
			if err != nil {
				return errors.Wrapf(err, "trial %d", i)
			}
			tr.Trial = i
			rep.Trials[i] = tr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rep.Duration = time.Since(start)
	return rep, nil
}

func (r *Runner) runTrial(ctx context.Context, seed int64, logger *zap.Logger) (TrialReport, error) {
	cfg := &r.Config
	switch cfg.Keys {
	case KeysUUID:
		keys := newUUIDKeys(rand.New(rand.NewSource(seed)))
		return runTrial[uuid.UUID](ctx, cfg, seed, keys, hashOptions(cfg.Hash, fxUUIDHash), logger)
	default:
		return runTrial[int](ctx, cfg, seed, intKeys{}, hashOptions(cfg.Hash, robinhood.FxHash[int]), logger)
	}
}

// trial is the state of a single trial: the map under test, the model it is
// checked against and the key id cursors of insert and remove steps.
type trial[K comparable] struct {
	cfg    *Config
	rng    *rand.Rand
	keys   keySource[K]
	m      *robinhood.Map[K, int]
	model  map[K]int
	ops    OpCounts
	next   int
	oldest int
}

func runTrial[K comparable](
	ctx context.Context,
	cfg *Config,
	seed int64,
	keys keySource[K],
	options []robinhood.Option[K, int],
	logger *zap.Logger,
) (TrialReport, error) {
	t := &trial[K]{
		cfg:  cfg,
		rng:  rand.New(rand.NewSource(seed)),
		keys: keys,
		m:    robinhood.New[K, int](cfg.Capacity, options...),
	}
	defer t.m.Close()
	if cfg.Verify {
		t.model = make(map[K]int)
	}

	logger.Debug("trial starting", zap.Int("capacity", t.m.Capacity()))
	start := time.Now()
	for i, s := range cfg.Steps {
		if err := ctx.Err(); err != nil {
			return TrialReport{}, err
		}
		t.step(s)
		if cfg.Verify {
			if err := t.verify(); err != nil {
				return TrialReport{}, errors.Wrapf(err, "step %d (%s)", i, s.Op)
			}
		}
		logger.Debug("step done",
			zap.Int("step", i),
			zap.String("op", s.Op),
			zap.Int("len", t.m.Len()),
			zap.Int("capacity", t.m.Capacity()))
	}

	st := t.m.Stats()
	tr := TrialReport{
		Seed:             seed,
		Ops:              t.ops,
		Stats:            st,
		LoadFactor:       st.LoadFactor(),
		MeanDisplacement: st.MeanDisplacement(),
		Duration:         time.Since(start),
		Verified:         cfg.Verify,
	}
	logger.Info("trial done",
		zap.Int("len", st.Len),
		zap.Int("capacity", st.Capacity),
		zap.Int("grows", st.Grows),
		zap.Int("max-displacement", st.MaxDisplacement),
		zap.Float64("mean-displacement", tr.MeanDisplacement),
		zap.Duration("duration", tr.Duration))
	return tr, nil
}

func (t *trial[K]) step(s Step) {
	switch s.Op {
	case OpInsert:
		for range s.Count {
			t.put(t.next)
			t.next++
		}
	case OpRemove:
		for range s.Count {
			if t.oldest >= t.next {
				break
			}
			t.remove(t.oldest)
			t.oldest++
		}
	case OpChurn:
		space, ratio := s.keySpace(), s.insertRatio()
		for range s.Count {
			id := t.rng.Intn(space)
			if t.rng.Float64() < ratio {
				t.put(id)
			} else {
				t.remove(id)
			}
		}
	case OpLookup:
		// Ids past the insert cursor have never been put by an insert step.
		space := 2 * max(t.next, 1)
		for range s.Count {
			t.lookup(t.rng.Intn(space))
		}
	}
}

func (t *trial[K]) put(id int) {
	k, v := t.keys.key(id), t.rng.Int()
	e := t.m.Entry(k)
	if o, ok := e.AsOccupied(); ok {
		o.Replace(v)
		t.ops.Overwrites++
	} else {
		e.OrInsert(v)
		t.ops.Inserts++
	}
	if t.model != nil {
		t.model[k] = v
	}
}

func (t *trial[K]) remove(id int) {
	k := t.keys.key(id)
	if _, ok := t.m.Delete(k); ok {
		t.ops.Removes++
	} else {
		t.ops.RemoveMisses++
	}
	if t.model != nil {
		delete(t.model, k)
	}
}

func (t *trial[K]) lookup(id int) {
	if _, ok := t.m.Get(t.keys.key(id)); ok {
		t.ops.LookupHits++
	} else {
		t.ops.LookupMisses++
	}
}

// verify checks the map holds exactly the entries of the model.
func (t *trial[K]) verify() error {
	if t.m.Len() != len(t.model) {
		return errors.Newf("map has %d entries, expected %d", t.m.Len(), len(t.model))
	}
	for k, expected := range t.model {
		v, ok := t.m.Get(k)
		if !ok {
			return errors.Newf("key %v missing", k)
		}
		if v != expected {
			return errors.Newf("key %v: found %d, expected %d", k, v, expected)
		}
	}
	var err error
	t.m.All(func(k K, _ int) bool {
		if _, ok := t.model[k]; !ok {
			err = errors.Newf("unexpected key %v", k)
			return false
		}
		return true
	})
	return err
}
