// Copyright 2019 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Pluggable executors that fold one trace batch into the accumulator grid.
package cpa

import (
	"fmt"
	"runtime"
	"sync"
)

// BackendFaultError reports a compute backend that failed to execute a
// batch. The scheduler treats it as fatal for the run; retry policy
// belongs to the caller, starting from the last good checkpoint.
type BackendFaultError struct {
	Err error
}

func (e *BackendFaultError) Error() string {
	return fmt.Sprintf("compute backend fault: %v", e.Err)
}

func (e *BackendFaultError) Unwrap() error {
	return e.Err
}

// ComputeBackend executes one batch update across the full guess x sample
// grid. Implementations must apply each cell's observations in trace
// order and leave every cell at the same resulting count.
type ComputeBackend interface {
	ApplyBatch(g *Grid, b *Batch, guesses []byte, model LeakageModel) error
}

// SequentialBackend is the straightforward reference double loop.
type SequentialBackend struct{}

func (SequentialBackend) ApplyBatch(g *Grid, b *Batch, guesses []byte, model LeakageModel) error {
	if err := g.ValidateBatch(b, guesses); err != nil {
		return err
	}
	hyp := make([]float64, b.Len())
	for gi, guess := range guesses {
		for t, known := range b.Known {
			hyp[t] = model.Estimate(known, guess)
		}
		g.applyRow(gi, hyp, b)
	}
	g.finishBatch(b)
	return nil
}

// ParallelBackend fans guess rows out over a worker pool. Each row is
// touched by exactly one worker per batch, so the cell arena needs no
// locking; per-cell update order stays identical to the sequential
// backend, making the two bit-for-bit interchangeable.
type ParallelBackend struct {
	workers int
}

func NewParallelBackend(workers int) *ParallelBackend {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &ParallelBackend{workers: workers}
}

func (p *ParallelBackend) ApplyBatch(g *Grid, b *Batch, guesses []byte, model LeakageModel) error {
	if err := g.ValidateBatch(b, guesses); err != nil {
		return err
	}

	rowCh := make(chan int, len(guesses))
	for gi := range guesses {
		rowCh <- gi
	}
	close(rowCh)

	// A faulting worker leaves its rows half-applied; the snapshot lets
	// the whole batch roll back so the grid stays at the pre-batch state
	// with every cell in lockstep.
	snapshot := make([]Cell, len(g.cells))
	copy(snapshot, g.cells)

	var mu sync.Mutex
	var fault error
	var wg sync.WaitGroup
	wg.Add(p.workers)
	for w := 0; w < p.workers; w++ {
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					mu.Lock()
					if fault == nil {
						fault = &BackendFaultError{Err: fmt.Errorf("worker panic: %v", r)}
					}
					mu.Unlock()
				}
			}()
			hyp := make([]float64, b.Len())
			for gi := range rowCh {
				guess := guesses[gi]
				for t, known := range b.Known {
					hyp[t] = model.Estimate(known, guess)
				}
				g.applyRow(gi, hyp, b)
			}
		}()
	}
	wg.Wait()

	if fault != nil {
		copy(g.cells, snapshot)
		return fault
	}
	g.finishBatch(b)
	return nil
}
