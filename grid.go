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

// Accumulator grid: the per-(guess, sample) statistics of one CPA run.
package cpa

import "fmt"

// BatchShapeError reports a trace whose sample count disagrees with the
// grid. The offending batch is rejected before any cell is mutated.
type BatchShapeError struct {
	TraceIndex int
	Got        int
	Want       int
}

func (e *BatchShapeError) Error() string {
	return fmt.Sprintf("batch trace %d has %d samples, grid expects %d",
		e.TraceIndex, e.Got, e.Want)
}

// DimensionMismatchError reports an operation across incompatibly shaped
// grids or guess spaces.
type DimensionMismatchError struct {
	GotGuesses  int
	GotSamples  int
	WantGuesses int
	WantSamples int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: got %dx%d cells, want %dx%d",
		e.GotGuesses, e.GotSamples, e.WantGuesses, e.WantSamples)
}

// Grid owns the dense numGuesses x numSamples cell arena of one run.
// Cells are stored guess-major in a flat slice, so within one batch every
// (guess, sample) update addresses exactly one index and rows never alias
// across parallel workers. A grid has exactly one writer at a time.
type Grid struct {
	numGuesses int
	numSamples int
	count      int
	cells      []Cell
}

func NewGrid(numGuesses, numSamples int) *Grid {
	return &Grid{
		numGuesses: numGuesses,
		numSamples: numSamples,
		cells:      make([]Cell, numGuesses*numSamples),
	}
}

func (g *Grid) NumGuesses() int {
	return g.numGuesses
}

func (g *Grid) NumSamples() int {
	return g.numSamples
}

// Count is the number of traces folded in so far. Every cell holds
// exactly this many observations (cells advance in lockstep).
func (g *Grid) Count() int {
	return g.count
}

// At returns a copy of one cell's state.
func (g *Grid) At(guess, sample int) Cell {
	return g.cells[guess*g.numSamples+sample]
}

func (g *Grid) row(guess int) []Cell {
	return g.cells[guess*g.numSamples : (guess+1)*g.numSamples]
}

// ValidateBatch rejects a batch/guess-space pair the grid cannot absorb.
// Runs before any mutation so a failed batch leaves the grid untouched.
func (g *Grid) ValidateBatch(b *Batch, guesses []byte) error {
	if len(guesses) != g.numGuesses {
		return &DimensionMismatchError{
			GotGuesses:  len(guesses),
			GotSamples:  g.numSamples,
			WantGuesses: g.numGuesses,
			WantSamples: g.numSamples,
		}
	}
	if len(b.Known) != len(b.Samples) {
		return fmt.Errorf("batch has %d known values for %d traces",
			len(b.Known), len(b.Samples))
	}
	for t, samples := range b.Samples {
		if len(samples) != g.numSamples {
			return &BatchShapeError{TraceIndex: t, Got: len(samples), Want: g.numSamples}
		}
	}
	return nil
}

// applyRow folds one batch into a single guess row, traces in arrival
// order. hyp[t] is the predicted leakage of trace t under this row's
// guess. Rows are independent; callers may apply them concurrently.
func (g *Grid) applyRow(guess int, hyp []float64, b *Batch) {
	row := g.row(guess)
	for t, samples := range b.Samples {
		y := hyp[t]
		for s := range row {
			row[s].Update(samples[s], y)
		}
	}
}

// finishBatch advances the trace count after all rows absorbed the batch.
func (g *Grid) finishBatch(b *Batch) {
	g.count += b.Len()
}

// Merge folds other into g cell-wise. The grids must cover disjoint trace
// ranges and agree on both dimensions; the result equals processing
// other's traces after g's in one sequential run.
func (g *Grid) Merge(other *Grid) error {
	if other.numGuesses != g.numGuesses || other.numSamples != g.numSamples {
		return &DimensionMismatchError{
			GotGuesses:  other.numGuesses,
			GotSamples:  other.numSamples,
			WantGuesses: g.numGuesses,
			WantSamples: g.numSamples,
		}
	}
	for i := range g.cells {
		g.cells[i].Merge(other.cells[i])
	}
	g.count += other.count
	return nil
}
