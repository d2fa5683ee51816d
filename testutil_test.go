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

package cpa_test

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	cpa "github.com/courk/esp-cpa"
)

// tableModel looks the prediction up by (guess, trace index): the trace
// index travels as the first known byte. Handy for scripting exact
// hypothesis streams in tests.
type tableModel struct {
	rows map[byte][]float64
}

func (m tableModel) Estimate(known []byte, guess byte) float64 {
	return m.rows[guess][known[0]]
}

// indexBatch wraps scripted sample rows into a batch whose known data is
// the trace index, for use with tableModel.
func indexBatch(samples [][]float64) *cpa.Batch {
	known := make([][]byte, len(samples))
	for i := range samples {
		known[i] = []byte{byte(i)}
	}
	return &cpa.Batch{Known: known, Samples: samples}
}

// matricesClose compares two matrices within a relative tolerance,
// treating NaN cells as equal to each other.
func matricesClose(t *testing.T, want, got mat.Matrix, tol float64) {
	t.Helper()
	wr, wc := want.Dims()
	gr, gc := got.Dims()
	if wr != gr || wc != gc {
		t.Fatalf("dimension mismatch: want %dx%d, got %dx%d", wr, wc, gr, gc)
	}
	for i := 0; i < wr; i++ {
		for j := 0; j < wc; j++ {
			w, g := want.At(i, j), got.At(i, j)
			if math.IsNaN(w) && math.IsNaN(g) {
				continue
			}
			diff := math.Abs(w - g)
			if diff > tol*math.Max(1, math.Abs(w)) {
				t.Fatalf("cell (%d,%d): want %v, got %v", i, j, w, g)
			}
		}
	}
}

func synthSource(t *testing.T, numTraces, numSamples int, trueGuess byte) *cpa.SyntheticSource {
	t.Helper()
	source, err := cpa.NewSyntheticSource(cpa.SyntheticConfig{
		Model:      cpa.NewRound0Model(0, 1),
		TrueGuess:  trueGuess,
		NumTraces:  numTraces,
		NumSamples: numSamples,
		LeakSample: numSamples / 2,
		NoiseSigma: 0.5,
		Seed:       42,
	})
	if err != nil {
		t.Fatalf("NewSyntheticSource failed: %v", err)
	}
	return source
}

// accumulate folds an entire source into a fresh grid with the given
// batch size through the sequential backend.
func accumulate(t *testing.T, source cpa.TraceSource, guesses []byte, batchSize int) *cpa.Grid {
	t.Helper()
	grid := cpa.NewGrid(len(guesses), source.NumSamples())
	backend := cpa.SequentialBackend{}
	model := cpa.NewRound0Model(0, 1)
	for {
		batch, err := source.NextBatch(batchSize)
		if err == cpa.ErrSourceExhausted {
			return grid
		}
		if err != nil {
			t.Fatalf("NextBatch failed: %v", err)
		}
		if err = backend.ApplyBatch(grid, batch, guesses, model); err != nil {
			t.Fatalf("ApplyBatch failed: %v", err)
		}
	}
}
