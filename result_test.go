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
	"errors"
	"math"
	"testing"

	cpa "github.com/courk/esp-cpa"
)

// Four traces of two samples, two guesses: guess 0x0a's hypothesis
// [0,1,2,3] correlates perfectly with sample 0 ([1,2,3,4]); guess 0x0b
// is constant and therefore undefined everywhere.
func scenarioGrid(t *testing.T) (*cpa.Grid, []byte) {
	t.Helper()
	grid := cpa.NewGrid(2, 2)
	batch := indexBatch([][]float64{{1, 2}, {2, 3}, {3, 5}, {4, 7}})
	guesses := []byte{0x0a, 0x0b}
	model := tableModel{rows: map[byte][]float64{
		0x0a: {0, 1, 2, 3},
		0x0b: {5, 5, 5, 5},
	}}
	if err := (cpa.SequentialBackend{}).ApplyBatch(grid, batch, guesses, model); err != nil {
		t.Fatalf("ApplyBatch failed: %v", err)
	}
	return grid, guesses
}

func TestConcreteScenario(t *testing.T) {
	grid, guesses := scenarioGrid(t)
	m := cpa.Extract(grid)

	if got := m.At(0, 0); math.Abs(got-1.0) > 1e-12 {
		t.Errorf("corr[0][0] = %v, want 1.0", got)
	}
	if !math.IsNaN(m.At(1, 0)) || !math.IsNaN(m.At(1, 1)) {
		t.Errorf("constant guess produced numeric correlation: %v, %v",
			m.At(1, 0), m.At(1, 1))
	}

	ranking, err := cpa.Rank(m, guesses)
	if err != nil {
		t.Fatalf("Rank failed: %v", err)
	}
	if len(ranking.Results) != 1 {
		t.Fatalf("ranked %d guesses, want 1", len(ranking.Results))
	}
	best := ranking.Best()
	if best.Guess != 0x0a || best.PeakSample != 0 {
		t.Errorf("best = %v, want guess 0x0a at sample 0", best)
	}
	if math.Abs(best.PeakCorrelation-1.0) > 1e-9 {
		t.Errorf("peak correlation = %v, want 1.0", best.PeakCorrelation)
	}
	if len(ranking.Undefined) != 1 || ranking.Undefined[0] != 1 {
		t.Errorf("undefined guesses = %v, want [1]", ranking.Undefined)
	}
}

func TestExtractIsIdempotent(t *testing.T) {
	grid, _ := scenarioGrid(t)

	first := cpa.Extract(grid)
	second := cpa.Extract(grid)
	matricesClose(t, first, second, 0)

	if grid.Count() != 4 {
		t.Errorf("Extract changed the grid count to %d", grid.Count())
	}
}

func TestRankMargins(t *testing.T) {
	guesses := cpa.AllByteGuesses()[:16]
	grid := accumulate(t, synthSource(t, 400, 6, 0x05), guesses, 64)

	ranking, err := cpa.Rank(cpa.Extract(grid), guesses)
	if err != nil {
		t.Fatalf("Rank failed: %v", err)
	}
	for i := 0; i+1 < len(ranking.Results); i++ {
		a, b := ranking.Results[i], ranking.Results[i+1]
		if a.PeakCorrelation < b.PeakCorrelation {
			t.Fatalf("ranking not descending at %d: %v before %v", i, a, b)
		}
		want := a.PeakCorrelation - b.PeakCorrelation
		if math.Abs(a.Margin-want) > 1e-12 {
			t.Errorf("margin at %d = %v, want %v", i, a.Margin, want)
		}
	}
	if last := ranking.Results[len(ranking.Results)-1]; last.Margin != 0 {
		t.Errorf("last margin = %v, want 0", last.Margin)
	}
}

func TestRankRejectsMismatchedGuessLabels(t *testing.T) {
	grid, _ := scenarioGrid(t)

	var dimErr *cpa.DimensionMismatchError
	if _, err := cpa.Rank(cpa.Extract(grid), []byte{1, 2, 3}); !errors.As(err, &dimErr) {
		t.Errorf("got err %v, want DimensionMismatchError", err)
	}
}
