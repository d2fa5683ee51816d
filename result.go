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

// Correlation surface extraction and key guess ranking.
package cpa

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Extract derives the numGuesses x numSamples Pearson correlation surface
// from a settled grid. Zero-variance cells carry NaN; callers and the
// ranker treat those as "no signal". Pure and idempotent: the grid is
// never mutated and repeated calls return identical matrices.
func Extract(g *Grid) *mat.Dense {
	out := mat.NewDense(g.NumGuesses(), g.NumSamples(), nil)
	for gi := 0; gi < g.NumGuesses(); gi++ {
		for s := 0; s < g.NumSamples(); s++ {
			corr, err := g.At(gi, s).Correlation()
			if err != nil {
				corr = math.NaN()
			}
			out.Set(gi, s, corr)
		}
	}
	return out
}

// KeyByteResult is one ranked candidate for a key byte position.
// PeakCorrelation is the magnitude of the strongest correlation across
// all samples; Margin is the gap to the next-ranked candidate's peak (0
// for the last). A small top margin signals an inconclusive attack.
type KeyByteResult struct {
	Guess           byte
	PeakSample      int
	PeakCorrelation float64
	Margin          float64
}

func (r KeyByteResult) String() string {
	return fmt.Sprintf("<Key:0x%02x, Corr:%f, Loc: %d>", r.Guess, r.PeakCorrelation, r.PeakSample)
}

// Ranking orders guesses by descending peak correlation magnitude.
// Guesses whose every cell was zero-variance land in Undefined (by guess
// index) and are excluded from the order rather than silently ranked.
type Ranking struct {
	Results   []KeyByteResult
	Undefined []int
}

// Best is the top candidate. Only valid when Results is non-empty.
func (r Ranking) Best() KeyByteResult {
	return r.Results[0]
}

// Rank scans the correlation surface for each guess's absolute peak and
// orders the guesses. guesses labels the matrix rows and must match the
// surface's row count.
func Rank(m *mat.Dense, guesses []byte) (Ranking, error) {
	rows, cols := m.Dims()
	if rows != len(guesses) {
		return Ranking{}, &DimensionMismatchError{
			GotGuesses:  len(guesses),
			GotSamples:  cols,
			WantGuesses: rows,
			WantSamples: cols,
		}
	}

	var ranking Ranking
	for gi := 0; gi < rows; gi++ {
		peakSample := -1
		peak := 0.0
		for s := 0; s < cols; s++ {
			v := math.Abs(m.At(gi, s))
			if math.IsNaN(v) {
				continue
			}
			if peakSample < 0 || v > peak {
				peakSample = s
				peak = v
			}
		}
		if peakSample < 0 {
			ranking.Undefined = append(ranking.Undefined, gi)
			continue
		}
		ranking.Results = append(ranking.Results, KeyByteResult{
			Guess:           guesses[gi],
			PeakSample:      peakSample,
			PeakCorrelation: peak,
		})
	}

	sort.SliceStable(ranking.Results, func(i, j int) bool {
		return ranking.Results[i].PeakCorrelation > ranking.Results[j].PeakCorrelation
	})
	for i := 0; i+1 < len(ranking.Results); i++ {
		ranking.Results[i].Margin = ranking.Results[i].PeakCorrelation -
			ranking.Results[i+1].PeakCorrelation
	}
	return ranking, nil
}
