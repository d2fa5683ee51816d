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

// Online two-variable statistics for streaming correlation computation.
package cpa

import (
	"errors"
	"math"
)

// Returned when a correlation is requested from a cell whose measured or
// predicted stream has zero variance. Callers must treat this as "no
// signal", never as zero correlation.
var ErrUndefinedCorrelation = errors.New("undefined correlation: zero-variance stream")

// Cell holds the running statistics of one (guess, sample) pair: the
// observation count, the means of the measured (x) and predicted (y)
// streams, their sums of squared deviations, and the co-moment.
type Cell struct {
	N     int     `json:"n"`
	MeanX float64 `json:"mx"`
	MeanY float64 `json:"my"`
	M2X   float64 `json:"m2x"`
	M2Y   float64 `json:"m2y"`
	C     float64 `json:"c"`
}

// Update folds one observation into the cell using Welford's method,
// which avoids the catastrophic cancellation of the naive sum-of-products
// formulas. Observations must arrive in trace order for bit-reproducible
// results.
func (c *Cell) Update(x, y float64) {
	n1 := float64(c.N) + 1
	dx := x - c.MeanX
	dy := y - c.MeanY
	mx := c.MeanX + dx/n1
	my := c.MeanY + dy/n1
	c.M2X += dx * (x - mx)
	c.M2Y += dy * (y - my)
	c.C += float64(c.N) * dx * dy / n1
	c.MeanX = mx
	c.MeanY = my
	c.N++
}

// Merge folds other into c using Chan's pairwise combination. The two
// cells must cover disjoint trace ranges. The result is equivalent, up to
// floating-point rounding, to replaying other's observations after c's;
// this is what makes checkpoint resumption and parallel accumulation
// exact rather than approximate.
func (c *Cell) Merge(other Cell) {
	if other.N == 0 {
		return
	}
	if c.N == 0 {
		*c = other
		return
	}
	na := float64(c.N)
	nb := float64(other.N)
	n := na + nb
	dx := other.MeanX - c.MeanX
	dy := other.MeanY - c.MeanY
	c.MeanX += dx * nb / n
	c.MeanY += dy * nb / n
	c.M2X += other.M2X + dx*dx*na*nb/n
	c.M2Y += other.M2Y + dy*dy*na*nb/n
	c.C += other.C + dx*dy*na*nb/n
	c.N += other.N
}

// Correlation derives the Pearson coefficient from the accumulated state.
func (c Cell) Correlation() (float64, error) {
	if c.M2X == 0 || c.M2Y == 0 {
		return 0, ErrUndefinedCorrelation
	}
	return c.C / (math.Sqrt(c.M2X) * math.Sqrt(c.M2Y)), nil
}
